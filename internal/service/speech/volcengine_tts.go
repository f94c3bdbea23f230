package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/logging"
	speechmodel "github.com/zhouzirui/urdu-voicebot/backend/internal/model/speech"
	"go.uber.org/zap"
)

const (
	ttsEndpoint = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"

	ttsResourceDefault = "volc.service_type.10029"
	ttsResourceMega    = "volc.megatts.default"
	ttsResourceSeed    = "seed-tts-2.0"

	ttsSampleRate = 24000
	ttsCodeDone   = 3000
)

var (
	errEmptyText  = errors.New("TTS text is empty")
	errEmptyAudio = errors.New("TTS audio is empty")
)

// VolcengineTTSClient 火山引擎TTS WebSocket客户端
type VolcengineTTSClient struct {
	config   *speechmodel.VolcengineConfig
	dialer   *websocket.Dialer
	endpoint string
	log      *zap.Logger
}

// NewVolcengineTTSClient 创建火山引擎TTS客户端
func NewVolcengineTTSClient(cfg *speechmodel.VolcengineConfig) *VolcengineTTSClient {
	return &VolcengineTTSClient{
		config:   cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		endpoint: ttsEndpoint,
		log:      logging.Component("volcengine_tts"),
	}
}

type ttsRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string         `json:"speaker"`
		Text        string         `json:"text"`
		AudioParams ttsAudioParams `json:"audio_params"`
		Additions   string         `json:"additions,omitempty"`
		Language    string         `json:"language,omitempty"`
	} `json:"req_params"`
}

type ttsAudioParams struct {
	Format      string  `json:"format"`
	SampleRate  int     `json:"sample_rate"`
	SpeedRatio  float32 `json:"speed_ratio,omitempty"`
	VolumeRatio float32 `json:"volume_ratio,omitempty"`
}

type ttsServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Addition struct {
		Duration string `json:"duration,omitempty"`
	} `json:"addition,omitempty"`
}

// Synthesize 合成整段文本，返回完整音频。
// 声音与资源ID不匹配时依次尝试候选组合，其余错误直接返回。
func (c *VolcengineTTSClient) Synthesize(ctx context.Context, req *speechmodel.SynthesizeRequest) (*speechmodel.Synthesis, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errEmptyText
	}

	var fallbackVoice string
	if c.config != nil {
		fallbackVoice = c.config.TTSVoice
	}

	var lastErr error
	for _, speaker := range speakerCandidates(req.Voice, fallbackVoice) {
		for _, resourceID := range resourceCandidates(speaker) {
			result, err := c.synthesizeWith(ctx, req, speaker, resourceID)
			if err == nil {
				return result, nil
			}
			if !isResourceMismatch(err) {
				return nil, err
			}
			c.log.Debug("resource mismatch", zap.String("speaker", speaker), zap.String("resource", resourceID))
			lastErr = err
		}
	}

	if lastErr == nil {
		lastErr = errors.New("TTS synthesis failed: no compatible speaker")
	}
	return nil, lastErr
}

func (c *VolcengineTTSClient) synthesizeWith(ctx context.Context, req *speechmodel.SynthesizeRequest, speaker, resourceID string) (*speechmodel.Synthesis, error) {
	connectID := req.ConnectID
	if connectID == "" {
		connectID = uuid.NewString()
	}

	header, err := volcengineHeaders(c.config, resourceID, connectID)
	if err != nil {
		return nil, err
	}

	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS WebSocket: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}

	format := ttsFormat(req.Format)
	payload, err := json.Marshal(c.buildRequest(req, connectID, speaker, format))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}
	if err := writeFrame(conn, clientRequest(payload, compressNone)); err != nil {
		return nil, fmt.Errorf("failed to send TTS request: %w", err)
	}

	var (
		audio    bytes.Buffer
		reqID    = connectID
		duration int64
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to read TTS response: %w", err)
		}

		f, err := parseFrame(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode TTS message: %w", err)
		}

		switch f.Type {
		case msgError:
			body, _ := f.body()
			return nil, fmt.Errorf("TTS error %d: %s", f.ErrorCode, string(body))

		case msgAudioOnlyServerResponse:
			chunk, err := f.body()
			if err != nil {
				return nil, fmt.Errorf("failed to decompress audio chunk: %w", err)
			}
			audio.Write(chunk)

		case msgFullServerResponse:
			body, err := f.body()
			if err != nil {
				return nil, fmt.Errorf("failed to decompress TTS response payload: %w", err)
			}

			var msg ttsServerMessage
			if len(body) > 0 {
				if err := json.Unmarshal(body, &msg); err != nil {
					c.log.Warn("failed to unmarshal response payload", zap.Error(err))
				} else {
					if msg.Code != 0 && msg.Code != ttsCodeDone {
						return nil, fmt.Errorf("TTS API error %d: %s", msg.Code, msg.Message)
					}
					if msg.ReqID != "" {
						reqID = msg.ReqID
					}
					if ms, err := strconv.ParseInt(msg.Addition.Duration, 10, 64); err == nil {
						duration = ms
					}
					if msg.Data != "" {
						chunk, err := base64.StdEncoding.DecodeString(msg.Data)
						if err != nil {
							return nil, fmt.Errorf("failed to decode base64 audio chunk: %w", err)
						}
						audio.Write(chunk)
					}
				}
			}

			finished := (f.hasEvent() && f.Event == eventSessionFinished) || f.last() || msg.Sequence < 0
			if !finished {
				continue
			}
			if audio.Len() == 0 {
				return nil, errEmptyAudio
			}
			return &speechmodel.Synthesis{
				Audio:     audio.Bytes(),
				Format:    format,
				Duration:  duration,
				RequestID: reqID,
			}, nil
		}
	}
}

func (c *VolcengineTTSClient) buildRequest(req *speechmodel.SynthesizeRequest, uid, speaker, format string) *ttsRequest {
	r := &ttsRequest{}
	r.User.UID = uid
	r.ReqParams.Speaker = speaker
	r.ReqParams.Text = req.Text
	r.ReqParams.AudioParams.Format = format
	r.ReqParams.AudioParams.SampleRate = ttsSampleRate
	r.ReqParams.Additions = `{"disable_markdown_filter":false}`

	language := strings.TrimSpace(req.Language)
	if c.config != nil {
		if language == "" {
			language = strings.TrimSpace(c.config.TTSLanguage)
		}
		if s := c.config.TTSSpeed; s > 0 && s != 1.0 {
			r.ReqParams.AudioParams.SpeedRatio = s
		}
		if v := c.config.TTSVolume; v > 0 && v != 1.0 {
			r.ReqParams.AudioParams.VolumeRatio = v
		}
	}
	r.ReqParams.Language = language
	return r
}

// ttsFormat 服务端不支持 wav 封装，统一回落 mp3
func ttsFormat(format string) string {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "", "wav", "mp3":
		return "mp3"
	default:
		return f
	}
}

func resourceCandidates(voice string) []string {
	voice = strings.TrimSpace(voice)
	if strings.HasPrefix(voice, "S_") {
		return []string{ttsResourceMega}
	}

	normalized := strings.ToLower(voice)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "saturn", "mars"} {
		if strings.Contains(normalized, hint) {
			return []string{ttsResourceSeed, ttsResourceDefault}
		}
	}
	return []string{ttsResourceDefault, ttsResourceSeed}
}

// speakerCandidates 请求声音优先，其次配置的默认声音，去重
func speakerCandidates(requested, fallback string) []string {
	var out []string
	for _, s := range []string{requested, fallback} {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		dup := false
		for _, existing := range out {
			if strings.EqualFold(existing, s) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return []string{""}
	}
	return out
}

func isResourceMismatch(err error) bool {
	return err != nil && strings.Contains(err.Error(), "resource ID is mismatched with speaker related resource")
}
