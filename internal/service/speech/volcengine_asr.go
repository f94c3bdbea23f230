package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/logging"
	speechmodel "github.com/zhouzirui/urdu-voicebot/backend/internal/model/speech"
	"go.uber.org/zap"
)

const (
	asrEndpoint           = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"
	asrResourceDuration   = "volc.bigasr.sauc.duration"
	asrResourceConcurrent = "volc.bigasr.sauc.concurrent"

	// 16kHz/16bit/单声道 200ms
	asrChunkBytes    = 6400
	asrChunkInterval = 200 * time.Millisecond

	asrCodeOK      = 20000000
	asrDefaultRate = 16000
)

var errNoAudio = errors.New("no audio data to send")

// VolcengineASRClient 火山引擎ASR WebSocket客户端
type VolcengineASRClient struct {
	config   *speechmodel.VolcengineConfig
	dialer   *websocket.Dialer
	endpoint string
	interval time.Duration
	log      *zap.Logger
}

// NewVolcengineASRClient 创建火山引擎ASR客户端
func NewVolcengineASRClient(cfg *speechmodel.VolcengineConfig) *VolcengineASRClient {
	return &VolcengineASRClient{
		config:   cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		endpoint: asrEndpoint,
		interval: asrChunkInterval,
		log:      logging.Component("volcengine_asr"),
	}
}

type asrRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user,omitempty"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type asrUtterance struct {
	Text     string `json:"text"`
	Definite bool   `json:"definite"`
}

type asrServerMessage struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string         `json:"text"`
		Utterances []asrUtterance `json:"utterances,omitempty"`
	} `json:"result,omitempty"`
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info,omitempty"`
}

// Transcribe 发送完整音频并等待最终识别结果。空文本不视为错误。
func (c *VolcengineASRClient) Transcribe(ctx context.Context, req *speechmodel.TranscribeRequest) (*speechmodel.Transcription, error) {
	data, err := io.ReadAll(req.Audio)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, errNoAudio
	}

	connectID := req.ConnectID
	if connectID == "" {
		connectID = uuid.NewString()
	}

	resourceID := asrResourceDuration
	if c.config != nil && c.config.ConcurrentMode {
		resourceID = asrResourceConcurrent
	}
	header, err := volcengineHeaders(c.config, resourceID, connectID)
	if err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ASR WebSocket: %w", err)
	}
	defer conn.Close()

	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			c.log.Debug("connected", zap.String("logid", logid), zap.String("connect_id", connectID))
		}
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}

	payload, err := json.Marshal(c.buildRequest(req, connectID))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ASR request: %w", err)
	}
	if err := writeFrame(conn, clientRequest(payload, compressGzip)); err != nil {
		return nil, fmt.Errorf("failed to send ASR request: %w", err)
	}

	done := make(chan asrOutcome, 1)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		result, err := c.receive(conn, connectID)
		done <- asrOutcome{result: result, err: err}
	}()

	if err := c.sendAudio(ctx, conn, data, finished); err != nil {
		// 服务端已返回错误时优先上报服务端原因
		select {
		case out := <-done:
			if out.err != nil {
				return nil, out.err
			}
		default:
		}
		return nil, fmt.Errorf("failed to send audio data: %w", err)
	}

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *VolcengineASRClient) buildRequest(req *speechmodel.TranscribeRequest, uid string) *asrRequest {
	r := &asrRequest{}
	r.User.UID = uid

	r.Audio.Format = strings.ToLower(req.Format)
	if r.Audio.Format == "" {
		r.Audio.Format = "wav"
	}
	r.Audio.Language = req.Language
	if r.Audio.Language == "" && c.config != nil {
		r.Audio.Language = c.config.ASRLanguage
	}
	r.Audio.Codec = "raw"
	r.Audio.Rate = req.SampleRate
	if r.Audio.Rate <= 0 {
		r.Audio.Rate = asrDefaultRate
	}
	r.Audio.Bits = 16
	r.Audio.Channel = 1

	r.Request.ModelName = "bigmodel"
	r.Request.EnableITN = true
	r.Request.EnablePunc = true
	r.Request.ShowUtterances = true
	r.Request.ResultType = "full"
	r.Request.EndWindowSize = 800
	return r
}

type asrOutcome struct {
	result *speechmodel.Transcription
	err    error
}

// sendAudio 分包发送音频，服务端提前结束时停止发送
func (c *VolcengineASRClient) sendAudio(ctx context.Context, conn *websocket.Conn, data []byte, finished <-chan struct{}) error {
	// 首帧占用序号1
	seq := int32(2)
	for offset := 0; offset < len(data); offset += asrChunkBytes {
		end := min(offset+asrChunkBytes, len(data))
		last := end == len(data)

		if err := writeFrame(conn, audioRequest(data[offset:end], seq, last, compressGzip)); err != nil {
			return err
		}
		seq++

		if last {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-finished:
			return nil
		case <-time.After(c.interval):
		}
	}
	return nil
}

func (c *VolcengineASRClient) receive(conn *websocket.Conn, connectID string) (*speechmodel.Transcription, error) {
	var (
		text     string
		duration int64
	)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to read ASR response: %w", err)
		}

		f, err := parseFrame(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode ASR message: %w", err)
		}

		switch f.Type {
		case msgError:
			body, _ := f.body()
			return nil, fmt.Errorf("ASR error %d: %s", f.ErrorCode, string(body))

		case msgFullServerResponse:
			body, err := f.body()
			if err != nil {
				return nil, fmt.Errorf("failed to decompress ASR payload: %w", err)
			}

			var msg asrServerMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				c.log.Warn("failed to unmarshal response", zap.Error(err))
				continue
			}
			if msg.Code != 0 && msg.Code != asrCodeOK {
				return nil, fmt.Errorf("ASR API error %d: %s", msg.Code, msg.Message)
			}

			if candidate := msg.transcript(); candidate != "" {
				text = candidate
			}
			if msg.AudioInfo.Duration > 0 {
				duration = msg.AudioInfo.Duration
			}

			if f.last() || msg.Sequence < 0 {
				return &speechmodel.Transcription{
					Text:      strings.TrimSpace(text),
					Duration:  duration,
					RequestID: connectID,
				}, nil
			}
		}
	}
}

func (m *asrServerMessage) transcript() string {
	if m.Result.Text != "" {
		return m.Result.Text
	}
	parts := make([]string, 0, len(m.Result.Utterances))
	for _, u := range m.Result.Utterances {
		if u.Text != "" {
			parts = append(parts, u.Text)
		}
	}
	return strings.Join(parts, " ")
}

func writeFrame(conn *websocket.Conn, f *frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, data)
}
