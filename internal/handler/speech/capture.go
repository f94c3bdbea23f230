package speech

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/zhouzirui/urdu-voicebot/backend/internal/audio"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/urdu-voicebot/backend/internal/service/chat"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/service/turn"
)

var (
	ErrAudioTooLarge     = errors.New("audio exceeds size limit")
	ErrAudioMissing      = errors.New("audio file is required")
	ErrInvalidSampleRate = errors.New("sampleRate must be a positive integer")
)

// multipart 表单中除音频外的字段开销
const formOverhead = 1 << 20

// ReadClip 从 multipart 表单读取录音（字段 audio，可选 sampleRate）
func ReadClip(w http.ResponseWriter, r *http.Request, maxBytes int64) (audio.Clip, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+formOverhead)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return audio.Clip{}, ErrAudioTooLarge
		}
		return audio.Clip{}, fmt.Errorf("failed to parse multipart form: %w", err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		return audio.Clip{}, ErrAudioMissing
	}
	defer file.Close()

	reader := io.Reader(file)
	if maxBytes > 0 {
		reader = io.LimitReader(file, maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("read audio: %w", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return audio.Clip{}, ErrAudioTooLarge
	}

	sampleRate := 0
	if raw := strings.TrimSpace(r.FormValue("sampleRate")); raw != "" {
		sampleRate, err = strconv.Atoi(raw)
		if err != nil || sampleRate <= 0 {
			return audio.Clip{}, ErrInvalidSampleRate
		}
	}

	format := audio.InferFormat(header.Filename, header.Header.Get("Content-Type"))
	clip, err := audio.NewClip(data, format, sampleRate)
	if errors.Is(err, audio.ErrEmptyClip) {
		return audio.Clip{}, turn.ErrEmptyCapture
	}
	return clip, err
}

// StatusFor maps request and lookup errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, turn.ErrEmptyCapture),
		errors.Is(err, ErrAudioMissing),
		errors.Is(err, ErrInvalidSampleRate),
		errors.Is(err, chatservice.ErrSessionIDMissing):
		return http.StatusBadRequest
	case errors.Is(err, ErrAudioTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, chatservice.ErrSessionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// TurnResponse 单轮处理结果
type TurnResponse struct {
	SessionID   string         `json:"sessionId"`
	TurnID      string         `json:"turnId,omitempty"`
	Skipped     bool           `json:"skipped"`
	UserText    string         `json:"userText,omitempty"`
	ReplyText   string         `json:"replyText,omitempty"`
	AudioData   string         `json:"audioData,omitempty"`
	AudioFormat string         `json:"audioFormat,omitempty"`
	Failure     *turn.Failure  `json:"failure,omitempty"`
	Transcript  []chat.Message `json:"transcript"`
}

// NewTurnResponse renders a processed turn together with the updated transcript.
func NewTurnResponse(session chat.Session, result turn.Result) TurnResponse {
	resp := TurnResponse{
		SessionID:  session.ID,
		TurnID:     result.Turn.ID,
		Skipped:    result.Skipped,
		UserText:   result.Turn.UserText,
		ReplyText:  result.Turn.ReplyText,
		Failure:    result.Failure,
		Transcript: session.Transcript.Messages(),
	}
	if !result.Turn.Audio.Empty() {
		resp.AudioData = base64.StdEncoding.EncodeToString(result.Turn.Audio.Data)
		resp.AudioFormat = result.Turn.Audio.Format
	}
	return resp
}
