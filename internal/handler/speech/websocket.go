package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/urdu-voicebot/backend/internal/audio"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/logging"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/model/chat"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/service/turn"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// SessionStore 会话查询与重置
type SessionStore interface {
	GetSession(ctx context.Context, id string) (chat.Session, error)
	ResetSession(ctx context.Context, id string) (chat.Session, error)
}

// WebSocketHandler WebSocket语音处理器
type WebSocketHandler struct {
	runner        TurnRunner
	sessions      SessionStore
	maxAudioBytes int64
	upgrader      websocket.Upgrader
	log           *zap.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(runner TurnRunner, sessions SessionStore, maxAudioBytes int64) *WebSocketHandler {
	return &WebSocketHandler{
		runner:        runner,
		sessions:      sessions,
		maxAudioBytes: maxAudioBytes,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: logging.Component("voice-ws"),
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/voice/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// AudioMessage 音频分片，AudioData 为 base64
type AudioMessage struct {
	AudioData  []byte `json:"audioData"`
	Format     string `json:"format"`
	SampleRate int    `json:"sampleRate"`
	IsFinal    bool   `json:"isFinal"`
	ChunkIndex int    `json:"chunkIndex"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type connectionState struct {
	sessionID   string
	audioFormat string
	sampleRate  int
	buffer      bytes.Buffer
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.sessions.GetSession(r.Context(), sessionID); err != nil {
		http.Error(w, err.Error(), StatusFor(err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.log.Info("connection opened", zap.String("session_id", sessionID))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go h.pingLoop(ctx, conn)

	state := &connectionState{sessionID: sessionID}
	h.sendInfo(conn, sessionID, map[string]any{"type": "connected"})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("read error", zap.String("session_id", sessionID), zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(conn, "session mismatch")
			continue
		}

		h.handleMessage(ctx, conn, state, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, msg *inboundMessage) {
	switch msg.Type {
	case "audio":
		h.handleAudioMessage(ctx, conn, state, msg.Data)
	case "reset":
		h.handleReset(ctx, conn, state)
	default:
		h.sendError(conn, "unsupported message type: "+msg.Type)
	}
}

func (h *WebSocketHandler) handleAudioMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	var chunk AudioMessage
	if err := json.Unmarshal(raw, &chunk); err != nil {
		h.sendError(conn, "invalid audio payload")
		return
	}

	if h.maxAudioBytes > 0 && int64(state.buffer.Len()+len(chunk.AudioData)) > h.maxAudioBytes {
		state.buffer.Reset()
		h.sendError(conn, ErrAudioTooLarge.Error())
		return
	}
	state.buffer.Write(chunk.AudioData)
	if chunk.Format != "" {
		state.audioFormat = chunk.Format
	}
	if chunk.SampleRate > 0 {
		state.sampleRate = chunk.SampleRate
	}

	if chunk.IsFinal {
		h.processBufferedAudio(ctx, conn, state)
	}
}

func (h *WebSocketHandler) processBufferedAudio(ctx context.Context, conn *websocket.Conn, state *connectionState) {
	data := append([]byte(nil), state.buffer.Bytes()...)
	state.buffer.Reset()

	clip, err := audio.NewClip(data, state.audioFormat, state.sampleRate)
	if errors.Is(err, audio.ErrEmptyClip) {
		h.sendError(conn, turn.ErrEmptyCapture.Error())
		return
	}
	if err != nil {
		h.sendError(conn, err.Error())
		return
	}

	h.log.Debug("processing buffered audio",
		zap.String("session_id", state.sessionID),
		zap.String("format", clip.Format),
		zap.Int("bytes", len(data)),
	)

	session, result, err := h.runner.Run(ctx, state.sessionID, turn.Input{
		Clip: clip,
		Observe: func(ev turn.Event) {
			h.sendInfo(conn, state.sessionID, map[string]any{"type": "progress", "event": ev})
		},
	})
	if err != nil {
		h.log.Warn("turn failed", zap.String("session_id", state.sessionID), zap.Error(err))
		h.sendError(conn, err.Error())
		return
	}

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type": "turn",
		"turn": NewTurnResponse(session, result),
	})
}

func (h *WebSocketHandler) handleReset(ctx context.Context, conn *websocket.Conn, state *connectionState) {
	state.buffer.Reset()
	session, err := h.sessions.ResetSession(ctx, state.sessionID)
	if err != nil {
		h.sendError(conn, err.Error())
		return
	}
	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":       "reset",
		"transcript": session.Transcript.Messages(),
	})
}

func (h *WebSocketHandler) sendInfo(conn *websocket.Conn, sessionID string, data map[string]any) {
	msg := outgoingMessage{
		Type:      "result",
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		h.log.Debug("write result failed", zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(conn *websocket.Conn, message string) {
	msg := outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		h.log.Debug("write error failed", zap.Error(err))
	}
}

// pingLoop 定期发送ping消息，WriteControl 可与其他写操作并发
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
