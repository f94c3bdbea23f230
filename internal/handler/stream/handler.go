package stream

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/urdu-voicebot/backend/internal/handler/speech"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/logging"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/service/turn"
	"github.com/zhouzirui/urdu-voicebot/backend/pkg/utils"
)

// Handler streams turn progress via Server-Sent Events
type Handler struct {
	runner        speech.TurnRunner
	maxAudioBytes int64
	log           *zap.Logger
}

// New creates a new stream handler
func New(runner speech.TurnRunner, maxAudioBytes int64) *Handler {
	return &Handler{
		runner:        runner,
		maxAudioBytes: maxAudioBytes,
		log:           logging.Component("stream"),
	}
}

// RegisterRoutes 注册流式轮次路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session/{sessionID}/turn/stream", h.handleStreamTurn)
}

// handleStreamTurn 与普通提交相同的输入，按阶段推送 SSE 事件，最后以 done 收尾
func (h *Handler) handleStreamTurn(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	clip, err := speech.ReadClip(w, r, h.maxAudioBytes)
	if err != nil {
		utils.RespondError(w, speech.StatusFor(err), err.Error())
		return
	}

	// 请求校验通过后才切换为事件流，之前的错误仍走普通 JSON 响应
	started := false
	start := func() {
		if !started {
			utils.SetupSSEHeaders(w)
			w.WriteHeader(http.StatusOK)
			started = true
		}
	}

	session, result, err := h.runner.Run(r.Context(), sessionID, turn.Input{
		Clip: clip,
		Observe: func(ev turn.Event) {
			start()
			utils.SendSSEEvent(w, flusher, string(ev.Stage), ev)
		},
	})
	if err != nil {
		if !started {
			utils.RespondError(w, speech.StatusFor(err), err.Error())
			return
		}
		h.log.Error("stream turn failed", zap.String("session_id", sessionID), zap.Error(err))
		utils.SendSSEEvent(w, flusher, "error", map[string]string{"error": err.Error()})
		return
	}

	start()
	utils.SendSSEEvent(w, flusher, "done", speech.NewTurnResponse(session, result))
	h.log.Info("completed streamed turn", zap.String("session_id", sessionID), zap.Bool("skipped", result.Skipped))
}
