package speech

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/urdu-voicebot/backend/internal/logging"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/model/chat"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/service/turn"
	"github.com/zhouzirui/urdu-voicebot/backend/pkg/utils"
)

// TurnRunner 抽象轮次处理，便于测试与替换实现
type TurnRunner interface {
	Run(ctx context.Context, sessionID string, in turn.Input) (chat.Session, turn.Result, error)
}

// Handler 语音轮次的HTTP处理器
type Handler struct {
	runner        TurnRunner
	maxAudioBytes int64
	log           *zap.Logger
}

// New 创建语音处理器
func New(runner TurnRunner, maxAudioBytes int64) *Handler {
	return &Handler{
		runner:        runner,
		maxAudioBytes: maxAudioBytes,
		log:           logging.Component("speech-handler"),
	}
}

// RegisterRoutes 注册语音轮次路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session/{sessionID}/turn", h.handleTurn)
}

// handleTurn 处理一次录音提交：识别 -> 回复 -> 合成
func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	clip, err := ReadClip(w, r, h.maxAudioBytes)
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}

	session, result, err := h.runner.Run(r.Context(), sessionID, turn.Input{Clip: clip})
	if err != nil {
		status := StatusFor(err)
		if status == http.StatusInternalServerError {
			h.log.Error("turn failed", zap.String("session_id", sessionID), zap.Error(err))
			utils.RespondError(w, status, "turn processing failed")
			return
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	h.log.Info("turn processed",
		zap.String("session_id", sessionID),
		zap.Bool("skipped", result.Skipped),
		zap.Bool("failed", result.Failure != nil),
		zap.Int("audio_bytes", len(result.Turn.Audio.Data)),
	)
	utils.RespondJSON(w, http.StatusOK, NewTurnResponse(session, result))
}
