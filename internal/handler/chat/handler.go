package chat

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/urdu-voicebot/backend/internal/audio"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/handler/speech"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/logging"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/model/chat"
	chatService "github.com/zhouzirui/urdu-voicebot/backend/internal/service/chat"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/storage"
	"github.com/zhouzirui/urdu-voicebot/backend/pkg/utils"
)

const defaultTurnLimit = 50

// TurnLog 轮次审计日志的查询与清理
type TurnLog interface {
	ListTurns(ctx context.Context, sessionID string, limit int) ([]storage.TurnEntry, error)
	DeleteSession(ctx context.Context, sessionID string) (int64, error)
}

// Handler 会话管理的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	turns   TurnLog
	log     *zap.Logger
}

// New 创建会话处理器，turns 为空时不提供轮次日志
func New(chatSvc *chatService.Service, turns TurnLog) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		turns:   turns,
		log:     logging.Component("chat-handler"),
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Get("/session/{sessionID}", h.handleGetSession)
	r.Delete("/session/{sessionID}", h.handleDeleteSession)
	r.Delete("/session/{sessionID}/history", h.handleResetSession)
	r.Get("/session/{sessionID}/audio", h.handleLastAudio)
	r.Get("/session/{sessionID}/turns", h.handleListTurns)
}

type sessionView struct {
	ID          string         `json:"id"`
	Transcript  []chat.Message `json:"transcript"`
	LastReply   string         `json:"lastReply"`
	HasAudio    bool           `json:"hasAudio"`
	AudioFormat string         `json:"audioFormat,omitempty"`
}

func newSessionView(s chat.Session) sessionView {
	return sessionView{
		ID:          s.ID,
		Transcript:  s.Transcript.Messages(),
		LastReply:   s.LastReply,
		HasAudio:    !s.LastAudio.Empty(),
		AudioFormat: s.LastAudio.Format,
	}
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		h.log.Error("create session failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, newSessionView(session))
}

// handleGetSession 获取会话记录
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondLookupError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, newSessionView(session))
}

// handleDeleteSession 删除会话及其轮次日志，重复删除同样成功
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.chatSvc.DeleteSession(r.Context(), sessionID); err != nil {
		h.respondLookupError(w, err)
		return
	}

	var removed int64
	if h.turns != nil {
		n, err := h.turns.DeleteSession(r.Context(), sessionID)
		if err != nil {
			h.log.Error("delete turns failed", zap.String("session_id", sessionID), zap.Error(err))
			utils.RespondError(w, http.StatusInternalServerError, "failed to delete turn log")
			return
		}
		removed = n
	}

	h.log.Info("session deleted", zap.String("session_id", sessionID), zap.Int64("turns", removed))
	utils.RespondJSON(w, http.StatusOK, map[string]any{"sessionId": sessionID, "deletedTurns": removed})
}

// handleResetSession 清空对话，仅保留系统消息
func (h *Handler) handleResetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.ResetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondLookupError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, newSessionView(session))
}

// handleLastAudio 返回最近一次回复的音频
func (h *Handler) handleLastAudio(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondLookupError(w, err)
		return
	}
	if session.LastAudio.Empty() {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	data := session.LastAudio.Data
	w.Header().Set("Content-Type", audio.ContentType(session.LastAudio.Format))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.log.Debug("failed to write audio response", zap.Error(err))
	}
}

// handleListTurns 查询轮次审计日志
func (h *Handler) handleListTurns(w http.ResponseWriter, r *http.Request) {
	if h.turns == nil {
		utils.RespondError(w, http.StatusNotImplemented, "turn log disabled")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	limit := defaultTurnLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, err := h.turns.ListTurns(r.Context(), sessionID, limit)
	if err != nil {
		h.log.Error("list turns failed", zap.String("session_id", sessionID), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to list turns")
		return
	}
	if entries == nil {
		entries = []storage.TurnEntry{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"sessionId": sessionID, "turns": entries})
}

func (h *Handler) respondLookupError(w http.ResponseWriter, err error) {
	status := speech.StatusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("session lookup failed", zap.Error(err))
		utils.RespondError(w, status, "session lookup failed")
		return
	}
	utils.RespondError(w, status, err.Error())
}
