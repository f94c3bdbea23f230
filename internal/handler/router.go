package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/urdu-voicebot/backend/internal/handler/chat"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/handler/speech"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/urdu-voicebot/backend/internal/middleware"
	chatService "github.com/zhouzirui/urdu-voicebot/backend/internal/service/chat"
	"github.com/zhouzirui/urdu-voicebot/backend/pkg/utils"
)

// Deps 路由依赖
type Deps struct {
	Chat          *chatService.Service
	Turns         speech.TurnRunner
	TurnLog       chat.TurnLog // nil disables GET /session/{id}/turns
	MaxAudioBytes int64
	Transcriber   string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chat.New(deps.Chat, deps.TurnLog)
	speechHandler := speech.New(deps.Turns, deps.MaxAudioBytes)
	streamHandler := stream.New(deps.Turns, deps.MaxAudioBytes)
	wsHandler := speech.NewWebSocketHandler(deps.Turns, deps.Chat, deps.MaxAudioBytes)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{
				"status":      "healthy",
				"transcriber": deps.Transcriber,
			})
		})

		chatHandler.RegisterRoutes(api)
		speechHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		wsHandler.RegisterWebSocketRoutes(api)
	})

	return r
}
