package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zhouzirui/urdu-voicebot/backend/internal/model/chat"
	chatService "github.com/zhouzirui/urdu-voicebot/backend/internal/service/chat"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/service/turn"
)

type noopRunner struct{}

func (noopRunner) Run(_ context.Context, id string, _ turn.Input) (chat.Session, turn.Result, error) {
	return chat.Session{ID: id}, turn.Result{}, nil
}

func newTestRouter() http.Handler {
	return NewRouter(Deps{
		Chat:        chatService.NewService(chatService.NewMemoryStore(), ""),
		Turns:       noopRunner{},
		Transcriber: "google",
	})
}

func TestHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body["status"] != "healthy" || body["transcriber"] != "google" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestRoutesMountedUnderAPI(t *testing.T) {
	router := newTestRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/session", nil))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 from /api/session, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected CORS headers")
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/session/missing/turns", nil))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 with turn log disabled, got %d", rr.Code)
	}
}
