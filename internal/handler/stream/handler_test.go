package stream

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/urdu-voicebot/backend/internal/audio"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/fault"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/model/chat"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/service/turn"
)

type fakeRunner struct {
	events []turn.Event
	result turn.Result
	err    error
}

func (f *fakeRunner) Run(_ context.Context, sessionID string, in turn.Input) (chat.Session, turn.Result, error) {
	if f.err != nil {
		return chat.Session{}, turn.Result{}, f.err
	}
	for _, ev := range f.events {
		in.Observe(ev)
	}
	return chat.NewSession(sessionID, ""), f.result, nil
}

func streamRequest(t *testing.T, data []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio", "capture.wav")
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	part.Write(data)
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/session/s1/turn/stream", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestStreamTurnEmitsStagesThenDone(t *testing.T) {
	runner := &fakeRunner{
		events: []turn.Event{
			{Stage: turn.StageTranscribed, Text: "سلام"},
			{Stage: turn.StageReplied, Text: "وعلیکم السلام"},
			{Stage: turn.StageSynthesized},
		},
		result: turn.Result{Turn: chat.Turn{UserText: "سلام", ReplyText: "وعلیکم السلام"}},
	}

	rr := serve(New(runner, 0), streamRequest(t, audio.EncodeWAV(make([]byte, 320), 16000, 1, 16)))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	body := rr.Body.String()
	order := []string{"event: transcribed", "event: replied", "event: synthesized", "event: done"}
	last := -1
	for _, marker := range order {
		idx := strings.Index(body, marker)
		if idx <= last {
			t.Fatalf("expected %q after previous events in %s", marker, body)
		}
		last = idx
	}
}

func TestStreamTurnFailureEvent(t *testing.T) {
	runner := &fakeRunner{
		events: []turn.Event{{Stage: turn.StageFailed, Kind: fault.Unintelligible, Notice: fault.Notice(fault.Unintelligible)}},
		result: turn.Result{Failure: &turn.Failure{Kind: fault.Unintelligible, Notice: fault.Notice(fault.Unintelligible)}},
	}

	rr := serve(New(runner, 0), streamRequest(t, []byte("RIFF....")))

	body := rr.Body.String()
	if !strings.Contains(body, "event: failed") || !strings.Contains(body, `"kind":"unintelligible"`) {
		t.Fatalf("missing failure event in %s", body)
	}
}

func TestStreamTurnValidationUsesJSONErrors(t *testing.T) {
	rr := serve(New(&fakeRunner{}, 0), streamRequest(t, nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty capture, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected JSON error, got %q", ct)
	}
}
