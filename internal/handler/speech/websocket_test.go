package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type wsEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type wsData struct {
	Type       string          `json:"type"`
	Turn       TurnResponse    `json:"turn"`
	Transcript json.RawMessage `json:"transcript"`
	Message    string          `json:"message"`
}

func dialVoice(t *testing.T, server *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/voice/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

// readUntil returns the first message whose envelope and data types match.
func readUntil(t *testing.T, conn *websocket.Conn, envelope, dataType string) wsData {
	t.Helper()
	for i := 0; i < 10; i++ {
		var msg wsEnvelope
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read err: %v", err)
		}
		var data wsData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			t.Fatalf("decode data err: %v", err)
		}
		if msg.Type == envelope && (dataType == "" || data.Type == dataType) {
			return data
		}
	}
	t.Fatalf("no %s/%s message received", envelope, dataType)
	return wsData{}
}

func TestWebSocketProcessesBufferedChunks(t *testing.T) {
	env := newTestEnv(t)
	session, _ := env.sessions.CreateSession(context.Background())
	server := httptest.NewServer(env.router(0))
	defer server.Close()

	conn := dialVoice(t, server, session.ID)
	readUntil(t, conn, "result", "connected")

	data := wavBytes(7)
	half := len(data) / 2
	chunks := []AudioMessage{
		{AudioData: data[:half], Format: "wav", ChunkIndex: 0},
		{AudioData: data[half:], Format: "wav", ChunkIndex: 1, IsFinal: true},
	}
	for _, chunk := range chunks {
		payload, _ := json.Marshal(chunk)
		if err := conn.WriteJSON(inboundMessage{Type: "audio", Data: payload}); err != nil {
			t.Fatalf("write err: %v", err)
		}
	}

	got := readUntil(t, conn, "result", "turn")
	if got.Turn.ReplyText != replyText {
		t.Fatalf("unexpected reply %q", got.Turn.ReplyText)
	}
	if len(got.Turn.Transcript) != 3 {
		t.Fatalf("expected 3 transcript messages, got %d", len(got.Turn.Transcript))
	}
}

func TestWebSocketResetAndUnsupported(t *testing.T) {
	env := newTestEnv(t)
	session, _ := env.sessions.CreateSession(context.Background())
	server := httptest.NewServer(env.router(0))
	defer server.Close()

	conn := dialVoice(t, server, session.ID)
	readUntil(t, conn, "result", "connected")

	if err := conn.WriteJSON(inboundMessage{Type: "text"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	if got := readUntil(t, conn, "error", ""); !strings.Contains(got.Message, "unsupported") {
		t.Fatalf("unexpected error message %q", got.Message)
	}

	if err := conn.WriteJSON(inboundMessage{Type: "reset"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	got := readUntil(t, conn, "result", "reset")
	var transcript []json.RawMessage
	if err := json.Unmarshal(got.Transcript, &transcript); err != nil {
		t.Fatalf("decode transcript err: %v", err)
	}
	if len(transcript) != 1 {
		t.Fatalf("expected only the system message, got %d", len(transcript))
	}
}

func TestWebSocketRejectsUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.router(0))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/voice/ws/missing"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 handshake response, got %+v", resp)
	}
}
