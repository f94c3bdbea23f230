package chat

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNewTranscriptSeedsSystemMessage(t *testing.T) {
	tr := NewTranscript("")
	if tr.Len() != 1 {
		t.Fatalf("expected 1 message, got %d", tr.Len())
	}
	first, _ := tr.Last()
	if first.Role != RoleSystem {
		t.Fatalf("expected system role, got %s", first.Role)
	}
	if first.Content != DefaultInstructions {
		t.Fatalf("unexpected instructions: %s", first.Content)
	}
}

func TestAppendDoesNotMutateReceiver(t *testing.T) {
	base := NewTranscript("be brief")
	withUser := base.Append(UserMessage("سلام"))
	a := withUser.Append(AssistantMessage("وعلیکم السلام"))
	b := withUser.Append(AssistantMessage("ہیلو"))

	if base.Len() != 1 || withUser.Len() != 2 {
		t.Fatalf("receiver mutated: base=%d withUser=%d", base.Len(), withUser.Len())
	}
	lastA, _ := a.Last()
	lastB, _ := b.Last()
	if lastA.Content == lastB.Content {
		t.Fatalf("appends share backing array: %q", lastA.Content)
	}
}

func TestWindowKeepsSystemMessage(t *testing.T) {
	tr := NewTranscript("sys")
	for i := 0; i < 5; i++ {
		tr = tr.Append(UserMessage("u")).Append(AssistantMessage("a"))
	}

	window := tr.Window(3)
	if len(window) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(window))
	}
	if window[0].Role != RoleSystem {
		t.Fatalf("expected system message first, got %s", window[0].Role)
	}
	if got := tr.Window(0); len(got) != tr.Len() {
		t.Fatalf("unbounded window should return everything, got %d", len(got))
	}
}

func TestValidateRejectsBrokenTranscripts(t *testing.T) {
	cases := []struct {
		name     string
		messages []Message
		want     error
	}{
		{name: "empty", messages: nil, want: ErrEmptyTranscript},
		{name: "no system", messages: []Message{UserMessage("hi")}, want: ErrMissingSystem},
		{name: "second system", messages: []Message{SystemMessage("a"), SystemMessage("b")}, want: ErrMisplacedSystem},
		{name: "bad role", messages: []Message{SystemMessage("a"), {Role: "tool", Content: "x"}}, want: ErrInvalidRole},
	}

	for _, tc := range cases {
		if _, err := TranscriptFrom(tc.messages); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestSessionJSONRestoresTranscript(t *testing.T) {
	session := NewSession("abc", "sys")
	session.Transcript = session.Transcript.Append(UserMessage("سلام"))
	session.DedupKey = "digest"

	raw, err := json.Marshal(session)
	if err != nil {
		t.Fatalf("Marshal err: %v", err)
	}

	var restored Session
	if err := json.Unmarshal(raw, &restored); err != nil {
		t.Fatalf("Unmarshal err: %v", err)
	}
	if restored.Transcript.Len() != 2 {
		t.Fatalf("expected 2 messages, got %d", restored.Transcript.Len())
	}
	if restored.DedupKey != "digest" {
		t.Fatalf("dedup key lost: %q", restored.DedupKey)
	}
}

func TestSessionResetIsIdempotent(t *testing.T) {
	session := NewSession("abc", "sys")
	session.Transcript = session.Transcript.Append(UserMessage("x")).Append(AssistantMessage("y"))
	session.LastReply = "y"
	session.DedupKey = "k"

	once := session.Reset("")
	twice := once.Reset("")

	for _, s := range []Session{once, twice} {
		if s.Transcript.Len() != 1 {
			t.Fatalf("expected single system message, got %d", s.Transcript.Len())
		}
		if s.Transcript.Instructions() != "sys" {
			t.Fatalf("instructions changed: %q", s.Transcript.Instructions())
		}
		if s.LastReply != "" || s.DedupKey != "" || !s.LastAudio.Empty() {
			t.Fatalf("ephemeral fields not cleared: %+v", s)
		}
		if s.ID != "abc" {
			t.Fatalf("id changed: %s", s.ID)
		}
	}
}
