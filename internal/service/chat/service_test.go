package chat_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	model "github.com/zhouzirui/urdu-voicebot/backend/internal/model/chat"
	chat "github.com/zhouzirui/urdu-voicebot/backend/internal/service/chat"
)

func TestServiceGetSession(t *testing.T) {
	svc := chat.NewService(chat.NewMemoryStore(), "")
	ctx := context.Background()

	session, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	got, err := svc.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}

	if got.ID != session.ID {
		t.Fatalf("unexpected session ID: got %s want %s", got.ID, session.ID)
	}
	if got.Transcript.Len() != 1 {
		t.Fatalf("new session should hold only the system message, got %d", got.Transcript.Len())
	}
	if got.Transcript.Instructions() != model.DefaultInstructions {
		t.Fatalf("unexpected instructions: %q", got.Transcript.Instructions())
	}
}

func TestServiceGetSessionNotFound(t *testing.T) {
	svc := chat.NewService(chat.NewMemoryStore(), "")
	ctx := context.Background()

	if _, err := svc.GetSession(ctx, "missing"); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.GetSession(ctx, ""); !errors.Is(err, chat.ErrSessionIDMissing) {
		t.Fatalf("expected ErrSessionIDMissing, got %v", err)
	}
}

func TestServiceUpdateDiscardsOnError(t *testing.T) {
	svc := chat.NewService(chat.NewMemoryStore(), "be brief")
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx)
	boom := errors.New("boom")

	_, err := svc.Update(ctx, session.ID, func(s model.Session) (model.Session, error) {
		s.Transcript = s.Transcript.Append(model.UserMessage("ignored"))
		return s, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := svc.GetSession(ctx, session.ID)
	if got.Transcript.Len() != 1 {
		t.Fatalf("failed update must not be saved, got %d messages", got.Transcript.Len())
	}
}

func TestServiceUpdateSerializesWriters(t *testing.T) {
	svc := chat.NewService(chat.NewMemoryStore(), "")
	ctx := context.Background()
	session, _ := svc.CreateSession(ctx)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Update(ctx, session.ID, func(s model.Session) (model.Session, error) {
				s.Transcript = s.Transcript.Append(model.UserMessage("hi"))
				return s, nil
			})
			if err != nil {
				t.Errorf("Update err: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := svc.GetSession(ctx, session.ID)
	if got.Transcript.Len() != writers+1 {
		t.Fatalf("lost updates: got %d messages want %d", got.Transcript.Len(), writers+1)
	}
}

func TestServiceResetSession(t *testing.T) {
	svc := chat.NewService(chat.NewMemoryStore(), "")
	ctx := context.Background()
	session, _ := svc.CreateSession(ctx)

	_, err := svc.Update(ctx, session.ID, func(s model.Session) (model.Session, error) {
		s.Transcript = s.Transcript.Append(model.UserMessage("سلام"))
		s.Transcript = s.Transcript.Append(model.AssistantMessage("وعلیکم السلام"))
		s.LastReply = "وعلیکم السلام"
		s.LastAudio = model.Audio{Data: []byte{1, 2, 3}, Format: "mp3"}
		s.DedupKey = "abc"
		return s, nil
	})
	if err != nil {
		t.Fatalf("Update err: %v", err)
	}

	for i := 0; i < 2; i++ {
		reset, err := svc.ResetSession(ctx, session.ID)
		if err != nil {
			t.Fatalf("ResetSession err: %v", err)
		}
		if reset.Transcript.Len() != 1 || reset.LastReply != "" || !reset.LastAudio.Empty() || reset.DedupKey != "" {
			t.Fatalf("reset #%d left state behind: %+v", i+1, reset)
		}
		if reset.ID != session.ID {
			t.Fatalf("reset changed session id")
		}
	}
}

func TestServiceDeleteSession(t *testing.T) {
	store := chat.NewMemoryStore()
	svc := chat.NewService(store, "")
	ctx := context.Background()
	session, _ := svc.CreateSession(ctx)

	if err := svc.DeleteSession(ctx, session.ID); err != nil {
		t.Fatalf("DeleteSession err: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d", store.Len())
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := chat.NewMemoryStore()
	ctx := context.Background()

	session := model.NewSession("s1", "")
	session.LastAudio = model.Audio{Data: []byte{1, 2, 3}, Format: "mp3"}
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("Save err: %v", err)
	}

	loaded, _ := store.Load(ctx, "s1")
	loaded.LastAudio.Data[0] = 9

	again, _ := store.Load(ctx, "s1")
	if again.LastAudio.Data[0] != 1 {
		t.Fatal("store leaked its audio buffer")
	}
}
