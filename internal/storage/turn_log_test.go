package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/zhouzirui/urdu-voicebot/backend/internal/model/chat"
)

func openTestLog(t *testing.T) *TurnLog {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data", "turns.db"))
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewTurnLog(db)
}

func TestTurnLogRecordAndList(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	turns := []chat.Turn{
		{ID: "t1", Digest: "d1", UserText: "سلام", ReplyText: "وعلیکم السلام",
			Audio: chat.Audio{Data: []byte{1, 2, 3}, Format: "mp3"}, CreatedAt: base},
		{ID: "t2", Digest: "d2", Failure: "unintelligible", CreatedAt: base.Add(time.Second)},
	}
	for _, turn := range turns {
		if err := log.RecordTurn(ctx, "s1", turn); err != nil {
			t.Fatalf("RecordTurn err: %v", err)
		}
	}
	if err := log.RecordTurn(ctx, "s2", chat.Turn{ID: "t3", Digest: "d3"}); err != nil {
		t.Fatalf("RecordTurn err: %v", err)
	}

	entries, err := log.ListTurns(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("ListTurns err: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "t1" || entries[0].AudioBytes != 3 || entries[0].AudioFormat != "mp3" {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Failure != "unintelligible" {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
	if !entries[0].CreatedAt.Equal(base) {
		t.Fatalf("created_at not preserved: %v", entries[0].CreatedAt)
	}

	limited, _ := log.ListTurns(ctx, "s1", 1)
	if len(limited) != 1 {
		t.Fatalf("limit ignored, got %d", len(limited))
	}
}

func TestTurnLogDeleteSession(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := log.RecordTurn(ctx, "s1", chat.Turn{ID: id, Digest: id}); err != nil {
			t.Fatalf("RecordTurn err: %v", err)
		}
	}

	n, err := log.DeleteSession(ctx, "s1")
	if err != nil || n != 2 {
		t.Fatalf("DeleteSession = %d, %v", n, err)
	}
	entries, _ := log.ListTurns(ctx, "s1", 0)
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}
