package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/zhouzirui/urdu-voicebot/backend/internal/model/chat"
)

// TurnEntry 一条轮次记录，不含音频内容
type TurnEntry struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	Digest      string    `json:"digest"`
	UserText    string    `json:"userText"`
	ReplyText   string    `json:"replyText"`
	Failure     string    `json:"failure,omitempty"`
	AudioFormat string    `json:"audioFormat,omitempty"`
	AudioBytes  int       `json:"audioBytes"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TurnLog 轮次审计日志
type TurnLog struct {
	db *Database
}

func NewTurnLog(db *Database) *TurnLog {
	return &TurnLog{db: db}
}

// RecordTurn stores one processed turn.
func (l *TurnLog) RecordTurn(ctx context.Context, sessionID string, t chat.Turn) error {
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := l.db.DB().ExecContext(ctx, `
		INSERT INTO turns (
			id, session_id, digest, user_text, reply_text,
			failure, audio_format, audio_bytes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, sessionID, t.Digest, t.UserText, t.ReplyText,
		t.Failure, t.Audio.Format, len(t.Audio.Data), createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}
	return nil
}

// ListTurns returns a session's turns oldest first. limit <= 0 returns all.
func (l *TurnLog) ListTurns(ctx context.Context, sessionID string, limit int) ([]TurnEntry, error) {
	query := `
		SELECT id, session_id, digest, user_text, reply_text,
		       failure, audio_format, audio_bytes, created_at
		FROM turns WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := l.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var entries []TurnEntry
	for rows.Next() {
		var e TurnEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Digest, &e.UserText, &e.ReplyText,
			&e.Failure, &e.AudioFormat, &e.AudioBytes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteSession removes every turn of a session.
func (l *TurnLog) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	res, err := l.db.DB().ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete turns: %w", err)
	}
	return res.RowsAffected()
}
