package chat

import (
	"context"
	"sync"

	"github.com/zhouzirui/urdu-voicebot/backend/internal/model/chat"
)

// MemoryStore keeps sessions in process memory, suitable for a single instance.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]chat.Session)}
}

// Load returns a copy of the stored session.
func (m *MemoryStore) Load(_ context.Context, id string) (chat.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return cloneSession(session), nil
}

// Save stores a copy of the session.
func (m *MemoryStore) Save(_ context.Context, session chat.Session) error {
	if session.ID == "" {
		return ErrSessionIDMissing
	}

	m.mu.Lock()
	m.sessions[session.ID] = cloneSession(session)
	m.mu.Unlock()
	return nil
}

// Delete removes the session if present.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore) Close() error {
	return nil
}

// Transcript values are copy-on-append already; only the audio buffer is shared.
func cloneSession(s chat.Session) chat.Session {
	s.LastAudio.Data = append([]byte(nil), s.LastAudio.Data...)
	return s
}
