package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/urdu-voicebot/backend/internal/model/chat"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionIDMissing = errors.New("session id is required")
)

// Store persists session state. Implementations must return independent
// copies so callers never share mutable state with the backend.
type Store interface {
	Load(ctx context.Context, id string) (chat.Session, error)
	Save(ctx context.Context, session chat.Session) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Service 会话状态管理，每个会话同一时刻只有一个写入者
type Service struct {
	store        Store
	instructions string

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewService wires the session service to a backend store.
func NewService(store Store, instructions string) *Service {
	if instructions == "" {
		instructions = chat.DefaultInstructions
	}
	return &Service{
		store:        store,
		instructions: instructions,
		locks:        make(map[string]*sessionLock),
	}
}

// Instructions returns the system instructions new sessions are seeded with.
func (s *Service) Instructions() string {
	return s.instructions
}

// CreateSession provisions a fresh session seeded with the system message.
func (s *Service) CreateSession(ctx context.Context) (chat.Session, error) {
	session := chat.NewSession(uuid.NewString(), s.instructions)
	if err := s.store.Save(ctx, session); err != nil {
		return chat.Session{}, err
	}
	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(ctx context.Context, id string) (chat.Session, error) {
	if id == "" {
		return chat.Session{}, ErrSessionIDMissing
	}
	return s.store.Load(ctx, id)
}

// ResetSession restores the starting state: one system message, no
// ephemeral fields. Resetting an already clean session is a no-op in effect.
func (s *Service) ResetSession(ctx context.Context, id string) (chat.Session, error) {
	return s.Update(ctx, id, func(current chat.Session) (chat.Session, error) {
		return current.Reset(s.instructions), nil
	})
}

// DeleteSession drops the session entirely.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return ErrSessionIDMissing
	}
	unlock := s.lock(id)
	defer unlock()
	return s.store.Delete(ctx, id)
}

// Update loads the session, applies fn and saves the result while holding
// the per-session lock. When fn fails nothing is saved.
func (s *Service) Update(ctx context.Context, id string, fn func(chat.Session) (chat.Session, error)) (chat.Session, error) {
	if id == "" {
		return chat.Session{}, ErrSessionIDMissing
	}

	unlock := s.lock(id)
	defer unlock()

	current, err := s.store.Load(ctx, id)
	if err != nil {
		return chat.Session{}, err
	}

	next, err := fn(current)
	if err != nil {
		return current, err
	}

	next.ID = current.ID
	next.UpdatedAt = time.Now().UTC()
	if err := s.store.Save(ctx, next); err != nil {
		return current, err
	}
	return next, nil
}

// Close releases the backend.
func (s *Service) Close() error {
	return s.store.Close()
}

func (s *Service) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}
