package turn

import (
	"context"
	"errors"

	"github.com/zhouzirui/urdu-voicebot/backend/internal/model/chat"
)

// Sessions 会话读写，Update 需保证同一会话串行执行
type Sessions interface {
	Update(ctx context.Context, id string, fn func(chat.Session) (chat.Session, error)) (chat.Session, error)
}

var errSkipped = errors.New("duplicate capture")

// Runner applies turns to stored sessions.
type Runner struct {
	sessions Sessions
	manager  *Manager
}

func NewRunner(sessions Sessions, manager *Manager) *Runner {
	return &Runner{sessions: sessions, manager: manager}
}

// Run processes in against the session stored under id and saves the
// outcome. Skipped captures leave the stored session untouched. The turn
// log only sees turns whose session was saved.
func (r *Runner) Run(ctx context.Context, id string, in Input) (chat.Session, Result, error) {
	var result Result
	next, err := r.sessions.Update(ctx, id, func(current chat.Session) (chat.Session, error) {
		updated, res, err := r.manager.Process(ctx, current, in)
		if err != nil {
			return current, err
		}
		result = res
		if res.Skipped {
			return current, errSkipped
		}
		return updated, nil
	})
	if errors.Is(err, errSkipped) {
		return next, result, nil
	}
	if err != nil {
		return next, result, err
	}

	r.manager.Record(ctx, next.ID, result)
	return next, result, nil
}
