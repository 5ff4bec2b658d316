package lock

import (
	"context"
	"errors"
	"sync"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
)

// LocalLocker guards backfills within one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) Acquire(_ context.Context, userID string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[userID]; busy {
		return nil, domain.WrapError(domain.ErrConflict, "acquire backfill lease", errors.New("backfill already running"))
	}
	l.held[userID] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, userID)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
