package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
)

type parserFake struct {
	filter domain.ParsedFilter
	err    error

	calls int
	query string
	now   time.Time
}

func (f *parserFake) Parse(_ context.Context, query string, now time.Time) (domain.ParsedFilter, error) {
	f.calls++
	f.query = query
	f.now = now
	if f.err != nil {
		return domain.ParsedFilter{}, f.err
	}
	return f.filter, nil
}

// embedderFake returns the vector registered for a text, or fallback.
type embedderFake struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	fallback []float32
	failOn   map[string]error

	calls []string
}

func (f *embedderFake) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if err, ok := f.failOn[text]; ok {
		return nil, err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	if f.fallback == nil {
		return nil, errors.New("no vector for text")
	}
	return f.fallback, nil
}

func (f *embedderFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type lockerFake struct {
	err      error
	acquired []string
	released int
}

func (f *lockerFake) Acquire(_ context.Context, userID string) (func(context.Context) error, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.acquired = append(f.acquired, userID)
	return func(context.Context) error {
		f.released++
		return nil
	}, nil
}

type queueFake struct {
	err       error
	published []domain.BackfillRequest
}

func (f *queueFake) PublishBackfillRequested(_ context.Context, req domain.BackfillRequest) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, req)
	return nil
}

func (f *queueFake) SubscribeBackfillRequested(context.Context, func(context.Context, domain.BackfillRequest) error) error {
	return nil
}
