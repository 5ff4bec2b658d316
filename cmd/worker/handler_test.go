package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
)

type recordingMetrics struct {
	started  int
	finished []error
	lags     int
}

func (m *recordingMetrics) StartBackfill() { m.started++ }
func (m *recordingMetrics) FinishBackfill(_ string, _ time.Duration, _ domain.BackfillReport, err error) {
	m.finished = append(m.finished, err)
}
func (m *recordingMetrics) ObserveQueueLag(string, time.Duration) { m.lags++ }

type scriptedBackfiller struct {
	err       error
	lastUser  string
	lastBatch int
}

func (b *scriptedBackfiller) GenerateMissing(_ context.Context, userID string, batchSize int) (domain.BackfillReport, error) {
	b.lastUser, b.lastBatch = userID, batchSize
	return domain.BackfillReport{Processed: 1}, b.err
}
func (b *scriptedBackfiller) EmbedMessage(context.Context, string, string) error   { return nil }
func (b *scriptedBackfiller) ResetEmbedding(context.Context, string, string) error { return nil }

func TestBackfillHandlerRunsRequest(t *testing.T) {
	backfiller := &scriptedBackfiller{}
	m := &recordingMetrics{}
	handler := newBackfillHandler(backfiller, m, time.Second)

	err := handler(context.Background(), domain.BackfillRequest{UserID: "u-1", BatchSize: 50, RequestedAt: time.Now()})
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if backfiller.lastUser != "u-1" || backfiller.lastBatch != 50 {
		t.Fatalf("unexpected run user=%q batch=%d", backfiller.lastUser, backfiller.lastBatch)
	}
	if m.started != 1 || len(m.finished) != 1 || m.lags != 1 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestBackfillHandlerSkipsHeldLease(t *testing.T) {
	backfiller := &scriptedBackfiller{err: domain.WrapError(domain.ErrConflict, "acquire", errors.New("held"))}
	m := &recordingMetrics{}
	handler := newBackfillHandler(backfiller, m, time.Second)

	if err := handler(context.Background(), domain.BackfillRequest{UserID: "u-1"}); err != nil {
		t.Fatalf("held lease must not fail the request, got %v", err)
	}
	if m.lags != 0 {
		t.Fatalf("no lag without a request time")
	}
}

func TestBackfillHandlerPropagatesFailures(t *testing.T) {
	backfiller := &scriptedBackfiller{err: domain.WrapError(domain.ErrProviderUnavailable, "embed", errors.New("down"))}
	handler := newBackfillHandler(backfiller, &recordingMetrics{}, time.Second)

	err := handler(context.Background(), domain.BackfillRequest{UserID: "u-1"})
	if !domain.IsKind(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected provider error, got %v", err)
	}
}
