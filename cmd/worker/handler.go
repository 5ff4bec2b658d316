package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
	"github.com/kirillkom/inbox-triage/internal/core/ports"
)

type backfillMetrics interface {
	StartBackfill()
	FinishBackfill(service string, duration time.Duration, report domain.BackfillReport, err error)
	ObserveQueueLag(service string, lag time.Duration)
}

// newBackfillHandler runs one GenerateMissing per request. A run that finds
// the user's lease taken is skipped, not failed.
func newBackfillHandler(backfill ports.EmbeddingBackfiller, m backfillMetrics, timeout time.Duration) func(context.Context, domain.BackfillRequest) error {
	return func(ctx context.Context, req domain.BackfillRequest) error {
		if !req.RequestedAt.IsZero() {
			m.ObserveQueueLag(serviceName, time.Since(req.RequestedAt))
		}

		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		m.StartBackfill()
		start := time.Now()
		report, err := backfill.GenerateMissing(runCtx, req.UserID, req.BatchSize)
		m.FinishBackfill(serviceName, time.Since(start), report, err)

		switch {
		case domain.IsKind(err, domain.ErrConflict):
			log.Info().Str("user_id", req.UserID).Msg("backfill_skipped_lease_held")
			return nil
		case err != nil:
			return err
		}
		log.Info().
			Str("user_id", req.UserID).
			Int("processed", report.Processed).
			Int("failed", report.Failed).
			Int("remaining", report.Remaining).
			Msg("backfill_completed")
		return nil
	}
}
