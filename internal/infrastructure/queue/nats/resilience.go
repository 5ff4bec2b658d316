package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
	"github.com/kirillkom/inbox-triage/internal/infrastructure/resilience"
)

// Connection states in which a backfill request may go through on retry.
var transientPublishErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
	nats.ErrConnectionReconnecting,
}

// Failures that no retry will fix: the request or the configured subject is
// refused by the server, or the connection is shutting down.
var rejectedPublishErrors = []error{
	nats.ErrMaxPayload,
	nats.ErrBadSubject,
	nats.ErrConnectionDraining,
}

func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), isAny(err, rejectedPublishErrors):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err), isAny(err, transientPublishErrors):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// publishError describes a backfill request that could not be queued. When
// the broker is unreachable the request is reported as provider unavailable
// so importers can leave the backlog to the next explicit backfill.
func publishError(req domain.BackfillRequest, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrProviderUnavailable) {
		return err
	}
	operation := fmt.Sprintf("queue backfill for %s", req.UserID)
	if resilience.IsCircuitOpen(err) || isAny(err, transientPublishErrors) {
		return domain.WrapError(domain.ErrProviderUnavailable, operation, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
