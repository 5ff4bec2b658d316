package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
	"github.com/kirillkom/inbox-triage/internal/core/ports"
)

const (
	defaultBackfillBatch = 100
	maxBackfillBatch     = 500
)

type BackfillUseCase struct {
	messages     ports.MessageStore
	embedder     ports.Embedder
	locker       ports.BackfillLocker
	defaultBatch int
}

// NewBackfillUseCase builds the embedding backfill. locker may be nil, in
// which case runs for the same user are not serialized.
func NewBackfillUseCase(
	messages ports.MessageStore,
	embedder ports.Embedder,
	locker ports.BackfillLocker,
	defaultBatch int,
) *BackfillUseCase {
	if defaultBatch <= 0 {
		defaultBatch = defaultBackfillBatch
	}
	return &BackfillUseCase{
		messages:     messages,
		embedder:     embedder,
		locker:       locker,
		defaultBatch: defaultBatch,
	}
}

// GenerateMissing embeds up to batchSize of the user's messages that have no
// embedding yet, oldest first. A message that fails is logged, counted and
// marked failed; it stays in the backlog but is retried only after every
// message that has not failed yet, so it cannot hold up the rest.
func (uc *BackfillUseCase) GenerateMissing(ctx context.Context, userID string, batchSize int) (domain.BackfillReport, error) {
	var report domain.BackfillReport
	if strings.TrimSpace(userID) == "" {
		return report, domain.WrapError(domain.ErrUnauthorized, "generate embeddings", errors.New("user id is required"))
	}
	if batchSize <= 0 {
		batchSize = uc.defaultBatch
	}
	if batchSize > maxBackfillBatch {
		return report, domain.WrapError(domain.ErrInvalidInput, "generate embeddings", fmt.Errorf("batch size must be at most %d", maxBackfillBatch))
	}

	if uc.locker != nil {
		release, err := uc.locker.Acquire(ctx, userID)
		if err != nil {
			return report, fmt.Errorf("acquire backfill lease: %w", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn().Err(err).Str("user_id", userID).Msg("backfill_lease_release_failed")
			}
		}()
	}

	pending, err := uc.messages.ListMissingEmbeddings(ctx, userID, batchSize)
	if err != nil {
		return report, fmt.Errorf("list missing embeddings: %w", err)
	}

	for _, msg := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		written, err := uc.embed(ctx, userID, msg)
		if err != nil {
			report.Failed++
			log.Warn().
				Err(err).
				Str("user_id", userID).
				Str("message_id", msg.ID).
				Msg("backfill_message_failed")
			if ctx.Err() == nil {
				if markErr := uc.messages.MarkEmbeddingFailed(ctx, userID, msg.ID); markErr != nil {
					log.Warn().Err(markErr).Str("message_id", msg.ID).Msg("backfill_mark_failed_error")
				}
			}
			continue
		}
		if written {
			report.Processed++
		}
	}

	remaining, err := uc.messages.CountMissingEmbeddings(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("count missing embeddings: %w", err)
	}
	report.Remaining = remaining

	log.Info().
		Str("user_id", userID).
		Int("batch_size", batchSize).
		Int("processed", report.Processed).
		Int("failed", report.Failed).
		Int("remaining", report.Remaining).
		Msg("embedding_backfill")
	return report, nil
}

// EmbedMessage computes the embedding of a single message. A message that is
// already embedded is a conflict.
func (uc *BackfillUseCase) EmbedMessage(ctx context.Context, userID, messageID string) error {
	msg, err := uc.messages.GetMessage(ctx, userID, messageID)
	if err != nil {
		return fmt.Errorf("get message: %w", err)
	}
	if msg.HasEmbedding() {
		return domain.WrapError(domain.ErrConflict, "embed message", errors.New("message already has an embedding"))
	}

	written, err := uc.embed(ctx, userID, *msg)
	if err != nil {
		return err
	}
	if !written {
		return domain.WrapError(domain.ErrConflict, "embed message", errors.New("embedding was written concurrently"))
	}
	return nil
}

// ResetEmbedding clears a message's embedding so the next backfill recomputes it.
func (uc *BackfillUseCase) ResetEmbedding(ctx context.Context, userID, messageID string) error {
	if err := uc.messages.ResetEmbedding(ctx, userID, messageID); err != nil {
		return fmt.Errorf("reset embedding: %w", err)
	}
	return nil
}

func (uc *BackfillUseCase) embed(ctx context.Context, userID string, msg domain.Message) (bool, error) {
	input := msg.EmbeddingInput()
	if input == "" {
		return false, domain.WrapError(domain.ErrInvalidInput, "embed message", errors.New("message has no text to embed"))
	}

	vector, err := uc.embedder.Embed(ctx, input)
	if err != nil {
		return false, fmt.Errorf("embed message: %w", err)
	}
	written, err := uc.messages.SetEmbedding(ctx, userID, msg.ID, vector)
	if err != nil {
		return false, fmt.Errorf("store embedding: %w", err)
	}
	return written, nil
}
