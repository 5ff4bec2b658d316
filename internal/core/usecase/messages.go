package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
	"github.com/kirillkom/inbox-triage/internal/core/ports"
)

const (
	maxImportBatch  = 500
	defaultPageSize = 50
	maxPageSize     = 200
)

type MessageUseCase struct {
	messages  ports.MessageStore
	buckets   ports.BucketStore
	queue     ports.BackfillQueue
	syncBatch int
}

// NewMessageUseCase wires message import. queue may be nil; imports then
// leave embedding to an explicit backfill.
func NewMessageUseCase(
	messages ports.MessageStore,
	buckets ports.BucketStore,
	queue ports.BackfillQueue,
	syncBatch int,
) *MessageUseCase {
	if syncBatch <= 0 {
		syncBatch = 50
	}
	return &MessageUseCase{
		messages:  messages,
		buckets:   buckets,
		queue:     queue,
		syncBatch: syncBatch,
	}
}

// Import upserts messages by their external id and requests a backfill of
// the new ones.
func (uc *MessageUseCase) Import(ctx context.Context, userID string, messages []domain.MessageImport) (domain.ImportReport, error) {
	var report domain.ImportReport
	if len(messages) == 0 {
		return report, domain.WrapError(domain.ErrInvalidInput, "import messages", errors.New("no messages given"))
	}
	if len(messages) > maxImportBatch {
		return report, domain.WrapError(domain.ErrInvalidInput, "import messages", fmt.Errorf("at most %d messages per import", maxImportBatch))
	}

	cleaned := make([]domain.MessageImport, 0, len(messages))
	for idx, msg := range messages {
		msg.ExternalID = strings.TrimSpace(msg.ExternalID)
		if msg.ExternalID == "" {
			return report, domain.WrapError(domain.ErrInvalidInput, "import messages", fmt.Errorf("message %d: external_id is required", idx))
		}
		if msg.ReceivedAt.IsZero() {
			return report, domain.WrapError(domain.ErrInvalidInput, "import messages", fmt.Errorf("message %d: received_at is required", idx))
		}
		msg.Preview = domain.TruncateRunes(msg.Preview, domain.PreviewMaxRunes)
		cleaned = append(cleaned, msg)
	}

	imported, err := uc.messages.UpsertMessages(ctx, userID, cleaned)
	if err != nil {
		return report, fmt.Errorf("upsert messages: %w", err)
	}
	report.Imported = imported

	if uc.queue == nil {
		return report, nil
	}
	err = uc.queue.PublishBackfillRequested(ctx, domain.BackfillRequest{
		UserID:      userID,
		BatchSize:   uc.syncBatch,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("backfill_request_publish_failed")
		return report, nil
	}
	report.Queued = true
	return report, nil
}

// List pages through the user's messages, newest first, optionally only those
// in one bucket. A zero limit means the default page size.
func (uc *MessageUseCase) List(ctx context.Context, userID, bucketID string, limit, offset int) (domain.MessagePage, error) {
	page := domain.MessagePage{Emails: []domain.Message{}, Limit: limit, Offset: offset}
	if strings.TrimSpace(userID) == "" {
		return page, domain.WrapError(domain.ErrUnauthorized, "list messages", errors.New("user id is required"))
	}
	if limit == 0 {
		limit = defaultPageSize
		page.Limit = limit
	}
	if limit < 0 || limit > maxPageSize {
		return page, domain.WrapError(domain.ErrInvalidInput, "list messages", fmt.Errorf("limit must be between 1 and %d", maxPageSize))
	}
	if offset < 0 {
		return page, domain.WrapError(domain.ErrInvalidInput, "list messages", errors.New("offset must not be negative"))
	}

	cond := domain.MessageCondition{BucketID: bucketID}
	emails, err := uc.messages.ListMessages(ctx, userID, cond, limit, offset)
	if err != nil {
		return page, fmt.Errorf("list messages: %w", err)
	}
	total, err := uc.messages.CountMessages(ctx, userID, cond)
	if err != nil {
		return page, fmt.Errorf("count messages: %w", err)
	}
	page.Emails = emails
	page.Total = total
	return page, nil
}

// Get returns one message with its bucket.
func (uc *MessageUseCase) Get(ctx context.Context, userID, messageID string) (*domain.Message, error) {
	msg, err := uc.messages.GetMessage(ctx, userID, messageID)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// AssignBucket moves a message into a bucket of the same user; a nil bucket
// id leaves it unclassified.
func (uc *MessageUseCase) AssignBucket(ctx context.Context, userID, messageID string, bucketID *string) (*domain.Message, error) {
	if bucketID != nil {
		if _, err := uc.buckets.GetBucket(ctx, userID, *bucketID); err != nil {
			return nil, fmt.Errorf("get bucket: %w", err)
		}
	}
	if err := uc.messages.AssignBucket(ctx, userID, messageID, bucketID); err != nil {
		return nil, fmt.Errorf("assign bucket: %w", err)
	}
	msg, err := uc.messages.GetMessage(ctx, userID, messageID)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}
