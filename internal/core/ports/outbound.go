package ports

import (
	"context"
	"time"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
)

// MessageStore persists messages and answers every retrieval query. All
// methods are scoped to a single user.
type MessageStore interface {
	FindMessages(ctx context.Context, userID string, cond domain.MessageCondition, limit int) ([]domain.Message, error)
	// ListMessages pages through messages matching cond, newest first.
	ListMessages(ctx context.Context, userID string, cond domain.MessageCondition, limit, offset int) ([]domain.Message, error)
	CountMessages(ctx context.Context, userID string, cond domain.MessageCondition) (int, error)
	// ReceivedRange returns the oldest and newest received_at, both nil for an
	// empty mailbox.
	ReceivedRange(ctx context.Context, userID string) (oldest, newest *time.Time, err error)
	// TopSenders groups messages by sender address, falling back to the
	// display name, most frequent first.
	TopSenders(ctx context.Context, userID string, limit int) ([]domain.SenderCount, error)
	SearchKeyword(ctx context.Context, userID, keyword string, limit int) ([]domain.Message, error)
	CountEmbedded(ctx context.Context, userID string) (int, error)
	CountMissingEmbeddings(ctx context.Context, userID string) (int, error)
	// ListCandidateIDs returns ids of embedded messages matching cond, newest first.
	ListCandidateIDs(ctx context.Context, userID string, cond domain.MessageCondition, limit int) ([]string, error)
	// NearestNeighbors ranks embedded messages by cosine similarity to query.
	// A nil ids slice ranks all of the user's embedded messages.
	NearestNeighbors(ctx context.Context, userID string, query []float32, ids []string, limit int) ([]domain.SearchHit, error)
	// ListMissingEmbeddings returns messages without an embedding, oldest
	// first. Messages whose last attempt failed come after all others,
	// longest-failed first.
	ListMissingEmbeddings(ctx context.Context, userID string, limit int) ([]domain.Message, error)
	MarkEmbeddingFailed(ctx context.Context, userID, messageID string) error
	// SetEmbedding writes only when the message has no embedding yet and
	// reports whether a row was written.
	SetEmbedding(ctx context.Context, userID, messageID string, embedding []float32) (bool, error)
	ResetEmbedding(ctx context.Context, userID, messageID string) error
	GetMessage(ctx context.Context, userID, messageID string) (*domain.Message, error)
	UpsertMessages(ctx context.Context, userID string, messages []domain.MessageImport) (int, error)
	AssignBucket(ctx context.Context, userID, messageID string, bucketID *string) error
}

// BucketStore persists user-defined categories.
type BucketStore interface {
	FindBucketByName(ctx context.Context, userID, name string) (*domain.Bucket, error)
	GetBucket(ctx context.Context, userID, bucketID string) (*domain.Bucket, error)
	ListBuckets(ctx context.Context, userID string) ([]domain.Bucket, error)
	CreateBucket(ctx context.Context, bucket *domain.Bucket) error
	UpdateBucket(ctx context.Context, bucket *domain.Bucket) error
	// DeleteBucket detaches the bucket's messages and removes it, returning
	// how many messages were detached.
	DeleteBucket(ctx context.Context, userID, bucketID string) (int, error)
	EnsureDefaultBuckets(ctx context.Context, userID string, defaults []domain.Bucket) error
}

// Embedder maps text into the embedding space.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// QueryParser reads a free-text query into a ParsedFilter relative to now.
type QueryParser interface {
	Parse(ctx context.Context, query string, now time.Time) (domain.ParsedFilter, error)
}

// BackfillLocker keeps concurrent backfill runs for one user apart. Acquire
// returns domain.ErrConflict when another run holds the lease.
type BackfillLocker interface {
	Acquire(ctx context.Context, userID string) (release func(context.Context) error, err error)
}

// BackfillQueue publishes and consumes backfill requests.
type BackfillQueue interface {
	PublishBackfillRequested(ctx context.Context, req domain.BackfillRequest) error
	SubscribeBackfillRequested(ctx context.Context, handler func(context.Context, domain.BackfillRequest) error) error
}
