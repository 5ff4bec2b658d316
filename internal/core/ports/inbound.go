package ports

import (
	"context"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
)

// EmailSearcher is the inbound contract for natural-language and keyword search.
type EmailSearcher interface {
	SmartSearch(ctx context.Context, userID, query string) (*domain.SearchResult, error)
	KeywordSearch(ctx context.Context, userID, keyword string) (*domain.SearchResult, error)
}

// EmbeddingBackfiller is the inbound contract for embedding maintenance.
type EmbeddingBackfiller interface {
	GenerateMissing(ctx context.Context, userID string, batchSize int) (domain.BackfillReport, error)
	EmbedMessage(ctx context.Context, userID, messageID string) error
	ResetEmbedding(ctx context.Context, userID, messageID string) error
}

// BucketManager is the inbound contract for bucket CRUD.
type BucketManager interface {
	ListBuckets(ctx context.Context, userID string) ([]domain.Bucket, error)
	CreateBucket(ctx context.Context, userID string, input domain.BucketPatch) (*domain.Bucket, error)
	UpdateBucket(ctx context.Context, userID, bucketID string, patch domain.BucketPatch) (*domain.Bucket, error)
	DeleteBucket(ctx context.Context, userID, bucketID string) (domain.BucketDeletion, error)
	EnsureDefaults(ctx context.Context, userID string) error
}

// MessageManager is the inbound contract for message import, browsing and
// reassignment.
type MessageManager interface {
	Import(ctx context.Context, userID string, messages []domain.MessageImport) (domain.ImportReport, error)
	List(ctx context.Context, userID, bucketID string, limit, offset int) (domain.MessagePage, error)
	Get(ctx context.Context, userID, messageID string) (*domain.Message, error)
	AssignBucket(ctx context.Context, userID, messageID string, bucketID *string) (*domain.Message, error)
}

// InsightsProvider is the inbound contract for mailbox analytics.
type InsightsProvider interface {
	Insights(ctx context.Context, userID string) (*domain.Insights, error)
}
