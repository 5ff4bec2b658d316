package domain

import "time"

// Insights summarises a user's mailbox: how much of it is searchable by
// meaning, how it is classified and who writes most.
type Insights struct {
	TotalEmails         int                 `json:"total_emails"`
	OldestEmail         *time.Time          `json:"oldest_email"`
	NewestEmail         *time.Time          `json:"newest_email"`
	EmbeddingCoverage   EmbeddingCoverage   `json:"embedding_coverage"`
	BucketBreakdown     []BucketCount       `json:"bucket_breakdown"`
	TopSenders          []SenderCount       `json:"top_senders"`
	ClassificationStats ClassificationStats `json:"classification_stats"`
}

type EmbeddingCoverage struct {
	Total          int `json:"total"`
	WithEmbeddings int `json:"with_embeddings"`
	Percentage     int `json:"percentage"`
	Remaining      int `json:"remaining"`
}

// BucketCount is one slice of the bucket breakdown. BucketID is nil for the
// unclassified slice.
type BucketCount struct {
	BucketID *string `json:"bucket_id"`
	Name     string  `json:"name"`
	Color    string  `json:"color"`
	Count    int     `json:"count"`
}

type SenderCount struct {
	Sender string `json:"sender"`
	Count  int    `json:"count"`
}

type ClassificationStats struct {
	Total              int `json:"total"`
	Classified         int `json:"classified"`
	Unclassified       int `json:"unclassified"`
	ClassificationRate int `json:"classification_rate"`
}

const UnclassifiedBucketName = "Unclassified"
