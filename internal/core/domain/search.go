package domain

import "time"

type Strategy string

const (
	StrategyStructured Strategy = "structured"
	StrategyVector     Strategy = "vector"
	StrategyHybrid     Strategy = "hybrid"
	StrategyKeyword    Strategy = "keyword"
	StrategyRecent     Strategy = "recent"
)

// Timeframe is a closed interval; either bound may be absent.
type Timeframe struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

func (t *Timeframe) IsZero() bool {
	return t == nil || (t.Start == nil && t.End == nil)
}

// ParsedFilter is the structured reading of a free-text query. Empty strings
// mean the dimension was not mentioned.
type ParsedFilter struct {
	Topic         string     `json:"topic,omitempty"`
	Timeframe     *Timeframe `json:"timeframe,omitempty"`
	Sender        string     `json:"sender,omitempty"`
	Bucket        string     `json:"bucket,omitempty"`
	HasAttachment *bool      `json:"has_attachment,omitempty"`
}

// MessageCondition is the conjunctive relational filter shared by the
// structured and hybrid retrievers.
type MessageCondition struct {
	ReceivedFrom *time.Time
	ReceivedTo   *time.Time
	Sender       string
	BucketID     string
}

type SearchHit struct {
	Message
	Similarity *float64 `json:"similarity,omitempty"`
}

type SearchResult struct {
	Emails     []SearchHit  `json:"emails"`
	TotalCount int          `json:"total_count"`
	Strategy   Strategy     `json:"strategy"`
	Query      string       `json:"query,omitempty"`
	Filters    ParsedFilter `json:"filters"`
}

type BackfillReport struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

// SearchLimits bounds every retrieval tier.
type SearchLimits struct {
	PageSize            int
	VectorCandidates    int
	HybridCandidates    int
	HybridRerankLimit   int
	DisplayLimit        int
	SimilarityThreshold float64
}

func DefaultSearchLimits() SearchLimits {
	return SearchLimits{
		PageSize:            50,
		VectorCandidates:    50,
		HybridCandidates:    200,
		HybridRerankLimit:   50,
		DisplayLimit:        50,
		SimilarityThreshold: 0.3,
	}
}

// BackfillRequest asks the worker to embed a user's pending messages.
type BackfillRequest struct {
	UserID      string    `json:"user_id"`
	BatchSize   int       `json:"batch_size"`
	RequestedAt time.Time `json:"requested_at"`
}
