package usecase

import (
	"context"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
	"github.com/kirillkom/inbox-triage/internal/core/ports"
)

type structuredRetriever struct {
	messages ports.MessageStore
	buckets  ports.BucketStore
	limit    int
}

func (r structuredRetriever) strategy() domain.Strategy { return domain.StrategyStructured }

func (r structuredRetriever) retrieve(ctx context.Context, userID string, filter domain.ParsedFilter) ([]domain.SearchHit, bool, error) {
	cond, err := resolveCondition(ctx, r.buckets, userID, filter)
	if err != nil {
		return nil, false, err
	}
	messages, err := r.messages.FindMessages(ctx, userID, cond, r.limit)
	if err != nil {
		return nil, false, err
	}
	return hitsFromMessages(messages), true, nil
}

type keywordRetriever struct {
	messages ports.MessageStore
	limit    int
}

func (r keywordRetriever) strategy() domain.Strategy { return domain.StrategyKeyword }

// retrieve matches the topic text as a case-insensitive substring. Its result
// is always accepted, even when empty.
func (r keywordRetriever) retrieve(ctx context.Context, userID string, filter domain.ParsedFilter) ([]domain.SearchHit, bool, error) {
	messages, err := r.messages.SearchKeyword(ctx, userID, filter.Topic, r.limit)
	if err != nil {
		return nil, false, err
	}
	return hitsFromMessages(messages), true, nil
}

type recentRetriever struct {
	messages ports.MessageStore
	limit    int
}

func (r recentRetriever) strategy() domain.Strategy { return domain.StrategyRecent }

func (r recentRetriever) retrieve(ctx context.Context, userID string, _ domain.ParsedFilter) ([]domain.SearchHit, bool, error) {
	messages, err := r.messages.FindMessages(ctx, userID, domain.MessageCondition{}, r.limit)
	if err != nil {
		return nil, false, err
	}
	return hitsFromMessages(messages), true, nil
}
