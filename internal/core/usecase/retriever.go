package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
	"github.com/kirillkom/inbox-triage/internal/core/ports"
)

// retriever is one retrieval tier. A tier that returns ok=false declines and
// hands the query to the next tier of its chain.
type retriever interface {
	strategy() domain.Strategy
	retrieve(ctx context.Context, userID string, filter domain.ParsedFilter) (hits []domain.SearchHit, ok bool, err error)
}

// fallbackChain runs tiers in order until one accepts. The strategy reported
// is the one of the accepting tier.
type fallbackChain []retriever

func (c fallbackChain) run(ctx context.Context, userID string, filter domain.ParsedFilter) ([]domain.SearchHit, domain.Strategy, error) {
	var last domain.Strategy
	for idx, tier := range c {
		last = tier.strategy()
		hits, ok, err := tier.retrieve(ctx, userID, filter)
		if err != nil {
			return nil, last, fmt.Errorf("%s retrieval: %w", last, err)
		}
		if ok {
			return hits, last, nil
		}
		if idx+1 < len(c) {
			log.Info().
				Str("user_id", userID).
				Str("declined", string(last)).
				Str("next", string(c[idx+1].strategy())).
				Msg("search_tier_fallback")
		}
	}
	return []domain.SearchHit{}, last, nil
}

// resolveCondition turns the structured part of a filter into a store
// condition. A bucket name that does not resolve adds no condition.
func resolveCondition(ctx context.Context, buckets ports.BucketStore, userID string, filter domain.ParsedFilter) (domain.MessageCondition, error) {
	cond := domain.MessageCondition{Sender: filter.Sender}
	if filter.Timeframe != nil {
		cond.ReceivedFrom = filter.Timeframe.Start
		cond.ReceivedTo = filter.Timeframe.End
	}
	if filter.Bucket == "" {
		return cond, nil
	}

	bucket, err := buckets.FindBucketByName(ctx, userID, filter.Bucket)
	switch {
	case err == nil:
		cond.BucketID = bucket.ID
	case domain.IsKind(err, domain.ErrBucketNotFound):
		log.Debug().Str("user_id", userID).Str("bucket", filter.Bucket).Msg("bucket_name_unresolved")
	default:
		return domain.MessageCondition{}, fmt.Errorf("resolve bucket: %w", err)
	}
	return cond, nil
}

func hitsFromMessages(messages []domain.Message) []domain.SearchHit {
	out := make([]domain.SearchHit, 0, len(messages))
	for _, msg := range messages {
		out = append(out, domain.SearchHit{Message: msg})
	}
	return out
}
