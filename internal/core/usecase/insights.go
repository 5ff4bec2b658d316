package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
	"github.com/kirillkom/inbox-triage/internal/core/ports"
)

const topSendersLimit = 10

type InsightsUseCase struct {
	messages ports.MessageStore
	buckets  ports.BucketStore
}

func NewInsightsUseCase(messages ports.MessageStore, buckets ports.BucketStore) *InsightsUseCase {
	return &InsightsUseCase{messages: messages, buckets: buckets}
}

func (uc *InsightsUseCase) Insights(ctx context.Context, userID string) (*domain.Insights, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "insights", errors.New("user id is required"))
	}

	total, err := uc.messages.CountMessages(ctx, userID, domain.MessageCondition{})
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	embedded, err := uc.messages.CountEmbedded(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count embedded: %w", err)
	}
	buckets, err := uc.buckets.ListBuckets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	senders, err := uc.messages.TopSenders(ctx, userID, topSendersLimit)
	if err != nil {
		return nil, fmt.Errorf("top senders: %w", err)
	}
	oldest, newest, err := uc.messages.ReceivedRange(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("received range: %w", err)
	}

	breakdown, classified := bucketBreakdown(buckets, total)
	insights := &domain.Insights{
		TotalEmails: total,
		OldestEmail: oldest,
		NewestEmail: newest,
		EmbeddingCoverage: domain.EmbeddingCoverage{
			Total:          total,
			WithEmbeddings: embedded,
			Percentage:     percentOf(embedded, total),
			Remaining:      total - embedded,
		},
		BucketBreakdown: breakdown,
		TopSenders:      senders,
		ClassificationStats: domain.ClassificationStats{
			Total:              total,
			Classified:         classified,
			Unclassified:       total - classified,
			ClassificationRate: percentOf(classified, total),
		},
	}

	log.Debug().
		Str("user_id", userID).
		Int("total", total).
		Int("embedded", embedded).
		Int("classified", classified).
		Msg("insights_generated")
	return insights, nil
}

// bucketBreakdown lists every bucket with its message count plus an
// unclassified slice when some messages have no bucket, largest first.
func bucketBreakdown(buckets []domain.Bucket, total int) ([]domain.BucketCount, int) {
	out := make([]domain.BucketCount, 0, len(buckets)+1)
	classified := 0
	for _, b := range buckets {
		id := b.ID
		out = append(out, domain.BucketCount{BucketID: &id, Name: b.Name, Color: b.Color, Count: b.EmailCount})
		classified += b.EmailCount
	}
	if unclassified := total - classified; unclassified > 0 {
		out = append(out, domain.BucketCount{
			Name:  domain.UnclassifiedBucketName,
			Color: domain.DefaultBucketColor,
			Count: unclassified,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, classified
}

func percentOf(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(total)))
}
