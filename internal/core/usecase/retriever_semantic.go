package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
	"github.com/kirillkom/inbox-triage/internal/core/ports"
)

type vectorRetriever struct {
	messages   ports.MessageStore
	embedder   ports.Embedder
	candidates int
	threshold  float64
}

func (r vectorRetriever) strategy() domain.Strategy { return domain.StrategyVector }

// retrieve declines when the user has no embedded messages or when nothing
// clears the similarity threshold.
func (r vectorRetriever) retrieve(ctx context.Context, userID string, filter domain.ParsedFilter) ([]domain.SearchHit, bool, error) {
	embedded, err := r.messages.CountEmbedded(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("count embedded: %w", err)
	}
	if embedded == 0 {
		log.Info().Str("user_id", userID).Msg("vector_search_no_embeddings")
		return nil, false, nil
	}

	queryVector, err := r.embedder.Embed(ctx, filter.Topic)
	if err != nil {
		return nil, false, fmt.Errorf("embed topic: %w", err)
	}

	ranked, err := r.messages.NearestNeighbors(ctx, userID, queryVector, nil, r.candidates)
	if err != nil {
		return nil, false, fmt.Errorf("nearest neighbors: %w", err)
	}

	hits := make([]domain.SearchHit, 0, len(ranked))
	for _, hit := range ranked {
		if hit.Similarity != nil && *hit.Similarity > r.threshold {
			hits = append(hits, hit)
		}
	}
	if len(hits) == 0 {
		log.Info().
			Str("user_id", userID).
			Int("candidates", len(ranked)).
			Float64("threshold", r.threshold).
			Msg("vector_search_below_threshold")
		return nil, false, nil
	}
	return hits, true, nil
}

type hybridRetriever struct {
	messages    ports.MessageStore
	buckets     ports.BucketStore
	embedder    ports.Embedder
	candidates  int
	rerankLimit int
}

func (r hybridRetriever) strategy() domain.Strategy { return domain.StrategyHybrid }

// retrieve narrows by the structured condition first and ranks only the
// survivors by similarity. No similarity floor applies here.
func (r hybridRetriever) retrieve(ctx context.Context, userID string, filter domain.ParsedFilter) ([]domain.SearchHit, bool, error) {
	cond, err := resolveCondition(ctx, r.buckets, userID, filter)
	if err != nil {
		return nil, false, err
	}

	ids, err := r.messages.ListCandidateIDs(ctx, userID, cond, r.candidates)
	if err != nil {
		return nil, false, fmt.Errorf("list candidates: %w", err)
	}
	if len(ids) == 0 {
		return []domain.SearchHit{}, true, nil
	}

	queryVector, err := r.embedder.Embed(ctx, filter.Topic)
	if err != nil {
		return nil, false, fmt.Errorf("embed topic: %w", err)
	}

	hits, err := r.messages.NearestNeighbors(ctx, userID, queryVector, ids, r.rerankLimit)
	if err != nil {
		return nil, false, fmt.Errorf("rerank candidates: %w", err)
	}
	return hits, true, nil
}
