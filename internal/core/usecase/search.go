package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
	"github.com/kirillkom/inbox-triage/internal/core/ports"
)

const maxQueryRunes = 500

type SearchUseCase struct {
	parser  ports.QueryParser
	limits  domain.SearchLimits
	chains  map[domain.Strategy]fallbackChain
	keyword fallbackChain
	now     func() time.Time
}

func NewSearchUseCase(
	messages ports.MessageStore,
	buckets ports.BucketStore,
	embedder ports.Embedder,
	parser ports.QueryParser,
	limits domain.SearchLimits,
) *SearchUseCase {
	limits = normalizeLimits(limits)

	structured := structuredRetriever{messages: messages, buckets: buckets, limit: limits.PageSize}
	keyword := keywordRetriever{messages: messages, limit: limits.PageSize}
	vector := vectorRetriever{
		messages:   messages,
		embedder:   embedder,
		candidates: limits.VectorCandidates,
		threshold:  limits.SimilarityThreshold,
	}
	hybrid := hybridRetriever{
		messages:    messages,
		buckets:     buckets,
		embedder:    embedder,
		candidates:  limits.HybridCandidates,
		rerankLimit: limits.HybridRerankLimit,
	}
	recent := recentRetriever{messages: messages, limit: limits.PageSize}

	return &SearchUseCase{
		parser: parser,
		limits: limits,
		chains: map[domain.Strategy]fallbackChain{
			domain.StrategyStructured: {structured},
			domain.StrategyVector:     {vector, keyword},
			domain.StrategyHybrid:     {hybrid},
			domain.StrategyRecent:     {recent},
		},
		keyword: fallbackChain{keyword},
		now:     time.Now,
	}
}

// SmartSearch parses a natural-language query, picks a strategy from the
// parsed shape and runs that strategy's fallback chain. The result echoes the
// query as given; surrounding whitespace is ignored for parsing only.
func (uc *SearchUseCase) SmartSearch(ctx context.Context, userID, query string) (*domain.SearchResult, error) {
	text := strings.TrimSpace(query)
	if err := validateSearchInput(userID, text, "query"); err != nil {
		return nil, err
	}

	started := time.Now()
	now := uc.now()
	filter, err := uc.parser.Parse(ctx, text, now)
	if err != nil {
		if !domain.IsKind(err, domain.ErrQueryParse) && !domain.IsKind(err, domain.ErrProviderUnavailable) {
			err = domain.WrapError(domain.ErrQueryParse, "parse query", err)
		}
		return nil, fmt.Errorf("smart search: %w", err)
	}

	if filter.Timeframe.IsZero() {
		filter.Timeframe = ParseTimeframe(text, now)
		if filter.Timeframe != nil {
			log.Debug().
				Str("user_id", userID).
				Time("start", *filter.Timeframe.Start).
				Time("end", *filter.Timeframe.End).
				Msg("search_timeframe_fallback")
		}
	}

	selected := SelectStrategy(filter)
	hits, used, err := uc.chains[selected].run(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("smart search: %w", err)
	}

	result := uc.buildResult(hits, used, query, filter)
	log.Info().
		Str("user_id", userID).
		Str("selected", string(selected)).
		Str("strategy", string(used)).
		Bool("has_topic", filter.Topic != "").
		Bool("has_sender", filter.Sender != "").
		Bool("has_timeframe", filter.Timeframe != nil).
		Bool("has_bucket", filter.Bucket != "").
		Int("total", result.TotalCount).
		Dur("duration", time.Since(started)).
		Msg("smart_search")
	return result, nil
}

// KeywordSearch runs the keyword tier on its own, bypassing the parser.
func (uc *SearchUseCase) KeywordSearch(ctx context.Context, userID, keyword string) (*domain.SearchResult, error) {
	text := strings.TrimSpace(keyword)
	if err := validateSearchInput(userID, text, "keyword"); err != nil {
		return nil, err
	}

	filter := domain.ParsedFilter{Topic: text}
	hits, used, err := uc.keyword.run(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return uc.buildResult(hits, used, keyword, filter), nil
}

func (uc *SearchUseCase) buildResult(hits []domain.SearchHit, strategy domain.Strategy, query string, filter domain.ParsedFilter) *domain.SearchResult {
	if hits == nil {
		hits = []domain.SearchHit{}
	}
	total := len(hits)
	if len(hits) > uc.limits.DisplayLimit {
		hits = hits[:uc.limits.DisplayLimit]
	}
	return &domain.SearchResult{
		Emails:     hits,
		TotalCount: total,
		Strategy:   strategy,
		Query:      query,
		Filters:    filter,
	}
}

func validateSearchInput(userID, text, field string) error {
	if strings.TrimSpace(userID) == "" {
		return domain.WrapError(domain.ErrUnauthorized, "search", errors.New("user id is required"))
	}
	if text == "" {
		return domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("%s is required", field))
	}
	if utf8.RuneCountInString(text) > maxQueryRunes {
		return domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("%s must be at most %d characters", field, maxQueryRunes))
	}
	return nil
}

// normalizeLimits fills unset limits and keeps the display limit within
// every internal cap.
func normalizeLimits(limits domain.SearchLimits) domain.SearchLimits {
	def := domain.DefaultSearchLimits()
	if limits.PageSize <= 0 {
		limits.PageSize = def.PageSize
	}
	if limits.VectorCandidates <= 0 {
		limits.VectorCandidates = def.VectorCandidates
	}
	if limits.HybridCandidates <= 0 {
		limits.HybridCandidates = def.HybridCandidates
	}
	if limits.HybridRerankLimit <= 0 {
		limits.HybridRerankLimit = def.HybridRerankLimit
	}
	if limits.DisplayLimit <= 0 {
		limits.DisplayLimit = def.DisplayLimit
	}
	if limits.SimilarityThreshold < -1 || limits.SimilarityThreshold >= 1 {
		limits.SimilarityThreshold = def.SimilarityThreshold
	}
	for _, capValue := range []int{limits.PageSize, limits.VectorCandidates, limits.HybridRerankLimit} {
		if limits.DisplayLimit > capValue {
			limits.DisplayLimit = capValue
		}
	}
	return limits
}
