package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
	"github.com/kirillkom/inbox-triage/internal/infrastructure/repository/memory"
)

const testUser = "user-1"

var testNow = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

type searchFixture struct {
	store    *memory.Store
	embedder *embedderFake
	parser   *parserFake
	uc       *SearchUseCase
}

func newSearchFixture(t *testing.T, limits domain.SearchLimits) *searchFixture {
	t.Helper()
	store := memory.NewStore()
	embedder := &embedderFake{vectors: map[string][]float32{}}
	parser := &parserFake{}
	uc := NewSearchUseCase(store, store, embedder, parser, limits)
	uc.now = func() time.Time { return testNow }
	return &searchFixture{store: store, embedder: embedder, parser: parser, uc: uc}
}

func (f *searchFixture) put(id, subject, senderName, senderEmail string, received time.Time, embedding []float32) {
	f.store.PutMessage(domain.Message{
		ID:          id,
		UserID:      testUser,
		ExternalID:  "ext-" + id,
		Subject:     subject,
		SenderName:  senderName,
		SenderEmail: senderEmail,
		Preview:     subject + " preview",
		ReceivedAt:  received,
		Embedding:   embedding,
	})
}

func day(d int) time.Time {
	return time.Date(2026, 2, d, 9, 0, 0, 0, time.UTC)
}

func hitIDs(result *domain.SearchResult) []string {
	ids := make([]string, 0, len(result.Emails))
	for _, hit := range result.Emails {
		ids = append(ids, hit.ID)
	}
	return ids
}

func assertIDs(t *testing.T, result *domain.SearchResult, want ...string) {
	t.Helper()
	got := hitIDs(result)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("ids = %v, want %v", got, want)
	}
}

func TestSmartSearchVectorWithoutEmbeddingsFallsBackToKeyword(t *testing.T) {
	f := newSearchFixture(t, domain.DefaultSearchLimits())
	f.put("m1", "Invoice March", "Acme", "billing@acme.com", day(1), nil)
	f.put("m2", "Lunch plans", "Bob", "bob@x.com", day(2), nil)
	f.parser.filter = domain.ParsedFilter{Topic: "invoice"}

	result, err := f.uc.SmartSearch(context.Background(), testUser, "invoice")
	if err != nil {
		t.Fatalf("SmartSearch() error = %v", err)
	}
	if result.Strategy != domain.StrategyKeyword {
		t.Fatalf("expected keyword strategy, got %s", result.Strategy)
	}
	if f.embedder.callCount() != 0 {
		t.Fatalf("embedder must not be called without embedded messages, got %d calls", f.embedder.callCount())
	}
	assertIDs(t, result, "m1")
}

func TestSmartSearchVectorBelowThresholdFallsBackToKeyword(t *testing.T) {
	f := newSearchFixture(t, domain.DefaultSearchLimits())
	f.put("m1", "Invoice March", "Acme", "billing@acme.com", day(1), []float32{0, 1})
	f.put("m2", "Team offsite", "Bob", "bob@x.com", day(2), []float32{-1, 0})
	f.parser.filter = domain.ParsedFilter{Topic: "invoice"}
	f.embedder.vectors["invoice"] = []float32{1, 0}

	result, err := f.uc.SmartSearch(context.Background(), testUser, "invoice")
	if err != nil {
		t.Fatalf("SmartSearch() error = %v", err)
	}
	if result.Strategy != domain.StrategyKeyword {
		t.Fatalf("expected keyword strategy, got %s", result.Strategy)
	}
	if f.embedder.callCount() != 1 {
		t.Fatalf("expected one embedder call, got %d", f.embedder.callCount())
	}
	assertIDs(t, result, "m1")
	if result.Emails[0].Similarity != nil {
		t.Fatalf("keyword hits carry no similarity")
	}
}

func TestSmartSearchVectorKeepsHitsAboveThreshold(t *testing.T) {
	f := newSearchFixture(t, domain.DefaultSearchLimits())
	f.put("m1", "Invoice March", "Acme", "billing@acme.com", day(1), []float32{1, 0})
	f.put("m2", "Lunch", "Bob", "bob@x.com", day(2), []float32{0, 1})
	f.put("m3", "Payment due", "Acme", "billing@acme.com", day(3), []float32{0.6, 0.8})
	f.put("m4", "Below threshold", "Eve", "eve@x.com", day(4), []float32{0.2, 0.9})
	f.parser.filter = domain.ParsedFilter{Topic: "invoice"}
	f.embedder.vectors["invoice"] = []float32{1, 0}

	result, err := f.uc.SmartSearch(context.Background(), testUser, "invoice")
	if err != nil {
		t.Fatalf("SmartSearch() error = %v", err)
	}
	if result.Strategy != domain.StrategyVector {
		t.Fatalf("expected vector strategy, got %s", result.Strategy)
	}
	assertIDs(t, result, "m1", "m3")
	for _, hit := range result.Emails {
		if hit.Similarity == nil || *hit.Similarity <= 0.3 {
			t.Fatalf("hit %s has similarity %v, want > 0.3", hit.ID, hit.Similarity)
		}
	}
	if result.TotalCount != 2 {
		t.Fatalf("expected total 2, got %d", result.TotalCount)
	}
}

func TestSmartSearchHybridWithoutCandidatesReturnsEmpty(t *testing.T) {
	f := newSearchFixture(t, domain.DefaultSearchLimits())
	f.put("m1", "Invoice", "Acme", "billing@acme.com", day(1), []float32{1, 0})
	f.parser.filter = domain.ParsedFilter{Topic: "invoice", Sender: "nobody"}

	result, err := f.uc.SmartSearch(context.Background(), testUser, "invoice from nobody")
	if err != nil {
		t.Fatalf("SmartSearch() error = %v", err)
	}
	if result.Strategy != domain.StrategyHybrid {
		t.Fatalf("expected hybrid strategy, got %s", result.Strategy)
	}
	if len(result.Emails) != 0 || result.TotalCount != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
	if result.Emails == nil {
		t.Fatalf("expected non-nil empty email list")
	}
	if f.embedder.callCount() != 0 {
		t.Fatalf("embedder must not be called without candidates")
	}
}

func TestSmartSearchHybridRanksOnlyCandidates(t *testing.T) {
	f := newSearchFixture(t, domain.DefaultSearchLimits())
	f.put("a1", "Budget draft", "Alice", "alice@x.com", day(1), []float32{0, 1})
	f.put("a2", "Budget final", "Alice", "alice@x.com", day(2), []float32{0.8, 0.6})
	f.put("a3", "Not embedded", "Alice", "alice@x.com", day(3), nil)
	f.put("b1", "Budget", "Bob", "bob@x.com", day(4), []float32{1, 0})
	f.parser.filter = domain.ParsedFilter{Topic: "budget", Sender: "alice"}
	f.embedder.vectors["budget"] = []float32{1, 0}

	result, err := f.uc.SmartSearch(context.Background(), testUser, "budget from alice")
	if err != nil {
		t.Fatalf("SmartSearch() error = %v", err)
	}
	if result.Strategy != domain.StrategyHybrid {
		t.Fatalf("expected hybrid strategy, got %s", result.Strategy)
	}
	// a1 has similarity 0 and is still kept: hybrid applies no floor.
	assertIDs(t, result, "a2", "a1")
}

func TestSmartSearchStructuredSenderIsCaseInsensitiveSubstring(t *testing.T) {
	f := newSearchFixture(t, domain.DefaultSearchLimits())
	f.put("m1", "Hello", "Alice", "alice@x.com", day(1), nil)
	f.put("m2", "Hi", "Bob", "bob@x.com", day(2), nil)
	f.put("m3", "Again", "A. Smith", "ALICE@X.COM", day(3), nil)
	f.parser.filter = domain.ParsedFilter{Sender: "ALICE@x.com"}

	result, err := f.uc.SmartSearch(context.Background(), testUser, "mail from ALICE@x.com")
	if err != nil {
		t.Fatalf("SmartSearch() error = %v", err)
	}
	if result.Strategy != domain.StrategyStructured {
		t.Fatalf("expected structured strategy, got %s", result.Strategy)
	}
	assertIDs(t, result, "m3", "m1")
}

func TestSmartSearchEmailsFromSarahLastWeek(t *testing.T) {
	f := newSearchFixture(t, domain.DefaultSearchLimits())
	f.put("old", "Old note", "Sarah Connor", "sarah@x.com", time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC), nil)
	f.put("s1", "Project", "Sarah Connor", "sarah@x.com", day(5), nil)
	f.put("s2", "Follow up", "Sarah Connor", "sarah@x.com", day(9), nil)
	f.put("b1", "Other", "Bob", "bob@x.com", day(8), nil)
	f.parser.filter = domain.ParsedFilter{Sender: "sarah"}

	result, err := f.uc.SmartSearch(context.Background(), testUser, "emails from sarah last week")
	if err != nil {
		t.Fatalf("SmartSearch() error = %v", err)
	}
	if !f.parser.now.Equal(testNow) {
		t.Fatalf("parser must receive the current time, got %v", f.parser.now)
	}
	if result.Strategy != domain.StrategyStructured {
		t.Fatalf("expected structured strategy, got %s", result.Strategy)
	}
	tf := result.Filters.Timeframe
	if tf == nil || tf.Start == nil || !tf.Start.Equal(time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected fallback timeframe from 2026-02-03, got %+v", tf)
	}
	if !tf.End.Equal(testNow) {
		t.Fatalf("expected timeframe to end now, got %v", *tf.End)
	}
	assertIDs(t, result, "s2", "s1")
	if result.Query != "emails from sarah last week" {
		t.Fatalf("unexpected echoed query %q", result.Query)
	}
}

func TestSmartSearchKeepsModelTimeframe(t *testing.T) {
	f := newSearchFixture(t, domain.DefaultSearchLimits())
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	f.parser.filter = domain.ParsedFilter{Timeframe: &domain.Timeframe{Start: &start, End: &end}}

	result, err := f.uc.SmartSearch(context.Background(), testUser, "january mail, not today")
	if err != nil {
		t.Fatalf("SmartSearch() error = %v", err)
	}
	if !result.Filters.Timeframe.Start.Equal(start) || !result.Filters.Timeframe.End.Equal(end) {
		t.Fatalf("model timeframe was overridden: %+v", result.Filters.Timeframe)
	}
}

func TestSmartSearchRecentWhenNothingParsed(t *testing.T) {
	f := newSearchFixture(t, domain.DefaultSearchLimits())
	f.put("m1", "One", "A", "a@x.com", day(1), nil)
	f.put("m2", "Two", "B", "b@x.com", day(2), nil)

	result, err := f.uc.SmartSearch(context.Background(), testUser, "show me stuff")
	if err != nil {
		t.Fatalf("SmartSearch() error = %v", err)
	}
	if result.Strategy != domain.StrategyRecent {
		t.Fatalf("expected recent strategy, got %s", result.Strategy)
	}
	assertIDs(t, result, "m2", "m1")
}

func TestSmartSearchEchoesQueryAsGiven(t *testing.T) {
	f := newSearchFixture(t, domain.DefaultSearchLimits())
	f.put("m1", "One", "A", "a@x.com", day(1), nil)

	result, err := f.uc.SmartSearch(context.Background(), testUser, "  show me stuff \n")
	if err != nil {
		t.Fatalf("SmartSearch() error = %v", err)
	}
	if result.Query != "  show me stuff \n" {
		t.Fatalf("Query = %q, want the input unchanged", result.Query)
	}
	if f.parser.query != "show me stuff" {
		t.Fatalf("parser got %q, want trimmed text", f.parser.query)
	}
}

func TestSmartSearchTruncatesToDisplayLimit(t *testing.T) {
	limits := domain.DefaultSearchLimits()
	limits.DisplayLimit = 2
	f := newSearchFixture(t, limits)
	for i := 1; i <= 3; i++ {
		f.put("m"+string(rune('0'+i)), "Mail", "A", "a@x.com", day(i), nil)
	}

	result, err := f.uc.SmartSearch(context.Background(), testUser, "anything")
	if err != nil {
		t.Fatalf("SmartSearch() error = %v", err)
	}
	if len(result.Emails) != 2 || result.TotalCount != 3 {
		t.Fatalf("expected 2 of 3, got %d of %d", len(result.Emails), result.TotalCount)
	}
}

func TestSmartSearchIsScopedToUser(t *testing.T) {
	f := newSearchFixture(t, domain.DefaultSearchLimits())
	f.put("m1", "Mine", "A", "a@x.com", day(1), nil)
	f.store.PutMessage(domain.Message{ID: "other", UserID: "user-2", Subject: "Theirs", ReceivedAt: day(2)})

	result, err := f.uc.SmartSearch(context.Background(), testUser, "anything")
	if err != nil {
		t.Fatalf("SmartSearch() error = %v", err)
	}
	assertIDs(t, result, "m1")
}

func TestSmartSearchPropagatesParserFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{
			name: "malformed output",
			err:  domain.WrapError(domain.ErrQueryParse, "decode", errors.New("bad json")),
			kind: domain.ErrQueryParse,
		},
		{
			name: "provider down",
			err:  domain.WrapError(domain.ErrProviderUnavailable, "chat", errors.New("503")),
			kind: domain.ErrProviderUnavailable,
		},
		{
			name: "untyped error",
			err:  errors.New("boom"),
			kind: domain.ErrQueryParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSearchFixture(t, domain.DefaultSearchLimits())
			f.parser.err = tt.err

			result, err := f.uc.SmartSearch(context.Background(), testUser, "invoice")
			if result != nil {
				t.Fatalf("expected no partial result")
			}
			if !domain.IsKind(err, tt.kind) {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
		})
	}
}

func TestSmartSearchPropagatesEmbedderFailure(t *testing.T) {
	f := newSearchFixture(t, domain.DefaultSearchLimits())
	f.put("m1", "Invoice", "Acme", "billing@acme.com", day(1), []float32{1, 0})
	f.parser.filter = domain.ParsedFilter{Topic: "invoice"}
	f.embedder.failOn = map[string]error{
		"invoice": domain.WrapError(domain.ErrProviderUnavailable, "embed", errors.New("timeout")),
	}

	_, err := f.uc.SmartSearch(context.Background(), testUser, "invoice")
	if !domain.IsKind(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestSmartSearchValidatesInput(t *testing.T) {
	f := newSearchFixture(t, domain.DefaultSearchLimits())

	for _, query := range []string{"", "   ", strings.Repeat("a", 501)} {
		_, err := f.uc.SmartSearch(context.Background(), testUser, query)
		if !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("query of %d chars: expected ErrInvalidInput, got %v", len(query), err)
		}
	}
	if _, err := f.uc.SmartSearch(context.Background(), "", "invoice"); !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized without user, got %v", err)
	}
	if f.parser.calls != 0 {
		t.Fatalf("parser must not be called for invalid input")
	}

	if _, err := f.uc.SmartSearch(context.Background(), testUser, strings.Repeat("é", 500)); err != nil {
		t.Fatalf("500 runes must be accepted, got %v", err)
	}
}

func TestKeywordSearchMatchesAnyTextField(t *testing.T) {
	f := newSearchFixture(t, domain.DefaultSearchLimits())
	f.put("m1", "Quarterly report", "Acme", "reports@acme.com", day(1), nil)
	f.put("m2", "Hello", "Reporter Jane", "jane@x.com", day(2), nil)
	f.put("m3", "Unrelated", "Bob", "bob@x.com", day(3), nil)

	result, err := f.uc.KeywordSearch(context.Background(), testUser, "REPORT")
	if err != nil {
		t.Fatalf("KeywordSearch() error = %v", err)
	}
	if result.Strategy != domain.StrategyKeyword {
		t.Fatalf("expected keyword strategy, got %s", result.Strategy)
	}
	assertIDs(t, result, "m2", "m1")
	if f.parser.calls != 0 {
		t.Fatalf("keyword search must bypass the parser")
	}
}

func TestNormalizeLimitsCapsDisplayLimit(t *testing.T) {
	limits := normalizeLimits(domain.SearchLimits{
		PageSize:            20,
		VectorCandidates:    50,
		HybridRerankLimit:   10,
		DisplayLimit:        100,
		SimilarityThreshold: 0.3,
	})
	if limits.DisplayLimit != 10 {
		t.Fatalf("expected display limit capped at 10, got %d", limits.DisplayLimit)
	}
	if limits.HybridCandidates != 200 {
		t.Fatalf("expected default hybrid candidates, got %d", limits.HybridCandidates)
	}
}
