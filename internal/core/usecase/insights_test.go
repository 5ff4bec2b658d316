package usecase

import (
	"context"
	"testing"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
	"github.com/kirillkom/inbox-triage/internal/infrastructure/repository/memory"
)

func TestInsightsSummarisesMailbox(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	putMessage(store, "m1", "Mail", 1, []float32{1, 0})
	putMessage(store, "m2", "Mail", 2, nil)
	putMessage(store, "m3", "Mail", 3, nil)
	store.PutMessage(domain.Message{ID: "m4", UserID: testUser, SenderEmail: "m1@x.com", ReceivedAt: day(4)})

	work := &domain.Bucket{ID: "b-work", UserID: testUser, Name: "Work", Color: "#111111"}
	if err := store.CreateBucket(ctx, work); err != nil {
		t.Fatalf("CreateBucket() error = %v", err)
	}
	empty := &domain.Bucket{ID: "b-empty", UserID: testUser, Name: "Empty", Color: "#222222"}
	if err := store.CreateBucket(ctx, empty); err != nil {
		t.Fatalf("CreateBucket() error = %v", err)
	}
	if err := store.AssignBucket(ctx, testUser, "m1", &work.ID); err != nil {
		t.Fatalf("AssignBucket() error = %v", err)
	}

	insights, err := NewInsightsUseCase(store, store).Insights(ctx, testUser)
	if err != nil {
		t.Fatalf("Insights() error = %v", err)
	}

	if insights.TotalEmails != 4 {
		t.Fatalf("total = %d, want 4", insights.TotalEmails)
	}
	wantCoverage := domain.EmbeddingCoverage{Total: 4, WithEmbeddings: 1, Percentage: 25, Remaining: 3}
	if insights.EmbeddingCoverage != wantCoverage {
		t.Fatalf("coverage = %+v, want %+v", insights.EmbeddingCoverage, wantCoverage)
	}
	wantStats := domain.ClassificationStats{Total: 4, Classified: 1, Unclassified: 3, ClassificationRate: 25}
	if insights.ClassificationStats != wantStats {
		t.Fatalf("classification = %+v, want %+v", insights.ClassificationStats, wantStats)
	}

	breakdown := insights.BucketBreakdown
	if len(breakdown) != 3 {
		t.Fatalf("expected three slices, got %+v", breakdown)
	}
	if breakdown[0].Name != domain.UnclassifiedBucketName || breakdown[0].Count != 3 || breakdown[0].BucketID != nil {
		t.Fatalf("expected unclassified slice first, got %+v", breakdown[0])
	}
	if breakdown[1].Name != "Work" || breakdown[1].Count != 1 || breakdown[2].Count != 0 {
		t.Fatalf("unexpected bucket slices %+v", breakdown[1:])
	}

	if len(insights.TopSenders) == 0 || insights.TopSenders[0] != (domain.SenderCount{Sender: "m1@x.com", Count: 2}) {
		t.Fatalf("unexpected top senders %+v", insights.TopSenders)
	}
	if insights.OldestEmail == nil || !insights.OldestEmail.Equal(day(1)) || !insights.NewestEmail.Equal(day(4)) {
		t.Fatalf("unexpected range %v..%v", insights.OldestEmail, insights.NewestEmail)
	}
}

func TestInsightsOfEmptyMailbox(t *testing.T) {
	insights, err := NewInsightsUseCase(memory.NewStore(), memory.NewStore()).Insights(context.Background(), testUser)
	if err != nil {
		t.Fatalf("Insights() error = %v", err)
	}
	if insights.EmbeddingCoverage.Percentage != 0 || insights.ClassificationStats.ClassificationRate != 0 {
		t.Fatalf("empty mailbox must not divide by zero: %+v", insights)
	}
	if len(insights.BucketBreakdown) != 0 || insights.OldestEmail != nil {
		t.Fatalf("unexpected breakdown %+v", insights.BucketBreakdown)
	}
}

func TestInsightsRequiresUser(t *testing.T) {
	_, err := NewInsightsUseCase(memory.NewStore(), memory.NewStore()).Insights(context.Background(), " ")
	if !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
