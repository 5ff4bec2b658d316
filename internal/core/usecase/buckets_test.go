package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
	"github.com/kirillkom/inbox-triage/internal/infrastructure/repository/memory"
)

func strPtr(s string) *string { return &s }

func TestCreateBucketValidation(t *testing.T) {
	uc := NewBucketUseCase(memory.NewStore())

	tests := []struct {
		name  string
		input domain.BucketPatch
	}{
		{name: "missing name", input: domain.BucketPatch{}},
		{name: "blank name", input: domain.BucketPatch{Name: strPtr("   ")}},
		{name: "long name", input: domain.BucketPatch{Name: strPtr(strings.Repeat("a", 51))}},
		{name: "bad characters", input: domain.BucketPatch{Name: strPtr("work/urgent")}},
		{name: "long description", input: domain.BucketPatch{Name: strPtr("Work"), Description: strPtr(strings.Repeat("d", 201))}},
		{name: "bad color", input: domain.BucketPatch{Name: strPtr("Work"), Color: strPtr("red")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.CreateBucket(context.Background(), testUser, tt.input)
			if !domain.IsKind(err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestCreateBucketDefaultsColorAndRejectsDuplicates(t *testing.T) {
	uc := NewBucketUseCase(memory.NewStore())

	bucket, err := uc.CreateBucket(context.Background(), testUser, domain.BucketPatch{Name: strPtr("  Side_Projects-2 ")})
	if err != nil {
		t.Fatalf("CreateBucket() error = %v", err)
	}
	if bucket.Name != "Side_Projects-2" || bucket.Color != domain.DefaultBucketColor || bucket.IsDefault {
		t.Fatalf("unexpected bucket %+v", bucket)
	}

	_, err = uc.CreateBucket(context.Background(), testUser, domain.BucketPatch{Name: strPtr("side_projects-2")})
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for case-insensitive duplicate, got %v", err)
	}

	if _, err := uc.CreateBucket(context.Background(), "user-2", domain.BucketPatch{Name: strPtr("Side_Projects-2")}); err != nil {
		t.Fatalf("names are unique per user only, got %v", err)
	}
}

func TestDefaultBucketsCannotBeRenamedOrDeleted(t *testing.T) {
	store := memory.NewStore()
	uc := NewBucketUseCase(store)
	if err := uc.EnsureDefaults(context.Background(), testUser); err != nil {
		t.Fatalf("EnsureDefaults() error = %v", err)
	}
	if err := uc.EnsureDefaults(context.Background(), testUser); err != nil {
		t.Fatalf("second EnsureDefaults() error = %v", err)
	}

	buckets, err := uc.ListBuckets(context.Background(), testUser)
	if err != nil {
		t.Fatalf("ListBuckets() error = %v", err)
	}
	if len(buckets) != len(domain.DefaultBuckets) {
		t.Fatalf("expected %d default buckets, got %d", len(domain.DefaultBuckets), len(buckets))
	}
	important := buckets[0]
	if important.Name != "Important" || !important.IsDefault {
		t.Fatalf("unexpected first bucket %+v", important)
	}

	if _, err := uc.UpdateBucket(context.Background(), testUser, important.ID, domain.BucketPatch{Name: strPtr("Urgent")}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected rename of default bucket to fail, got %v", err)
	}
	updated, err := uc.UpdateBucket(context.Background(), testUser, important.ID, domain.BucketPatch{Color: strPtr("#000000")})
	if err != nil {
		t.Fatalf("recoloring a default bucket must succeed, got %v", err)
	}
	if updated.Color != "#000000" {
		t.Fatalf("expected new color, got %s", updated.Color)
	}
	if _, err := uc.DeleteBucket(context.Background(), testUser, important.ID); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected delete of default bucket to fail, got %v", err)
	}
}

func TestUpdateBucketUnknownReturnsNotFound(t *testing.T) {
	uc := NewBucketUseCase(memory.NewStore())
	_, err := uc.UpdateBucket(context.Background(), testUser, "missing", domain.BucketPatch{Color: strPtr("#111111")})
	if !domain.IsKind(err, domain.ErrBucketNotFound) {
		t.Fatalf("expected ErrBucketNotFound, got %v", err)
	}
}

func TestDeleteBucketDetachesMessagesAndSearchIgnoresName(t *testing.T) {
	f := newSearchFixture(t, domain.DefaultSearchLimits())
	buckets := NewBucketUseCase(f.store)

	work, err := buckets.CreateBucket(context.Background(), testUser, domain.BucketPatch{Name: strPtr("Work")})
	if err != nil {
		t.Fatalf("CreateBucket() error = %v", err)
	}
	f.put("w1", "Standup", "Lead", "lead@x.com", day(1), nil)
	f.put("w2", "Retro", "Lead", "lead@x.com", day(2), nil)
	f.put("p1", "Dinner", "Mom", "mom@x.com", day(3), nil)
	for _, id := range []string{"w1", "w2"} {
		if err := f.store.AssignBucket(context.Background(), testUser, id, &work.ID); err != nil {
			t.Fatalf("AssignBucket() error = %v", err)
		}
	}

	f.parser.filter = domain.ParsedFilter{Bucket: "work"}
	before, err := f.uc.SmartSearch(context.Background(), testUser, "work emails")
	if err != nil {
		t.Fatalf("SmartSearch() error = %v", err)
	}
	assertIDs(t, before, "w2", "w1")
	if before.Emails[0].Bucket == nil || before.Emails[0].Bucket.Name != "Work" {
		t.Fatalf("expected joined bucket, got %+v", before.Emails[0].Bucket)
	}

	deletion, err := buckets.DeleteBucket(context.Background(), testUser, work.ID)
	if err != nil {
		t.Fatalf("DeleteBucket() error = %v", err)
	}
	if deletion.EmailsToReclassify != 2 {
		t.Fatalf("expected 2 emails to reclassify, got %d", deletion.EmailsToReclassify)
	}
	msg, _ := f.store.GetMessage(context.Background(), testUser, "w1")
	if msg.BucketID != nil {
		t.Fatalf("expected message to be unclassified, got %v", *msg.BucketID)
	}

	after, err := f.uc.SmartSearch(context.Background(), testUser, "work emails")
	if err != nil {
		t.Fatalf("SmartSearch() error = %v", err)
	}
	if after.Strategy != domain.StrategyStructured {
		t.Fatalf("expected structured strategy, got %s", after.Strategy)
	}
	assertIDs(t, after, "p1", "w2", "w1")
}
