package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
	"github.com/kirillkom/inbox-triage/internal/core/ports"
)

const (
	maxBucketNameRunes        = 50
	maxBucketDescriptionRunes = 200
)

var (
	bucketNamePattern  = regexp.MustCompile(`^[a-zA-Z0-9\s\-_]+$`)
	bucketColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

type BucketUseCase struct {
	buckets ports.BucketStore
}

func NewBucketUseCase(buckets ports.BucketStore) *BucketUseCase {
	return &BucketUseCase{buckets: buckets}
}

func (uc *BucketUseCase) ListBuckets(ctx context.Context, userID string) ([]domain.Bucket, error) {
	buckets, err := uc.buckets.ListBuckets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	return buckets, nil
}

func (uc *BucketUseCase) CreateBucket(ctx context.Context, userID string, input domain.BucketPatch) (*domain.Bucket, error) {
	if input.Name == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create bucket", errors.New("bucket name is required"))
	}

	now := time.Now().UTC()
	bucket := &domain.Bucket{
		ID:        uuid.NewString(),
		UserID:    userID,
		Color:     domain.DefaultBucketColor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := applyBucketPatch(bucket, input); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create bucket", err)
	}
	if err := uc.ensureNameFree(ctx, userID, bucket.Name, ""); err != nil {
		return nil, err
	}

	if err := uc.buckets.CreateBucket(ctx, bucket); err != nil {
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	log.Info().Str("user_id", userID).Str("bucket_id", bucket.ID).Str("name", bucket.Name).Msg("bucket_created")
	return bucket, nil
}

func (uc *BucketUseCase) UpdateBucket(ctx context.Context, userID, bucketID string, patch domain.BucketPatch) (*domain.Bucket, error) {
	bucket, err := uc.buckets.GetBucket(ctx, userID, bucketID)
	if err != nil {
		return nil, fmt.Errorf("get bucket: %w", err)
	}

	renamed := patch.Name != nil && strings.TrimSpace(*patch.Name) != bucket.Name
	if renamed && bucket.IsDefault {
		return nil, domain.WrapError(domain.ErrInvalidInput, "update bucket", errors.New("default buckets cannot be renamed"))
	}
	if err := applyBucketPatch(bucket, patch); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "update bucket", err)
	}
	if renamed {
		if err := uc.ensureNameFree(ctx, userID, bucket.Name, bucket.ID); err != nil {
			return nil, err
		}
	}

	bucket.UpdatedAt = time.Now().UTC()
	if err := uc.buckets.UpdateBucket(ctx, bucket); err != nil {
		return nil, fmt.Errorf("update bucket: %w", err)
	}
	return bucket, nil
}

// DeleteBucket removes a user bucket. Its messages become unclassified and
// are reported back so the caller can schedule reclassification.
func (uc *BucketUseCase) DeleteBucket(ctx context.Context, userID, bucketID string) (domain.BucketDeletion, error) {
	bucket, err := uc.buckets.GetBucket(ctx, userID, bucketID)
	if err != nil {
		return domain.BucketDeletion{}, fmt.Errorf("get bucket: %w", err)
	}
	if bucket.IsDefault {
		return domain.BucketDeletion{}, domain.WrapError(domain.ErrInvalidInput, "delete bucket", errors.New("default buckets cannot be deleted"))
	}

	detached, err := uc.buckets.DeleteBucket(ctx, userID, bucketID)
	if err != nil {
		return domain.BucketDeletion{}, fmt.Errorf("delete bucket: %w", err)
	}
	log.Info().
		Str("user_id", userID).
		Str("bucket_id", bucketID).
		Int("emails_to_reclassify", detached).
		Msg("bucket_deleted")
	return domain.BucketDeletion{EmailsToReclassify: detached}, nil
}

// EnsureDefaults seeds the default buckets a user is missing.
func (uc *BucketUseCase) EnsureDefaults(ctx context.Context, userID string) error {
	if err := uc.buckets.EnsureDefaultBuckets(ctx, userID, domain.DefaultBuckets); err != nil {
		return fmt.Errorf("ensure default buckets: %w", err)
	}
	return nil
}

func (uc *BucketUseCase) ensureNameFree(ctx context.Context, userID, name, selfID string) error {
	existing, err := uc.buckets.FindBucketByName(ctx, userID, name)
	switch {
	case err == nil && existing.ID != selfID:
		return domain.WrapError(domain.ErrConflict, "bucket name", fmt.Errorf("bucket %q already exists", name))
	case err == nil, domain.IsKind(err, domain.ErrBucketNotFound):
		return nil
	default:
		return fmt.Errorf("find bucket by name: %w", err)
	}
}

func applyBucketPatch(bucket *domain.Bucket, patch domain.BucketPatch) error {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if n := utf8.RuneCountInString(name); n == 0 || n > maxBucketNameRunes {
			return fmt.Errorf("bucket name must be between 1 and %d characters", maxBucketNameRunes)
		}
		if !bucketNamePattern.MatchString(name) {
			return errors.New("bucket name can only contain letters, numbers, spaces, hyphens, and underscores")
		}
		bucket.Name = name
	}
	if patch.Description != nil {
		description := strings.TrimSpace(*patch.Description)
		if utf8.RuneCountInString(description) > maxBucketDescriptionRunes {
			return fmt.Errorf("description must be at most %d characters", maxBucketDescriptionRunes)
		}
		bucket.Description = description
	}
	if patch.Color != nil && *patch.Color != "" {
		if !bucketColorPattern.MatchString(*patch.Color) {
			return errors.New("color must be a valid hex color")
		}
		bucket.Color = *patch.Color
	}
	return nil
}
