package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
)

func (s *Store) FindBucketByName(_ context.Context, userID, name string) (*domain.Bucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.buckets {
		if b.UserID == userID && strings.EqualFold(b.Name, name) {
			return s.countedBucket(b), nil
		}
	}
	return nil, domain.WrapError(domain.ErrBucketNotFound, "find bucket", fmt.Errorf("name=%s", name))
}

func (s *Store) GetBucket(_ context.Context, userID, bucketID string) (*domain.Bucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.buckets[bucketID]
	if !ok || b.UserID != userID {
		return nil, domain.WrapError(domain.ErrBucketNotFound, "get bucket", fmt.Errorf("id=%s", bucketID))
	}
	return s.countedBucket(b), nil
}

// ListBuckets returns default buckets first, then by creation time.
func (s *Store) ListBuckets(_ context.Context, userID string) ([]domain.Bucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Bucket, 0)
	for _, b := range s.buckets {
		if b.UserID == userID {
			out = append(out, *s.countedBucket(b))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreateBucket(_ context.Context, bucket *domain.Bucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nameTaken(bucket.UserID, bucket.Name, bucket.ID) {
		return domain.WrapError(domain.ErrConflict, "create bucket", fmt.Errorf("name=%s", bucket.Name))
	}
	if bucket.ID == "" {
		bucket.ID = uuid.NewString()
	}
	s.buckets[bucket.ID] = *bucket
	return nil
}

func (s *Store) UpdateBucket(_ context.Context, bucket *domain.Bucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.buckets[bucket.ID]
	if !ok || current.UserID != bucket.UserID {
		return domain.WrapError(domain.ErrBucketNotFound, "update bucket", fmt.Errorf("id=%s", bucket.ID))
	}
	if s.nameTaken(bucket.UserID, bucket.Name, bucket.ID) {
		return domain.WrapError(domain.ErrConflict, "update bucket", fmt.Errorf("name=%s", bucket.Name))
	}
	updated := *bucket
	updated.EmailCount = 0
	s.buckets[bucket.ID] = updated
	return nil
}

func (s *Store) DeleteBucket(_ context.Context, userID, bucketID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[bucketID]
	if !ok || b.UserID != userID {
		return 0, domain.WrapError(domain.ErrBucketNotFound, "delete bucket", fmt.Errorf("id=%s", bucketID))
	}

	detached := 0
	for id, m := range s.messages {
		if m.UserID == userID && m.BucketID != nil && *m.BucketID == bucketID {
			m.BucketID = nil
			m.UpdatedAt = s.now()
			s.messages[id] = m
			detached++
		}
	}
	delete(s.buckets, bucketID)
	return detached, nil
}

func (s *Store) EnsureDefaultBuckets(_ context.Context, userID string, defaults []domain.Bucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for idx, d := range defaults {
		if s.nameTaken(userID, d.Name, "") {
			continue
		}
		b := d
		b.ID = uuid.NewString()
		b.UserID = userID
		b.IsDefault = true
		b.CreatedAt = now.Add(time.Duration(idx) * time.Millisecond)
		b.UpdatedAt = b.CreatedAt
		s.buckets[b.ID] = b
	}
	return nil
}

func (s *Store) nameTaken(userID, name, selfID string) bool {
	for id, b := range s.buckets {
		if id != selfID && b.UserID == userID && strings.EqualFold(b.Name, name) {
			return true
		}
	}
	return false
}

func (s *Store) countedBucket(b domain.Bucket) *domain.Bucket {
	b.EmailCount = 0
	for _, m := range s.messages {
		if m.BucketID != nil && *m.BucketID == b.ID {
			b.EmailCount++
		}
	}
	return &b
}
