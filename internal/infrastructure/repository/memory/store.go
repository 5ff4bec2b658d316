// Package memory is an in-process MessageStore and BucketStore. It keeps no
// state across restarts and is meant for local runs and scenario tests.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
)

type Store struct {
	mu       sync.RWMutex
	messages map[string]domain.Message
	buckets  map[string]domain.Bucket
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		messages: make(map[string]domain.Message),
		buckets:  make(map[string]domain.Bucket),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// PutMessage stores msg as is, assigning an id when it has none.
func (s *Store) PutMessage(msg domain.Message) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Embedding = cloneVector(msg.Embedding)
	msg.Bucket = nil
	s.messages[msg.ID] = msg
	return msg
}

func (s *Store) FindMessages(_ context.Context, userID string, cond domain.MessageCondition, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.filter(userID, func(m domain.Message) bool { return matchesCondition(m, cond) })
	return s.withBuckets(truncate(out, limit)), nil
}

func (s *Store) ListMessages(_ context.Context, userID string, cond domain.MessageCondition, limit, offset int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.filter(userID, func(m domain.Message) bool { return matchesCondition(m, cond) })
	if offset >= len(out) {
		return []domain.Message{}, nil
	}
	if offset > 0 {
		out = out[offset:]
	}
	return s.withBuckets(truncate(out, limit)), nil
}

func (s *Store) CountMessages(_ context.Context, userID string, cond domain.MessageCondition) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filter(userID, func(m domain.Message) bool { return matchesCondition(m, cond) })), nil
}

func (s *Store) ReceivedRange(_ context.Context, userID string) (*time.Time, *time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.filter(userID, func(domain.Message) bool { return true })
	if len(all) == 0 {
		return nil, nil, nil
	}
	oldest, newest := all[len(all)-1].ReceivedAt, all[0].ReceivedAt
	return &oldest, &newest, nil
}

func (s *Store) TopSenders(_ context.Context, userID string, limit int) ([]domain.SenderCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, m := range s.messages {
		if m.UserID != userID {
			continue
		}
		sender := m.SenderEmail
		if sender == "" {
			sender = m.SenderName
		}
		if sender != "" {
			counts[sender]++
		}
	}

	out := make([]domain.SenderCount, 0, len(counts))
	for sender, n := range counts {
		out = append(out, domain.SenderCount{Sender: sender, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Sender < out[j].Sender
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SearchKeyword(_ context.Context, userID, keyword string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(keyword)
	out := s.filter(userID, func(m domain.Message) bool {
		for _, field := range []string{m.Subject, m.Preview, m.BodySnippet, m.SenderName, m.SenderEmail} {
			if strings.Contains(strings.ToLower(field), needle) {
				return true
			}
		}
		return false
	})
	return s.withBuckets(truncate(out, limit)), nil
}

func (s *Store) CountEmbedded(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filter(userID, domain.Message.HasEmbedding)), nil
}

func (s *Store) CountMissingEmbeddings(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filter(userID, func(m domain.Message) bool { return !m.HasEmbedding() })), nil
}

func (s *Store) ListCandidateIDs(_ context.Context, userID string, cond domain.MessageCondition, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.filter(userID, func(m domain.Message) bool {
		return m.HasEmbedding() && matchesCondition(m, cond)
	})
	matched = truncate(matched, limit)
	ids := make([]string, 0, len(matched))
	for _, m := range matched {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (s *Store) NearestNeighbors(_ context.Context, userID string, query []float32, ids []string, limit int) ([]domain.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var allowed map[string]struct{}
	if ids != nil {
		allowed = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			allowed[id] = struct{}{}
		}
	}

	hits := make([]domain.SearchHit, 0)
	for _, m := range s.messages {
		if m.UserID != userID || !m.HasEmbedding() {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[m.ID]; !ok {
				continue
			}
		}
		if len(m.Embedding) != len(query) {
			return nil, fmt.Errorf("embedding dimension mismatch: stored %d, query %d", len(m.Embedding), len(query))
		}
		score := CosineSimilarity(query, m.Embedding)
		hits = append(hits, domain.SearchHit{Message: s.withBucket(m), Similarity: &score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if *hits[i].Similarity != *hits[j].Similarity {
			return *hits[i].Similarity > *hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *Store) ListMissingEmbeddings(_ context.Context, userID string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.filter(userID, func(m domain.Message) bool { return !m.HasEmbedding() })
	// oldest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].EmbeddingFailedAt, out[j].EmbeddingFailedAt
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
	return s.withBuckets(truncate(out, limit)), nil
}

func (s *Store) MarkEmbeddingFailed(_ context.Context, userID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok || m.UserID != userID {
		return domain.WrapError(domain.ErrMessageNotFound, "mark embedding failed", fmt.Errorf("id=%s", messageID))
	}
	failedAt := s.now()
	m.EmbeddingFailedAt = &failedAt
	s.messages[messageID] = m
	return nil
}

func (s *Store) SetEmbedding(_ context.Context, userID, messageID string, embedding []float32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok || m.UserID != userID || m.HasEmbedding() {
		return false, nil
	}
	m.Embedding = cloneVector(embedding)
	m.EmbeddingFailedAt = nil
	m.UpdatedAt = s.now()
	s.messages[messageID] = m
	return true, nil
}

func (s *Store) ResetEmbedding(_ context.Context, userID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok || m.UserID != userID {
		return domain.WrapError(domain.ErrMessageNotFound, "reset embedding", fmt.Errorf("id=%s", messageID))
	}
	m.Embedding = nil
	m.EmbeddingFailedAt = nil
	m.UpdatedAt = s.now()
	s.messages[messageID] = m
	return nil
}

func (s *Store) GetMessage(_ context.Context, userID, messageID string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[messageID]
	if !ok || m.UserID != userID {
		return nil, domain.WrapError(domain.ErrMessageNotFound, "get message", fmt.Errorf("id=%s", messageID))
	}
	m = s.withBucket(m)
	m.Embedding = cloneVector(m.Embedding)
	return &m, nil
}

func (s *Store) UpsertMessages(_ context.Context, userID string, messages []domain.MessageImport) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byExternal := make(map[string]string)
	for id, m := range s.messages {
		if m.UserID == userID {
			byExternal[m.ExternalID] = id
		}
	}

	now := s.now()
	for _, in := range messages {
		id, exists := byExternal[in.ExternalID]
		msg := domain.Message{ID: id, UserID: userID, CreatedAt: now}
		if exists {
			msg = s.messages[id]
		} else {
			msg.ID = uuid.NewString()
			byExternal[in.ExternalID] = msg.ID
		}
		msg.ExternalID = in.ExternalID
		msg.Subject = in.Subject
		msg.SenderName = in.SenderName
		msg.SenderEmail = in.SenderEmail
		msg.Preview = in.Preview
		msg.BodySnippet = in.BodySnippet
		msg.ReceivedAt = in.ReceivedAt
		msg.UpdatedAt = now
		s.messages[msg.ID] = msg
	}
	return len(messages), nil
}

func (s *Store) AssignBucket(_ context.Context, userID, messageID string, bucketID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok || m.UserID != userID {
		return domain.WrapError(domain.ErrMessageNotFound, "assign bucket", fmt.Errorf("id=%s", messageID))
	}
	if bucketID != nil {
		id := *bucketID
		m.BucketID = &id
	} else {
		m.BucketID = nil
	}
	m.UpdatedAt = s.now()
	s.messages[messageID] = m
	return nil
}

// filter returns the user's messages accepted by keep, newest first.
func (s *Store) filter(userID string, keep func(domain.Message) bool) []domain.Message {
	out := make([]domain.Message, 0)
	for _, m := range s.messages {
		if m.UserID == userID && keep(m) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.After(out[j].ReceivedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) withBuckets(messages []domain.Message) []domain.Message {
	for i := range messages {
		messages[i] = s.withBucket(messages[i])
	}
	return messages
}

func (s *Store) withBucket(m domain.Message) domain.Message {
	m.Bucket = nil
	if m.BucketID == nil {
		return m
	}
	if b, ok := s.buckets[*m.BucketID]; ok {
		m.Bucket = &b
	}
	return m
}

func matchesCondition(m domain.Message, cond domain.MessageCondition) bool {
	if cond.ReceivedFrom != nil && m.ReceivedAt.Before(*cond.ReceivedFrom) {
		return false
	}
	if cond.ReceivedTo != nil && m.ReceivedAt.After(*cond.ReceivedTo) {
		return false
	}
	if cond.Sender != "" {
		needle := strings.ToLower(cond.Sender)
		if !strings.Contains(strings.ToLower(m.SenderName), needle) &&
			!strings.Contains(strings.ToLower(m.SenderEmail), needle) {
			return false
		}
	}
	if cond.BucketID != "" && (m.BucketID == nil || *m.BucketID != cond.BucketID) {
		return false
	}
	return true
}

func truncate(messages []domain.Message, limit int) []domain.Message {
	if limit > 0 && len(messages) > limit {
		return messages[:limit]
	}
	return messages
}

func cloneVector(v []float32) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either is empty, zero, or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
