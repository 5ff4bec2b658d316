package domain

import (
	"strings"
	"time"
)

type Message struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ExternalID  string    `json:"external_id"`
	Subject     string    `json:"subject"`
	SenderName  string    `json:"sender"`
	SenderEmail string    `json:"sender_email"`
	Preview     string    `json:"preview"`
	BodySnippet string    `json:"body_snippet,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
	BucketID    *string   `json:"bucket_id"`
	Bucket      *Bucket   `json:"bucket,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Embedding is nil until backfilled. Once set it is never overwritten.
	Embedding []float32 `json:"-"`
	// EmbeddingFailedAt marks the last backfill attempt that could not embed
	// the message. Such messages are retried after every fresh one.
	EmbeddingFailedAt *time.Time `json:"-"`
}

func (m Message) HasEmbedding() bool {
	return len(m.Embedding) > 0
}

// EmbeddingInput is the text the embedding of a message is computed from.
// Messages without subject, sender name and preview fall back to the sender
// address and body snippet.
func (m Message) EmbeddingInput() string {
	input := strings.TrimSpace(m.Subject + "\n" + m.SenderName + "\n" + m.Preview)
	if input != "" {
		return input
	}
	return strings.TrimSpace(m.SenderEmail + "\n" + TruncateRunes(m.BodySnippet, PreviewMaxRunes))
}

const PreviewMaxRunes = 200

// TruncateRunes cuts s to at most limit runes.
func TruncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// MessageImport is one message as handed over by the mailbox ingestion client.
type MessageImport struct {
	ExternalID  string    `json:"external_id"`
	Subject     string    `json:"subject"`
	SenderName  string    `json:"sender"`
	SenderEmail string    `json:"sender_email"`
	Preview     string    `json:"preview"`
	BodySnippet string    `json:"body_snippet"`
	ReceivedAt  time.Time `json:"received_at"`
}

type ImportReport struct {
	Imported int  `json:"imported"`
	Queued   bool `json:"backfill_queued"`
}

// MessagePage is one page of a user's messages, newest first.
type MessagePage struct {
	Emails []Message `json:"emails"`
	Total  int       `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}
