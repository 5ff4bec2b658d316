package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
)

type MessageRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const messageColumns = `
	e.id, e.user_id, e.external_id, e.subject, e.sender_name, e.sender_email, e.preview, e.body_snippet,
	e.received_at, e.bucket_id, e.created_at, e.updated_at,
	b.id, b.name, b.description, b.color, b.is_default`

const messageFrom = `
FROM emails e
LEFT JOIN buckets b ON b.id = e.bucket_id`

func (r *MessageRepository) FindMessages(ctx context.Context, userID string, cond domain.MessageCondition, limit int) ([]domain.Message, error) {
	a := &args{}
	query := "SELECT" + messageColumns + messageFrom + "\nWHERE e.user_id = " + a.add(userID) +
		conditionClause(cond, a) +
		"\nORDER BY e.received_at DESC, e.id" + limitClause(limit, a)
	return r.queryMessages(ctx, "find messages", query, a.values...)
}

func (r *MessageRepository) ListMessages(ctx context.Context, userID string, cond domain.MessageCondition, limit, offset int) ([]domain.Message, error) {
	a := &args{}
	query := "SELECT" + messageColumns + messageFrom + "\nWHERE e.user_id = " + a.add(userID) +
		conditionClause(cond, a) +
		"\nORDER BY e.received_at DESC, e.id" + limitClause(limit, a)
	if offset > 0 {
		query += "\nOFFSET " + a.add(offset)
	}
	return r.queryMessages(ctx, "list messages", query, a.values...)
}

func (r *MessageRepository) CountMessages(ctx context.Context, userID string, cond domain.MessageCondition) (int, error) {
	a := &args{}
	query := "SELECT COUNT(*) FROM emails e\nWHERE e.user_id = " + a.add(userID) + conditionClause(cond, a)
	return r.count(ctx, "count messages", query, a.values...)
}

func (r *MessageRepository) ReceivedRange(ctx context.Context, userID string) (*time.Time, *time.Time, error) {
	var oldest, newest sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT MIN(received_at), MAX(received_at) FROM emails WHERE user_id = $1`, userID,
	).Scan(&oldest, &newest)
	if err != nil {
		return nil, nil, fmt.Errorf("received range: %w", err)
	}
	if !oldest.Valid || !newest.Valid {
		return nil, nil, nil
	}
	return &oldest.Time, &newest.Time, nil
}

func (r *MessageRepository) TopSenders(ctx context.Context, userID string, limit int) ([]domain.SenderCount, error) {
	a := &args{}
	query := `
SELECT COALESCE(NULLIF(sender_email, ''), sender_name) AS sender, COUNT(*) AS n
FROM emails
WHERE user_id = ` + a.add(userID) + ` AND COALESCE(NULLIF(sender_email, ''), sender_name) <> ''
GROUP BY 1
ORDER BY n DESC, sender` + limitClause(limit, a)

	rows, err := r.db.QueryContext(ctx, query, a.values...)
	if err != nil {
		return nil, fmt.Errorf("top senders: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SenderCount, 0)
	for rows.Next() {
		var sc domain.SenderCount
		if err := rows.Scan(&sc.Sender, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan top sender: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top senders: %w", err)
	}
	return out, nil
}

func (r *MessageRepository) SearchKeyword(ctx context.Context, userID, keyword string, limit int) ([]domain.Message, error) {
	a := &args{}
	userParam := a.add(userID)
	p := a.add(containsPattern(keyword))
	query := "SELECT" + messageColumns + messageFrom + `
WHERE e.user_id = ` + userParam + `
  AND (e.subject ILIKE ` + p + ` OR e.preview ILIKE ` + p + ` OR e.body_snippet ILIKE ` + p + `
       OR e.sender_name ILIKE ` + p + ` OR e.sender_email ILIKE ` + p + `)
ORDER BY e.received_at DESC, e.id` + limitClause(limit, a)
	return r.queryMessages(ctx, "search keyword", query, a.values...)
}

func (r *MessageRepository) CountEmbedded(ctx context.Context, userID string) (int, error) {
	return r.count(ctx, "count embedded", `SELECT COUNT(*) FROM emails WHERE user_id = $1 AND embedding IS NOT NULL`, userID)
}

func (r *MessageRepository) CountMissingEmbeddings(ctx context.Context, userID string) (int, error) {
	return r.count(ctx, "count missing embeddings", `SELECT COUNT(*) FROM emails WHERE user_id = $1 AND embedding IS NULL`, userID)
}

func (r *MessageRepository) ListCandidateIDs(ctx context.Context, userID string, cond domain.MessageCondition, limit int) ([]string, error) {
	a := &args{}
	query := "SELECT e.id FROM emails e\nWHERE e.user_id = " + a.add(userID) + " AND e.embedding IS NOT NULL" +
		conditionClause(cond, a) +
		"\nORDER BY e.received_at DESC, e.id" + limitClause(limit, a)

	rows, err := r.db.QueryContext(ctx, query, a.values...)
	if err != nil {
		return nil, fmt.Errorf("list candidate ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan candidate id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate ids: %w", err)
	}
	return ids, nil
}

func (r *MessageRepository) NearestNeighbors(ctx context.Context, userID string, query []float32, ids []string, limit int) ([]domain.SearchHit, error) {
	if ids != nil && len(ids) == 0 {
		return []domain.SearchHit{}, nil
	}

	a := &args{}
	userParam := a.add(userID)
	vec := a.add(pgVector(query))
	sqlText := "SELECT" + messageColumns + ",\n\t1 - (e.embedding <=> " + vec + "::vector) AS similarity" + messageFrom + `
WHERE e.user_id = ` + userParam + ` AND e.embedding IS NOT NULL`
	if ids != nil {
		sqlText += "\n  AND e.id = ANY(" + a.add(ids) + "::text[])"
	}
	sqlText += "\nORDER BY e.embedding <=> " + vec + "::vector, e.id" + limitClause(limit, a)

	rows, err := r.db.QueryContext(ctx, sqlText, a.values...)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbors: %w", err)
	}
	defer rows.Close()

	hits := make([]domain.SearchHit, 0)
	for rows.Next() {
		var similarity float64
		msg, err := scanMessage(rows, &similarity)
		if err != nil {
			return nil, err
		}
		score := similarity
		hits = append(hits, domain.SearchHit{Message: msg, Similarity: &score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nearest neighbors: %w", err)
	}
	return hits, nil
}

func (r *MessageRepository) ListMissingEmbeddings(ctx context.Context, userID string, limit int) ([]domain.Message, error) {
	a := &args{}
	query := "SELECT" + messageColumns + messageFrom + "\nWHERE e.user_id = " + a.add(userID) + " AND e.embedding IS NULL" +
		"\nORDER BY e.embedding_failed_at ASC NULLS FIRST, e.received_at ASC, e.id" + limitClause(limit, a)
	return r.queryMessages(ctx, "list missing embeddings", query, a.values...)
}

func (r *MessageRepository) MarkEmbeddingFailed(ctx context.Context, userID, messageID string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE emails
SET embedding_failed_at = $3
WHERE user_id = $1 AND id = $2 AND embedding IS NULL
`, userID, messageID, r.now())
	if err != nil {
		return fmt.Errorf("mark embedding failed: %w", err)
	}
	return requireAffected(res, domain.ErrMessageNotFound, "mark embedding failed", messageID)
}

func (r *MessageRepository) SetEmbedding(ctx context.Context, userID, messageID string, embedding []float32) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE emails
SET embedding = $3::vector, embedding_failed_at = NULL, updated_at = $4
WHERE user_id = $1 AND id = $2 AND embedding IS NULL
`, userID, messageID, pgVector(embedding), r.now())
	if err != nil {
		return false, fmt.Errorf("set embedding: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set embedding rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *MessageRepository) ResetEmbedding(ctx context.Context, userID, messageID string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE emails
SET embedding = NULL, embedding_failed_at = NULL, updated_at = $3
WHERE user_id = $1 AND id = $2
`, userID, messageID, r.now())
	if err != nil {
		return fmt.Errorf("reset embedding: %w", err)
	}
	return requireAffected(res, domain.ErrMessageNotFound, "reset embedding", messageID)
}

func (r *MessageRepository) GetMessage(ctx context.Context, userID, messageID string) (*domain.Message, error) {
	row := r.db.QueryRowContext(ctx, "SELECT"+messageColumns+",\n\te.embedding::text"+messageFrom+`
WHERE e.user_id = $1 AND e.id = $2
`, userID, messageID)

	var embedding sql.NullString
	msg, err := scanMessage(row, &embedding)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrMessageNotFound, "get message", fmt.Errorf("id=%s", messageID))
		}
		return nil, err
	}
	if embedding.Valid {
		vector, err := parseVector(embedding.String)
		if err != nil {
			return nil, err
		}
		msg.Embedding = vector
	}
	return &msg, nil
}

func (r *MessageRepository) UpsertMessages(ctx context.Context, userID string, messages []domain.MessageImport) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO emails (
	id, user_id, external_id, subject, sender_name, sender_email, preview, body_snippet, received_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
ON CONFLICT (user_id, external_id) DO UPDATE SET
	subject = EXCLUDED.subject,
	sender_name = EXCLUDED.sender_name,
	sender_email = EXCLUDED.sender_email,
	preview = EXCLUDED.preview,
	body_snippet = EXCLUDED.body_snippet,
	received_at = EXCLUDED.received_at,
	updated_at = EXCLUDED.updated_at
`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := r.now()
	for _, m := range messages {
		if _, err := stmt.ExecContext(ctx,
			uuid.NewString(), userID, m.ExternalID, m.Subject, m.SenderName, m.SenderEmail,
			m.Preview, m.BodySnippet, m.ReceivedAt.UTC(), now,
		); err != nil {
			return 0, fmt.Errorf("upsert message %s: %w", m.ExternalID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert tx: %w", err)
	}
	return len(messages), nil
}

func (r *MessageRepository) AssignBucket(ctx context.Context, userID, messageID string, bucketID *string) error {
	var bucket any
	if bucketID != nil {
		bucket = *bucketID
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE emails
SET bucket_id = $3, updated_at = $4
WHERE user_id = $1 AND id = $2
`, userID, messageID, bucket, r.now())
	if err != nil {
		return fmt.Errorf("assign bucket: %w", err)
	}
	return requireAffected(res, domain.ErrMessageNotFound, "assign bucket", messageID)
}

func (r *MessageRepository) count(ctx context.Context, operation, query string, params ...any) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, query, params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", operation, err)
	}
	return n, nil
}

func (r *MessageRepository) queryMessages(ctx context.Context, operation, query string, params ...any) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer rows.Close()

	out := make([]domain.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", operation, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanMessage reads messageColumns followed by any extra destinations.
func scanMessage(row rowScanner, extra ...any) (domain.Message, error) {
	var (
		msg        domain.Message
		bucketID   sql.NullString
		bID        sql.NullString
		bName      sql.NullString
		bDesc      sql.NullString
		bColor     sql.NullString
		bIsDefault sql.NullBool
	)
	dest := []any{
		&msg.ID, &msg.UserID, &msg.ExternalID, &msg.Subject, &msg.SenderName, &msg.SenderEmail,
		&msg.Preview, &msg.BodySnippet, &msg.ReceivedAt, &bucketID, &msg.CreatedAt, &msg.UpdatedAt,
		&bID, &bName, &bDesc, &bColor, &bIsDefault,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Message{}, err
		}
		return domain.Message{}, fmt.Errorf("scan message: %w", err)
	}
	if bucketID.Valid {
		id := bucketID.String
		msg.BucketID = &id
	}
	if bID.Valid {
		msg.Bucket = &domain.Bucket{
			ID:          bID.String,
			UserID:      msg.UserID,
			Name:        bName.String,
			Description: bDesc.String,
			Color:       bColor.String,
			IsDefault:   bIsDefault.Bool,
		}
	}
	return msg, nil
}

// conditionClause renders cond as AND-ed predicates on the e alias.
func conditionClause(cond domain.MessageCondition, a *args) string {
	var b strings.Builder
	if cond.ReceivedFrom != nil {
		b.WriteString("\n  AND e.received_at >= " + a.add(cond.ReceivedFrom.UTC()))
	}
	if cond.ReceivedTo != nil {
		b.WriteString("\n  AND e.received_at <= " + a.add(cond.ReceivedTo.UTC()))
	}
	if cond.Sender != "" {
		p := a.add(containsPattern(cond.Sender))
		b.WriteString("\n  AND (e.sender_name ILIKE " + p + " OR e.sender_email ILIKE " + p + ")")
	}
	if cond.BucketID != "" {
		b.WriteString("\n  AND e.bucket_id = " + a.add(cond.BucketID))
	}
	return b.String()
}

func limitClause(limit int, a *args) string {
	if limit <= 0 {
		return ""
	}
	return "\nLIMIT " + a.add(limit)
}

func requireAffected(res sql.Result, kind error, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(kind, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}
