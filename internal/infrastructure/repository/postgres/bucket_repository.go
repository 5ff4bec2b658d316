package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
)

type BucketRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewBucketRepository(db *sql.DB) *BucketRepository {
	return &BucketRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const bucketSelect = `
SELECT b.id, b.user_id, b.name, b.description, b.color, b.is_default, b.created_at, b.updated_at,
	(SELECT COUNT(*) FROM emails e WHERE e.bucket_id = b.id) AS email_count
FROM buckets b
`

func (r *BucketRepository) FindBucketByName(ctx context.Context, userID, name string) (*domain.Bucket, error) {
	row := r.db.QueryRowContext(ctx, bucketSelect+`WHERE b.user_id = $1 AND lower(b.name) = lower($2)`, userID, name)
	bucket, err := scanBucket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WrapError(domain.ErrBucketNotFound, "find bucket", fmt.Errorf("name=%s", name))
	}
	if err != nil {
		return nil, err
	}
	return &bucket, nil
}

func (r *BucketRepository) GetBucket(ctx context.Context, userID, bucketID string) (*domain.Bucket, error) {
	row := r.db.QueryRowContext(ctx, bucketSelect+`WHERE b.user_id = $1 AND b.id = $2`, userID, bucketID)
	bucket, err := scanBucket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WrapError(domain.ErrBucketNotFound, "get bucket", fmt.Errorf("id=%s", bucketID))
	}
	if err != nil {
		return nil, err
	}
	return &bucket, nil
}

func (r *BucketRepository) ListBuckets(ctx context.Context, userID string) ([]domain.Bucket, error) {
	rows, err := r.db.QueryContext(ctx, bucketSelect+`WHERE b.user_id = $1
ORDER BY b.is_default DESC, b.created_at ASC, b.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Bucket, 0)
	for rows.Next() {
		bucket, err := scanBucket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, bucket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buckets: %w", err)
	}
	return out, nil
}

func (r *BucketRepository) CreateBucket(ctx context.Context, bucket *domain.Bucket) error {
	if bucket.ID == "" {
		bucket.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO buckets (id, user_id, name, description, color, is_default, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, bucket.ID, bucket.UserID, bucket.Name, bucket.Description, bucket.Color, bucket.IsDefault, bucket.CreatedAt, bucket.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.WrapError(domain.ErrConflict, "create bucket", fmt.Errorf("name=%s", bucket.Name))
	}
	if err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

func (r *BucketRepository) UpdateBucket(ctx context.Context, bucket *domain.Bucket) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE buckets
SET name = $3, description = $4, color = $5, updated_at = $6
WHERE user_id = $1 AND id = $2
`, bucket.UserID, bucket.ID, bucket.Name, bucket.Description, bucket.Color, bucket.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.WrapError(domain.ErrConflict, "update bucket", fmt.Errorf("name=%s", bucket.Name))
	}
	if err != nil {
		return fmt.Errorf("update bucket: %w", err)
	}
	return requireAffected(res, domain.ErrBucketNotFound, "update bucket", bucket.ID)
}

func (r *BucketRepository) DeleteBucket(ctx context.Context, userID, bucketID string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete bucket tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
UPDATE emails
SET bucket_id = NULL, updated_at = $3
WHERE user_id = $1 AND bucket_id = $2
`, userID, bucketID, r.now())
	if err != nil {
		return 0, fmt.Errorf("detach bucket emails: %w", err)
	}
	detached, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("detach bucket emails rows affected: %w", err)
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM buckets WHERE user_id = $1 AND id = $2`, userID, bucketID)
	if err != nil {
		return 0, fmt.Errorf("delete bucket: %w", err)
	}
	if err := requireAffected(res, domain.ErrBucketNotFound, "delete bucket", bucketID); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete bucket tx: %w", err)
	}
	return int(detached), nil
}

// EnsureDefaultBuckets inserts the defaults a user lacks. Existing names,
// default or not, are left untouched.
func (r *BucketRepository) EnsureDefaultBuckets(ctx context.Context, userID string, defaults []domain.Bucket) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin default buckets tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := r.now()
	for idx, d := range defaults {
		createdAt := now.Add(time.Duration(idx) * time.Millisecond)
		if _, err := tx.ExecContext(ctx, `
INSERT INTO buckets (id, user_id, name, description, color, is_default, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,TRUE,$6,$6)
ON CONFLICT DO NOTHING
`, uuid.NewString(), userID, d.Name, d.Description, d.Color, createdAt); err != nil {
			return fmt.Errorf("insert default bucket %s: %w", d.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit default buckets tx: %w", err)
	}
	return nil
}

func scanBucket(row rowScanner) (domain.Bucket, error) {
	var b domain.Bucket
	err := row.Scan(&b.ID, &b.UserID, &b.Name, &b.Description, &b.Color, &b.IsDefault, &b.CreatedAt, &b.UpdatedAt, &b.EmailCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Bucket{}, err
		}
		return domain.Bucket{}, fmt.Errorf("scan bucket: %w", err)
	}
	return b, nil
}
