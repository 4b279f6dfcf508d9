package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrBlobNotFound is returned when no object exists for a key.
var ErrBlobNotFound = errors.New("blob not found")

// Blob is a stored binary object, addressed by its bucket-scoped key.
type Blob struct {
	Key         string
	ContentType string
	Data        []byte
	UpdatedAt   time.Time
}

// BlobRepository stores mirrored media objects.
type BlobRepository struct {
	pool *pgxpool.Pool
}

// NewBlobRepository creates a new BlobRepository instance.
func NewBlobRepository(pool *pgxpool.Pool) *BlobRepository {
	return &BlobRepository{pool: pool}
}

// Put stores an object under the key, replacing any previous content.
// Mirroring the same user's photo twice is a plain overwrite.
func (r *BlobRepository) Put(ctx context.Context, key, contentType string, data []byte) error {
	const query = `
		INSERT INTO blobs (key, content_type, data, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (key) DO UPDATE
		SET content_type = EXCLUDED.content_type, data = EXCLUDED.data, updated_at = NOW()
	`

	if _, err := r.pool.Exec(ctx, query, key, contentType, data); err != nil {
		return fmt.Errorf("failed to store blob: %w", err)
	}

	return nil
}

// Get retrieves the object stored under the key.
// Returns ErrBlobNotFound if no object exists.
func (r *BlobRepository) Get(ctx context.Context, key string) (*Blob, error) {
	const query = `SELECT key, content_type, data, updated_at FROM blobs WHERE key = $1`

	var blob Blob
	err := r.pool.QueryRow(ctx, query, key).Scan(&blob.Key, &blob.ContentType, &blob.Data, &blob.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to get blob: %w", err)
	}

	return &blob, nil
}
