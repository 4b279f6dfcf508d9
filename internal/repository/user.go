// Package repository provides data access over PostgreSQL. User documents
// are stored as JSONB, keyed by the stringified Telegram user id, so the
// document keeps the exact field names the mini-app reads.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diamondheist/diamondbackend/internal/model"
)

// Common errors for repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
)

// UserRepository handles user document persistence.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Get retrieves a user document by id.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) Get(ctx context.Context, id string) (*model.User, error) {
	const query = `SELECT doc FROM users WHERE id = $1`

	var raw []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var user model.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("failed to decode user document: %w", err)
	}

	return &user, nil
}

// Exists checks if a user document with the given id exists.
func (r *UserRepository) Exists(ctx context.Context, id string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}

	return exists, nil
}

// Set fully overwrites the user document, creating it if absent.
func (r *UserRepository) Set(ctx context.Context, user *model.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user document: %w", err)
	}

	const query = `
		INSERT INTO users (id, doc, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()
	`

	if _, err := r.pool.Exec(ctx, query, user.ID, raw); err != nil {
		return fmt.Errorf("failed to set user: %w", err)
	}

	return nil
}

// CreateIfAbsent inserts the document only when no document exists for its
// id. Returns whether the insert happened. This is the conditional write
// that makes first-contact provisioning safe against concurrent deliveries.
func (r *UserRepository) CreateIfAbsent(ctx context.Context, user *model.User) (bool, error) {
	raw, err := json.Marshal(user)
	if err != nil {
		return false, fmt.Errorf("failed to encode user document: %w", err)
	}

	const query = `
		INSERT INTO users (id, doc, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query, user.ID, raw)
	if err != nil {
		return false, fmt.Errorf("failed to create user: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// Merge applies a partial field update to an existing document, leaving
// all other fields untouched.
func (r *UserRepository) Merge(ctx context.Context, id string, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode update: %w", err)
	}

	const query = `
		UPDATE users
		SET doc = doc || $2::jsonb, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, raw)
	if err != nil {
		return fmt.Errorf("failed to merge user fields: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// CreditReferral applies the referral bonus to the referrer's document in
// a single server-side update: balance += bonus and the referrals map
// gains the entry for the referred user. Doing both in one statement keeps
// concurrent credits to the same referrer from losing updates.
func (r *UserRepository) CreditReferral(ctx context.Context, referrerID, referredID string, entry model.ReferralEntry, bonus int64) error {
	rawEntry, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode referral entry: %w", err)
	}

	const query = `
		UPDATE users
		SET doc = jsonb_set(
				doc || jsonb_build_object('balance', COALESCE((doc->>'balance')::bigint, 0) + $2),
				'{referrals}',
				COALESCE(doc->'referrals', '{}'::jsonb) || jsonb_build_object($3::text, $4::jsonb)
			),
			updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, referrerID, bonus, referredID, rawEntry)
	if err != nil {
		return fmt.Errorf("failed to credit referral: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}
