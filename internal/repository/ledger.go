package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Referral credit statuses. A credit is recorded as applied right after
// the referrer's document was updated; it is marked orphaned when the
// referred user's own document write failed afterwards, so operators can
// find and reconcile the inconsistency.
const (
	CreditStatusApplied  = "applied"
	CreditStatusOrphaned = "orphaned"
)

// ReferralCredit is one row of the referral credit ledger.
type ReferralCredit struct {
	ID         int64
	ReferrerID string
	ReferredID string
	Amount     int64
	Status     string
	CreatedAt  time.Time
}

// LedgerRepository records every referral credit applied to a referrer.
// The ledger exists purely for operator reconciliation; the balance of
// record lives in the user document.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepository instance.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// Record inserts a credit row and returns its id.
func (r *LedgerRepository) Record(ctx context.Context, referrerID, referredID string, amount int64) (int64, error) {
	const query = `
		INSERT INTO referral_credits (referrer_id, referred_id, amount, status, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id
	`

	var id int64
	err := r.pool.QueryRow(ctx, query, referrerID, referredID, amount, CreditStatusApplied).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to record referral credit: %w", err)
	}

	return id, nil
}

// MarkOrphaned flags a credit whose referred-user write failed.
func (r *LedgerRepository) MarkOrphaned(ctx context.Context, id int64) error {
	const query = `UPDATE referral_credits SET status = $2 WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id, CreditStatusOrphaned); err != nil {
		return fmt.Errorf("failed to mark credit orphaned: %w", err)
	}

	return nil
}

// ByReferrer lists credits applied to a referrer, newest first.
func (r *LedgerRepository) ByReferrer(ctx context.Context, referrerID string) ([]*ReferralCredit, error) {
	const query = `
		SELECT id, referrer_id, referred_id, amount, status, created_at
		FROM referral_credits
		WHERE referrer_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, referrerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list referral credits: %w", err)
	}
	defer rows.Close()

	var credits []*ReferralCredit
	for rows.Next() {
		var c ReferralCredit
		if err := rows.Scan(&c.ID, &c.ReferrerID, &c.ReferredID, &c.Amount, &c.Status, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan referral credit: %w", err)
		}
		credits = append(credits, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating referral credits: %w", err)
	}

	return credits, nil
}
