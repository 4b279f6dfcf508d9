// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/diamondheist/diamondbackend/internal/model"
	"github.com/diamondheist/diamondbackend/internal/pkg/lock"
)

// Common errors for provisioning operations.
var (
	ErrEmptyUserID = errors.New("user id must not be empty")
)

// lockTimeout bounds how long a webhook delivery waits for another
// delivery of the same user to finish.
const lockTimeout = 15 * time.Second

// UserStore is the document-store surface the provisioning transaction
// needs. *repository.UserRepository satisfies it.
type UserStore interface {
	Get(ctx context.Context, id string) (*model.User, error)
	Exists(ctx context.Context, id string) (bool, error)
	CreateIfAbsent(ctx context.Context, user *model.User) (bool, error)
	CreditReferral(ctx context.Context, referrerID, referredID string, entry model.ReferralEntry, bonus int64) error
}

// ReferralLedger records applied referral credits for reconciliation.
// *repository.LedgerRepository satisfies it.
type ReferralLedger interface {
	Record(ctx context.Context, referrerID, referredID string, amount int64) (int64, error)
	MarkOrphaned(ctx context.Context, id int64) error
}

// PhotoMirror copies the user's profile photo into owned storage.
// Best-effort: a nil URL means no photo could be mirrored.
type PhotoMirror interface {
	MirrorProfilePhoto(ctx context.Context, userID string) *string
}

// ProvisionResult reports the outcome of a provisioning attempt.
type ProvisionResult struct {
	// Created is false when the user was already provisioned.
	Created bool
	User    *model.User
}

// ProvisioningService creates user documents on first contact and applies
// referral bonuses to referrers.
type ProvisioningService struct {
	store  UserStore
	ledger ReferralLedger
	mirror PhotoMirror
	locks  *lock.UserLock
}

// NewProvisioningService creates a new ProvisioningService instance.
func NewProvisioningService(store UserStore, ledger ReferralLedger, mirror PhotoMirror, locks *lock.UserLock) *ProvisioningService {
	return &ProvisioningService{
		store:  store,
		ledger: ledger,
		mirror: mirror,
		locks:  locks,
	}
}

// Provision creates the user's document if this is their first contact.
// referralCode is the raw /start payload; only "ref_<id>" payloads count.
//
// Idempotent: a second call for the same id is a no-op returning the
// existing document. The whole transaction runs under a per-user lock,
// and the store writes themselves are conditional/atomic, so concurrent
// deliveries cannot double-create or double-credit.
func (s *ProvisioningService) Provision(ctx context.Context, userID string, profile model.Profile, referralCode string) (*ProvisionResult, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	var result *ProvisionResult
	err := s.locks.WithLockContext(ctx, userID, lockTimeout, func() error {
		var err error
		result, err = s.provision(ctx, userID, profile, referralCode)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *ProvisioningService) provision(ctx context.Context, userID string, profile model.Profile, referralCode string) (*ProvisionResult, error) {
	exists, err := s.store.Exists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check user existence: %w", err)
	}
	if exists {
		user, err := s.store.Get(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load existing user: %w", err)
		}
		return &ProvisionResult{Created: false, User: user}, nil
	}

	// Best-effort: absence of a photo or a mirror failure never aborts
	// provisioning.
	userImage := s.mirror.MirrorProfilePhoto(ctx, userID)

	user := model.NewUser(userID, profile, userImage)

	var ledgerID int64
	credited := false

	if referrerID, ok := model.ParseReferralCode(referralCode); ok {
		refExists, err := s.store.Exists(ctx, referrerID)
		if err != nil {
			return nil, fmt.Errorf("failed to check referrer existence: %w", err)
		}

		if refExists {
			bonus := model.ReferralBonus(profile.IsPremium)
			user.ReferredBy = model.ReferredByID(referrerID)

			entry := model.ReferralEntry{
				AddedValue: bonus,
				FirstName:  profile.FirstName,
				LastName:   profile.LastName,
				UserImage:  userImage,
			}
			if err := s.store.CreditReferral(ctx, referrerID, userID, entry, bonus); err != nil {
				return nil, fmt.Errorf("failed to credit referrer: %w", err)
			}
			credited = true

			ledgerID, err = s.ledger.Record(ctx, referrerID, userID, bonus)
			if err != nil {
				// The credit itself was applied; the ledger is
				// reconciliation metadata only.
				log.Warn().Err(err).
					Str("referrer_id", referrerID).
					Str("referred_id", userID).
					Msg("Failed to record referral credit in ledger")
			}

			log.Info().
				Str("referrer_id", referrerID).
				Str("referred_id", userID).
				Int64("bonus", bonus).
				Msg("Referral bonus credited")
		} else {
			// Code supplied but referrer unknown: the document carries
			// an explicit null, distinct from no code at all.
			user.ReferredBy = model.ReferredByNull()
		}
	}

	created, err := s.store.CreateIfAbsent(ctx, user)
	if err != nil {
		if credited {
			// The referrer was already credited; flag it for manual
			// reconciliation and log it apart from ordinary failures.
			log.Error().Err(err).
				Str("event", "referral_partial_failure").
				Str("referred_id", userID).
				Int64("ledger_id", ledgerID).
				Msg("Referrer credited but user document write failed")
			if ledgerID != 0 {
				if lerr := s.ledger.MarkOrphaned(ctx, ledgerID); lerr != nil {
					log.Error().Err(lerr).Int64("ledger_id", ledgerID).Msg("Failed to mark referral credit orphaned")
				}
			}
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	if !created {
		// Lost a cross-process race; the other writer's document wins.
		log.Warn().Str("user_id", userID).Msg("User was provisioned concurrently")
		existing, err := s.store.Get(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load concurrently created user: %w", err)
		}
		return &ProvisionResult{Created: false, User: existing}, nil
	}

	log.Info().
		Str("user_id", userID).
		Bool("is_premium", profile.IsPremium).
		Bool("has_image", userImage != nil).
		Msg("User provisioned")

	return &ProvisionResult{Created: true, User: user}, nil
}
