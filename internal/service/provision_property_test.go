// Property-based tests for the provisioning transaction.
package service

import (
	"context"
	"testing"

	"pgregory.net/rapid"

	"github.com/diamondheist/diamondbackend/internal/model"
)

// TestReferralCreditProperty checks that for any existing referrer and
// any new user, a valid referral code always moves the referrer's balance
// by exactly the bonus for the new user's premium flag and adds exactly
// one referrals entry keyed by the new user's id.
func TestReferralCreditProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		referrerID := rapid.StringMatching(`[0-9]{1,12}`).Draw(t, "referrerID")
		newUserID := rapid.StringMatching(`[0-9]{1,12}`).Draw(t, "newUserID")
		if newUserID == referrerID {
			t.Skip("distinct users")
		}
		startBalance := rapid.Int64Range(0, 1_000_000).Draw(t, "startBalance")
		premium := rapid.Bool().Draw(t, "premium")
		existingReferrals := rapid.IntRange(0, 5).Draw(t, "existingReferrals")

		store := newFakeStore()
		referrer := &model.User{
			ID:        referrerID,
			Balance:   startBalance,
			Referrals: map[string]model.ReferralEntry{},
		}
		for i := 0; i < existingReferrals; i++ {
			referrer.Referrals[rapid.StringMatching(`prev[0-9]{1,6}`).Draw(t, "prevID")] = model.ReferralEntry{AddedValue: 100}
		}
		priorCount := len(referrer.Referrals)
		store.users[referrerID] = referrer

		svc := newService(store, &fakeLedger{}, &fakeMirror{})

		res, err := svc.Provision(context.Background(), newUserID, model.Profile{IsPremium: premium}, "ref_"+referrerID)
		if err != nil {
			t.Fatalf("provision failed: %v", err)
		}
		if !res.Created {
			t.Fatalf("expected creation for fresh id %q", newUserID)
		}

		wantBonus := model.ReferralBonus(premium)
		if got := store.users[referrerID].Balance; got != startBalance+wantBonus {
			t.Fatalf("balance: got %d, want %d + %d", got, startBalance, wantBonus)
		}
		if got := len(store.users[referrerID].Referrals); got != priorCount+1 {
			t.Fatalf("referrals count: got %d, want %d", got, priorCount+1)
		}
		entry, ok := store.users[referrerID].Referrals[newUserID]
		if !ok {
			t.Fatalf("missing referrals entry for %q", newUserID)
		}
		if entry.AddedValue != wantBonus {
			t.Fatalf("addedValue: got %d, want %d", entry.AddedValue, wantBonus)
		}
		if res.User.ReferredBy != model.ReferredByID(referrerID) {
			t.Fatalf("referredBy: got %+v", res.User.ReferredBy)
		}
	})
}

// TestProvisionIdempotenceProperty checks that any number of repeated
// provisioning calls for the same id results in exactly one document and
// at most one referral credit.
func TestProvisionIdempotenceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		userID := rapid.StringMatching(`[0-9]{1,12}`).Draw(t, "userID")
		calls := rapid.IntRange(2, 6).Draw(t, "calls")
		withReferrer := rapid.Bool().Draw(t, "withReferrer")

		store := newFakeStore()
		code := ""
		if withReferrer {
			refID := "9" + userID // distinct from userID by construction
			store.users[refID] = &model.User{ID: refID}
			code = "ref_" + refID
		}

		svc := newService(store, &fakeLedger{}, &fakeMirror{})

		createdCount := 0
		for i := 0; i < calls; i++ {
			res, err := svc.Provision(context.Background(), userID, model.Profile{}, code)
			if err != nil {
				t.Fatalf("provision call %d failed: %v", i, err)
			}
			if res.Created {
				createdCount++
			}
		}

		if createdCount != 1 {
			t.Fatalf("created %d times, want exactly once", createdCount)
		}
		if store.creditCalls > 1 {
			t.Fatalf("referrer credited %d times, want at most once", store.creditCalls)
		}
	})
}

// TestReferralCodeParseProperty checks the code format round trip.
func TestReferralCodeParseProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		id := rapid.StringMatching(`[A-Za-z0-9_]{1,20}`).Draw(t, "id")

		got, ok := model.ParseReferralCode("ref_" + id)
		if !ok || got != id {
			t.Fatalf("ParseReferralCode(ref_%s) = (%q, %v)", id, got, ok)
		}
	})

	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.String().Draw(t, "payload")
		if len(payload) >= 5 && payload[:4] == "ref_" {
			t.Skip("valid codes covered above")
		}
		if _, ok := model.ParseReferralCode(payload); ok {
			t.Fatalf("payload %q should not parse as a referral code", payload)
		}
	})
}
