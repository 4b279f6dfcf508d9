// Package model defines the user document shape persisted by the bot.
package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Referral bonus amounts, keyed off the new user's premium flag.
const (
	ReferralBonusPremium int64 = 500
	ReferralBonusDefault int64 = 100
)

// DefaultMineRate is the mining rate assigned to every new user.
const DefaultMineRate = 0.001

// referralCodePrefix marks a /start payload as a referral code.
const referralCodePrefix = "ref_"

// Profile is the snapshot of the Telegram profile taken at first contact.
type Profile struct {
	FirstName    string
	LastName     string
	Username     string
	LanguageCode string
	IsPremium    bool
}

// ReferredBy is the tri-state referredBy field of a user document:
// the field is absent when no referral code was supplied, an explicit
// JSON null when a code was supplied but the referrer does not exist,
// and a user id otherwise. All three states round-trip through JSON.
type ReferredBy struct {
	Set bool   // field present in the document
	ID  string // empty means explicit null
}

// ReferredByID returns a set ReferredBy pointing at the given user.
func ReferredByID(id string) ReferredBy { return ReferredBy{Set: true, ID: id} }

// ReferredByNull returns the explicit-null state.
func ReferredByNull() ReferredBy { return ReferredBy{Set: true} }

// IsZero reports whether the field should be omitted entirely.
// Used by encoding/json via the omitzero tag option.
func (r ReferredBy) IsZero() bool { return !r.Set }

func (r ReferredBy) MarshalJSON() ([]byte, error) {
	if r.ID == "" {
		return []byte("null"), nil
	}
	return json.Marshal(r.ID)
}

func (r *ReferredBy) UnmarshalJSON(b []byte) error {
	r.Set = true
	if string(b) == "null" {
		r.ID = ""
		return nil
	}
	return json.Unmarshal(b, &r.ID)
}

// ReferralEntry is one entry in a referrer's referrals map, keyed by the
// referred user's id.
type ReferralEntry struct {
	AddedValue int64   `json:"addedValue"`
	FirstName  string  `json:"firstName"`
	LastName   string  `json:"lastName"`
	UserImage  *string `json:"userImage"`
}

// Daily tracks the daily claim state. Written at creation and only
// mutated by the mini-app, never by this service.
type Daily struct {
	ClaimedTime *time.Time `json:"claimedTime,omitempty"`
	ClaimDay    int        `json:"claimDay"`
}

// User is the per-user document. JSON field names are the stored document
// field names and must not change: the mini-app reads them directly.
type User struct {
	ID                string                   `json:"id"`
	FirstName         string                   `json:"firstName"`
	LastName          string                   `json:"lastName"`
	UserName          string                   `json:"userName"`
	LanguageCode      string                   `json:"languageCode"`
	IsPremium         bool                     `json:"isPremium"`
	UserImage         *string                  `json:"userImage,omitempty"`
	Balance           int64                    `json:"balance"`
	MineRate          float64                  `json:"mineRate"`
	IsMining          bool                     `json:"isMining"`
	MiningStartedTime *time.Time               `json:"miningStartedTime,omitempty"`
	Daily             Daily                    `json:"daily"`
	ReferredBy        ReferredBy               `json:"referredBy,omitzero"`
	Referrals         map[string]ReferralEntry `json:"referrals"`
	Links             json.RawMessage          `json:"links,omitempty"` // reserved
}

// NewUser builds the initial document for a first-contact user.
// referredBy stays in its absent state; the provisioning transaction sets
// it when a referral code is involved.
func NewUser(id string, profile Profile, userImage *string) *User {
	lang := profile.LanguageCode
	if lang == "" {
		lang = "unknown"
	}
	return &User{
		ID:           id,
		FirstName:    profile.FirstName,
		LastName:     profile.LastName,
		UserName:     profile.Username,
		LanguageCode: lang,
		IsPremium:    profile.IsPremium,
		UserImage:    userImage,
		Balance:      0,
		MineRate:     DefaultMineRate,
		IsMining:     false,
		Referrals:    map[string]ReferralEntry{},
	}
}

// ReferralBonus returns the credit granted to a referrer for a new user.
func ReferralBonus(isPremium bool) int64 {
	if isPremium {
		return ReferralBonusPremium
	}
	return ReferralBonusDefault
}

// ParseReferralCode extracts the referrer id from a /start payload.
// Only payloads of the form "ref_<id>" are referral codes; anything else
// (including a bare "ref_") yields ok == false.
func ParseReferralCode(payload string) (referrerID string, ok bool) {
	if !strings.HasPrefix(payload, referralCodePrefix) {
		return "", false
	}
	id := payload[len(referralCodePrefix):]
	if id == "" {
		return "", false
	}
	return id, true
}
