package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestReferredBy_TriState verifies the three observable states of the
// referredBy field: absent (no referral code), explicit null (code pointed
// at a missing user) and set.
func TestReferredBy_TriState(t *testing.T) {
	t.Run("absent when no code supplied", func(t *testing.T) {
		u := NewUser("100", Profile{FirstName: "Ann"}, nil)
		raw, err := json.Marshal(u)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), `"referredBy"`)
	})

	t.Run("explicit null when referrer missing", func(t *testing.T) {
		u := NewUser("100", Profile{FirstName: "Ann"}, nil)
		u.ReferredBy = ReferredByNull()
		raw, err := json.Marshal(u)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"referredBy":null`)
	})

	t.Run("set to referrer id", func(t *testing.T) {
		u := NewUser("100", Profile{FirstName: "Ann"}, nil)
		u.ReferredBy = ReferredByID("42")
		raw, err := json.Marshal(u)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"referredBy":"42"`)
	})

	t.Run("round trip preserves all three states", func(t *testing.T) {
		for _, rb := range []ReferredBy{{}, ReferredByNull(), ReferredByID("42")} {
			u := NewUser("100", Profile{}, nil)
			u.ReferredBy = rb
			raw, err := json.Marshal(u)
			require.NoError(t, err)
			var back User
			require.NoError(t, json.Unmarshal(raw, &back))
			assert.Equal(t, rb, back.ReferredBy)
		}
	})
}

func TestNewUser_Defaults(t *testing.T) {
	u := NewUser("100", Profile{FirstName: "Ann", LastName: "Lee", Username: "ann", IsPremium: true}, nil)

	assert.Equal(t, "100", u.ID)
	assert.Equal(t, int64(0), u.Balance)
	assert.Equal(t, DefaultMineRate, u.MineRate)
	assert.False(t, u.IsMining)
	assert.Nil(t, u.MiningStartedTime)
	assert.Nil(t, u.Daily.ClaimedTime)
	assert.Equal(t, 0, u.Daily.ClaimDay)
	assert.Empty(t, u.Referrals)
	assert.True(t, u.ReferredBy.IsZero())

	// Empty language code defaults to "unknown".
	assert.Equal(t, "unknown", u.LanguageCode)
	withLang := NewUser("100", Profile{LanguageCode: "de"}, nil)
	assert.Equal(t, "de", withLang.LanguageCode)
}

func TestNewUser_DocumentShape(t *testing.T) {
	url := "https://cdn.example/users/100.jpg"
	u := NewUser("100", Profile{FirstName: "Ann"}, &url)
	raw, err := json.Marshal(u)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))

	// Stored field names the mini-app depends on.
	for _, field := range []string{
		"id", "firstName", "lastName", "userName", "languageCode",
		"isPremium", "userImage", "balance", "mineRate", "isMining",
		"daily", "referrals",
	} {
		assert.Contains(t, doc, field)
	}
	// Absent until set by the mini-app.
	assert.NotContains(t, doc, "miningStartedTime")
	assert.NotContains(t, doc, "links")
}

func TestReferralBonus(t *testing.T) {
	assert.Equal(t, int64(500), ReferralBonus(true))
	assert.Equal(t, int64(100), ReferralBonus(false))
}

func TestParseReferralCode(t *testing.T) {
	tests := []struct {
		payload string
		wantID  string
		wantOK  bool
	}{
		{"ref_42", "42", true},
		{"ref_abc123", "abc123", true},
		{"ref_", "", false},
		{"", "", false},
		{"42", "", false},
		{"REF_42", "", false},
		{"refer_42", "", false},
	}

	for _, tt := range tests {
		id, ok := ParseReferralCode(tt.payload)
		assert.Equal(t, tt.wantOK, ok, "payload %q", tt.payload)
		assert.Equal(t, tt.wantID, id, "payload %q", tt.payload)
	}

	// Ids containing the prefix again survive parsing.
	id, ok := ParseReferralCode("ref_ref_7")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(id, "ref_"))
}
