// Package urlsign issues and verifies signed media URLs.
// A signed URL carries an HS256 token whose subject is the object key,
// standing in for the signed-URL facility of a cloud blob store.
package urlsign

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification errors.
var (
	ErrInvalidToken = errors.New("invalid media token")
	ErrKeyMismatch  = errors.New("media token does not match object key")
)

// Signer issues and verifies tokens for blob object keys.
type Signer struct {
	secret  []byte
	baseURL string // externally visible base, no trailing slash
}

// New creates a Signer. baseURL is the externally visible origin the
// media endpoint is served from, e.g. "https://bot.example.com".
func New(secret []byte, baseURL string) *Signer {
	return &Signer{
		secret:  secret,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// SignedURL returns a retrieval URL for the object key, valid for ttl.
func (s *Signer) SignedURL(key string, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   key,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign media token: %w", err)
	}

	return fmt.Sprintf("%s/media/%s?token=%s", s.baseURL, key, url.QueryEscape(token)), nil
}

// Verify checks that token grants access to the object key.
func (s *Signer) Verify(key, token string) error {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject != key {
		return ErrKeyMismatch
	}

	return nil
}
