package tokencache

import (
	"errors"
	"time"
)

var (
	// ErrCacheMiss indicates no usable token is stored.
	ErrCacheMiss = errors.New("token cache miss")

	// ErrInvalidEntry indicates the stored token is corrupted.
	ErrInvalidEntry = errors.New("invalid token cache entry")
)

// Token is an issued Vectra API access token together with its expiry.
// The refresh fields are optional; not every platform hands them out.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`

	RefreshToken     string    `json:"refresh_token,omitempty"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
}

// Valid reports whether the access token can still be used.
// A token with no recorded expiry is treated as invalid.
func (t *Token) Valid() bool {
	if t == nil || t.AccessToken == "" || t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Before(t.ExpiresAt)
}

// CanRefresh reports whether the refresh token is present and unexpired.
func (t *Token) CanRefresh() bool {
	if t == nil || t.RefreshToken == "" || t.RefreshExpiresAt.IsZero() {
		return false
	}
	return time.Now().Before(t.RefreshExpiresAt)
}

// TTL returns the time until the access token expires.
// Returns 0 if already expired.
func (t *Token) TTL() time.Duration {
	ttl := time.Until(t.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}
