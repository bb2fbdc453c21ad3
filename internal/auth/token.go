// Package auth implements the OAuth2 client-credentials token manager and
// storage for the client secret.
package auth

import (
	"time"
)

// DefaultLifetime is assumed when the token endpoint omits expires_in.
const DefaultLifetime = time.Hour

// Token is an access token minted for a single scope.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Scope       string    `json:"scope"`
	ExpiresAt   time.Time `json:"expires_at"`
	IssuedAt    time.Time `json:"issued_at"`
}

// Lifetime returns the lifetime the token was issued with, or zero when
// IssuedAt is unknown.
func (t *Token) Lifetime() time.Duration {
	if t == nil || t.IssuedAt.IsZero() {
		return 0
	}
	return t.ExpiresAt.Sub(t.IssuedAt)
}

// ValidAt reports whether the token is usable at now, treating it as
// expired once it is within margin of ExpiresAt.
func (t *Token) ValidAt(now time.Time, margin time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return now.Add(margin).Before(t.ExpiresAt)
}

// TTL returns the remaining lifetime at now, floored at zero.
func (t *Token) TTL(now time.Time) time.Duration {
	if t == nil {
		return 0
	}
	if d := t.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Redacted returns a short prefix of the access token for logs.
func (t *Token) Redacted() string {
	if t == nil || len(t.AccessToken) <= 8 {
		return "****"
	}
	return t.AccessToken[:6] + "…"
}
