package resilience

import (
	"time"
)

const (
	// StateVersion is the current state schema version.
	StateVersion = 2

	// DefaultResetWindow is assumed when a 429 carries no reset information.
	DefaultResetWindow = 60 * time.Second
)

// State is the resilience state persisted across server processes that
// share one set of credentials.
type State struct {
	// Version is the schema version for future migrations.
	Version int `json:"version"`

	// Scopes holds the last rate-limit exhaustion signal seen per scope.
	Scopes map[string]RateLimitState `json:"scopes"`

	// Budget tracks the local request budget token bucket.
	Budget BudgetState `json:"budget"`

	// UpdatedAt is when the state was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// RateLimitState is the advisory view of the remote rate limit for one
// scope, as last reported by response headers.
type RateLimitState struct {
	// Remaining is the number of requests left in the window, or -1 when
	// the service did not say.
	Remaining int `json:"remaining"`

	// Limit is the window size, or 0 when unknown.
	Limit int `json:"limit,omitempty"`

	// ResetAt is when the window resets. Zero when unknown.
	ResetAt time.Time `json:"reset_at"`

	// Exhausted is set only by a 429 response.
	Exhausted bool `json:"exhausted"`

	// ObservedAt is when the headers were read.
	ObservedAt time.Time `json:"observed_at"`
}

// Known reports whether any rate-limit information has been observed.
func (s RateLimitState) Known() bool {
	return !s.ObservedAt.IsZero()
}

// BlockedAt reports whether the service has signaled exhaustion and the
// reset time is still ahead of now.
func (s RateLimitState) BlockedAt(now time.Time) bool {
	return s.Exhausted && now.Before(s.ResetAt)
}

// ResetAtOr returns ResetAt when it lies in the future, otherwise now+d.
func (s RateLimitState) ResetAtOr(now time.Time, d time.Duration) time.Time {
	if !s.ResetAt.IsZero() && s.ResetAt.After(now) {
		return s.ResetAt
	}
	return now.Add(d)
}

// BudgetState tracks the token bucket behind the local request budget.
type BudgetState struct {
	// Tokens is the current number of available tokens.
	Tokens float64 `json:"tokens"`

	// LastRefillAt is when tokens were last refilled. Zero means the bucket
	// has never been used and starts full.
	LastRefillAt time.Time `json:"last_refill_at"`
}

// NewState returns a new State with default values.
func NewState() *State {
	return &State{
		Version:   StateVersion,
		Scopes:    make(map[string]RateLimitState),
		UpdatedAt: time.Now(),
	}
}
