package api

import (
	"math/rand/v2"
	"time"
)

// RetryPolicy controls how the client retries failed requests. It is a
// plain value so callers can compose and test policies on their own.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts for a transient failure,
	// including the first. The single re-authentication retry after a 401
	// does not count against it.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt. Each further
	// attempt doubles it.
	BaseDelay time.Duration

	// MaxDelay caps a single back-off delay, jitter included.
	MaxDelay time.Duration

	// MaxJitter bounds the random delay added to each back-off.
	MaxJitter time.Duration

	// AutoWait lets the client wait once for a rate-limit reset instead of
	// failing, provided the wait is no longer than MaxWait.
	AutoWait bool
	MaxWait  time.Duration

	// Retryable overrides which errors are retried. Nil uses
	// (*Error).Retryable: transport failures and 5xx responses.
	Retryable func(*Error) bool
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		MaxJitter:   250 * time.Millisecond,
		AutoWait:    false,
		MaxWait:     60 * time.Second,
	}
}

// NoRetry returns a policy that makes exactly one attempt.
func NoRetry() RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxAttempts = 1
	return p
}

// Backoff returns the delay before the given attempt (2 for the first
// retry): BaseDelay * 2^(attempt-2) plus jitter, capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 2 || p.BaseDelay <= 0 {
		return 0
	}

	delay := p.BaseDelay
	for i := 2; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			break
		}
	}

	if p.MaxJitter > 0 {
		delay += rand.N(p.MaxJitter) //nolint:gosec // jitter does not need crypto rand
	}

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// retryable reports whether err should be retried under p.
func (p RetryPolicy) retryable(err *Error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return err.Retryable()
}

// attempts returns MaxAttempts floored at one.
func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// canWait reports whether AutoWait permits waiting d.
func (p RetryPolicy) canWait(d time.Duration) bool {
	return p.AutoWait && d <= p.MaxWait
}
