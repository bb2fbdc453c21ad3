package api

import (
	"context"
	"time"
)

// RequestInfo describes one HTTP attempt.
type RequestInfo struct {
	Method    string
	URL       string
	Scope     string
	RequestID string
	Attempt   int
}

// RequestResult describes the outcome of one HTTP attempt.
type RequestResult struct {
	StatusCode int
	Duration   time.Duration
	Retryable  bool
	Error      error
}

// Hooks observes the client's requests. Implementations must be safe for
// concurrent use.
type Hooks interface {
	// OnRequestStart is called before each attempt is sent. The returned
	// context is used for the attempt.
	OnRequestStart(ctx context.Context, info RequestInfo) context.Context

	// OnRequestEnd is called after each attempt completes.
	OnRequestEnd(ctx context.Context, info RequestInfo, result RequestResult)

	// OnRetry is called before a retry. attempt is the attempt about to run.
	OnRetry(ctx context.Context, info RequestInfo, attempt int, err error)
}

// NoopHooks implements Hooks with no-ops.
type NoopHooks struct{}

var _ Hooks = NoopHooks{}

func (NoopHooks) OnRequestStart(ctx context.Context, _ RequestInfo) context.Context { return ctx }

func (NoopHooks) OnRequestEnd(context.Context, RequestInfo, RequestResult) {}

func (NoopHooks) OnRetry(context.Context, RequestInfo, int, error) {}
