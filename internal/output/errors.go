package output

import (
	"errors"
	"fmt"
	"time"

	"github.com/lightcast-mcp/lightcast-mcp/internal/apierr"
)

// Error is a structured error with code, message, and optional hint.
type Error struct {
	Code       string
	Message    string
	Hint       string
	HTTPStatus int
	Retryable  bool
	Cause      error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Hint)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ExitCode returns the appropriate exit code for this error.
func (e *Error) ExitCode() int {
	return ExitCodeFor(e.Code)
}

// Error constructors for common cases.

func ErrUsage(msg string) *Error {
	return &Error{Code: CodeUsage, Message: msg}
}

func ErrUsageHint(msg, hint string) *Error {
	return &Error{Code: CodeUsage, Message: msg, Hint: hint}
}

func ErrAuth(msg string) *Error {
	return &Error{
		Code:    CodeAuth,
		Message: msg,
		Hint:    "Run: lightcast-mcp auth setup",
	}
}

func ErrRateLimit(resetAt time.Time, now time.Time) *Error {
	hint := "Try again later"
	if d := resetAt.Sub(now); !resetAt.IsZero() && d > 0 {
		hint = fmt.Sprintf("Try again in %d seconds", int(d.Round(time.Second).Seconds()))
	}
	return &Error{
		Code:       CodeRateLimit,
		Message:    "Rate limited",
		Hint:       hint,
		HTTPStatus: 429,
		Retryable:  true,
	}
}

// FromAPI converts a remote API error into a CLI error.
func FromAPI(e *apierr.Error) *Error {
	out := &Error{
		Message:    e.Error(),
		HTTPStatus: e.HTTPStatus,
		Retryable:  e.Retryable(),
		Cause:      e,
	}
	switch e.Kind {
	case apierr.KindUnauthorized:
		out.Code = CodeAuth
		out.Hint = "Check LIGHTCAST_CLIENT_ID and LIGHTCAST_CLIENT_SECRET, or run: lightcast-mcp auth setup"
	case apierr.KindForbidden:
		out.Code = CodeForbidden
		out.Hint = "The credentials may not include the scope this endpoint needs"
	case apierr.KindNotFound:
		out.Code = CodeNotFound
	case apierr.KindRateLimited:
		rl := ErrRateLimit(e.ResetAt, time.Now())
		rl.Message = e.Error()
		rl.HTTPStatus = e.HTTPStatus
		rl.Cause = e
		return rl
	case apierr.KindNetworkError:
		out.Code = CodeNetwork
		if e.Cause != nil {
			out.Hint = e.Cause.Error()
		}
	default:
		out.Code = CodeAPI
	}
	return out
}

// AsError attempts to convert an error to an *Error.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if ae, ok := apierr.As(err); ok {
		return FromAPI(ae)
	}
	return &Error{
		Code:    CodeAPI,
		Message: err.Error(),
		Cause:   err,
	}
}
