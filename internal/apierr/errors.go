// Package apierr defines the error taxonomy shared by the token manager,
// the API client and everything that consumes them.
//
// Every failure that crosses the API client boundary is an *Error with one
// of a fixed set of kinds. Callers switch on Kind (or use errors.Is against
// the sentinel values) instead of inspecting transport errors.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Kind classifies an API failure.
type Kind string

const (
	KindUnauthorized    Kind = "unauthorized"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindRateLimited     Kind = "rate_limited"
	KindServerError     Kind = "server_error"
	KindNetworkError    Kind = "network_error"
	KindInvalidResponse Kind = "invalid_response"
)

// Error is a classified API failure.
type Error struct {
	Kind       Kind
	Message    string
	HTTPStatus int

	// ResetAt is set for KindRateLimited: the earliest time the remote
	// service will accept another request for the same scope.
	ResetAt time.Time

	Cause error
}

// Sentinels for errors.Is. Matching compares Kind only.
var (
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrRateLimited     = &Error{Kind: KindRateLimited}
	ErrServerError     = &Error{Kind: KindServerError}
	ErrNetwork         = &Error{Kind: KindNetworkError}
	ErrInvalidResponse = &Error{Kind: KindInvalidResponse}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.HTTPStatus != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.HTTPStatus)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Kind == KindRateLimited && !e.ResetAt.IsZero() {
		fmt.Fprintf(&b, " (resets at %s)", e.ResetAt.UTC().Format(time.RFC3339))
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Retryable reports whether the failure is transient: a transport failure
// or a 5xx response.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetworkError:
		return true
	case KindServerError:
		return e.HTTPStatus == 0 || e.HTTPStatus >= 500
	default:
		return false
	}
}

// RetryAfter returns how long until ResetAt, relative to now. It is zero
// for errors other than KindRateLimited or when the reset has passed.
func (e *Error) RetryAfter(now time.Time) time.Duration {
	if e.Kind != KindRateLimited || e.ResetAt.IsZero() {
		return 0
	}
	if d := e.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Constructors.

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg, HTTPStatus: http.StatusUnauthorized}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg, HTTPStatus: http.StatusForbidden}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg, HTTPStatus: http.StatusNotFound}
}

func RateLimited(resetAt time.Time) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Message:    "rate limit exceeded",
		HTTPStatus: http.StatusTooManyRequests,
		ResetAt:    resetAt,
	}
}

func ServerError(status int, msg string) *Error {
	return &Error{Kind: KindServerError, Message: msg, HTTPStatus: status}
}

func Network(cause error) *Error {
	return &Error{Kind: KindNetworkError, Message: "request failed", Cause: cause}
}

func InvalidResponse(msg string, cause error) *Error {
	return &Error{Kind: KindInvalidResponse, Message: msg, Cause: cause}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// FromStatus classifies a non-2xx HTTP response. 429 is not handled here
// because its reset time comes from headers; see RateLimited.
func FromStatus(status int, body []byte) *Error {
	msg := messageFromBody(body)
	switch {
	case status == http.StatusUnauthorized:
		return Unauthorized(orDefault(msg, "authentication rejected"))
	case status == http.StatusForbidden:
		return Forbidden(orDefault(msg, "access denied"))
	case status == http.StatusNotFound:
		return NotFound(orDefault(msg, "resource not found"))
	case status == http.StatusTooManyRequests:
		return RateLimited(time.Time{})
	default:
		return ServerError(status, orDefault(msg, http.StatusText(status)))
	}
}

// messageFromBody pulls a human-readable message out of the common error
// payload shapes: {"message"}, {"error", "error_description"} and
// {"errors": [{"title", "detail"}]}.
func messageFromBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Message          string `json:"message"`
		Error            any    `json:"error"`
		ErrorDescription string `json:"error_description"`
		Errors           []struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	switch {
	case len(payload.Errors) > 0:
		e := payload.Errors[0]
		if e.Detail != "" && e.Title != "" {
			return e.Title + ": " + e.Detail
		}
		return orDefault(e.Detail, e.Title)
	case payload.ErrorDescription != "":
		return payload.ErrorDescription
	case payload.Message != "":
		return payload.Message
	}
	if s, ok := payload.Error.(string); ok {
		return s
	}
	return ""
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
