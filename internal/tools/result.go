package tools

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lightcast-mcp/lightcast-mcp/internal/apierr"
	"github.com/lightcast-mcp/lightcast-mcp/internal/lightcast"
)

// Additional error kinds reported by tools for failures that are not
// remote API errors.
const (
	KindInvalidArgument = "invalid_argument"
	KindCanceled        = "canceled"
	KindInternal        = "internal"
)

// ErrorBody is the JSON object returned in an isError tool result.
type ErrorBody struct {
	Kind      string     `json:"kind"`
	Message   string     `json:"message"`
	Status    int        `json:"status,omitempty"`
	ResetAt   *time.Time `json:"reset_at,omitempty"`
	Retryable bool       `json:"retryable"`
}

// genericMessages replace error details when masking is on.
var genericMessages = map[string]string{
	string(apierr.KindUnauthorized):    "Authentication with the Lightcast API failed. Check the configured credentials.",
	string(apierr.KindForbidden):       "The configured credentials are not allowed to use this endpoint.",
	string(apierr.KindNotFound):        "The requested item was not found.",
	string(apierr.KindRateLimited):     "The Lightcast API rate limit was reached. Try again after reset_at.",
	string(apierr.KindServerError):     "The Lightcast API returned an error. Try again later.",
	string(apierr.KindNetworkError):    "The Lightcast API could not be reached. Try again later.",
	string(apierr.KindInvalidResponse): "The Lightcast API returned an unexpected response.",
	KindCanceled:                       "The request was canceled.",
	KindInternal:                       "An error occurred while processing your request.",
}

// classify builds the error body for err.
func classify(err error) ErrorBody {
	if e, ok := apierr.As(err); ok {
		body := ErrorBody{
			Kind:      string(e.Kind),
			Message:   e.Error(),
			Status:    e.HTTPStatus,
			Retryable: e.Retryable() || e.Kind == apierr.KindRateLimited,
		}
		if !e.ResetAt.IsZero() {
			t := e.ResetAt.UTC()
			body.ResetAt = &t
		}
		return body
	}

	switch {
	case errors.Is(err, lightcast.ErrMissingArgument):
		return ErrorBody{Kind: KindInvalidArgument, Message: err.Error()}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorBody{Kind: KindCanceled, Message: err.Error(), Retryable: true}
	default:
		return ErrorBody{Kind: KindInternal, Message: err.Error()}
	}
}

// mask replaces the message with generic text. Argument errors are the
// caller's own input and are kept.
func mask(b ErrorBody) ErrorBody {
	if b.Kind == KindInvalidArgument {
		return b
	}
	if msg, ok := genericMessages[b.Kind]; ok {
		b.Message = msg
	} else {
		b.Message = genericMessages[KindInternal]
	}
	return b
}

func (r *registrar) errorResult(tool string, err error) *mcp.CallToolResult {
	body := classify(err)
	r.deps.Log.Warn().Err(err).Str("tool", tool).Str("kind", body.Kind).Msg("tool failed")
	if r.deps.MaskErrors {
		body = mask(body)
	}

	data, _ := json.Marshal(map[string]ErrorBody{"error": body})
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		IsError: true,
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}
