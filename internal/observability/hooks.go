package observability

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lightcast-mcp/lightcast-mcp/internal/api"
)

// Verify LogHooks implements api.Hooks at compile time.
var _ api.Hooks = (*LogHooks)(nil)

// sensitiveParams are query parameter names scrubbed from logged URLs.
var sensitiveParams = map[string]bool{
	"access_token":  true,
	"token":         true,
	"api_key":       true,
	"apikey":        true,
	"secret":        true,
	"client_secret": true,
}

// LogHooks implements api.Hooks by feeding a SessionCollector and logging
// through zerolog. Verbosity levels:
//   - 0: collect stats only
//   - 1: also log retries and failed attempts
//   - 2: also log every attempt
type LogHooks struct {
	mu        sync.Mutex
	level     int
	collector *SessionCollector
	log       zerolog.Logger
}

// NewLogHooks creates hooks at the given verbosity level. If collector is
// nil, metrics are not collected.
func NewLogHooks(level int, collector *SessionCollector, log zerolog.Logger) *LogHooks {
	return &LogHooks{
		level:     level,
		collector: collector,
		log:       log,
	}
}

// SetLevel changes the verbosity level at runtime.
func (h *LogHooks) SetLevel(level int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.level = level
}

// Level returns the current verbosity level.
func (h *LogHooks) Level() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level
}

// OnRequestStart is called before an HTTP attempt is sent.
func (h *LogHooks) OnRequestStart(ctx context.Context, info api.RequestInfo) context.Context {
	if h.Level() >= 2 {
		h.log.Debug().
			Str("method", info.Method).
			Str("url", scrubURL(info.URL)).
			Str("scope", info.Scope).
			Str("request_id", info.RequestID).
			Int("attempt", info.Attempt).
			Msg("->")
	}
	return ctx
}

// OnRequestEnd is called after an HTTP attempt completes.
func (h *LogHooks) OnRequestEnd(_ context.Context, info api.RequestInfo, result api.RequestResult) {
	if h.collector != nil {
		h.collector.RecordRequest(RequestMetrics{
			Method:     info.Method,
			URL:        info.URL,
			Scope:      info.Scope,
			Attempt:    info.Attempt,
			StatusCode: result.StatusCode,
			Duration:   result.Duration,
			Error:      result.Error,
		})
	}

	level := h.Level()
	switch {
	case result.Error != nil && level >= 1:
		h.log.Warn().
			Err(result.Error).
			Str("url", scrubURL(info.URL)).
			Str("request_id", info.RequestID).
			Int("status", result.StatusCode).
			Bool("retryable", result.Retryable).
			Msg("<- failed")
	case level >= 2:
		h.log.Debug().
			Int("status", result.StatusCode).
			Str("request_id", info.RequestID).
			Dur("duration", result.Duration).
			Msg("<-")
	}
}

// OnRetry is called before a retry attempt.
func (h *LogHooks) OnRetry(_ context.Context, info api.RequestInfo, attempt int, err error) {
	if h.collector != nil {
		h.collector.RecordRetry()
	}
	if h.Level() >= 1 {
		h.log.Info().
			Err(err).
			Str("url", scrubURL(info.URL)).
			Int("attempt", attempt).
			Msg("retry")
	}
}

// ToolCall records a tool invocation and logs it at the given level.
func (h *LogHooks) ToolCall(name string, err error, d time.Duration) {
	if h.collector != nil {
		h.collector.RecordToolCall(ToolMetrics{Name: name, Duration: d, Error: err})
	}
	if h.Level() >= 1 {
		ev := h.log.Info()
		if err != nil {
			ev = h.log.Warn().Err(err)
		}
		ev.Str("tool", name).Dur("duration", d).Msg("tool call")
	}
}

// scrubURL redacts sensitive query parameters from a URL for safe logging.
func scrubURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "[unparseable URL]"
	}

	query := u.Query()
	modified := false
	for key := range query {
		if sensitiveParams[strings.ToLower(key)] {
			query.Set(key, "[REDACTED]")
			modified = true
		}
	}

	if !modified {
		return rawURL
	}

	u.RawQuery = query.Encode()
	return u.String()
}
