// Package observability collects session metrics and logs API traffic.
package observability

import (
	"maps"
	"sync"
	"time"

	"github.com/lightcast-mcp/lightcast-mcp/internal/apierr"
	"github.com/lightcast-mcp/lightcast-mcp/internal/auth"
)

// RequestMetrics holds timing and status information for a single HTTP attempt.
type RequestMetrics struct {
	Method     string
	URL        string
	Scope      string
	Attempt    int
	StatusCode int
	Duration   time.Duration
	Error      error
}

// ToolMetrics records one MCP tool invocation.
type ToolMetrics struct {
	Name     string
	Duration time.Duration
	Error    error
}

// SessionMetrics aggregates metrics for a server session.
type SessionMetrics struct {
	StartTime       time.Time      `json:"start_time"`
	Uptime          string         `json:"uptime"`
	TotalRequests   int            `json:"total_requests"`
	FailedRequests  int            `json:"failed_requests"`
	RateLimited     int            `json:"rate_limited"`
	TotalRetries    int            `json:"total_retries"`
	TokenRefreshes  int            `json:"token_refreshes"`
	FailedRefreshes int            `json:"failed_refreshes"`
	ToolCalls       int            `json:"tool_calls"`
	FailedToolCalls int            `json:"failed_tool_calls"`
	ErrorsByKind    map[string]int `json:"errors_by_kind,omitempty"`
	AvgLatencyMS    int64          `json:"avg_latency_ms"`
}

// SessionCollector accumulates metrics across a server session.
// It is safe for concurrent use and keeps counters rather than history.
type SessionCollector struct {
	mu  sync.Mutex
	now func() time.Time

	startTime       time.Time
	totalRequests   int
	failedRequests  int
	rateLimited     int
	totalRetries    int
	tokenRefreshes  int
	failedRefreshes int
	toolCalls       int
	failedToolCalls int
	errorsByKind    map[string]int
	totalLatency    time.Duration
}

// NewSessionCollector creates a new SessionCollector.
func NewSessionCollector() *SessionCollector {
	return &SessionCollector{
		now:          time.Now,
		startTime:    time.Now(),
		errorsByKind: make(map[string]int),
	}
}

// RecordRequest records metrics for an HTTP attempt.
func (c *SessionCollector) RecordRequest(m RequestMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
	c.totalLatency += m.Duration
	if m.Error != nil {
		c.failedRequests++
		c.countError(m.Error)
		if apierr.IsKind(m.Error, apierr.KindRateLimited) {
			c.rateLimited++
		}
	}
}

// RecordRetry records a retry event.
func (c *SessionCollector) RecordRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

// RecordTokenRefresh records a completed token request.
func (c *SessionCollector) RecordTokenRefresh(ev auth.RefreshEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokenRefreshes++
	if ev.Err != nil {
		c.failedRefreshes++
	}
}

// RecordToolCall records an MCP tool invocation.
func (c *SessionCollector) RecordToolCall(m ToolMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolCalls++
	if m.Error != nil {
		c.failedToolCalls++
	}
}

// countError buckets err by its API error kind. Caller holds c.mu.
func (c *SessionCollector) countError(err error) {
	kind := "other"
	if e, ok := apierr.As(err); ok {
		kind = string(e.Kind)
	}
	c.errorsByKind[kind]++
}

// Summary returns aggregated metrics for the session.
func (c *SessionCollector) Summary() SessionMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	var avg int64
	if c.totalRequests > 0 {
		avg = (c.totalLatency / time.Duration(c.totalRequests)).Milliseconds()
	}

	return SessionMetrics{
		StartTime:       c.startTime,
		Uptime:          c.now().Sub(c.startTime).Round(time.Second).String(),
		TotalRequests:   c.totalRequests,
		FailedRequests:  c.failedRequests,
		RateLimited:     c.rateLimited,
		TotalRetries:    c.totalRetries,
		TokenRefreshes:  c.tokenRefreshes,
		FailedRefreshes: c.failedRefreshes,
		ToolCalls:       c.toolCalls,
		FailedToolCalls: c.failedToolCalls,
		ErrorsByKind:    maps.Clone(c.errorsByKind),
		AvgLatencyMS:    avg,
	}
}

// Reset clears all collected metrics and resets the start time.
func (c *SessionCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = c.now()
	c.totalRequests = 0
	c.failedRequests = 0
	c.rateLimited = 0
	c.totalRetries = 0
	c.tokenRefreshes = 0
	c.failedRefreshes = 0
	c.toolCalls = 0
	c.failedToolCalls = 0
	c.errorsByKind = make(map[string]int)
	c.totalLatency = 0
}
