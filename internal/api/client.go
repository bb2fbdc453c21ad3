// Package api provides the authenticated HTTP client for the Lightcast API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lightcast-mcp/lightcast-mcp/internal/apierr"
	"github.com/lightcast-mcp/lightcast-mcp/internal/auth"
	"github.com/lightcast-mcp/lightcast-mcp/internal/config"
	"github.com/lightcast-mcp/lightcast-mcp/internal/resilience"
	"github.com/lightcast-mcp/lightcast-mcp/internal/version"
)

// Error is the error type returned for every remote failure.
type Error = apierr.Error

// AsError extracts the *Error from err's chain.
func AsError(err error) (*Error, bool) { return apierr.As(err) }

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind apierr.Kind) bool { return apierr.IsKind(err, kind) }

// ErrUnsupportedMethod is returned for methods other than GET and POST.
var ErrUnsupportedMethod = errors.New("api: unsupported method")

// ErrInvalidPath is returned when a request path does not form a valid URL.
var ErrInvalidPath = errors.New("api: invalid request path")

// Text is a request body sent verbatim as text/plain.
type Text string

// TokenSource supplies access tokens per scope. *auth.Manager satisfies it.
type TokenSource interface {
	Token(ctx context.Context, scope string) (*auth.Token, error)
	Invalidate(scope, accessToken string)
}

var _ TokenSource = (*auth.Manager)(nil)

// Request describes one logical API call.
type Request struct {
	Method string
	Path   string // relative to the base URL
	Scope  string
	Query  url.Values
	Body   any
}

// Response wraps a successful API response.
type Response struct {
	Data       json.RawMessage
	StatusCode int
	Headers    http.Header
	RateLimit  resilience.RateLimitState
	RequestID  string
}

// Decode unmarshals the response data into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Data, v); err != nil {
		return apierr.InvalidResponse("unexpected response shape", err)
	}
	return nil
}

// Client is an HTTP client for the Lightcast API. It attaches bearer
// tokens, retries transient failures and tracks rate-limit state per scope.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	retry      RetryPolicy
	limits     *resilience.Tracker
	budget     *resilience.Budget
	bulkhead   *resilience.Bulkhead
	hooks      Hooks
	log        zerolog.Logger
	userAgent  string
	timeout    time.Duration
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithRateLimits sets the tracker that records per-scope rate-limit state.
func WithRateLimits(t *resilience.Tracker) Option {
	return func(c *Client) { c.limits = t }
}

// WithBudget sets the local request budget. Nil disables it.
func WithBudget(b *resilience.Budget) Option {
	return func(c *Client) { c.budget = b }
}

// WithBulkhead bounds concurrent requests.
func WithBulkhead(b *resilience.Bulkhead) Option {
	return func(c *Client) { c.bulkhead = b }
}

// WithHooks sets the request observer.
func WithHooks(h Hooks) Option {
	return func(c *Client) {
		if h != nil {
			c.hooks = h
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithClock overrides the time source used for rate-limit reset times.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a client for creds.BaseURL using tokens for auth.
func NewClient(creds config.Credentials, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: config.NormalizeBaseURL(creds.BaseURL),
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		tokens:    tokens,
		retry:     DefaultRetryPolicy(),
		hooks:     NoopHooks{},
		log:       zerolog.Nop(),
		userAgent: version.UserAgent(),
		timeout:   config.DefaultTimeout,
		now:       time.Now,
		sleep:     sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.limits == nil {
		c.limits = resilience.NewTracker(nil, resilience.WithTrackerClock(c.now))
	}
	return c
}

// RateLimits returns the tracker holding per-scope rate-limit state.
func (c *Client) RateLimits() *resilience.Tracker {
	return c.limits
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, scope, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Scope: scope, Query: query})
}

// Post performs a POST request. body is JSON-encoded unless it is a Text.
func (c *Client) Post(ctx context.Context, scope, path string, query url.Values, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Scope: scope, Query: query, Body: body})
}

// prepared is a request ready to be sent any number of times.
type prepared struct {
	Request
	url         string
	body        []byte
	contentType string
	requestID   string
}

// Do performs req, retrying as the policy allows.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	req.Method = strings.ToUpper(req.Method)
	if req.Method != http.MethodGet && req.Method != http.MethodPost {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, req.Method)
	}

	p, err := c.prepare(req)
	if err != nil {
		return nil, err
	}

	if c.bulkhead != nil {
		release, err := c.bulkhead.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	waited, err := c.gate(ctx, p.Scope)
	if err != nil {
		return nil, err
	}

	var (
		attempt     = 1
		reauthed    bool
		maxAttempts = c.retry.attempts()
	)
	for {
		tok, err := c.tokens.Token(ctx, p.Scope)
		if err != nil {
			return nil, err
		}

		if err := c.spend(); err != nil {
			return nil, err
		}
		resp, err := c.send(ctx, p, tok.AccessToken, attempt)
		if err == nil {
			return resp, nil
		}

		apiErr, ok := apierr.As(err)
		if !ok {
			return nil, err
		}
		info := RequestInfo{Method: p.Method, URL: p.url, Scope: p.Scope, RequestID: p.requestID, Attempt: attempt}

		switch {
		case apiErr.Kind == apierr.KindUnauthorized && !reauthed:
			reauthed = true
			c.tokens.Invalidate(p.Scope, tok.AccessToken)
			c.log.Debug().Str("scope", p.Scope).Str("request_id", p.requestID).Msg("token rejected, retrying with a fresh one")
			c.hooks.OnRetry(ctx, info, attempt, err)
			continue

		case apiErr.Kind == apierr.KindRateLimited:
			c.limits.MarkExhausted(p.Scope, apiErr.ResetAt)
			wait := apiErr.RetryAfter(c.now())
			if waited || !c.retry.canWait(wait) {
				return nil, err
			}
			waited = true
			c.log.Info().Str("scope", p.Scope).Dur("wait", wait).Msg("rate limited, waiting for reset")
			c.hooks.OnRetry(ctx, info, attempt, err)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue

		case c.retry.retryable(apiErr) && attempt < maxAttempts:
			attempt++
			delay := c.retry.Backoff(attempt)
			c.log.Debug().
				Str("scope", p.Scope).
				Str("request_id", p.requestID).
				Int("attempt", attempt).
				Int("max_attempts", maxAttempts).
				Dur("delay", delay).
				Err(err).
				Msg("retrying request")
			c.hooks.OnRetry(ctx, info, attempt, err)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue

		default:
			return nil, err
		}
	}
}

func (c *Client) prepare(req Request) (*prepared, error) {
	p := &prepared{
		Request:   req,
		url:       c.buildURL(req.Path, req.Query),
		requestID: uuid.NewString(),
	}
	if _, err := url.Parse(p.url); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, req.Path)
	}

	switch body := req.Body.(type) {
	case nil:
	case Text:
		p.body = []byte(body)
		p.contentType = "text/plain"
	case json.RawMessage:
		p.body = body
		p.contentType = "application/json"
	default:
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		p.body = b
		p.contentType = "application/json"
	}
	return p, nil
}

// gate enforces a known rate-limit exhaustion before any request is sent.
// It reports whether the single auto-wait was used.
func (c *Client) gate(ctx context.Context, scope string) (bool, error) {
	waited := false
	if until, blocked := c.limits.Blocked(scope); blocked {
		wait := until.Sub(c.now())
		if !c.retry.canWait(wait) {
			return false, apierr.RateLimited(until)
		}
		c.log.Info().Str("scope", scope).Dur("wait", wait).Msg("scope exhausted, waiting for reset")
		if err := c.sleep(ctx, wait); err != nil {
			return false, err
		}
		waited = true
	}
	return waited, nil
}

// spend takes one request from the local budget. It runs before every HTTP
// attempt, retries and the re-auth retry included.
func (c *Client) spend() error {
	if ok, next := c.budget.Take(); !ok {
		e := apierr.RateLimited(next)
		e.Message = "local request budget exhausted"
		e.HTTPStatus = 0
		return e
	}
	return nil
}

// send performs a single HTTP attempt.
func (c *Client) send(ctx context.Context, p *prepared, token string, attempt int) (*Response, error) {
	info := RequestInfo{Method: p.Method, URL: p.url, Scope: p.Scope, RequestID: p.requestID, Attempt: attempt}
	ctx = c.hooks.OnRequestStart(ctx, info)

	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if p.body != nil {
		body = bytes.NewReader(p.body)
	}
	req, err := http.NewRequestWithContext(actx, p.Method, p.url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", p.requestID)
	if p.contentType != "" {
		req.Header.Set("Content-Type", p.contentType)
	}

	c.log.Debug().
		Str("method", p.Method).
		Str("url", p.url).
		Str("request_id", p.requestID).
		Int("attempt", attempt).
		Msg("sending request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
			c.hooks.OnRequestEnd(ctx, info, RequestResult{Duration: time.Since(start), Error: err})
			return nil, err
		}
		apiErr := apierr.Network(err)
		c.hooks.OnRequestEnd(ctx, info, RequestResult{Duration: time.Since(start), Retryable: true, Error: apiErr})
		return nil, apiErr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		apiErr := apierr.Network(err)
		c.hooks.OnRequestEnd(ctx, info, RequestResult{StatusCode: resp.StatusCode, Duration: time.Since(start), Retryable: true, Error: apiErr})
		return nil, apiErr
	}

	now := c.now()
	rl := resilience.ParseHeaders(resp.Header, now)
	c.limits.Observe(p.Scope, rl)

	result, apiErr := c.interpret(p, resp, data, rl, now)
	res := RequestResult{StatusCode: resp.StatusCode, Duration: time.Since(start)}
	if apiErr != nil {
		res.Error = apiErr
		res.Retryable = c.retry.retryable(apiErr)
	}
	c.hooks.OnRequestEnd(ctx, info, res)

	c.log.Debug().
		Int("status", resp.StatusCode).
		Str("request_id", p.requestID).
		Dur("duration", res.Duration).
		Msg("response received")

	if apiErr != nil {
		return nil, apiErr
	}
	return result, nil
}

// interpret maps an HTTP response onto a Response or an *Error.
func (c *Client) interpret(p *prepared, resp *http.Response, data []byte, rl resilience.RateLimitState, now time.Time) (*Response, *Error) {
	status := resp.StatusCode

	switch {
	case status >= 200 && status < 300:
		if status == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
			data = []byte("null")
		} else if !json.Valid(data) {
			return nil, apierr.InvalidResponse(fmt.Sprintf("response from %s is not valid JSON", p.Path), nil)
		}
		requestID := resp.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = p.requestID
		}
		return &Response{
			Data:       data,
			StatusCode: status,
			Headers:    resp.Header,
			RateLimit:  rl,
			RequestID:  requestID,
		}, nil

	case status == http.StatusTooManyRequests:
		return nil, apierr.RateLimited(rl.ResetAtOr(now, resilience.DefaultResetWindow))

	default:
		return nil, apierr.FromStatus(status, data)
	}
}

func (c *Client) buildURL(path string, query url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.baseURL + path
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		u += sep + query.Encode()
	}
	return u
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
