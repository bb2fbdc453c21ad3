package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/lightcast-mcp/lightcast-mcp/internal/apierr"
	"github.com/lightcast-mcp/lightcast-mcp/internal/config"
	"github.com/lightcast-mcp/lightcast-mcp/internal/resilience"
)

// ErrScopeRequired is returned when a token is requested without a scope.
var ErrScopeRequired = errors.New("auth: scope is required")

// RefreshEvent describes one completed token request.
type RefreshEvent struct {
	Scope    string
	Duration time.Duration
	Err      error
}

// Manager mints and caches client-credentials access tokens, one per scope.
//
// Concurrent callers asking for the same scope while no valid token is
// cached share a single token request. Each caller waits on its own
// context; the shared request is only canceled once every waiter has given
// up, and a canceled or failed request never touches the cache.
type Manager struct {
	creds      config.Credentials
	httpClient *http.Client
	margin     time.Duration
	timeout    time.Duration
	now        func() time.Time
	log        zerolog.Logger
	onRefresh  func(RefreshEvent)

	mu      sync.RWMutex
	entries map[string]*entry
}

// entry holds the cached token for one scope and the refresh in flight,
// if any. Entries are created lazily and never removed.
type entry struct {
	mu     sync.Mutex
	token  *Token
	flight *flight
}

type flight struct {
	done     chan struct{}
	cancel   context.CancelFunc
	waiters  int
	canceled bool

	// Written before done is closed.
	token *Token
	err   error
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithHTTPClient sets the client used for token requests.
func WithHTTPClient(c *http.Client) ManagerOption {
	return func(m *Manager) { m.httpClient = c }
}

// WithSafetyMargin sets how long before expiry a token is considered stale.
func WithSafetyMargin(d time.Duration) ManagerOption {
	return func(m *Manager) { m.margin = d }
}

// WithRequestTimeout bounds each token request.
func WithRequestTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.timeout = d }
}

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// WithRefreshHook registers a callback invoked after every token request.
func WithRefreshHook(fn func(RefreshEvent)) ManagerOption {
	return func(m *Manager) { m.onRefresh = fn }
}

// NewManager creates a token manager for the given credentials.
func NewManager(creds config.Credentials, opts ...ManagerOption) *Manager {
	m := &Manager{
		creds:      creds,
		httpClient: &http.Client{Timeout: config.DefaultTimeout},
		margin:     config.DefaultSafetyMargin,
		timeout:    config.DefaultTimeout,
		now:        time.Now,
		log:        zerolog.Nop(),
		entries:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token returns a token for scope that is valid for longer than the safety
// margin, requesting a new one if needed.
func (m *Manager) Token(ctx context.Context, scope string) (*Token, error) {
	if scope == "" {
		return nil, ErrScopeRequired
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e := m.entry(scope)

	e.mu.Lock()
	if e.token.ValidAt(m.now(), m.marginFor(e.token)) {
		tok := e.token
		e.mu.Unlock()
		return tok, nil
	}
	f := e.flight
	if f == nil {
		f = m.startRefresh(ctx, scope, e)
		e.flight = f
	}
	f.waiters++
	e.mu.Unlock()

	select {
	case <-f.done:
		return f.token, f.err
	case <-ctx.Done():
		e.mu.Lock()
		f.waiters--
		if f.waiters == 0 {
			f.canceled = true
			f.cancel()
			if e.flight == f {
				e.flight = nil
			}
		}
		e.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Invalidate drops the cached token for scope if it is still accessToken.
// A token that has already been replaced by a concurrent refresh is kept.
func (m *Manager) Invalidate(scope, accessToken string) {
	m.mu.RLock()
	e := m.entries[scope]
	m.mu.RUnlock()
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.token != nil && e.token.AccessToken == accessToken {
		e.token = nil
		m.log.Debug().Str("scope", scope).Msg("token invalidated")
	}
}

// Cached returns the cached token for scope, if any, and whether it is
// currently usable.
func (m *Manager) Cached(scope string) (*Token, bool) {
	m.mu.RLock()
	e := m.entries[scope]
	m.mu.RUnlock()
	if e == nil {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.token == nil {
		return nil, false
	}
	return e.token, e.token.ValidAt(m.now(), m.marginFor(e.token))
}

// marginFor returns the safety margin applied to t. Tokens issued with a
// lifetime shorter than twice the margin use half their lifetime instead,
// so they are still reused.
func (m *Manager) marginFor(t *Token) time.Duration {
	if half := t.Lifetime() / 2; half > 0 && half < m.margin {
		return half
	}
	return m.margin
}

// Scopes returns the scopes that currently hold a cached token.
func (m *Manager) Scopes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	scopes := make([]string, 0, len(m.entries))
	for scope, e := range m.entries {
		e.mu.Lock()
		if e.token != nil {
			scopes = append(scopes, scope)
		}
		e.mu.Unlock()
	}
	sort.Strings(scopes)
	return scopes
}

func (m *Manager) entry(scope string) *entry {
	m.mu.RLock()
	e := m.entries[scope]
	m.mu.RUnlock()
	if e != nil {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e = m.entries[scope]; e == nil {
		e = &entry{}
		m.entries[scope] = e
	}
	return e
}

// startRefresh launches the token request for e. Caller holds e.mu.
func (m *Manager) startRefresh(ctx context.Context, scope string, e *entry) *flight {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	f := &flight{done: make(chan struct{}), cancel: cancel}

	go func() {
		defer cancel()

		start := m.now()
		tok, err := m.fetch(fctx, scope)
		elapsed := m.now().Sub(start)

		e.mu.Lock()
		canceled := f.canceled
		if err == nil && !canceled {
			e.token = tok
		}
		if e.flight == f {
			e.flight = nil
		}
		e.mu.Unlock()

		switch {
		case canceled:
			m.log.Debug().Str("scope", scope).Msg("token request abandoned")
		case err != nil:
			m.log.Warn().Err(err).Str("scope", scope).Msg("token request failed")
		default:
			if m.marginFor(tok) < m.margin {
				m.log.Warn().
					Str("scope", scope).
					Dur("lifetime", tok.Lifetime()).
					Dur("margin", m.margin).
					Msg("short token lifetime, refreshing at half-life instead of the safety margin")
			}
			m.log.Debug().
				Str("scope", scope).
				Str("token", tok.Redacted()).
				Dur("ttl", tok.TTL(m.now())).
				Msg("token refreshed")
		}
		if m.onRefresh != nil {
			m.onRefresh(RefreshEvent{Scope: scope, Duration: elapsed, Err: err})
		}

		f.token, f.err = tok, err
		close(f.done)
	}()

	return f
}

func (m *Manager) fetch(ctx context.Context, scope string) (*Token, error) {
	cc := clientcredentials.Config{
		ClientID:     m.creds.ClientID,
		ClientSecret: m.creds.ClientSecret,
		TokenURL:     m.creds.OAuthURL,
		Scopes:       []string{scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	fetchedAt := m.now()

	t, err := cc.Token(ctx)
	if err != nil {
		return nil, m.classify(err)
	}

	return &Token{
		AccessToken: t.AccessToken,
		TokenType:   t.Type(),
		Scope:       scope,
		ExpiresAt:   fetchedAt.Add(lifetime(t)),
		IssuedAt:    fetchedAt,
	}, nil
}

// lifetime reads expires_in from the token response.
func lifetime(t *oauth2.Token) time.Duration {
	if t.ExpiresIn > 0 {
		return time.Duration(t.ExpiresIn) * time.Second
	}
	if v, ok := t.Extra("expires_in").(float64); ok && v > 0 {
		return time.Duration(v) * time.Second
	}
	if !t.Expiry.IsZero() {
		return time.Until(t.Expiry)
	}
	return DefaultLifetime
}

// classify maps token endpoint failures onto the API error taxonomy.
func (m *Manager) classify(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		var header http.Header
		if re.Response != nil {
			status = re.Response.StatusCode
			header = re.Response.Header
		}
		msg := re.ErrorDescription
		if msg == "" {
			msg = re.ErrorCode
		}
		if msg == "" {
			msg = "token request rejected"
		}

		switch {
		case status == http.StatusTooManyRequests:
			rl := resilience.ParseHeaders(header, m.now())
			e := apierr.RateLimited(rl.ResetAtOr(m.now(), resilience.DefaultResetWindow))
			e.Cause = err
			return e
		case status >= 500:
			e := apierr.ServerError(status, msg)
			e.Cause = err
			return e
		default:
			e := apierr.Unauthorized(msg)
			if status != 0 {
				e.HTTPStatus = status
			}
			e.Cause = err
			return e
		}
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return apierr.Network(err)
	}

	return apierr.InvalidResponse("malformed token response", err)
}
