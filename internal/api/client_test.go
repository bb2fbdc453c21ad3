package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightcast-mcp/lightcast-mcp/internal/apierr"
	"github.com/lightcast-mcp/lightcast-mcp/internal/auth"
	"github.com/lightcast-mcp/lightcast-mcp/internal/config"
	"github.com/lightcast-mcp/lightcast-mcp/internal/resilience"
)

// fakeTokens hands out T1, T2, ... and records invalidations.
type fakeTokens struct {
	mu          sync.Mutex
	current     string
	issued      int
	invalidated []string
	err         error
}

func (f *fakeTokens) Token(_ context.Context, scope string) (*auth.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.current == "" {
		f.issued++
		f.current = fmt.Sprintf("T%d", f.issued)
	}
	return &auth.Token{AccessToken: f.current, Scope: scope, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeTokens) Invalidate(_ string, accessToken string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, accessToken)
	if f.current == accessToken {
		f.current = ""
	}
}

// recordingHooks counts hook calls.
type recordingHooks struct {
	starts, ends, retries atomic.Int32
}

func (h *recordingHooks) OnRequestStart(ctx context.Context, _ RequestInfo) context.Context {
	h.starts.Add(1)
	return ctx
}

func (h *recordingHooks) OnRequestEnd(context.Context, RequestInfo, RequestResult) { h.ends.Add(1) }

func (h *recordingHooks) OnRetry(context.Context, RequestInfo, int, error) { h.retries.Add(1) }

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func fastPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.BaseDelay = time.Millisecond
	p.MaxJitter = 0
	return p
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *fakeTokens, *sleepRecorder) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokens := &fakeTokens{}
	rec := &sleepRecorder{}
	creds := config.Credentials{ClientID: "id", ClientSecret: "secret", BaseURL: srv.URL}
	opts = append([]Option{WithHTTPClient(srv.Client()), WithRetryPolicy(fastPolicy())}, opts...)

	c := NewClient(creds, tokens, opts...)
	c.sleep = rec.sleep
	return c, tokens, rec
}

func TestClientRoundTrip(t *testing.T) {
	var gotAuth, gotPath, gotAccept, gotRequestID string
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		gotRequestID = r.Header.Get("X-Request-Id")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"id":"S1","name":"Python"}}`)
	})

	resp, err := c.Get(context.Background(), "emsi_open", "/skills/versions/latest/skills/S1", nil)
	require.NoError(t, err)

	assert.Equal(t, "Bearer T1", gotAuth)
	assert.Equal(t, "/skills/versions/latest/skills/S1", gotPath)
	assert.Equal(t, "application/json", gotAccept)
	assert.NotEmpty(t, gotRequestID)
	assert.Equal(t, gotRequestID, resp.RequestID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	}
	require.NoError(t, resp.Decode(&body))
	assert.Equal(t, "S1", body.Data.ID)
	assert.Equal(t, "Python", body.Data.Name)
}

func TestClientSendsQueryAndJSONBody(t *testing.T) {
	var gotQuery, gotContentType string
	var gotBody map[string][]string
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, `{"data":[]}`)
	})

	_, err := c.Post(context.Background(), "emsi_open", "/skills/versions/latest/skills",
		map[string][]string{"limit": {"5"}}, map[string][]string{"ids": {"S1", "S2"}})
	require.NoError(t, err)

	assert.Equal(t, "limit=5", gotQuery)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, []string{"S1", "S2"}, gotBody["ids"])
}

func TestClientSendsTextBody(t *testing.T) {
	var gotContentType, gotBody string
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		fmt.Fprint(w, `{"data":{}}`)
	})

	_, err := c.Post(context.Background(), "emsi_open", "/titles/versions/latest/normalize", nil, Text("sr. software eng"))
	require.NoError(t, err)
	assert.Equal(t, "text/plain", gotContentType)
	assert.Equal(t, "sr. software eng", gotBody)
}

func TestClientRejectsUnsupportedMethod(t *testing.T) {
	var calls atomic.Int32
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })

	_, err := c.Do(context.Background(), Request{Method: http.MethodDelete, Path: "/x", Scope: "emsi_open"})
	require.ErrorIs(t, err, ErrUnsupportedMethod)
	assert.Zero(t, calls.Load())
}

func TestClientRetriesServerErrorsUpToMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	hooks := &recordingHooks{}
	c, _, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithHooks(hooks))

	_, err := c.Get(context.Background(), "emsi_open", "/skills", nil)
	require.Error(t, err)

	e, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindServerError, e.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, e.HTTPStatus)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, rec.delays)
	assert.Equal(t, int32(3), hooks.starts.Load())
	assert.Equal(t, int32(3), hooks.ends.Load())
	assert.Equal(t, int32(2), hooks.retries.Load())
}

func TestClientRecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	})

	resp, err := c.Get(context.Background(), "emsi_open", "/skills", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Data))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientNetworkErrorAfterRetries(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	c.baseURL = "http://127.0.0.1:1"

	_, err := c.Get(context.Background(), "emsi_open", "/skills", nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, apierr.KindNetworkError), "got %v", err)
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	tests := []struct {
		status   int
		wantKind apierr.Kind
	}{
		{http.StatusNotFound, apierr.KindNotFound},
		{http.StatusForbidden, apierr.KindForbidden},
		{http.StatusBadRequest, apierr.KindServerError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var calls atomic.Int32
			c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"errors":[{"title":"nope"}]}`)
			})

			_, err := c.Get(context.Background(), "emsi_open", "/skills/versions/latest/skills/NOPE", nil)
			require.Error(t, err)
			e, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, e.Kind)
			assert.Equal(t, tt.status, e.HTTPStatus)
			assert.Equal(t, "nope", e.Message)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestClientReauthenticatesOnceOn401(t *testing.T) {
	var auths []string
	var mu sync.Mutex
	c, tokens, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auths = append(auths, r.Header.Get("Authorization"))
		n := len(auths)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}, WithRetryPolicy(NoRetry()))

	_, err := c.Get(context.Background(), "emsi_open", "/skills", nil)
	require.NoError(t, err, "the re-auth retry must not count against MaxAttempts")

	assert.Equal(t, []string{"Bearer T1", "Bearer T2"}, auths)
	assert.Equal(t, []string{"T1"}, tokens.invalidated)
}

func TestClientSecond401IsUnauthorized(t *testing.T) {
	var calls atomic.Int32
	c, tokens, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Get(context.Background(), "emsi_open", "/skills", nil)
	require.ErrorIs(t, err, apierr.ErrUnauthorized)
	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, tokens.invalidated, 1)
}

func TestClientPropagatesTokenErrors(t *testing.T) {
	var calls atomic.Int32
	c, tokens, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })
	tokens.err = apierr.Unauthorized("invalid_client")

	_, err := c.Get(context.Background(), "emsi_open", "/skills", nil)
	require.ErrorIs(t, err, apierr.ErrUnauthorized)
	assert.Zero(t, calls.Load())
	assert.Empty(t, tokens.invalidated)
}

func TestClientRateLimitedSingleRequest(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var calls atomic.Int32
	c, _, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}, WithClock(func() time.Time { return now }))

	_, err := c.Get(context.Background(), "emsi_open", "/skills", nil)
	require.Error(t, err)

	e, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindRateLimited, e.Kind)
	assert.Equal(t, now.Add(60*time.Second), e.ResetAt)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, rec.delays)

	// The exhaustion is remembered: the next call fails without a request.
	_, err = c.Get(context.Background(), "emsi_open", "/skills", nil)
	require.ErrorIs(t, err, apierr.ErrRateLimited)
	assert.Equal(t, int32(1), calls.Load())

	// Other scopes are unaffected.
	_, blocked := c.RateLimits().Blocked("classification_api")
	assert.False(t, blocked)
}

func TestClientRateLimitDefaultsToSixtySeconds(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}, WithClock(func() time.Time { return now }))

	_, err := c.Get(context.Background(), "emsi_open", "/skills", nil)
	e, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, now.Add(resilience.DefaultResetWindow), e.ResetAt)
}

func TestClientAutoWaitRetriesOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var calls atomic.Int32
	policy := fastPolicy()
	policy.AutoWait = true
	policy.MaxWait = 10 * time.Second

	c, _, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}, WithRetryPolicy(policy), WithClock(func() time.Time { return now }))

	_, err := c.Get(context.Background(), "emsi_open", "/skills", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []time.Duration{5 * time.Second}, rec.delays)
}

func TestClientAutoWaitIsBounded(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var calls atomic.Int32
	policy := fastPolicy()
	policy.AutoWait = true
	policy.MaxWait = 10 * time.Second

	c, _, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}, WithRetryPolicy(policy), WithClock(func() time.Time { return now }))

	_, err := c.Get(context.Background(), "emsi_open", "/skills", nil)
	require.ErrorIs(t, err, apierr.ErrRateLimited)
	assert.Equal(t, int32(2), calls.Load(), "only a single wait-then-retry")
	assert.Len(t, rec.delays, 1)
}

func TestClientAutoWaitSkipsLongResets(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var calls atomic.Int32
	policy := fastPolicy()
	policy.AutoWait = true
	policy.MaxWait = time.Second

	c, _, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}, WithRetryPolicy(policy), WithClock(func() time.Time { return now }))

	_, err := c.Get(context.Background(), "emsi_open", "/skills", nil)
	require.ErrorIs(t, err, apierr.ErrRateLimited)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, rec.delays)
}

func TestClientInvalidJSON(t *testing.T) {
	var calls atomic.Int32
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `<html>oops</html>`)
	})

	_, err := c.Get(context.Background(), "emsi_open", "/skills", nil)
	require.ErrorIs(t, err, apierr.ErrInvalidResponse)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientEmptyBodyIsNull(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	resp, err := c.Get(context.Background(), "emsi_open", "/skills", nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(resp.Data))
}

func TestClientUpdatesRateLimitState(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("RateLimit-Remaining", "17")
		w.Header().Set("RateLimit-Limit", "100")
		fmt.Fprint(w, `{}`)
	})

	resp, err := c.Get(context.Background(), "classification_api", "/classifications", nil)
	require.NoError(t, err)
	assert.Equal(t, 17, resp.RateLimit.Remaining)

	st, ok := c.RateLimits().State("classification_api")
	require.True(t, ok)
	assert.Equal(t, 17, st.Remaining)
	assert.Equal(t, 100, st.Limit)

	_, ok = c.RateLimits().State("emsi_open")
	assert.False(t, ok)
}

func TestClientLocalBudget(t *testing.T) {
	var calls atomic.Int32
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{}`)
	}, WithBudget(resilience.NewBudget(1, nil)))

	_, err := c.Get(context.Background(), "emsi_open", "/skills", nil)
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "emsi_open", "/skills", nil)
	require.ErrorIs(t, err, apierr.ErrRateLimited)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientBudgetCountsEveryAttempt(t *testing.T) {
	var calls atomic.Int32
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithBudget(resilience.NewBudget(2, nil)))

	_, err := c.Get(context.Background(), "emsi_open", "/skills", nil)
	require.ErrorIs(t, err, apierr.ErrRateLimited)
	assert.Equal(t, int32(2), calls.Load(), "the third attempt is refused by the budget")
}

func TestClientRejectsInvalidPath(t *testing.T) {
	var calls atomic.Int32
	c, tokens, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := c.Get(context.Background(), "emsi_open", "/skills\n", nil)
	require.ErrorIs(t, err, ErrInvalidPath)
	assert.Zero(t, calls.Load())
	assert.Zero(t, tokens.issued)
}

func TestClientCancellation(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	c.sleep = sleep

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Get(ctx, "emsi_open", "/skills", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestClientBulkheadLimitsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		fmt.Fprint(w, `{}`)
	}, WithBulkhead(resilience.NewBulkhead(2)))

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Get(context.Background(), "emsi_open", "/skills", nil)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestBuildURL(t *testing.T) {
	c := NewClient(config.Credentials{BaseURL: "https://api.example.com/"}, &fakeTokens{})

	assert.Equal(t, "https://api.example.com/skills", c.buildURL("skills", nil))
	assert.Equal(t, "https://api.example.com/skills?limit=5&q=go",
		c.buildURL("/skills", map[string][]string{"q": {"go"}, "limit": {"5"}}))
	assert.True(t, strings.HasSuffix(c.buildURL("/a?x=1", map[string][]string{"y": {"2"}}), "/a?x=1&y=2"))
}
