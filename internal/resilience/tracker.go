package resilience

import (
	"maps"
	"sync"
	"time"
)

// Tracker records the advisory rate-limit state per scope. It never blocks
// a request on its own; only an exhaustion signal (a 429) recorded through
// MarkExhausted makes Blocked report true, and only until the reset time.
//
// When a Store is attached, exhaustion signals are shared with other
// processes using the same state directory.
type Tracker struct {
	mu     sync.RWMutex
	scopes map[string]RateLimitState
	store  *Store
	now    func() time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerClock overrides the time source (for tests).
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker. store may be nil for a process-local tracker.
func NewTracker(store *Store, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		scopes: make(map[string]RateLimitState),
		store:  store,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe records headers-derived state for scope. States carrying no
// information are ignored. A successful observation clears a previous
// exhaustion once its reset time has passed.
func (t *Tracker) Observe(scope string, s RateLimitState) {
	if !s.Known() {
		return
	}

	t.mu.Lock()
	prev := t.scopes[scope]
	if prev.BlockedAt(t.now()) {
		s.Exhausted = true
		if s.ResetAt.Before(prev.ResetAt) {
			s.ResetAt = prev.ResetAt
		}
	}
	t.scopes[scope] = s
	t.mu.Unlock()
}

// MarkExhausted records a 429 for scope with the given reset time.
func (t *Tracker) MarkExhausted(scope string, resetAt time.Time) {
	now := t.now()

	t.mu.Lock()
	s := t.scopes[scope]
	if !s.BlockedAt(now) || resetAt.After(s.ResetAt) {
		s.ResetAt = resetAt
	}
	s.Exhausted = true
	s.Remaining = 0
	s.ObservedAt = now
	t.scopes[scope] = s
	t.mu.Unlock()

	if t.store != nil {
		_ = t.store.Update(func(st *State) error { // fail open
			cur := st.Scopes[scope]
			if !cur.BlockedAt(now) || resetAt.After(cur.ResetAt) {
				st.Scopes[scope] = s
			}
			return nil
		})
	}
}

// Blocked reports whether scope is exhausted and, if so, until when.
func (t *Tracker) Blocked(scope string) (time.Time, bool) {
	now := t.now()

	t.mu.RLock()
	s := t.scopes[scope]
	t.mu.RUnlock()
	if s.BlockedAt(now) {
		return s.ResetAt, true
	}

	if t.store == nil {
		return time.Time{}, false
	}
	st, err := t.store.Load()
	if err != nil {
		return time.Time{}, false
	}
	shared, ok := st.Scopes[scope]
	if !ok || !shared.BlockedAt(now) {
		return time.Time{}, false
	}

	t.mu.Lock()
	if cur := t.scopes[scope]; !cur.BlockedAt(now) {
		t.scopes[scope] = shared
	}
	t.mu.Unlock()
	return shared.ResetAt, true
}

// State returns the last recorded state for scope.
func (t *Tracker) State(scope string) (RateLimitState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.scopes[scope]
	return s, ok
}

// Snapshot returns a copy of all per-scope states.
func (t *Tracker) Snapshot() map[string]RateLimitState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.scopes)
}

// Reset forgets all recorded state, including the shared copy.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	t.scopes = make(map[string]RateLimitState)
	t.mu.Unlock()

	if t.store == nil {
		return nil
	}
	return t.store.Update(func(st *State) error {
		st.Scopes = make(map[string]RateLimitState)
		return nil
	})
}
