package resilience

import (
	"sync"
	"time"
)

// Budget is a token bucket capping requests per hour on the client side.
// It is optional: the remote service enforces its own limits and reports
// them through headers, which the Tracker follows.
//
// With a Store the bucket is shared across processes; without one it lives
// in memory.
type Budget struct {
	maxTokens  float64
	refillRate float64 // tokens per second
	store      *Store
	now        func() time.Time

	mu    sync.Mutex
	state BudgetState
}

// BudgetOption configures a Budget.
type BudgetOption func(*Budget)

// WithBudgetClock overrides the time source (for tests).
func WithBudgetClock(now func() time.Time) BudgetOption {
	return func(b *Budget) { b.now = now }
}

// NewBudget creates a budget allowing perHour requests per hour with a
// burst of the full hourly allowance. It returns nil when perHour is not
// positive, and a nil *Budget allows everything.
func NewBudget(perHour int, store *Store, opts ...BudgetOption) *Budget {
	if perHour <= 0 {
		return nil
	}
	b := &Budget{
		maxTokens:  float64(perHour),
		refillRate: float64(perHour) / time.Hour.Seconds(),
		store:      store,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// refill adds tokens for the time elapsed since the last refill.
func (b *Budget) refill(state *BudgetState, now time.Time) {
	if state.LastRefillAt.IsZero() {
		state.Tokens = b.maxTokens
		state.LastRefillAt = now
		return
	}

	elapsed := now.Sub(state.LastRefillAt)
	if elapsed < 0 {
		elapsed = 0
	}
	state.LastRefillAt = now

	state.Tokens += elapsed.Seconds() * b.refillRate
	if state.Tokens > b.maxTokens {
		state.Tokens = b.maxTokens
	}
}

// take consumes one token if available. When none is, it returns the time
// at which the next token will be.
func (b *Budget) take(state *BudgetState, now time.Time) (bool, time.Time) {
	b.refill(state, now)
	if state.Tokens >= 1 {
		state.Tokens--
		return true, time.Time{}
	}
	missing := 1 - state.Tokens
	wait := time.Duration(missing / b.refillRate * float64(time.Second))
	return false, now.Add(wait)
}

// Take consumes one request from the budget. When the budget is spent it
// returns false and the time the next request becomes available.
func (b *Budget) Take() (bool, time.Time) {
	if b == nil {
		return true, time.Time{}
	}
	now := b.now()

	if b.store != nil {
		var (
			ok   bool
			next time.Time
		)
		err := b.store.Update(func(st *State) error {
			ok, next = b.take(&st.Budget, now)
			return nil
		})
		if err == nil {
			return ok, next
		}
		// Shared state unavailable: fall back to the in-memory bucket.
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.take(&b.state, now)
}

// Remaining returns the number of whole requests currently available.
func (b *Budget) Remaining() int {
	if b == nil {
		return -1
	}
	now := b.now()

	if b.store != nil {
		var tokens float64
		err := b.store.Update(func(st *State) error {
			b.refill(&st.Budget, now)
			tokens = st.Budget.Tokens
			return nil
		})
		if err == nil {
			return int(tokens)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(&b.state, now)
	return int(b.state.Tokens)
}
