package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestTrackerObserveRecordsState(t *testing.T) {
	clock := newClock()
	tr := NewTracker(nil, WithTrackerClock(clock.Now))

	tr.Observe("emsi_open", RateLimitState{Remaining: 3, Limit: 100, ObservedAt: clock.Now()})

	got, ok := tr.State("emsi_open")
	require.True(t, ok)
	assert.Equal(t, 3, got.Remaining)

	_, blocked := tr.Blocked("emsi_open")
	assert.False(t, blocked, "low remaining count alone must not block")
}

func TestTrackerObserveIgnoresUnknown(t *testing.T) {
	tr := NewTracker(nil)
	tr.Observe("emsi_open", RateLimitState{Remaining: -1})

	_, ok := tr.State("emsi_open")
	assert.False(t, ok)
}

func TestTrackerMarkExhaustedBlocksUntilReset(t *testing.T) {
	clock := newClock()
	tr := NewTracker(nil, WithTrackerClock(clock.Now))
	reset := clock.Now().Add(time.Minute)

	tr.MarkExhausted("emsi_open", reset)

	until, blocked := tr.Blocked("emsi_open")
	require.True(t, blocked)
	assert.Equal(t, reset, until)

	_, blocked = tr.Blocked("classification_api")
	assert.False(t, blocked, "other scopes are unaffected")

	clock.Advance(61 * time.Second)
	_, blocked = tr.Blocked("emsi_open")
	assert.False(t, blocked)
}

func TestTrackerMarkExhaustedKeepsLaterReset(t *testing.T) {
	clock := newClock()
	tr := NewTracker(nil, WithTrackerClock(clock.Now))

	tr.MarkExhausted("emsi_open", clock.Now().Add(2*time.Minute))
	tr.MarkExhausted("emsi_open", clock.Now().Add(time.Minute))

	until, blocked := tr.Blocked("emsi_open")
	require.True(t, blocked)
	assert.Equal(t, clock.Now().Add(2*time.Minute), until)
}

func TestTrackerObserveDoesNotClearActiveExhaustion(t *testing.T) {
	clock := newClock()
	tr := NewTracker(nil, WithTrackerClock(clock.Now))

	tr.MarkExhausted("emsi_open", clock.Now().Add(time.Minute))
	tr.Observe("emsi_open", RateLimitState{Remaining: 50, ObservedAt: clock.Now()})

	_, blocked := tr.Blocked("emsi_open")
	assert.True(t, blocked)
}

func TestTrackerSharesExhaustionThroughStore(t *testing.T) {
	clock := newClock()
	dir := t.TempDir()
	reset := time.Now().Add(time.Minute)

	first := NewTracker(NewStore(dir))
	first.MarkExhausted("emsi_open", reset)

	second := NewTracker(NewStore(dir), WithTrackerClock(clock.Now))
	clock.t = time.Now()
	until, blocked := second.Blocked("emsi_open")
	require.True(t, blocked)
	assert.True(t, until.Equal(reset) || until.Sub(reset).Abs() < time.Second)
}

func TestTrackerReset(t *testing.T) {
	dir := t.TempDir()
	tr := NewTracker(NewStore(dir))
	tr.MarkExhausted("emsi_open", time.Now().Add(time.Minute))

	require.NoError(t, tr.Reset())

	_, blocked := tr.Blocked("emsi_open")
	assert.False(t, blocked)
	assert.Empty(t, tr.Snapshot())
}
