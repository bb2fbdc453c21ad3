package resilience

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxInFlight is used when a bulkhead is created with a
// non-positive limit.
const DefaultMaxInFlight = 10

// Bulkhead limits the number of API requests in flight at once within
// this process.
type Bulkhead struct {
	max   int64
	sem   *semaphore.Weighted
	inUse atomic.Int64
}

// NewBulkhead creates a bulkhead admitting at most max concurrent requests.
func NewBulkhead(max int) *Bulkhead {
	if max <= 0 {
		max = DefaultMaxInFlight
	}
	return &Bulkhead{
		max: int64(max),
		sem: semaphore.NewWeighted(int64(max)),
	}
}

// Acquire blocks until a slot is free or ctx is done. The returned release
// func must be called exactly once.
func (b *Bulkhead) Acquire(ctx context.Context) (release func(), err error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return b.releaser(), nil
}

// TryAcquire takes a slot without blocking.
func (b *Bulkhead) TryAcquire() (release func(), ok bool) {
	if !b.sem.TryAcquire(1) {
		return nil, false
	}
	return b.releaser(), true
}

func (b *Bulkhead) releaser() func() {
	b.inUse.Add(1)
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			b.inUse.Add(-1)
			b.sem.Release(1)
		}
	}
}

// InUse returns the number of slots currently held.
func (b *Bulkhead) InUse() int {
	return int(b.inUse.Load())
}

// Available returns the number of free slots.
func (b *Bulkhead) Available() int {
	return int(b.max - b.inUse.Load())
}

// Max returns the configured limit.
func (b *Bulkhead) Max() int {
	return int(b.max)
}
