package parallel

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/mwiater/aibff/internal/metrics"
)

// Limiter bounds how many work units run at once. Waiters are admitted in
// the order they called Acquire.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewLimiter returns a limiter admitting n units at a time. Values below 1
// are treated as 1.
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n)), capacity: n}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	cur := l.inFlight.Add(1)
	for {
		p := l.peak.Load()
		if cur <= p || l.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	metrics.InFlightAdd(1)
	return nil
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	l.inFlight.Add(-1)
	metrics.InFlightAdd(-1)
	l.sem.Release(1)
}

// InFlight reports the number of currently admitted units.
func (l *Limiter) InFlight() int { return int(l.inFlight.Load()) }

// Peak reports the highest InFlight value observed.
func (l *Limiter) Peak() int { return int(l.peak.Load()) }

// Capacity reports the configured limit.
func (l *Limiter) Capacity() int { return l.capacity }
