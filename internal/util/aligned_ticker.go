package util

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tilinna/clock"
)

// AlignedTicker delivers ticks on wall clock multiples of an interval, shifted by an offset,
// so that several daemons with the same settings flush at the same moments. With a 10s
// interval and a 2s offset it fires at :02, :12, :22 and so on.
//
// The time sent on C is the aligned boundary, not the time the tick was observed. A tick
// that the receiver is not ready for is dropped and counted, as with time.Ticker.
type AlignedTicker struct {
	C <-chan time.Time

	dropped  uint64 // atomic
	c        chan time.Time
	done     chan struct{}
	stopOnce sync.Once
	interval time.Duration
	offset   time.Duration
}

// NewAlignedTickerWithContext starts an AlignedTicker driven by the clock attached to ctx.
func NewAlignedTickerWithContext(ctx context.Context, interval, offset time.Duration) *AlignedTicker {
	c := make(chan time.Time, 1)
	at := &AlignedTicker{
		C:        c,
		c:        c,
		done:     make(chan struct{}),
		interval: interval,
		offset:   offset,
	}
	go at.run(clock.FromContext(ctx))
	return at
}

// nextBoundary returns the first aligned boundary strictly after now.
func nextBoundary(now time.Time, interval, offset time.Duration) time.Time {
	return now.Add(-offset).Truncate(interval).Add(interval + offset)
}

// boundary returns the aligned boundary at or before t.
func boundary(t time.Time, interval, offset time.Duration) time.Time {
	return t.Add(-offset).Truncate(interval).Add(offset)
}

func (at *AlignedTicker) run(clck clock.Clock) {
	now := clck.Now()
	timer := clck.NewTimer(nextBoundary(now, at.interval, at.offset).Sub(now))
	defer timer.Stop()

	select {
	case fired := <-timer.C:
		if !at.deliver(fired) {
			return
		}
	case <-at.done:
		return
	}

	// A ticker started right on the boundary stays aligned, deliver rounds off any drift.
	ticker := clck.NewTicker(at.interval)
	defer ticker.Stop()
	for {
		select {
		case fired := <-ticker.C:
			if !at.deliver(fired) {
				return
			}
		case <-at.done:
			return
		}
	}
}

func (at *AlignedTicker) deliver(fired time.Time) bool {
	select {
	case <-at.done:
		return false
	default:
	}
	select {
	case at.c <- boundary(fired, at.interval, at.offset):
	default:
		atomic.AddUint64(&at.dropped, 1)
	}
	return true
}

// Dropped returns how many ticks were discarded because C was full.
func (at *AlignedTicker) Dropped() uint64 {
	return atomic.LoadUint64(&at.dropped)
}

// Stop turns off the ticker. It is safe to call more than once.
func (at *AlignedTicker) Stop() {
	at.stopOnce.Do(func() {
		close(at.done)
	})
}
