package fixtures

import (
	"context"
	"time"

	"github.com/tilinna/clock"
)

// NewMockClock attaches a clock.Mock, starting at start, to a context bounded by timeout in
// wall time.
func NewMockClock(start time.Time, timeout time.Duration) (context.Context, *clock.Mock, context.CancelFunc) {
	clck := clock.NewMock(start)
	ctx, cancel := context.WithTimeout(clock.Context(context.Background(), clck), timeout)
	return ctx, clck, cancel
}

// NewAdvancingClock attaches a virtual clock to a context which jumps straight to every
// pending timer, and a function to stop it. The clock also stops with the context.
func NewAdvancingClock(ctx context.Context) (context.Context, func()) {
	clck := clock.NewMock(time.Unix(1, 0))
	ctx = clock.Context(ctx, clck)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			default:
				clck.AddNext()
			}
		}
	}()
	return ctx, func() {
		close(stop)
	}
}

// NextStep advances clck to its next pending timer, waiting for one to be registered if there
// is none yet, or until ctx is done. Goroutines under test create their timers at a time the
// test cannot observe, so this is the way to step them.
func NextStep(ctx context.Context, clck *clock.Mock) {
	for _, d := clck.AddNext(); d == 0 && ctx.Err() == nil; _, d = clck.AddNext() {
		time.Sleep(1) // Allows the system to actually idle, runtime.Gosched() does not.
	}
}
