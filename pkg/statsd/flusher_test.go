package statsd

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tilinna/clock"

	"github.com/atlassian/netstatsd"
	"github.com/atlassian/netstatsd/internal/fixtures"
	"github.com/atlassian/netstatsd/pkg/stats"
)

func newTestScheduler(e *Engine, timeout time.Duration, backends ...netstatsd.Backend) *FlushScheduler {
	return NewFlushScheduler(10*time.Second, 0, false, timeout, e, backends)
}

func TestFlushNowDispatchesInOrder(t *testing.T) {
	t.Parallel()
	e := newTestEngine(netstatsd.IdlePolicy{})
	require.NoError(t, e.Record(fixtures.MakeSample(fixtures.Key("hits"))))

	var mu sync.Mutex
	var order []string
	record := func(name string) *fixtures.MockBackend {
		return &fixtures.MockBackend{
			TB:          t,
			BackendName: name,
			FnSendSnapshot: func(ctx context.Context, snap *netstatsd.Snapshot) error {
				mu.Lock()
				defer mu.Unlock()
				order = append(order, name)
				assert.Equal(t, 1.0, snap.Counters["hits"].Value)
				return nil
			},
		}
	}
	fs := newTestScheduler(e, time.Second, record("first"), record("second"), record("third"))

	require.True(t, fs.FlushNow(context.Background()))
	assert.Equal(t, []string{"first", "second", "third"}, order)

	statuses := fs.BackendStatuses()
	require.Len(t, statuses, 3)
	for _, status := range statuses {
		assert.False(t, status.LastFlush.IsZero())
		assert.Zero(t, status.Failures)
	}
	assert.EqualValues(t, 1, e.Stats().report(time.Now()).Flushes)
}

func TestFlushOverlapIsSkipped(t *testing.T) {
	t.Parallel()
	e := newTestEngine(netstatsd.IdlePolicy{})
	entered := make(chan struct{})
	release := make(chan struct{})
	blocking := &fixtures.MockBackend{
		TB:          t,
		BackendName: "blocking",
		FnSendSnapshot: func(ctx context.Context, snap *netstatsd.Snapshot) error {
			close(entered)
			<-release
			return nil
		},
	}
	fs := newTestScheduler(e, time.Minute, blocking)
	ctx := stats.NewContext(context.Background(), stats.NewInternalStatser("statsd", e))

	first := make(chan bool)
	go func() {
		first <- fs.FlushNow(ctx)
	}()
	<-entered
	assert.False(t, fs.FlushNow(ctx))
	close(release)
	assert.True(t, <-first)

	assert.EqualValues(t, 1, e.Stats().report(time.Now()).FlushesSkipped)
	snap := e.SnapshotAndReset(time.Now())
	assert.Equal(t, 1.0, snap.Counters["statsd.flush.skipped"].Value)
}

func TestFlushBackendTimeout(t *testing.T) {
	t.Parallel()
	e := newTestEngine(netstatsd.IdlePolicy{})
	hung := &fixtures.MockBackend{
		TB:          t,
		BackendName: "hung",
		FnSendSnapshot: func(ctx context.Context, snap *netstatsd.Snapshot) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	healthy := &fixtures.CapturingBackend{BackendName: "healthy"}
	fs := newTestScheduler(e, 10*time.Millisecond, hung, healthy)

	require.True(t, fs.FlushNow(context.Background()))
	assert.Len(t, healthy.Snapshots(), 1, "a hung backend must not hold up the others")

	statuses := fs.BackendStatuses()
	assert.EqualValues(t, 1, statuses[0].Failures)
	assert.Equal(t, context.DeadlineExceeded.Error(), statuses[0].LastError)
	assert.False(t, statuses[0].LastFlushError.IsZero())
	assert.Zero(t, statuses[1].Failures)
	assert.False(t, e.Stats().report(time.Now()).LastFlushError.IsZero())
}

func TestFlushBackendStillBusy(t *testing.T) {
	t.Parallel()
	e := newTestEngine(netstatsd.IdlePolicy{})
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	stuck := &fixtures.MockBackend{
		TB:          t,
		BackendName: "stuck",
		FnSendSnapshot: func(ctx context.Context, snap *netstatsd.Snapshot) error {
			mu.Lock()
			calls++
			mu.Unlock()
			<-release // ignores ctx
			return nil
		},
	}
	fs := newTestScheduler(e, 10*time.Millisecond, stuck)

	require.True(t, fs.FlushNow(context.Background()))
	require.True(t, fs.FlushNow(context.Background()))
	close(release)

	statuses := fs.BackendStatuses()
	assert.EqualValues(t, 2, statuses[0].Failures)
	assert.Equal(t, ErrBackendBusy.Error(), statuses[0].LastError)
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestFlushBackendError(t *testing.T) {
	t.Parallel()
	e := newTestEngine(netstatsd.IdlePolicy{})
	failing := &fixtures.MockBackend{
		TB:          t,
		BackendName: "failing",
		FnSendSnapshot: func(ctx context.Context, snap *netstatsd.Snapshot) error {
			return errors.New("connection refused")
		},
	}
	fs := newTestScheduler(e, time.Second, failing)
	ctx := stats.NewContext(context.Background(), stats.NewInternalStatser("statsd", e))

	require.True(t, fs.FlushNow(ctx))
	assert.Equal(t, "connection refused", fs.BackendStatuses()[0].LastError)
	snap := e.SnapshotAndReset(time.Now())
	assert.Equal(t, 1.0, snap.Counters["statsd.backends.failing.failures"].Value)
	assert.Contains(t, snap.Gauges, "statsd.num_stats")
	assert.Contains(t, snap.Gauges, "statsd.processing_time")
}

func TestFlushSchedulerRunsOnTicks(t *testing.T) {
	t.Parallel()
	ctx, clck, cancel := fixtures.NewMockClock(time.Unix(100, 0), 5*time.Second)
	defer cancel()

	e := newTestEngine(netstatsd.IdlePolicy{})
	require.NoError(t, e.Record(fixtures.MakeSample(fixtures.Key("hits"))))
	capture := &fixtures.CapturingBackend{}
	fs := newTestScheduler(e, time.Second, capture)

	var wg sync.WaitGroup
	wg.Add(1)
	runCtx, stop := context.WithCancel(ctx)
	go func() {
		defer wg.Done()
		fs.Run(runCtx)
	}()

	for i := 0; i < 2; i++ {
		fixtures.NextStep(ctx, clck)
		for (len(capture.Snapshots()) <= i || atomic.LoadInt32(&fs.state) != stateIdle) && ctx.Err() == nil {
			time.Sleep(time.Millisecond)
		}
	}
	stop()
	wg.Wait()

	snaps := capture.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, time.Unix(110, 0).UnixNano(), snaps[0].Timestamp.UnixNano())
	assert.Equal(t, 1.0, snaps[0].Counters["hits"].Value)
	assert.Equal(t, netstatsd.Counter{Total: 1}, snaps[1].Counters["hits"])
}

func TestFlushSchedulerAligned(t *testing.T) {
	t.Parallel()
	ctx, clck, cancel := fixtures.NewMockClock(time.Unix(103, 0), 5*time.Second)
	defer cancel()

	capture := &fixtures.CapturingBackend{}
	fs := NewFlushScheduler(10*time.Second, 2*time.Second, true, time.Second, newTestEngine(netstatsd.IdlePolicy{}), []netstatsd.Backend{capture})

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go fs.Run(runCtx)

	fixtures.NextStep(ctx, clck)
	for len(capture.Snapshots()) == 0 && ctx.Err() == nil {
		time.Sleep(time.Millisecond)
	}
	require.Len(t, capture.Snapshots(), 1)
	assert.Equal(t, time.Unix(112, 0).UnixNano(), capture.Snapshots()[0].Timestamp.UnixNano())
	assert.Equal(t, time.Unix(112, 0).UnixNano(), clock.FromContext(ctx).Now().UnixNano())
}
