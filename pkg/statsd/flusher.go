package statsd

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"

	"github.com/atlassian/netstatsd"
	"github.com/atlassian/netstatsd/internal/util"
	"github.com/atlassian/netstatsd/pkg/stats"
)

// ErrBackendBusy is recorded for a backend still sending a previous snapshot when a new one is due.
var ErrBackendBusy = errors.New("backend is still sending a previous flush")

const (
	stateIdle int32 = iota
	stateFlushing
)

// BackendStatus is the delivery history of one backend.
type BackendStatus struct {
	Name           string    `json:"name"`
	LastFlush      time.Time `json:"last_flush"`
	LastFlushError time.Time `json:"last_flush_error"`
	LastError      string    `json:"last_error,omitempty"`
	Failures       uint64    `json:"failures"`
}

type backendState struct {
	// Counter fields below must be read/written only using atomic instructions.
	// 64-bit fields must be the first fields in the struct to guarantee proper memory alignment.
	lastFlush      int64 // Unix timestamp in nsec.
	lastFlushError int64 // Unix timestamp in nsec.
	failures       uint64
	inflight       int32

	lastErr atomic.Value // string
	backend netstatsd.Backend
}

// FlushScheduler periodically ends the interval in progress and dispatches its snapshot to the
// backends, in registration order. At most one flush runs at a time: a tick that arrives while
// a flush is still running is skipped and counted.
type FlushScheduler struct {
	state int32 // atomic; stateIdle or stateFlushing

	flushInterval time.Duration // How often to flush metrics to the backends
	flushOffset   time.Duration // Offset for when to flush if alignment is enabled
	flushAligned  bool          // Indicate if flush is aligned to the interval or not
	flushTimeout  time.Duration // How long a single backend may take to send a snapshot
	engine        *Engine
	backends      []*backendState
	wg            sync.WaitGroup
}

// NewFlushScheduler creates a new FlushScheduler with provided configuration.
func NewFlushScheduler(flushInterval, flushOffset time.Duration, aligned bool, flushTimeout time.Duration, engine *Engine, backends []netstatsd.Backend) *FlushScheduler {
	states := make([]*backendState, 0, len(backends))
	for _, b := range backends {
		bs := &backendState{backend: b}
		bs.lastErr.Store("")
		states = append(states, bs)
	}
	return &FlushScheduler{
		flushInterval: flushInterval,
		flushOffset:   flushOffset,
		flushAligned:  aligned,
		flushTimeout:  flushTimeout,
		engine:        engine,
		backends:      states,
	}
}

func (fs *FlushScheduler) makeTicker(ctx context.Context) (<-chan time.Time, func()) {
	if fs.flushAligned {
		flushTicker := util.NewAlignedTickerWithContext(ctx, fs.flushInterval, fs.flushOffset)
		return flushTicker.C, flushTicker.Stop
	}
	flushTicker := clock.FromContext(ctx).NewTicker(fs.flushInterval)
	return flushTicker.C, flushTicker.Stop
}

// Run runs the FlushScheduler until the context is done, then waits for a running flush.
func (fs *FlushScheduler) Run(ctx context.Context) {
	statser := stats.FromContext(ctx)

	ch, stop := fs.makeTicker(ctx)
	defer stop()
	defer fs.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case thisFlush := <-ch:
			if !fs.begin(statser) {
				continue
			}
			fs.wg.Add(1)
			go func() {
				defer fs.wg.Done()
				defer atomic.StoreInt32(&fs.state, stateIdle)
				fs.flush(ctx, thisFlush, statser)
			}()
		}
	}
}

// FlushNow runs a flush cycle synchronously. It returns false, without flushing, if a flush is
// already running.
func (fs *FlushScheduler) FlushNow(ctx context.Context) bool {
	statser := stats.FromContext(ctx)
	if !fs.begin(statser) {
		return false
	}
	defer atomic.StoreInt32(&fs.state, stateIdle)
	fs.flush(ctx, clock.FromContext(ctx).Now(), statser)
	return true
}

func (fs *FlushScheduler) begin(statser stats.Statser) bool {
	if atomic.CompareAndSwapInt32(&fs.state, stateIdle, stateFlushing) {
		return true
	}
	atomic.AddUint64(&fs.engine.stats.flushesSkipped, 1)
	statser.Increment("flush.skipped")
	logrus.WithField("interval", fs.flushInterval).Warn("Previous flush still running, skipping flush")
	return false
}

func (fs *FlushScheduler) flush(ctx context.Context, now time.Time, statser stats.Statser) {
	timerTotal := statser.NewTimer("flush.total_time")

	if prev := loadTime(&fs.engine.stats.lastFlush); !prev.IsZero() {
		statser.Gauge("timestamp_lag", float64(now.Sub(prev)-fs.flushInterval)/float64(time.Millisecond))
	}

	timerProcess := statser.NewTimer("processing_time")
	snap := fs.engine.SnapshotAndReset(now)
	timerProcess.SendGauge()
	statser.Gauge("num_stats", float64(snap.NumStats()))

	for _, bs := range fs.backends {
		fs.send(ctx, bs, snap, statser)
	}

	atomic.AddUint64(&fs.engine.stats.flushes, 1)
	storeTime(&fs.engine.stats.lastFlush, now)
	timerTotal.SendGauge()
	statser.NotifyFlush(ctx, fs.flushInterval)
}

func (fs *FlushScheduler) send(ctx context.Context, bs *backendState, snap *netstatsd.Snapshot, statser stats.Statser) {
	if !atomic.CompareAndSwapInt32(&bs.inflight, 0, 1) {
		fs.handleSendResult(ctx, bs, ErrBackendBusy, statser)
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, fs.flushTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer atomic.StoreInt32(&bs.inflight, 0)
		done <- bs.backend.SendSnapshot(sendCtx, snap)
	}()

	var err error
	select {
	case err = <-done:
	case <-sendCtx.Done():
		err = sendCtx.Err()
	}
	fs.handleSendResult(ctx, bs, err, statser)
}

func (fs *FlushScheduler) handleSendResult(ctx context.Context, bs *backendState, err error, statser stats.Statser) {
	now := clock.FromContext(ctx).Now()
	if err == nil {
		storeTime(&bs.lastFlush, now)
		return
	}
	storeTime(&bs.lastFlushError, now)
	storeTime(&fs.engine.stats.lastFlushError, now)
	atomic.AddUint64(&bs.failures, 1)
	bs.lastErr.Store(err.Error())
	statser.Increment("backends." + bs.backend.Name() + ".failures")
	if !errors.Is(err, context.Canceled) {
		logrus.WithError(err).WithField("backend", bs.backend.Name()).Error("Sending metrics to backend failed")
	}
}

// BackendStatuses returns the delivery history of each backend, in registration order.
func (fs *FlushScheduler) BackendStatuses() []BackendStatus {
	statuses := make([]BackendStatus, 0, len(fs.backends))
	for _, bs := range fs.backends {
		statuses = append(statuses, BackendStatus{
			Name:           bs.backend.Name(),
			LastFlush:      loadTime(&bs.lastFlush),
			LastFlushError: loadTime(&bs.lastFlushError),
			LastError:      bs.lastErr.Load().(string),
			Failures:       atomic.LoadUint64(&bs.failures),
		})
	}
	return statuses
}
