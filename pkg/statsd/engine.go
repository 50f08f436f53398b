package statsd

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/atlassian/netstatsd"
)

// Engine is the handle to the aggregation state shared by ingestion, flushing and management.
//
// Lock order is knownMu, then the store's mutex. Record only takes the store's mutex, so
// ingestion never waits for a flush beyond the constant time buffer exchange.
type Engine struct {
	knownMu    sync.Mutex
	store      *MetricStore
	aggregator *MetricAggregator // guarded by knownMu, except Summarize

	tracker       *KeyTracker // nil when key tracking is disabled
	flushInterval time.Duration
	stats         *EngineStats
}

// NewEngine creates an Engine. tracker may be nil.
func NewEngine(flushInterval time.Duration, percentThresholds []float64, idle netstatsd.IdlePolicy, tracker *KeyTracker) *Engine {
	return &Engine{
		store:         NewMetricStore(),
		aggregator:    NewMetricAggregator(percentThresholds, idle),
		tracker:       tracker,
		flushInterval: flushInterval,
		stats:         newEngineStats(time.Now()),
	}
}

// Record adds a sample to the interval in progress. Safe for concurrent use.
func (e *Engine) Record(s *netstatsd.Sample) error {
	if e.tracker != nil {
		e.tracker.Observe(s.Key)
	}
	if err := e.store.Record(s); err != nil {
		atomic.AddUint64(&e.stats.samplesRejected, 1)
		return err
	}
	atomic.AddUint64(&e.stats.samples, 1)
	return nil
}

// SnapshotAndReset ends the interval in progress and returns its snapshot. Every sample
// recorded before the buffer exchange is in this snapshot, every later one in the next.
// Percentiles are computed after all locks are released.
func (e *Engine) SnapshotAndReset(now time.Time) *netstatsd.Snapshot {
	e.knownMu.Lock()
	retired := e.store.Swap()
	snap := e.aggregator.Merge(retired, now, e.flushInterval)
	e.knownMu.Unlock()

	e.aggregator.Summarize(snap)
	return snap
}

// Delete removes the key from the given metric types, or from every type if none are given,
// both from the interval in progress and from the state kept between intervals. It returns
// the types the key was removed from.
func (e *Engine) Delete(key string, types ...netstatsd.MetricType) []netstatsd.MetricType {
	e.knownMu.Lock()
	defer e.knownMu.Unlock()
	removed := map[netstatsd.MetricType]bool{}
	for _, t := range e.aggregator.Forget(key, types...) {
		removed[t] = true
	}
	for _, t := range e.store.Delete(key, types...) {
		removed[t] = true
	}
	var deleted []netstatsd.MetricType
	for _, t := range netstatsd.AllMetricTypes {
		if removed[t] {
			deleted = append(deleted, t)
		}
	}
	return deleted
}

// Live returns a consistent copy of the interval in progress.
func (e *Engine) Live() *netstatsd.MetricMap {
	e.knownMu.Lock()
	defer e.knownMu.Unlock()
	var live *netstatsd.MetricMap
	e.store.View(func(active *netstatsd.MetricMap) {
		live = e.aggregator.Live(active)
	})
	return live
}

// Stats returns the engine's own counters.
func (e *Engine) Stats() *EngineStats {
	return e.stats
}

// MessageSeen records the arrival of a packet.
func (es *EngineStats) MessageSeen(now time.Time) {
	atomic.AddUint64(&es.packets, 1)
	storeTime(&es.lastMessageSeen, now)
}

// BadLine records a line that could not be parsed.
func (es *EngineStats) BadLine() {
	atomic.AddUint64(&es.badLines, 1)
}
