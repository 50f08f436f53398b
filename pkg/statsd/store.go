package statsd

import (
	"sync"

	"github.com/atlassian/netstatsd"
)

// MetricStore holds the aggregation buffer for the interval in progress. Recording into it and
// exchanging it for a fresh buffer are both constant time, so ingestion never waits for a flush
// to compute statistics or talk to backends.
type MetricStore struct {
	mu     sync.Mutex
	active *netstatsd.MetricMap
}

// NewMetricStore creates an empty MetricStore.
func NewMetricStore() *MetricStore {
	return &MetricStore{
		active: netstatsd.NewMetricMap(),
	}
}

// Record validates the sample and adds it to the active buffer. An invalid sample is
// rejected without touching any state.
func (ms *MetricStore) Record(s *netstatsd.Sample) error {
	if err := s.Validate(); err != nil {
		return err
	}
	ms.mu.Lock()
	ms.active.Receive(s)
	ms.mu.Unlock()
	return nil
}

// Swap replaces the active buffer with an empty one and returns the retired buffer, which
// the caller then owns exclusively.
func (ms *MetricStore) Swap() *netstatsd.MetricMap {
	fresh := netstatsd.NewMetricMap()
	ms.mu.Lock()
	retired := ms.active
	ms.active = fresh
	ms.mu.Unlock()
	return retired
}

// Delete removes the key from the given metric types in the active buffer, or from every type
// if none are given.
func (ms *MetricStore) Delete(key string, types ...netstatsd.MetricType) []netstatsd.MetricType {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.active.Delete(key, types...)
}

// View calls f with the active buffer while holding the lock. f must not retain the map.
func (ms *MetricStore) View(f func(*netstatsd.MetricMap)) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	f(ms.active)
}
