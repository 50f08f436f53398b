package netstatsd

import (
	"sort"
)

// Counter is used for storing aggregated values for counters.
type Counter struct {
	Value     float64 // Sum of increments this interval, scaled by sampling rate
	PerSecond float64 // The calculated per second rate
	Total     float64 // Lifetime sum of increments
}

// Counters stores a map of counters by key.
type Counters map[string]Counter

// MetricsName returns the name of the aggregated metrics collection.
func (c Counters) MetricsName() string {
	return "Counters"
}

// Delete deletes the metrics from the collection.
func (c Counters) Delete(k string) {
	delete(c, k)
}

// Each iterates over each counter.
func (c Counters) Each(f func(key string, c Counter)) {
	for key, counter := range c {
		f(key, counter)
	}
}

// Keys returns the metric names in sorted order.
func (c Counters) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
