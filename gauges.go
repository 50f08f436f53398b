package netstatsd

import (
	"sort"
)

// Gauge is used for storing the value of a gauge.
type Gauge struct {
	Value float64
	// Relative is set while the interval only saw delta updates, so Value is a
	// change to apply to the previously known value rather than a replacement.
	Relative bool `json:"-"`
}

// Gauges stores a map of gauges by key.
type Gauges map[string]Gauge

// MetricsName returns the name of the aggregated metrics collection.
func (g Gauges) MetricsName() string {
	return "Gauges"
}

// Delete deletes the metrics from the collection.
func (g Gauges) Delete(k string) {
	delete(g, k)
}

// Each iterates over each gauge.
func (g Gauges) Each(f func(key string, g Gauge)) {
	for key, gauge := range g {
		f(key, gauge)
	}
}

// Keys returns the metric names in sorted order.
func (g Gauges) Keys() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
