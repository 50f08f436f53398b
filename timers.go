package netstatsd

import (
	"sort"
)

// Timer is used for storing aggregated values for timers.
type Timer struct {
	Count        int         // The number of timers in the series
	SampledCount float64     // Number of timings received, divided by sampling rate
	PerSecond    float64     // The calculated per second rate
	Mean         float64     // The mean time of the series
	Median       float64     // The median time of the series
	Min          float64     // The minimum time of the series
	Max          float64     // The maximum time of the series
	StdDev       float64     // The standard deviation for the series
	Sum          float64     // The sum for the series
	SumSquares   float64     // The sum squares for the series
	Values       []float64   `json:"-"` // The raw values in arrival order
	Percentiles  Percentiles // The percentile aggregations of the metric
}

// NewTimerValues initialises a new timer only from Values array
func NewTimerValues(values []float64) Timer {
	return Timer{Values: values, SampledCount: float64(len(values))}
}

// Timers stores a map of timers by key.
type Timers map[string]Timer

// MetricsName returns the name of the aggregated metrics collection.
func (t Timers) MetricsName() string {
	return "Timers"
}

// Delete deletes the metrics from the collection.
func (t Timers) Delete(k string) {
	delete(t, k)
}

// Each iterates over each timer.
func (t Timers) Each(f func(key string, t Timer)) {
	for key, timer := range t {
		f(key, timer)
	}
}

// Keys returns the metric names in sorted order.
func (t Timers) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
