package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStatser is a Statser that exposes the daemon's internal metrics to Prometheus,
// so they can be scraped from the management HTTP API instead of being flushed to the backends.
type PrometheusStatser struct {
	flushNotifier

	gauges   *prometheus.GaugeVec
	counters *prometheus.CounterVec
	timings  *prometheus.HistogramVec
}

// NewPrometheusStatser creates a Statser and registers its collectors with the registerer.
func NewPrometheusStatser(registerer prometheus.Registerer, namespace string) (*PrometheusStatser, error) {
	ps := &PrometheusStatser{
		gauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "internal_gauge",
			Help:      "Internal gauges of the aggregation engine.",
		}, []string{"name"}),
		counters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "internal_count_total",
			Help:      "Internal counters of the aggregation engine.",
		}, []string{"name"}),
		timings: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "internal_timing_milliseconds",
			Help:      "Internal timings of the aggregation engine.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 16),
		}, []string{"name"}),
	}
	for _, c := range []prometheus.Collector{ps.gauges, ps.counters, ps.timings} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return ps, nil
}

// Gauge sends a gauge metric
func (ps *PrometheusStatser) Gauge(name string, value float64) {
	ps.gauges.WithLabelValues(name).Set(value)
}

// Count sends a counter metric
func (ps *PrometheusStatser) Count(name string, amount float64) {
	if amount < 0 {
		return
	}
	ps.counters.WithLabelValues(name).Add(amount)
}

// Increment sends a counter metric with a value of 1
func (ps *PrometheusStatser) Increment(name string) {
	ps.counters.WithLabelValues(name).Inc()
}

// TimingMS sends a timing metric from a millisecond value
func (ps *PrometheusStatser) TimingMS(name string, ms float64) {
	ps.timings.WithLabelValues(name).Observe(ms)
}

// TimingDuration sends a timing metric from a time.Duration
func (ps *PrometheusStatser) TimingDuration(name string, d time.Duration) {
	ps.TimingMS(name, float64(d)/float64(time.Millisecond))
}

// NewTimer returns a new timer with time set to now
func (ps *PrometheusStatser) NewTimer(name string) *Timer {
	return newTimer(ps, name)
}

// WithPrefix creates a new Statser with a prefix on every name
func (ps *PrometheusStatser) WithPrefix(prefix string) Statser {
	return NewPrefixedStatser(ps, prefix)
}
