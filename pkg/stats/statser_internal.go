package stats

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/atlassian/netstatsd"
)

// SampleRecorder accepts samples for aggregation.
type SampleRecorder interface {
	Record(*netstatsd.Sample) error
}

// InternalStatser is a Statser which records metrics into the daemon's own aggregation, so
// they are flushed to the backends alongside received metrics.
type InternalStatser struct {
	flushNotifier

	namespace string
	recorder  SampleRecorder
}

// NewInternalStatser creates a new Statser which sends metrics to the
// supplied SampleRecorder, naming them "<namespace>.<name>".
func NewInternalStatser(namespace string, recorder SampleRecorder) *InternalStatser {
	return &InternalStatser{
		namespace: namespace,
		recorder:  recorder,
	}
}

// Gauge sends a gauge metric
func (is *InternalStatser) Gauge(name string, value float64) {
	is.record(&netstatsd.Sample{
		Key:   name,
		Value: value,
		Rate:  1,
		Type:  netstatsd.GAUGE,
	})
}

// Count sends a counter metric
func (is *InternalStatser) Count(name string, amount float64) {
	is.record(&netstatsd.Sample{
		Key:   name,
		Value: amount,
		Rate:  1,
		Type:  netstatsd.COUNTER,
	})
}

// Increment sends a counter metric with a value of 1
func (is *InternalStatser) Increment(name string) {
	is.Count(name, 1)
}

// TimingMS sends a timing metric from a millisecond value
func (is *InternalStatser) TimingMS(name string, ms float64) {
	is.record(&netstatsd.Sample{
		Key:   name,
		Value: ms,
		Rate:  1,
		Type:  netstatsd.TIMER,
	})
}

// TimingDuration sends a timing metric from a time.Duration
func (is *InternalStatser) TimingDuration(name string, d time.Duration) {
	is.TimingMS(name, float64(d)/float64(time.Millisecond))
}

// NewTimer returns a new timer with time set to now
func (is *InternalStatser) NewTimer(name string) *Timer {
	return newTimer(is, name)
}

// WithPrefix creates a new Statser with a prefix on every name
func (is *InternalStatser) WithPrefix(prefix string) Statser {
	return NewPrefixedStatser(is, prefix)
}

func (is *InternalStatser) record(s *netstatsd.Sample) {
	// the sample is owned by this file, we can change it freely because we know its origins
	if is.namespace != "" {
		s.Key = is.namespace + "." + s.Key
	}
	if err := is.recorder.Record(s); err != nil {
		logrus.WithError(err).WithField("name", s.Key).Debug("Dropping internal metric")
	}
}
