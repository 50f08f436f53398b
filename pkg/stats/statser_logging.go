package stats

import (
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingStatser is a Statser which emits logs
type LoggingStatser struct {
	flushNotifier

	logger logrus.FieldLogger
}

// NewLoggingStatser creates a new Statser which sends metrics to the
// supplied logger.
func NewLoggingStatser(logger logrus.FieldLogger) Statser {
	return &LoggingStatser{
		logger: logger,
	}
}

// Gauge sends a gauge metric
func (ls *LoggingStatser) Gauge(name string, value float64) {
	ls.logger.WithFields(logrus.Fields{
		"name":  name,
		"value": value,
	}).Infof("gauge")
}

// Count sends a counter metric
func (ls *LoggingStatser) Count(name string, amount float64) {
	ls.logger.WithFields(logrus.Fields{
		"name":   name,
		"amount": amount,
	}).Infof("count")
}

// Increment sends a counter metric with a value of 1
func (ls *LoggingStatser) Increment(name string) {
	ls.logger.WithFields(logrus.Fields{
		"name": name,
	}).Infof("increment")
}

// TimingMS sends a timing metric from a millisecond value
func (ls *LoggingStatser) TimingMS(name string, ms float64) {
	ls.logger.WithFields(logrus.Fields{
		"name": name,
		"ms":   ms,
	}).Infof("timing")
}

// TimingDuration sends a timing metric from a time.Duration
func (ls *LoggingStatser) TimingDuration(name string, d time.Duration) {
	ls.TimingMS(name, float64(d)/float64(time.Millisecond))
}

// NewTimer returns a new timer with time set to now
func (ls *LoggingStatser) NewTimer(name string) *Timer {
	return newTimer(ls, name)
}

// WithPrefix creates a new Statser with a prefix on every name
func (ls *LoggingStatser) WithPrefix(prefix string) Statser {
	return NewPrefixedStatser(ls, prefix)
}
