package stats

import (
	"time"
)

// Timer times an operation and reports the elapsed time to a Statser.
type Timer struct {
	statser   Statser
	name      string
	startTime time.Time
}

func newTimer(statser Statser, name string) *Timer {
	return &Timer{
		statser:   statser,
		name:      name,
		startTime: time.Now(),
	}
}

// Send sends the elapsed time as a timing metric.
func (t *Timer) Send() {
	t.statser.TimingDuration(t.name, time.Since(t.startTime))
}

// SendGauge sends the elapsed time in milliseconds as a gauge.
func (t *Timer) SendGauge() {
	t.statser.Gauge(t.name, float64(time.Since(t.startTime))/float64(time.Millisecond))
}
