package netstatsd

import (
	"time"
)

// Snapshot is the statistical summary produced by one flush cycle.
// It must not be modified once handed to backends.
type Snapshot struct {
	Timestamp     time.Time     // When the flush cycle started
	FlushInterval time.Duration // Length of the interval the snapshot covers
	Counters      Counters
	Gauges        Gauges
	Sets          Sets
	Timers        Timers
}

// NumStats returns the number of keys reported across all metric types.
func (s *Snapshot) NumStats() int {
	return len(s.Counters) + len(s.Gauges) + len(s.Sets) + len(s.Timers)
}

// IsEmpty returns true if the snapshot reports no metrics.
func (s *Snapshot) IsEmpty() bool {
	return s.NumStats() == 0
}
