package fixtures

import (
	"time"

	"github.com/atlassian/netstatsd"
)

type SampleOpt func(s *netstatsd.Sample)

// MakeSample builds a sample for tests, a counter "name" of 1 unless changed by opts.
func MakeSample(opts ...SampleOpt) *netstatsd.Sample {
	s := &netstatsd.Sample{
		Type:  netstatsd.COUNTER,
		Key:   "name",
		Value: 1,
		Rate:  1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func Key(k string) SampleOpt {
	return func(s *netstatsd.Sample) {
		s.Key = k
	}
}

func Value(v float64) SampleOpt {
	return func(s *netstatsd.Sample) {
		s.Value = v
	}
}

func Rate(r float64) SampleOpt {
	return func(s *netstatsd.Sample) {
		s.Rate = r
	}
}

func Counter(s *netstatsd.Sample) {
	s.Type = netstatsd.COUNTER
}

func Gauge(s *netstatsd.Sample) {
	s.Type = netstatsd.GAUGE
}

// GaugeDelta makes the sample a relative gauge update.
func GaugeDelta(s *netstatsd.Sample) {
	s.Type = netstatsd.GAUGE
	s.Delta = true
}

func Timer(s *netstatsd.Sample) {
	s.Type = netstatsd.TIMER
}

// SetMember makes the sample a set sample of member m.
func SetMember(m string) SampleOpt {
	return func(s *netstatsd.Sample) {
		s.Type = netstatsd.SET
		s.StringValue = m
		s.Value = 0
	}
}

// MakeSnapshot returns the snapshot of an interval that saw hits:1|c three times,
// conns:3|g, two distinct uniques members and latency 10, 20 and 30ms.
func MakeSnapshot() *netstatsd.Snapshot {
	return &netstatsd.Snapshot{
		Timestamp:     time.Unix(1234, 0),
		FlushInterval: 10 * time.Second,
		Counters: netstatsd.Counters{
			"hits": {Value: 3, PerSecond: 0.3, Total: 3},
		},
		Gauges: netstatsd.Gauges{
			"conns": {Value: 3},
		},
		Sets: netstatsd.Sets{
			"uniques": {Values: map[string]struct{}{"a": {}, "b": {}}},
		},
		Timers: netstatsd.Timers{
			"latency": {
				Count:        3,
				SampledCount: 3,
				PerSecond:    0.3,
				Mean:         20,
				Median:       20,
				Min:          10,
				Max:          30,
				StdDev:       8.16496580927726,
				Sum:          60,
				SumSquares:   1400,
				Values:       []float64{10, 20, 30},
				Percentiles: netstatsd.Percentiles{
					{Threshold: 90, Upper: 30, Mean: 20, Sum: 60, Count: 3},
				},
			},
		},
	}
}
