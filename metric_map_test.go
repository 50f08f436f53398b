package netstatsd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplesFixtures() []*Sample {
	ss := []*Sample{
		{Key: "foo.bar.baz", Value: 2, Type: COUNTER},
		{Key: "abc.def.g", Value: 3, Type: GAUGE},
		{Key: "abc.def.g", Value: 8, Type: GAUGE},
		{Key: "def.g", Value: 10, Type: TIMER},
		{Key: "def.g", Value: 1, Type: TIMER},
		{Key: "smp.rte", Value: 50, Type: COUNTER},
		{Key: "smp.rte", Value: 5, Type: COUNTER},
		{Key: "uniq.usr", StringValue: "joe", Type: SET},
		{Key: "uniq.usr", StringValue: "joe", Type: SET},
		{Key: "uniq.usr", StringValue: "bob", Type: SET},
		{Key: "timer_sampling", Value: 10, Type: TIMER, Rate: 0.1},
		{Key: "timer_sampling", Value: 30, Type: TIMER, Rate: 0.1},
		{Key: "counter_sampling", Value: 2, Type: COUNTER, Rate: 0.25},
		{Key: "counter_sampling", Value: 5, Type: COUNTER, Rate: 0.25},
	}
	for _, s := range ss {
		if s.Rate == 0.0 {
			s.Rate = 1.0
		}
	}
	return ss
}

func TestReceive(t *testing.T) {
	t.Parallel()
	assrt := assert.New(t)

	mm := NewMetricMap()
	for _, s := range samplesFixtures() {
		mm.Receive(s)
	}

	assrt.Equal(Counters{
		"foo.bar.baz":      {Value: 2},
		"smp.rte":          {Value: 55},
		"counter_sampling": {Value: 28},
	}, mm.Counters)
	assrt.Equal(Gauges{"abc.def.g": {Value: 8}}, mm.Gauges)
	assrt.Equal([]float64{10, 1}, mm.Timers["def.g"].Values)
	assrt.InDelta(20, mm.Timers["timer_sampling"].SampledCount, 1e-9)
	assrt.Equal([]string{"bob", "joe"}, mm.Sets["uniq.usr"].Members())
	assrt.Equal(4, mm.Len())
}

func TestReceiveGaugeDeltas(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		samples  []*Sample
		expected Gauge
	}{
		{
			name:     "absolute then delta",
			samples:  []*Sample{{Value: 5}, {Value: -2, Delta: true}},
			expected: Gauge{Value: 3},
		},
		{
			name:     "deltas only",
			samples:  []*Sample{{Value: 4, Delta: true}, {Value: 1, Delta: true}},
			expected: Gauge{Value: 5, Relative: true},
		},
		{
			name:     "delta then absolute",
			samples:  []*Sample{{Value: 4, Delta: true}, {Value: 10}},
			expected: Gauge{Value: 10},
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			mm := NewMetricMap()
			for _, s := range tc.samples {
				s.Key, s.Type, s.Rate = "g", GAUGE, 1
				mm.Receive(s)
			}
			require.Equal(t, tc.expected, mm.Gauges["g"])
		})
	}
}

func TestMetricMapDelete(t *testing.T) {
	t.Parallel()
	mm := NewMetricMap()
	mm.Receive(&Sample{Key: "k", Type: COUNTER, Value: 1, Rate: 1})
	mm.Receive(&Sample{Key: "k", Type: TIMER, Value: 1, Rate: 1})
	mm.Receive(&Sample{Key: "other", Type: GAUGE, Value: 1, Rate: 1})

	mm.Receive(&Sample{Key: "k", Type: GAUGE, Value: 1, Rate: 1})

	require.Equal(t, []MetricType{GAUGE}, mm.Delete("k", GAUGE, SET))
	require.Equal(t, []MetricType{COUNTER, TIMER}, mm.Delete("k"))
	require.Empty(t, mm.Delete("k"))
	require.Equal(t, 1, mm.Len())
	require.False(t, mm.IsEmpty())
}

func TestMetricMapString(t *testing.T) {
	t.Parallel()
	mm := NewMetricMap()
	mm.Receive(&Sample{Key: "b", Type: COUNTER, Value: 1, Rate: 1})
	mm.Receive(&Sample{Key: "a", Type: COUNTER, Value: 2, Rate: 1})
	mm.Receive(&Sample{Key: "s", Type: SET, StringValue: "x", Rate: 1})
	require.Equal(t, "counter a: 2\ncounter b: 1\nset s: 1\n", mm.String())
}
