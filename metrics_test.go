package netstatsd

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetricTypeString(t *testing.T) {
	types := []MetricType{COUNTER, TIMER, SET, GAUGE, 42}
	names := []string{"counter", "timer", "set", "gauge", "unknown"}
	for idx, name := range names {
		require.Equal(t, name, types[idx].String())
	}
}

func TestSampleValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		sample Sample
		err    error
	}{
		{Sample{Type: COUNTER, Value: 1, Rate: 1}, nil},
		{Sample{Type: COUNTER, Value: 1, Rate: 0.1}, nil},
		{Sample{Type: COUNTER, Value: 1, Rate: 0}, ErrInvalidSampleRate},
		{Sample{Type: COUNTER, Value: 1, Rate: 1.5}, ErrInvalidSampleRate},
		{Sample{Type: TIMER, Value: 1, Rate: -1}, ErrInvalidSampleRate},
		{Sample{Type: TIMER, Value: math.NaN(), Rate: 1}, ErrNonFiniteValue},
		{Sample{Type: GAUGE, Value: math.Inf(1)}, ErrNonFiniteValue},
		{Sample{Type: GAUGE, Value: -3, Delta: true}, nil},
		{Sample{Type: SET, StringValue: "x"}, nil},
		{Sample{Type: 42}, ErrUnknownMetricType},
	}
	for _, tc := range tests {
		err := tc.sample.Validate()
		if tc.err == nil {
			require.NoError(t, err, tc.sample.String())
		} else {
			require.True(t, errors.Is(err, tc.err), "%s: %v", tc.sample.String(), err)
		}
	}
}

func TestSampleString(t *testing.T) {
	t.Parallel()
	require.Equal(t, "a:1|c", (&Sample{Key: "a", Type: COUNTER, Value: 1, Rate: 1}).String())
	require.Equal(t, "a:1|c|@0.5", (&Sample{Key: "a", Type: COUNTER, Value: 1, Rate: 0.5}).String())
	require.Equal(t, "a:2.5|ms", (&Sample{Key: "a", Type: TIMER, Value: 2.5, Rate: 1}).String())
	require.Equal(t, "a:+3|g", (&Sample{Key: "a", Type: GAUGE, Value: 3, Delta: true}).String())
	require.Equal(t, "a:-3|g", (&Sample{Key: "a", Type: GAUGE, Value: -3, Delta: true}).String())
	require.Equal(t, "a:joe|s", (&Sample{Key: "a", Type: SET, StringValue: "joe"}).String())
}

func TestPercentileNames(t *testing.T) {
	t.Parallel()
	pcts := Percentiles{{Threshold: 99.9, Upper: 5, Mean: 3, Sum: 9, Count: 3}}
	got := map[string]float64{}
	pcts.Each(func(name string, value float64) {
		got[name] = value
	})
	require.Equal(t, map[string]float64{
		"upper_99_9": 5,
		"mean_99_9":  3,
		"sum_99_9":   9,
		"count_99_9": 3,
	}, got)
	require.Equal(t, "90", FormatThreshold(90))
}
