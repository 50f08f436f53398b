package statsd

import (
	"math"
	"sort"

	"github.com/atlassian/netstatsd"
)

// CalculatePercentiles computes the aggregation of values at or below each threshold.
// values are not modified. For threshold p over n values the boundary index is
// ceil(p*n/100)-1, clamped to [0, n-1]. Thresholds above 100 report the maximum and are
// marked as overflow. No percentiles are produced for an empty series.
func CalculatePercentiles(values []float64, thresholds []float64) netstatsd.Percentiles {
	n := len(values)
	if n == 0 || len(thresholds) == 0 {
		return nil
	}
	sorted := values
	if !sort.Float64sAreSorted(values) {
		sorted = make([]float64, n)
		copy(sorted, values)
		sort.Float64s(sorted)
	}

	cumulative := make([]float64, n)
	cumulative[0] = sorted[0]
	for i := 1; i < n; i++ {
		cumulative[i] = cumulative[i-1] + sorted[i]
	}

	pcts := make(netstatsd.Percentiles, 0, len(thresholds))
	for _, pct := range thresholds {
		idx := percentileIndex(pct, n)
		pcts = append(pcts, netstatsd.Percentile{
			Threshold: pct,
			Upper:     sorted[idx],
			Mean:      cumulative[idx] / float64(idx+1),
			Sum:       cumulative[idx],
			Count:     idx + 1,
			Overflow:  pct > 100,
		})
	}
	return pcts
}

func percentileIndex(pct float64, n int) int {
	// p*n/100 rather than p/100*n, so 90th of 10 is exactly 9.
	idx := int(math.Ceil(pct*float64(n)/100)) - 1
	if idx < 0 {
		return 0
	}
	if idx > n-1 {
		return n - 1
	}
	return idx
}
