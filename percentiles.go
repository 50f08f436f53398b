package netstatsd

import (
	"strconv"
	"strings"
)

// Percentile is the aggregation of a timer's values at or below a threshold.
type Percentile struct {
	Threshold float64
	Upper     float64 // The value at the threshold index
	Mean      float64 // Mean of values at or below the threshold index
	Sum       float64 // Sum of values at or below the threshold index
	Count     int     // Number of values at or below the threshold index
	// Overflow is set for thresholds above 100, which report the maximum.
	Overflow bool
}

// Suffix returns the threshold formatted for use in a metric name, "99.9" becomes "99_9".
func (p Percentile) Suffix() string {
	return FormatThreshold(p.Threshold)
}

// Percentiles is the list of percentile aggregations of a timer, in threshold order.
type Percentiles []Percentile

// Each calls f with the name and value of every statistic of every percentile.
func (p Percentiles) Each(f func(name string, value float64)) {
	for _, pct := range p {
		suffix := pct.Suffix()
		f("upper_"+suffix, pct.Upper)
		f("mean_"+suffix, pct.Mean)
		f("sum_"+suffix, pct.Sum)
		f("count_"+suffix, float64(pct.Count))
	}
}

// FormatThreshold renders a percent threshold with "." replaced by "_".
func FormatThreshold(threshold float64) string {
	return strings.Replace(strconv.FormatFloat(threshold, 'f', -1, 64), ".", "_", -1)
}
