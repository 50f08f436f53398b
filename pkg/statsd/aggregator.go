package statsd

import (
	"math"
	"sort"
	"time"

	"github.com/atlassian/netstatsd"
)

// MetricAggregator owns the state that outlives a single interval: gauge values, counter
// totals and the keys known for each type. It folds each retired interval buffer into that
// state and derives the statistics reported for the interval.
//
// Merge, Live and Forget need exclusive access, provided by the Engine. Summarize only reads
// configuration and may run concurrently with them.
type MetricAggregator struct {
	percentThresholds []float64
	idle              netstatsd.IdlePolicy

	counterTotals map[string]float64 // Known counters and their lifetime totals
	gauges        map[string]float64
	sets          map[string]struct{}
	timers        map[string]struct{}
}

// NewMetricAggregator creates a new MetricAggregator object.
func NewMetricAggregator(percentThresholds []float64, idle netstatsd.IdlePolicy) *MetricAggregator {
	return &MetricAggregator{
		percentThresholds: percentThresholds,
		idle:              idle,
		counterTotals:     map[string]float64{},
		gauges:            map[string]float64{},
		sets:              map[string]struct{}{},
		timers:            map[string]struct{}{},
	}
}

// Merge folds a retired buffer into the known state, applies the idle policy, and returns the
// snapshot for the interval. Timer statistics are left for Summarize.
func (a *MetricAggregator) Merge(retired *netstatsd.MetricMap, now time.Time, interval time.Duration) *netstatsd.Snapshot {
	snap := &netstatsd.Snapshot{
		Timestamp:     now,
		FlushInterval: interval,
		Counters:      make(netstatsd.Counters, len(a.counterTotals)+len(retired.Counters)),
		Gauges:        make(netstatsd.Gauges, len(a.gauges)+len(retired.Gauges)),
		Sets:          make(netstatsd.Sets, len(a.sets)+len(retired.Sets)),
		Timers:        make(netstatsd.Timers, len(a.timers)+len(retired.Timers)),
	}
	a.mergeCounters(retired.Counters, snap)
	a.mergeGauges(retired.Gauges, snap)
	a.mergeSets(retired.Sets, snap)
	a.mergeTimers(retired.Timers, snap)
	return snap
}

func (a *MetricAggregator) mergeCounters(interval netstatsd.Counters, snap *netstatsd.Snapshot) {
	for key, counter := range interval {
		a.counterTotals[key] += counter.Value
	}
	for key, total := range a.counterTotals {
		counter, touched := interval[key]
		if !touched && a.idle.DeleteCounters {
			delete(a.counterTotals, key)
			continue
		}
		counter.Total = total
		counter.PerSecond = perSecond(counter.Value, snap.FlushInterval)
		snap.Counters[key] = counter
	}
}

func (a *MetricAggregator) mergeGauges(interval netstatsd.Gauges, snap *netstatsd.Snapshot) {
	for key, gauge := range interval {
		if gauge.Relative {
			a.gauges[key] += gauge.Value
		} else {
			a.gauges[key] = gauge.Value
		}
	}
	for key, value := range a.gauges {
		// Idle gauges keep their value so later deltas still apply to it.
		if _, touched := interval[key]; !touched && a.idle.DeleteGauges {
			continue
		}
		snap.Gauges[key] = netstatsd.Gauge{Value: value}
	}
}

func (a *MetricAggregator) mergeSets(interval netstatsd.Sets, snap *netstatsd.Snapshot) {
	for key := range interval {
		a.sets[key] = struct{}{}
	}
	for key := range a.sets {
		set, touched := interval[key]
		if !touched {
			if a.idle.DeleteSets {
				delete(a.sets, key)
				continue
			}
			set = netstatsd.Set{Values: map[string]struct{}{}}
		}
		snap.Sets[key] = set
	}
}

func (a *MetricAggregator) mergeTimers(interval netstatsd.Timers, snap *netstatsd.Snapshot) {
	for key := range interval {
		a.timers[key] = struct{}{}
	}
	for key := range a.timers {
		timer, touched := interval[key]
		if !touched && a.idle.DeleteTimers {
			delete(a.timers, key)
			continue
		}
		snap.Timers[key] = timer
	}
}

// Summarize computes the statistics of every timer in the snapshot, including percentiles.
// The snapshot must not have been handed to anyone yet.
func (a *MetricAggregator) Summarize(snap *netstatsd.Snapshot) {
	for key, timer := range snap.Timers {
		snap.Timers[key] = a.summarizeTimer(timer, snap.FlushInterval)
	}
}

func (a *MetricAggregator) summarizeTimer(timer netstatsd.Timer, interval time.Duration) netstatsd.Timer {
	n := len(timer.Values)
	if n == 0 {
		return netstatsd.Timer{}
	}
	// The values belong to the retired buffer, so sorting in place is safe.
	sort.Float64s(timer.Values)
	count := float64(n)

	var sum, sumSquares float64
	for _, v := range timer.Values {
		sum += v
		sumSquares += v * v
	}
	mean := sum / count

	var sumOfDiffs float64
	for _, v := range timer.Values {
		sumOfDiffs += (v - mean) * (v - mean)
	}

	mid := n / 2
	if n%2 == 0 {
		timer.Median = (timer.Values[mid-1] + timer.Values[mid]) / 2
	} else {
		timer.Median = timer.Values[mid]
	}

	timer.Count = n
	timer.Min = timer.Values[0]
	timer.Max = timer.Values[n-1]
	timer.Sum = sum
	timer.SumSquares = sumSquares
	timer.Mean = mean
	timer.StdDev = math.Sqrt(sumOfDiffs / count)
	timer.PerSecond = perSecond(timer.SampledCount, interval)
	timer.Percentiles = CalculatePercentiles(timer.Values, a.percentThresholds)
	return timer
}

// Live returns a copy of the interval in progress as seen by management queries: counters
// carry their lifetime total, gauges their effective value, and known keys that have not been
// touched yet are included empty.
func (a *MetricAggregator) Live(active *netstatsd.MetricMap) *netstatsd.MetricMap {
	live := netstatsd.NewMetricMap()

	for key, total := range a.counterTotals {
		live.Counters[key] = netstatsd.Counter{Total: total}
	}
	for key, counter := range active.Counters {
		c := live.Counters[key]
		c.Value = counter.Value
		c.Total += counter.Value
		live.Counters[key] = c
	}

	for key, value := range a.gauges {
		live.Gauges[key] = netstatsd.Gauge{Value: value}
	}
	for key, gauge := range active.Gauges {
		if gauge.Relative {
			live.Gauges[key] = netstatsd.Gauge{Value: a.gauges[key] + gauge.Value}
		} else {
			live.Gauges[key] = netstatsd.Gauge{Value: gauge.Value}
		}
	}

	for key := range a.sets {
		live.Sets[key] = netstatsd.Set{Values: map[string]struct{}{}}
	}
	for key, set := range active.Sets {
		values := make(map[string]struct{}, len(set.Values))
		for v := range set.Values {
			values[v] = struct{}{}
		}
		live.Sets[key] = netstatsd.Set{Values: values}
	}

	for key := range a.timers {
		live.Timers[key] = netstatsd.Timer{}
	}
	for key, timer := range active.Timers {
		values := make([]float64, len(timer.Values))
		copy(values, timer.Values)
		live.Timers[key] = netstatsd.Timer{Values: values, SampledCount: timer.SampledCount, Count: len(values)}
	}
	return live
}

// Forget removes the key from the known state of the given types, or of every type if none
// are given. It returns the types the key was known as.
func (a *MetricAggregator) Forget(key string, types ...netstatsd.MetricType) []netstatsd.MetricType {
	if len(types) == 0 {
		types = netstatsd.AllMetricTypes
	}
	var forgotten []netstatsd.MetricType
	for _, t := range types {
		var ok bool
		switch t {
		case netstatsd.COUNTER:
			if _, ok = a.counterTotals[key]; ok {
				delete(a.counterTotals, key)
			}
		case netstatsd.GAUGE:
			if _, ok = a.gauges[key]; ok {
				delete(a.gauges, key)
			}
		case netstatsd.SET:
			if _, ok = a.sets[key]; ok {
				delete(a.sets, key)
			}
		case netstatsd.TIMER:
			if _, ok = a.timers[key]; ok {
				delete(a.timers, key)
			}
		}
		if ok {
			forgotten = append(forgotten, t)
		}
	}
	return forgotten
}

func perSecond(value float64, interval time.Duration) float64 {
	if interval <= 0 {
		return 0
	}
	return value / interval.Seconds()
}
