package netstatsd

import (
	"bytes"
	"fmt"
)

// MetricMap is used for storing the raw aggregation state of one interval.
// The keys of each map are metric names.
type MetricMap struct {
	Counters Counters
	Timers   Timers
	Gauges   Gauges
	Sets     Sets
}

func NewMetricMap() *MetricMap {
	return &MetricMap{
		Counters: Counters{},
		Timers:   Timers{},
		Gauges:   Gauges{},
		Sets:     Sets{},
	}
}

// Receive adds a single validated Sample to the MetricMap.
func (mm *MetricMap) Receive(s *Sample) {
	switch s.Type {
	case COUNTER:
		mm.receiveCounter(s)
	case GAUGE:
		mm.receiveGauge(s)
	case TIMER:
		mm.receiveTimer(s)
	case SET:
		mm.receiveSet(s)
	}
}

func (mm *MetricMap) receiveCounter(s *Sample) {
	c := mm.Counters[s.Key]
	c.Value += s.Value / s.Rate
	mm.Counters[s.Key] = c
}

func (mm *MetricMap) receiveGauge(s *Sample) {
	g, ok := mm.Gauges[s.Key]
	switch {
	case !s.Delta:
		g = Gauge{Value: s.Value}
	case ok:
		g.Value += s.Value
	default:
		g = Gauge{Value: s.Value, Relative: true}
	}
	mm.Gauges[s.Key] = g
}

func (mm *MetricMap) receiveTimer(s *Sample) {
	t := mm.Timers[s.Key]
	t.Values = append(t.Values, s.Value)
	t.SampledCount += 1.0 / s.Rate
	mm.Timers[s.Key] = t
}

func (mm *MetricMap) receiveSet(s *Sample) {
	set, ok := mm.Sets[s.Key]
	if !ok {
		mm.Sets[s.Key] = NewSet(s.StringValue)
		return
	}
	set.Values[s.StringValue] = struct{}{}
}

// Delete removes the key from the given metric types, or from every type if none are given.
// It returns the types the key was present in.
func (mm *MetricMap) Delete(key string, types ...MetricType) []MetricType {
	if len(types) == 0 {
		types = AllMetricTypes
	}
	var deleted []MetricType
	for _, t := range types {
		var ok bool
		switch t {
		case COUNTER:
			if _, ok = mm.Counters[key]; ok {
				mm.Counters.Delete(key)
			}
		case GAUGE:
			if _, ok = mm.Gauges[key]; ok {
				mm.Gauges.Delete(key)
			}
		case SET:
			if _, ok = mm.Sets[key]; ok {
				mm.Sets.Delete(key)
			}
		case TIMER:
			if _, ok = mm.Timers[key]; ok {
				mm.Timers.Delete(key)
			}
		}
		if ok {
			deleted = append(deleted, t)
		}
	}
	return deleted
}

// IsEmpty returns true if the map holds no metrics.
func (mm *MetricMap) IsEmpty() bool {
	return len(mm.Counters)+len(mm.Timers)+len(mm.Sets)+len(mm.Gauges) == 0
}

// Len returns the number of keys across all metric types.
func (mm *MetricMap) Len() int {
	return len(mm.Counters) + len(mm.Timers) + len(mm.Sets) + len(mm.Gauges)
}

func (mm *MetricMap) String() string {
	buf := new(bytes.Buffer)
	for _, k := range mm.Counters.Keys() {
		fmt.Fprintf(buf, "counter %s: %v\n", k, mm.Counters[k].Value)
	}
	for _, k := range mm.Gauges.Keys() {
		fmt.Fprintf(buf, "gauge %s: %v\n", k, mm.Gauges[k].Value)
	}
	for _, k := range mm.Sets.Keys() {
		fmt.Fprintf(buf, "set %s: %d\n", k, mm.Sets[k].Count())
	}
	for _, k := range mm.Timers.Keys() {
		fmt.Fprintf(buf, "timer %s: %v\n", k, mm.Timers[k].Values)
	}
	return buf.String()
}
