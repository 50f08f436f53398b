// Package payload renders a snapshot as the JSON document shared by the console, file
// and redis backends.
package payload

import (
	"sort"

	jsoniter "github.com/json-iterator/go"

	"github.com/atlassian/netstatsd"
)

// DateTimeLayout is the layout of the human readable flush time.
const DateTimeLayout = "Mon Jan _2 2006 15:04:05 GMT-0700 (MST)"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Payload is the JSON form of a snapshot.
type Payload struct {
	Counters     map[string]float64            `json:"counters"`
	CounterRates map[string]float64            `json:"counter_rates"`
	Timers       map[string]map[string]float64 `json:"timers"`
	TimerData    map[string][]float64          `json:"timer_data,omitempty"`
	Gauges       map[string]float64            `json:"gauges"`
	Sets         map[string][]string           `json:"sets"`
	PctThreshold []float64                     `json:"pctThreshold"`
	Timestamp    int64                         `json:"timestamp"`
	DateTime     string                        `json:"datetime"`
}

// New builds the Payload of snap. Raw timer values are only included when withValues is set.
func New(snap *netstatsd.Snapshot, withValues bool) *Payload {
	p := &Payload{
		Counters:     make(map[string]float64, len(snap.Counters)),
		CounterRates: make(map[string]float64, len(snap.Counters)),
		Timers:       make(map[string]map[string]float64, len(snap.Timers)),
		Gauges:       make(map[string]float64, len(snap.Gauges)),
		Sets:         make(map[string][]string, len(snap.Sets)),
		PctThreshold: []float64{},
		Timestamp:    snap.Timestamp.Unix(),
		DateTime:     snap.Timestamp.Format(DateTimeLayout),
	}
	snap.Counters.Each(func(key string, c netstatsd.Counter) {
		p.Counters[key] = c.Value
		p.CounterRates[key] = c.PerSecond
	})
	thresholds := map[float64]struct{}{}
	snap.Timers.Each(func(key string, t netstatsd.Timer) {
		stats := map[string]float64{
			"count":    t.SampledCount,
			"count_ps": t.PerSecond,
		}
		if t.Count > 0 {
			stats["lower"] = t.Min
			stats["upper"] = t.Max
			stats["mean"] = t.Mean
			stats["median"] = t.Median
			stats["std"] = t.StdDev
			stats["sum"] = t.Sum
			stats["sum_squares"] = t.SumSquares
		}
		t.Percentiles.Each(func(name string, value float64) {
			stats[name] = value
		})
		for _, pct := range t.Percentiles {
			thresholds[pct.Threshold] = struct{}{}
		}
		p.Timers[key] = stats
		if withValues {
			if p.TimerData == nil {
				p.TimerData = make(map[string][]float64, len(snap.Timers))
			}
			p.TimerData[key] = append([]float64{}, t.Values...)
		}
	})
	for pt := range thresholds {
		p.PctThreshold = append(p.PctThreshold, pt)
	}
	sort.Float64s(p.PctThreshold)
	snap.Gauges.Each(func(key string, g netstatsd.Gauge) {
		p.Gauges[key] = g.Value
	})
	snap.Sets.Each(func(key string, s netstatsd.Set) {
		p.Sets[key] = s.Members()
	})
	return p
}

// Marshal renders the payload, indented when pretty is set.
func (p *Payload) Marshal(pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(p, "", "  ")
	}
	return json.Marshal(p)
}
