package statsd

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/netstatsd"
	"github.com/atlassian/netstatsd/internal/fixtures"
)

func flushMap(a *MetricAggregator, mm *netstatsd.MetricMap) *netstatsd.Snapshot {
	snap := a.Merge(mm, time.Unix(100, 0), 10*time.Second)
	a.Summarize(snap)
	return snap
}

func mapOf(samples ...*netstatsd.Sample) *netstatsd.MetricMap {
	mm := netstatsd.NewMetricMap()
	for _, s := range samples {
		mm.Receive(s)
	}
	return mm
}

func TestAggregatorEndToEnd(t *testing.T) {
	t.Parallel()
	a := NewMetricAggregator([]float64{90}, netstatsd.IdlePolicy{})

	snap := flushMap(a, mapOf(
		fixtures.MakeSample(fixtures.Key("hits")),
		fixtures.MakeSample(fixtures.Key("hits")),
		fixtures.MakeSample(fixtures.Key("hits")),
		fixtures.MakeSample(fixtures.Key("conns"), fixtures.Gauge, fixtures.Value(5)),
		fixtures.MakeSample(fixtures.Key("conns"), fixtures.GaugeDelta, fixtures.Value(-2)),
		fixtures.MakeSample(fixtures.Key("uniques"), fixtures.SetMember("a")),
		fixtures.MakeSample(fixtures.Key("uniques"), fixtures.SetMember("b")),
		fixtures.MakeSample(fixtures.Key("uniques"), fixtures.SetMember("a")),
		fixtures.MakeSample(fixtures.Key("latency"), fixtures.Timer, fixtures.Value(10)),
		fixtures.MakeSample(fixtures.Key("latency"), fixtures.Timer, fixtures.Value(20)),
		fixtures.MakeSample(fixtures.Key("latency"), fixtures.Timer, fixtures.Value(30)),
	))

	assert.Equal(t, netstatsd.Counter{Value: 3, PerSecond: 0.3, Total: 3}, snap.Counters["hits"])
	assert.Equal(t, netstatsd.Gauge{Value: 3}, snap.Gauges["conns"])
	assert.Equal(t, 2, snap.Sets["uniques"].Count())

	latency := snap.Timers["latency"]
	assert.Equal(t, 3, latency.Count)
	assert.Equal(t, 60.0, latency.Sum)
	assert.Equal(t, 20.0, latency.Mean)
	assert.Equal(t, 20.0, latency.Median)
	assert.Equal(t, 10.0, latency.Min)
	assert.Equal(t, 30.0, latency.Max)
	assert.Equal(t, 1400.0, latency.SumSquares)
	assert.InDelta(t, math.Sqrt(200.0/3), latency.StdDev, 1e-9)
	assert.InDelta(t, 0.3, latency.PerSecond, 1e-9)
	require.Len(t, latency.Percentiles, 1)
	assert.Equal(t, 30.0, latency.Percentiles[0].Upper)
	assert.Equal(t, 3, latency.Percentiles[0].Count)
}

func TestAggregatorCountersRestartEachInterval(t *testing.T) {
	t.Parallel()
	a := NewMetricAggregator(nil, netstatsd.IdlePolicy{})

	flushMap(a, mapOf(fixtures.MakeSample(fixtures.Key("c"), fixtures.Value(4))))
	snap := flushMap(a, mapOf(fixtures.MakeSample(fixtures.Key("c"), fixtures.Value(1))))
	assert.Equal(t, 1.0, snap.Counters["c"].Value)
	assert.Equal(t, 5.0, snap.Counters["c"].Total)

	snap = flushMap(a, netstatsd.NewMetricMap())
	assert.Equal(t, netstatsd.Counter{Total: 5}, snap.Counters["c"], "idle counter reports zero")
}

func TestAggregatorGaugeDeltaAppliesToLastValue(t *testing.T) {
	t.Parallel()
	a := NewMetricAggregator(nil, netstatsd.IdlePolicy{})

	flushMap(a, mapOf(fixtures.MakeSample(fixtures.Key("g"), fixtures.Gauge, fixtures.Value(10))))
	snap := flushMap(a, mapOf(fixtures.MakeSample(fixtures.Key("g"), fixtures.GaugeDelta, fixtures.Value(5))))
	assert.Equal(t, 15.0, snap.Gauges["g"].Value)

	snap = flushMap(a, mapOf(fixtures.MakeSample(fixtures.Key("fresh"), fixtures.GaugeDelta, fixtures.Value(-3))))
	assert.Equal(t, -3.0, snap.Gauges["fresh"].Value, "delta on an unknown gauge starts from zero")
	assert.Equal(t, 15.0, snap.Gauges["g"].Value, "idle gauge repeats its value")
}

func TestAggregatorIdlePolicy(t *testing.T) {
	t.Parallel()
	seed := func() *netstatsd.MetricMap {
		return mapOf(
			fixtures.MakeSample(fixtures.Key("c")),
			fixtures.MakeSample(fixtures.Key("g"), fixtures.Gauge, fixtures.Value(7)),
			fixtures.MakeSample(fixtures.Key("s"), fixtures.SetMember("m")),
			fixtures.MakeSample(fixtures.Key("t"), fixtures.Timer, fixtures.Value(1)),
		)
	}

	t.Run("keep", func(t *testing.T) {
		t.Parallel()
		a := NewMetricAggregator([]float64{90}, netstatsd.IdlePolicy{})
		flushMap(a, seed())
		snap := flushMap(a, netstatsd.NewMetricMap())

		assert.Equal(t, netstatsd.Counter{Total: 1}, snap.Counters["c"])
		assert.Equal(t, netstatsd.Gauge{Value: 7}, snap.Gauges["g"])
		require.Contains(t, snap.Sets, "s")
		assert.Zero(t, snap.Sets["s"].Count())
		require.Contains(t, snap.Timers, "t")
		assert.Equal(t, netstatsd.Timer{}, snap.Timers["t"])
		assert.Empty(t, snap.Timers["t"].Percentiles)
	})

	t.Run("delete", func(t *testing.T) {
		t.Parallel()
		a := NewMetricAggregator([]float64{90}, netstatsd.IdlePolicy{
			DeleteCounters: true,
			DeleteGauges:   true,
			DeleteSets:     true,
			DeleteTimers:   true,
		})
		flushMap(a, seed())
		snap := flushMap(a, netstatsd.NewMetricMap())
		assert.True(t, snap.IsEmpty())

		snap = flushMap(a, mapOf(
			fixtures.MakeSample(fixtures.Key("c")),
			fixtures.MakeSample(fixtures.Key("g"), fixtures.GaugeDelta, fixtures.Value(1)),
		))
		assert.Equal(t, netstatsd.Counter{Value: 1, PerSecond: 0.1, Total: 1}, snap.Counters["c"], "evicted counter restarts")
		assert.Equal(t, 8.0, snap.Gauges["g"].Value, "omitted gauge keeps its value")
	})

	t.Run("per type", func(t *testing.T) {
		t.Parallel()
		a := NewMetricAggregator(nil, netstatsd.IdlePolicy{DeleteCounters: true})
		flushMap(a, seed())
		snap := flushMap(a, netstatsd.NewMetricMap())
		assert.NotContains(t, snap.Counters, "c")
		assert.Contains(t, snap.Gauges, "g")
		assert.Contains(t, snap.Sets, "s")
		assert.Contains(t, snap.Timers, "t")
	})
}

func TestAggregatorTimerSampling(t *testing.T) {
	t.Parallel()
	a := NewMetricAggregator(nil, netstatsd.IdlePolicy{})
	snap := flushMap(a, mapOf(
		fixtures.MakeSample(fixtures.Key("t"), fixtures.Timer, fixtures.Value(4), fixtures.Rate(0.1)),
		fixtures.MakeSample(fixtures.Key("t"), fixtures.Timer, fixtures.Value(2), fixtures.Rate(0.1)),
	))
	timer := snap.Timers["t"]
	assert.Equal(t, 2, timer.Count)
	assert.InDelta(t, 20.0, timer.SampledCount, 1e-9)
	assert.InDelta(t, 2.0, timer.PerSecond, 1e-9)
	assert.Equal(t, 3.0, timer.Median)
}

func TestAggregatorZeroInterval(t *testing.T) {
	t.Parallel()
	a := NewMetricAggregator(nil, netstatsd.IdlePolicy{})
	snap := a.Merge(mapOf(fixtures.MakeSample(fixtures.Key("c"))), time.Unix(1, 0), 0)
	assert.Zero(t, snap.Counters["c"].PerSecond)
}

func TestAggregatorLive(t *testing.T) {
	t.Parallel()
	a := NewMetricAggregator(nil, netstatsd.IdlePolicy{})
	flushMap(a, mapOf(
		fixtures.MakeSample(fixtures.Key("c"), fixtures.Value(2)),
		fixtures.MakeSample(fixtures.Key("g"), fixtures.Gauge, fixtures.Value(10)),
		fixtures.MakeSample(fixtures.Key("s"), fixtures.SetMember("x")),
		fixtures.MakeSample(fixtures.Key("t"), fixtures.Timer, fixtures.Value(1)),
	))

	active := mapOf(
		fixtures.MakeSample(fixtures.Key("c"), fixtures.Value(3)),
		fixtures.MakeSample(fixtures.Key("g"), fixtures.GaugeDelta, fixtures.Value(1)),
		fixtures.MakeSample(fixtures.Key("t"), fixtures.Timer, fixtures.Value(5)),
	)
	live := a.Live(active)

	assert.Equal(t, netstatsd.Counter{Value: 3, Total: 5}, live.Counters["c"])
	assert.Equal(t, 11.0, live.Gauges["g"].Value)
	assert.Zero(t, live.Sets["s"].Count())
	assert.Equal(t, []float64{5}, live.Timers["t"].Values)

	live.Timers["t"].Values[0] = 99
	assert.Equal(t, []float64{5}, active.Timers["t"].Values, "live view must be a copy")
}

func TestAggregatorForget(t *testing.T) {
	t.Parallel()
	a := NewMetricAggregator(nil, netstatsd.IdlePolicy{})
	flushMap(a, mapOf(
		fixtures.MakeSample(fixtures.Key("k")),
		fixtures.MakeSample(fixtures.Key("k"), fixtures.Gauge),
	))

	assert.Equal(t, []netstatsd.MetricType{netstatsd.GAUGE}, a.Forget("k", netstatsd.GAUGE, netstatsd.SET))
	assert.Equal(t, []netstatsd.MetricType{netstatsd.COUNTER}, a.Forget("k"))
	assert.Empty(t, a.Forget("k"))
	assert.True(t, flushMap(a, netstatsd.NewMetricMap()).IsEmpty())
}
