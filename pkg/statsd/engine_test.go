package statsd

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/netstatsd"
	"github.com/atlassian/netstatsd/internal/fixtures"
)

func newTestEngine(idle netstatsd.IdlePolicy) *Engine {
	return NewEngine(10*time.Second, []float64{90}, idle, nil)
}

func TestEngineRecordCountsSamples(t *testing.T) {
	t.Parallel()
	e := newTestEngine(netstatsd.IdlePolicy{})

	require.NoError(t, e.Record(fixtures.MakeSample()))
	require.Error(t, e.Record(fixtures.MakeSample(fixtures.Rate(2))))

	report := e.Stats().report(time.Now())
	assert.EqualValues(t, 1, report.SamplesRecorded)
	assert.EqualValues(t, 1, report.SamplesRejected)
}

func TestEngineDeleteIdleCounter(t *testing.T) {
	t.Parallel()
	e := newTestEngine(netstatsd.IdlePolicy{DeleteCounters: true})

	require.NoError(t, e.Record(fixtures.MakeSample(fixtures.Key("k"))))
	assert.Contains(t, e.SnapshotAndReset(time.Unix(10, 0)).Counters, "k")
	assert.NotContains(t, e.SnapshotAndReset(time.Unix(20, 0)).Counters, "k")
	assert.NotContains(t, e.SnapshotAndReset(time.Unix(30, 0)).Counters, "k")

	require.NoError(t, e.Record(fixtures.MakeSample(fixtures.Key("k"))))
	assert.Equal(t, 1.0, e.SnapshotAndReset(time.Unix(40, 0)).Counters["k"].Value)
}

func TestEngineSnapshotMetadata(t *testing.T) {
	t.Parallel()
	e := newTestEngine(netstatsd.IdlePolicy{})
	snap := e.SnapshotAndReset(time.Unix(10, 0))
	assert.Equal(t, time.Unix(10, 0), snap.Timestamp)
	assert.Equal(t, 10*time.Second, snap.FlushInterval)
	assert.True(t, snap.IsEmpty())
}

// Every recorded sample lands in exactly one snapshot, however records and flushes interleave.
func TestEngineConcurrentRecordAndFlush(t *testing.T) {
	t.Parallel()
	e := newTestEngine(netstatsd.IdlePolicy{})
	const writers = 8
	const perWriter = 5000

	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				assert.NoError(t, e.Record(fixtures.MakeSample(fixtures.Key("c"))))
				assert.NoError(t, e.Record(fixtures.MakeSample(fixtures.Key("t"), fixtures.Timer, fixtures.Value(float64(j)))))
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var counted float64
	var timed int
	flush := func() {
		snap := e.SnapshotAndReset(time.Now())
		counted += snap.Counters["c"].Value
		timed += snap.Timers["t"].Count
	}
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
			flush()
			_ = e.Live()
		}
	}
	flush()

	assert.Equal(t, float64(writers*perWriter), counted)
	assert.Equal(t, writers*perWriter, timed)
	assert.Equal(t, float64(writers*perWriter), e.SnapshotAndReset(time.Now()).Counters["c"].Total)
}

func TestEngineDelete(t *testing.T) {
	t.Parallel()
	e := newTestEngine(netstatsd.IdlePolicy{})
	require.NoError(t, e.Record(fixtures.MakeSample(fixtures.Key("k"))))
	e.SnapshotAndReset(time.Unix(10, 0))
	require.NoError(t, e.Record(fixtures.MakeSample(fixtures.Key("k"), fixtures.Timer)))

	assert.Equal(t, []netstatsd.MetricType{netstatsd.COUNTER, netstatsd.TIMER}, e.Delete("k"))
	assert.True(t, e.SnapshotAndReset(time.Unix(20, 0)).IsEmpty())
	assert.Empty(t, e.Delete("k"))
}

func TestEngineTracksKeys(t *testing.T) {
	t.Parallel()
	tracker := NewKeyTracker(time.Minute, 100, io.Discard)
	e := NewEngine(time.Second, nil, netstatsd.IdlePolicy{}, tracker)

	require.NoError(t, e.Record(fixtures.MakeSample(fixtures.Key("a"))))
	require.Error(t, e.Record(fixtures.MakeSample(fixtures.Key("a"), fixtures.Rate(0))))
	require.NoError(t, e.Record(fixtures.MakeSample(fixtures.Key("b"))))

	assert.Equal(t, []KeyCount{{Key: "a", Count: 2}, {Key: "b", Count: 1}}, tracker.Top())
}
