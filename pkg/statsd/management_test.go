package statsd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/netstatsd"
	"github.com/atlassian/netstatsd/internal/fixtures"
	"github.com/atlassian/netstatsd/pkg/healthcheck"
)

func newTestManagement(t *testing.T) (*Management, *Engine) {
	e := newTestEngine(netstatsd.IdlePolicy{})
	fs := newTestScheduler(e, time.Second, &fixtures.CapturingBackend{BackendName: "capture"})
	return NewManagement(e, fs), e
}

func TestManagementQueries(t *testing.T) {
	t.Parallel()
	m, e := newTestManagement(t)
	require.NoError(t, e.Record(fixtures.MakeSample(fixtures.Key("c"), fixtures.Value(2))))
	require.NoError(t, e.Record(fixtures.MakeSample(fixtures.Key("g"), fixtures.Gauge, fixtures.Value(4))))
	require.NoError(t, e.Record(fixtures.MakeSample(fixtures.Key("s"), fixtures.SetMember("y"))))
	require.NoError(t, e.Record(fixtures.MakeSample(fixtures.Key("s"), fixtures.SetMember("x"))))
	require.NoError(t, e.Record(fixtures.MakeSample(fixtures.Key("t"), fixtures.Timer, fixtures.Value(3))))
	require.NoError(t, e.Record(fixtures.MakeSample(fixtures.Key("t"), fixtures.Timer, fixtures.Value(1))))

	assert.Equal(t, netstatsd.Counters{"c": {Value: 2, Total: 2}}, m.Counters())
	assert.Equal(t, map[string]float64{"g": 4}, m.Gauges())
	assert.Equal(t, map[string][]string{"s": {"x", "y"}}, m.Sets())
	assert.Equal(t, map[string][]float64{"t": {3, 1}}, m.Timers())
}

func TestManagementKnownKeysAfterFlush(t *testing.T) {
	t.Parallel()
	m, e := newTestManagement(t)
	require.NoError(t, e.Record(fixtures.MakeSample(fixtures.Key("t"), fixtures.Timer, fixtures.Value(3))))
	e.SnapshotAndReset(time.Unix(10, 0))

	assert.Equal(t, map[string][]float64{"t": {}}, m.Timers())
}

func TestManagementStats(t *testing.T) {
	t.Parallel()
	m, e := newTestManagement(t)
	e.Stats().MessageSeen(time.Unix(50, 0))
	e.Stats().BadLine()

	report := m.Stats()
	assert.EqualValues(t, 1, report.PacketsReceived)
	assert.EqualValues(t, 1, report.BadLinesSeen)
	assert.Equal(t, time.Unix(50, 0).UnixNano(), report.LastMessageSeen.UnixNano())
	require.Len(t, report.Backends, 1)
	assert.Equal(t, "capture", report.Backends[0].Name)
}

func TestManagementDelete(t *testing.T) {
	t.Parallel()
	m, e := newTestManagement(t)
	require.NoError(t, e.Record(fixtures.MakeSample(fixtures.Key("k"))))
	require.NoError(t, e.Record(fixtures.MakeSample(fixtures.Key("k"), fixtures.Gauge)))

	assert.Equal(t, []netstatsd.MetricType{netstatsd.GAUGE}, m.Delete("k", netstatsd.GAUGE))
	assert.Empty(t, m.Gauges())
	assert.Contains(t, m.Counters(), "k")
	assert.Equal(t, []netstatsd.MetricType{netstatsd.COUNTER}, m.Delete("k"))
	assert.Empty(t, m.Counters())
}

func TestManagementHealthChecks(t *testing.T) {
	t.Parallel()
	m, _ := newTestManagement(t)
	good, bad := healthcheck.Run(m.HealthChecks())
	assert.Len(t, good, 1)
	assert.Empty(t, bad)
}

func TestManagementDeepChecks(t *testing.T) {
	t.Parallel()
	e := newTestEngine(netstatsd.IdlePolicy{})
	failing := &fixtures.MockBackend{
		TB:          t,
		BackendName: "failing",
		FnSendSnapshot: func(ctx context.Context, snap *netstatsd.Snapshot) error {
			return errors.New("connection refused")
		},
	}
	fs := newTestScheduler(e, time.Second, &fixtures.CapturingBackend{BackendName: "capture"}, failing)
	m := NewManagement(e, fs)

	good, bad := healthcheck.Run(m.DeepChecks())
	assert.Len(t, good, 2)
	assert.Empty(t, bad)

	require.True(t, fs.FlushNow(context.Background()))
	good, bad = healthcheck.Run(m.DeepChecks())
	assert.Equal(t, []string{"backend capture ok"}, good)
	assert.Equal(t, []string{"backend failing failing: connection refused"}, bad)

	assert.Nil(t, NewManagement(e, nil).DeepChecks())
}
