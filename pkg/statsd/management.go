package statsd

import (
	"fmt"
	"time"

	"github.com/atlassian/netstatsd"
	"github.com/atlassian/netstatsd/pkg/healthcheck"
)

// Management answers introspection and administrative queries against the interval in
// progress. Queries copy what they return, so they never observe a partial update and never
// hold up the flush cycle beyond the copy.
type Management struct {
	engine    *Engine
	scheduler *FlushScheduler // may be nil
	now       func() time.Time
}

// NewManagement creates a Management for the engine. scheduler may be nil, in which case no
// backend statuses are reported.
func NewManagement(engine *Engine, scheduler *FlushScheduler) *Management {
	return &Management{
		engine:    engine,
		scheduler: scheduler,
		now:       time.Now,
	}
}

// Stats returns the engine's own counters.
func (m *Management) Stats() StatsReport {
	report := m.engine.stats.report(m.now())
	if m.scheduler != nil {
		report.Backends = m.scheduler.BackendStatuses()
	}
	return report
}

// Counters returns the counters of the interval in progress, with their lifetime totals.
func (m *Management) Counters() netstatsd.Counters {
	return m.engine.Live().Counters
}

// Gauges returns the effective value of every known gauge.
func (m *Management) Gauges() map[string]float64 {
	live := m.engine.Live()
	gauges := make(map[string]float64, len(live.Gauges))
	for key, g := range live.Gauges {
		gauges[key] = g.Value
	}
	return gauges
}

// Sets returns the members seen so far in the interval for every known set.
func (m *Management) Sets() map[string][]string {
	live := m.engine.Live()
	sets := make(map[string][]string, len(live.Sets))
	for key, s := range live.Sets {
		sets[key] = s.Members()
	}
	return sets
}

// Timers returns the values seen so far in the interval for every known timer, in arrival order.
func (m *Management) Timers() map[string][]float64 {
	live := m.engine.Live()
	timers := make(map[string][]float64, len(live.Timers))
	for key, t := range live.Timers {
		values := t.Values
		if values == nil {
			values = []float64{}
		}
		timers[key] = values
	}
	return timers
}

// Delete removes the key from the given types, or from every type if none are given. It takes
// effect immediately regardless of the idle policy.
func (m *Management) Delete(key string, types ...netstatsd.MetricType) []netstatsd.MetricType {
	return m.engine.Delete(key, types...)
}

// HealthChecks reports the engine as up for as long as the process runs.
func (m *Management) HealthChecks() []healthcheck.HealthcheckFunc {
	return []healthcheck.HealthcheckFunc{
		func() (string, healthcheck.HealthyStatus) {
			r := m.engine.stats.report(m.now())
			return fmt.Sprintf("engine up for %v", r.Uptime.Truncate(time.Second)), healthcheck.Healthy
		},
	}
}

// DeepChecks reports a backend as unhealthy while its most recent delivery failed.
func (m *Management) DeepChecks() []healthcheck.HealthcheckFunc {
	if m.scheduler == nil {
		return nil
	}
	checks := make([]healthcheck.HealthcheckFunc, 0, len(m.scheduler.backends))
	for i := range m.scheduler.backends {
		i := i
		checks = append(checks, func() (string, healthcheck.HealthyStatus) {
			status := m.scheduler.BackendStatuses()[i]
			if status.LastFlushError.After(status.LastFlush) {
				return fmt.Sprintf("backend %s failing: %s", status.Name, status.LastError), healthcheck.Unhealthy
			}
			return fmt.Sprintf("backend %s ok", status.Name), healthcheck.Healthy
		})
	}
	return checks
}
