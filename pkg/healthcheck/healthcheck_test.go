package healthcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type provider struct{}

func (provider) HealthChecks() []HealthcheckFunc {
	return []HealthcheckFunc{func() (string, HealthyStatus) { return "up", Healthy }}
}

func (provider) DeepChecks() []HealthcheckFunc {
	return []HealthcheckFunc{func() (string, HealthyStatus) { return "down", Unhealthy }}
}

func TestMaybeAppendHealthChecks(t *testing.T) {
	t.Parallel()
	hc, dc := MaybeAppendHealthChecks(nil, nil, struct{}{})
	assert.Empty(t, hc)
	assert.Empty(t, dc)

	hc, dc = MaybeAppendHealthChecks(hc, dc, provider{})
	assert.Len(t, hc, 1)
	assert.Len(t, dc, 1)
}

func TestRun(t *testing.T) {
	t.Parallel()
	good, bad := Run(nil)
	assert.NotNil(t, good)
	assert.NotNil(t, bad)

	p := provider{}
	good, bad = Run(append(p.HealthChecks(), p.DeepChecks()...))
	assert.Equal(t, []string{"up"}, good)
	assert.Equal(t, []string{"down"}, bad)
}
