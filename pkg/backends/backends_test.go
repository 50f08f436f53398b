package backends

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/netstatsd/pkg/backends/console"
	"github.com/atlassian/netstatsd/pkg/backends/null"
)

func TestInitBackends(t *testing.T) {
	t.Parallel()
	v := viper.New()
	v.Set("console.prettyprint", false)
	result, err := InitBackends([]string{null.BackendName, "", console.BackendName, null.BackendName}, v)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, null.BackendName, result[0].Name())
	assert.Equal(t, console.BackendName, result[1].Name())
}

func TestInitBackendUnknown(t *testing.T) {
	t.Parallel()
	b, err := InitBackend("carrier-pigeon", viper.New())
	assert.Nil(t, b)
	assert.EqualError(t, err, `unknown backend "carrier-pigeon"`)

	_, err = InitBackends([]string{"carrier-pigeon"}, viper.New())
	assert.Error(t, err)
}

func TestInitBackendFailure(t *testing.T) {
	t.Parallel()
	v := viper.New()
	v.Set("graphite.address", "")
	_, err := InitBackend("graphite", v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `could not init backend "graphite"`)
}

func TestAllBackendsRegistered(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"cloudwatch", "console", "file", "graphite", "null", "redis", "repeater"} {
		_, ok := backends[name]
		assert.True(t, ok, name)
	}
}
