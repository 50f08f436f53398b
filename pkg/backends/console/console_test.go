package console

import (
	"bytes"
	"context"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/netstatsd/internal/fixtures"
)

func TestSendSnapshot(t *testing.T) {
	t.Parallel()
	for _, pretty := range []bool{true, false} {
		var buf bytes.Buffer
		c := NewClient(&buf, pretty)
		require.NoError(t, c.SendSnapshot(context.Background(), fixtures.MakeSnapshot()))

		out := buf.String()
		require.True(t, strings.HasSuffix(out, "\n"))
		if !pretty {
			assert.Equal(t, 1, strings.Count(out, "\n"))
		} else {
			assert.Greater(t, strings.Count(out, "\n"), 1)
		}

		var decoded struct {
			Counters map[string]float64 `json:"counters"`
			Gauges   map[string]float64 `json:"gauges"`
		}
		require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, map[string]float64{"hits": 3}, decoded.Counters)
		assert.Equal(t, map[string]float64{"conns": 3}, decoded.Gauges)
	}
}

func TestNewClientFromViper(t *testing.T) {
	t.Parallel()
	v := viper.New()
	v.Set("console.prettyprint", false)
	b, err := NewClientFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, BackendName, b.Name())
	assert.False(t, b.(*Client).prettyPrint)
}
