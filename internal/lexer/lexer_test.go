package lexer

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/netstatsd"
)

func TestMetricsLexer(t *testing.T) {
	t.Parallel()
	tests := map[string][]*netstatsd.Sample{
		"foo.bar.baz:2|c":    {{Key: "foo.bar.baz", Value: 2, Type: netstatsd.COUNTER, Rate: 1.0}},
		"abc.def.g:3|g":      {{Key: "abc.def.g", Value: 3, Type: netstatsd.GAUGE, Rate: 1.0}},
		"abc.def.g:+3|g":     {{Key: "abc.def.g", Value: 3, Type: netstatsd.GAUGE, Rate: 1.0, Delta: true}},
		"abc.def.g:-3.5|g":   {{Key: "abc.def.g", Value: -3.5, Type: netstatsd.GAUGE, Rate: 1.0, Delta: true}},
		"def.g:10|ms":        {{Key: "def.g", Value: 10, Type: netstatsd.TIMER, Rate: 1.0}},
		"def.h:10|h":         {{Key: "def.h", Value: 10, Type: netstatsd.TIMER, Rate: 1.0}},
		"def.t:-10|ms":       {{Key: "def.t", Value: -10, Type: netstatsd.TIMER, Rate: 1.0}},
		"smp.rte:5|c|@0.1":   {{Key: "smp.rte", Value: 5, Type: netstatsd.COUNTER, Rate: 0.1}},
		"smp.tmr:5|ms|@0.5":  {{Key: "smp.tmr", Value: 5, Type: netstatsd.TIMER, Rate: 0.5}},
		"uniq.usr:joe|s":     {{Key: "uniq.usr", StringValue: "joe", Type: netstatsd.SET, Rate: 1.0}},
		"fooBarBaz:2|c":      {{Key: "fooBarBaz", Value: 2, Type: netstatsd.COUNTER, Rate: 1.0}},
		"smp gge:1|g":        {{Key: "smp_gge", Value: 1, Type: netstatsd.GAUGE, Rate: 1.0}},
		"smp/gge:1|g":        {{Key: "smp-gge", Value: 1, Type: netstatsd.GAUGE, Rate: 1.0}},
		"smp,gge$:1|g":       {{Key: "smpgge", Value: 1, Type: netstatsd.GAUGE, Rate: 1.0}},
		"un1qu3:john|s":      {{Key: "un1qu3", StringValue: "john", Type: netstatsd.SET, Rate: 1.0}},
		"da-sh:1|s":          {{Key: "da-sh", StringValue: "1", Type: netstatsd.SET, Rate: 1.0}},
		"under_score:1|s":    {{Key: "under_score", StringValue: "1", Type: netstatsd.SET, Rate: 1.0}},
		"ignored.field:1|c|": {{Key: "ignored.field", Value: 1, Type: netstatsd.COUNTER, Rate: 1.0}},
		"ignored.tags:1|c|#foo:bar|@0.5": {
			{Key: "ignored.tags", Value: 1, Type: netstatsd.COUNTER, Rate: 0.5},
		},
		"multi:1|c:2|ms": {
			{Key: "multi", Value: 1, Type: netstatsd.COUNTER, Rate: 1.0},
			{Key: "multi", Value: 2, Type: netstatsd.TIMER, Rate: 1.0},
		},
		"multi.rate:1|c|@0.5:2|c:x|s": {
			{Key: "multi.rate", Value: 1, Type: netstatsd.COUNTER, Rate: 0.5},
			{Key: "multi.rate", Value: 2, Type: netstatsd.COUNTER, Rate: 1.0},
			{Key: "multi.rate", StringValue: "x", Type: netstatsd.SET, Rate: 1.0},
		},
		// The core rejects these, the lexer only checks they are well formed.
		"bad.rate:1|c|@0":  {{Key: "bad.rate", Value: 1, Type: netstatsd.COUNTER, Rate: 0}},
		"inf.value:Inf|ms": {{Key: "inf.value", Value: math.Inf(1), Type: netstatsd.TIMER, Rate: 1.0}},
	}

	for input, expected := range tests {
		input, expected := input, expected
		t.Run(input, func(t *testing.T) {
			t.Parallel()
			l := &Lexer{}
			samples, err := l.Run([]byte(input))
			require.NoError(t, err)
			assert.Equal(t, expected, samples)
		})
	}
}

func TestInvalidMetricsLexer(t *testing.T) {
	t.Parallel()
	tests := map[string]error{
		"":                errMissingKeySep,
		"foo":             errMissingKeySep,
		":1|c":            errEmptyKey,
		"foo:1":           errMissingValueSep,
		"foo:|c":          errEmptyValue,
		"foo:1|":          errInvalidType,
		"foo:1|x":         errInvalidType,
		"foo:1|mx":        errInvalidType,
		"foo:1|cc":        errInvalidType,
		"foo:abc|c":       errInvalidValue,
		"foo:NaN|ms":      errNaN,
		"foo:1|c|@x":      errInvalidRate,
		"foo:1|c:abc|ms":  errInvalidValue,
		"foo:1|c:":        errMissingValueSep,
		"foo:+1|c":        nil,
		"foo:1|c|@0.5|xx": nil,
	}

	for input, expected := range tests {
		input, expected := input, expected
		t.Run(input, func(t *testing.T) {
			t.Parallel()
			l := &Lexer{}
			samples, err := l.Run([]byte(input))
			if expected == nil {
				require.NoError(t, err)
				require.NotEmpty(t, samples)
				return
			}
			require.True(t, errors.Is(err, expected), "expected %v, got %v", expected, err)
			require.Nil(t, samples)
		})
	}
}

func TestLexerReuse(t *testing.T) {
	t.Parallel()
	l := &Lexer{}
	_, err := l.Run([]byte("bad"))
	require.Error(t, err)
	samples, err := l.Run([]byte("good:1|c"))
	require.NoError(t, err)
	require.Equal(t, []*netstatsd.Sample{{Key: "good", Value: 1, Type: netstatsd.COUNTER, Rate: 1}}, samples)
}

func BenchmarkLexer(b *testing.B) {
	input := []byte("smp.rte:5|c|@0.1:3|ms")
	buf := make([]byte, len(input))
	l := &Lexer{}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		copy(buf, input)
		_, _ = l.Run(buf)
	}
}
