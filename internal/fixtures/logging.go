package fixtures

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type tbWriter struct {
	tb testing.TB
}

func (w tbWriter) Write(p []byte) (int, error) {
	w.tb.Log(string(p))
	return len(p), nil
}

// NewTestLogger returns a debug level logger writing to the test log, and a hook holding
// every entry for assertions.
func NewTestLogger(tb testing.TB) (*logrus.Logger, *test.Hook) {
	l := logrus.New()
	l.SetLevel(logrus.DebugLevel)
	l.SetOutput(tbWriter{tb: tb})
	return l, test.NewLocal(l)
}
