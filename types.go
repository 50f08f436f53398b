package netstatsd

import (
	"context"
)

// Runnable is a long running function intended to be launched in a goroutine.
type Runnable func(context.Context)

// Runner exposes a Runnable through an interface
type Runner interface {
	Run(context.Context)
}

// MetricsRunner is implemented by components that periodically report their own statistics.
type MetricsRunner interface {
	RunMetricsContext(context.Context)
}

func MaybeAppendRunnable(runnables []Runnable, maybeRunner interface{}) []Runnable {
	if r, ok := maybeRunner.(Runner); ok {
		runnables = append(runnables, r.Run)
	}
	if r, ok := maybeRunner.(MetricsRunner); ok {
		runnables = append(runnables, r.RunMetricsContext)
	}
	return runnables
}
