package stats

import (
	"context"
)

type contextKey int

const statserKey = contextKey(0)

var nullStatser = &NullStatser{}

// NewContext returns a copy of ctx carrying statser. Every stage started by the server
// gets one, so components report without holding a reference to the engine.
func NewContext(ctx context.Context, statser Statser) context.Context {
	return context.WithValue(ctx, statserKey, statser)
}

// FromContext returns the Statser carried by ctx, or a NullStatser.
func FromContext(ctx context.Context) Statser {
	if statser, ok := ctx.Value(statserKey).(Statser); ok {
		return statser
	}
	return nullStatser
}

// BackendStatser returns the Statser of ctx scoped to backends.<name>.
func BackendStatser(ctx context.Context, name string) Statser {
	return FromContext(ctx).WithPrefix("backends." + name)
}
