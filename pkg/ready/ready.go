// Package ready lets a caller learn when long running components have opened their sockets.
package ready

import (
	"context"
	"sync"
)

type keyType int

const wgKey = keyType(0)

func fromContext(ctx context.Context) (*sync.WaitGroup, bool) {
	wg, ok := ctx.Value(wgKey).(*sync.WaitGroup)
	return wg, ok
}

// WithWaitGroup attaches wg to ctx. Every component signalling on the
// returned context must be accounted for with wg.Add or Add.
func WithWaitGroup(ctx context.Context, wg *sync.WaitGroup) context.Context {
	return context.WithValue(ctx, wgKey, wg)
}

// SignalReady marks one component as ready. It does nothing when ctx carries no WaitGroup.
func SignalReady(ctx context.Context) {
	if wg, ok := fromContext(ctx); ok {
		wg.Done()
	}
}

// Add expects n more components to signal on ctx.
func Add(ctx context.Context, n int) {
	if wg, ok := fromContext(ctx); ok {
		wg.Add(n)
	}
}
