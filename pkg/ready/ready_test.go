package ready

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalReadyWithoutWaitGroup(t *testing.T) {
	t.Parallel()
	assert.NotPanics(t, func() {
		Add(context.Background(), 1)
		SignalReady(context.Background())
	})
}

func TestSignalReady(t *testing.T) {
	t.Parallel()
	var wg sync.WaitGroup
	ctx := WithWaitGroup(context.Background(), &wg)
	Add(ctx, 2)
	go SignalReady(ctx)
	go SignalReady(ctx)
	wg.Wait()
}
