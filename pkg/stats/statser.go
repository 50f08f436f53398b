package stats

import (
	"context"
	"time"
)

// Statser is the interface for sending metrics about the daemon itself.
type Statser interface {
	// NotifyFlush is called when a flush cycle completes. It must not block.
	NotifyFlush(ctx context.Context, d time.Duration)
	// RegisterFlush returns a channel that receives a notification after every flush,
	// and a function to unregister it.
	RegisterFlush() (<-chan time.Duration, func())

	Gauge(name string, value float64)
	Count(name string, amount float64)
	Increment(name string)
	TimingMS(name string, ms float64)
	TimingDuration(name string, d time.Duration)
	NewTimer(name string) *Timer
	WithPrefix(prefix string) Statser
}
