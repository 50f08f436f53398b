package netstatsd

import (
	"context"

	"github.com/spf13/viper"
)

// Backend represents a backend.
// If Backend implements the Runner interface, it's started in a new goroutine at creation.
type Backend interface {
	// Name returns the name of the backend.
	Name() string
	// SendSnapshot delivers one flush cycle's snapshot. It must treat the snapshot as read-only
	// and return once ctx is done.
	SendSnapshot(context.Context, *Snapshot) error
}

// RawForwarder is implemented by backends that want every received packet before parsing.
type RawForwarder interface {
	// ForwardRaw must not retain packet after returning.
	ForwardRaw(ctx context.Context, packet []byte)
}

// BackendFactory is a function that returns a Backend configured from v.
type BackendFactory func(v *viper.Viper) (Backend, error)
