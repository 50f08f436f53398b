package fixtures

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/atlassian/netstatsd"
)

// MockBackend implements netstatsd.Backend with overridable functions.
type MockBackend struct {
	TB          testing.TB
	BackendName string

	FnSendSnapshot func(ctx context.Context, snap *netstatsd.Snapshot) error
}

func (m *MockBackend) Name() string {
	return m.BackendName
}

func (m *MockBackend) SendSnapshot(ctx context.Context, snap *netstatsd.Snapshot) error {
	if m.FnSendSnapshot != nil {
		return m.FnSendSnapshot(ctx, snap)
	}
	assert.Fail(m.TB, "Backend.SendSnapshot must not be called")
	return nil
}

// CapturingBackend is a netstatsd.Backend and netstatsd.RawForwarder which keeps everything
// it is given.
type CapturingBackend struct {
	BackendName string

	mu        sync.Mutex
	snapshots []*netstatsd.Snapshot
	packets   [][]byte
}

func (c *CapturingBackend) Name() string {
	if c.BackendName == "" {
		return "capturing"
	}
	return c.BackendName
}

func (c *CapturingBackend) SendSnapshot(ctx context.Context, snap *netstatsd.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots = append(c.snapshots, snap)
	return nil
}

func (c *CapturingBackend) ForwardRaw(ctx context.Context, packet []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = append(c.packets, packet)
}

// Snapshots returns the snapshots received so far.
func (c *CapturingBackend) Snapshots() []*netstatsd.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*netstatsd.Snapshot(nil), c.snapshots...)
}

// Packets returns the raw packets received so far.
func (c *CapturingBackend) Packets() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.packets...)
}
