// Package fakesocket provides net.PacketConn implementations for tests and load generation.
package fakesocket

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"
)

// FakeAddr is a fake net.Addr
var FakeAddr = &net.UDPAddr{
	IP:   net.IPv4(127, 0, 0, 1),
	Port: 8181,
}

// ErrClosedConnection is returned by a closed fake connection.
var ErrClosedConnection = errors.New("connection is closed")

type closer struct {
	once   sync.Once
	closed chan struct{}
}

func newCloser() closer {
	return closer{closed: make(chan struct{})}
}

func (c *closer) Close() error {
	c.once.Do(func() {
		close(c.closed)
	})
	return nil
}

func (c *closer) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// LocalAddr dummy impl.
func (c *closer) LocalAddr() net.Addr { return FakeAddr }

// SetDeadline dummy impl.
func (c *closer) SetDeadline(t time.Time) error { return nil }

// SetReadDeadline dummy impl.
func (c *closer) SetReadDeadline(t time.Time) error { return nil }

// SetWriteDeadline dummy impl.
func (c *closer) SetWriteDeadline(t time.Time) error { return nil }

// WriteTo dummy impl.
func (c *closer) WriteTo(b []byte, addr net.Addr) (int, error) {
	if c.isClosed() {
		return 0, ErrClosedConnection
	}
	return len(b), nil
}

// ScriptedPacketConn returns the given packets in order from ReadFrom, then blocks until it
// is closed.
type ScriptedPacketConn struct {
	closer
	packets chan []byte
}

// NewScriptedPacketConn creates a ScriptedPacketConn serving packets.
func NewScriptedPacketConn(packets ...string) *ScriptedPacketConn {
	ch := make(chan []byte, len(packets))
	for _, p := range packets {
		ch <- []byte(p)
	}
	return &ScriptedPacketConn{
		closer:  newCloser(),
		packets: ch,
	}
}

// Pending returns how many packets have not been read yet.
func (s *ScriptedPacketConn) Pending() int {
	return len(s.packets)
}

// ReadFrom copies the next packet into b.
func (s *ScriptedPacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	select {
	case <-s.closed:
		return 0, nil, ErrClosedConnection
	case p := <-s.packets:
		return copy(b, p), FakeAddr, nil
	}
}

// RandomPacketConn is a net.PacketConn providing an endless stream of random metrics.
type RandomPacketConn struct {
	closer
	keys int32
}

// NewRandomPacketConn creates a RandomPacketConn drawing keys from a pool of size keys.
func NewRandomPacketConn(keys int32) *RandomPacketConn {
	return &RandomPacketConn{
		closer: newCloser(),
		keys:   keys,
	}
}

// ReadFrom generates a random packet into b.
func (r *RandomPacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	if r.isClosed() {
		return 0, nil, ErrClosedConnection
	}
	buf := new(bytes.Buffer)
	WriteRandomPacket(buf, r.keys)
	return copy(b, buf.Bytes()), FakeAddr, nil
}

// WriteRandomPacket writes a packet of random samples of one random key to buf.
func WriteRandomPacket(buf *bytes.Buffer, keys int32) {
	num := rand.Int31n(keys) // #nosec
	switch rand.Int31n(4) {  // #nosec
	case 0:
		fmt.Fprintf(buf, "netstatsd.tester.counter_%d:%f|c\n", num, rand.Float64()*100) // #nosec
	case 1:
		fmt.Fprintf(buf, "netstatsd.tester.gauge_%d:%f|g\n", num, rand.Float64()*100) // #nosec
	case 2:
		for i := 0; i < 10; i++ {
			fmt.Fprintf(buf, "netstatsd.tester.timer_%d:%f|ms\n", num, rand.Float64()*100) // #nosec
		}
	case 3:
		for i := 0; i < 10; i++ {
			fmt.Fprintf(buf, "netstatsd.tester.set_%d:%d|s\n", num, rand.Int31n(9)+1) // #nosec
		}
	}
}
