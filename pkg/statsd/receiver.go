package statsd

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	reuseport "github.com/libp2p/go-reuseport"
	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"
	"golang.org/x/time/rate"

	"github.com/atlassian/netstatsd"
	"github.com/atlassian/netstatsd/internal/lexer"
	"github.com/atlassian/netstatsd/pkg/ready"
	"github.com/atlassian/netstatsd/pkg/stats"
)

// ip packet size is stored in two bytes and that is how big in theory the packet can be.
// In practice it is highly unlikely but still possible to get packets bigger than usual MTU of 1500.
const packetSizeUDP = 0xffff

// SocketFactory is an indirection layer over net.ListenPacket() to allow for different implementations.
type SocketFactory func() (net.PacketConn, error)

// NewSocketFactory returns a SocketFactory listening on addr with SO_REUSEPORT, so that
// restarts do not drop the port, and with the requested receive buffer size.
func NewSocketFactory(addr string, receiveBufferSize int) SocketFactory {
	return func() (net.PacketConn, error) {
		conn, err := reuseport.ListenPacket("udp", addr)
		if err != nil {
			return nil, fmt.Errorf("error listening on %s: %w", addr, err)
		}
		if udp, ok := conn.(*net.UDPConn); ok && receiveBufferSize > 0 {
			if err := udp.SetReadBuffer(receiveBufferSize); err != nil {
				logrus.WithError(err).Warn("Failed to set receive buffer size")
			}
		}
		return conn, nil
	}
}

// MetricReceiver reads datagrams, splits them into lines and records every parsed sample
// into the Engine. Raw packets are also handed to every RawForwarder backend.
type MetricReceiver struct {
	// Counter fields below must be read/written only using atomic instructions.
	// 64-bit fields must be the first fields in the struct to guarantee proper memory alignment.
	// See https://golang.org/pkg/sync/atomic/#pkg-note-BUG
	packetsReceived uint64
	samplesReceived uint64
	badLines        uint64

	engine       *Engine
	forwarders   []netstatsd.RawForwarder
	dumpMessages bool
	badLineLimit *rate.Limiter
	lexers       sync.Pool
}

// NewMetricReceiver initialises a new MetricReceiver. Backends implementing RawForwarder
// receive a copy of every packet. badLinesPerMinute bounds how many bad lines are logged.
func NewMetricReceiver(engine *Engine, backends []netstatsd.Backend, dumpMessages bool, badLinesPerMinute uint) *MetricReceiver {
	var forwarders []netstatsd.RawForwarder
	for _, b := range backends {
		if f, ok := b.(netstatsd.RawForwarder); ok {
			forwarders = append(forwarders, f)
		}
	}
	return &MetricReceiver{
		engine:       engine,
		forwarders:   forwarders,
		dumpMessages: dumpMessages,
		badLineLimit: rate.NewLimiter(rate.Limit(float64(badLinesPerMinute)/60), int(badLinesPerMinute)),
		lexers: sync.Pool{
			New: func() interface{} {
				return &lexer.Lexer{}
			},
		},
	}
}

// RunMetricsContext emits the receiver counters after every flush until the context is done.
func (mr *MetricReceiver) RunMetricsContext(ctx context.Context) {
	statser := stats.FromContext(ctx)
	flushed, unregister := statser.RegisterFlush()
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushed:
			statser.Count("packets_received", float64(atomic.SwapUint64(&mr.packetsReceived, 0)))
			statser.Count("metrics_received", float64(atomic.SwapUint64(&mr.samplesReceived, 0)))
			statser.Count("bad_lines_seen", float64(atomic.SwapUint64(&mr.badLines, 0)))
		}
	}
}

// Receive accepts incoming datagrams on c until it is closed or the context is done.
func (mr *MetricReceiver) Receive(ctx context.Context, c net.PacketConn) error {
	clck := clock.FromContext(ctx)
	buf := make([]byte, packetSizeUDP)
	for {
		// This will error out when the socket is closed.
		nbytes, addr, err := c.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if netErr, ok := err.(net.Error); ok && netErr.Temporary() {
				logrus.WithError(err).Warn("Error reading from socket")
				continue
			}
			return fmt.Errorf("error reading from socket: %w", err)
		}
		atomic.AddUint64(&mr.packetsReceived, 1)
		mr.engine.Stats().MessageSeen(clck.Now())
		mr.forward(ctx, buf[:nbytes])
		mr.handlePacket(addr, buf[:nbytes])
	}
}

func (mr *MetricReceiver) forward(ctx context.Context, msg []byte) {
	if len(mr.forwarders) == 0 {
		return
	}
	packet := make([]byte, len(msg))
	copy(packet, msg)
	for _, f := range mr.forwarders {
		f.ForwardRaw(ctx, packet)
	}
}

// handlePacket handles the contents of a datagram and records every sample of every line
// that parses. The packet may be modified in place.
func (mr *MetricReceiver) handlePacket(addr net.Addr, msg []byte) {
	if mr.dumpMessages {
		logrus.WithField("from", addr).Infof("Received packet %q", msg)
	}
	l := mr.lexers.Get().(*lexer.Lexer)
	defer mr.lexers.Put(l)

	var numSamples uint64
	for {
		idx := bytes.IndexByte(msg, '\n')
		var line []byte
		// protocol does not require line to end in \n
		if idx == -1 { // \n not found
			if len(msg) == 0 {
				break
			}
			line = msg
			msg = nil
		} else { // usual case
			line = msg[:idx]
			msg = msg[idx+1:]
		}
		if len(line) == 0 {
			continue
		}
		raw := string(line)
		samples, err := l.Run(line)
		if err != nil {
			mr.badLine(addr, raw, err)
			continue
		}
		for _, s := range samples {
			if err := mr.engine.Record(s); err != nil {
				mr.badLine(addr, raw, err)
				continue
			}
			numSamples++
		}
	}
	atomic.AddUint64(&mr.samplesReceived, numSamples)
}

func (mr *MetricReceiver) badLine(addr net.Addr, line string, err error) {
	atomic.AddUint64(&mr.badLines, 1)
	mr.engine.Stats().BadLine()
	// logging as debug to avoid spamming logs when a bad actor sends badly formatted messages
	if mr.badLineLimit.Allow() {
		logrus.WithError(err).WithField("from", addr).Debugf("Bad line %q", line)
	}
}

// Run opens a socket with sf and reads it with readers goroutines until the context is done.
func (mr *MetricReceiver) Run(ctx context.Context, sf SocketFactory, readers int) error {
	c, err := sf()
	if err != nil {
		return err
	}
	ready.SignalReady(ctx)

	var wg sync.WaitGroup
	errs := make(chan error, readers)
	wg.Add(readers)
	for r := 0; r < readers; r++ {
		go func() {
			defer wg.Done()
			if err := mr.Receive(ctx, c); err != nil {
				errs <- err
			}
		}()
	}

	var result error
	select {
	case <-ctx.Done():
	case result = <-errs:
	}
	// This makes receivers error out and stop
	if e := c.Close(); e != nil {
		logrus.WithError(e).Warn("Error closing socket")
	}
	wg.Wait()
	return result
}
