package repeater

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/atlassian/netstatsd"
	internalutil "github.com/atlassian/netstatsd/internal/util"
	"github.com/atlassian/netstatsd/pkg/stats"
)

const (
	// BackendName is the name of this backend.
	BackendName = "repeater"
	// DefaultProtocol is the default network packets are repeated over.
	DefaultProtocol = "udp4"
)

// Client repeats every received packet, unparsed, to a list of other statsd instances.
// It ignores snapshots.
type Client struct {
	// Counter fields below must be read/written only using atomic instructions.
	packetsSent  uint64
	sendFailures uint64

	conns      []net.Conn
	errorLimit *rate.Limiter
}

// NewClientFromViper constructs a repeater backend.
func NewClientFromViper(v *viper.Viper) (netstatsd.Backend, error) {
	r := internalutil.GetSubViper(v, BackendName)
	r.SetDefault("protocol", DefaultProtocol)
	return NewClient(r.GetString("protocol"), r.GetStringSlice("hosts"))
}

// NewClient connects a datagram socket to every host.
func NewClient(protocol string, hosts []string) (*Client, error) {
	if protocol != "udp4" && protocol != "udp6" {
		return nil, fmt.Errorf("[%s] protocol must be udp4 or udp6, got %q", BackendName, protocol)
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("[%s] at least one host is required", BackendName)
	}
	conns := make([]net.Conn, 0, len(hosts))
	for _, host := range hosts {
		conn, err := net.Dial(protocol, host)
		if err != nil {
			for _, c := range conns {
				_ = c.Close()
			}
			return nil, fmt.Errorf("[%s] %s: %w", BackendName, host, err)
		}
		conns = append(conns, conn)
	}
	logrus.WithFields(logrus.Fields{
		"protocol": protocol,
		"hosts":    hosts,
	}).Info("created backend")
	return &Client{
		conns:      conns,
		errorLimit: rate.NewLimiter(rate.Limit(1), 1),
	}, nil
}

// ForwardRaw writes the packet to every host. Failures are counted and never block reception.
func (client *Client) ForwardRaw(ctx context.Context, packet []byte) {
	for _, conn := range client.conns {
		if _, err := conn.Write(packet); err != nil {
			atomic.AddUint64(&client.sendFailures, 1)
			if client.errorLimit.Allow() {
				logrus.WithError(err).WithField("host", conn.RemoteAddr()).Warn("Failed to repeat packet")
			}
			continue
		}
		atomic.AddUint64(&client.packetsSent, 1)
	}
}

// RunMetricsContext emits the repeater counters after every flush and closes the sockets
// once the context is done.
func (client *Client) RunMetricsContext(ctx context.Context) {
	statser := stats.BackendStatser(ctx, BackendName)
	flushed, unregister := statser.RegisterFlush()
	defer unregister()
	defer client.close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushed:
			statser.Count("packets_sent", float64(atomic.SwapUint64(&client.packetsSent, 0)))
			statser.Count("send_failures", float64(atomic.SwapUint64(&client.sendFailures, 0)))
		}
	}
}

func (client *Client) close() {
	for _, conn := range client.conns {
		if err := conn.Close(); err != nil {
			logrus.WithError(err).Warn("Error closing repeater socket")
		}
	}
}

// SendSnapshot discards the snapshot.
func (client *Client) SendSnapshot(ctx context.Context, snap *netstatsd.Snapshot) error {
	return nil
}

// Name returns the name of the backend.
func (client *Client) Name() string {
	return BackendName
}
