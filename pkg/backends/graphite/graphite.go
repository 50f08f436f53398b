package graphite

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/tilinna/clock"

	"github.com/atlassian/netstatsd"
	internalutil "github.com/atlassian/netstatsd/internal/util"
	"github.com/atlassian/netstatsd/pkg/pool"
	"github.com/atlassian/netstatsd/pkg/util"
)

const (
	// BackendName is the name of this backend.
	BackendName = "graphite"
	// DefaultAddress is the default address of Graphite server.
	DefaultAddress = "localhost:2003"
	// DefaultDialTimeout is the default net.Dial timeout.
	DefaultDialTimeout = 5 * time.Second
	// DefaultWriteTimeout is the default socket write timeout.
	DefaultWriteTimeout = 30 * time.Second
	// DefaultLegacyNamespace is whether to use the legacy stats/stats_counts layout by default.
	DefaultLegacyNamespace = true
	// DefaultGlobalPrefix is the default global prefix.
	DefaultGlobalPrefix = "stats"
	// DefaultPrefixCounter is the default counters prefix.
	DefaultPrefixCounter = "counters"
	// DefaultPrefixTimer is the default timers prefix.
	DefaultPrefixTimer = "timers"
	// DefaultPrefixGauge is the default gauges prefix.
	DefaultPrefixGauge = "gauges"
	// DefaultPrefixSet is the default sets prefix.
	DefaultPrefixSet = "sets"
	// DefaultGlobalSuffix is the default global suffix.
	DefaultGlobalSuffix = ""
)

var (
	regWhitespace  = regexp.MustCompile(`\s+`)
	regNonAlphaNum = regexp.MustCompile(`[^a-zA-Z\d_.-]`)
)

// Config holds the settings of a Client.
type Config struct {
	Address         string
	DialTimeout     time.Duration
	WriteTimeout    time.Duration
	LegacyNamespace bool
	GlobalPrefix    string
	PrefixCounter   string
	PrefixTimer     string
	PrefixGauge     string
	PrefixSet       string
	GlobalSuffix    string
	PrefixStats     string // Prefix of the numStats and calculationtime lines
	Retry           util.RetryPolicy
}

// Client sends snapshots to a Graphite server's plaintext TCP interface.
type Client struct {
	address          string
	dialTimeout      time.Duration
	writeTimeout     time.Duration
	backoff          util.BackoffFactory
	legacyNamespace  bool
	counterNamespace string // all namespaces have . stripped off start and end, and are normalized.
	countsNamespace  string // legacy only
	timerNamespace   string
	gaugesNamespace  string
	setsNamespace    string
	statsNamespace   string
	globalSuffix     string
	buffers          *pool.BytesBuffer
}

// SendSnapshot renders the snapshot in the plaintext protocol and writes it over a new connection,
// retrying according to the retry policy.
func (client *Client) SendSnapshot(ctx context.Context, snap *netstatsd.Snapshot) error {
	payload := client.preparePayload(snap, clock.FromContext(ctx))
	defer client.buffers.Put(payload)
	fields := logrus.Fields{
		"backend": BackendName,
		"address": client.address,
	}
	err := util.Retry(ctx, client.backoff, fields, func() error {
		return client.write(ctx, payload.Bytes())
	})
	if err != nil {
		return fmt.Errorf("[%s] %w", BackendName, err)
	}
	return nil
}

func (client *Client) write(ctx context.Context, payload []byte) error {
	d := net.Dialer{Timeout: client.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", client.address)
	if err != nil {
		return err
	}
	defer conn.Close()
	if client.writeTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(client.writeTimeout)); err != nil {
			return err
		}
	}
	_, err = conn.Write(payload)
	return err
}

// normalizeMetricName will:
// - Replace:
// -- whitespace with "_"
// -- "/" with "-"
// - Delete:
// -- any character that is non alphanumeric, "_", ".", or "-"
func normalizeMetricName(s string) string {
	r1 := regWhitespace.ReplaceAllLiteral([]byte(s), []byte{'_'})
	r2 := bytes.Replace(r1, []byte{'/'}, []byte{'-'}, -1)
	return string(regNonAlphaNum.ReplaceAllLiteral(r2, nil))
}

// prepareName joins namespace, key and suffix, adding the global suffix in the new namespace.
func (client *Client) prepareName(namespace, key, suffix string) string {
	name := combine(namespace, normalizeMetricName(key), suffix)
	if !client.legacyNamespace && client.globalSuffix != "" {
		name += "." + client.globalSuffix
	}
	return name
}

func writeLine(buf *bytes.Buffer, name string, value float64, ts int64) {
	buf.WriteString(name)
	buf.WriteByte(' ')
	buf.WriteString(strconv.FormatFloat(value, 'f', -1, 64))
	buf.WriteByte(' ')
	buf.WriteString(strconv.FormatInt(ts, 10))
	buf.WriteByte('\n')
}

func (client *Client) preparePayload(snap *netstatsd.Snapshot, clck clock.Clock) *bytes.Buffer {
	started := clck.Now()
	buf := client.buffers.Get()
	now := snap.Timestamp.Unix()

	for _, key := range snap.Counters.Keys() {
		counter := snap.Counters[key]
		if client.legacyNamespace {
			writeLine(buf, client.prepareName(client.counterNamespace, key, ""), counter.PerSecond, now)
			writeLine(buf, client.prepareName(client.countsNamespace, key, ""), counter.Value, now)
		} else {
			writeLine(buf, client.prepareName(client.counterNamespace, key, "rate"), counter.PerSecond, now)
			writeLine(buf, client.prepareName(client.counterNamespace, key, "count"), counter.Value, now)
		}
	}
	for _, key := range snap.Timers.Keys() {
		timer := snap.Timers[key]
		line := func(stat string, value float64) {
			writeLine(buf, client.prepareName(client.timerNamespace, key, stat), value, now)
		}
		if timer.Count > 0 {
			timer.Percentiles.Each(line)
			line("std", timer.StdDev)
			line("upper", timer.Max)
			line("lower", timer.Min)
		}
		line("count", timer.SampledCount)
		line("count_ps", timer.PerSecond)
		if timer.Count > 0 {
			line("sum", timer.Sum)
			line("sum_squares", timer.SumSquares)
			line("mean", timer.Mean)
			line("median", timer.Median)
		}
	}
	for _, key := range snap.Gauges.Keys() {
		writeLine(buf, client.prepareName(client.gaugesNamespace, key, ""), snap.Gauges[key].Value, now)
	}
	for _, key := range snap.Sets.Keys() {
		writeLine(buf, client.prepareName(client.setsNamespace, key, "count"), float64(snap.Sets[key].Count()), now)
	}

	numStats := snap.NumStats()
	if client.legacyNamespace {
		writeLine(buf, combine(client.statsNamespace, "numStats"), float64(numStats), now)
		writeLine(buf, combine(DefaultGlobalPrefix, client.statsNamespace, "graphiteStats", "calculationtime"),
			float64(clck.Now().Sub(started).Milliseconds()), now)
	} else {
		writeLine(buf, client.prepareName(client.statsNamespace, "numStats", ""), float64(numStats), now)
		writeLine(buf, client.prepareName(client.statsNamespace, "graphiteStats", "calculationtime"),
			float64(clck.Now().Sub(started).Milliseconds()), now)
	}
	return buf
}

// Name returns the name of the backend.
func (client *Client) Name() string {
	return BackendName
}

// NewClientFromViper constructs a Client object using configuration provided by Viper
func NewClientFromViper(v *viper.Viper) (netstatsd.Backend, error) {
	g := internalutil.GetSubViper(v, BackendName)
	g.SetDefault("address", DefaultAddress)
	g.SetDefault("dial-timeout", DefaultDialTimeout)
	g.SetDefault("write-timeout", DefaultWriteTimeout)
	g.SetDefault("legacy-namespace", DefaultLegacyNamespace)
	g.SetDefault("global-prefix", DefaultGlobalPrefix)
	g.SetDefault("prefix-counter", DefaultPrefixCounter)
	g.SetDefault("prefix-timer", DefaultPrefixTimer)
	g.SetDefault("prefix-gauge", DefaultPrefixGauge)
	g.SetDefault("prefix-set", DefaultPrefixSet)
	g.SetDefault("global-suffix", DefaultGlobalSuffix)
	v.SetDefault(netstatsd.ParamPrefixStats, netstatsd.DefaultPrefixStats)

	retry, err := util.RetryPolicyFromViper(g)
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", BackendName, err)
	}
	return NewClient(Config{
		Address:         g.GetString("address"),
		DialTimeout:     g.GetDuration("dial-timeout"),
		WriteTimeout:    g.GetDuration("write-timeout"),
		LegacyNamespace: g.GetBool("legacy-namespace"),
		GlobalPrefix:    g.GetString("global-prefix"),
		PrefixCounter:   g.GetString("prefix-counter"),
		PrefixTimer:     g.GetString("prefix-timer"),
		PrefixGauge:     g.GetString("prefix-gauge"),
		PrefixSet:       g.GetString("prefix-set"),
		GlobalSuffix:    g.GetString("global-suffix"),
		PrefixStats:     v.GetString(netstatsd.ParamPrefixStats),
		Retry:           retry,
	})
}

// NewClient constructs a Graphite backend object.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("[%s] address is required", BackendName)
	}
	if cfg.DialTimeout <= 0 {
		return nil, fmt.Errorf("[%s] dial-timeout should be positive", BackendName)
	}
	if cfg.WriteTimeout < 0 {
		return nil, fmt.Errorf("[%s] write-timeout should be non-negative", BackendName)
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("[%s] %w", BackendName, err)
	}

	client := &Client{
		address:         cfg.Address,
		dialTimeout:     cfg.DialTimeout,
		writeTimeout:    cfg.WriteTimeout,
		backoff:         cfg.Retry.Factory(),
		legacyNamespace: cfg.LegacyNamespace,
		globalSuffix:    normalizeMetricName(strings.Trim(cfg.GlobalSuffix, ".")),
		buffers:         pool.NewBytesBuffer(),
	}
	if cfg.LegacyNamespace {
		client.counterNamespace = DefaultGlobalPrefix
		client.countsNamespace = "stats_counts"
		client.timerNamespace = combine(DefaultGlobalPrefix, "timers")
		client.gaugesNamespace = combine(DefaultGlobalPrefix, "gauges")
		client.setsNamespace = combine(DefaultGlobalPrefix, "sets")
		client.statsNamespace = normalizeMetricName(cfg.PrefixStats)
	} else {
		client.counterNamespace = normalizeMetricName(combine(cfg.GlobalPrefix, cfg.PrefixCounter))
		client.timerNamespace = normalizeMetricName(combine(cfg.GlobalPrefix, cfg.PrefixTimer))
		client.gaugesNamespace = normalizeMetricName(combine(cfg.GlobalPrefix, cfg.PrefixGauge))
		client.setsNamespace = normalizeMetricName(combine(cfg.GlobalPrefix, cfg.PrefixSet))
		client.statsNamespace = normalizeMetricName(combine(cfg.GlobalPrefix, cfg.PrefixStats))
	}

	logrus.WithFields(logrus.Fields{
		"address":           cfg.Address,
		"dial-timeout":      cfg.DialTimeout,
		"write-timeout":     cfg.WriteTimeout,
		"legacy-namespace":  cfg.LegacyNamespace,
		"counter-namespace": client.counterNamespace,
		"timer-namespace":   client.timerNamespace,
		"gauges-namespace":  client.gaugesNamespace,
		"sets-namespace":    client.setsNamespace,
		"global-suffix":     client.globalSuffix,
		"retry-policy":      cfg.Retry.Policy,
	}).Info("created backend")

	return client, nil
}

// combine joins the non empty parts with ".", trimming dots off each part.
func combine(parts ...string) string {
	trimmed := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, ".")
		if p != "" {
			trimmed = append(trimmed, p)
		}
	}
	return strings.Join(trimmed, ".")
}
