package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/atlassian/netstatsd"
	internalutil "github.com/atlassian/netstatsd/internal/util"
	"github.com/atlassian/netstatsd/pkg/backends/internal/payload"
	"github.com/atlassian/netstatsd/pkg/util"
)

const (
	// BackendName is the name of this backend.
	BackendName = "redis"
	// DefaultAddress is the default address of the Redis server.
	DefaultAddress = "127.0.0.1:6379"
	// DefaultKey is the default list snapshots are pushed onto.
	DefaultKey = "statsd:history"
	// DefaultHistoryDepth is the default number of snapshots kept in the list.
	DefaultHistoryDepth = 9600
	// DefaultDialTimeout is the default connection timeout.
	DefaultDialTimeout = 5 * time.Second
)

// Client pushes every snapshot, as JSON, onto the head of a capped Redis list.
type Client struct {
	redis   *redis.Client
	key     string
	depth   int64
	backoff util.BackoffFactory
}

// NewClientFromViper constructs a Redis backend.
func NewClientFromViper(v *viper.Viper) (netstatsd.Backend, error) {
	r := internalutil.GetSubViper(v, BackendName)
	r.SetDefault("address", DefaultAddress)
	r.SetDefault("password", "")
	r.SetDefault("db", 0)
	r.SetDefault("key", DefaultKey)
	r.SetDefault("history-depth", DefaultHistoryDepth)
	r.SetDefault("dial-timeout", DefaultDialTimeout)

	retry, err := util.RetryPolicyFromViper(r)
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", BackendName, err)
	}
	return NewClient(&redis.Options{
		Addr:        r.GetString("address"),
		Password:    r.GetString("password"),
		DB:          r.GetInt("db"),
		DialTimeout: r.GetDuration("dial-timeout"),
	}, r.GetString("key"), r.GetInt64("history-depth"), retry)
}

// NewClient constructs a Redis backend.
func NewClient(opts *redis.Options, key string, depth int64, retry util.RetryPolicy) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("[%s] key is required", BackendName)
	}
	if depth <= 0 {
		return nil, fmt.Errorf("[%s] history-depth must be positive", BackendName)
	}
	if err := retry.Validate(); err != nil {
		return nil, fmt.Errorf("[%s] %w", BackendName, err)
	}
	logrus.WithFields(logrus.Fields{
		"address":       opts.Addr,
		"db":            opts.DB,
		"key":           key,
		"history-depth": depth,
	}).Info("created backend")
	return &Client{
		redis:   redis.NewClient(opts),
		key:     key,
		depth:   depth,
		backoff: retry.Factory(),
	}, nil
}

// Run checks that the server is reachable, retrying with backoff, then closes the client
// once the context is done. An unreachable server is logged, flushes will keep trying.
func (client *Client) Run(ctx context.Context) {
	fields := logrus.Fields{
		"backend": BackendName,
		"address": client.redis.Options().Addr,
	}
	err := util.Retry(ctx, client.backoff, fields, func() error {
		return client.redis.WithContext(ctx).Ping().Err()
	})
	if err != nil && ctx.Err() == nil {
		logrus.WithError(err).WithFields(fields).Error("Redis is unreachable")
	}
	<-ctx.Done()
	if err := client.redis.Close(); err != nil {
		logrus.WithError(err).WithFields(fields).Warn("Error closing redis client")
	}
}

// SendSnapshot pushes the snapshot and trims the list to the history depth in one transaction.
func (client *Client) SendSnapshot(ctx context.Context, snap *netstatsd.Snapshot) error {
	b, err := payload.New(snap, false).Marshal(false)
	if err != nil {
		return fmt.Errorf("[%s] %w", BackendName, err)
	}
	_, err = client.redis.WithContext(ctx).TxPipelined(func(pipe redis.Pipeliner) error {
		pipe.LPush(client.key, b)
		pipe.LTrim(client.key, 0, client.depth-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("[%s] %w", BackendName, err)
	}
	return nil
}

// Name returns the name of the backend.
func (client *Client) Name() string {
	return BackendName
}
