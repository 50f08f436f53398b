package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/atlassian/netstatsd"
	internalutil "github.com/atlassian/netstatsd/internal/util"
	"github.com/atlassian/netstatsd/pkg/backends/internal/payload"
	"github.com/atlassian/netstatsd/pkg/util"
)

const (
	// BackendName is the name of this backend.
	BackendName = "file"
	// DefaultName is the default file snapshots are appended to.
	DefaultName = "netstatsd.json"
)

// Client appends one JSON document per snapshot, one per line, to a file.
type Client struct {
	name       string
	withValues bool
	out        io.WriteCloser
}

// NewClientFromViper constructs a file backend.
func NewClientFromViper(v *viper.Viper) (netstatsd.Backend, error) {
	f := internalutil.GetSubViper(v, BackendName)
	f.SetDefault("name", DefaultName)
	f.SetDefault("timer-data", false)
	return NewClient(f.GetString("name"), f.GetBool("timer-data"))
}

// NewClient opens name for appending, creating it if needed.
func NewClient(name string, withValues bool) (*Client, error) {
	if name == "" {
		return nil, errors.New("[file] name is required")
	}
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", BackendName, err)
	}
	logrus.WithFields(logrus.Fields{
		"name":       name,
		"timer-data": withValues,
	}).Info("created backend")
	return &Client{
		name:       name,
		withValues: withValues,
		out:        util.NewSyncWriter(f),
	}, nil
}

// Run closes the file once the context is done.
func (client *Client) Run(ctx context.Context) {
	<-ctx.Done()
	if err := client.out.Close(); err != nil {
		logrus.WithError(err).WithField("name", client.name).Warn("Error closing file")
	}
}

// SendSnapshot appends the snapshot as a single line.
func (client *Client) SendSnapshot(ctx context.Context, snap *netstatsd.Snapshot) error {
	b, err := payload.New(snap, client.withValues).Marshal(false)
	if err != nil {
		return fmt.Errorf("[%s] %w", BackendName, err)
	}
	b = append(b, '\n')
	if _, err := client.out.Write(b); err != nil {
		return fmt.Errorf("[%s] %w", BackendName, err)
	}
	return nil
}

// Name returns the name of the backend.
func (client *Client) Name() string {
	return BackendName
}
