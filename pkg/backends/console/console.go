package console

import (
	"context"
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

// BackendName is the name of this backend.
const BackendName = "console"

// Client prints every snapshot as JSON.
type Client struct {
	out         io.Writer
	prettyPrint bool
}

// NewClientFromViper constructs a console backend writing to stdout.
func NewClientFromViper(v *viper.Viper) (netstatsd.Backend, error) {
	c := internalutil.GetSubViper(v, BackendName)
	c.SetDefault("prettyprint", true)
	return NewClient(os.Stdout, c.GetBool("prettyprint")), nil
}

// NewClient constructs a console backend writing to out.
func NewClient(out io.Writer, prettyPrint bool) *Client {
	logrus.WithField("prettyprint", prettyPrint).Info("created backend")
	return &Client{
		out:         util.NewSyncWriter(out),
		prettyPrint: prettyPrint,
	}
}

// SendSnapshot writes the snapshot followed by a newline.
func (client *Client) SendSnapshot(ctx context.Context, snap *netstatsd.Snapshot) error {
	b, err := payload.New(snap, false).Marshal(client.prettyPrint)
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
