package null

import (
	"context"

	"github.com/spf13/viper"

	"github.com/atlassian/netstatsd"
)

// BackendName is the name of this backend.
const BackendName = "null"

// Client represents a discarding backend.
type Client struct{}

// NewClientFromViper constructs a null backend.
func NewClientFromViper(v *viper.Viper) (netstatsd.Backend, error) {
	return NewClient(), nil
}

// NewClient constructs a client object.
func NewClient() Client {
	return Client{}
}

// SendSnapshot discards the snapshot.
func (Client) SendSnapshot(ctx context.Context, snap *netstatsd.Snapshot) error {
	return nil
}

// Name returns the name of the backend.
func (Client) Name() string {
	return BackendName
}
