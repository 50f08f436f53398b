package backends

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/atlassian/netstatsd"
	"github.com/atlassian/netstatsd/pkg/backends/cloudwatch"
	"github.com/atlassian/netstatsd/pkg/backends/console"
	"github.com/atlassian/netstatsd/pkg/backends/file"
	"github.com/atlassian/netstatsd/pkg/backends/graphite"
	"github.com/atlassian/netstatsd/pkg/backends/null"
	"github.com/atlassian/netstatsd/pkg/backends/redis"
	"github.com/atlassian/netstatsd/pkg/backends/repeater"
)

// All known backends.
var backends = map[string]netstatsd.BackendFactory{
	cloudwatch.BackendName: cloudwatch.NewClientFromViper,
	console.BackendName:    console.NewClientFromViper,
	file.BackendName:       file.NewClientFromViper,
	graphite.BackendName:   graphite.NewClientFromViper,
	null.BackendName:       null.NewClientFromViper,
	redis.BackendName:      redis.NewClientFromViper,
	repeater.BackendName:   repeater.NewClientFromViper,
}

// GetBackend creates an instance of the named backend, or nil if
// the name is not known. The error return is only used if the named backend
// was known but failed to initialize.
func GetBackend(name string, v *viper.Viper) (netstatsd.Backend, error) {
	f, found := backends[name]
	if !found {
		return nil, nil
	}
	return f(v)
}

// InitBackend creates an instance of the named backend.
func InitBackend(name string, v *viper.Viper) (netstatsd.Backend, error) {
	backend, err := GetBackend(name, v)
	if err != nil {
		return nil, fmt.Errorf("could not init backend %q: %w", name, err)
	}
	if backend == nil {
		return nil, fmt.Errorf("unknown backend %q", name)
	}
	log.Infof("Initialised backend %q", name)

	return backend, nil
}

// InitBackends creates every named backend, skipping empty names and duplicates.
func InitBackends(names []string, v *viper.Viper) ([]netstatsd.Backend, error) {
	seen := make(map[string]struct{}, len(names))
	result := make([]netstatsd.Backend, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		backend, err := InitBackend(name, v)
		if err != nil {
			return nil, err
		}
		result = append(result, backend)
	}
	if len(result) == 0 {
		log.Info("No backend specified")
	}
	return result, nil
}
