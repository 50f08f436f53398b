package stats

import (
	"sync"

	"github.com/atlassian/netstatsd"
)

type capturingRecorder struct {
	mu      sync.Mutex
	samples []*netstatsd.Sample
	err     error
}

func (cr *capturingRecorder) Record(s *netstatsd.Sample) error {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	if cr.err != nil {
		return cr.err
	}
	cr.samples = append(cr.samples, s)
	return nil
}

func (cr *capturingRecorder) Samples() []*netstatsd.Sample {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return append([]*netstatsd.Sample(nil), cr.samples...)
}
