package statsd

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"
)

// KeyCount is the number of times a key was recorded during a key tracking interval.
type KeyCount struct {
	Key   string
	Count uint64
}

// KeyTracker counts how often each key is recorded, independently of the metric store, and
// periodically logs the most frequent ones.
type KeyTracker struct {
	mu     sync.Mutex
	counts map[string]uint64

	interval time.Duration
	percent  float64
	logger   *logrus.Logger
}

// NewKeyTracker creates a KeyTracker reporting the top percent of distinct keys to out.
func NewKeyTracker(interval time.Duration, percent float64, out io.Writer) *KeyTracker {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(keyLineFormatter{})
	return &KeyTracker{
		counts:   map[string]uint64{},
		interval: interval,
		percent:  percent,
		logger:   logger,
	}
}

// Observe counts one occurrence of key.
func (kt *KeyTracker) Observe(key string) {
	kt.mu.Lock()
	kt.counts[key]++
	kt.mu.Unlock()
}

// Run reports the top keys every interval until the context is done.
func (kt *KeyTracker) Run(ctx context.Context) {
	ticker := clock.FromContext(ctx).NewTicker(kt.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			kt.report()
		}
	}
}

// Top returns the most frequent keys seen since the last call, most frequent first with ties
// broken by key, and starts a new interval.
func (kt *KeyTracker) Top() []KeyCount {
	kt.mu.Lock()
	counts := kt.counts
	kt.counts = make(map[string]uint64, len(counts))
	kt.mu.Unlock()

	keys := make([]KeyCount, 0, len(counts))
	for key, count := range counts {
		keys = append(keys, KeyCount{Key: key, Count: count})
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Count != keys[j].Count {
			return keys[i].Count > keys[j].Count
		}
		return keys[i].Key < keys[j].Key
	})

	n := int(math.Round(kt.percent / 100 * float64(len(keys))))
	if n < 0 {
		n = 0
	}
	if n > len(keys) {
		n = len(keys)
	}
	return keys[:n]
}

func (kt *KeyTracker) report() {
	for _, kc := range kt.Top() {
		kt.logger.Infof("%d %s", kc.Count, kc.Key)
	}
}

type keyLineFormatter struct{}

func (keyLineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("%s %s\n", entry.Time.UTC().Format(time.RFC3339), entry.Message)), nil
}
