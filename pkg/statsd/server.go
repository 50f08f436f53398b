package statsd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ash2k/stager"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"

	"github.com/atlassian/netstatsd"
	"github.com/atlassian/netstatsd/pkg/stats"
)

// Server encapsulates all of the parameters necessary for starting up
// the statsd server. These can either be set via command line or directly.
type Server struct {
	Runnables         []netstatsd.Runnable
	Backends          []netstatsd.Backend
	FlushInterval     time.Duration
	FlushOffset       time.Duration
	FlushAligned      bool
	FlushTimeout      time.Duration
	PercentThreshold  []float64
	IdlePolicy        netstatsd.IdlePolicy
	KeyFlushInterval  time.Duration
	KeyFlushPercent   float64
	KeyFlushOutput    io.Writer // stdout if nil
	PrefixStats       string
	MetricsAddr       string
	MgmtAddr          string
	ConsoleTimeout    time.Duration
	ConsoleIdle       time.Duration
	MaxReaders        int
	ReceiveBufferSize int
	DumpMessages      bool
	DebugInterval     time.Duration
	BadLinesPerMinute uint
	StatserType       string
	Registerer        prometheus.Registerer // prometheus.DefaultRegisterer if nil

	setupOnce  sync.Once
	engine     *Engine
	tracker    *KeyTracker
	scheduler  *FlushScheduler
	receiver   *MetricReceiver
	management *Management
}

func (s *Server) setup() {
	s.setupOnce.Do(func() {
		if s.KeyFlushInterval > 0 {
			out := s.KeyFlushOutput
			if out == nil {
				out = os.Stdout
			}
			s.tracker = NewKeyTracker(s.KeyFlushInterval, s.KeyFlushPercent, out)
		}
		s.engine = NewEngine(s.FlushInterval, s.PercentThreshold, s.IdlePolicy, s.tracker)
		s.scheduler = NewFlushScheduler(s.FlushInterval, s.FlushOffset, s.FlushAligned, s.FlushTimeout, s.engine, s.Backends)
		s.receiver = NewMetricReceiver(s.engine, s.Backends, s.DumpMessages, s.BadLinesPerMinute)
		s.management = NewManagement(s.engine, s.scheduler)
	})
}

// Management returns the query interface of the server's engine, for the HTTP API.
func (s *Server) Management() *Management {
	s.setup()
	return s.management
}

// Run runs the server until context signals done.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithCustomSocket(ctx, NewSocketFactory(s.MetricsAddr, s.ReceiveBufferSize))
}

// RunWithCustomSocket runs the server until context signals done.
// Listening socket is created using sf.
func (s *Server) RunWithCustomSocket(ctx context.Context, sf SocketFactory) error {
	if s.FlushInterval <= 0 {
		return fmt.Errorf("flush interval must be positive, got %v", s.FlushInterval)
	}
	s.setup()

	statser, err := s.createStatser()
	if err != nil {
		return err
	}
	clck := clock.FromContext(ctx)
	// Stages get their own contexts, the clock and statser are carried over.
	withValues := func(f func(context.Context)) func(context.Context) {
		return func(stageCtx context.Context) {
			f(clock.Context(stats.NewContext(stageCtx, statser), clck))
		}
	}

	stgr := stager.New()
	defer stgr.Shutdown()

	// 0. Start runnable backends
	stage := stgr.NextStage()
	for _, runnable := range s.Runnables {
		stage.StartWithContext(withValues(runnable))
	}

	// 1. Start the flush cycle and everything that reports on it
	stage = stgr.NextStage()
	stage.StartWithContext(withValues(s.scheduler.Run))
	stage.StartWithContext(withValues(s.receiver.RunMetricsContext))
	if s.tracker != nil {
		stage.StartWithContext(withValues(s.tracker.Run))
	}
	if s.DebugInterval > 0 {
		stage.StartWithContext(withValues(s.logStats))
	}

	// 2. Start the management console
	if s.MgmtAddr != "" {
		console := &ConsoleServer{
			Addr:        s.MgmtAddr,
			Management:  s.management,
			Timeout:     s.ConsoleTimeout,
			IdleTimeout: s.ConsoleIdle,
		}
		stgr.NextStage().StartWithContext(console.Run)
	}

	// 3. Receive until told to stop
	logrus.WithField("addr", s.MetricsAddr).Info("Listening for metrics")
	return s.receiver.Run(clock.Context(stats.NewContext(ctx, statser), clck), sf, s.MaxReaders)
}

func (s *Server) createStatser() (stats.Statser, error) {
	switch s.StatserType {
	case netstatsd.StatserNull:
		return stats.NewNullStatser(), nil
	case netstatsd.StatserLogging:
		return stats.NewLoggingStatser(logrus.StandardLogger()).WithPrefix(s.PrefixStats), nil
	case netstatsd.StatserPrometheus:
		registerer := s.Registerer
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}
		ps, err := stats.NewPrometheusStatser(registerer, "netstatsd")
		if err != nil {
			return nil, err
		}
		return ps, nil
	case netstatsd.StatserInternal, "":
		return stats.NewInternalStatser(s.PrefixStats, s.engine), nil
	default:
		return nil, fmt.Errorf("unknown statser type %q", s.StatserType)
	}
}

// logStats logs the engine counters at debug level every DebugInterval.
func (s *Server) logStats(ctx context.Context) {
	ticker := clock.FromContext(ctx).NewTicker(s.DebugInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !logrus.IsLevelEnabled(logrus.DebugLevel) {
				continue
			}
			r := s.management.Stats()
			logrus.WithFields(logrus.Fields{
				"uptime":           r.Uptime,
				"packets_received": r.PacketsReceived,
				"samples_recorded": r.SamplesRecorded,
				"samples_rejected": r.SamplesRejected,
				"bad_lines_seen":   r.BadLinesSeen,
				"flushes":          r.Flushes,
				"flushes_skipped":  r.FlushesSkipped,
			}).Debug("Engine stats")
		}
	}
}
