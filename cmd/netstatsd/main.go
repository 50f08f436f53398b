package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/atlassian/netstatsd"
	"github.com/atlassian/netstatsd/internal/util"
	"github.com/atlassian/netstatsd/pkg/backends"
	"github.com/atlassian/netstatsd/pkg/statsd"
	"github.com/atlassian/netstatsd/pkg/web"
)

const (
	// ParamVerbose enables verbose logging.
	ParamVerbose = "verbose"
	// ParamJSON makes logger log in JSON format.
	ParamJSON = "json"
	// ParamConfigPath provides file with configuration.
	ParamConfigPath = "config-path"
	// ParamVersion makes program output its version.
	ParamVersion = "version"
)

func main() {
	v, version, err := setupConfiguration(os.Args[1:])
	if err != nil {
		if err == pflag.ErrHelp {
			return
		}
		logrus.Fatalf("Error while parsing configuration: %v", err)
	}
	if version {
		fmt.Printf("Version: %s - Commit: %s - Date: %s\n", GetVersion(), GitCommit, BuildDate)
		return
	}
	if err := run(v); err != nil {
		logrus.Fatalf("%v", err)
	}
}

func run(v *viper.Viper) error {
	logrus.WithField("version", GetVersion()).Info("Starting server")
	s, closer, err := constructServer(v)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close key flush log")
		}
	}()

	ctx, cancelFunc := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelFunc()

	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// constructServer builds the server from configuration. The returned closer releases
// the key flush log, if one was opened.
func constructServer(v *viper.Viper) (*statsd.Server, io.Closer, error) {
	var runnables []netstatsd.Runnable

	// Backends
	backendsList, err := backends.InitBackends(netstatsd.BackendNamesFromViper(v), v)
	if err != nil {
		return nil, nil, err
	}
	for _, backend := range backendsList {
		runnables = netstatsd.MaybeAppendRunnable(runnables, backend)
	}

	// Percentiles
	pt, err := netstatsd.PercentThresholdsFromViper(v)
	if err != nil {
		return nil, nil, err
	}

	// Key frequency log
	var keyFlushOutput io.WriteCloser
	if name := v.GetString(netstatsd.ParamKeyFlushLog); name != "" {
		f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644) // #nosec
		if err != nil {
			return nil, nil, fmt.Errorf("could not open key flush log: %w", err)
		}
		keyFlushOutput = f
	}

	s := &statsd.Server{
		Backends:          backendsList,
		FlushInterval:     v.GetDuration(netstatsd.ParamFlushInterval),
		FlushOffset:       v.GetDuration(netstatsd.ParamFlushOffset),
		FlushAligned:      v.GetBool(netstatsd.ParamFlushAligned),
		FlushTimeout:      v.GetDuration(netstatsd.ParamFlushTimeout),
		PercentThreshold:  pt,
		IdlePolicy:        netstatsd.IdlePolicyFromViper(v),
		KeyFlushInterval:  v.GetDuration(netstatsd.ParamKeyFlushInterval),
		KeyFlushPercent:   v.GetFloat64(netstatsd.ParamKeyFlushPercent),
		PrefixStats:       v.GetString(netstatsd.ParamPrefixStats),
		MetricsAddr:       v.GetString(netstatsd.ParamMetricsAddr),
		MgmtAddr:          v.GetString(netstatsd.ParamMgmtAddr),
		ConsoleTimeout:    v.GetDuration(netstatsd.ParamConsoleTimeout),
		ConsoleIdle:       v.GetDuration(netstatsd.ParamConsoleIdleTimeout),
		MaxReaders:        v.GetInt(netstatsd.ParamMaxReaders),
		ReceiveBufferSize: v.GetInt(netstatsd.ParamReceiveBufferSize),
		DumpMessages:      v.GetBool(netstatsd.ParamDumpMessages),
		DebugInterval:     v.GetDuration(netstatsd.ParamDebugInterval),
		BadLinesPerMinute: v.GetUint(netstatsd.ParamBadLinesPerMinute),
		StatserType:       v.GetString(netstatsd.ParamStatserType),
	}
	var closer io.Closer = nopCloser{}
	if keyFlushOutput != nil {
		s.KeyFlushOutput = keyFlushOutput
		closer = keyFlushOutput
	}

	// Management HTTP API
	if v.GetString(netstatsd.ParamWebAddr) != "" {
		hs, err := web.NewHttpServerFromViper(v, s.Management(), prometheus.DefaultGatherer)
		if err != nil {
			_ = closer.Close()
			return nil, nil, err
		}
		runnables = append(runnables, hs.Run)
	}
	s.Runnables = runnables

	return s, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func setupConfiguration(args []string) (*viper.Viper, bool, error) {
	v := viper.New()
	defer setupLogger(v) // Apply logging configuration in case of early exit
	util.InitViper(v, "")

	var version bool

	cmd := pflag.NewFlagSet("netstatsd", pflag.ContinueOnError)

	cmd.BoolVar(&version, ParamVersion, false, "Print the version and exit")
	cmd.Bool(ParamVerbose, false, "Verbose")
	cmd.Bool(ParamJSON, false, "Log in JSON format")
	cmd.String(ParamConfigPath, "", "Path to the configuration file")

	netstatsd.AddFlags(cmd)

	cmd.VisitAll(func(flag *pflag.Flag) {
		if err := v.BindPFlag(flag.Name, flag); err != nil {
			panic(err) // Should never happen
		}
	})

	if err := cmd.Parse(args); err != nil {
		return nil, false, err
	}

	configPath := v.GetString(ParamConfigPath)
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, false, err
		}
	}

	return v, version, nil
}

func setupLogger(v *viper.Viper) {
	if v.GetBool(ParamVerbose) {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if v.GetBool(ParamJSON) {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}
