package netstatsd

import (
	"fmt"
	"math"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultBackends is the list of default backends' names.
var DefaultBackends = []string{"graphite"}

// DefaultMaxReaders is the default number of socket reading goroutines.
var DefaultMaxReaders = minInt(8, runtime.NumCPU())

// DefaultPercentThreshold is the default list of applied percentiles.
var DefaultPercentThreshold = []float64{90}

const (
	// DefaultFlushInterval is the default metrics flush interval.
	DefaultFlushInterval = 10 * time.Second
	// DefaultFlushOffset is the default offset of aligned flushes.
	DefaultFlushOffset = 0
	// DefaultFlushAligned is the default value for aligning flushes to multiples of the interval.
	DefaultFlushAligned = false
	// DefaultFlushTimeout is the default time a single backend may spend on one snapshot.
	DefaultFlushTimeout = 5 * time.Second
	// DefaultMetricsAddr is the default address on which to listen for metrics.
	DefaultMetricsAddr = ":8125"
	// DefaultMgmtAddr is the default address of the management console.
	DefaultMgmtAddr = ":8126"
	// DefaultWebAddr is the default address of the management HTTP API, empty to disable.
	DefaultWebAddr = ""
	// DefaultReceiveBufferSize is the size of the socket receive buffer.
	DefaultReceiveBufferSize = 8 * 1024 * 1024
	// DefaultPrefixStats is the default prefix of the daemon's own statistics.
	DefaultPrefixStats = "statsd"
	// DefaultKeyFlushInterval is the default key frequency report interval, 0 disables it.
	DefaultKeyFlushInterval = 0
	// DefaultKeyFlushPercent is the default percentage of distinct keys to report.
	DefaultKeyFlushPercent = 100.0
	// DefaultDebugInterval is the default interval for logging engine stats at debug level.
	DefaultDebugInterval = 10 * time.Second
	// DefaultBadLinesPerMinute is the number of bad lines to allow to log per minute.
	DefaultBadLinesPerMinute = 0
	// DefaultStatserType is the default statser type.
	DefaultStatserType = StatserInternal
	// DefaultConsoleTimeout bounds a single management console command.
	DefaultConsoleTimeout = 10 * time.Second
	// DefaultConsoleIdleTimeout is how long the management console waits for the next command.
	DefaultConsoleIdleTimeout = 5 * time.Minute
)

const (
	// StatserInternal is the name used to indicate the use of the internal statser.
	StatserInternal = "internal"
	// StatserLogging is the name used to indicate the use of the logging statser.
	StatserLogging = "logging"
	// StatserNull is the name used to indicate the use of the null statser.
	StatserNull = "null"
	// StatserPrometheus is the name used to indicate the use of the prometheus statser.
	StatserPrometheus = "prometheus"
)

const (
	// ParamBackends is the name of parameter with backends.
	ParamBackends = "backends"
	// ParamFlushInterval is the name of parameter with metrics flush interval.
	ParamFlushInterval = "flush-interval"
	// ParamFlushOffset is the name of parameter with the offset of aligned flushes.
	ParamFlushOffset = "flush-offset"
	// ParamFlushAligned is the name of parameter with whether flushes are aligned.
	ParamFlushAligned = "flush-aligned"
	// ParamFlushTimeout is the name of parameter with the per backend send timeout.
	ParamFlushTimeout = "flush-timeout"
	// ParamPercentThreshold is the name of parameter with list of applied percentiles.
	ParamPercentThreshold = "percent-threshold"
	// ParamDeleteIdleStats is the name of parameter to stop reporting keys idle for an interval.
	ParamDeleteIdleStats = "delete-idle-stats"
	// ParamDeleteCounters is the name of parameter to evict idle counters.
	ParamDeleteCounters = "delete-counters"
	// ParamDeleteGauges is the name of parameter to omit idle gauges.
	ParamDeleteGauges = "delete-gauges"
	// ParamDeleteSets is the name of parameter to evict idle sets.
	ParamDeleteSets = "delete-sets"
	// ParamDeleteTimers is the name of parameter to evict idle timers.
	ParamDeleteTimers = "delete-timers"
	// ParamKeyFlushInterval is the name of parameter with the key frequency report interval.
	ParamKeyFlushInterval = "key-flush-interval"
	// ParamKeyFlushPercent is the name of parameter with the percentage of keys to report.
	ParamKeyFlushPercent = "key-flush-percent"
	// ParamKeyFlushLog is the name of parameter with the file the key report is written to.
	ParamKeyFlushLog = "key-flush-log"
	// ParamPrefixStats is the name of parameter with the prefix of the daemon's own statistics.
	ParamPrefixStats = "prefix-stats"
	// ParamMetricsAddr is the name of parameter with address on which to listen for metrics.
	ParamMetricsAddr = "address"
	// ParamMgmtAddr is the name of parameter with the address of the management console.
	ParamMgmtAddr = "mgmt-address"
	// ParamWebAddr is the name of parameter with the address of the management HTTP API.
	ParamWebAddr = "web-address"
	// ParamMaxReaders is the name of parameter with number of socket readers.
	ParamMaxReaders = "max-readers"
	// ParamReceiveBufferSize is the name of parameter with the size of the socket receive buffer.
	ParamReceiveBufferSize = "receive-buffer-size"
	// ParamDumpMessages is the name of parameter to log every received packet.
	ParamDumpMessages = "dump-messages"
	// ParamDebugInterval is the name of parameter with the interval to log engine stats.
	ParamDebugInterval = "debug-interval"
	// ParamBadLinesPerMinute is the name of parameter indicating how many bad lines can be logged per minute.
	ParamBadLinesPerMinute = "bad-lines-per-minute"
	// ParamStatserType is the name of parameter with the statser type.
	ParamStatserType = "statser-type"
	// ParamConsoleTimeout is the name of parameter bounding a management console command.
	ParamConsoleTimeout = "console-timeout"
	// ParamConsoleIdleTimeout is the name of parameter bounding the wait for a console command.
	ParamConsoleIdleTimeout = "console-idle-timeout"
)

// AddFlags adds flags to the specified FlagSet.
func AddFlags(fs *pflag.FlagSet) {
	fs.Duration(ParamFlushInterval, DefaultFlushInterval, "How often to flush metrics to the backends")
	fs.Duration(ParamFlushOffset, DefaultFlushOffset, "Offset for aligned flushes")
	fs.Bool(ParamFlushAligned, DefaultFlushAligned, "Align flushes to multiples of the flush interval")
	fs.Duration(ParamFlushTimeout, DefaultFlushTimeout, "Maximum time a backend may spend sending one flush")
	fs.Bool(ParamDeleteIdleStats, false, "Stop reporting keys that received no samples in an interval")
	fs.Bool(ParamDeleteCounters, false, "Evict idle counters, defaults to delete-idle-stats")
	fs.Bool(ParamDeleteGauges, false, "Omit idle gauges, defaults to delete-idle-stats")
	fs.Bool(ParamDeleteSets, false, "Evict idle sets, defaults to delete-idle-stats")
	fs.Bool(ParamDeleteTimers, false, "Evict idle timers, defaults to delete-idle-stats")
	fs.Duration(ParamKeyFlushInterval, DefaultKeyFlushInterval, "How often to log the most frequent keys (0 to disable)")
	fs.Float64(ParamKeyFlushPercent, DefaultKeyFlushPercent, "Percentage of the distinct keys to log")
	fs.String(ParamKeyFlushLog, "", "File to log the most frequent keys to, stdout if empty")
	fs.String(ParamPrefixStats, DefaultPrefixStats, "Prefix of the internal statistics")
	fs.String(ParamMetricsAddr, DefaultMetricsAddr, "Address on which to listen for metrics")
	fs.String(ParamMgmtAddr, DefaultMgmtAddr, "If set, use as the address of the management console")
	fs.String(ParamWebAddr, DefaultWebAddr, "If set, use as the address of the management HTTP API")
	fs.Int(ParamMaxReaders, DefaultMaxReaders, "Maximum number of socket readers")
	fs.Int(ParamReceiveBufferSize, DefaultReceiveBufferSize, "The size of the socket receive buffer")
	fs.Bool(ParamDumpMessages, false, "Log all received packets")
	fs.Duration(ParamDebugInterval, DefaultDebugInterval, "How often to log engine stats at debug level")
	fs.Uint(ParamBadLinesPerMinute, DefaultBadLinesPerMinute, "The number of bad lines to allow to log per minute")
	fs.String(ParamStatserType, DefaultStatserType, "Statser type to be used for sending metrics")
	fs.Duration(ParamConsoleTimeout, DefaultConsoleTimeout, "Maximum time for one management console command")
	fs.Duration(ParamConsoleIdleTimeout, DefaultConsoleIdleTimeout, "Close management console connections idle for this long (0 to never)")
	//TODO Remove workaround when https://github.com/spf13/viper/issues/112 is fixed
	// https://github.com/spf13/viper/issues/200
	fs.String(ParamBackends, strings.Join(DefaultBackends, ","), "Comma-separated list of backends")
	fs.String(ParamPercentThreshold, strings.Join(toStringSlice(DefaultPercentThreshold), ","), "Comma-separated list of percentiles")
}

// IdlePolicy decides, per metric type, what happens to keys that received no samples in an interval.
type IdlePolicy struct {
	DeleteCounters bool // Evict instead of reporting zero
	DeleteGauges   bool // Omit instead of repeating the last value
	DeleteSets     bool // Evict instead of reporting zero cardinality
	DeleteTimers   bool // Evict instead of reporting an empty timer
}

// IdlePolicyFromViper reads the per type delete flags. A per type flag that is not set
// anywhere (flag, env or config file) takes the delete-idle-stats value, otherwise it wins.
func IdlePolicyFromViper(v *viper.Viper) IdlePolicy {
	all := v.GetBool(ParamDeleteIdleStats)
	flag := func(name string) bool {
		if v.IsSet(name) {
			return v.GetBool(name)
		}
		return all
	}
	return IdlePolicy{
		DeleteCounters: flag(ParamDeleteCounters),
		DeleteGauges:   flag(ParamDeleteGauges),
		DeleteSets:     flag(ParamDeleteSets),
		DeleteTimers:   flag(ParamDeleteTimers),
	}
}

// PercentThresholdsFromViper normalises the percent-threshold setting, which may be a single
// number, a comma separated string, or a list, into a list of thresholds.
func PercentThresholdsFromViper(v *viper.Viper) ([]float64, error) {
	var raw []string
	switch value := v.Get(ParamPercentThreshold).(type) {
	case nil:
		return DefaultPercentThreshold, nil
	case []interface{}:
		for _, item := range value {
			raw = append(raw, fmt.Sprint(item))
		}
	case []string:
		raw = value
	case []float64:
		raw = toStringSlice(value)
	default:
		raw = []string{fmt.Sprint(value)}
	}
	return ParsePercentThresholds(raw)
}

// BackendNamesFromViper returns the configured backend names. The setting may be a comma
// separated string from the command line or a list from a configuration file.
func BackendNamesFromViper(v *viper.Viper) []string {
	var names []string
	switch value := v.Get(ParamBackends).(type) {
	case nil:
		return DefaultBackends
	case []interface{}:
		for _, item := range value {
			names = append(names, splitList(fmt.Sprint(item))...)
		}
	case []string:
		for _, item := range value {
			names = append(names, splitList(item)...)
		}
	default:
		names = splitList(fmt.Sprint(value))
	}
	return names
}

func splitList(s string) []string {
	var result []string
	for _, field := range strings.Split(s, ",") {
		if field = strings.TrimSpace(field); field != "" {
			result = append(result, field)
		}
	}
	return result
}

// ParsePercentThresholds parses thresholds, splitting any comma separated entries.
// Thresholds must be positive and finite; values over 100 request the maximum.
func ParsePercentThresholds(s []string) ([]float64, error) {
	thresholds := make([]float64, 0, len(s))
	for _, entry := range s {
		for _, field := range strings.Split(entry, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			pt, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid percent threshold %q: %w", field, err)
			}
			if pt <= 0 || math.IsInf(pt, 0) || math.IsNaN(pt) {
				return nil, fmt.Errorf("invalid percent threshold %q: must be a positive number", field)
			}
			thresholds = append(thresholds, pt)
		}
	}
	return thresholds, nil
}

func toStringSlice(fs []float64) []string {
	s := make([]string, len(fs))
	for i, f := range fs {
		s[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return s
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
