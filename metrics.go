package netstatsd

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// MetricType is an enumeration of all the possible types of Sample.
type MetricType byte

const (
	_ = iota
	// COUNTER is statsd counter type
	COUNTER MetricType = iota
	// TIMER is statsd timer type
	TIMER
	// GAUGE is statsd gauge type
	GAUGE
	// SET is statsd set type
	SET
)

// AllMetricTypes lists the metric types in reporting order.
var AllMetricTypes = []MetricType{COUNTER, GAUGE, SET, TIMER}

func (m MetricType) String() string {
	switch m {
	case SET:
		return "set"
	case GAUGE:
		return "gauge"
	case TIMER:
		return "timer"
	case COUNTER:
		return "counter"
	}
	return "unknown"
}

var (
	// ErrNonFiniteValue is returned for NaN or infinite sample values.
	ErrNonFiniteValue = errors.New("sample value is not finite")
	// ErrInvalidSampleRate is returned when the sampling rate is outside (0,1].
	ErrInvalidSampleRate = errors.New("sample rate must be in (0,1]")
	// ErrUnknownMetricType is returned for a sample with an unsupported type.
	ErrUnknownMetricType = errors.New("unknown metric type")
)

// Sample is a single parsed observation, prior to aggregation.
type Sample struct {
	Key         string     // The name of the metric
	Type        MetricType // The type of metric
	Value       float64    // The numeric value of the metric
	StringValue string     // The string value for sets
	Rate        float64    // The sampling rate, 1 when not sampled
	Delta       bool       // For gauges, Value is applied relative to the current value
}

// Validate checks the value and sampling rate for the sample's type.
func (s *Sample) Validate() error {
	switch s.Type {
	case COUNTER, TIMER:
		if math.IsNaN(s.Rate) || s.Rate <= 0 || s.Rate > 1 {
			return fmt.Errorf("%w: %v", ErrInvalidSampleRate, s.Rate)
		}
		fallthrough
	case GAUGE:
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			return ErrNonFiniteValue
		}
	case SET:
	default:
		return ErrUnknownMetricType
	}
	return nil
}

// String renders the sample in the statsd line format.
func (s *Sample) String() string {
	var value, suffix string
	switch s.Type {
	case COUNTER:
		value, suffix = strconv.FormatFloat(s.Value, 'f', -1, 64), "c"
	case TIMER:
		value, suffix = strconv.FormatFloat(s.Value, 'f', -1, 64), "ms"
	case GAUGE:
		value, suffix = strconv.FormatFloat(s.Value, 'f', -1, 64), "g"
		if s.Delta && s.Value >= 0 {
			value = "+" + value
		}
	case SET:
		value, suffix = s.StringValue, "s"
	default:
		return fmt.Sprintf("%s:%v|?", s.Key, s.Value)
	}
	if s.Rate != 0 && s.Rate != 1 && (s.Type == COUNTER || s.Type == TIMER) {
		return fmt.Sprintf("%s:%s|%s|@%s", s.Key, value, suffix, strconv.FormatFloat(s.Rate, 'f', -1, 64))
	}
	return fmt.Sprintf("%s:%s|%s", s.Key, value, suffix)
}
