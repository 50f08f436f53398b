package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

type commandOptions struct {
	Target       string  `short:"a" long:"address"             default:"127.0.0.1:8125" description:"UDP address of the netstatsd instance"`
	MetricPrefix string  `short:"p" long:"metric-prefix"       default:"loadtest."      description:"Prepended to every generated key"`
	MetricSuffix string  `          long:"metric-suffix"       default:".%d"            description:"Appended to every key, %d is replaced by the name index"`
	Rate         uint    `short:"r" long:"rate"                default:"1000"           description:"Datagrams per second, shared between workers"`
	DatagramSize uint    `          long:"buffer-size"         default:"1500"           description:"Upper bound of a datagram in bytes"`
	Workers      uint    `short:"w" long:"workers"             default:"1"              description:"Sending goroutines, each with its own socket"`
	SampleRate   float64 `          long:"counter-sample-rate" default:"1"              description:"Sample rate attached to counters"`
	GaugeDeltas  bool    `          long:"gauge-deltas"                                 description:"Send gauges as signed deltas"`
	Counts       struct {
		Counter uint64 `short:"c" long:"counter-count" description:"Counter lines to send"`
		Gauge   uint64 `short:"g" long:"gauge-count"   description:"Gauge lines to send"`
		Set     uint64 `short:"s" long:"set-count"     description:"Set lines to send"`
		Timer   uint64 `short:"t" long:"timer-count"   description:"Timer lines to send"`
	} `group:"Lines per kind"`
	NameCard struct {
		Counter uint `long:"counter-cardinality" default:"1" description:"Distinct counter keys"`
		Gauge   uint `long:"gauge-cardinality"   default:"1" description:"Distinct gauge keys"`
		Set     uint `long:"set-cardinality"     default:"1" description:"Distinct set keys"`
		Timer   uint `long:"timer-cardinality"   default:"1" description:"Distinct timer keys"`
	} `group:"Key cardinality"`
	ValueRange struct {
		Counter uint `long:"counter-value-limit"   default:"0" description:"Counters increment by 1 up to this plus one"`
		Gauge   uint `long:"gauge-value-limit"     default:"1" description:"Gauge values are below this"`
		Set     uint `long:"set-value-cardinality" default:"1" description:"Distinct members per set"`
		Timer   uint `long:"timer-value-limit"     default:"1" description:"Timer values are below this"`
	} `group:"Values"`
}

func parseArgs(args []string) commandOptions {
	var opts commandOptions
	parser := flags.NewParser(&opts, flags.HelpFlag | flags.PassDoubleDash)
	parser.LongDescription = "" + // because gofmt
		"Sends a bounded number of random counters, gauges, sets and timers to a netstatsd\n" +
		"instance at a fixed packet rate. Each name is drawn from prefix + type + suffix,\n" +
		"with the suffix formatted with a number below the name cardinality."

	usageError := func(format string, a ...interface{}) {
		parser.WriteHelp(os.Stderr)
		_, _ = fmt.Fprintf(os.Stderr, "\n\n"+format+"\n", a...)
		os.Exit(1)
	}

	positional, err := parser.ParseArgs(args)
	if err != nil {
		if !isHelp(err) {
			usageError("error parsing command line: %v", err)
		}
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}

	switch {
	case len(positional) != 0:
		usageError("no positional arguments allowed")
	case opts.SampleRate <= 0 || opts.SampleRate > 1:
		usageError("counter-sample-rate must be in (0, 1]")
	case opts.Workers == 0 || opts.Rate < opts.Workers:
		usageError("workers must be non-zero and rate must be at least workers")
	case opts.Counts.Counter+opts.Counts.Gauge+opts.Counts.Set+opts.Counts.Timer == 0:
		usageError("at least one of counter-count, gauge-count, set-count or timer-count must be non-zero")
	}
	return opts
}

// isHelp reports whether err is go-flags asking for the help text. err may be nil.
func isHelp(err error) bool {
	var flagError *flags.Error
	if !errors.As(err, &flagError) {
		return false
	}
	return flagError.Type == flags.ErrHelp
}
