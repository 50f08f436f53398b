package main

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"
)

func main() {
	opts := parseArgs(os.Args[1:])

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pendingWorkers := make(chan error, opts.Workers)
	metricGenerators := make([]*metricGenerator, 0, opts.Workers)
	for i := uint(0); i < opts.Workers; i++ {
		generator := newGenerator(opts, rand.New(rand.NewSource(rand.Int63()))) // #nosec
		metricGenerators = append(metricGenerators, generator)
		go func() {
			pendingWorkers <- sendMetricsWorker(ctx, opts.Target, opts.DatagramSize, opts.Rate/opts.Workers, generator)
		}()
	}

	runningWorkers := opts.Workers
	statusTicker := time.NewTicker(1 * time.Second)
	defer statusTicker.Stop()
	for runningWorkers > 0 {
		select {
		case err := <-pendingWorkers:
			runningWorkers--
			if err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "worker failed: %v\n", err)
			}
		case <-statusTicker.C:
			var counters, gauges, sets, timers uint64
			for _, mg := range metricGenerators {
				c, g, s, t := mg.remaining()
				counters += c
				gauges += g
				sets += s
				timers += t
			}
			fmt.Printf("%d counters, %d gauges, %d sets, %d timers remaining\n", counters, gauges, sets, timers)
		}
	}
}

func newGenerator(opts commandOptions, rnd *rand.Rand) *metricGenerator {
	workers := uint64(opts.Workers)
	return &metricGenerator{
		rnd:         rnd,
		sampleRate:  opts.SampleRate,
		gaugeDeltas: opts.GaugeDeltas,
		counters: metricData{
			nameFormat:      fmt.Sprintf("%scounter%s", opts.MetricPrefix, opts.MetricSuffix),
			count:           opts.Counts.Counter / workers,
			nameCardinality: opts.NameCard.Counter,
			valueLimit:      opts.ValueRange.Counter,
		},
		gauges: metricData{
			nameFormat:      fmt.Sprintf("%sgauge%s", opts.MetricPrefix, opts.MetricSuffix),
			count:           opts.Counts.Gauge / workers,
			nameCardinality: opts.NameCard.Gauge,
			valueLimit:      opts.ValueRange.Gauge,
		},
		sets: metricData{
			nameFormat:      fmt.Sprintf("%sset%s", opts.MetricPrefix, opts.MetricSuffix),
			count:           opts.Counts.Set / workers,
			nameCardinality: opts.NameCard.Set,
			valueLimit:      opts.ValueRange.Set,
		},
		timers: metricData{
			nameFormat:      fmt.Sprintf("%stimer%s", opts.MetricPrefix, opts.MetricSuffix),
			count:           opts.Counts.Timer / workers,
			nameCardinality: opts.NameCard.Timer,
			valueLimit:      opts.ValueRange.Timer,
		},
	}
}

// sendMetricsWorker packs generated lines into datagrams of at most bufSize bytes and sends
// them at packetRate datagrams per second until the generator is exhausted or ctx is done.
func sendMetricsWorker(ctx context.Context, address string, bufSize, packetRate uint, generator *metricGenerator) error {
	s, err := net.DialTimeout("udp", address, 1*time.Second)
	if err != nil {
		return err
	}
	defer s.Close()

	limiter := rate.NewLimiter(rate.Limit(packetRate), 1)
	b := &bytes.Buffer{}
	send := func() error {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := s.Write(b.Bytes()); err != nil {
			fmt.Printf("Pausing for 1 second, error sending packet: %v\n", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(1 * time.Second):
			}
		}
		b.Reset()
		return nil
	}

	sb := &strings.Builder{}
	for generator.next(sb) {
		if b.Len() > 0 && uint(b.Len()+sb.Len()) > bufSize {
			if err := send(); err != nil {
				return err
			}
		}
		b.WriteString(sb.String())
		sb.Reset()
	}
	if b.Len() > 0 {
		return send()
	}
	return nil
}
