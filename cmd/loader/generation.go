package main

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync/atomic"
)

type metricData struct {
	count           uint64 // atomic
	nameFormat      string
	nameCardinality uint
	valueLimit      uint
}

type metricGenerator struct {
	rnd         *rand.Rand
	sampleRate  float64
	gaugeDeltas bool

	counters metricData
	gauges   metricData
	sets     metricData
	timers   metricData
}

func (md *metricData) genName(sb *strings.Builder, r *rand.Rand) {
	atomic.AddUint64(&md.count, ^uint64(0))
	sb.WriteString(fmt.Sprintf(md.nameFormat, r.Intn(int(md.nameCardinality))))
	sb.WriteByte(':')
}

func (mg *metricGenerator) nextCounter(sb *strings.Builder) {
	mg.counters.genName(sb, mg.rnd)
	sb.WriteString(strconv.Itoa(1 + mg.rnd.Intn(int(mg.counters.valueLimit+1))))
	sb.WriteString("|c")
	if mg.sampleRate < 1 {
		sb.WriteString("|@")
		sb.WriteString(strconv.FormatFloat(mg.sampleRate, 'f', -1, 64))
	}
	sb.WriteByte('\n')
}

func (mg *metricGenerator) nextGauge(sb *strings.Builder) {
	mg.gauges.genName(sb, mg.rnd)
	value := mg.rnd.Intn(int(mg.gauges.valueLimit))
	if mg.gaugeDeltas {
		if mg.rnd.Intn(2) == 0 {
			sb.WriteByte('-')
		} else {
			sb.WriteByte('+')
		}
	}
	sb.WriteString(strconv.Itoa(value))
	sb.WriteString("|g\n")
}

func (mg *metricGenerator) nextSet(sb *strings.Builder) {
	mg.sets.genName(sb, mg.rnd)
	sb.WriteString(strconv.Itoa(mg.rnd.Intn(int(mg.sets.valueLimit))))
	sb.WriteString("|s\n")
}

func (mg *metricGenerator) nextTimer(sb *strings.Builder) {
	mg.timers.genName(sb, mg.rnd)
	sb.WriteString(strconv.FormatFloat(mg.rnd.Float64()*float64(mg.timers.valueLimit), 'g', -1, 64))
	sb.WriteString("|ms\n")
}

// remaining may be called from any goroutine.
func (mg *metricGenerator) remaining() (counters, gauges, sets, timers uint64) {
	return atomic.LoadUint64(&mg.counters.count),
		atomic.LoadUint64(&mg.gauges.count),
		atomic.LoadUint64(&mg.sets.count),
		atomic.LoadUint64(&mg.timers.count)
}

func (mg *metricGenerator) next(sb *strings.Builder) bool {
	// Only the owning goroutine writes the counts.
	total := mg.counters.count + mg.gauges.count + mg.sets.count + mg.timers.count
	if total == 0 {
		return false
	}

	n := uint64(mg.rnd.Int63n(int64(total)))
	switch {
	case n < mg.counters.count:
		mg.nextCounter(sb)
	case n < mg.counters.count+mg.gauges.count:
		mg.nextGauge(sb)
	case n < mg.counters.count+mg.gauges.count+mg.sets.count:
		mg.nextSet(sb)
	default:
		mg.nextTimer(sb)
	}
	return true
}
