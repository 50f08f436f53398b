package statsd

import (
	"sync/atomic"
	"time"
)

// EngineStats holds counters about the engine itself, for the management stats command.
type EngineStats struct {
	// Counter fields below must be read/written only using atomic instructions.
	// 64-bit fields must be the first fields in the struct to guarantee proper memory alignment.
	// See https://golang.org/pkg/sync/atomic/#pkg-note-BUG
	lastMessageSeen int64 // Unix timestamp in nsec.
	lastFlush       int64 // Unix timestamp in nsec.
	lastFlushError  int64 // Unix timestamp in nsec.
	badLines        uint64
	packets         uint64
	samples         uint64
	samplesRejected uint64
	flushes         uint64
	flushesSkipped  uint64

	startTime time.Time
}

func newEngineStats(now time.Time) *EngineStats {
	return &EngineStats{startTime: now}
}

// StatsReport is a point in time copy of the engine counters.
type StatsReport struct {
	Uptime          time.Duration   `json:"uptime"`
	LastMessageSeen time.Time       `json:"last_msg_seen"`
	BadLinesSeen    uint64          `json:"bad_lines_seen"`
	PacketsReceived uint64          `json:"packets_received"`
	SamplesRecorded uint64          `json:"samples_recorded"`
	SamplesRejected uint64          `json:"samples_rejected"`
	Flushes         uint64          `json:"flushes"`
	FlushesSkipped  uint64          `json:"flushes_skipped"`
	LastFlush       time.Time       `json:"last_flush"`
	LastFlushError  time.Time       `json:"last_flush_error"`
	Backends        []BackendStatus `json:"backends"`
}

func (es *EngineStats) report(now time.Time) StatsReport {
	return StatsReport{
		Uptime:          now.Sub(es.startTime),
		LastMessageSeen: loadTime(&es.lastMessageSeen),
		BadLinesSeen:    atomic.LoadUint64(&es.badLines),
		PacketsReceived: atomic.LoadUint64(&es.packets),
		SamplesRecorded: atomic.LoadUint64(&es.samples),
		SamplesRejected: atomic.LoadUint64(&es.samplesRejected),
		Flushes:         atomic.LoadUint64(&es.flushes),
		FlushesSkipped:  atomic.LoadUint64(&es.flushesSkipped),
		LastFlush:       loadTime(&es.lastFlush),
		LastFlushError:  loadTime(&es.lastFlushError),
	}
}

func storeTime(addr *int64, t time.Time) {
	atomic.StoreInt64(addr, t.UnixNano())
}

func loadTime(addr *int64) time.Time {
	nsec := atomic.LoadInt64(addr)
	if nsec == 0 {
		return time.Time{}
	}
	return time.Unix(0, nsec)
}
