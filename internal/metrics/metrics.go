// Package metrics collects atomic counters and timing histograms for the
// engine and facade, the way the teacher's pkg/metrics instruments its
// query/insert/update/delete paths, adapted here to agentstate's own
// operation set (writes, deletes, commits, reads, scans).
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector holds process-wide counters. A single Collector is shared by
// an Engine and the facade Server layered on top of it.
type Collector struct {
	commitsStarted   uint64
	commitsSucceeded uint64
	commitsFailed    uint64
	totalCommitTime  uint64 // nanoseconds

	writesStaged  uint64
	deletesStaged uint64
	aborts        uint64

	reads       uint64
	readMisses  uint64
	scans       uint64
	replayCalls uint64

	mu           sync.Mutex
	commitTiming *TimingHistogram

	startTime time.Time
}

// NewCollector returns a ready-to-use Collector with all counters at zero.
func NewCollector() *Collector {
	return &Collector{
		commitTiming: newTimingHistogram(1000),
		startTime:    time.Now(),
	}
}

// TimingHistogram buckets durations and keeps a bounded recent window for
// percentile estimates, mirroring the teacher's TimingHistogram.
type TimingHistogram struct {
	bucket0_1ms      uint64
	bucket1_10ms     uint64
	bucket10_100ms   uint64
	bucket100_1000ms uint64
	bucket1000ms     uint64

	mu            sync.Mutex
	recent        []time.Duration
	maxRecent     int
}

func newTimingHistogram(maxRecent int) *TimingHistogram {
	return &TimingHistogram{recent: make([]time.Duration, 0, maxRecent), maxRecent: maxRecent}
}

func (th *TimingHistogram) record(d time.Duration) {
	switch ms := d.Milliseconds(); {
	case ms < 1:
		atomic.AddUint64(&th.bucket0_1ms, 1)
	case ms < 10:
		atomic.AddUint64(&th.bucket1_10ms, 1)
	case ms < 100:
		atomic.AddUint64(&th.bucket10_100ms, 1)
	case ms < 1000:
		atomic.AddUint64(&th.bucket100_1000ms, 1)
	default:
		atomic.AddUint64(&th.bucket1000ms, 1)
	}

	th.mu.Lock()
	defer th.mu.Unlock()
	if len(th.recent) >= th.maxRecent {
		th.recent = th.recent[1:]
	}
	th.recent = append(th.recent, d)
}

func (th *TimingHistogram) buckets() map[string]uint64 {
	return map[string]uint64{
		"0-1ms":      atomic.LoadUint64(&th.bucket0_1ms),
		"1-10ms":     atomic.LoadUint64(&th.bucket1_10ms),
		"10-100ms":   atomic.LoadUint64(&th.bucket10_100ms),
		"100-1000ms": atomic.LoadUint64(&th.bucket100_1000ms),
		">1000ms":    atomic.LoadUint64(&th.bucket1000ms),
	}
}

func (th *TimingHistogram) percentiles() map[string]time.Duration {
	th.mu.Lock()
	defer th.mu.Unlock()

	if len(th.recent) == 0 {
		return map[string]time.Duration{"p50": 0, "p95": 0, "p99": 0}
	}

	sorted := make([]time.Duration, len(th.recent))
	copy(sorted, th.recent)
	for i := 1; i < len(sorted); i++ {
		key := sorted[i]
		j := i - 1
		for j >= 0 && sorted[j] > key {
			sorted[j+1] = sorted[j]
			j--
		}
		sorted[j+1] = key
	}

	return map[string]time.Duration{
		"p50": sorted[len(sorted)*50/100],
		"p95": sorted[len(sorted)*95/100],
		"p99": sorted[len(sorted)*99/100],
	}
}

// RecordCommit records one Commit attempt and its wall-clock duration.
func (c *Collector) RecordCommit(d time.Duration, err error) {
	atomic.AddUint64(&c.commitsStarted, 1)
	if err != nil {
		atomic.AddUint64(&c.commitsFailed, 1)
	} else {
		atomic.AddUint64(&c.commitsSucceeded, 1)
	}
	atomic.AddUint64(&c.totalCommitTime, uint64(d.Nanoseconds()))
	c.commitTiming.record(d)
}

func (c *Collector) RecordWriteStaged()  { atomic.AddUint64(&c.writesStaged, 1) }
func (c *Collector) RecordDeleteStaged() { atomic.AddUint64(&c.deletesStaged, 1) }
func (c *Collector) RecordAbort()        { atomic.AddUint64(&c.aborts, 1) }

func (c *Collector) RecordRead(found bool) {
	atomic.AddUint64(&c.reads, 1)
	if !found {
		atomic.AddUint64(&c.readMisses, 1)
	}
}

func (c *Collector) RecordScan()   { atomic.AddUint64(&c.scans, 1) }
func (c *Collector) RecordReplay() { atomic.AddUint64(&c.replayCalls, 1) }

// Snapshot returns a point-in-time view of every counter, suitable for
// direct JSON encoding by the facade's /_metrics handler.
func (c *Collector) Snapshot() map[string]interface{} {
	started := atomic.LoadUint64(&c.commitsStarted)
	succeeded := atomic.LoadUint64(&c.commitsSucceeded)
	failed := atomic.LoadUint64(&c.commitsFailed)
	totalTime := atomic.LoadUint64(&c.totalCommitTime)

	var avgCommitMs float64
	if started > 0 {
		avgCommitMs = float64(totalTime) / float64(started) / 1e6
	}

	reads := atomic.LoadUint64(&c.reads)
	readMisses := atomic.LoadUint64(&c.readMisses)

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.startTime).Seconds(),
		"commits": map[string]interface{}{
			"started":            started,
			"succeeded":          succeeded,
			"failed":             failed,
			"avg_duration_ms":    avgCommitMs,
			"timing_histogram":   c.commitTiming.buckets(),
			"timing_percentiles": c.commitTiming.percentiles(),
		},
		"writes_staged":  atomic.LoadUint64(&c.writesStaged),
		"deletes_staged": atomic.LoadUint64(&c.deletesStaged),
		"aborts":         atomic.LoadUint64(&c.aborts),
		"reads": map[string]interface{}{
			"total":  reads,
			"misses": readMisses,
		},
		"scans":   atomic.LoadUint64(&c.scans),
		"replays": atomic.LoadUint64(&c.replayCalls),
	}
}
