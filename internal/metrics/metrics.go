package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Outcome is the terminal state of one classified request.
type Outcome int

const (
	Hit Outcome = iota
	Miss
	Error
)

// NoSample marks a record that carries no latency measurement.
const NoSample = time.Duration(-1)

// sampleWindow bounds the rolling latency buffer per tier.
const sampleWindow = 100

// Collector counts hits/misses/errors and keeps a rolling window of
// latency samples per tier. Counters are atomic and the sample ring is
// mutex-guarded: the pipeline records from many goroutines.
type Collector struct {
	mu    sync.RWMutex
	tiers map[string]*tierStats
}

type tierStats struct {
	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64

	sampleMu sync.Mutex
	samples  []time.Duration
}

// TierReport is one tier's snapshot.
type TierReport struct {
	Hits       int64
	Misses     int64
	Errors     int64
	HitRate    float64 // percent, hits/(hits+misses)*100
	AvgLatency time.Duration
}

func New() *Collector {
	return &Collector{tiers: make(map[string]*tierStats)}
}

// Record increments the outcome counter and, when a duration is given,
// pushes it onto the tier's rolling buffer, dropping the oldest sample
// past the window.
func (c *Collector) Record(tier string, outcome Outcome, d time.Duration) {
	ts := c.statsFor(tier)

	switch outcome {
	case Hit:
		ts.hits.Add(1)
	case Miss:
		ts.misses.Add(1)
	case Error:
		ts.errors.Add(1)
	}

	if d >= 0 {
		ts.sampleMu.Lock()
		ts.samples = append(ts.samples, d)
		if len(ts.samples) > sampleWindow {
			ts.samples = ts.samples[1:]
		}
		ts.sampleMu.Unlock()
	}
}

// Report snapshots every tier.
func (c *Collector) Report() map[string]TierReport {
	c.mu.RLock()
	defer c.mu.RUnlock()

	report := make(map[string]TierReport, len(c.tiers))
	for name, ts := range c.tiers {
		hits, misses, errs := ts.hits.Load(), ts.misses.Load(), ts.errors.Load()

		var rate float64
		if total := hits + misses; total > 0 {
			rate = float64(hits) / float64(total) * 100
		}

		var avg time.Duration
		ts.sampleMu.Lock()
		if n := len(ts.samples); n > 0 {
			var sum time.Duration
			for _, s := range ts.samples {
				sum += s
			}
			avg = sum / time.Duration(n)
		}
		ts.sampleMu.Unlock()

		report[name] = TierReport{
			Hits:       hits,
			Misses:     misses,
			Errors:     errs,
			HitRate:    rate,
			AvgLatency: avg,
		}
	}
	return report
}

func (c *Collector) statsFor(tier string) *tierStats {
	c.mu.RLock()
	ts, ok := c.tiers[tier]
	c.mu.RUnlock()
	if ok {
		return ts
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ts, ok = c.tiers[tier]; ok {
		return ts
	}
	ts = &tierStats{}
	c.tiers[tier] = ts
	return ts
}
