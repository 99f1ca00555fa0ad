package evictor

import "sync/atomic"

type evictorCounters struct {
	trims   atomic.Int64
	evicted atomic.Int64
}

func newEvictorCounters() *evictorCounters {
	return &evictorCounters{}
}

func (c *evictorCounters) snapshot() (trims, evicted int64) {
	return c.trims.Load(), c.evicted.Load()
}
