package refresher

import "sync/atomic"

type refresherCounters struct {
	enqueued  atomic.Int64
	dropped   atomic.Int64
	refreshed atomic.Int64
	errors    atomic.Int64
}

func newRefresherCounters() *refresherCounters {
	return &refresherCounters{}
}

func (c *refresherCounters) snapshot() (enqueued, dropped, refreshed, errors int64) {
	return c.enqueued.Load(), c.dropped.Load(), c.refreshed.Load(), c.errors.Load()
}
