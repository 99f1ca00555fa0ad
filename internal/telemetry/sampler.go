package telemetry

import (
	"github.com/Borislavv/go-tier-cache/internal/coordinator"
	"github.com/Borislavv/go-tier-cache/internal/evictor"
	"github.com/Borislavv/go-tier-cache/internal/refresher"
)

type sampler struct {
	evictor   evictor.Evictor
	coord     *coordinator.Coordinator
	refresher refresher.Refresher
}

func newSampler(e evictor.Evictor, c *coordinator.Coordinator, r refresher.Refresher) sampler {
	return sampler{evictor: e, coord: c, refresher: r}
}

// snapshot holds cumulative counters (monotonic).
type snapshot struct {
	evictorTrims   uint64
	evictedEntries uint64

	forcedReleases uint64

	refreshEnqueued uint64
	refreshDropped  uint64
	refreshDone     uint64
	refreshErrors   uint64
}

func (s sampler) snapshot() snapshot {
	trims, evicted := s.evictor.EvictorMetrics()
	enqueued, dropped, refreshed, errs := s.refresher.RefresherMetrics()

	return snapshot{
		evictorTrims:   uint64(max(trims, 0)),
		evictedEntries: uint64(max(evicted, 0)),

		forcedReleases: uint64(max(s.coord.ForcedReleases(), 0)),

		refreshEnqueued: uint64(max(enqueued, 0)),
		refreshDropped:  uint64(max(dropped, 0)),
		refreshDone:     uint64(max(refreshed, 0)),
		refreshErrors:   uint64(max(errs, 0)),
	}
}

// deltaSnapshot converts cumulative snapshots to per-interval deltas.
// If counters reset (cur < prev), it treats cur as the delta.
func deltaSnapshot(prev, cur snapshot) snapshot {
	return snapshot{
		evictorTrims:   delta(prev.evictorTrims, cur.evictorTrims),
		evictedEntries: delta(prev.evictedEntries, cur.evictedEntries),

		forcedReleases: delta(prev.forcedReleases, cur.forcedReleases),

		refreshEnqueued: delta(prev.refreshEnqueued, cur.refreshEnqueued),
		refreshDropped:  delta(prev.refreshDropped, cur.refreshDropped),
		refreshDone:     delta(prev.refreshDone, cur.refreshDone),
		refreshErrors:   delta(prev.refreshErrors, cur.refreshErrors),
	}
}

func delta(prev, cur uint64) uint64 {
	if cur >= prev {
		return cur - prev
	}
	return cur
}
