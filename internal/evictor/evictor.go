package evictor

import (
	"log/slog"
	"sort"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/store"
)

// Evictor enforces per-tier entry caps with least-recently-used
// ordering. It runs synchronously after every successful put, so a put
// is never visible as over-limit for longer than that call.
type Evictor interface {
	Trim(tier *config.Tier, st *store.Store) int
	EffectiveMax(tier *config.Tier) int
	EvictorMetrics() (trims, evicted int64)
}

type LRUEvictor struct {
	cfg      *config.Cache
	logger   *slog.Logger
	counters *evictorCounters
}

func New(cfg *config.Cache, logger *slog.Logger) *LRUEvictor {
	return &LRUEvictor{
		cfg:      cfg,
		logger:   logger,
		counters: newEvictorCounters(),
	}
}

// EffectiveMax is the cap in force right now: the low-memory cap when
// the host is flagged low-memory (and the tier defines one), otherwise
// the tier's regular cap. Zero means unlimited.
func (e *LRUEvictor) EffectiveMax(tier *config.Tier) int {
	if e.cfg.Memory.LowMemory() && tier.LowMemoryMaxEntries > 0 {
		return tier.LowMemoryMaxEntries
	}
	return tier.MaxEntries
}

// Trim deletes the least-recently-read overflow. Ordering is ascending
// by last access with the write sequence as the stable tie-break, so
// for equal timestamps the first-seen entry is first evicted. This is
// LRU by last read, not by insertion: frequently re-read entries
// survive longer even when old.
func (e *LRUEvictor) Trim(tier *config.Tier, st *store.Store) int {
	max := e.EffectiveMax(tier)
	if max <= 0 {
		return 0
	}

	over := st.Len() - max
	if over <= 0 {
		return 0
	}

	entries := st.Entries()
	sort.Slice(entries, func(i, j int) bool {
		ti, tj := entries[i].LastAccessedAt(), entries[j].LastAccessedAt()
		if ti.Equal(tj) {
			return entries[i].Seq() < entries[j].Seq()
		}
		return ti.Before(tj)
	})

	var evicted int
	for _, victim := range entries[:over] {
		if st.Delete(victim.Key()) {
			evicted++
		}
	}

	e.counters.trims.Add(1)
	e.counters.evicted.Add(int64(evicted))
	if evicted > 0 {
		e.logger.Debug("evicted lru overflow", "tier", tier.Name, "evicted", evicted, "max", max)
	}
	return evicted
}

func (e *LRUEvictor) EvictorMetrics() (trims, evicted int64) {
	return e.counters.snapshot()
}
