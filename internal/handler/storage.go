package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/coordinator"
	"github.com/Borislavv/go-tier-cache/internal/evictor"
	"github.com/Borislavv/go-tier-cache/internal/fetcher"
	"github.com/Borislavv/go-tier-cache/internal/metrics"
	"github.com/Borislavv/go-tier-cache/internal/refresher"
	"github.com/Borislavv/go-tier-cache/internal/shared/bytes"
	"github.com/Borislavv/go-tier-cache/internal/shared/cachedtime"
	"github.com/Borislavv/go-tier-cache/internal/store"
)

// StorageHandler overrides the pipeline for the external storage
// backend tier. Cache keys are normalized by stripping volatility-only
// query parameters, hits are validated against the tier schema version
// (a mismatch reads as a miss), and hits past the staleness horizon are
// served immediately while a background refetch runs.
type StorageHandler struct {
	cfg       *config.StorageCfg
	logger    *slog.Logger
	stores    *store.Stores
	evictor   evictor.Evictor
	fetcher   fetcher.Fetcher
	coord     *coordinator.Coordinator
	metrics   *metrics.Collector
	refresher refresher.Refresher
}

func NewStorage(
	cfg *config.StorageCfg,
	logger *slog.Logger,
	stores *store.Stores,
	ev evictor.Evictor,
	f fetcher.Fetcher,
	coord *coordinator.Coordinator,
	collector *metrics.Collector,
	rf refresher.Refresher,
) *StorageHandler {
	return &StorageHandler{
		cfg:       cfg,
		logger:    logger,
		stores:    stores,
		evictor:   ev,
		fetcher:   f,
		coord:     coord,
		metrics:   collector,
		refresher: rf,
	}
}

// NormalizeKey strips the configured volatile query parameters so two
// requests differing only in priority hints share one cache entry.
func (h *StorageHandler) NormalizeKey(u *url.URL) string {
	if len(h.cfg.StripParams) == 0 {
		return u.String()
	}

	q := u.Query()
	for _, p := range h.cfg.StripParams {
		q.Del(p)
	}

	normalized := *u
	normalized.RawQuery = q.Encode()
	return normalized.String()
}

func (h *StorageHandler) Handle(ctx context.Context, req *http.Request, tier *config.Tier) (*fetcher.Response, error) {
	start := time.Now()
	key := h.NormalizeKey(req.URL)
	st, ok := h.stores.Get(tier.Name)
	if !ok {
		st = h.stores.Ensure(tier.Name)
	}

	if e, ok := st.Get(key); ok && h.versionValid(e, tier) {
		if e.Age(cachedtime.Now()) > h.cfg.StaleAfter {
			h.scheduleRefresh(st, tier, key, req)
		}
		h.metrics.Record(tier.Name, metrics.Hit, time.Since(start))
		return Replay(e), nil
	}

	// miss, or a hit rejected by the schema version check
	var out *fetcher.Response
	var fromCache bool
	err := h.coord.AtomicUpdate(ctx, key, func() error {
		// a caller queued behind an in-flight fill may find its result
		if e, ok := st.Get(key); ok && h.versionValid(e, tier) {
			out, fromCache = Replay(e), true
			return nil
		}
		resp, err := fill(ctx, h.fetcher, h.evictor, st, tier, key, req)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	if err == nil {
		if fromCache {
			h.metrics.Record(tier.Name, metrics.Hit, time.Since(start))
		} else {
			h.metrics.Record(tier.Name, metrics.Miss, time.Since(start))
		}
		return out, nil
	}

	// fetch failed: serve whatever is cached, even a rejected version
	h.metrics.Record(tier.Name, metrics.Error, time.Since(start))
	if e, ok := st.Peek(key); ok {
		h.logger.Warn("storage fetch failed, serving stale", "key", key, "err", err)
		return Replay(e), nil
	}
	return nil, err
}

func (h *StorageHandler) versionValid(e *store.Entry, tier *config.Tier) bool {
	return tier.SchemaVersion == "" || e.SchemaVersion() == tier.SchemaVersion
}

// scheduleRefresh enqueues an opportunistic refetch-and-store. The
// already-served entry is never retracted on failure.
func (h *StorageHandler) scheduleRefresh(st *store.Store, tier *config.Tier, key string, req *http.Request) {
	clone := req.Clone(context.WithoutCancel(req.Context()))
	h.refresher.Enqueue(refresher.Job{
		Key:  key,
		Tier: tier.Name,
		Do: func(ctx context.Context) error {
			prev, hadPrev := st.Peek(key)
			resp, err := fill(ctx, h.fetcher, h.evictor, st, tier, key, clone.Clone(ctx))
			if err != nil {
				return err
			}
			if hadPrev && bytes.IsSamePayload(prev.Body(), resp.Body) {
				h.logger.Debug("background refresh found no change", "key", key)
			}
			return nil
		},
	})
}
