package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/coordinator"
	"github.com/Borislavv/go-tier-cache/internal/evictor"
	"github.com/Borislavv/go-tier-cache/internal/fetcher"
	"github.com/Borislavv/go-tier-cache/internal/metrics"
	"github.com/Borislavv/go-tier-cache/internal/refresher"
	"github.com/Borislavv/go-tier-cache/internal/store"
	"github.com/benbjohnson/clock"
)

// FastPathHandler serves render-critical responses. Any cache hit is
// returned with no freshness check whatsoever, then refreshed in the
// background after a short delay. A miss fetches under a short
// deadline; on failure the handler falls back to any cached copy and,
// with nothing cached, to an unmediated network request as a last
// resort. Speed dominates freshness on this path.
type FastPathHandler struct {
	cfg       *config.FastPathCfg
	logger    *slog.Logger
	stores    *store.Stores
	evictor   evictor.Evictor
	fetcher   fetcher.Fetcher
	coord     *coordinator.Coordinator
	metrics   *metrics.Collector
	refresher refresher.Refresher
	transport http.RoundTripper
	clk       clock.Clock
}

func NewFastPath(
	cfg *config.FastPathCfg,
	logger *slog.Logger,
	stores *store.Stores,
	ev evictor.Evictor,
	f fetcher.Fetcher,
	coord *coordinator.Coordinator,
	collector *metrics.Collector,
	rf refresher.Refresher,
	transport http.RoundTripper,
	clk clock.Clock,
) *FastPathHandler {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &FastPathHandler{
		cfg:       cfg,
		logger:    logger,
		stores:    stores,
		evictor:   ev,
		fetcher:   f,
		coord:     coord,
		metrics:   collector,
		refresher: rf,
		transport: transport,
		clk:       clk,
	}
}

// Flagged reports whether the request is explicitly pinned to the fast
// path regardless of its tier.
func (h *FastPathHandler) Flagged(req *http.Request) bool {
	return h.cfg.PriorityHeader != "" && req.Header.Get(h.cfg.PriorityHeader) != ""
}

func (h *FastPathHandler) Handle(ctx context.Context, req *http.Request, tier *config.Tier) (*fetcher.Response, error) {
	start := time.Now()
	key := req.URL.String()
	st, ok := h.stores.Get(tier.Name)
	if !ok {
		st = h.stores.Ensure(tier.Name)
	}

	// staleness is irrelevant here: any hit returns immediately
	if e, ok := st.Get(key); ok {
		h.scheduleRefresh(st, tier, key, req)
		h.metrics.Record(tier.Name, metrics.Hit, time.Since(start))
		return Replay(e), nil
	}

	var out *fetcher.Response
	var fromCache bool
	err := h.coord.AtomicUpdate(ctx, key, func() error {
		if e, ok := st.Get(key); ok {
			out, fromCache = Replay(e), true
			return nil
		}

		deadline, cancel := context.WithTimeout(ctx, h.cfg.FetchTimeout)
		defer cancel()
		resp, err := fill(deadline, h.fetcher, h.evictor, st, tier, key, req.Clone(deadline))
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

	h.metrics.Record(tier.Name, metrics.Error, time.Since(start))

	// any cached copy beats a failure, even one a fresher policy rejected
	if e, ok := st.Peek(key); ok {
		h.logger.Warn("fast path fetch failed, serving cached copy", "key", key, "err", err)
		return Replay(e), nil
	}

	// last resort: hand the request to the network untouched
	h.logger.Warn("fast path fetch failed with empty cache, passing through", "key", key, "err", err)
	resp, passErr := h.transport.RoundTrip(req.Clone(ctx))
	if passErr != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return snapshot(resp)
}

// scheduleRefresh arms a delayed background refresh so the caller's hit
// is not taxed by revalidation work.
func (h *FastPathHandler) scheduleRefresh(st *store.Store, tier *config.Tier, key string, req *http.Request) {
	clone := req.Clone(context.WithoutCancel(req.Context()))
	h.clk.AfterFunc(h.cfg.RefreshDelay, func() {
		h.refresher.Enqueue(refresher.Job{
			Key:  key,
			Tier: tier.Name,
			Do: func(ctx context.Context) error {
				_, err := fill(ctx, h.fetcher, h.evictor, st, tier, key, clone.Clone(ctx))
				return err
			},
		})
	})
}
