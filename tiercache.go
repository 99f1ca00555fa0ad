package tiercache

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/classify"
	"github.com/Borislavv/go-tier-cache/internal/coordinator"
	"github.com/Borislavv/go-tier-cache/internal/evictor"
	"github.com/Borislavv/go-tier-cache/internal/fetcher"
	"github.com/Borislavv/go-tier-cache/internal/handler"
	"github.com/Borislavv/go-tier-cache/internal/lifecycle"
	"github.com/Borislavv/go-tier-cache/internal/metrics"
	"github.com/Borislavv/go-tier-cache/internal/pipeline"
	"github.com/Borislavv/go-tier-cache/internal/refresher"
	"github.com/Borislavv/go-tier-cache/internal/shared/cachedtime"
	"github.com/Borislavv/go-tier-cache/internal/store"
	"github.com/Borislavv/go-tier-cache/internal/store/dump"
	"github.com/Borislavv/go-tier-cache/internal/telemetry"
	"github.com/benbjohnson/clock"
)

// CacheManager owns every piece of the caching pipeline: the per-tier
// stores, the classifier, the eviction engine, the update coordinator
// and the lifecycle controller. One instance per process; there is no
// package-level state.
type CacheManager struct {
	cfg        *config.Cache
	logger     *slog.Logger
	stores     *store.Stores
	evictor    *evictor.LRUEvictor
	coord      *coordinator.Coordinator
	collector  *metrics.Collector
	refresher  refresher.Refresher
	pipeline   *pipeline.Pipeline
	controller *lifecycle.Controller
	telemetry  telemetry.Logger
	dumper     *dump.Dumper
	cls        context.CancelFunc
}

// New builds a CacheManager over http.DefaultTransport. The config must
// have AdjustConfig applied (LoadConfig does that).
func New(ctx context.Context, cfg *config.Cache, logger *slog.Logger) *CacheManager {
	return NewWithTransport(ctx, cfg, logger, nil)
}

// NewWithTransport is New with an explicit upstream transport, for hosts
// that already wrap theirs and for tests.
func NewWithTransport(ctx context.Context, cfg *config.Cache, logger *slog.Logger, transport http.RoundTripper) *CacheManager {
	ctx, cancel := context.WithCancel(ctx)
	cachedtime.RunIfEnabled(ctx, cfg)

	if transport == nil {
		transport = http.DefaultTransport
	}

	clk := clock.New()
	stores := store.NewStores(cfg)
	ev := evictor.New(cfg, logger)
	f := fetcher.New(cfg.Fetch, transport, clk, logger)
	coord := coordinator.New(cfg.Lock, clk, logger)
	collector := metrics.New()
	rf := refresher.New(ctx, cfg.Refresh, logger)

	var storage *handler.StorageHandler
	if cfg.Storage.Enabled() {
		storage = handler.NewStorage(cfg.Storage, logger, stores, ev, f, coord, collector, rf)
	}
	var fastPath *handler.FastPathHandler
	if cfg.FastPath.Enabled() {
		fastPath = handler.NewFastPath(cfg.FastPath, logger, stores, ev, f, coord, collector, rf, transport, clk)
	}

	var dumper *dump.Dumper
	if cfg.Dump.Enabled() {
		dumper = dump.New(cfg.Dump, cfg.Version, stores)
		if err := dumper.Load(ctx); err != nil {
			logger.Warn("dump load skipped", "err", err)
		}
	}

	pipe := pipeline.New(cfg, logger, classify.New(cfg), stores, ev, f, coord, collector, transport, storage, fastPath)
	controller := lifecycle.New(cfg, logger, stores, ev, f, collector, dumper)
	telemeter := telemetry.New(ctx, cfg, logger, stores, ev, coord, rf, collector)

	return &CacheManager{
		cfg:        cfg,
		logger:     logger,
		stores:     stores,
		evictor:    ev,
		coord:      coord,
		collector:  collector,
		refresher:  rf,
		pipeline:   pipe,
		controller: controller,
		telemetry:  telemeter,
		dumper:     dumper,
		cls:        cancel,
	}
}

// RoundTripper returns the intercepting transport. Plug it into an
// http.Client to route its traffic through the cache.
func (m *CacheManager) RoundTripper() http.RoundTripper {
	return m.pipeline
}

// Client is a convenience wrapper around RoundTripper.
func (m *CacheManager) Client() *http.Client {
	return &http.Client{Transport: m.pipeline}
}

// Install warms the static tier with the configured precache set.
func (m *CacheManager) Install(ctx context.Context) {
	m.controller.Install(ctx)
}

// Activate drops stores belonging to tiers no longer configured and
// purges dump snapshots written by other versions.
func (m *CacheManager) Activate(ctx context.Context) {
	m.controller.Activate(ctx)
}

// Handle dispatches a control message and returns its reply payload,
// or nil for fire-and-forget messages.
func (m *CacheManager) Handle(msg lifecycle.Message) (any, error) {
	return m.controller.Handle(msg)
}

// Subscribe registers a callback for out-of-band notifications such as
// UPDATE_AVAILABLE.
func (m *CacheManager) Subscribe(fn func(lifecycle.Notification)) {
	m.controller.Subscribe(fn)
}

// CheckVersion probes the upstream version endpoint once.
func (m *CacheManager) CheckVersion(ctx context.Context) error {
	return m.controller.CheckVersion(ctx)
}

// Report snapshots per-tier hit, miss and latency statistics.
func (m *CacheManager) Report() map[string]metrics.TierReport {
	return m.collector.Report()
}

// Dump persists every store to disk when dumping is configured.
func (m *CacheManager) Dump(ctx context.Context) error {
	if m.dumper == nil {
		return nil
	}
	return m.dumper.Dump(ctx)
}

// Close persists state if dumping is enabled and stops every background
// worker. The manager must not be used afterwards.
func (m *CacheManager) Close() error {
	if m.dumper != nil {
		if err := m.dumper.Dump(context.Background()); err != nil {
			m.logger.Error("dump on close failed", "err", err)
		}
	}
	m.cls()
	return nil
}
