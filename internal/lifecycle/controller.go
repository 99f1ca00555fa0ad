package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/evictor"
	"github.com/Borislavv/go-tier-cache/internal/fetcher"
	"github.com/Borislavv/go-tier-cache/internal/metrics"
	"github.com/Borislavv/go-tier-cache/internal/store"
	"github.com/Borislavv/go-tier-cache/internal/store/dump"
)

var ErrUnknownMessage = errors.New("unknown control message")

// Controller owns install/activate/versioning. Install pre-warms the
// static tier and tolerates failure; activate purges every named cache
// not in the current tier set (version cleanup) before requests are
// accepted. The control-message interface serves administrative
// operations off the hot request path.
type Controller struct {
	cfg     *config.Cache
	logger  *slog.Logger
	stores  *store.Stores
	evictor evictor.Evictor
	fetcher fetcher.Fetcher
	metrics *metrics.Collector
	dumper  *dump.Dumper

	mu          sync.Mutex
	subscribers []func(Notification)
}

func New(
	cfg *config.Cache,
	logger *slog.Logger,
	stores *store.Stores,
	ev evictor.Evictor,
	f fetcher.Fetcher,
	collector *metrics.Collector,
	dumper *dump.Dumper,
) *Controller {
	return &Controller{
		cfg:     cfg,
		logger:  logger,
		stores:  stores,
		evictor: ev,
		fetcher: f,
		metrics: collector,
		dumper:  dumper,
	}
}

// Install pre-populates the static tier with the configured file set.
// Individual failures are logged and tolerated: activation proceeds
// with whatever was warmed.
func (c *Controller) Install(ctx context.Context) {
	tier := c.cfg.TierByName(c.cfg.Lifecycle.StaticTier)
	if tier == nil || len(c.cfg.Lifecycle.PrecacheURLs) == 0 {
		return
	}
	st, ok := c.stores.Get(tier.Name)
	if !ok {
		st = c.stores.Ensure(tier.Name)
	}

	var warmed int
	for _, raw := range c.cfg.Lifecycle.PrecacheURLs {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
		if err != nil {
			c.logger.Warn("precache url rejected", "url", raw, "err", err)
			continue
		}
		resp, err := c.fetcher.FetchWithRetry(ctx, req)
		if err != nil {
			c.logger.Warn("precache fetch failed", "url", raw, "err", err)
			continue
		}
		st.Put(store.NewEntry(req.URL.String(), resp.Status, resp.Header.Clone(), resp.Body, tier))
		warmed++
	}
	c.evictor.Trim(tier, st)

	c.logger.Info("install finished", "tier", tier.Name, "warmed", warmed, "wanted", len(c.cfg.Lifecycle.PrecacheURLs))
}

// Activate deletes every named cache not in the current tier set, then
// purges superseded dump versions.
func (c *Controller) Activate(ctx context.Context) {
	current := make(map[string]struct{}, len(c.cfg.Tiers))
	for _, t := range c.cfg.Tiers {
		current[t.Name] = struct{}{}
	}

	for _, name := range c.stores.Names() {
		if _, ok := current[name]; ok {
			continue
		}
		c.stores.Drop(name)
		c.logger.Info("dropped superseded cache", "tier", name)
	}

	if c.dumper != nil {
		if err := c.dumper.PurgeStale(); err != nil {
			c.logger.Warn("stale dump purge failed", "err", err)
		}
	}

	c.logger.Info("activated", "version", c.cfg.Version, "tiers", c.stores.Names())
}

// Handle dispatches one control message. Query messages return their
// typed response; commands return nil.
func (c *Controller) Handle(msg Message) (any, error) {
	switch m := msg.(type) {
	case SkipWaiting:
		c.Activate(context.Background())
		return nil, nil

	case InvalidateCache:
		st, ok := c.stores.Get(m.CacheName)
		if !ok {
			return nil, fmt.Errorf("invalidate: no cache named %q", m.CacheName)
		}
		if m.URL != "" {
			st.Delete(m.URL)
		} else {
			st.Clear()
		}
		return nil, nil

	case ClearAllCaches:
		c.stores.ClearAll()
		return nil, nil

	case GetVersion:
		return VersionInfo{Type: TypeVersionInfo, Version: c.cfg.Version}, nil

	case GetMetrics:
		return MetricsReport{Type: TypeMetricsReport, Stats: formatStats(c.metrics.Report())}, nil

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
}

// Subscribe registers a notification sink for version broadcasts.
func (c *Controller) Subscribe(fn func(Notification)) {
	c.mu.Lock()
	c.subscribers = append(c.subscribers, fn)
	c.mu.Unlock()
}

// CheckVersion probes the upstream version endpoint. A differing
// version is broadcast to every subscriber; nothing is invalidated,
// the signal only says an update is available.
func (c *Controller) CheckVersion(ctx context.Context) error {
	if c.cfg.Lifecycle.VersionURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Lifecycle.VersionURL, nil)
	if err != nil {
		return fmt.Errorf("version probe request: %w", err)
	}
	resp, err := c.fetcher.FetchWithRetry(ctx, req)
	if err != nil {
		return fmt.Errorf("version probe: %w", err)
	}

	var payload struct {
		Version string `json:"version"`
	}
	if err = json.Unmarshal(resp.Body, &payload); err != nil {
		return fmt.Errorf("version probe payload: %w", err)
	}

	if payload.Version == "" || payload.Version == c.cfg.Version {
		return nil
	}

	c.logger.Info("upstream version differs", "running", c.cfg.Version, "upstream", payload.Version)
	c.broadcast(Notification{Type: TypeUpdateAvailable, Version: payload.Version})
	return nil
}

func (c *Controller) broadcast(n Notification) {
	c.mu.Lock()
	subs := make([]func(Notification), len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()
	for _, fn := range subs {
		fn(n)
	}
}
