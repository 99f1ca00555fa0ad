package lifecycle

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/evictor"
	"github.com/Borislavv/go-tier-cache/internal/fetcher"
	"github.com/Borislavv/go-tier-cache/internal/metrics"
	"github.com/Borislavv/go-tier-cache/internal/store"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func lifecycleTestConfig() *config.Cache {
	cfg := &config.Cache{
		Version: "1.4.0",
		Tiers: []*config.Tier{
			{Name: "static", TTL: 24 * time.Hour, MaxEntries: 100, URLPatterns: []string{".css", ".js"}},
			{Name: "api", TTL: 5 * time.Minute, MaxEntries: 100, URLPatterns: []string{"/api/"}},
		},
		Lifecycle: config.LifecycleCfg{StaticTier: "static"},
	}
	cfg.AdjustConfig()
	return cfg
}

func newTestController(t *testing.T, cfg *config.Cache) (*Controller, *store.Stores, *metrics.Collector) {
	t.Helper()
	stores := store.NewStores(cfg)
	collector := metrics.New()
	c := New(
		cfg,
		slog.Default(),
		stores,
		evictor.New(cfg, slog.Default()),
		fetcher.New(cfg.Fetch, http.DefaultTransport, clock.New(), slog.Default()),
		collector,
		nil,
	)
	return c, stores, collector
}

func TestInstall_WarmsStaticTierAndToleratesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken.js" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("asset: " + r.URL.Path))
	}))
	defer srv.Close()

	cfg := lifecycleTestConfig()
	cfg.Fetch.MaxRetries = 1
	cfg.Fetch.BackoffUnit = time.Millisecond
	cfg.Lifecycle.PrecacheURLs = []string{
		srv.URL + "/app.css",
		srv.URL + "/broken.js",
		srv.URL + "/main.js",
	}
	c, stores, _ := newTestController(t, cfg)

	c.Install(testContext(t))

	st, ok := stores.Get("static")
	require.True(t, ok)
	require.Equal(t, 2, st.Len(), "the broken asset is skipped, the rest are warmed")

	e, ok := st.Peek(srv.URL + "/app.css")
	require.True(t, ok)
	require.Equal(t, []byte("asset: /app.css"), e.Body())
}

func TestActivate_DropsSupersededCaches(t *testing.T) {
	cfg := lifecycleTestConfig()
	c, stores, _ := newTestController(t, cfg)

	// a store left behind by an older configuration, e.g. loaded from
	// a dump snapshot
	old := stores.Ensure("legacy-api")
	old.Put(store.NewEntry("/api/v0/x", http.StatusOK, http.Header{}, []byte("x"), &config.Tier{Name: "legacy-api", TTL: time.Hour}))

	c.Activate(testContext(t))

	_, ok := stores.Get("legacy-api")
	require.False(t, ok)
	_, ok = stores.Get("static")
	require.True(t, ok)
	_, ok = stores.Get("api")
	require.True(t, ok)
}

func TestHandle_InvalidateCache(t *testing.T) {
	cfg := lifecycleTestConfig()
	c, stores, _ := newTestController(t, cfg)

	st := stores.Ensure("api")
	tier := cfg.TierByName("api")
	st.Put(store.NewEntry("/api/a", http.StatusOK, http.Header{}, []byte("a"), tier))
	st.Put(store.NewEntry("/api/b", http.StatusOK, http.Header{}, []byte("b"), tier))

	// single-key invalidation
	_, err := c.Handle(InvalidateCache{CacheName: "api", URL: "/api/a"})
	require.NoError(t, err)
	_, ok := st.Peek("/api/a")
	require.False(t, ok)
	_, ok = st.Peek("/api/b")
	require.True(t, ok)

	// whole-tier invalidation
	_, err = c.Handle(InvalidateCache{CacheName: "api"})
	require.NoError(t, err)
	require.Equal(t, 0, st.Len())

	// unknown tier is an error, not a silent no-op
	_, err = c.Handle(InvalidateCache{CacheName: "nope"})
	require.Error(t, err)
}

func TestHandle_ClearAllCaches(t *testing.T) {
	cfg := lifecycleTestConfig()
	c, stores, _ := newTestController(t, cfg)

	stores.Ensure("static").Put(store.NewEntry("/a.css", http.StatusOK, http.Header{}, []byte("a"), cfg.TierByName("static")))
	stores.Ensure("api").Put(store.NewEntry("/api/a", http.StatusOK, http.Header{}, []byte("a"), cfg.TierByName("api")))

	_, err := c.Handle(ClearAllCaches{})
	require.NoError(t, err)
	require.Equal(t, 0, stores.Ensure("static").Len())
	require.Equal(t, 0, stores.Ensure("api").Len())
}

func TestHandle_GetVersion(t *testing.T) {
	cfg := lifecycleTestConfig()
	c, _, _ := newTestController(t, cfg)

	out, err := c.Handle(GetVersion{})
	require.NoError(t, err)
	require.Equal(t, VersionInfo{Type: TypeVersionInfo, Version: "1.4.0"}, out)
}

func TestHandle_GetMetricsFormatsHitRate(t *testing.T) {
	cfg := lifecycleTestConfig()
	c, _, collector := newTestController(t, cfg)

	for i := 0; i < 3; i++ {
		collector.Record("api", metrics.Hit, 10*time.Millisecond)
	}
	collector.Record("api", metrics.Miss, 40*time.Millisecond)

	out, err := c.Handle(GetMetrics{})
	require.NoError(t, err)
	report, ok := out.(MetricsReport)
	require.True(t, ok)
	require.Equal(t, TypeMetricsReport, report.Type)

	api := report.Stats["api"]
	require.Equal(t, "75.00%", api.HitRate)
	require.Equal(t, int64(3), api.Hits)
	require.Equal(t, int64(1), api.Misses)
}

func TestHandle_UnknownMessage(t *testing.T) {
	cfg := lifecycleTestConfig()
	c, _, _ := newTestController(t, cfg)

	_, err := c.Handle(nil)
	require.ErrorIs(t, err, ErrUnknownMessage)
}

func TestCheckVersion_BroadcastsOnNewerVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version":"2.0.0"}`))
	}))
	defer srv.Close()

	cfg := lifecycleTestConfig()
	cfg.Lifecycle.VersionURL = srv.URL + "/version.json"
	c, stores, _ := newTestController(t, cfg)

	st := stores.Ensure("api")
	st.Put(store.NewEntry("/api/a", http.StatusOK, http.Header{}, []byte("a"), cfg.TierByName("api")))

	var mu sync.Mutex
	var got []Notification
	c.Subscribe(func(n Notification) {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
	})

	require.NoError(t, c.CheckVersion(testContext(t)))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	require.Equal(t, Notification{Type: TypeUpdateAvailable, Version: "2.0.0"}, got[0])
	require.Equal(t, 1, st.Len(), "a version broadcast never invalidates anything")
}

func TestCheckVersion_SameVersionStaysQuiet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version":"1.4.0"}`))
	}))
	defer srv.Close()

	cfg := lifecycleTestConfig()
	cfg.Lifecycle.VersionURL = srv.URL + "/version.json"
	c, _, _ := newTestController(t, cfg)

	var called bool
	c.Subscribe(func(Notification) { called = true })

	require.NoError(t, c.CheckVersion(testContext(t)))
	require.False(t, called)
}

func TestSkipWaiting_TriggersActivation(t *testing.T) {
	cfg := lifecycleTestConfig()
	c, stores, _ := newTestController(t, cfg)

	stores.Ensure("stale-tier")

	_, err := c.Handle(SkipWaiting{})
	require.NoError(t, err)
	_, ok := stores.Get("stale-tier")
	require.False(t, ok)
}
