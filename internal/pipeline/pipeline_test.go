package pipeline

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/classify"
	"github.com/Borislavv/go-tier-cache/internal/coordinator"
	"github.com/Borislavv/go-tier-cache/internal/evictor"
	"github.com/Borislavv/go-tier-cache/internal/fetcher"
	"github.com/Borislavv/go-tier-cache/internal/metrics"
	"github.com/Borislavv/go-tier-cache/internal/store"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func pipelineTestConfig() *config.Cache {
	cfg := &config.Cache{
		Tiers: []*config.Tier{
			{Name: "images", TTL: time.Hour, MaxEntries: 10, URLPatterns: []string{".png", ".jpg"}},
			{Name: "api", TTL: 5 * time.Minute, MaxEntries: 10, URLPatterns: []string{"/api/"}},
		},
		NoCache: &config.NoCacheCfg{
			PathSubstrings: []string{"/auth/"},
		},
	}
	cfg.AdjustConfig()
	return cfg
}

func newTestPipeline(t *testing.T, cfg *config.Cache, upstream http.RoundTripper) (*Pipeline, *metrics.Collector) {
	t.Helper()
	clk := clock.New()
	collector := metrics.New()
	p := New(
		cfg,
		slog.Default(),
		classify.New(cfg),
		store.NewStores(cfg),
		evictor.New(cfg, slog.Default()),
		fetcher.New(cfg.Fetch, upstream, clk, slog.Default()),
		coordinator.New(cfg.Lock, clk, slog.Default()),
		collector,
		upstream,
		nil,
		nil,
	)
	return p, collector
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestRoundTrip_MissThenHit(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	cfg := pipelineTestConfig()
	p, collector := newTestPipeline(t, cfg, http.DefaultTransport)
	client := &http.Client{Transport: p}

	resp, err := client.Get(srv.URL + "/api/products")
	require.NoError(t, err)
	require.Equal(t, `{"ok":true}`, readBody(t, resp))
	require.Equal(t, int64(1), calls.Load())

	resp, err = client.Get(srv.URL + "/api/products")
	require.NoError(t, err)
	require.Equal(t, `{"ok":true}`, readBody(t, resp))
	require.Equal(t, int64(1), calls.Load(), "the second request must be answered from cache")
	require.Equal(t, "api", resp.Header.Get(store.HeaderCacheType))

	report := collector.Report()["api"]
	require.Equal(t, int64(1), report.Hits)
	require.Equal(t, int64(1), report.Misses)
}

func TestRoundTrip_UnclassifiedBypassesCache(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("token"))
	}))
	defer srv.Close()

	cfg := pipelineTestConfig()
	p, collector := newTestPipeline(t, cfg, http.DefaultTransport)
	client := &http.Client{Transport: p}

	for i := 0; i < 3; i++ {
		resp, err := client.Get(srv.URL + "/auth/login")
		require.NoError(t, err)
		require.Equal(t, "token", readBody(t, resp))
		require.Empty(t, resp.Header.Get(store.HeaderCacheType))
	}
	require.Equal(t, int64(3), calls.Load(), "bypassed requests always reach the network")
	require.Empty(t, collector.Report(), "bypassed traffic is not metered")
}

func TestRoundTrip_SuffixPatternRoutesToImageTier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	cfg := pipelineTestConfig()
	p, _ := newTestPipeline(t, cfg, http.DefaultTransport)
	client := &http.Client{Transport: p}

	resp, err := client.Get(srv.URL + "/static/logo.png")
	require.NoError(t, err)
	readBody(t, resp)
	resp, err = client.Get(srv.URL + "/static/logo.png")
	require.NoError(t, err)
	readBody(t, resp)
	require.Equal(t, "images", resp.Header.Get(store.HeaderCacheType))
}

func TestRoundTrip_FetchFailureServesStale(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("good"))
	}))
	defer srv.Close()

	cfg := pipelineTestConfig()
	cfg.Tiers[1].TTL = time.Nanosecond // entries expire immediately
	cfg.Fetch.MaxRetries = 1
	cfg.Fetch.BackoffUnit = time.Millisecond
	p, collector := newTestPipeline(t, cfg, http.DefaultTransport)
	client := &http.Client{Transport: p}

	resp, err := client.Get(srv.URL + "/api/feed")
	require.NoError(t, err)
	require.Equal(t, "good", readBody(t, resp))

	fail.Store(true)
	time.Sleep(time.Millisecond) // let the entry expire

	resp, err = client.Get(srv.URL + "/api/feed")
	require.NoError(t, err)
	require.Equal(t, "good", readBody(t, resp), "the expired entry still beats a failing upstream")
	require.Equal(t, int64(1), collector.Report()["api"].Errors)
}

func TestRoundTrip_FetchFailureEmptyCacheReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := pipelineTestConfig()
	cfg.Fetch.MaxRetries = 1
	cfg.Fetch.BackoffUnit = time.Millisecond
	p, _ := newTestPipeline(t, cfg, http.DefaultTransport)
	client := &http.Client{Transport: p}

	_, err := client.Get(srv.URL + "/api/never-cached")
	require.Error(t, err)
}
