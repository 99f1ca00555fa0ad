package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/classify"
	"github.com/Borislavv/go-tier-cache/internal/coordinator"
	"github.com/Borislavv/go-tier-cache/internal/evictor"
	"github.com/Borislavv/go-tier-cache/internal/fetcher"
	"github.com/Borislavv/go-tier-cache/internal/handler"
	"github.com/Borislavv/go-tier-cache/internal/metrics"
	"github.com/Borislavv/go-tier-cache/internal/shared/cachedtime"
	"github.com/Borislavv/go-tier-cache/internal/store"
)

// Pipeline is the intercepting transport. Every outbound request is
// classified; unclassified requests pass to the network untouched,
// untimed and unrecorded. Classified requests run the cache state
// machine, with the storage-backend and fast-path overrides routed to
// their handlers. Exactly one metric is recorded per terminal state.
type Pipeline struct {
	cfg        *config.Cache
	logger     *slog.Logger
	classifier *classify.Classifier
	stores     *store.Stores
	evictor    evictor.Evictor
	fetcher    fetcher.Fetcher
	coord      *coordinator.Coordinator
	metrics    *metrics.Collector
	transport  http.RoundTripper
	storage    *handler.StorageHandler
	fastPath   *handler.FastPathHandler
}

func New(
	cfg *config.Cache,
	logger *slog.Logger,
	classifier *classify.Classifier,
	stores *store.Stores,
	ev evictor.Evictor,
	f fetcher.Fetcher,
	coord *coordinator.Coordinator,
	collector *metrics.Collector,
	transport http.RoundTripper,
	storage *handler.StorageHandler,
	fastPath *handler.FastPathHandler,
) *Pipeline {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Pipeline{
		cfg:        cfg,
		logger:     logger,
		classifier: classifier,
		stores:     stores,
		evictor:    ev,
		fetcher:    f,
		coord:      coord,
		metrics:    collector,
		transport:  transport,
		storage:    storage,
		fastPath:   fastPath,
	}
}

var _ http.RoundTripper = (*Pipeline)(nil)

func (p *Pipeline) RoundTrip(req *http.Request) (*http.Response, error) {
	tier, ok := p.classifier.Classify(req)
	if !ok {
		return p.transport.RoundTrip(req)
	}

	ctx := req.Context()

	var resp *fetcher.Response
	var err error
	switch {
	case p.fastPath != nil && (tier.Name == p.cfg.FastPath.Tier || p.fastPath.Flagged(req)):
		resp, err = p.fastPath.Handle(ctx, req, tier)
	case p.storage != nil && tier.Name == p.cfg.Storage.Tier:
		resp, err = p.storage.Handle(ctx, req, tier)
	default:
		resp, err = p.serve(ctx, req, tier)
	}
	if err != nil {
		return nil, err
	}

	return toHTTPResponse(req, resp), nil
}

// serve is the generic tier flow: fresh hit, else coordinated fetch,
// else stale fallback, else propagate.
func (p *Pipeline) serve(ctx context.Context, req *http.Request, tier *config.Tier) (*fetcher.Response, error) {
	start := time.Now()
	key := req.URL.String()
	st, ok := p.stores.Get(tier.Name)
	if !ok {
		st = p.stores.Ensure(tier.Name)
	}

	if e, ok := st.Get(key); ok && e.Fresh(cachedtime.Now()) {
		p.metrics.Record(tier.Name, metrics.Hit, time.Since(start))
		return handler.Replay(e), nil
	}

	var out *fetcher.Response
	var fromCache bool
	err := p.coord.AtomicUpdate(ctx, key, func() error {
		// a caller queued behind an in-flight fill finds its result
		// here instead of fetching again
		if e, ok := st.Get(key); ok && e.Fresh(cachedtime.Now()) {
			out, fromCache = handler.Replay(e), true
			return nil
		}
		resp, fetchErr := p.fetcher.FetchWithRetry(ctx, req)
		if fetchErr != nil {
			return fetchErr
		}
		p.storeAndTrim(st, tier, key, resp)
		out = resp
		return nil
	})
	if err == nil {
		if fromCache {
			p.metrics.Record(tier.Name, metrics.Hit, time.Since(start))
		} else {
			p.metrics.Record(tier.Name, metrics.Miss, time.Since(start))
		}
		return out, nil
	}

	// the error outcome is recorded whether or not stale data saves us
	p.metrics.Record(tier.Name, metrics.Error, time.Since(start))

	if e, ok := st.Peek(key); ok {
		p.logger.Warn("fetch failed, serving stale entry", "tier", tier.Name, "key", key, "err", err)
		return handler.Replay(e), nil
	}

	return nil, fmt.Errorf("no cached fallback for %s: %w", key, err)
}

func (p *Pipeline) storeAndTrim(st *store.Store, tier *config.Tier, key string, resp *fetcher.Response) {
	st.Put(store.NewEntry(key, resp.Status, resp.Header.Clone(), resp.Body, tier))
	p.evictor.Trim(tier, st)
}

func toHTTPResponse(req *http.Request, r *fetcher.Response) *http.Response {
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", r.Status, http.StatusText(r.Status)),
		StatusCode:    r.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        r.Header,
		Body:          io.NopCloser(bytes.NewReader(r.Body)),
		ContentLength: int64(len(r.Body)),
		Request:       req,
	}
}
