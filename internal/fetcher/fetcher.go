package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/benbjohnson/clock"
)

// ErrBadStatus marks an upstream response outside the 2xx/3xx range.
var ErrBadStatus = errors.New("upstream returned failure status")

// Response is a fully drained snapshot of an upstream response, safe to
// store and to replay to any number of callers.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r *Response) OK() bool {
	return r.Status >= http.StatusOK && r.Status < http.StatusBadRequest
}

// Fetcher performs the actual network fetch with bounded retry.
type Fetcher interface {
	FetchWithRetry(ctx context.Context, req *http.Request) (*Response, error)
}

type HTTPFetcher struct {
	cfg       config.FetchCfg
	transport http.RoundTripper
	clk       clock.Clock
	logger    *slog.Logger
}

func New(cfg config.FetchCfg, transport http.RoundTripper, clk clock.Clock, logger *slog.Logger) *HTTPFetcher {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &HTTPFetcher{cfg: cfg, transport: transport, clk: clk, logger: logger}
}

// FetchWithRetry attempts the fetch up to MaxRetries+1 times. A
// transport error or a non-2xx/3xx status counts as a failure. Between
// attempts it waits BackoffUnit*attempt (linear backoff: 1s, 2s with
// defaults). The last error is returned once retries are exhausted.
func (f *HTTPFetcher) FetchWithRetry(ctx context.Context, req *http.Request) (*Response, error) {
	attempts := f.cfg.MaxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := f.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt < attempts {
			f.logger.Debug("fetch failed, backing off",
				"url", req.URL.String(), "attempt", attempt, "err", err)

			timer := f.clk.Timer(f.cfg.BackoffUnit * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return nil, fmt.Errorf("fetch %s: retries exhausted: %w", req.URL, lastErr)
}

func (f *HTTPFetcher) attempt(ctx context.Context, req *http.Request) (*Response, error) {
	attempt := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replay request body: %w", err)
		}
		attempt.Body = body
	}

	resp, err := f.transport.RoundTrip(attempt)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}
