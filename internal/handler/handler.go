package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/evictor"
	"github.com/Borislavv/go-tier-cache/internal/fetcher"
	"github.com/Borislavv/go-tier-cache/internal/store"
)

// Handler is a policy override layered on the generic pipeline for one
// designated tier.
type Handler interface {
	Handle(ctx context.Context, req *http.Request, tier *config.Tier) (*fetcher.Response, error)
}

// Replay turns a stored entry back into a response, with the X-Cache-*
// contract merged over the stored headers.
func Replay(e *store.Entry) *fetcher.Response {
	h := e.Header().Clone()
	if h == nil {
		h = make(http.Header)
	}
	for k, vv := range e.CacheHeader() {
		h[k] = vv
	}
	return &fetcher.Response{
		Status: e.Status(),
		Header: h,
		Body:   e.Body(),
	}
}

// fill fetches fresh data, writes it back under key and trims the tier.
// The store write cannot reject in-memory, so the response is always
// returned once the fetch succeeded.
func fill(
	ctx context.Context,
	f fetcher.Fetcher,
	ev evictor.Evictor,
	st *store.Store,
	tier *config.Tier,
	key string,
	req *http.Request,
) (*fetcher.Response, error) {
	resp, err := f.FetchWithRetry(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fill %s: %w", key, err)
	}

	st.Put(store.NewEntry(key, resp.Status, resp.Header.Clone(), resp.Body, tier))
	ev.Trim(tier, st)

	return resp, nil
}

// snapshot drains a live http.Response into a replayable one.
func snapshot(resp *http.Response) (*fetcher.Response, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read passthrough body: %w", err)
	}
	return &fetcher.Response{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}
