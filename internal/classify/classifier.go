package classify

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/Borislavv/go-tier-cache/config"
)

// Classifier maps an outbound request onto a tier or onto "uncacheable".
// Classification is pure, deterministic and total: every request lands
// on exactly one outcome and re-classifying is idempotent. The only
// caveat is the RPC body peek, which consumes and then restores req.Body.
type Classifier struct {
	cfg *config.Cache
}

func New(cfg *config.Cache) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify returns the matched tier, or ok=false for uncacheable.
//
// Order: no-cache path substrings, then the RPC method denylist (fail
// closed: a body that cannot be verified safe is never cached), then
// tier URL patterns in registration order.
func (c *Classifier) Classify(req *http.Request) (*config.Tier, bool) {
	url := req.URL.String()
	path := req.URL.Path

	if nc := c.cfg.NoCache; nc.Enabled() {
		for _, sub := range nc.PathSubstrings {
			if strings.Contains(url, sub) {
				return nil, false
			}
		}

		if nc.RPCPathMarker != "" && strings.Contains(path, nc.RPCPathMarker) {
			if denied := c.rpcDenied(req, nc); denied {
				return nil, false
			}
		}
	}

	for _, tier := range c.cfg.Tiers {
		if matchTier(tier, path) {
			return tier, true
		}
	}

	return nil, false
}

// rpcDenied peeks at the JSON body of an RPC request and checks its
// method against the denylist. Anything unverifiable (missing body,
// oversized body, malformed JSON) is denied.
func (c *Classifier) rpcDenied(req *http.Request, nc *config.NoCacheCfg) bool {
	if req.Body == nil {
		return true
	}

	peek, err := io.ReadAll(io.LimitReader(req.Body, nc.RPCBodyLimitBytes+1))
	// restore the body for the downstream fetch, whatever the outcome
	req.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(peek), req.Body), req.Body}

	if err != nil || int64(len(peek)) > nc.RPCBodyLimitBytes {
		return true
	}

	var body struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(peek, &body); err != nil || body.Method == "" {
		return true
	}

	for _, m := range nc.RPCMethods {
		if body.Method == m {
			return true
		}
	}
	return false
}

// matchTier tests one tier's patterns: a leading '/' matches by
// substring-of-path, anything else matches by suffix.
func matchTier(tier *config.Tier, path string) bool {
	for _, p := range tier.URLPatterns {
		if p == "" {
			continue
		}
		if p[0] == '/' {
			if strings.Contains(path, p) {
				return true
			}
		} else if strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}
