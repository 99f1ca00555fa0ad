package cachedtime

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Borislavv/go-tier-cache/config"
)

// Coarse cached wall clock. Entry stamping and freshness checks read the
// clock on every request; a 10ms-resolution cached value keeps those
// reads cheap on the hot path. When not running, every call falls
// through to time.Now so the package is safe to use without setup.

const resolution = 10 * time.Millisecond

var (
	nowUnix atomic.Int64
	running atomic.Bool
)

// RunIfEnabled starts the coarse clock when cfg.CacheTimeEnabled is set.
// The clock stops on ctx cancel. Repeated calls while running are no-ops.
func RunIfEnabled(ctx context.Context, cfg *config.Cache) {
	if cfg == nil || !cfg.CacheTimeEnabled {
		return
	}
	if !running.CompareAndSwap(false, true) {
		return
	}
	nowUnix.Store(time.Now().UnixNano())

	go func() {
		ticker := time.NewTicker(resolution)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				running.Store(false)
				return
			case tt := <-ticker.C:
				nowUnix.Store(tt.UnixNano())
			}
		}
	}()
}

func Now() time.Time {
	if running.Load() {
		return time.Unix(0, nowUnix.Load())
	}
	return time.Now()
}

func UnixNano() int64 {
	if running.Load() {
		return nowUnix.Load()
	}
	return time.Now().UnixNano()
}

func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}
