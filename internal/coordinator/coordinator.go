package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/benbjohnson/clock"
	"github.com/zeebo/xxh3"
)

const lockStripes = 16 // power of two, xxh3-striped

// Coordinator serializes cache-fill operations per key. A second caller
// for a key with an in-flight update waits for the holder's release
// instead of issuing a duplicate fetch (the stampede guard). A timer
// force-releases a lock held past the configured timeout so a hung
// fetch cannot block its key forever; waiters are not told the release
// was forced, they just proceed.
type Coordinator struct {
	cfg     config.LockCfg
	clk     clock.Clock
	logger  *slog.Logger
	stripes [lockStripes]*stripe
	forced  atomic.Int64
}

type stripe struct {
	mu    sync.Mutex
	locks map[string]*lock
}

type lock struct {
	released  chan struct{}
	once      sync.Once
	heldSince time.Time
}

func New(cfg config.LockCfg, clk clock.Clock, logger *slog.Logger) *Coordinator {
	c := &Coordinator{cfg: cfg, clk: clk, logger: logger}
	for i := range c.stripes {
		c.stripes[i] = &stripe{locks: make(map[string]*lock)}
	}
	return c
}

// AtomicUpdate runs fn while holding the key's lock. Release happens in
// a defer so it survives an fn error. Callers should re-check the store
// once inside fn: after queueing behind another update the work may
// already be done.
func (c *Coordinator) AtomicUpdate(ctx context.Context, key string, fn func() error) error {
	st := c.stripeFor(key)

	for {
		st.mu.Lock()
		if held, ok := st.locks[key]; ok {
			st.mu.Unlock()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-held.released:
				continue
			}
		}

		l := &lock{released: make(chan struct{}), heldSince: c.clk.Now()}
		st.locks[key] = l
		st.mu.Unlock()

		timer := c.clk.AfterFunc(c.cfg.Timeout, func() {
			c.forced.Add(1)
			c.logger.Warn("update lock force released", "key", key, "timeout", c.cfg.Timeout.String())
			c.release(st, key, l)
		})

		defer func() {
			timer.Stop()
			c.release(st, key, l)
		}()
		return fn()
	}
}

// Held reports whether the key currently has an in-flight update.
func (c *Coordinator) Held(key string) bool {
	st := c.stripeFor(key)
	st.mu.Lock()
	_, ok := st.locks[key]
	st.mu.Unlock()
	return ok
}

// ForcedReleases counts locks released by timeout. Surfaced through
// telemetry; not an error for callers.
func (c *Coordinator) ForcedReleases() int64 {
	return c.forced.Load()
}

func (c *Coordinator) stripeFor(key string) *stripe {
	return c.stripes[xxh3.HashString(key)&(lockStripes-1)]
}

// release is idempotent and identity-checked: a forced release must not
// remove the next holder's lock under the same key.
func (c *Coordinator) release(st *stripe, key string, l *lock) {
	l.once.Do(func() {
		st.mu.Lock()
		if cur, ok := st.locks[key]; ok && cur == l {
			delete(st.locks, key)
		}
		st.mu.Unlock()
		close(l.released)
	})
}
