package coordinator

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func lockCfg() config.LockCfg {
	return config.LockCfg{Timeout: 5 * time.Second}
}

// TestAtomicUpdate_StampedeGuard verifies N concurrent fills for one
// uncached key produce exactly one fetch: every later caller re-checks
// state under the lock and finds the first caller's result.
func TestAtomicUpdate_StampedeGuard(t *testing.T) {
	c := New(lockCfg(), clock.New(), slog.Default())

	var fetches atomic.Int64
	var filled atomic.Bool

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.AtomicUpdate(testContext(t), "/api/products/42", func() error {
				if filled.Load() {
					return nil
				}
				fetches.Add(1)
				time.Sleep(10 * time.Millisecond) // simulate the network fetch
				filled.Store(true)
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1), fetches.Load())
	require.False(t, c.Held("/api/products/42"))
}

// TestAtomicUpdate_ReleasesOnError verifies the lock is released even
// when fn fails.
func TestAtomicUpdate_ReleasesOnError(t *testing.T) {
	c := New(lockCfg(), clock.New(), slog.Default())

	boom := func() error { return errTest }
	require.ErrorIs(t, c.AtomicUpdate(testContext(t), "k", boom), errTest)
	require.False(t, c.Held("k"))

	// the key is immediately usable again
	require.NoError(t, c.AtomicUpdate(testContext(t), "k", func() error { return nil }))
}

// TestAtomicUpdate_IndependentKeys verifies no cross-key serialization.
func TestAtomicUpdate_IndependentKeys(t *testing.T) {
	c := New(lockCfg(), clock.New(), slog.Default())

	blockA := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = c.AtomicUpdate(testContext(t), "a", func() error {
			close(started)
			<-blockA
			return nil
		})
	}()

	<-started
	done := make(chan struct{})
	go func() {
		_ = c.AtomicUpdate(testContext(t), "b", func() error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("update for key b was blocked by key a")
	}
	close(blockA)
}

// TestAtomicUpdate_ForceRelease verifies the safety valve: a hung
// holder is released after the timeout and a new caller proceeds.
func TestAtomicUpdate_ForceRelease(t *testing.T) {
	mock := clock.NewMock()
	c := New(lockCfg(), mock, slog.Default())

	hang := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = c.AtomicUpdate(testContext(t), "slow", func() error {
			close(started)
			<-hang
			return nil
		})
	}()
	<-started

	require.True(t, c.Held("slow"))
	mock.Add(5 * time.Second)

	require.Eventually(t, func() bool {
		return !c.Held("slow")
	}, time.Second, time.Millisecond)
	require.Equal(t, int64(1), c.ForcedReleases())

	// a new caller acquires the key while the old fn still hangs
	require.NoError(t, c.AtomicUpdate(testContext(t), "slow", func() error { return nil }))

	// the old holder finishing later must not disturb the key
	close(hang)
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, c.AtomicUpdate(testContext(t), "slow", func() error { return nil }))
}

var errTest = errors.New("test error")
