package refresher

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/shared/rate"
	"golang.org/x/sync/singleflight"
)

// Job is one background revalidation request. Do must fetch fresh data
// and write it back; its errors are counted and logged, never surfaced
// to the caller who already received a response.
type Job struct {
	Key  string
	Tier string
	Do   func(ctx context.Context) error
}

type Refresher interface {
	Enqueue(job Job) bool
	RefresherMetrics() (enqueued, dropped, refreshed, errors int64)
	Close() error
}

// RefreshWorker drains handler-enqueued jobs through a rate-limited
// consumer pool. Concurrent jobs for the same key collapse into one
// refresh via singleflight.
type RefreshWorker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.RefreshCfg
	logger   *slog.Logger
	jitter   *rate.Jitter
	group    singleflight.Group
	counters *refresherCounters
	invokeCh chan Job
}

func New(ctx context.Context, cfg *config.RefreshCfg, logger *slog.Logger) Refresher {
	if !cfg.Enabled() {
		return &NoOpRefresher{}
	}

	ctx, cancel := context.WithCancel(ctx)
	return (&RefreshWorker{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger,
		jitter:   rate.NewJitter(ctx, cfg.Rate),
		counters: newRefresherCounters(),
		invokeCh: make(chan Job, cfg.QueueCap),
	}).run()
}

// Enqueue offers a job to the queue. A full queue drops the job: losing
// a background refresh only means the entry stays stale until the next
// demand-driven fill.
func (w *RefreshWorker) Enqueue(job Job) bool {
	select {
	case <-w.ctx.Done():
		return false
	case w.invokeCh <- job:
		w.counters.enqueued.Add(1)
		return true
	default:
		w.counters.dropped.Add(1)
		return false
	}
}

func (w *RefreshWorker) RefresherMetrics() (enqueued, dropped, refreshed, errors int64) {
	return w.counters.snapshot()
}

func (w *RefreshWorker) Close() error {
	w.cancel()
	return nil
}

func (w *RefreshWorker) run() *RefreshWorker {
	w.logger.Info("refresher is running", "rate", w.cfg.Rate, "queue_cap", w.cfg.QueueCap)

	go func() {
		defer w.logger.Info("refresher is stopped")
		var wg sync.WaitGroup
		for i := 0; i <= runtime.GOMAXPROCS(0); i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.consumer()
			}()
		}
		wg.Wait()
	}()

	return w
}

func (w *RefreshWorker) consumer() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case job := <-w.invokeCh:
			select {
			case <-w.ctx.Done():
				return
			case <-w.jitter.Chan():
			}

			_, err, _ := w.group.Do(job.Key, func() (any, error) {
				return nil, job.Do(w.ctx)
			})
			if err != nil {
				w.counters.errors.Add(1)
				w.logger.Debug("background refresh failed", "tier", job.Tier, "key", job.Key, "err", err)
			} else {
				w.counters.refreshed.Add(1)
			}
		}
	}
}
