package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/coordinator"
	"github.com/Borislavv/go-tier-cache/internal/evictor"
	"github.com/Borislavv/go-tier-cache/internal/metrics"
	"github.com/Borislavv/go-tier-cache/internal/refresher"
	"github.com/Borislavv/go-tier-cache/internal/shared/bytes"
	"github.com/Borislavv/go-tier-cache/internal/store"
)

type Logger interface {
	Interval() time.Duration
	Close() error
}

type Logs struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       *config.Cache
	logger    *slog.Logger
	stores    *store.Stores
	collector *metrics.Collector
	sampler   sampler
	interval  time.Duration
}

func New(
	ctx context.Context,
	cfg *config.Cache,
	logger *slog.Logger,
	stores *store.Stores,
	ev evictor.Evictor,
	coord *coordinator.Coordinator,
	rf refresher.Refresher,
	collector *metrics.Collector,
) *Logs {
	ctx, cancel := context.WithCancel(ctx)
	l := &Logs{
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		logger:    logger,
		stores:    stores,
		collector: collector,
		sampler:   newSampler(ev, coord, rf),
	}
	if cfg.Telemetry.Enabled() {
		l.interval = cfg.Telemetry.Interval
	}
	return l.run()
}

func (l *Logs) Interval() time.Duration {
	return l.interval
}

func (l *Logs) Close() error {
	l.cancel()
	return nil
}

func (l *Logs) run() *Logs {
	if l.cfg.Telemetry.Enabled() {
		go l.loop()
	}
	return l
}

func (l *Logs) loop() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	prev := l.sampler.snapshot()

	for {
		select {
		case <-l.ctx.Done():
			return

		case <-ticker.C:
			cur := l.sampler.snapshot()
			d := deltaSnapshot(prev, cur)
			prev = cur

			common := []any{"interval", l.interval.String()}

			for tier, r := range l.collector.Report() {
				l.logger.Info("tier_stats",
					append(common,
						"tier", tier,
						"hits", r.Hits,
						"misses", r.Misses,
						"errors", r.Errors,
						"hit_rate", r.HitRate,
						"avg_latency", r.AvgLatency.String(),
					)...,
				)
			}

			if d.evictorTrims > 0 || d.evictedEntries > 0 {
				l.logger.Info("evictor",
					append(common,
						"trims", int64(d.evictorTrims),
						"evicted", int64(d.evictedEntries),
					)...,
				)
			}

			if d.forcedReleases > 0 {
				l.logger.Info("update_locks",
					append(common, "forced_releases", int64(d.forcedReleases))...,
				)
			}

			if d.refreshEnqueued > 0 || d.refreshDropped > 0 {
				l.logger.Info("refresher",
					append(common,
						"enqueued", int64(d.refreshEnqueued),
						"dropped", int64(d.refreshDropped),
						"refreshed", int64(d.refreshDone),
						"errors", int64(d.refreshErrors),
					)...,
				)
			}

			l.logger.Info("storage",
				append(common,
					"size", bytes.FmtMem(uint64(l.stores.Mem())),
					"entries", l.stores.Len(),
				)...,
			)
		}
	}
}
