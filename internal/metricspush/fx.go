package metricspush

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/levy/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("metrics.push",
	fx.Provide(NewPusher),
	fx.Provide(NewBacklog),
	fx.Invoke(startWorker),
)

func startWorker(lc fx.Lifecycle, cfg config.Config, pusher Pusher, backlog *Backlog, db *gorm.DB, logger *zap.Logger) {
	if pusher == nil {
		return
	}
	log := logger.Named("metrics.push")

	interval := cfg.MetricsPush.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	gatherer := prometheus.Gatherers{prometheus.DefaultGatherer, backlog.Gatherer()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting metrics push worker", zap.Duration("interval", interval))
			go func() {
				defer close(done)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				for {
					pushOnce(ctx, log, pusher, backlog, db, gatherer)
					select {
					case <-ticker.C:
					case <-ctx.Done():
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			// Final push so counters from the last sweep are not lost.
			pushOnce(stopCtx, log, pusher, backlog, db, gatherer)
			return nil
		},
	})
}

func pushOnce(ctx context.Context, log *zap.Logger, pusher Pusher, backlog *Backlog, db *gorm.DB, gatherer prometheus.Gatherer) {
	if err := backlog.Refresh(ctx, db); err != nil {
		log.Warn("refresh backlog metrics failed", zap.Error(err))
	}
	pushCtx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()
	if err := pusher.Push(pushCtx, gatherer); err != nil {
		log.Warn("metrics push failed", zap.Error(err))
	}
}
