package seed

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/levy/internal/clock"
	"github.com/smallbiznis/levy/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("seed",
	fx.Invoke(func(cfg config.Config, db *gorm.DB, node *snowflake.Node, clk clock.Clock, log *zap.Logger) error {
		if !cfg.SeedRevenueSchedules {
			return nil
		}
		created, err := EnsureRevenueSchedules(context.Background(), db, node, clk.Now())
		if err != nil {
			return err
		}
		log.Info("revenue schedules seeded", zap.Int("created", created))
		return nil
	}),
)
