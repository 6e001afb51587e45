package migration

import (
	"strings"

	"github.com/smallbiznis/levy/internal/config"
	"github.com/smallbiznis/levy/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBAutoMigrate {
			log.Info("schema migrations disabled")
			return nil
		}

		if !strings.EqualFold(strings.TrimSpace(cfg.DBType), db.TypePostgres) {
			return AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
