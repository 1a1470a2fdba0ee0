package migration

import (
	"fmt"

	"github.com/smallbiznis/learnpay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Apply),
)

// Apply brings the schema up to date for the configured dialect.
func Apply(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	switch cfg.DBType {
	case "postgres":
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	case "sqlite":
		return EnsureSQLiteSchema(conn)
	case "mysql":
		log.Warn("mysql schema is managed externally; skipping migrations")
		return nil
	default:
		return fmt.Errorf("unsupported database type %q", cfg.DBType)
	}
}
