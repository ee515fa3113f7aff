package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/freightmarket-backend/pkg/config"
	"github.com/angelmondragon/freightmarket-backend/pkg/db"
	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
)

// MaybeRunDev executes migrations automatically when the app is running in dev mode and
// the feature flag is enabled. The SQL files target Postgres, so a SQLite dev
// database is built from the models instead.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	if cfg.FeatureFlags.UseSQLite {
		ctx = logg.WithField(ctx, "env", cfg.App.Env)
		logg.Info(ctx, "auto-migrating sqlite schema from models")
		if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("auto-migrating models: %w", err)
		}
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	source, err := Source("")
	if err != nil {
		return err
	}
	migrator, err := New(sqlDB, DefaultDialect, source)
	if err != nil {
		return err
	}

	applied, err := migrator.Up(ctx)
	if err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"applied": len(applied),
	}), "dev migrations applied")
	return nil
}
