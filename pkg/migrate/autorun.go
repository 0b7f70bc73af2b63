package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/farmbid-backend/pkg/config"
	"github.com/angelmondragon/farmbid-backend/pkg/db"
	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
)

// MaybeRunDev brings the schema up to date on dev boots with
// FARMBID_AUTO_MIGRATE set. Postgres gets the embedded goose files;
// SQLite, which those files do not target, gets a GORM AutoMigrate of the
// models instead.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	mode, apply := "goose", func(ctx context.Context) error {
		sqlDB, err := client.DB().DB()
		if err != nil {
			return err
		}
		return Run(ctx, sqlDB, Source{}, "up")
	}
	if cfg.DB.Driver == config.DriverSQLite {
		mode, apply = "automigrate", func(ctx context.Context) error {
			return client.DB().WithContext(ctx).AutoMigrate(models.All()...)
		}
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"driver":     cfg.DB.Driver,
		"mode":       mode,
		"migrations": Source{}.String(),
	})
	logg.Info(ctx, "migrate.dev_autorun")
	if err := apply(ctx); err != nil {
		return fmt.Errorf("dev %s: %w", mode, err)
	}
	logg.Info(ctx, "migrate.schema_ready")
	return nil
}
