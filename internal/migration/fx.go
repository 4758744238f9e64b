package migration

import (
	"context"

	catalogdomain "github.com/smallbiznis/controlplane/internal/catalog/domain"
	"github.com/smallbiznis/controlplane/internal/config"
	"github.com/smallbiznis/controlplane/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("migrations",
	fx.Invoke(Migrate),
	fx.Invoke(func(catalog catalogdomain.Service, cfg config.Config, log *zap.Logger) error {
		if cfg.PlanSeedsPath == "" {
			return nil
		}
		_, err := seed.SeedPlansFromFile(context.Background(), catalog, cfg.PlanSeedsPath, log.Named("seed"))
		return err
	}),
)
