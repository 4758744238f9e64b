package billing

import (
	"github.com/smallbiznis/controlplane/internal/billing/domain"
	"github.com/smallbiznis/controlplane/internal/billing/service"
	"github.com/smallbiznis/controlplane/internal/billing/simulated"
	"github.com/smallbiznis/controlplane/internal/billing/stripe"
	"github.com/smallbiznis/controlplane/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("billing.service",
	fx.Provide(NewProvider),
	fx.Provide(service.NewService),
)

// NewProvider picks the provider implementation for the configured billing mode.
func NewProvider(cfg config.Config, log *zap.Logger) (domain.Provider, error) {
	switch cfg.Billing.Mode {
	case config.BillingModeLive, config.BillingModeTest:
		return stripe.New(cfg.Billing.SecretKey, cfg.Billing.RequestTimeout, log)
	default:
		return simulated.New(), nil
	}
}
