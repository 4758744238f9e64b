package payment

import (
	"github.com/smallbiznis/controlplane/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.webhook",
	fx.Provide(webhook.NewVerifier),
	fx.Provide(webhook.NewService),
)
