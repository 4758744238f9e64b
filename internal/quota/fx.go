package quota

import (
	"github.com/smallbiznis/controlplane/internal/quota/service"
	"go.uber.org/fx"
)

var Module = fx.Module("quota.ledger",
	fx.Provide(service.NewService),
)
