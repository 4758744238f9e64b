package authorization

import (
	catalogdomain "github.com/smallbiznis/controlplane/internal/catalog/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("authorization",
	fx.Provide(
		NewEnforcer,
		NewService,
		func(s *ServiceImpl) Service { return s },
		fx.Annotate(
			func(s *ServiceImpl) catalogdomain.TenantCleanup { return s },
			fx.ResultTags(`group:"tenant_cleanup"`),
		),
	),
)
