package registry

import (
	authdomain "github.com/smallbiznis/controlplane/internal/auth/domain"
	"github.com/smallbiznis/controlplane/internal/registry/domain"
	"github.com/smallbiznis/controlplane/internal/registry/service"
	"go.uber.org/fx"
)

var Module = fx.Module("registry.service",
	fx.Provide(func(auth authdomain.Service) domain.MemberCounter { return auth }),
	fx.Provide(service.NewService),
)
