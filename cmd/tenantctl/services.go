package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/controlplane/internal/audit"
	auditdomain "github.com/smallbiznis/controlplane/internal/audit/domain"
	"github.com/smallbiznis/controlplane/internal/auth"
	"github.com/smallbiznis/controlplane/internal/authorization"
	"github.com/smallbiznis/controlplane/internal/catalog"
	catalogdomain "github.com/smallbiznis/controlplane/internal/catalog/domain"
	"github.com/smallbiznis/controlplane/internal/clock"
	"github.com/smallbiznis/controlplane/internal/config"
	"github.com/smallbiznis/controlplane/internal/observability"
	"github.com/smallbiznis/controlplane/internal/provisioner"
	"github.com/smallbiznis/controlplane/internal/quota"
	"github.com/smallbiznis/controlplane/internal/ratelimit"
	"github.com/smallbiznis/controlplane/internal/registry"
	registrydomain "github.com/smallbiznis/controlplane/internal/registry/domain"
	"github.com/smallbiznis/controlplane/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/controlplane/internal/subscription/domain"
	"github.com/smallbiznis/controlplane/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services is what the operator commands act on.
type Services struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Catalog       catalogdomain.Service
	Provisioner   provisioner.Provisioner
	Subscriptions subscriptiondomain.Service
	Registry      registrydomain.Service
	Audit         auditdomain.Service
}

// Opener builds Services for one command run; the returned func releases them.
type Opener func(ctx context.Context) (*Services, func(), error)

// openServices boots the domain modules without the HTTP server or scheduler.
func openServices(ctx context.Context) (*Services, func(), error) {
	var svc Services
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Provide(func() (*snowflake.Node, error) { return snowflake.NewNode(2) }),
		db.Module,
		clock.Module,
		ratelimit.Module,
		authorization.Module,
		provisioner.Module,
		catalog.Module,
		quota.Module,
		subscription.Module,
		auth.Module,
		registry.Module,
		audit.Module,
		fx.Invoke(func(s Services) { svc = s }),
	)
	if err := app.Start(ctx); err != nil {
		return nil, nil, err
	}
	stop := func() {
		_ = app.Stop(context.WithoutCancel(ctx))
	}
	return &svc, stop, nil
}
