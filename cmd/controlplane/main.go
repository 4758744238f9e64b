package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/controlplane/internal/admission"
	"github.com/smallbiznis/controlplane/internal/audit"
	"github.com/smallbiznis/controlplane/internal/auth"
	"github.com/smallbiznis/controlplane/internal/authorization"
	"github.com/smallbiznis/controlplane/internal/billing"
	"github.com/smallbiznis/controlplane/internal/catalog"
	"github.com/smallbiznis/controlplane/internal/clock"
	"github.com/smallbiznis/controlplane/internal/config"
	"github.com/smallbiznis/controlplane/internal/migration"
	"github.com/smallbiznis/controlplane/internal/observability"
	"github.com/smallbiznis/controlplane/internal/payment"
	"github.com/smallbiznis/controlplane/internal/provisioner"
	"github.com/smallbiznis/controlplane/internal/quota"
	"github.com/smallbiznis/controlplane/internal/ratelimit"
	"github.com/smallbiznis/controlplane/internal/registry"
	"github.com/smallbiznis/controlplane/internal/scheduler"
	"github.com/smallbiznis/controlplane/internal/server"
	"github.com/smallbiznis/controlplane/internal/signup"
	"github.com/smallbiznis/controlplane/internal/subscription"
	"github.com/smallbiznis/controlplane/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		ratelimit.Module,
		migration.Module,

		// Tenancy domains
		authorization.Module,
		provisioner.Module,
		catalog.Module,
		quota.Module,
		subscription.Module,
		auth.Module,
		registry.Module,
		billing.Module,
		signup.Module,
		payment.Module,
		audit.Module,

		// Runtime
		admission.Module,
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
