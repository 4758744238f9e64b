package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	auditdomain "github.com/smallbiznis/controlplane/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/controlplane/internal/catalog/domain"
	subscriptiondomain "github.com/smallbiznis/controlplane/internal/subscription/domain"
	"github.com/smallbiznis/controlplane/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plansYAML = `
plans:
  - slug: basic
    name: Basic
    priceMonthly: "99.00"
    priceYearly: "990.00"
    maxUsers: 3
    maxCompanies: 1
    maxBranches: 2
    maxStorageGB: 1
    trialDays: 14
    features: [registries]
`

func envOpener(env *testutil.Env) Opener {
	return func(context.Context) (*Services, func(), error) {
		return &Services{
			DB:            env.DB,
			Log:           env.Log,
			Catalog:       env.Catalog,
			Provisioner:   env.Provisioner,
			Subscriptions: env.Subscriptions,
			Registry:      env.Registry,
			Audit:         env.Audit,
		}, func() {}, nil
	}
}

func execute(t *testing.T, env *testutil.Env, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd(envOpener(env))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSeedPlansRefusesExistingSlugs(t *testing.T) {
	env := testutil.NewEnv(t)
	path := filepath.Join(t.TempDir(), "plans.yml")
	require.NoError(t, os.WriteFile(path, []byte(plansYAML), 0o600))

	out, err := execute(t, env, "seed-plans", path)
	require.NoError(t, err)
	assert.Contains(t, out, "created=1")

	_, err = execute(t, env, "seed-plans", path)
	assert.ErrorIs(t, err, catalogdomain.ErrPlanExists)

	out, err = execute(t, env, "seed-plans", "--update", path)
	require.NoError(t, err)
	assert.Contains(t, out, "updated=1")

	plans, err := env.Catalog.ListPlans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "basic", plans[0].Slug)

	repriced := filepath.Join(t.TempDir(), "repriced.yml")
	require.NoError(t, os.WriteFile(repriced, []byte(strings.Replace(plansYAML, `"99.00"`, `"0.01"`, 1)), 0o600))
	_, err = execute(t, env, "seed-plans", "--update", repriced)
	assert.ErrorIs(t, err, catalogdomain.ErrPlanPriceImmutable)

	plans, err = env.Catalog.ListPlans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "99.00", plans[0].PriceMonthly)
}

func TestTenantCommands(t *testing.T) {
	env := testutil.NewEnv(t)
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))

	out, err := execute(t, env, "recount", tenant.SchemaName)
	require.NoError(t, err)
	assert.Contains(t, out, "users=0 companies=0 branches=0 storage_mb=0")

	env.Clock.Advance(15 * 24 * time.Hour)
	_, err = execute(t, env, "renew", tenant.ID.String(), "30")
	require.NoError(t, err)
	sub, err := env.Subscriptions.Get(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.True(t, sub.IsActive(env.Clock.Now()))

	_, err = execute(t, env, "renew", tenant.ID.String(), "zero")
	assert.Error(t, err)

	_, err = execute(t, env, "deactivate", "acme.example.test")
	require.NoError(t, err)
	_, err = env.Catalog.ResolveByHost(context.Background(), "acme.example.test")
	assert.ErrorIs(t, err, catalogdomain.ErrTenantNotFound)

	_, err = execute(t, env, "delete", tenant.ID.String())
	require.NoError(t, err)
	_, err = execute(t, env, "delete", tenant.ID.String())
	assert.ErrorIs(t, err, catalogdomain.ErrTenantNotFound)

	_, err = env.Subscriptions.Get(context.Background(), tenant.ID)
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)

	trail, err := env.Audit.List(context.Background(), auditdomain.ListRequest{TenantID: tenant.ID})
	require.NoError(t, err)
	actions := make([]string, 0, len(trail.AuditLogs))
	for _, entry := range trail.AuditLogs {
		assert.Equal(t, "operator", entry.ActorType)
		require.NotNil(t, entry.ActorID)
		assert.Equal(t, "tenantctl", *entry.ActorID)
		actions = append(actions, entry.Action)
	}
	assert.ElementsMatch(t, []string{
		auditdomain.ActionTenantRecount,
		auditdomain.ActionTenantRenew,
		auditdomain.ActionTenantDeactivate,
		auditdomain.ActionTenantDelete,
	}, actions)
}

func TestNamespaceCommands(t *testing.T) {
	env := testutil.NewEnv(t)
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))

	out, err := execute(t, env, "provision", tenant.SchemaName)
	require.NoError(t, err)
	assert.Contains(t, out, "membership")

	_, err = execute(t, env, "drop", tenant.SchemaName)
	require.NoError(t, err)
	exists, err := env.Provisioner.Exists(context.Background(), tenant.SchemaName)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = execute(t, env, "provision", "Bad-Name")
	assert.Error(t, err)
}

func TestMigrateIsRepeatable(t *testing.T) {
	env := testutil.NewEnv(t)

	out, err := execute(t, env, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "catalog migrated")
}

func TestSetStatusCommand(t *testing.T) {
	env := testutil.NewEnv(t)
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))
	ctx := context.Background()
	id := tenant.ID.String()

	status := func() subscriptiondomain.Status {
		sub, err := env.Subscriptions.Get(ctx, tenant.ID)
		require.NoError(t, err)
		return sub.Status
	}

	out, err := execute(t, env, "set-status", id, "past_due")
	require.NoError(t, err)
	assert.Contains(t, out, "past_due")
	assert.Equal(t, subscriptiondomain.StatusPastDue, status())

	_, err = execute(t, env, "set-status", id, "active")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusActive, status())

	_, err = execute(t, env, "set-status", id, "canceled")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusCanceled, status())

	_, err = execute(t, env, "set-status", id, "expired")
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)
	assert.Equal(t, subscriptiondomain.StatusCanceled, status())

	_, err = execute(t, env, "set-status", id, "trial")
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidStatus)

	trail, err := env.Audit.List(ctx, auditdomain.ListRequest{TenantID: tenant.ID})
	require.NoError(t, err)
	recorded := 0
	for _, entry := range trail.AuditLogs {
		if entry.Action == auditdomain.ActionSubscriptionStatus {
			recorded++
		}
	}
	assert.Equal(t, 3, recorded)
}
