package service_test

import (
	"context"
	"testing"

	"github.com/smallbiznis/controlplane/internal/catalog/domain"
	"github.com/smallbiznis/controlplane/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTenant(t *testing.T, env *testutil.Env, host string) *domain.Tenant {
	t.Helper()

	ctx := context.Background()
	schemaName, err := env.Catalog.AllocateSchemaName(ctx, host)
	require.NoError(t, err)
	tenant, err := env.Catalog.CreateTenant(ctx, domain.CreateTenantRequest{
		SchemaName:  schemaName,
		DisplayName: "Acme",
		PrimaryHost: host,
	})
	require.NoError(t, err)
	return tenant
}

func TestResolveByHost(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tenant := createTenant(t, env, "acme.example.test")

	got, err := env.Catalog.ResolveByHost(ctx, "ACME.example.test:8443")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, got.ID)
	assert.Equal(t, "acme_example_test", got.SchemaName)

	_, err = env.Catalog.ResolveByHost(ctx, "unknown.example.test")
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)

	_, err = env.Catalog.ResolveByHost(ctx, "")
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
}

func TestCreateTenantRejectsTakenHost(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	createTenant(t, env, "acme.example.test")

	_, err := env.Catalog.CreateTenant(ctx, domain.CreateTenantRequest{
		SchemaName:  "other_schema",
		DisplayName: "Other",
		PrimaryHost: "acme.example.test",
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateName)

	_, err = env.Catalog.CreateTenant(ctx, domain.CreateTenantRequest{
		SchemaName:  "acme_example_test",
		DisplayName: "Other",
		PrimaryHost: "other.example.test",
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateName)
}

func TestCreateTenantValidatesInput(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	_, err := env.Catalog.CreateTenant(ctx, domain.CreateTenantRequest{SchemaName: "Bad-Name", DisplayName: "x", PrimaryHost: "a.test"})
	assert.ErrorIs(t, err, domain.ErrInvalidSchemaName)

	_, err = env.Catalog.CreateTenant(ctx, domain.CreateTenantRequest{SchemaName: "ok_name", DisplayName: "  ", PrimaryHost: "a.test"})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = env.Catalog.CreateTenant(ctx, domain.CreateTenantRequest{SchemaName: "ok_name", DisplayName: "x", PrimaryHost: "not a host"})
	assert.ErrorIs(t, err, domain.ErrInvalidHost)
}

func TestAllocateSchemaNameSkipsTakenNames(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	createTenant(t, env, "acme.example.test")

	got, err := env.Catalog.AllocateSchemaName(ctx, "acme.example.test")
	require.NoError(t, err)
	assert.Equal(t, "acme_example_test_2", got)
}

func TestDeactivateTenantStopsResolution(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tenant := createTenant(t, env, "acme.example.test")

	_, err := env.Catalog.ResolveByHost(ctx, "acme.example.test")
	require.NoError(t, err)

	require.NoError(t, env.Catalog.DeactivateTenant(ctx, tenant.ID))

	_, err = env.Catalog.ResolveByHost(ctx, "acme.example.test")
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)

	assert.ErrorIs(t, env.Catalog.DeactivateTenant(ctx, tenant.ID+1), domain.ErrTenantNotFound)
}

func TestDeleteTenantFreesHost(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tenant := createTenant(t, env, "acme.example.test")

	require.NoError(t, env.Catalog.DeleteTenant(ctx, tenant.ID))

	_, err := env.Catalog.GetTenant(ctx, tenant.ID)
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)

	available, err := env.Catalog.IsHostAvailable(ctx, "acme.example.test")
	require.NoError(t, err)
	assert.True(t, available)

	assert.ErrorIs(t, env.Catalog.DeleteTenant(ctx, tenant.ID), domain.ErrTenantNotFound)
}

func TestNormalizeHost(t *testing.T) {
	env := testutil.NewEnv(t)

	host, err := env.Catalog.NormalizeHost(" Acme ")
	require.NoError(t, err)
	assert.Equal(t, "acme."+testutil.BaseDomain, host)

	host, err = env.Catalog.NormalizeHost("shop.acme.com")
	require.NoError(t, err)
	assert.Equal(t, "shop.acme.com", host)

	_, err = env.Catalog.NormalizeHost("www")
	assert.ErrorIs(t, err, domain.ErrReservedHost)

	_, err = env.Catalog.NormalizeHost("bad host")
	assert.ErrorIs(t, err, domain.ErrInvalidHost)
}

func TestUpsertPlanIsIdempotent(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	first, created, err := env.Catalog.UpsertPlan(ctx, testutil.BasicPlan())
	require.NoError(t, err)
	assert.True(t, created)

	req := testutil.BasicPlan()
	req.MaxUsers = 5
	second, created, err := env.Catalog.UpsertPlan(ctx, req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.MaxUsers)

	_, _, err = env.Catalog.UpsertPlan(ctx, domain.UpsertPlanRequest{Slug: "neg", Name: "Neg", MaxUsers: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidPlan)
}

func TestUpsertPlanRejectsRepricing(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	seeded := env.SeedPlan(t, testutil.BasicPlan())

	req := testutil.BasicPlan()
	req.PriceMonthlyCents = 1
	_, _, err := env.Catalog.UpsertPlan(ctx, req)
	assert.ErrorIs(t, err, domain.ErrPlanPriceImmutable)

	req = testutil.BasicPlan()
	req.PriceYearlyCents = 1
	_, _, err = env.Catalog.UpsertPlan(ctx, req)
	assert.ErrorIs(t, err, domain.ErrPlanPriceImmutable)

	stored, err := env.Catalog.GetPlan(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9900), stored.PriceMonthlyCents)
	assert.Equal(t, int64(99000), stored.PriceYearlyCents)

	req = testutil.BasicPlan()
	req.MaxCompanies = 3
	updated, created, err := env.Catalog.UpsertPlan(ctx, req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 3, updated.MaxCompanies)
	assert.Equal(t, int64(9900), updated.PriceMonthlyCents)
}

func TestListPlansOrdersBySortOrder(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	env.SeedPlan(t, testutil.ProPlan())
	env.SeedPlan(t, testutil.BasicPlan())

	plans, err := env.Catalog.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 2)

	assert.Equal(t, "basic", plans[0].Slug)
	assert.Equal(t, "99.00", plans[0].PriceMonthly)
	assert.True(t, plans[0].IsTrial)
	assert.Equal(t, []string{"registries"}, plans[0].Features)

	assert.Equal(t, "pro", plans[1].Slug)
	assert.False(t, plans[1].IsTrial)
	assert.ElementsMatch(t, []string{"registries", "reports"}, plans[1].Features)
}

func TestGetPlanNotFound(t *testing.T) {
	env := testutil.NewEnv(t)

	_, err := env.Catalog.GetPlan(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)
}
