package seed_test

import (
	"context"
	"testing"

	catalogdomain "github.com/smallbiznis/controlplane/internal/catalog/domain"
	"github.com/smallbiznis/controlplane/internal/config"
	"github.com/smallbiznis/controlplane/internal/seed"
	"github.com/smallbiznis/controlplane/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plansFile = "../config/testdata/plans.yml"

func TestSeedPlansFromFileIsIdempotent(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	summary, err := seed.SeedPlansFromFile(ctx, env.Catalog, plansFile, env.Log)
	require.NoError(t, err)
	assert.Equal(t, seed.Summary{Created: 2}, summary)

	summary, err = seed.SeedPlansFromFile(ctx, env.Catalog, plansFile, env.Log)
	require.NoError(t, err)
	assert.Equal(t, seed.Summary{Updated: 2}, summary)

	plans, err := env.Catalog.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 2)

	bySlug := map[string]catalogdomain.PlanView{}
	for _, plan := range plans {
		bySlug[plan.Slug] = plan
	}
	assert.Equal(t, "99.00", bySlug["basic"].PriceMonthly)
	assert.True(t, bySlug["basic"].IsTrial)
	assert.Equal(t, 14, bySlug["basic"].TrialDays)
	assert.Equal(t, "1990.00", bySlug["pro"].PriceYearly)
	assert.False(t, bySlug["pro"].IsTrial)
	assert.ElementsMatch(t, []string{"registries", "billing", "reports"}, bySlug["pro"].Features)
}

func TestSeedPlansCreateOnly(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	env.SeedPlan(t, testutil.BasicPlan())

	_, err := seed.SeedPlansFromFile(ctx, env.Catalog, plansFile, env.Log, seed.CreateOnly())
	assert.ErrorIs(t, err, catalogdomain.ErrPlanExists)

	summary, err := seed.SeedPlans(ctx, env.Catalog, []config.PlanSeed{{
		Slug:         "starter",
		Name:         "Starter",
		PriceMonthly: "49",
		MaxUsers:     1,
		MaxCompanies: 1,
		MaxBranches:  1,
		MaxStorageGB: 1,
	}}, nil, seed.CreateOnly())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
}

func TestSeedPlansRejectsBadPrice(t *testing.T) {
	env := testutil.NewEnv(t)

	_, err := seed.SeedPlans(context.Background(), env.Catalog, []config.PlanSeed{{
		Slug:         "broken",
		Name:         "Broken",
		PriceMonthly: "9.999",
	}}, nil)
	assert.Error(t, err)

	_, err = seed.SeedPlans(context.Background(), nil, nil, nil)
	assert.Error(t, err)
}
