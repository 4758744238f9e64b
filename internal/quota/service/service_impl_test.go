package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/smallbiznis/controlplane/internal/quota/domain"
	"github.com/smallbiznis/controlplane/internal/quota/service"
	"github.com/smallbiznis/controlplane/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveUpToLimit(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))

	for i := 0; i < 3; i++ {
		require.NoError(t, env.Ledger.Reserve(ctx, tenant.ID, domain.KindUsers, 1))
	}

	err := env.Ledger.Reserve(ctx, tenant.ID, domain.KindUsers, 1)
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)
	exceeded, ok := service.IsExceeded(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindUsers, exceeded.Kind)
	assert.EqualValues(t, 3, exceeded.Current)
	assert.EqualValues(t, 3, exceeded.Limit)

	view, err := env.Ledger.Usage(ctx, tenant.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, view.Usage.UsersCount)
}

func TestReserveStorageComparesMegabytes(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))

	require.NoError(t, env.Ledger.Reserve(ctx, tenant.ID, domain.KindStorage, 1000))
	require.NoError(t, env.Ledger.Reserve(ctx, tenant.ID, domain.KindStorage, 24))

	err := env.Ledger.Reserve(ctx, tenant.ID, domain.KindStorage, 1)
	exceeded, ok := service.IsExceeded(err)
	require.True(t, ok)
	assert.EqualValues(t, domain.MBPerGB, exceeded.Limit)
}

func TestReserveRejectsBadInput(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))

	assert.ErrorIs(t, env.Ledger.Reserve(ctx, tenant.ID, domain.Kind("seats"), 1), domain.ErrUnknownKind)
	assert.ErrorIs(t, env.Ledger.Reserve(ctx, tenant.ID, domain.KindUsers, 0), domain.ErrInvalidDelta)
}

func TestReleaseClampsAtZero(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))

	require.NoError(t, env.Ledger.Reserve(ctx, tenant.ID, domain.KindBranches, 1))
	env.Ledger.Release(ctx, tenant.ID, domain.KindBranches, 5)

	view, err := env.Ledger.Usage(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Zero(t, view.Usage.BranchesCount)
}

func TestCheckDoesNotReserve(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))

	decision, err := env.Ledger.Check(ctx, tenant.ID, domain.KindCompanies, 1)
	require.NoError(t, err)
	assert.True(t, decision.OK)
	assert.Empty(t, decision.Reason())

	decision, err = env.Ledger.Check(ctx, tenant.ID, domain.KindCompanies, 2)
	require.NoError(t, err)
	assert.False(t, decision.OK)
	assert.Equal(t, "companies limit reached (0/1)", decision.Reason())

	view, err := env.Ledger.Usage(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Zero(t, view.Usage.CompaniesCount)
}

func TestConcurrentReservationsNeverOvershoot(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
		refused int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := env.Ledger.Reserve(ctx, tenant.ID, domain.KindBranches, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				granted++
			case errors.Is(err, domain.ErrQuotaExceeded):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, granted)
	assert.Equal(t, workers-2, refused)

	view, err := env.Ledger.Usage(ctx, tenant.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, view.Usage.BranchesCount)
}

func TestRecountOverwritesCounters(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))

	require.NoError(t, env.Ledger.Reserve(ctx, tenant.ID, domain.KindUsers, 2))
	require.NoError(t, env.Ledger.Recount(ctx, tenant.ID, domain.Counts{Users: 1, Branches: 2, StorageMB: 10}))

	view, err := env.Ledger.Usage(ctx, tenant.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, view.Usage.UsersCount)
	assert.EqualValues(t, 2, view.Usage.BranchesCount)
	assert.EqualValues(t, 10, view.Usage.StorageMB)

	assert.ErrorIs(t, env.Ledger.Recount(ctx, tenant.ID, domain.Counts{Users: -1}), domain.ErrInvalidCounts)
	assert.ErrorIs(t, env.Ledger.Recount(ctx, tenant.ID+1, domain.Counts{}), domain.ErrUsageNotFound)
}

func TestUsageWithoutTenant(t *testing.T) {
	env := testutil.NewEnv(t)

	_, err := env.Ledger.Usage(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrUsageNotFound)
}
