package provisioner_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/controlplane/internal/provisioner"
	"github.com/smallbiznis/controlplane/internal/ratelimit"
	"github.com/smallbiznis/controlplane/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMembershipProvisionIsIdempotent(t *testing.T) {
	env := testutil.NewEnv(t)
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))
	ctx := context.Background()

	require.Equal(t, provisioner.StrategyMembership, env.Provisioner.Strategy())

	exists, err := env.Provisioner.Exists(ctx, tenant.SchemaName)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, env.Provisioner.Provision(ctx, tenant.SchemaName))

	var namespaces int64
	require.NoError(t, env.DB.Model(&provisioner.TenantNamespace{}).Where("tenant_id = ?", tenant.ID).Count(&namespaces).Error)
	assert.Equal(t, int64(1), namespaces)

	ns := env.Provisioner.Namespace(tenant.SchemaName, tenant.ID)
	assert.False(t, ns.Isolated)
	assert.Equal(t, "companies", ns.Table("companies"))
}

func TestMembershipDropRemovesTenantRows(t *testing.T) {
	env := testutil.NewEnv(t)
	plan := env.SeedPlan(t, testutil.BasicPlan())
	acme := env.SignupTenant(t, "acme", plan)
	globex := env.SignupTenant(t, "globex", plan)
	ctx := context.Background()

	require.NoError(t, env.Provisioner.Drop(ctx, acme.SchemaName))

	exists, err := env.Provisioner.Exists(ctx, acme.SchemaName)
	require.NoError(t, err)
	assert.False(t, exists)

	var acmeCompanies, globexCompanies int64
	require.NoError(t, env.DB.Table("companies").Where("tenant_id = ?", acme.ID).Count(&acmeCompanies).Error)
	require.NoError(t, env.DB.Table("companies").Where("tenant_id = ?", globex.ID).Count(&globexCompanies).Error)
	assert.Zero(t, acmeCompanies)
	assert.Equal(t, int64(1), globexCompanies)

	// Dropping a missing namespace is a no-op.
	require.NoError(t, env.Provisioner.Drop(ctx, acme.SchemaName))
}

func TestMembershipInsertNeedsNamespace(t *testing.T) {
	env := testutil.NewEnv(t)
	plan := env.SeedPlan(t, testutil.BasicPlan())
	acme := env.SignupTenant(t, "acme", plan)
	globex := env.SignupTenant(t, "globex", plan)
	ctx := context.Background()
	columns := []string{"id", "tenant_id", "name", "code", "is_primary", "created_at", "updated_at"}
	now := env.Clock.Now()

	ns := env.Provisioner.Namespace(acme.SchemaName, acme.ID)
	result := ns.Insert(env.DB, "companies", columns, env.GenID.Generate(), acme.ID, "Live", "live", false, now, now)
	require.NoError(t, result.Error)
	assert.EqualValues(t, 1, result.RowsAffected)

	// A namespace row owned by another tenant does not count.
	forged := env.Provisioner.Namespace(acme.SchemaName, globex.ID)
	result = forged.Insert(env.DB, "companies", columns, env.GenID.Generate(), globex.ID, "Forged", "forged", false, now, now)
	require.NoError(t, result.Error)
	assert.Zero(t, result.RowsAffected)

	require.NoError(t, env.Provisioner.Drop(ctx, acme.SchemaName))
	result = ns.Insert(env.DB, "companies", columns, env.GenID.Generate(), acme.ID, "Late", "late", false, now, now)
	require.NoError(t, result.Error)
	assert.Zero(t, result.RowsAffected)
}

func TestMembershipProvisionRejectsBadInput(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	assert.ErrorIs(t, env.Provisioner.Provision(ctx, "Not-Valid"), provisioner.ErrInvalidSchemaName)
	assert.ErrorIs(t, env.Provisioner.Drop(ctx, "1starts_with_digit"), provisioner.ErrInvalidSchemaName)
	assert.ErrorIs(t, env.Provisioner.Provision(ctx, "nobody_owns_this"), provisioner.ErrNamespaceOwner)
}

func TestProvisionWaitsForDistributedLock(t *testing.T) {
	env := testutil.NewEnv(t)
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))

	_, client := testutil.NewRedis(t)
	locker := ratelimit.NewLocker(client)
	prov := provisioner.NewMembershipProvisioner(env.DB, zap.NewNop(), nil, locker)

	token, ok, err := locker.TryLock(context.Background(), "provision:"+tenant.SchemaName, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err = prov.Provision(ctx, tenant.SchemaName)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, locker.Release(context.Background(), "provision:"+tenant.SchemaName, token))
	require.NoError(t, prov.Provision(context.Background(), tenant.SchemaName))
}
