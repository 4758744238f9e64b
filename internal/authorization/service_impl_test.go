package authorization_test

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/controlplane/internal/auth/domain"
	"github.com/smallbiznis/controlplane/internal/authorization"
	"github.com/smallbiznis/controlplane/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createUser(t *testing.T, env *testutil.Env, tenantID snowflake.ID, username, role string) *authdomain.User {
	t.Helper()

	user, err := env.Auth.CreateUser(context.Background(), authdomain.CreateUserRequest{
		TenantID: tenantID,
		Username: username,
		Email:    username + "@example.com",
		Password: "another-passw0rd",
		Role:     role,
	})
	require.NoError(t, err)
	return user
}

func actor(u *authdomain.User) string { return "user:" + u.ID.String() }

func TestRolePermissions(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))

	member := createUser(t, env, tenant.ID, "member1", authdomain.RoleMember)
	admin := createUser(t, env, tenant.ID, "admin1", authdomain.RoleAdmin)
	owner := createUser(t, env, tenant.ID, "owner2", authdomain.RoleOwner)

	cases := []struct {
		name   string
		user   *authdomain.User
		object string
		action string
		allow  bool
	}{
		{"member views usage", member, authorization.ObjectUsage, authorization.ActionUsageView, true},
		{"member creates company", member, authorization.ObjectCompany, authorization.ActionCompanyCreate, true},
		{"member cannot delete company", member, authorization.ObjectCompany, authorization.ActionCompanyDelete, false},
		{"member cannot create user", member, authorization.ObjectUser, authorization.ActionUserCreate, false},
		{"admin creates user", admin, authorization.ObjectUser, authorization.ActionUserCreate, true},
		{"admin cannot checkout", admin, authorization.ObjectBilling, authorization.ActionBillingCheckout, false},
		{"admin cannot cancel", admin, authorization.ObjectSubscription, authorization.ActionSubscriptionCancel, false},
		{"owner checks out", owner, authorization.ObjectBilling, authorization.ActionBillingCheckout, true},
		{"owner cancels", owner, authorization.ObjectSubscription, authorization.ActionSubscriptionCancel, true},
		{"owner cannot delete tenant", owner, authorization.ObjectTenant, authorization.ActionTenantDelete, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := env.Authz.Authorize(ctx, actor(tc.user), tenant.ID, tc.object, tc.action)
			if tc.allow {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, authorization.ErrForbidden)
			}
		})
	}
}

func TestUserOfAnotherTenantIsForbidden(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	plan := env.SeedPlan(t, testutil.BasicPlan())
	acme := env.SignupTenant(t, "acme", plan)
	globex := env.SignupTenant(t, "globex", plan)
	admin := createUser(t, env, acme.ID, "admin1", authdomain.RoleAdmin)

	err := env.Authz.Authorize(ctx, actor(admin), globex.ID, authorization.ObjectUsage, authorization.ActionUsageView)
	assert.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestOperatorActsOnPlatform(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	assert.NoError(t, env.Authz.Authorize(ctx, authorization.ActorOperator, 0, authorization.ObjectTenant, authorization.ActionTenantRenew))
	assert.ErrorIs(t,
		env.Authz.Authorize(ctx, authorization.ActorOperator, 0, authorization.ObjectBilling, authorization.ActionBillingCheckout),
		authorization.ErrForbidden,
	)
}

func TestAuthorizeRejectsMalformedInput(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	assert.ErrorIs(t, env.Authz.Authorize(ctx, "", 1, "usage", "usage.view"), authorization.ErrInvalidActor)
	assert.ErrorIs(t, env.Authz.Authorize(ctx, "robot", 1, "usage", "usage.view"), authorization.ErrInvalidActor)
	assert.ErrorIs(t, env.Authz.Authorize(ctx, "user:abc", 1, "usage", "usage.view"), authorization.ErrInvalidActor)
	assert.ErrorIs(t, env.Authz.Authorize(ctx, "user:5", 0, "usage", "usage.view"), authorization.ErrInvalidTenant)
	assert.ErrorIs(t, env.Authz.Authorize(ctx, "user:5", 1, "", "usage.view"), authorization.ErrInvalidObject)
	assert.ErrorIs(t, env.Authz.Authorize(ctx, "user:5", 1, "usage", " "), authorization.ErrInvalidAction)
}

func TestRoleChangeIsPickedUp(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))
	user := createUser(t, env, tenant.ID, "promoted", authdomain.RoleMember)

	err := env.Authz.Authorize(ctx, actor(user), tenant.ID, authorization.ObjectUser, authorization.ActionUserCreate)
	require.ErrorIs(t, err, authorization.ErrForbidden)

	require.NoError(t, env.DB.Exec(`UPDATE users SET role = ? WHERE id = ?`, authdomain.RoleAdmin, user.ID).Error)

	assert.NoError(t, env.Authz.Authorize(ctx, actor(user), tenant.ID, authorization.ObjectUser, authorization.ActionUserCreate))
}

func TestDeleteTenantRemovesRoleLinks(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))
	user := createUser(t, env, tenant.ID, "member1", authdomain.RoleMember)
	require.NoError(t, env.Authz.Authorize(ctx, actor(user), tenant.ID, authorization.ObjectUsage, authorization.ActionUsageView))

	var before int64
	require.NoError(t, env.DB.Raw(`SELECT COUNT(*) FROM casbin_rule WHERE ptype = 'g' AND v2 = ?`, "tenant:"+tenant.ID.String()).Scan(&before).Error)
	require.EqualValues(t, 1, before)

	require.NoError(t, env.Catalog.DeleteTenant(ctx, tenant.ID))

	var after int64
	require.NoError(t, env.DB.Raw(`SELECT COUNT(*) FROM casbin_rule WHERE ptype = 'g' AND v2 = ?`, "tenant:"+tenant.ID.String()).Scan(&after).Error)
	assert.Zero(t, after)
}
