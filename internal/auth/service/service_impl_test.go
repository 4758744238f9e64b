package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/controlplane/internal/auth/domain"
	"github.com/smallbiznis/controlplane/internal/auth/password"
	quotadomain "github.com/smallbiznis/controlplane/internal/quota/domain"
	"github.com/smallbiznis/controlplane/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memberRequest(tenantID snowflake.ID, username string) domain.CreateUserRequest {
	return domain.CreateUserRequest{
		TenantID: tenantID,
		Username: username,
		Email:    username + "@example.com",
		Password: "another-passw0rd",
	}
}

func TestCreateUserDefaultsToMember(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))

	user, err := env.Auth.CreateUser(ctx, memberRequest(tenant.ID, "maria"))
	require.NoError(t, err)
	assert.Equal(t, domain.RoleMember, user.Role)
	assert.NotEqual(t, "another-passw0rd", user.PasswordHash)
	assert.True(t, password.Verify("another-passw0rd", user.PasswordHash))

	count, err := env.Auth.CountMembers(ctx, tenant.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestCreateUserValidation(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))
	base := memberRequest(tenant.ID, "maria")

	req := base
	req.Username = "no spaces allowed"
	_, err := env.Auth.CreateUser(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidUsername)

	req = base
	req.Email = "not-an-email"
	_, err = env.Auth.CreateUser(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	req = base
	req.Role = "root"
	_, err = env.Auth.CreateUser(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidRole)

	req = base
	req.Password = "short"
	_, err = env.Auth.CreateUser(ctx, req)
	assert.ErrorIs(t, err, password.ErrTooShort)
}

func TestUsernamesAreGloballyUnique(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	plan := env.SeedPlan(t, testutil.BasicPlan())
	acme := env.SignupTenant(t, "acme", plan)
	globex := env.SignupTenant(t, "globex", plan)

	_, err := env.Auth.CreateUser(ctx, memberRequest(acme.ID, "maria"))
	require.NoError(t, err)

	_, err = env.Auth.CreateUser(ctx, memberRequest(globex.ID, "maria"))
	assert.ErrorIs(t, err, domain.ErrUserExists)

	taken, err := env.Auth.UsernameTaken(ctx, " maria ")
	require.NoError(t, err)
	assert.True(t, taken)
}

func TestLoginAndAuthenticate(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	plan := env.SeedPlan(t, testutil.BasicPlan())
	tenant := env.SignupTenant(t, "acme", plan)
	other := env.SignupTenant(t, "globex", plan)

	_, err := env.Auth.Login(ctx, domain.LoginRequest{TenantID: tenant.ID, Username: "acme_owner", Password: "wrong-password"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = env.Auth.Login(ctx, domain.LoginRequest{TenantID: other.ID, Username: "acme_owner", Password: "S3cure-passw0rd!"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	token, err := env.Auth.Login(ctx, domain.LoginRequest{TenantID: tenant.ID, Username: "acme_owner", Password: "S3cure-passw0rd!"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token.Token, "cp_"))
	assert.Equal(t, domain.RoleOwner, token.User.Role)

	principal, err := env.Auth.Authenticate(ctx, tenant.ID, token.Token)
	require.NoError(t, err)
	assert.Equal(t, token.User.ID, principal.UserID)
	assert.Equal(t, domain.RoleOwner, principal.Role)

	_, err = env.Auth.Authenticate(ctx, other.ID, token.Token)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	_, err = env.Auth.Authenticate(ctx, tenant.ID, "garbage")
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	env.Clock.Advance(24 * time.Hour)
	_, err = env.Auth.Authenticate(ctx, tenant.ID, token.Token)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestDeleteUserReleasesQuota(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))

	require.NoError(t, env.Ledger.Reserve(ctx, tenant.ID, quotadomain.KindUsers, 1))
	user, err := env.Auth.CreateUser(ctx, memberRequest(tenant.ID, "maria"))
	require.NoError(t, err)

	require.NoError(t, env.Auth.DeleteUser(ctx, tenant.ID, user.ID))

	view, err := env.Ledger.Usage(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Zero(t, view.Usage.UsersCount)

	assert.ErrorIs(t, env.Auth.DeleteUser(ctx, tenant.ID, user.ID), domain.ErrUserNotFound)
}

func TestDeleteOwnerIsRefused(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))

	token, err := env.Auth.Login(ctx, domain.LoginRequest{TenantID: tenant.ID, Username: "acme_owner", Password: "S3cure-passw0rd!"})
	require.NoError(t, err)

	assert.ErrorIs(t, env.Auth.DeleteUser(ctx, tenant.ID, token.User.ID), domain.ErrCannotDeleteOwner)
}

func TestPurgeExpiredTokens(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))

	_, err := env.Auth.Login(ctx, domain.LoginRequest{TenantID: tenant.ID, Username: "acme_owner", Password: "S3cure-passw0rd!"})
	require.NoError(t, err)

	purged, err := env.Auth.PurgeExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Zero(t, purged)

	env.Clock.Advance(25 * time.Hour)
	purged, err = env.Auth.PurgeExpiredTokens(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)
}

func TestHashTokenIsStable(t *testing.T) {
	assert.Equal(t, domain.HashToken("cp_x"), domain.HashToken("cp_x"))
	assert.Len(t, domain.HashToken("cp_x"), 64)
}
