package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/controlplane/internal/subscription/domain"
	"github.com/smallbiznis/controlplane/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestTrialAdmitsUntilPeriodEnd(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))

	sub, err := env.Subscriptions.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTrial, sub.Status)
	assert.True(t, sub.PeriodEnd.Equal(testutil.Epoch.AddDate(0, 0, 14)))

	_, err = env.Subscriptions.Admit(ctx, tenant.ID)
	require.NoError(t, err)

	env.Clock.Advance(14 * 24 * time.Hour)

	_, err = env.Subscriptions.Admit(ctx, tenant.ID)
	var inactive *domain.InactiveError
	require.True(t, errors.As(err, &inactive))
	assert.Equal(t, domain.StatusTrial, inactive.Status)
	assert.Equal(t, "subscription period ended", inactive.Reason)
	assert.ErrorIs(t, err, domain.ErrSubscriptionInactive)
}

func TestTrialDaysZeroStartsActive(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.ProPlan()))

	sub, err := env.Subscriptions.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, sub.Status)
	assert.True(t, sub.PeriodEnd.Equal(testutil.Epoch.AddDate(0, 0, 30)))
}

func TestExpireDue(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	plan := env.SeedPlan(t, testutil.BasicPlan())
	lapsed := env.SignupTenant(t, "lapsed", plan)

	env.Clock.Advance(7 * 24 * time.Hour)
	fresh := env.SignupTenant(t, "fresh", plan)

	env.Clock.Advance(8 * 24 * time.Hour)

	n, err := env.Subscriptions.ExpireDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sub, err := env.Subscriptions.Get(ctx, lapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, sub.Status)

	sub, err = env.Subscriptions.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTrial, sub.Status)

	n, err = env.Subscriptions.ExpireDue(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRenewReactivatesExpired(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))

	env.Clock.Advance(15 * 24 * time.Hour)
	_, err := env.Subscriptions.ExpireDue(ctx, 10)
	require.NoError(t, err)

	sub, err := env.Subscriptions.Renew(ctx, tenant.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, sub.Status)
	assert.True(t, sub.PeriodEnd.Equal(env.Clock.Now().AddDate(0, 0, 30)))

	_, err = env.Subscriptions.Admit(ctx, tenant.ID)
	assert.NoError(t, err)

	_, err = env.Subscriptions.Renew(ctx, tenant.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidPeriod)
}

func TestCancelBlocksAdmission(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))

	sub, err := env.Subscriptions.Cancel(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, sub.Status)
	assert.NotNil(t, sub.CanceledAt)

	_, err = env.Subscriptions.Admit(ctx, tenant.ID)
	var inactive *domain.InactiveError
	require.True(t, errors.As(err, &inactive))
	assert.Equal(t, domain.StatusCanceled, inactive.Status)
}

func TestMarkPastDueRejectsPending(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	plan := env.SeedPlan(t, testutil.BasicPlan())
	tenant := env.SignupTenant(t, "acme", plan)

	_, err := env.Subscriptions.Cancel(ctx, tenant.ID)
	require.NoError(t, err)
	_, err = env.Subscriptions.CreatePaid(ctx, tenant.ID, plan.ID, domain.BillingCycleYearly)
	require.NoError(t, err)

	_, err = env.Subscriptions.MarkPastDue(ctx, tenant.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	sub, err := env.Subscriptions.Activate(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BillingCycleYearly, sub.BillingCycle)
}

func TestCreatePaidRejectsLiveSubscription(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	plan := env.SeedPlan(t, testutil.BasicPlan())
	tenant := env.SignupTenant(t, "acme", plan)

	_, err := env.Subscriptions.CreatePaid(ctx, tenant.ID, plan.ID, domain.BillingCycleMonthly)
	assert.ErrorIs(t, err, domain.ErrSubscriptionExists)

	_, err = env.Subscriptions.CreatePaid(ctx, tenant.ID, plan.ID, "weekly")
	assert.ErrorIs(t, err, domain.ErrInvalidBillingCycle)
}

func TestApplyCheckoutActivatesAndSyncs(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	pro := env.SeedPlan(t, testutil.ProPlan())
	tenant := env.SignupTenant(t, "acme", env.SeedPlan(t, testutil.BasicPlan()))

	err := env.DB.Transaction(func(tx *gorm.DB) error {
		sub, err := env.Subscriptions.ApplyCheckout(ctx, tx, domain.CheckoutCompletion{
			TenantID:               tenant.ID,
			PlanID:                 pro.ID,
			BillingCycle:           domain.BillingCycleMonthly,
			ProviderSubscriptionID: "sub_123",
			ProviderCustomerID:     "cus_123",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusActive, sub.Status)
		assert.Equal(t, pro.ID, sub.PlanID)
		return nil
	})
	require.NoError(t, err)

	err = env.DB.Transaction(func(tx *gorm.DB) error {
		sub, err := env.Subscriptions.MarkPastDueByProviderID(ctx, tx, "sub_123")
		require.NoError(t, err)
		require.NotNil(t, sub)
		assert.Equal(t, domain.StatusPastDue, sub.Status)

		missing, err := env.Subscriptions.MarkPastDueByProviderID(ctx, tx, "sub_unknown")
		require.NoError(t, err)
		assert.Nil(t, missing)
		return nil
	})
	require.NoError(t, err)

	view, err := env.Subscriptions.View(ctx, tenant.ID)
	require.NoError(t, err)
	assert.False(t, view.IsActive)
	assert.Equal(t, 30, view.DaysUntilExpiry)
}
