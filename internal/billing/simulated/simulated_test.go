package simulated

import (
	"context"
	"testing"

	"github.com/smallbiznis/controlplane/internal/billing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicIdentifiers(t *testing.T) {
	ctx := context.Background()
	a := New()

	customer, err := a.EnsureCustomer(ctx, domain.CustomerRequest{TenantID: "42"})
	require.NoError(t, err)
	assert.Equal(t, "cus_sim_42", customer)

	first, err := a.CreateCheckoutSession(ctx, domain.CheckoutSessionRequest{
		CustomerID: customer,
		Metadata:   map[string]string{domain.MetadataTenantID: "42"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_sim_000001", first.ID)
	assert.Equal(t, "sub_sim_000001", first.SubscriptionID)
	assert.Equal(t, domain.PaymentStatusPaid, first.PaymentStatus)

	second, err := a.CreateCheckoutSession(ctx, domain.CheckoutSessionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "cs_sim_000002", second.ID)

	got, err := a.GetCheckoutSession(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "42", got.Metadata[domain.MetadataTenantID])

	_, err = a.GetCheckoutSession(ctx, "cs_unknown")
	assert.ErrorIs(t, err, domain.ErrCheckoutNotFound)
}
