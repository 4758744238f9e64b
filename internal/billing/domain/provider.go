package domain

import "context"

const (
	MetadataTenantID     = "tenant_id"
	MetadataPlanID       = "plan_id"
	MetadataBillingCycle = "billing_cycle"
)

const (
	PaymentStatusPaid   = "paid"
	PaymentStatusUnpaid = "unpaid"
)

type CustomerRequest struct {
	TenantID string
	Email    string
	Name     string
}

type CheckoutSessionRequest struct {
	PriceID    string
	CustomerID string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

type CheckoutSession struct {
	ID             string            `json:"session_id"`
	URL            string            `json:"checkout_url,omitempty"`
	PaymentStatus  string            `json:"payment_status"`
	SubscriptionID string            `json:"subscription_id,omitempty"`
	CustomerID     string            `json:"customer_id,omitempty"`
	Metadata       map[string]string `json:"metadata"`
}

// Provider is the outbound contract with the payment provider.
//
//go:generate mockgen -source=provider.go -destination=../mock/provider_mock.go -package=mock
type Provider interface {
	Name() string
	// EnsureCustomer returns the provider customer for the tenant, creating it once.
	EnsureCustomer(ctx context.Context, req CustomerRequest) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}
