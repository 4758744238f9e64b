package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrBillingUnavailable  = errors.New("billing_unavailable")
	ErrPriceNotConfigured  = errors.New("price_not_configured")
	ErrCheckoutNotFound    = errors.New("checkout_not_found")
	ErrCheckoutForbidden   = errors.New("checkout_forbidden")
	ErrInvalidBillingCycle = errors.New("invalid_billing_cycle")
	ErrInvalidSessionID    = errors.New("invalid_session_id")
)

type CheckoutRequest struct {
	PlanID       snowflake.ID `json:"plan_id"`
	BillingCycle string       `json:"billing_cycle"`
}

type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
}

type Service interface {
	EnsureCustomer(ctx context.Context, tenantID snowflake.ID, email, name string) (*BillingCustomer, error)
	CreateCheckout(ctx context.Context, tenantID snowflake.ID, req CheckoutRequest) (*CheckoutResponse, error)
	// GetCheckout returns ErrCheckoutForbidden when the session belongs to another tenant.
	GetCheckout(ctx context.Context, tenantID snowflake.ID, sessionID string) (*CheckoutSession, error)
}
