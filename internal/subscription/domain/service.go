package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrSubscriptionExists   = errors.New("subscription_exists")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrInvalidPeriod        = errors.New("invalid_period")
	ErrInvalidBillingCycle  = errors.New("invalid_billing_cycle")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrSubscriptionInactive = errors.New("subscription_inactive")
)

// InactiveError carries the state that made a tenant's subscription unusable.
type InactiveError struct {
	Status Status
	Reason string
}

func (e *InactiveError) Error() string {
	return fmt.Sprintf("subscription inactive: %s", e.Reason)
}

func (e *InactiveError) Unwrap() error { return ErrSubscriptionInactive }

// PlanTerms is the part of a plan the manager needs.
type PlanTerms struct {
	PlanID    snowflake.ID
	TrialDays int
}

type View struct {
	Subscription
	IsActive        bool `json:"is_active"`
	DaysUntilExpiry int  `json:"days_until_expiry"`
}

// ProviderSync is the subscription state reported by the payment provider.
type ProviderSync struct {
	ProviderSubscriptionID string
	Status                 Status
	PeriodStart            *time.Time
	PeriodEnd              *time.Time
	CancelAtPeriodEnd      bool
}

// CheckoutCompletion attaches a paid subscription to a tenant.
type CheckoutCompletion struct {
	TenantID               snowflake.ID
	PlanID                 snowflake.ID
	BillingCycle           string
	ProviderSubscriptionID string
	ProviderCustomerID     string
	PeriodStart            *time.Time
	PeriodEnd              *time.Time
}

type Service interface {
	Get(ctx context.Context, tenantID snowflake.ID) (*Subscription, error)
	View(ctx context.Context, tenantID snowflake.ID) (*View, error)
	// Admit returns an *InactiveError unless the tenant's subscription is active now.
	Admit(ctx context.Context, tenantID snowflake.ID) (*Subscription, error)

	// CreateTrial starts a trial, or an active monthly period when the plan has no trial days.
	CreateTrial(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, plan PlanTerms) (*Subscription, error)
	// CreatePaid records a pending subscription awaiting payment. Checkout
	// calls it for tenants whose subscription has lapsed.
	CreatePaid(ctx context.Context, tenantID, planID snowflake.ID, cycle string) (*Subscription, error)

	// Activate, MarkPastDue, MarkCanceled and MarkExpired force one transition
	// of the state machine. Operators reach them through tenantctl set-status.
	Activate(ctx context.Context, tenantID snowflake.ID) (*Subscription, error)
	MarkPastDue(ctx context.Context, tenantID snowflake.ID) (*Subscription, error)
	MarkCanceled(ctx context.Context, tenantID snowflake.ID) (*Subscription, error)
	MarkExpired(ctx context.Context, tenantID snowflake.ID) (*Subscription, error)
	Renew(ctx context.Context, tenantID snowflake.ID, days int) (*Subscription, error)
	Cancel(ctx context.Context, tenantID snowflake.ID) (*Subscription, error)

	// ApplyCheckout upserts the subscription a completed checkout paid for.
	ApplyCheckout(ctx context.Context, tx *gorm.DB, req CheckoutCompletion) (*Subscription, error)
	// SyncFromProvider overwrites status, period and cancellation from the provider.
	SyncFromProvider(ctx context.Context, tx *gorm.DB, req ProviderSync) (*Subscription, error)
	MarkPastDueByProviderID(ctx context.Context, tx *gorm.DB, providerSubscriptionID string) (*Subscription, error)
	CancelByProviderID(ctx context.Context, tx *gorm.DB, providerSubscriptionID string) (*Subscription, error)

	// ExpireDue marks up to limit lapsed trial/active subscriptions as expired.
	ExpireDue(ctx context.Context, limit int) (int, error)
}
