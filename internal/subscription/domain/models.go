// Package domain contains the tenant subscription model and its lifecycle rules.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusTrial    Status = "trial"
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

const (
	BillingCycleMonthly = "monthly"
	BillingCycleYearly  = "yearly"

	monthlyPeriodDays = 30
	yearlyPeriodDays  = 365
)

// Subscription is the single enrollment of a tenant in a plan.
type Subscription struct {
	ID                     snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID               snowflake.ID `gorm:"not null;uniqueIndex:ux_subscriptions_tenant" json:"tenant_id"`
	PlanID                 snowflake.ID `gorm:"not null;index" json:"plan_id"`
	Status                 Status       `gorm:"type:varchar(16);not null" json:"status"`
	BillingCycle           string       `gorm:"type:varchar(16);not null" json:"billing_cycle"`
	PeriodStart            time.Time    `gorm:"not null" json:"period_start"`
	PeriodEnd              time.Time    `gorm:"not null;index" json:"period_end"`
	CancelAtPeriodEnd      bool         `gorm:"not null" json:"cancel_at_period_end"`
	CanceledAt             *time.Time   `json:"canceled_at,omitempty"`
	ProviderSubscriptionID *string      `gorm:"type:varchar(255);uniqueIndex:ux_subscriptions_provider_id" json:"provider_subscription_id,omitempty"`
	ProviderCustomerID     string       `gorm:"type:varchar(255)" json:"provider_customer_id,omitempty"`
	CreatedAt              time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt              time.Time    `gorm:"not null" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// IsActive is true for active and trial subscriptions whose period has not
// ended. A period ending exactly at now is over.
func (s Subscription) IsActive(now time.Time) bool {
	if s.Status != StatusActive && s.Status != StatusTrial {
		return false
	}
	return s.PeriodEnd.After(now)
}

// DaysUntilExpiry counts whole days left in the period, never negative.
func (s Subscription) DaysUntilExpiry(now time.Time) int {
	remaining := s.PeriodEnd.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining / (24 * time.Hour))
}

// PeriodDays sizes a billing window for cycle.
func PeriodDays(cycle string) int {
	if cycle == BillingCycleYearly {
		return yearlyPeriodDays
	}
	return monthlyPeriodDays
}

func ValidBillingCycle(cycle string) bool {
	return cycle == BillingCycleMonthly || cycle == BillingCycleYearly
}

func ValidStatus(status Status) bool {
	switch status {
	case StatusTrial, StatusPending, StatusActive, StatusPastDue, StatusCanceled, StatusExpired:
		return true
	}
	return false
}
