// Package domain contains the shared catalog models: tenants, their hosts and the plan catalogue.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Tenant is a customer organization and the unit of data isolation.
type Tenant struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	SchemaName  string       `gorm:"type:varchar(63);not null;uniqueIndex:ux_tenants_schema_name" json:"schema_name"`
	DisplayName string       `gorm:"type:text;not null" json:"display_name"`
	Active      bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

func (Tenant) TableName() string { return "tenants" }

// Domain maps a request host to its tenant.
type Domain struct {
	Host      string       `gorm:"primaryKey;type:varchar(253)" json:"host"`
	TenantID  snowflake.ID `gorm:"not null;index:ix_domains_tenant_id" json:"tenant_id"`
	IsPrimary bool         `gorm:"column:is_primary;not null;default:false" json:"primary"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (Domain) TableName() string { return "domains" }

// Plan is a named bundle of limits and a price. Prices are stored in cents.
type Plan struct {
	ID                     snowflake.ID `gorm:"primaryKey" json:"id"`
	Slug                   string       `gorm:"type:varchar(64);not null;uniqueIndex:ux_plans_slug" json:"slug"`
	Name                   string       `gorm:"type:text;not null" json:"name"`
	PriceMonthlyCents      int64        `gorm:"column:price_monthly_cents;not null;default:0" json:"-"`
	PriceYearlyCents       int64        `gorm:"column:price_yearly_cents;not null;default:0" json:"-"`
	MaxUsers               int          `gorm:"not null" json:"max_users"`
	MaxCompanies           int          `gorm:"not null" json:"max_companies"`
	MaxBranches            int          `gorm:"not null" json:"max_branches"`
	MaxStorageGB           int          `gorm:"column:max_storage_gb;not null" json:"max_storage_gb"`
	TrialDays              int          `gorm:"not null;default:0" json:"trial_days"`
	Active                 bool         `gorm:"not null;default:true" json:"active"`
	SortOrder              int          `gorm:"not null;default:0" json:"sort_order"`
	ProviderPriceIDMonthly string       `gorm:"column:provider_price_id_monthly;type:text" json:"-"`
	ProviderPriceIDYearly  string       `gorm:"column:provider_price_id_yearly;type:text" json:"-"`
	CreatedAt              time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt              time.Time    `gorm:"not null" json:"updated_at"`
}

func (Plan) TableName() string { return "plans" }

// ProviderPriceID returns the provider price for cycle, empty when the plan
// is not sold on that cycle.
func (p Plan) ProviderPriceID(cycle string) string {
	switch cycle {
	case BillingCycleMonthly:
		return p.ProviderPriceIDMonthly
	case BillingCycleYearly:
		return p.ProviderPriceIDYearly
	}
	return ""
}

type Feature struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name        string            `gorm:"type:varchar(128);not null;uniqueIndex:ux_features_name" json:"name"`
	Description string            `gorm:"type:text" json:"description,omitempty"`
	Metadata    datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"not null" json:"created_at"`
}

func (Feature) TableName() string { return "features" }

type PlanFeature struct {
	PlanID    snowflake.ID `gorm:"primaryKey"`
	FeatureID snowflake.ID `gorm:"primaryKey"`
}

func (PlanFeature) TableName() string { return "plan_features" }

const (
	BillingCycleMonthly = "monthly"
	BillingCycleYearly  = "yearly"
)

func ValidBillingCycle(cycle string) bool {
	return cycle == BillingCycleMonthly || cycle == BillingCycleYearly
}
