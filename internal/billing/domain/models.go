package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BillingCustomer maps a tenant to its customer record at the payment provider.
type BillingCustomer struct {
	TenantID   snowflake.ID `gorm:"primaryKey" json:"tenant_id"`
	Provider   string       `gorm:"type:varchar(32);not null" json:"provider"`
	CustomerID string       `gorm:"type:varchar(255);not null;index" json:"customer_id"`
	Email      string       `gorm:"type:varchar(254)" json:"email,omitempty"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null" json:"updated_at"`
}

func (BillingCustomer) TableName() string { return "billing_customers" }
