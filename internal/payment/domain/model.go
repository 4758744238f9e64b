package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PaymentMethod mirrors a card or other instrument stored at the provider.
type PaymentMethod struct {
	ID                      snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID                snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	ProviderPaymentMethodID *string      `gorm:"type:varchar(255);uniqueIndex:ux_payment_methods_provider_id" json:"provider_payment_method_id,omitempty"`
	ProviderCustomerID      string       `gorm:"type:varchar(255);index" json:"provider_customer_id,omitempty"`
	Brand                   string       `gorm:"type:varchar(32)" json:"brand,omitempty"`
	Last4                   string       `gorm:"type:varchar(4)" json:"last4,omitempty"`
	Active                  bool         `gorm:"not null" json:"active"`
	CreatedAt               time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt               time.Time    `gorm:"not null" json:"updated_at"`
}

func (PaymentMethod) TableName() string { return "payment_methods" }

const (
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
)

// Payment mirrors a provider payment intent.
type Payment struct {
	ID                      snowflake.ID  `gorm:"primaryKey" json:"id"`
	TenantID                snowflake.ID  `gorm:"not null;index" json:"tenant_id"`
	SubscriptionID          *snowflake.ID `gorm:"index" json:"subscription_id,omitempty"`
	ProviderPaymentIntentID *string       `gorm:"type:varchar(255);uniqueIndex:ux_payments_provider_id" json:"provider_payment_intent_id,omitempty"`
	Amount                  int64         `gorm:"not null" json:"amount"`
	Currency                string        `gorm:"type:varchar(8)" json:"currency"`
	Status                  string        `gorm:"type:varchar(16);not null" json:"status"`
	PaidAt                  *time.Time    `json:"paid_at,omitempty"`
	FailedAt                *time.Time    `json:"failed_at,omitempty"`
	FailureReason           string        `gorm:"type:text" json:"failure_reason,omitempty"`
	CreatedAt               time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt               time.Time     `gorm:"not null" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// Invoice mirrors a provider invoice.
type Invoice struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID          snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	ProviderInvoiceID *string      `gorm:"type:varchar(255);uniqueIndex:ux_invoices_provider_id" json:"provider_invoice_id,omitempty"`
	AmountDue         int64        `gorm:"not null" json:"amount_due"`
	AmountPaid        int64        `gorm:"not null" json:"amount_paid"`
	Currency          string       `gorm:"type:varchar(8)" json:"currency"`
	IsPaid            bool         `gorm:"not null" json:"is_paid"`
	PaidAt            *time.Time   `json:"paid_at,omitempty"`
	HostedURL         string       `gorm:"type:text" json:"hosted_url,omitempty"`
	CreatedAt         time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"not null" json:"updated_at"`
}

func (Invoice) TableName() string { return "invoices" }

const (
	OutcomeProcessing   = "processing"
	OutcomeProcessed    = "processed"
	OutcomeIgnored      = "ignored"
	OutcomeUnattributed = "unattributed"
	OutcomeFailed       = "failed"
	OutcomeDuplicate    = "duplicate"
)

// WebhookEvent is the idempotency log for provider events.
type WebhookEvent struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	ProviderEventID string         `gorm:"type:varchar(255);not null;uniqueIndex:ux_webhook_events_provider_event_id" json:"provider_event_id"`
	Type            string         `gorm:"type:varchar(128);not null" json:"type"`
	Payload         datatypes.JSON `json:"payload"`
	ReceivedAt      time.Time      `gorm:"not null" json:"received_at"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
	Outcome         string         `gorm:"type:varchar(32);not null" json:"outcome"`
	Error           string         `gorm:"type:text" json:"error,omitempty"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }
