package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertEvent records a delivery; false means the provider event id is already logged.
	InsertEvent(ctx context.Context, db *gorm.DB, event *WebhookEvent) (bool, error)
	// ReclaimEvent moves a failed event, or one stuck in processing since
	// before staleBefore, back to processing so a retry can run it.
	ReclaimEvent(ctx context.Context, db *gorm.DB, providerEventID string, at, staleBefore time.Time) (bool, error)
	FinishEvent(ctx context.Context, db *gorm.DB, providerEventID, outcome, errMsg string, at time.Time) error

	UpsertPaymentMethod(ctx context.Context, db *gorm.DB, method *PaymentMethod) error
	DeactivatePaymentMethod(ctx context.Context, db *gorm.DB, providerPaymentMethodID string, at time.Time) (bool, error)
	UpsertPayment(ctx context.Context, db *gorm.DB, payment *Payment, columns []string) error
	UpsertInvoice(ctx context.Context, db *gorm.DB, invoice *Invoice, columns []string) error

	TenantExists(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (bool, error)
	TenantByCustomer(ctx context.Context, db *gorm.DB, providerCustomerID string) (snowflake.ID, error)
	TenantByProviderSubscription(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (snowflake.ID, error)
	SubscriptionIDForTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*snowflake.ID, error)
}
