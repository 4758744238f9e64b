package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/controlplane/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) ReclaimEvent(ctx context.Context, db *gorm.DB, providerEventID string, at, staleBefore time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET outcome = ?, error = '', received_at = ?
		 WHERE provider_event_id = ?
		   AND (outcome = ? OR (outcome = ? AND received_at < ?))`,
		domain.OutcomeProcessing,
		at,
		providerEventID,
		domain.OutcomeFailed,
		domain.OutcomeProcessing,
		staleBefore,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) FinishEvent(ctx context.Context, db *gorm.DB, providerEventID, outcome, errMsg string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET outcome = ?, error = ?, processed_at = ?
		 WHERE provider_event_id = ?`,
		outcome,
		errMsg,
		at,
		providerEventID,
	).Error
}

func (r *repo) UpsertPaymentMethod(ctx context.Context, db *gorm.DB, method *domain.PaymentMethod) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider_payment_method_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"tenant_id", "provider_customer_id", "brand", "last4", "active", "updated_at",
			}),
		}).
		Create(method).Error
}

func (r *repo) DeactivatePaymentMethod(ctx context.Context, db *gorm.DB, providerPaymentMethodID string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE payment_methods SET active = ?, updated_at = ? WHERE provider_payment_method_id = ?`,
		false,
		at,
		providerPaymentMethodID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpsertPayment(ctx context.Context, db *gorm.DB, payment *domain.Payment, columns []string) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_payment_intent_id"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).
		Create(payment).Error
}

func (r *repo) UpsertInvoice(ctx context.Context, db *gorm.DB, invoice *domain.Invoice, columns []string) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_invoice_id"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).
		Create(invoice).Error
}

func (r *repo) TenantExists(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Table("tenants").Where("id = ?", tenantID).Count(&count).Error
	return count > 0, err
}

// TenantByCustomer attributes a provider customer to a tenant through stored
// payment methods, then through the billing customer mapping.
func (r *repo) TenantByCustomer(ctx context.Context, db *gorm.DB, providerCustomerID string) (snowflake.ID, error) {
	if providerCustomerID == "" {
		return 0, nil
	}
	var ids []snowflake.ID
	if err := db.WithContext(ctx).Raw(
		`SELECT tenant_id FROM payment_methods WHERE provider_customer_id = ? LIMIT 1`,
		providerCustomerID,
	).Scan(&ids).Error; err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		return ids[0], nil
	}
	if err := db.WithContext(ctx).Raw(
		`SELECT tenant_id FROM billing_customers WHERE customer_id = ? LIMIT 1`,
		providerCustomerID,
	).Scan(&ids).Error; err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		return ids[0], nil
	}
	return 0, nil
}

func (r *repo) TenantByProviderSubscription(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (snowflake.ID, error) {
	if providerSubscriptionID == "" {
		return 0, nil
	}
	var ids []snowflake.ID
	if err := db.WithContext(ctx).Raw(
		`SELECT tenant_id FROM subscriptions WHERE provider_subscription_id = ? LIMIT 1`,
		providerSubscriptionID,
	).Scan(&ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[0], nil
}

func (r *repo) SubscriptionIDForTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*snowflake.ID, error) {
	var ids []snowflake.ID
	if err := db.WithContext(ctx).Raw(
		`SELECT id FROM subscriptions WHERE tenant_id = ? LIMIT 1`,
		tenantID,
	).Scan(&ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return &ids[0], nil
}
