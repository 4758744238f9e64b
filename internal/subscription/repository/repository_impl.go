package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/controlplane/internal/subscription/domain"
	"github.com/smallbiznis/controlplane/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, sub *domain.Subscription) error {
	err := conn.WithContext(ctx).Create(sub).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrSubscriptionExists
	}
	return err
}

func (r *repo) Save(ctx context.Context, conn *gorm.DB, sub *domain.Subscription) error {
	return conn.WithContext(ctx).Model(&domain.Subscription{}).
		Where("id = ?", sub.ID).
		Updates(map[string]any{
			"plan_id":                  sub.PlanID,
			"status":                   sub.Status,
			"billing_cycle":            sub.BillingCycle,
			"period_start":             sub.PeriodStart,
			"period_end":               sub.PeriodEnd,
			"cancel_at_period_end":     sub.CancelAtPeriodEnd,
			"canceled_at":              sub.CanceledAt,
			"provider_subscription_id": sub.ProviderSubscriptionID,
			"provider_customer_id":     sub.ProviderCustomerID,
			"updated_at":               sub.UpdatedAt,
		}).Error
}

func (r *repo) FindByTenant(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID) (*domain.Subscription, error) {
	return first(conn.WithContext(ctx).Where("tenant_id = ?", tenantID))
}

func (r *repo) FindByTenantForUpdate(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID) (*domain.Subscription, error) {
	return first(db.ForUpdate(conn.WithContext(ctx)).Where("tenant_id = ?", tenantID))
}

func (r *repo) FindByProviderIDForUpdate(ctx context.Context, conn *gorm.DB, providerSubscriptionID string) (*domain.Subscription, error) {
	return first(db.ForUpdate(conn.WithContext(ctx)).Where("provider_subscription_id = ?", providerSubscriptionID))
}

func first(q *gorm.DB) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := q.First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repo) ListLapsedIDs(ctx context.Context, conn *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := conn.WithContext(ctx).Raw(
		`SELECT id FROM subscriptions
		 WHERE status IN (?, ?) AND period_end <= ?
		 ORDER BY period_end ASC
		 LIMIT ?`,
		domain.StatusTrial,
		domain.StatusActive,
		now,
		limit,
	).Scan(&ids).Error
	return ids, err
}

// ExpireIfLapsed re-checks the lapse condition so a concurrent renewal wins.
func (r *repo) ExpireIfLapsed(ctx context.Context, conn *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := conn.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?) AND period_end <= ?`,
		domain.StatusExpired,
		now,
		id,
		domain.StatusTrial,
		domain.StatusActive,
		now,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
