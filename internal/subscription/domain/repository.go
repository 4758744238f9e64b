package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	Save(ctx context.Context, db *gorm.DB, sub *Subscription) error
	FindByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*Subscription, error)
	FindByTenantForUpdate(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*Subscription, error)
	FindByProviderIDForUpdate(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*Subscription, error)
	ListLapsedIDs(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error)
	ExpireIfLapsed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
}
