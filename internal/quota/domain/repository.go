package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, usage QuotaUsage) error
	Get(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*QuotaUsage, error)
	Limits(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*Limits, error)
	// IncrementWithinLimit applies delta only if the result stays within the
	// plan limit. It reports whether a row was updated.
	IncrementWithinLimit(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, kind Kind, delta int64, now time.Time) (bool, error)
	DecrementClamped(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, kind Kind, delta int64, now time.Time) error
	Overwrite(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, counts Counts, now time.Time) (bool, error)
}
