package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/controlplane/internal/quota/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, usage domain.QuotaUsage) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO quota_usages (tenant_id, users_count, companies_count, branches_count, storage_mb, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		usage.TenantID,
		usage.UsersCount,
		usage.CompaniesCount,
		usage.BranchesCount,
		usage.StorageMB,
		usage.UpdatedAt,
	).Error
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*domain.QuotaUsage, error) {
	var usage domain.QuotaUsage
	err := db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

func (r *repo) Limits(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*domain.Limits, error) {
	var rows []domain.Limits
	err := db.WithContext(ctx).Raw(
		`SELECT p.max_users AS users,
			p.max_companies AS companies,
			p.max_branches AS branches,
			p.max_storage_gb * 1024 AS storage_mb
		 FROM subscriptions s
		 JOIN plans p ON p.id = s.plan_id
		 WHERE s.tenant_id = ?
		 LIMIT 1`,
		tenantID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// IncrementWithinLimit is the whole reservation: the limit is read from the
// tenant's current plan in the same statement, and the row lock taken by the
// UPDATE serializes concurrent reservations for one tenant.
func (r *repo) IncrementWithinLimit(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, kind domain.Kind, delta int64, now time.Time) (bool, error) {
	usageCol, limitExpr, ok := kind.Columns()
	if !ok {
		return false, domain.ErrUnknownKind
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE quota_usages
		 SET `+usageCol+` = `+usageCol+` + ?, updated_at = ?
		 WHERE tenant_id = ?
		   AND `+usageCol+` + ? <= (
			SELECT `+limitExpr+`
			FROM subscriptions s
			JOIN plans p ON p.id = s.plan_id
			WHERE s.tenant_id = ?
		   )`,
		delta,
		now,
		tenantID,
		delta,
		tenantID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) DecrementClamped(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, kind domain.Kind, delta int64, now time.Time) error {
	usageCol, _, ok := kind.Columns()
	if !ok {
		return domain.ErrUnknownKind
	}
	return db.WithContext(ctx).Exec(
		`UPDATE quota_usages
		 SET `+usageCol+` = CASE WHEN `+usageCol+` - ? < 0 THEN 0 ELSE `+usageCol+` - ? END,
		     updated_at = ?
		 WHERE tenant_id = ?`,
		delta,
		delta,
		now,
		tenantID,
	).Error
}

func (r *repo) Overwrite(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, counts domain.Counts, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE quota_usages
		 SET users_count = ?, companies_count = ?, branches_count = ?, storage_mb = ?, updated_at = ?
		 WHERE tenant_id = ?`,
		counts.Users,
		counts.Companies,
		counts.Branches,
		counts.StorageMB,
		now,
		tenantID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
