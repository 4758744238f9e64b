package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/controlplane/internal/catalog/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// tenantOwnedTables lists shared tables holding per-tenant rows, children first.
var tenantOwnedTables = []string{
	"payment_methods",
	"payments",
	"invoices",
	"billing_customers",
	"quota_usages",
	"subscriptions",
	"access_tokens",
	"users",
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) InsertTenant(ctx context.Context, tenant domain.Tenant) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO tenants (id, schema_name, display_name, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tenant.ID,
		tenant.SchemaName,
		tenant.DisplayName,
		tenant.Active,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	).Error
}

func (r *repository) InsertDomain(ctx context.Context, d domain.Domain) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO domains (host, tenant_id, is_primary, created_at)
		 VALUES (?, ?, ?, ?)`,
		d.Host,
		d.TenantID,
		d.IsPrimary,
		d.CreatedAt,
	).Error
}

func (r *repository) FindTenantByHost(ctx context.Context, host string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := r.db.WithContext(ctx).Raw(
		`SELECT t.id, t.schema_name, t.display_name, t.active, t.created_at, t.updated_at
		 FROM tenants t
		 JOIN domains d ON d.tenant_id = t.id
		 WHERE d.host = ?
		 LIMIT 1`,
		host,
	).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == 0 {
		return nil, nil
	}
	return &tenant, nil
}

func (r *repository) FindTenantByID(ctx context.Context, id snowflake.ID) (*domain.Tenant, error) {
	return r.findTenant(ctx, "id = ?", id)
}

func (r *repository) FindTenantBySchema(ctx context.Context, schemaName string) (*domain.Tenant, error) {
	return r.findTenant(ctx, "schema_name = ?", schemaName)
}

func (r *repository) findTenant(ctx context.Context, where string, arg any) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := r.db.WithContext(ctx).Where(where, arg).First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (r *repository) FindPrimaryDomain(ctx context.Context, tenantID snowflake.ID) (*domain.Domain, error) {
	var d domain.Domain
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_primary = ?", tenantID, true).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repository) ListHosts(ctx context.Context, tenantID snowflake.ID) ([]string, error) {
	var hosts []string
	err := r.db.WithContext(ctx).Raw(
		`SELECT host FROM domains WHERE tenant_id = ? ORDER BY host`,
		tenantID,
	).Scan(&hosts).Error
	return hosts, err
}

func (r *repository) HostExists(ctx context.Context, host string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Raw(`SELECT COUNT(1) FROM domains WHERE host = ?`, host).Scan(&count).Error
	return count > 0, err
}

func (r *repository) SchemaNameExists(ctx context.Context, schemaName string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Raw(`SELECT COUNT(1) FROM tenants WHERE schema_name = ?`, schemaName).Scan(&count).Error
	return count > 0, err
}

func (r *repository) SetTenantActive(ctx context.Context, id snowflake.ID, active bool) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE tenants SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		active,
		id,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) DeleteTenantRows(ctx context.Context, id snowflake.ID) error {
	db := r.db.WithContext(ctx)
	for _, table := range tenantOwnedTables {
		if err := db.Exec(`DELETE FROM `+table+` WHERE tenant_id = ?`, id).Error; err != nil {
			return err
		}
	}
	if err := db.Exec(`DELETE FROM domains WHERE tenant_id = ?`, id).Error; err != nil {
		return err
	}
	return db.Exec(`DELETE FROM tenants WHERE id = ?`, id).Error
}

func (r *repository) ListActivePlans(ctx context.Context) ([]domain.Plan, error) {
	var plans []domain.Plan
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("sort_order ASC").
		Order("price_monthly_cents ASC").
		Find(&plans).Error
	return plans, err
}

func (r *repository) ListPlanFeatures(ctx context.Context, planIDs []snowflake.ID) (map[snowflake.ID][]string, error) {
	out := make(map[snowflake.ID][]string, len(planIDs))
	if len(planIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		PlanID snowflake.ID
		Name   string
	}
	err := r.db.WithContext(ctx).Raw(
		`SELECT pf.plan_id, f.name
		 FROM plan_features pf
		 JOIN features f ON f.id = pf.feature_id
		 WHERE pf.plan_id IN ?
		 ORDER BY f.name`,
		planIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.PlanID] = append(out[row.PlanID], row.Name)
	}
	return out, nil
}

func (r *repository) FindPlanByID(ctx context.Context, id snowflake.ID) (*domain.Plan, error) {
	return r.findPlan(ctx, "id = ?", id)
}

func (r *repository) FindPlanBySlug(ctx context.Context, slug string) (*domain.Plan, error) {
	return r.findPlan(ctx, "slug = ?", slug)
}

func (r *repository) findPlan(ctx context.Context, where string, arg any) (*domain.Plan, error) {
	var plan domain.Plan
	err := r.db.WithContext(ctx).Where(where, arg).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repository) InsertPlan(ctx context.Context, plan domain.Plan) error {
	return r.db.WithContext(ctx).Create(&plan).Error
}

// UpdatePlan rewrites limits and presentation. Prices are never updated.
func (r *repository) UpdatePlan(ctx context.Context, plan domain.Plan) error {
	return r.db.WithContext(ctx).Model(&domain.Plan{}).
		Where("id = ?", plan.ID).
		Updates(map[string]any{
			"name":                      plan.Name,
			"max_users":                 plan.MaxUsers,
			"max_companies":             plan.MaxCompanies,
			"max_branches":              plan.MaxBranches,
			"max_storage_gb":            plan.MaxStorageGB,
			"trial_days":                plan.TrialDays,
			"sort_order":                plan.SortOrder,
			"active":                    plan.Active,
			"provider_price_id_monthly": plan.ProviderPriceIDMonthly,
			"provider_price_id_yearly":  plan.ProviderPriceIDYearly,
			"updated_at":                plan.UpdatedAt,
		}).Error
}

func (r *repository) EnsureFeature(ctx context.Context, feature domain.Feature) (*domain.Feature, error) {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&feature).Error; err != nil {
		return nil, err
	}
	var stored domain.Feature
	if err := db.Where("name = ?", feature.Name).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *repository) ReplacePlanFeatures(ctx context.Context, planID snowflake.ID, featureIDs []snowflake.ID) error {
	db := r.db.WithContext(ctx)
	if err := db.Exec(`DELETE FROM plan_features WHERE plan_id = ?`, planID).Error; err != nil {
		return err
	}
	for _, featureID := range featureIDs {
		if err := db.Exec(
			`INSERT INTO plan_features (plan_id, feature_id) VALUES (?, ?)`,
			planID,
			featureID,
		).Error; err != nil {
			return err
		}
	}
	return nil
}
