package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	InsertTenant(ctx context.Context, tenant Tenant) error
	InsertDomain(ctx context.Context, domain Domain) error
	FindTenantByHost(ctx context.Context, host string) (*Tenant, error)
	FindTenantByID(ctx context.Context, id snowflake.ID) (*Tenant, error)
	FindTenantBySchema(ctx context.Context, schemaName string) (*Tenant, error)
	FindPrimaryDomain(ctx context.Context, tenantID snowflake.ID) (*Domain, error)
	ListHosts(ctx context.Context, tenantID snowflake.ID) ([]string, error)
	HostExists(ctx context.Context, host string) (bool, error)
	SchemaNameExists(ctx context.Context, schemaName string) (bool, error)
	SetTenantActive(ctx context.Context, id snowflake.ID, active bool) (bool, error)
	DeleteTenantRows(ctx context.Context, id snowflake.ID) error

	ListActivePlans(ctx context.Context) ([]Plan, error)
	ListPlanFeatures(ctx context.Context, planIDs []snowflake.ID) (map[snowflake.ID][]string, error)
	FindPlanByID(ctx context.Context, id snowflake.ID) (*Plan, error)
	FindPlanBySlug(ctx context.Context, slug string) (*Plan, error)
	InsertPlan(ctx context.Context, plan Plan) error
	UpdatePlan(ctx context.Context, plan Plan) error
	EnsureFeature(ctx context.Context, feature Feature) (*Feature, error)
	ReplacePlanFeatures(ctx context.Context, planID snowflake.ID, featureIDs []snowflake.ID) error
}
