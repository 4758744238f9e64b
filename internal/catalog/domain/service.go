package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrTenantNotFound     = errors.New("tenant_not_found")
	ErrTenantInactive     = errors.New("tenant_inactive")
	ErrDuplicateName      = errors.New("duplicate_name")
	ErrInvalidSchemaName  = errors.New("invalid_schema_name")
	ErrInvalidHost        = errors.New("invalid_host")
	ErrReservedHost       = errors.New("reserved_host")
	ErrInvalidName        = errors.New("invalid_display_name")
	ErrPlanNotFound       = errors.New("plan_not_found")
	ErrPlanInactive       = errors.New("plan_inactive")
	ErrInvalidPlan        = errors.New("invalid_plan")
	ErrPlanExists         = errors.New("plan_exists")
	ErrPlanPriceImmutable = errors.New("plan_price_immutable")
)

type CreateTenantRequest struct {
	SchemaName  string
	DisplayName string
	PrimaryHost string
}

// TenantCleanup removes state kept outside the catalog tables when a tenant
// is deleted. It runs inside the catalog delete transaction.
type TenantCleanup interface {
	CleanupTenant(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID) error
}

// PlanView is the public rendering of a plan.
type PlanView struct {
	ID           snowflake.ID `json:"id"`
	Slug         string       `json:"slug"`
	Name         string       `json:"name"`
	PriceMonthly string       `json:"price_monthly"`
	PriceYearly  string       `json:"price_yearly"`
	MaxUsers     int          `json:"max_users"`
	MaxCompanies int          `json:"max_companies"`
	MaxBranches  int          `json:"max_branches"`
	MaxStorageGB int          `json:"max_storage_gb"`
	Features     []string     `json:"features"`
	IsTrial      bool         `json:"is_trial"`
	TrialDays    int          `json:"trial_days"`
}

type UpsertPlanRequest struct {
	Slug                   string
	Name                   string
	PriceMonthlyCents      int64
	PriceYearlyCents       int64
	MaxUsers               int
	MaxCompanies           int
	MaxBranches            int
	MaxStorageGB           int
	TrialDays              int
	SortOrder              int
	ProviderPriceIDMonthly string
	ProviderPriceIDYearly  string
	Features               []string
	// CreateOnly rejects an existing slug with ErrPlanExists instead of updating it.
	CreateOnly bool
}

type Service interface {
	// ResolveByHost returns the active tenant serving host.
	ResolveByHost(ctx context.Context, host string) (*Tenant, error)
	GetTenant(ctx context.Context, id snowflake.ID) (*Tenant, error)
	GetTenantBySchema(ctx context.Context, schemaName string) (*Tenant, error)
	PrimaryDomain(ctx context.Context, tenantID snowflake.ID) (*Domain, error)

	// CreateTenant writes the tenant and its primary domain in one commit.
	CreateTenant(ctx context.Context, req CreateTenantRequest) (*Tenant, error)
	// CreateTenantTx is CreateTenant inside a caller-owned transaction.
	CreateTenantTx(ctx context.Context, tx *gorm.DB, req CreateTenantRequest) (*Tenant, error)
	DeactivateTenant(ctx context.Context, id snowflake.ID) error
	// DeleteTenant drops the namespace and every catalog row owned by the tenant.
	DeleteTenant(ctx context.Context, id snowflake.ID) error
	// PurgeTenant deletes the tenant's catalog rows only; the namespace is left alone.
	PurgeTenant(ctx context.Context, id snowflake.ID) error

	// NormalizeHost turns user input into a host, appending the base domain to bare labels.
	NormalizeHost(input string) (string, error)
	IsHostAvailable(ctx context.Context, host string) (bool, error)
	// AllocateSchemaName derives a schema name for host that no tenant or namespace uses yet.
	AllocateSchemaName(ctx context.Context, host string) (string, error)

	ListPlans(ctx context.Context) ([]PlanView, error)
	GetPlan(ctx context.Context, id snowflake.ID) (*Plan, error)
	UpsertPlan(ctx context.Context, req UpsertPlanRequest) (*Plan, bool, error)
}
