package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/controlplane/internal/catalog/domain"
	quotadomain "github.com/smallbiznis/controlplane/internal/quota/domain"
)

var (
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidSize       = errors.New("invalid_size")
	ErrCompanyExists     = errors.New("company_exists")
	ErrCompanyNotFound   = errors.New("company_not_found")
	ErrBranchNotFound    = errors.New("branch_not_found")
	ErrDocumentNotFound  = errors.New("document_not_found")
	ErrPrimaryCompany    = errors.New("primary_company_protected")
	ErrNamespaceNotReady = errors.New("namespace_not_ready")
)

type CreateCompanyRequest struct {
	Name      string `json:"name"`
	TaxID     string `json:"tax_id"`
	LegalName string `json:"legal_name"`
}

type CreateBranchRequest struct {
	CompanyID snowflake.ID `json:"company_id"`
	Name      string       `json:"name"`
}

type CreateDocumentRequest struct {
	CompanyID *snowflake.ID `json:"company_id"`
	Name      string        `json:"name"`
	SizeMB    int64         `json:"size_mb"`
}

// MemberCounter counts the metered users of a tenant.
type MemberCounter interface {
	CountMembers(ctx context.Context, tenantID snowflake.ID) (int64, error)
}

// Service writes business entities into a tenant namespace. Company and
// branch slots are reserved by admission; documents reserve storage in the
// same transaction as their insert. Deletions release in the same transaction.
type Service interface {
	CreateCompany(ctx context.Context, tenant *catalogdomain.Tenant, req CreateCompanyRequest) (*Company, error)
	// CreatePrimaryCompany writes the unmetered company created at signup.
	CreatePrimaryCompany(ctx context.Context, tenant *catalogdomain.Tenant, req CreateCompanyRequest) (*Company, error)
	DeleteCompany(ctx context.Context, tenant *catalogdomain.Tenant, id snowflake.ID) error

	CreateBranch(ctx context.Context, tenant *catalogdomain.Tenant, req CreateBranchRequest) (*Branch, error)
	DeleteBranch(ctx context.Context, tenant *catalogdomain.Tenant, id snowflake.ID) error

	CreateDocument(ctx context.Context, tenant *catalogdomain.Tenant, req CreateDocumentRequest) (*Document, error)
	DeleteDocument(ctx context.Context, tenant *catalogdomain.Tenant, id snowflake.ID) error

	// Counts returns the authoritative metered counts of the namespace.
	Counts(ctx context.Context, tenant *catalogdomain.Tenant) (quotadomain.Counts, error)
	// Recount overwrites the quota ledger with Counts.
	Recount(ctx context.Context, tenant *catalogdomain.Tenant) (quotadomain.Counts, error)
}
