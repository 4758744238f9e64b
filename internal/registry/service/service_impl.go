package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	catalogdomain "github.com/smallbiznis/controlplane/internal/catalog/domain"
	"github.com/smallbiznis/controlplane/internal/clock"
	"github.com/smallbiznis/controlplane/internal/provisioner"
	quotadomain "github.com/smallbiznis/controlplane/internal/quota/domain"
	"github.com/smallbiznis/controlplane/internal/registry/domain"
	"github.com/smallbiznis/controlplane/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Provisioner provisioner.Provisioner
	Ledger      quotadomain.Ledger
	Members     domain.MemberCounter
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	provisioner provisioner.Provisioner
	ledger      quotadomain.Ledger
	members     domain.MemberCounter
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("registry.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		provisioner: p.Provisioner,
		ledger:      p.Ledger,
		members:     p.Members,
	}
}

func (s *Service) CreateCompany(ctx context.Context, tenant *catalogdomain.Tenant, req domain.CreateCompanyRequest) (*domain.Company, error) {
	return s.createCompany(ctx, tenant, req, false)
}

func (s *Service) CreatePrimaryCompany(ctx context.Context, tenant *catalogdomain.Tenant, req domain.CreateCompanyRequest) (*domain.Company, error) {
	return s.createCompany(ctx, tenant, req, true)
}

func (s *Service) createCompany(ctx context.Context, tenant *catalogdomain.Tenant, req domain.CreateCompanyRequest, primary bool) (*domain.Company, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	code := slug.Make(name)
	if code == "" {
		return nil, domain.ErrInvalidName
	}
	if len(code) > 96 {
		code = code[:96]
	}
	ns := s.namespace(tenant)
	now := s.clock.Now()
	company := &domain.Company{
		ID:        s.genID.Generate(),
		TenantID:  tenant.ID,
		Name:      name,
		Code:      code,
		TaxID:     strings.TrimSpace(req.TaxID),
		LegalName: strings.TrimSpace(req.LegalName),
		IsPrimary: primary,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.insert(s.db.WithContext(ctx), ns, "companies",
		[]string{"id", "tenant_id", "name", "code", "tax_id", "legal_name", "is_primary", "created_at", "updated_at"},
		company.ID,
		company.TenantID,
		company.Name,
		company.Code,
		company.TaxID,
		company.LegalName,
		company.IsPrimary,
		company.CreatedAt,
		company.UpdatedAt,
	)
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrCompanyExists
		}
		return nil, err
	}
	return company, nil
}

func (s *Service) DeleteCompany(ctx context.Context, tenant *catalogdomain.Tenant, id snowflake.ID) error {
	ns := s.namespace(tenant)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var companies []domain.Company
		if err := tx.Raw(
			fmt.Sprintf(`SELECT id, is_primary FROM %s WHERE tenant_id = ? AND id = ?`, ns.Table("companies")),
			tenant.ID, id,
		).Scan(&companies).Error; err != nil {
			return err
		}
		if len(companies) == 0 {
			return domain.ErrCompanyNotFound
		}
		if companies[0].IsPrimary {
			return domain.ErrPrimaryCompany
		}

		branches := tx.Exec(
			fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = ? AND company_id = ?`, ns.Table("branches")),
			tenant.ID, id,
		)
		if branches.Error != nil {
			return branches.Error
		}
		if err := tx.Exec(
			fmt.Sprintf(`UPDATE %s SET company_id = NULL WHERE tenant_id = ? AND company_id = ?`, ns.Table("documents")),
			tenant.ID, id,
		).Error; err != nil {
			return err
		}
		if err := tx.Exec(
			fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = ? AND id = ?`, ns.Table("companies")),
			tenant.ID, id,
		).Error; err != nil {
			return err
		}

		if err := s.ledger.ReleaseTx(ctx, tx, tenant.ID, quotadomain.KindCompanies, 1); err != nil {
			return err
		}
		if branches.RowsAffected > 0 {
			if err := s.ledger.ReleaseTx(ctx, tx, tenant.ID, quotadomain.KindBranches, branches.RowsAffected); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) CreateBranch(ctx context.Context, tenant *catalogdomain.Tenant, req domain.CreateBranchRequest) (*domain.Branch, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	ns := s.namespace(tenant)
	now := s.clock.Now()
	branch := &domain.Branch{
		ID:        s.genID.Generate(),
		TenantID:  tenant.ID,
		CompanyID: req.CompanyID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.companyExists(ctx, tx, ns, req.CompanyID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrCompanyNotFound
		}
		return s.insert(tx, ns, "branches",
			[]string{"id", "tenant_id", "company_id", "name", "created_at", "updated_at"},
			branch.ID,
			branch.TenantID,
			branch.CompanyID,
			branch.Name,
			branch.CreatedAt,
			branch.UpdatedAt,
		)
	})
	if err != nil {
		return nil, err
	}
	return branch, nil
}

func (s *Service) DeleteBranch(ctx context.Context, tenant *catalogdomain.Tenant, id snowflake.ID) error {
	ns := s.namespace(tenant)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(
			fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = ? AND id = ?`, ns.Table("branches")),
			tenant.ID, id,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrBranchNotFound
		}
		return s.ledger.ReleaseTx(ctx, tx, tenant.ID, quotadomain.KindBranches, 1)
	})
}

// CreateDocument reserves size_mb of storage and inserts the document in one
// transaction, so a refused reservation leaves no row behind.
func (s *Service) CreateDocument(ctx context.Context, tenant *catalogdomain.Tenant, req domain.CreateDocumentRequest) (*domain.Document, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.SizeMB < 0 {
		return nil, domain.ErrInvalidSize
	}
	ns := s.namespace(tenant)
	now := s.clock.Now()
	doc := &domain.Document{
		ID:        s.genID.Generate(),
		TenantID:  tenant.ID,
		CompanyID: req.CompanyID,
		Name:      name,
		SizeMB:    req.SizeMB,
		CreatedAt: now,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.CompanyID != nil {
			ok, err := s.companyExists(ctx, tx, ns, *req.CompanyID)
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrCompanyNotFound
			}
		}
		if doc.SizeMB > 0 {
			if err := s.ledger.ReserveTx(ctx, tx, tenant.ID, quotadomain.KindStorage, doc.SizeMB); err != nil {
				return err
			}
		}
		return s.insert(tx, ns, "documents",
			[]string{"id", "tenant_id", "company_id", "name", "size_mb", "created_at"},
			doc.ID,
			doc.TenantID,
			doc.CompanyID,
			doc.Name,
			doc.SizeMB,
			doc.CreatedAt,
		)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Service) DeleteDocument(ctx context.Context, tenant *catalogdomain.Tenant, id snowflake.ID) error {
	ns := s.namespace(tenant)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var docs []domain.Document
		if err := tx.Raw(
			fmt.Sprintf(`SELECT id, size_mb FROM %s WHERE tenant_id = ? AND id = ?`, ns.Table("documents")),
			tenant.ID, id,
		).Scan(&docs).Error; err != nil {
			return err
		}
		if len(docs) == 0 {
			return domain.ErrDocumentNotFound
		}
		if err := tx.Exec(
			fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = ? AND id = ?`, ns.Table("documents")),
			tenant.ID, id,
		).Error; err != nil {
			return err
		}
		if docs[0].SizeMB > 0 {
			return s.ledger.ReleaseTx(ctx, tx, tenant.ID, quotadomain.KindStorage, docs[0].SizeMB)
		}
		return nil
	})
}

func (s *Service) Counts(ctx context.Context, tenant *catalogdomain.Tenant) (quotadomain.Counts, error) {
	ns := s.namespace(tenant)
	var counts quotadomain.Counts
	conn := s.db.WithContext(ctx)

	if err := conn.Raw(
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE tenant_id = ? AND is_primary = ?`, ns.Table("companies")),
		tenant.ID, false,
	).Scan(&counts.Companies).Error; err != nil {
		return counts, err
	}
	if err := conn.Raw(
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE tenant_id = ?`, ns.Table("branches")),
		tenant.ID,
	).Scan(&counts.Branches).Error; err != nil {
		return counts, err
	}
	if err := conn.Raw(
		fmt.Sprintf(`SELECT COALESCE(SUM(size_mb), 0) FROM %s WHERE tenant_id = ?`, ns.Table("documents")),
		tenant.ID,
	).Scan(&counts.StorageMB).Error; err != nil {
		return counts, err
	}

	users, err := s.members.CountMembers(ctx, tenant.ID)
	if err != nil {
		return counts, err
	}
	counts.Users = users
	return counts, nil
}

func (s *Service) Recount(ctx context.Context, tenant *catalogdomain.Tenant) (quotadomain.Counts, error) {
	counts, err := s.Counts(ctx, tenant)
	if err != nil {
		return counts, err
	}
	if err := s.ledger.Recount(ctx, tenant.ID, counts); err != nil {
		return counts, err
	}
	s.log.Info("quota recounted",
		zap.String("tenant_id", tenant.ID.String()),
		zap.Int64("users", counts.Users),
		zap.Int64("companies", counts.Companies),
		zap.Int64("branches", counts.Branches),
		zap.Int64("storage_mb", counts.StorageMB),
	)
	return counts, nil
}

func (s *Service) companyExists(ctx context.Context, tx *gorm.DB, ns provisioner.Namespace, id snowflake.ID) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Raw(
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE tenant_id = ? AND id = ?`, ns.Table("companies")),
		ns.TenantID, id,
	).Scan(&count).Error
	if db.IsMissingSchema(err) {
		return false, domain.ErrNamespaceNotReady
	}
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// insert fails with ErrNamespaceNotReady until the tenant is provisioned and
// again once its namespace is dropped.
func (s *Service) insert(tx *gorm.DB, ns provisioner.Namespace, table string, columns []string, values ...any) error {
	result := ns.Insert(tx, table, columns, values...)
	if result.Error != nil {
		if db.IsMissingSchema(result.Error) {
			return domain.ErrNamespaceNotReady
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNamespaceNotReady
	}
	return nil
}

func (s *Service) namespace(tenant *catalogdomain.Tenant) provisioner.Namespace {
	return s.provisioner.Namespace(tenant.SchemaName, tenant.ID)
}

// IsNotFound reports whether err is one of the registry not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrCompanyNotFound) ||
		errors.Is(err, domain.ErrBranchNotFound) ||
		errors.Is(err, domain.ErrDocumentNotFound)
}
