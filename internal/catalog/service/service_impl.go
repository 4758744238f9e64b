package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/controlplane/internal/cache"
	"github.com/smallbiznis/controlplane/internal/catalog/domain"
	"github.com/smallbiznis/controlplane/internal/catalog/repository"
	"github.com/smallbiznis/controlplane/internal/clock"
	"github.com/smallbiznis/controlplane/internal/config"
	"github.com/smallbiznis/controlplane/internal/provisioner"
	"github.com/smallbiznis/controlplane/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxSchemaNameAttempts = 50

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Cfg         config.Config
	Admission   *config.AdmissionConfigHolder `optional:"true"`
	Provisioner provisioner.Provisioner
	Redis       *redis.Client          `optional:"true"`
	Cleanups    []domain.TenantCleanup `group:"tenant_cleanup"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	provisioner provisioner.Provisioner
	admission   *config.AdmissionConfigHolder
	cleanups    []domain.TenantCleanup

	baseDomain string
	hostTTL    time.Duration
	hosts      cache.Cache[string, domain.Tenant]
	remote     cache.Remote
}

func NewService(p Params) domain.Service {
	svc := &Service{
		db:          p.DB,
		log:         p.Log.Named("catalog.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        repository.NewRepository(p.DB),
		provisioner: p.Provisioner,
		admission:   p.Admission,
		cleanups:    p.Cleanups,
		baseDomain:  p.Cfg.Tenancy.BaseDomain,
		hostTTL:     p.Cfg.Tenancy.HostCacheTTL,
		hosts:       cache.NewTTLCache[string, domain.Tenant](),
	}
	if p.Redis != nil {
		svc.remote = cache.NewRedisCache(p.Redis, "controlplane:host:")
	}
	return svc
}

func (s *Service) ResolveByHost(ctx context.Context, host string) (*domain.Tenant, error) {
	host = domain.HostWithoutPort(host)
	if host == "" {
		return nil, domain.ErrTenantNotFound
	}

	if tenant, ok := s.hosts.Get(host); ok {
		return &tenant, nil
	}
	if s.remote != nil {
		var tenant domain.Tenant
		ok, err := s.remote.Get(ctx, host, &tenant)
		if err != nil {
			s.log.Warn("remote host cache read failed", zap.String("host", host), zap.Error(err))
		}
		if ok && tenant.Active {
			s.hosts.Set(host, tenant, s.hostTTL)
			return &tenant, nil
		}
	}

	tenant, err := s.repo.FindTenantByHost(ctx, host)
	if err != nil {
		return nil, err
	}
	if tenant == nil || !tenant.Active {
		return nil, domain.ErrTenantNotFound
	}

	s.hosts.Set(host, *tenant, s.hostTTL)
	if s.remote != nil {
		if err := s.remote.Set(ctx, host, tenant, s.hostTTL); err != nil {
			s.log.Warn("remote host cache write failed", zap.String("host", host), zap.Error(err))
		}
	}
	return tenant, nil
}

func (s *Service) GetTenant(ctx context.Context, id snowflake.ID) (*domain.Tenant, error) {
	tenant, err := s.repo.FindTenantByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, domain.ErrTenantNotFound
	}
	return tenant, nil
}

func (s *Service) GetTenantBySchema(ctx context.Context, schemaName string) (*domain.Tenant, error) {
	tenant, err := s.repo.FindTenantBySchema(ctx, schemaName)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, domain.ErrTenantNotFound
	}
	return tenant, nil
}

func (s *Service) PrimaryDomain(ctx context.Context, tenantID snowflake.ID) (*domain.Domain, error) {
	d, err := s.repo.FindPrimaryDomain(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, domain.ErrTenantNotFound
	}
	return d, nil
}

func (s *Service) CreateTenant(ctx context.Context, req domain.CreateTenantRequest) (*domain.Tenant, error) {
	var tenant *domain.Tenant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := s.CreateTenantTx(ctx, tx, req)
		if err != nil {
			return err
		}
		tenant = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

func (s *Service) CreateTenantTx(ctx context.Context, tx *gorm.DB, req domain.CreateTenantRequest) (*domain.Tenant, error) {
	schemaName := strings.TrimSpace(req.SchemaName)
	displayName := strings.TrimSpace(req.DisplayName)
	host := domain.HostWithoutPort(req.PrimaryHost)

	if !domain.ValidSchemaName(schemaName) {
		return nil, domain.ErrInvalidSchemaName
	}
	if displayName == "" {
		return nil, domain.ErrInvalidName
	}
	if !domain.ValidHost(host) {
		return nil, domain.ErrInvalidHost
	}

	repo := s.repo.WithTx(tx)
	taken, err := repo.SchemaNameExists(ctx, schemaName)
	if err != nil {
		return nil, err
	}
	if !taken {
		taken, err = repo.HostExists(ctx, host)
		if err != nil {
			return nil, err
		}
	}
	if taken {
		return nil, domain.ErrDuplicateName
	}

	now := s.clock.Now()
	tenant := domain.Tenant{
		ID:          s.genID.Generate(),
		SchemaName:  schemaName,
		DisplayName: displayName,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.InsertTenant(ctx, tenant); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateName
		}
		return nil, err
	}
	if err := repo.InsertDomain(ctx, domain.Domain{
		Host:      host,
		TenantID:  tenant.ID,
		IsPrimary: true,
		CreatedAt: now,
	}); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateName
		}
		return nil, err
	}
	return &tenant, nil
}

func (s *Service) DeactivateTenant(ctx context.Context, id snowflake.ID) error {
	found, err := s.repo.SetTenantActive(ctx, id, false)
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrTenantNotFound
	}
	s.invalidateHosts(ctx, id)
	s.log.Info("tenant deactivated", zap.String("tenant_id", id.String()))
	return nil
}

func (s *Service) DeleteTenant(ctx context.Context, id snowflake.ID) error {
	tenant, err := s.repo.FindTenantByID(ctx, id)
	if err != nil {
		return err
	}
	if tenant == nil {
		return domain.ErrTenantNotFound
	}

	// Stop admission first so no request writes into a namespace being dropped.
	if _, err := s.repo.SetTenantActive(ctx, id, false); err != nil {
		return err
	}
	s.invalidateHosts(ctx, id)

	if err := s.provisioner.Drop(ctx, tenant.SchemaName); err != nil {
		return fmt.Errorf("drop namespace: %w", err)
	}

	if err := s.PurgeTenant(ctx, id); err != nil {
		return err
	}

	s.log.Info("tenant deleted",
		zap.String("tenant_id", id.String()),
		zap.String("schema", tenant.SchemaName),
	)
	return nil
}

// PurgeTenant removes every catalog row owned by the tenant without touching
// its namespace.
func (s *Service) PurgeTenant(ctx context.Context, id snowflake.ID) error {
	hosts, err := s.repo.ListHosts(ctx, id)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, cleanup := range s.cleanups {
			if err := cleanup.CleanupTenant(ctx, tx, id); err != nil {
				return err
			}
		}
		return s.repo.WithTx(tx).DeleteTenantRows(ctx, id)
	})
	if err != nil {
		return err
	}
	s.forgetHosts(ctx, hosts)
	return nil
}

func (s *Service) invalidateHosts(ctx context.Context, tenantID snowflake.ID) {
	hosts, err := s.repo.ListHosts(ctx, tenantID)
	if err != nil {
		s.log.Warn("list hosts for invalidation failed", zap.Error(err))
		return
	}
	s.forgetHosts(ctx, hosts)
}

func (s *Service) forgetHosts(ctx context.Context, hosts []string) {
	for _, host := range hosts {
		s.hosts.Delete(host)
	}
	if s.remote != nil && len(hosts) > 0 {
		if err := s.remote.Delete(ctx, hosts...); err != nil {
			s.log.Warn("remote host cache invalidation failed", zap.Error(err))
		}
	}
}

func (s *Service) NormalizeHost(input string) (string, error) {
	host := domain.HostWithoutPort(input)
	if host != "" && !strings.Contains(host, ".") && s.baseDomain != "" {
		host = host + "." + s.baseDomain
	}
	if !domain.ValidHost(host) {
		return "", domain.ErrInvalidHost
	}
	if s.admission != nil && s.admission.Get().IsReservedHost(host) {
		return "", domain.ErrReservedHost
	}
	return host, nil
}

func (s *Service) IsHostAvailable(ctx context.Context, host string) (bool, error) {
	exists, err := s.repo.HostExists(ctx, host)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

func (s *Service) AllocateSchemaName(ctx context.Context, host string) (string, error) {
	base, err := domain.DeriveSchemaName(host)
	if err != nil {
		return "", err
	}

	candidate := base
	for n := 2; n <= maxSchemaNameAttempts+1; n++ {
		taken, err := s.repo.SchemaNameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			taken, err = s.provisioner.Exists(ctx, candidate)
			if err != nil {
				return "", err
			}
		}
		if !taken {
			return candidate, nil
		}
		candidate = domain.SchemaNameWithSuffix(base, n)
	}
	return "", domain.ErrDuplicateName
}

func (s *Service) ListPlans(ctx context.Context) ([]domain.PlanView, error) {
	plans, err := s.repo.ListActivePlans(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(plans))
	for _, plan := range plans {
		ids = append(ids, plan.ID)
	}
	features, err := s.repo.ListPlanFeatures(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]domain.PlanView, 0, len(plans))
	for _, plan := range plans {
		names := features[plan.ID]
		if names == nil {
			names = []string{}
		}
		views = append(views, domain.PlanView{
			ID:           plan.ID,
			Slug:         plan.Slug,
			Name:         plan.Name,
			PriceMonthly: domain.FormatCents(plan.PriceMonthlyCents),
			PriceYearly:  domain.FormatCents(plan.PriceYearlyCents),
			MaxUsers:     plan.MaxUsers,
			MaxCompanies: plan.MaxCompanies,
			MaxBranches:  plan.MaxBranches,
			MaxStorageGB: plan.MaxStorageGB,
			Features:     names,
			IsTrial:      plan.TrialDays > 0,
			TrialDays:    plan.TrialDays,
		})
	}
	return views, nil
}

func (s *Service) GetPlan(ctx context.Context, id snowflake.ID) (*domain.Plan, error) {
	plan, err := s.repo.FindPlanByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrPlanNotFound
	}
	return plan, nil
}

// UpsertPlan creates the plan identified by slug or updates its limits. The
// boolean reports whether a new plan was created.
func (s *Service) UpsertPlan(ctx context.Context, req domain.UpsertPlanRequest) (*domain.Plan, bool, error) {
	planSlug := strings.TrimSpace(req.Slug)
	if planSlug == "" {
		planSlug = slug.Make(req.Name)
	}
	if !slug.IsSlug(planSlug) || strings.TrimSpace(req.Name) == "" {
		return nil, false, domain.ErrInvalidPlan
	}
	if req.MaxUsers < 0 || req.MaxCompanies < 0 || req.MaxBranches < 0 || req.MaxStorageGB < 0 || req.TrialDays < 0 {
		return nil, false, domain.ErrInvalidPlan
	}

	var (
		result  *domain.Plan
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.clock.Now()

		existing, err := repo.FindPlanBySlug(ctx, planSlug)
		if err != nil {
			return err
		}
		if existing != nil && req.CreateOnly {
			return domain.ErrPlanExists
		}
		if existing != nil && (existing.PriceMonthlyCents != req.PriceMonthlyCents || existing.PriceYearlyCents != req.PriceYearlyCents) {
			return domain.ErrPlanPriceImmutable
		}
		plan := domain.Plan{
			Slug:                   planSlug,
			Name:                   strings.TrimSpace(req.Name),
			PriceMonthlyCents:      req.PriceMonthlyCents,
			PriceYearlyCents:       req.PriceYearlyCents,
			MaxUsers:               req.MaxUsers,
			MaxCompanies:           req.MaxCompanies,
			MaxBranches:            req.MaxBranches,
			MaxStorageGB:           req.MaxStorageGB,
			TrialDays:              req.TrialDays,
			SortOrder:              req.SortOrder,
			Active:                 true,
			ProviderPriceIDMonthly: strings.TrimSpace(req.ProviderPriceIDMonthly),
			ProviderPriceIDYearly:  strings.TrimSpace(req.ProviderPriceIDYearly),
			UpdatedAt:              now,
		}
		if existing == nil {
			plan.ID = s.genID.Generate()
			plan.CreatedAt = now
			if err := repo.InsertPlan(ctx, plan); err != nil {
				return err
			}
			created = true
		} else {
			plan.ID = existing.ID
			plan.CreatedAt = existing.CreatedAt
			if err := repo.UpdatePlan(ctx, plan); err != nil {
				return err
			}
		}

		featureIDs := make([]snowflake.ID, 0, len(req.Features))
		for _, name := range req.Features {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			feature, err := repo.EnsureFeature(ctx, domain.Feature{
				ID:        s.genID.Generate(),
				Name:      name,
				CreatedAt: now,
			})
			if err != nil {
				return err
			}
			featureIDs = append(featureIDs, feature.ID)
		}
		if err := repo.ReplacePlanFeatures(ctx, plan.ID, featureIDs); err != nil {
			return err
		}
		result = &plan
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPlan) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("upsert plan %s: %w", planSlug, err)
	}
	return result, created, nil
}
