package signup

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/controlplane/internal/auth/domain"
	billingdomain "github.com/smallbiznis/controlplane/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/controlplane/internal/catalog/domain"
	"github.com/smallbiznis/controlplane/internal/config"
	"github.com/smallbiznis/controlplane/internal/observability/metrics"
	"github.com/smallbiznis/controlplane/internal/provisioner"
	quotadomain "github.com/smallbiznis/controlplane/internal/quota/domain"
	registrydomain "github.com/smallbiznis/controlplane/internal/registry/domain"
	"github.com/smallbiznis/controlplane/internal/signup/domain"
	subscriptiondomain "github.com/smallbiznis/controlplane/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Cfg           config.Config
	Catalog       catalogdomain.Service
	Auth          authdomain.Service
	Subscriptions subscriptiondomain.Service
	Ledger        quotadomain.Ledger
	Provisioner   provisioner.Provisioner
	Registry      registrydomain.Service
	Billing       billingdomain.Service
	Metrics       *metrics.Metrics `optional:"true"`
}

type service struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         config.TenancyConfig
	catalog     catalogdomain.Service
	auth        authdomain.Service
	subs        subscriptiondomain.Service
	ledger      quotadomain.Ledger
	provisioner provisioner.Provisioner
	registry    registrydomain.Service
	billing     billingdomain.Service
	metrics     *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &service{
		db:          p.DB,
		log:         p.Log.Named("signup.service"),
		cfg:         p.Cfg.Tenancy,
		catalog:     p.Catalog,
		auth:        p.Auth,
		subs:        p.Subscriptions,
		ledger:      p.Ledger,
		provisioner: p.Provisioner,
		registry:    p.Registry,
		billing:     p.Billing,
		metrics:     p.Metrics,
	}
}

func (s *service) CheckDomain(ctx context.Context, input string) (*domain.DomainAvailability, error) {
	host, err := s.catalog.NormalizeHost(input)
	if err != nil {
		message := "invalid domain"
		if errors.Is(err, catalogdomain.ErrReservedHost) {
			message = "domain is reserved"
		}
		return &domain.DomainAvailability{Available: false, Message: message}, nil
	}
	available, err := s.catalog.IsHostAvailable(ctx, host)
	if err != nil {
		return nil, err
	}
	out := &domain.DomainAvailability{Available: available, Domain: host, Message: "domain is available"}
	if !available {
		out.Message = "domain is already in use"
	}
	return out, nil
}

func (s *service) Signup(ctx context.Context, req domain.Request) (*domain.Result, error) {
	result, err := s.signup(ctx, req)
	switch {
	case err == nil:
		s.metrics.RecordSignup(ctx, "created")
	case errors.Is(err, domain.ErrProvisioningFailed), errors.Is(err, billingdomain.ErrBillingUnavailable):
		s.metrics.RecordSignup(ctx, "rolled_back")
	default:
		s.metrics.RecordSignup(ctx, "rejected")
	}
	return result, err
}

func (s *service) signup(ctx context.Context, req domain.Request) (*domain.Result, error) {
	tenantName := strings.TrimSpace(req.TenantName)
	companyName := strings.TrimSpace(req.CompanyName)
	if tenantName == "" || companyName == "" {
		return nil, domain.ErrInvalidRequest
	}
	host, err := s.catalog.NormalizeHost(req.Domain)
	if err != nil {
		return nil, err
	}
	planID, err := snowflake.ParseString(strings.TrimSpace(req.PlanID))
	if err != nil || planID == 0 {
		return nil, catalogdomain.ErrInvalidPlan
	}
	plan, err := s.catalog.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, catalogdomain.ErrPlanNotFound) {
			return nil, catalogdomain.ErrInvalidPlan
		}
		return nil, err
	}
	if !plan.Active {
		return nil, catalogdomain.ErrInvalidPlan
	}

	available, err := s.catalog.IsHostAvailable(ctx, host)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, domain.ErrDomainTaken
	}
	taken, err := s.auth.UsernameTaken(ctx, req.AdminUsername)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, authdomain.ErrUserExists
	}
	schemaName, err := s.catalog.AllocateSchemaName(ctx, host)
	if err != nil {
		return nil, err
	}

	var (
		tenant *catalogdomain.Tenant
		user   *authdomain.User
		sub    *subscriptiondomain.Subscription
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		tenant, err = s.catalog.CreateTenantTx(ctx, tx, catalogdomain.CreateTenantRequest{
			SchemaName:  schemaName,
			DisplayName: tenantName,
			PrimaryHost: host,
		})
		if err != nil {
			return err
		}
		user, err = s.auth.CreateUserTx(ctx, tx, authdomain.CreateUserRequest{
			TenantID:  tenant.ID,
			Username:  req.AdminUsername,
			Email:     req.AdminEmail,
			Password:  req.AdminPassword,
			FirstName: req.AdminFirstName,
			LastName:  req.AdminLastName,
			Role:      authdomain.RoleOwner,
		})
		if err != nil {
			return err
		}
		sub, err = s.subs.CreateTrial(ctx, tx, tenant.ID, subscriptiondomain.PlanTerms{
			PlanID:    plan.ID,
			TrialDays: plan.TrialDays,
		})
		if err != nil {
			return err
		}
		return s.ledger.Init(ctx, tx, tenant.ID)
	})
	if err != nil {
		return nil, err
	}

	log := s.log.With(
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("schema", schemaName),
		zap.String("host", host),
	)

	if err := s.provisioner.Provision(ctx, schemaName); err != nil {
		log.Error("namespace provisioning failed", zap.Error(err))
		s.rollback(ctx, tenant, log)
		return nil, errors.Join(domain.ErrProvisioningFailed, err)
	}

	if _, err := s.registry.CreatePrimaryCompany(ctx, tenant, registrydomain.CreateCompanyRequest{
		Name:      companyName,
		TaxID:     req.CompanyTaxID,
		LegalName: req.CompanyLegalName,
	}); err != nil {
		log.Error("primary company creation failed", zap.Error(err))
		s.rollback(ctx, tenant, log)
		return nil, errors.Join(domain.ErrProvisioningFailed, err)
	}

	if _, err := s.billing.EnsureCustomer(ctx, tenant.ID, user.Email, tenantName); err != nil {
		log.Error("billing customer creation failed", zap.Error(err))
		s.rollback(ctx, tenant, log)
		return nil, err
	}

	log.Info("tenant signed up",
		zap.String("plan", plan.Slug),
		zap.String("status", string(sub.Status)),
	)

	return &domain.Result{
		Tenant: domain.TenantSummary{
			ID:     tenant.ID.String(),
			Name:   tenant.DisplayName,
			Domain: host,
		},
		User: domain.UserSummary{
			Username: user.Username,
			Email:    user.Email,
		},
		Subscription: domain.SubscriptionSummary{
			Plan:      plan.Slug,
			Status:    string(sub.Status),
			ExpiresAt: sub.PeriodEnd,
		},
		LoginURL: strings.ReplaceAll(s.cfg.LoginURLTemplate, "{host}", host),
	}, nil
}

// rollback undoes a signup whose catalog rows are committed. Dropping the
// namespace is best effort; the catalog rows must go.
func (s *service) rollback(ctx context.Context, tenant *catalogdomain.Tenant, log *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	if err := s.provisioner.Drop(ctx, tenant.SchemaName); err != nil {
		log.Warn("namespace drop during rollback failed", zap.Error(err))
	}
	if err := s.catalog.PurgeTenant(ctx, tenant.ID); err != nil {
		log.Error("signup rollback left catalog rows behind", zap.Error(err))
	}
}
