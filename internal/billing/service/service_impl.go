package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/controlplane/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/controlplane/internal/catalog/domain"
	"github.com/smallbiznis/controlplane/internal/config"
	"github.com/smallbiznis/controlplane/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/controlplane/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Cfg      config.Config
	Provider domain.Provider
	Catalog  catalogdomain.Service
	Metrics  *metrics.Metrics `optional:"true"`

	Subscriptions subscriptiondomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      config.BillingConfig
	provider domain.Provider
	catalog  catalogdomain.Service
	metrics  *metrics.Metrics
	subs     subscriptiondomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("billing.service"),
		cfg:      p.Cfg.Billing,
		provider: p.Provider,
		catalog:  p.Catalog,
		metrics:  p.Metrics,
		subs:     p.Subscriptions,
	}
}

func (s *Service) EnsureCustomer(ctx context.Context, tenantID snowflake.ID, email, name string) (*domain.BillingCustomer, error) {
	existing, err := s.findCustomer(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	customerID, err := s.provider.EnsureCustomer(ctx, domain.CustomerRequest{
		TenantID: tenantID.String(),
		Email:    strings.TrimSpace(email),
		Name:     strings.TrimSpace(name),
	})
	s.metrics.RecordBillingCall(ctx, s.provider.Name(), "ensure_customer", err)
	if err != nil {
		return nil, asUnavailable(err)
	}

	customer := &domain.BillingCustomer{
		TenantID:   tenantID,
		Provider:   s.provider.Name(),
		CustomerID: customerID,
		Email:      strings.TrimSpace(email),
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(customer).Error; err != nil {
		return nil, err
	}
	return s.findCustomer(ctx, tenantID)
}

func (s *Service) CreateCheckout(ctx context.Context, tenantID snowflake.ID, req domain.CheckoutRequest) (*domain.CheckoutResponse, error) {
	cycle := strings.TrimSpace(req.BillingCycle)
	if cycle == "" {
		cycle = catalogdomain.BillingCycleMonthly
	}
	if !catalogdomain.ValidBillingCycle(cycle) {
		return nil, domain.ErrInvalidBillingCycle
	}

	plan, err := s.catalog.GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, catalogdomain.ErrPlanInactive
	}
	priceID := plan.ProviderPriceID(cycle)
	if priceID == "" {
		return nil, domain.ErrPriceNotConfigured
	}

	tenant, err := s.catalog.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	customer, err := s.EnsureCustomer(ctx, tenantID, "", tenant.DisplayName)
	if err != nil {
		return nil, err
	}

	host := ""
	if primary, err := s.catalog.PrimaryDomain(ctx, tenantID); err == nil && primary != nil {
		host = primary.Host
	}

	session, err := s.provider.CreateCheckoutSession(ctx, domain.CheckoutSessionRequest{
		PriceID:    priceID,
		CustomerID: customer.CustomerID,
		SuccessURL: expandURL(s.cfg.SuccessURL, host),
		CancelURL:  expandURL(s.cfg.CancelURL, host),
		Metadata: map[string]string{
			domain.MetadataTenantID:     tenantID.String(),
			domain.MetadataPlanID:       plan.ID.String(),
			domain.MetadataBillingCycle: cycle,
		},
	})
	s.metrics.RecordBillingCall(ctx, s.provider.Name(), "create_checkout_session", err)
	if err != nil {
		return nil, asUnavailable(err)
	}

	s.log.Info("checkout session created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("plan", plan.Slug),
		zap.String("billing_cycle", cycle),
		zap.String("session_id", session.ID),
	)
	if err := s.markPending(ctx, tenantID, plan.ID, cycle); err != nil {
		return nil, err
	}
	return &domain.CheckoutResponse{CheckoutURL: session.URL, SessionID: session.ID}, nil
}

// markPending moves a lapsed tenant to pending while its checkout is open.
// Trial and active subscriptions stay untouched until the webhook lands.
func (s *Service) markPending(ctx context.Context, tenantID, planID snowflake.ID, cycle string) error {
	if s.subs == nil {
		return nil
	}
	sub, err := s.subs.Get(ctx, tenantID)
	if err != nil && !errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound) {
		return err
	}
	if sub != nil && !subscriptiondomain.TransitionAllowed(sub.Status, subscriptiondomain.StatusPending) {
		return nil
	}
	pending, err := s.subs.CreatePaid(ctx, tenantID, planID, cycle)
	if err != nil {
		return err
	}
	s.log.Info("subscription pending payment",
		zap.String("tenant_id", tenantID.String()),
		zap.String("plan_id", planID.String()),
		zap.Time("period_end", pending.PeriodEnd),
	)
	return nil
}

func (s *Service) GetCheckout(ctx context.Context, tenantID snowflake.ID, sessionID string) (*domain.CheckoutSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domain.ErrInvalidSessionID
	}
	session, err := s.provider.GetCheckoutSession(ctx, sessionID)
	s.metrics.RecordBillingCall(ctx, s.provider.Name(), "get_checkout_session", err)
	if err != nil {
		return nil, asUnavailable(err)
	}
	if session.Metadata[domain.MetadataTenantID] != tenantID.String() {
		return nil, domain.ErrCheckoutForbidden
	}
	return session, nil
}

func (s *Service) findCustomer(ctx context.Context, tenantID snowflake.ID) (*domain.BillingCustomer, error) {
	var customer domain.BillingCustomer
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// asUnavailable keeps typed provider errors and folds the rest into ErrBillingUnavailable.
func asUnavailable(err error) error {
	if errors.Is(err, domain.ErrBillingUnavailable) || errors.Is(err, domain.ErrCheckoutNotFound) {
		return err
	}
	return errors.Join(domain.ErrBillingUnavailable, err)
}

func expandURL(template, host string) string {
	return strings.ReplaceAll(template, "{host}", host)
}
