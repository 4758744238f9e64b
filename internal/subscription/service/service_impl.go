package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/controlplane/internal/clock"
	"github.com/smallbiznis/controlplane/internal/subscription/domain"
	"github.com/smallbiznis/controlplane/internal/subscription/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  repository.Provide(),
	}
}

func (s *Service) Get(ctx context.Context, tenantID snowflake.ID) (*domain.Subscription, error) {
	sub, err := s.repo.FindByTenant(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *Service) View(ctx context.Context, tenantID snowflake.ID) (*domain.View, error) {
	sub, err := s.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	return &domain.View{
		Subscription:    *sub,
		IsActive:        sub.IsActive(now),
		DaysUntilExpiry: sub.DaysUntilExpiry(now),
	}, nil
}

func (s *Service) Admit(ctx context.Context, tenantID snowflake.ID) (*domain.Subscription, error) {
	sub, err := s.repo.FindByTenant(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, &domain.InactiveError{Reason: "no subscription"}
	}
	now := s.clock.Now()
	if !sub.IsActive(now) {
		reason := fmt.Sprintf("subscription is %s", sub.Status)
		if sub.Status == domain.StatusActive || sub.Status == domain.StatusTrial {
			reason = "subscription period ended"
		}
		return sub, &domain.InactiveError{Status: sub.Status, Reason: reason}
	}
	return sub, nil
}

func (s *Service) CreateTrial(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, plan domain.PlanTerms) (*domain.Subscription, error) {
	if plan.TrialDays < 0 {
		return nil, domain.ErrInvalidPeriod
	}
	now := s.clock.Now()
	sub := &domain.Subscription{
		ID:           s.genID.Generate(),
		TenantID:     tenantID,
		PlanID:       plan.PlanID,
		Status:       domain.StatusTrial,
		BillingCycle: domain.BillingCycleMonthly,
		PeriodStart:  now,
		PeriodEnd:    now.AddDate(0, 0, plan.TrialDays),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if plan.TrialDays == 0 {
		sub.Status = domain.StatusActive
		sub.PeriodEnd = now.AddDate(0, 0, domain.PeriodDays(domain.BillingCycleMonthly))
	}
	if err := s.repo.Insert(ctx, tx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// CreatePaid opens a pending subscription. An existing expired or canceled
// subscription is reused so the tenant keeps a single row.
func (s *Service) CreatePaid(ctx context.Context, tenantID, planID snowflake.ID, cycle string) (*domain.Subscription, error) {
	if !domain.ValidBillingCycle(cycle) {
		return nil, domain.ErrInvalidBillingCycle
	}
	var result *domain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		sub, err := s.repo.FindByTenantForUpdate(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if sub == nil {
			sub = &domain.Subscription{
				ID:           s.genID.Generate(),
				TenantID:     tenantID,
				PlanID:       planID,
				Status:       domain.StatusPending,
				BillingCycle: cycle,
				PeriodStart:  now,
				PeriodEnd:    now.AddDate(0, 0, domain.PeriodDays(cycle)),
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			result = sub
			return s.repo.Insert(ctx, tx, sub)
		}
		if !domain.TransitionAllowed(sub.Status, domain.StatusPending) {
			return domain.ErrSubscriptionExists
		}
		sub.PlanID = planID
		sub.Status = domain.StatusPending
		sub.BillingCycle = cycle
		sub.PeriodStart = now
		sub.PeriodEnd = now.AddDate(0, 0, domain.PeriodDays(cycle))
		sub.CancelAtPeriodEnd = false
		sub.CanceledAt = nil
		sub.UpdatedAt = now
		result = sub
		return s.repo.Save(ctx, tx, sub)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) Activate(ctx context.Context, tenantID snowflake.ID) (*domain.Subscription, error) {
	return s.mutate(ctx, tenantID, "activate", func(sub *domain.Subscription) error {
		return sub.Activate(s.clock.Now())
	})
}

func (s *Service) MarkPastDue(ctx context.Context, tenantID snowflake.ID) (*domain.Subscription, error) {
	return s.mutate(ctx, tenantID, "mark_past_due", func(sub *domain.Subscription) error {
		return sub.MarkPastDue(s.clock.Now())
	})
}

func (s *Service) MarkCanceled(ctx context.Context, tenantID snowflake.ID) (*domain.Subscription, error) {
	return s.mutate(ctx, tenantID, "mark_canceled", func(sub *domain.Subscription) error {
		return sub.MarkCanceled(s.clock.Now())
	})
}

func (s *Service) MarkExpired(ctx context.Context, tenantID snowflake.ID) (*domain.Subscription, error) {
	return s.mutate(ctx, tenantID, "mark_expired", func(sub *domain.Subscription) error {
		return sub.MarkExpired(s.clock.Now())
	})
}

func (s *Service) Renew(ctx context.Context, tenantID snowflake.ID, days int) (*domain.Subscription, error) {
	return s.mutate(ctx, tenantID, "renew", func(sub *domain.Subscription) error {
		return sub.Renew(s.clock.Now(), days)
	})
}

func (s *Service) Cancel(ctx context.Context, tenantID snowflake.ID) (*domain.Subscription, error) {
	return s.mutate(ctx, tenantID, "cancel", func(sub *domain.Subscription) error {
		return sub.Cancel(s.clock.Now())
	})
}

func (s *Service) mutate(ctx context.Context, tenantID snowflake.ID, op string, fn func(*domain.Subscription) error) (*domain.Subscription, error) {
	var result *domain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindByTenantForUpdate(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if sub == nil {
			return domain.ErrSubscriptionNotFound
		}
		from := sub.Status
		if err := fn(sub); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, tx, sub); err != nil {
			return err
		}
		s.log.Info("subscription "+op,
			zap.String("tenant_id", tenantID.String()),
			zap.String("from", string(from)),
			zap.String("to", string(sub.Status)),
			zap.Time("period_end", sub.PeriodEnd),
		)
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) ApplyCheckout(ctx context.Context, tx *gorm.DB, req domain.CheckoutCompletion) (*domain.Subscription, error) {
	cycle := strings.TrimSpace(req.BillingCycle)
	if !domain.ValidBillingCycle(cycle) {
		cycle = domain.BillingCycleMonthly
	}
	now := s.clock.Now()
	start := now
	end := now.AddDate(0, 0, domain.PeriodDays(cycle))
	if req.PeriodStart != nil && req.PeriodEnd != nil && req.PeriodEnd.After(*req.PeriodStart) {
		start = req.PeriodStart.UTC()
		end = req.PeriodEnd.UTC()
	}
	var providerID *string
	if id := strings.TrimSpace(req.ProviderSubscriptionID); id != "" {
		providerID = &id
	}

	sub, err := s.repo.FindByTenantForUpdate(ctx, tx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		sub = &domain.Subscription{
			ID:                     s.genID.Generate(),
			TenantID:               req.TenantID,
			PlanID:                 req.PlanID,
			Status:                 domain.StatusActive,
			BillingCycle:           cycle,
			PeriodStart:            start,
			PeriodEnd:              end,
			ProviderSubscriptionID: providerID,
			ProviderCustomerID:     req.ProviderCustomerID,
			CreatedAt:              now,
			UpdatedAt:              now,
		}
		if err := s.repo.Insert(ctx, tx, sub); err != nil {
			return nil, err
		}
		return sub, nil
	}

	if err := sub.Activate(now); err != nil {
		return nil, err
	}
	sub.PlanID = req.PlanID
	sub.BillingCycle = cycle
	sub.PeriodStart = start
	sub.PeriodEnd = end
	if providerID != nil {
		sub.ProviderSubscriptionID = providerID
	}
	if req.ProviderCustomerID != "" {
		sub.ProviderCustomerID = req.ProviderCustomerID
	}
	if err := s.repo.Save(ctx, tx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// SyncFromProvider trusts the provider: the reported status is applied
// without the manual transition rules.
func (s *Service) SyncFromProvider(ctx context.Context, tx *gorm.DB, req domain.ProviderSync) (*domain.Subscription, error) {
	if !domain.ValidStatus(req.Status) {
		return nil, domain.ErrInvalidStatus
	}
	sub, err := s.repo.FindByProviderIDForUpdate(ctx, tx, req.ProviderSubscriptionID)
	if err != nil || sub == nil {
		return nil, err
	}
	now := s.clock.Now()
	sub.Status = req.Status
	if req.PeriodStart != nil && req.PeriodEnd != nil && req.PeriodEnd.After(*req.PeriodStart) {
		sub.PeriodStart = req.PeriodStart.UTC()
		sub.PeriodEnd = req.PeriodEnd.UTC()
	}
	if req.Status == domain.StatusCanceled && sub.CanceledAt == nil {
		sub.CanceledAt = &now
	}
	sub.SetCancelAtPeriodEnd(req.CancelAtPeriodEnd, now)
	sub.UpdatedAt = now
	if err := s.repo.Save(ctx, tx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) MarkPastDueByProviderID(ctx context.Context, tx *gorm.DB, providerSubscriptionID string) (*domain.Subscription, error) {
	return s.mutateByProviderID(ctx, tx, providerSubscriptionID, func(sub *domain.Subscription, now time.Time) error {
		if sub.Status == domain.StatusCanceled || sub.Status == domain.StatusExpired {
			return nil
		}
		sub.Status = domain.StatusPastDue
		sub.UpdatedAt = now
		return nil
	})
}

func (s *Service) CancelByProviderID(ctx context.Context, tx *gorm.DB, providerSubscriptionID string) (*domain.Subscription, error) {
	return s.mutateByProviderID(ctx, tx, providerSubscriptionID, func(sub *domain.Subscription, now time.Time) error {
		return sub.MarkCanceled(now)
	})
}

func (s *Service) mutateByProviderID(ctx context.Context, tx *gorm.DB, providerSubscriptionID string, fn func(*domain.Subscription, time.Time) error) (*domain.Subscription, error) {
	if strings.TrimSpace(providerSubscriptionID) == "" {
		return nil, nil
	}
	sub, err := s.repo.FindByProviderIDForUpdate(ctx, tx, providerSubscriptionID)
	if err != nil || sub == nil {
		return nil, err
	}
	if err := fn(sub, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, tx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) ExpireDue(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	now := s.clock.Now()
	ids, err := s.repo.ListLapsedIDs(ctx, s.db, now, limit)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, id := range ids {
		ok, err := s.repo.ExpireIfLapsed(ctx, s.db, id, now)
		if err != nil {
			return expired, err
		}
		if ok {
			expired++
		}
	}
	if expired > 0 {
		s.log.Info("subscriptions expired", zap.Int("count", expired))
	}
	return expired, nil
}
