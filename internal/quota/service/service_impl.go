package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/controlplane/internal/clock"
	"github.com/smallbiznis/controlplane/internal/observability/metrics"
	"github.com/smallbiznis/controlplane/internal/quota/domain"
	"github.com/smallbiznis/controlplane/internal/quota/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	metrics *metrics.Metrics
	repo    domain.Repository
}

func NewService(p Params) domain.Ledger {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("quota.ledger"),
		clock:   p.Clock,
		metrics: p.Metrics,
		repo:    repository.Provide(),
	}
}

func (s *Service) Init(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID) error {
	return s.repo.Insert(ctx, tx, domain.QuotaUsage{
		TenantID:  tenantID,
		UpdatedAt: s.clock.Now(),
	})
}

func (s *Service) Check(ctx context.Context, tenantID snowflake.ID, kind domain.Kind, delta int64) (domain.Decision, error) {
	if !kind.Valid() {
		return domain.Decision{}, domain.ErrUnknownKind
	}
	if delta <= 0 {
		return domain.Decision{}, domain.ErrInvalidDelta
	}
	usage, limits, err := s.load(ctx, s.db, tenantID)
	if err != nil {
		return domain.Decision{}, err
	}
	current := usage.Current(kind)
	limit := limits.Of(kind)
	return domain.Decision{
		OK:      current+delta <= limit,
		Kind:    kind,
		Current: current,
		Limit:   limit,
	}, nil
}

func (s *Service) Reserve(ctx context.Context, tenantID snowflake.ID, kind domain.Kind, delta int64) error {
	return s.ReserveTx(ctx, s.db, tenantID, kind, delta)
}

func (s *Service) ReserveTx(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, kind domain.Kind, delta int64) error {
	if !kind.Valid() {
		return domain.ErrUnknownKind
	}
	if delta <= 0 {
		return domain.ErrInvalidDelta
	}

	granted, err := s.repo.IncrementWithinLimit(ctx, tx, tenantID, kind, delta, s.clock.Now())
	if err != nil {
		return err
	}
	s.metrics.RecordReservation(ctx, string(kind), granted)
	if granted {
		return nil
	}

	// Refused: report what the caller saw. The numbers are read after the
	// fact and only describe the refusal.
	usage, limits, err := s.load(ctx, tx, tenantID)
	if err != nil {
		return err
	}
	exceeded := &domain.ExceededError{
		Kind:    kind,
		Current: usage.Current(kind),
		Limit:   limits.Of(kind),
	}
	s.log.Info("reservation refused",
		zap.String("tenant_id", tenantID.String()),
		zap.String("kind", string(kind)),
		zap.Int64("delta", delta),
		zap.Int64("current", exceeded.Current),
		zap.Int64("limit", exceeded.Limit),
	)
	return exceeded
}

func (s *Service) Release(ctx context.Context, tenantID snowflake.ID, kind domain.Kind, delta int64) {
	if err := s.ReleaseTx(ctx, s.db, tenantID, kind, delta); err != nil {
		s.log.Error("release failed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("kind", string(kind)),
			zap.Int64("delta", delta),
			zap.Error(err),
		)
	}
}

func (s *Service) ReleaseTx(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, kind domain.Kind, delta int64) error {
	if !kind.Valid() {
		return domain.ErrUnknownKind
	}
	if delta <= 0 {
		return nil
	}
	return s.repo.DecrementClamped(ctx, tx, tenantID, kind, delta, s.clock.Now())
}

func (s *Service) Usage(ctx context.Context, tenantID snowflake.ID) (*domain.UsageView, error) {
	usage, limits, err := s.load(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	return &domain.UsageView{Usage: *usage, Limits: *limits}, nil
}

func (s *Service) Recount(ctx context.Context, tenantID snowflake.ID, counts domain.Counts) error {
	if counts.Users < 0 || counts.Companies < 0 || counts.Branches < 0 || counts.StorageMB < 0 {
		return domain.ErrInvalidCounts
	}
	found, err := s.repo.Overwrite(ctx, s.db, tenantID, counts, s.clock.Now())
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrUsageNotFound
	}
	s.log.Info("usage recounted",
		zap.String("tenant_id", tenantID.String()),
		zap.Int64("users", counts.Users),
		zap.Int64("companies", counts.Companies),
		zap.Int64("branches", counts.Branches),
		zap.Int64("storage_mb", counts.StorageMB),
	)
	return nil
}

func (s *Service) load(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*domain.QuotaUsage, *domain.Limits, error) {
	usage, err := s.repo.Get(ctx, db, tenantID)
	if err != nil {
		return nil, nil, err
	}
	if usage == nil {
		return nil, nil, domain.ErrUsageNotFound
	}
	limits, err := s.repo.Limits(ctx, db, tenantID)
	if err != nil {
		return nil, nil, err
	}
	if limits == nil {
		return nil, nil, domain.ErrNoSubscription
	}
	return usage, limits, nil
}

// IsExceeded extracts the refusal details from err.
func IsExceeded(err error) (*domain.ExceededError, bool) {
	var exceeded *domain.ExceededError
	if errors.As(err, &exceeded) {
		return exceeded, true
	}
	return nil, false
}
