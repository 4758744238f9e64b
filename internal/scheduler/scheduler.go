package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/controlplane/internal/auth/domain"
	"github.com/smallbiznis/controlplane/internal/clock"
	obsmetrics "github.com/smallbiznis/controlplane/internal/observability/metrics"
	"github.com/smallbiznis/controlplane/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/controlplane/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const lockPrefix = "controlplane:scheduler:"

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	SubscriptionSvc subscriptiondomain.Service
	AuthSvc         authdomain.Service
	Locker          *ratelimit.Locker           `optional:"true"`
	Metrics         *obsmetrics.SweeperMetrics `optional:"true"`
	Config          Config                     `optional:"true"`
}

// Scheduler runs the periodic maintenance jobs: lapsed subscriptions are
// expired and stale access tokens are purged. When a Locker is present only
// one replica runs a given job per interval.
type Scheduler struct {
	log             *zap.Logger
	cfg             Config
	genID           *snowflake.Node
	clock           clock.Clock
	subscriptionSvc subscriptiondomain.Service
	authSvc         authdomain.Service
	locker          *ratelimit.Locker
	metrics         *obsmetrics.SweeperMetrics
}

type job struct {
	name      string
	batchSize int
	run       func(ctx context.Context, run *jobRun) error
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.SubscriptionSvc == nil || p.AuthSvc == nil {
		return nil, ErrInvalidConfig
	}
	metrics := p.Metrics
	if metrics == nil {
		metrics = obsmetrics.Sweeper()
	}
	return &Scheduler{
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             p.Config.withDefaults(),
		genID:           p.GenID,
		clock:           p.Clock,
		subscriptionSvc: p.SubscriptionSvc,
		authSvc:         p.AuthSvc,
		locker:          p.Locker,
		metrics:         metrics,
	}, nil
}

func (s *Scheduler) jobs() []job {
	return []job{
		{name: "expire_subscriptions", batchSize: s.cfg.BatchSize, run: s.ExpireSubscriptionsJob},
		{name: "purge_tokens", batchSize: 0, run: s.PurgeTokensJob},
	}
}

// RunOnce runs every job a single time and joins their errors.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, j := range s.jobs() {
		err = errors.Join(err, s.runJob(parent, j))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runJob(parent context.Context, j job) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	release, acquired, err := s.acquire(ctx, j.name)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	if !acquired {
		s.metrics.IncLockSkipped()
		s.log.Debug("scheduler job held by another replica", zap.String("job", j.name))
		return nil
	}
	defer release()

	ctx, run := s.newJobRun(ctx, j.name, j.batchSize)
	s.logJobStart(ctx, run)
	start := time.Now()

	err = j.run(ctx, run)
	if err != nil {
		run.IncError()
	}
	if j.name == "expire_subscriptions" {
		s.metrics.ObserveRun(time.Since(start), err)
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", j.name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", j.name, err)
}

// acquire takes the job lease. Without a configured locker every replica
// runs the job; the underlying updates are conditional so that is safe.
func (s *Scheduler) acquire(ctx context.Context, name string) (func(), bool, error) {
	key := lockPrefix + name
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if errors.Is(err, ratelimit.ErrLockNotConfigured) {
		return func() {}, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("failed to release scheduler lock", zap.String("job", name), zap.Error(err))
		}
	}, true, nil
}

// ExpireSubscriptionsJob expires lapsed trials and periods batch by batch
// until a short batch signals there is nothing left.
func (s *Scheduler) ExpireSubscriptionsJob(ctx context.Context, run *jobRun) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		expired, err := s.subscriptionSvc.ExpireDue(ctx, s.cfg.BatchSize)
		run.AddProcessed(expired)
		s.metrics.AddExpired(expired)
		if err != nil {
			return err
		}
		if expired < s.cfg.BatchSize {
			return nil
		}
	}
}

func (s *Scheduler) PurgeTokensJob(ctx context.Context, run *jobRun) error {
	purged, err := s.authSvc.PurgeExpiredTokens(ctx)
	run.AddProcessed(int(purged))
	return err
}
