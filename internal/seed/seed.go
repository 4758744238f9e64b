package seed

import (
	"context"
	"errors"
	"fmt"

	catalogdomain "github.com/smallbiznis/controlplane/internal/catalog/domain"
	"github.com/smallbiznis/controlplane/internal/config"
	"go.uber.org/zap"
)

// Summary counts what a plan seed run changed.
type Summary struct {
	Created int
	Updated int
}

type options struct {
	createOnly bool
}

type Option func(*options)

// CreateOnly fails with catalog ErrPlanExists on the first slug already in the catalog.
func CreateOnly() Option {
	return func(o *options) { o.createOnly = true }
}

// SeedPlans upserts every seed into the catalog by slug. Seeding the same
// file twice leaves the catalog unchanged.
func SeedPlans(ctx context.Context, catalog catalogdomain.Service, seeds []config.PlanSeed, log *zap.Logger, opts ...Option) (Summary, error) {
	if catalog == nil {
		return Summary{}, errors.New("seed catalog service is required")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var summary Summary
	for _, seed := range seeds {
		req, err := toUpsertRequest(seed)
		if err != nil {
			return summary, err
		}
		req.CreateOnly = o.createOnly
		plan, created, err := catalog.UpsertPlan(ctx, req)
		if err != nil {
			return summary, fmt.Errorf("seed plan %q: %w", seed.Slug, err)
		}
		if created {
			summary.Created++
		} else {
			summary.Updated++
		}
		if log != nil {
			log.Info("plan seeded",
				zap.String("slug", plan.Slug),
				zap.String("plan_id", plan.ID.String()),
				zap.Bool("created", created),
			)
		}
	}
	return summary, nil
}

// SeedPlansFromFile loads path and seeds its plans.
func SeedPlansFromFile(ctx context.Context, catalog catalogdomain.Service, path string, log *zap.Logger, opts ...Option) (Summary, error) {
	seeds, err := config.LoadPlanSeeds(path)
	if err != nil {
		return Summary{}, err
	}
	return SeedPlans(ctx, catalog, seeds, log, opts...)
}

func toUpsertRequest(seed config.PlanSeed) (catalogdomain.UpsertPlanRequest, error) {
	monthly, err := catalogdomain.ParseCents(seed.PriceMonthly)
	if err != nil {
		return catalogdomain.UpsertPlanRequest{}, fmt.Errorf("plan %q monthly price: %w", seed.Slug, err)
	}
	yearly, err := catalogdomain.ParseCents(seed.PriceYearly)
	if err != nil {
		return catalogdomain.UpsertPlanRequest{}, fmt.Errorf("plan %q yearly price: %w", seed.Slug, err)
	}
	return catalogdomain.UpsertPlanRequest{
		Slug:                   seed.Slug,
		Name:                   seed.Name,
		PriceMonthlyCents:      monthly,
		PriceYearlyCents:       yearly,
		MaxUsers:               seed.MaxUsers,
		MaxCompanies:           seed.MaxCompanies,
		MaxBranches:            seed.MaxBranches,
		MaxStorageGB:           seed.MaxStorageGB,
		TrialDays:              seed.TrialDays,
		SortOrder:              seed.SortOrder,
		ProviderPriceIDMonthly: seed.ProviderPriceIDMonthly,
		ProviderPriceIDYearly:  seed.ProviderPriceIDYearly,
		Features:               seed.Features,
	}, nil
}
