package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// PlanSeed describes a catalog plan loaded from a seed file.
type PlanSeed struct {
	Slug                   string   `mapstructure:"slug"`
	Name                   string   `mapstructure:"name"`
	PriceMonthly           string   `mapstructure:"priceMonthly"`
	PriceYearly            string   `mapstructure:"priceYearly"`
	MaxUsers               int      `mapstructure:"maxUsers"`
	MaxCompanies           int      `mapstructure:"maxCompanies"`
	MaxBranches            int      `mapstructure:"maxBranches"`
	MaxStorageGB           int      `mapstructure:"maxStorageGB"`
	TrialDays              int      `mapstructure:"trialDays"`
	SortOrder              int      `mapstructure:"sortOrder"`
	ProviderPriceIDMonthly string   `mapstructure:"providerPriceIdMonthly"`
	ProviderPriceIDYearly  string   `mapstructure:"providerPriceIdYearly"`
	Features               []string `mapstructure:"features"`
}

// LoadPlanSeeds reads the `plans` list from a yaml/json/toml file.
func LoadPlanSeeds(path string) ([]PlanSeed, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("plan seed path is required")
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read plan seeds: %w", err)
	}

	var seeds []PlanSeed
	if err := v.UnmarshalKey("plans", &seeds); err != nil {
		return nil, fmt.Errorf("decode plan seeds: %w", err)
	}
	if len(seeds) == 0 {
		return nil, errors.New("plan seed file has no plans")
	}
	for i, seed := range seeds {
		if strings.TrimSpace(seed.Slug) == "" && strings.TrimSpace(seed.Name) == "" {
			return nil, fmt.Errorf("plan #%d needs a slug or name", i+1)
		}
	}
	return seeds, nil
}
