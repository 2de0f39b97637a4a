package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/meridianrisk/exposure-engine/internal/domain"
	"github.com/meridianrisk/exposure-engine/internal/store"
)

// Fixtures is the shape of a -config YAML file: a set of rollup configs,
// breach threshold rules, and policy packs to seed before the API/worker
// starts accepting traffic. Intended for local/dev runs and integration
// tests, not production bootstrap, which seeds through migrations.
type Fixtures struct {
	RollupConfigs []RollupConfigFixture `yaml:"rollup_configs"`
	ThresholdRules []ThresholdRuleFixture `yaml:"threshold_rules"`
	PolicyPacks   []PolicyPackFixture   `yaml:"policy_packs"`
}

type RollupConfigFixture struct {
	ID         string           `yaml:"id"`
	TenantID   string           `yaml:"tenant_id"`
	Name       string           `yaml:"name"`
	Version    int              `yaml:"version"`
	Dimensions []string         `yaml:"dimensions"`
	Measures   []MeasureFixture `yaml:"measures"`
}

type MeasureFixture struct {
	Name  string `yaml:"name"`
	Op    string `yaml:"op"`
	Field string `yaml:"field"`
}

type ThresholdRuleFixture struct {
	ID       string  `yaml:"id"`
	TenantID string  `yaml:"tenant_id"`
	Name     string  `yaml:"name"`
	Metric   string  `yaml:"metric"`
	Operator string  `yaml:"operator"`
	Value    float64 `yaml:"value"`
	Severity string  `yaml:"severity"`
	Active   bool    `yaml:"active"`
}

type PolicyPackFixture struct {
	ID       string                     `yaml:"id"`
	TenantID string                     `yaml:"tenant_id"`
	Name     string                     `yaml:"name"`
	Versions []PolicyPackVersionFixture `yaml:"versions"`
}

type PolicyPackVersionFixture struct {
	ID                     string         `yaml:"id"`
	VersionLabel           string         `yaml:"version_label"`
	ScoringConfig          map[string]any `yaml:"scoring_config"`
	UnderwritingPolicy     map[string]any `yaml:"underwriting_policy"`
}

// LoadFixtures reads and parses a fixtures YAML file from path.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures file: %w", err)
	}
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures file: %w", err)
	}
	return &f, nil
}

// ruleSeeder and policyPackSeeder are satisfied by internal/store/memory.Store;
// fixture seeding for ThresholdRule/PolicyPack is a memory-store-only, dev
// convenience (production seeds those tables through migrations instead).
type ruleSeeder interface {
	CreateRule(r *domain.ThresholdRule)
}

type policyPackSeeder interface {
	SeedPolicyPack(pack *domain.PolicyPack, version *domain.PolicyPackVersion)
}

// Seed applies a parsed Fixtures set to stores. RollupConfigs go through
// the portable store.RollupStore interface and work against any backend;
// ThresholdRules and PolicyPacks use the optional seeder interfaces above
// and are skipped with a log-worthy no-op against a backend that doesn't
// implement them (i.e. postgres).
func Seed(ctx context.Context, stores store.Stores, f *Fixtures) error {
	if f == nil {
		return nil
	}
	for _, rc := range f.RollupConfigs {
		cfg := &domain.RollupConfig{
			ID: rc.ID, TenantID: rc.TenantID, Name: rc.Name, Version: rc.Version,
			Dimensions: rc.Dimensions, CreatedAt: time.Now().UTC(),
		}
		for _, m := range rc.Measures {
			cfg.Measures = append(cfg.Measures, domain.Measure{Name: m.Name, Op: m.Op, Field: m.Field})
		}
		if err := stores.CreateRollupConfig(ctx, cfg); err != nil {
			return fmt.Errorf("seed rollup config %s: %w", rc.ID, err)
		}
	}

	if seeder, ok := stores.(ruleSeeder); ok {
		for _, rule := range f.ThresholdRules {
			seeder.CreateRule(&domain.ThresholdRule{
				ID: rule.ID, TenantID: rule.TenantID, Name: rule.Name, Metric: rule.Metric,
				Operator: rule.Operator, Value: rule.Value, Severity: rule.Severity, Active: rule.Active,
			})
		}
	}

	if seeder, ok := stores.(policyPackSeeder); ok {
		for _, pp := range f.PolicyPacks {
			pack := &domain.PolicyPack{ID: pp.ID, TenantID: pp.TenantID, Name: pp.Name}
			for _, v := range pp.Versions {
				seeder.SeedPolicyPack(pack, &domain.PolicyPackVersion{
					ID: v.ID, PolicyPackID: pp.ID, VersionLabel: v.VersionLabel,
					ScoringConfigJSON: v.ScoringConfig, UnderwritingPolicyJSON: v.UnderwritingPolicy,
					CreatedAt: time.Now().UTC(),
				})
			}
		}
	}
	return nil
}
