// Package policy resolves the scoring and underwriting configuration a run
// should use: either a tenant's default policy pack version or an
// explicitly requested one, recursively merged over hard-coded defaults.
// Grounded on app/services/policy_resolver.py.
package policy

import (
	"context"

	"github.com/meridianrisk/exposure-engine/internal/apperrors"
	"github.com/meridianrisk/exposure-engine/internal/resilience"
	"github.com/meridianrisk/exposure-engine/internal/store"
	"github.com/meridianrisk/exposure-engine/internal/underwriting"
)

// Stores is the slice of the control plane's repository surface this
// package needs: the tenant's configured default policy pack version and
// the policy pack/version rows themselves.
type Stores interface {
	store.TenantStore
	store.PolicyStore
}

// MergeOverrides recursively deep-merges override onto base: a dict value
// present in both is merged key by key, any other value in override wins
// outright. base and override are never mutated.
func MergeOverrides(base, override map[string]any) map[string]any {
	merged := make(map[string]any, len(base))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		if overrideMap, ok := v.(map[string]any); ok {
			if baseMap, ok := merged[k].(map[string]any); ok {
				merged[k] = MergeOverrides(baseMap, overrideMap)
				continue
			}
		}
		merged[k] = v
	}
	return merged
}

// Meta identifies which policy pack version (if any) produced a resolved
// configuration.
type Meta struct {
	PolicyPackID        *string `json:"policy_pack_id"`
	PolicyPackVersionID *string `json:"policy_pack_version_id"`
	VersionLabel        string  `json:"version_label"`
	PolicyPackName      string  `json:"policy_pack_name"`
}

func defaultMeta() Meta {
	return Meta{VersionLabel: "default", PolicyPackName: "default"}
}

// Resolved is the full output of resolving one policy pack version:
// scoring config as used by internal/resilience, underwriting policy as
// used by internal/underwriting, and the identifying metadata persisted
// alongside any run that consumed it.
type Resolved struct {
	ScoringConfig      map[string]any
	UnderwritingPolicy map[string]any
	Meta               Meta
}

// ResolveVersion resolves the policy pack version to use for a run: the
// explicitly requested id if given, else the tenant's configured default,
// else the hard-coded defaults with no policy pack at all.
func ResolveVersion(ctx context.Context, stores Stores, tenantID string, policyPackVersionID *string) (*Resolved, error) {
	resolvedID, err := resolvePolicyPackVersionID(ctx, stores, tenantID, policyPackVersionID)
	if err != nil {
		return nil, err
	}
	if resolvedID == nil {
		return &Resolved{
			ScoringConfig:      resilience.DefaultConfigMap(),
			UnderwritingPolicy: underwriting.DefaultPolicyMap(),
			Meta:               defaultMeta(),
		}, nil
	}

	version, err := stores.GetPolicyPackVersion(ctx, tenantID, *resolvedID)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, apperrors.NotFound("policy_pack_version", *resolvedID)
	}
	pack, err := stores.GetPolicyPack(ctx, tenantID, version.PolicyPackID)
	if err != nil {
		return nil, err
	}
	if pack == nil {
		return nil, apperrors.NotFound("policy_pack", version.PolicyPackID)
	}

	scoringConfig := MergeOverrides(resilience.DefaultConfigMap(), version.ScoringConfigJSON)
	underwritingPolicy := MergeOverrides(underwriting.DefaultPolicyMap(), version.UnderwritingPolicyJSON)

	return &Resolved{
		ScoringConfig:      scoringConfig,
		UnderwritingPolicy: underwritingPolicy,
		Meta: Meta{
			PolicyPackID:        &pack.ID,
			PolicyPackVersionID: &version.ID,
			VersionLabel:        version.VersionLabel,
			PolicyPackName:      pack.Name,
		},
	}, nil
}

func resolvePolicyPackVersionID(ctx context.Context, stores store.TenantStore, tenantID string, explicit *string) (*string, error) {
	if explicit != nil {
		return explicit, nil
	}
	tenant, err := stores.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, nil
	}
	return tenant.DefaultPolicyPackVersionID, nil
}
