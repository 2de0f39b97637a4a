package canon

import "sort"

// ResilienceFingerprintInput is the identity-bearing payload hashed into a
// resilience-scoring request_fingerprint, grounded on
// app/services/request_fingerprint.py's fingerprint_resilience_scores_request.
type ResilienceFingerprintInput struct {
	TenantID           string         `json:"tenant_id"`
	ExposureVersionID  string         `json:"exposure_version_id"`
	HazardVersionIDs   []string       `json:"hazard_version_ids"`
	ScoringConfig      map[string]any `json:"scoring_config"`
	ScoringVersion     string         `json:"scoring_version"`
	CodeVersion        string         `json:"code_version"`
	PolicyPackVersion  string         `json:"policy_pack_version_id"`
}

// RequestFingerprint returns the request_fingerprint for a resilience
// scoring request: sorted hazard version ids, an explicit "default" sentinel
// when no policy pack version was requested, then canonical JSON + SHA-256.
// Because canon.JSON sorts map keys and the slice is sorted here first,
// fingerprints are invariant under both hazard-id order and object-key order
// — the "fingerprint invariance" testable property in spec.md §8.
func RequestFingerprint(in ResilienceFingerprintInput) (string, error) {
	sorted := append([]string(nil), in.HazardVersionIDs...)
	sort.Strings(sorted)

	policyPackVersion := in.PolicyPackVersion
	if policyPackVersion == "" {
		policyPackVersion = "default"
	}

	payload := map[string]any{
		"tenant_id":              in.TenantID,
		"exposure_version_id":    in.ExposureVersionID,
		"hazard_version_ids":     sorted,
		"scoring_config":         in.ScoringConfig,
		"scoring_version":        in.ScoringVersion,
		"code_version":           in.CodeVersion,
		"policy_pack_version_id": policyPackVersion,
	}
	digest, _, err := Hash(payload)
	return digest, err
}

// ForcedFingerprint perturbs a fingerprint input with a forced_at marker so
// that force=true resilience scoring requests never collide with a prior
// cached result, per spec.md §4.8.
func ForcedFingerprint(in ResilienceFingerprintInput, forcedAt string) (string, error) {
	cfg := map[string]any{}
	for k, v := range in.ScoringConfig {
		cfg[k] = v
	}
	cfg["forced_at"] = forcedAt
	in.ScoringConfig = cfg
	return RequestFingerprint(in)
}
