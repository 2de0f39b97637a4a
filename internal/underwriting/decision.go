// Package underwriting implements the automatic resilience-threshold
// decision tree (C16), the manual underwriter decision payload helper, and
// a generic predicate-based custom rule engine. Grounded on
// app/services/underwriting_decision.py, uw_decision.py, and uw_rules.py.
package underwriting

import (
	"sort"
	"strings"
)

// DefaultPolicy mirrors underwriting_decision.py's module-level
// DEFAULT_POLICY dict.
var DefaultPolicy = Policy{
	ScoreAcceptMin:    70,
	ScoreReferMin:     40,
	DeclineScoreMax:   39,
	PerilDeclineThresholds: map[string]float64{"flood": 0.90, "wildfire": 0.90},
	PerilReferThresholds:   map[string]float64{"flood": 0.70, "wildfire": 0.70, "wind": 0.75, "heat": 0.80},
	RequireStructuralFields: []string{"roof_material"},
	MaxMissingPerilsForAccept: 0,
}

// KnownRoofMaterials and WeakRoofMaterials classify the roof_material
// structural field for the wind mitigation recommendation.
var (
	KnownRoofMaterials = map[string]bool{"metal": true, "tile": true, "asphalt_shingle": true, "wood_shake": true}
	WeakRoofMaterials  = map[string]bool{"wood_shake": true}
)

// Policy is the tunable underwriting decision threshold set, resolved from
// a policy pack version (or DefaultPolicy) by internal/policy.
type Policy struct {
	ScoreAcceptMin            int
	ScoreReferMin             int
	DeclineScoreMax           int
	PerilDeclineThresholds    map[string]float64
	PerilReferThresholds      map[string]float64
	RequireStructuralFields   []string
	MaxMissingPerilsForAccept int
}

// DefaultPolicyMap renders DefaultPolicy as the generic map[string]any shape
// a policy pack override is deep-merged onto.
func DefaultPolicyMap() map[string]any {
	decline := make(map[string]any, len(DefaultPolicy.PerilDeclineThresholds))
	for k, v := range DefaultPolicy.PerilDeclineThresholds {
		decline[k] = v
	}
	refer := make(map[string]any, len(DefaultPolicy.PerilReferThresholds))
	for k, v := range DefaultPolicy.PerilReferThresholds {
		refer[k] = v
	}
	fields := make([]any, len(DefaultPolicy.RequireStructuralFields))
	for i, f := range DefaultPolicy.RequireStructuralFields {
		fields[i] = f
	}
	return map[string]any{
		"score_accept_min":              DefaultPolicy.ScoreAcceptMin,
		"score_refer_min":               DefaultPolicy.ScoreReferMin,
		"decline_score_max":             DefaultPolicy.DeclineScoreMax,
		"peril_decline_thresholds":      decline,
		"peril_refer_thresholds":        refer,
		"require_structural_fields":     fields,
		"max_missing_perils_for_accept": DefaultPolicy.MaxMissingPerilsForAccept,
	}
}

// PolicyFromMap converts a resolved policy map back into a typed Policy.
func PolicyFromMap(m map[string]any) Policy {
	p := DefaultPolicy
	if v, ok := toInt(m["score_accept_min"]); ok {
		p.ScoreAcceptMin = v
	}
	if v, ok := toInt(m["score_refer_min"]); ok {
		p.ScoreReferMin = v
	}
	if v, ok := toInt(m["decline_score_max"]); ok {
		p.DeclineScoreMax = v
	}
	if v, ok := toInt(m["max_missing_perils_for_accept"]); ok {
		p.MaxMissingPerilsForAccept = v
	}
	if thresholds, ok := m["peril_decline_thresholds"].(map[string]any); ok {
		p.PerilDeclineThresholds = toFloatMap(thresholds)
	}
	if thresholds, ok := m["peril_refer_thresholds"].(map[string]any); ok {
		p.PerilReferThresholds = toFloatMap(thresholds)
	}
	if fields, ok := m["require_structural_fields"].([]any); ok {
		names := make([]string, 0, len(fields))
		for _, f := range fields {
			if s, ok := f.(string); ok {
				names = append(names, s)
			}
		}
		p.RequireStructuralFields = names
	}
	return p
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func toFloatMap(m map[string]any) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		switch n := v.(type) {
		case float64:
			out[k] = n
		case int:
			out[k] = float64(n)
		}
	}
	return out
}

// HazardInput is the score observed for one peril, as fed into the decision
// tree (distinct from resilience.HazardInput, which also carries a Band).
type HazardInput struct {
	Score *float64
}

// DataQuality summarizes the inputs that can degrade a decision's
// confidence or force it to NEEDS_DATA.
type DataQuality struct {
	PerilMissing             []string
	UsedUnknownHazardFallback bool
	EnrichmentStatus         string
	EnrichmentFailed         bool
	BestEffort               bool
}

// MitigationRecommendation is one suggested risk-reduction action.
type MitigationRecommendation struct {
	Code      string   `json:"code"`
	Title     string   `json:"title"`
	Detail    string   `json:"detail"`
	AppliesTo []string `json:"applies_to"`
}

// Decision is the full output of EvaluateDecision.
type Decision struct {
	Decision                   string                      `json:"decision"`
	Confidence                 float64                     `json:"confidence"`
	ReasonCodes                []string                    `json:"reason_codes"`
	Reasons                    []string                    `json:"reasons"`
	MitigationRecommendations  []MitigationRecommendation  `json:"mitigation_recommendations"`
	PolicyUsed                 Policy                      `json:"policy_used"`
}

// EvaluateDecision runs the ACCEPT/REFER/DECLINE/NEEDS_DATA decision tree
// for one location, per spec.md §12.2's exact ordering.
func EvaluateDecision(resilienceScore int, hazards map[string]HazardInput, structuralUsed map[string]any, dq DataQuality, policy Policy) Decision {
	var reasonCodes, reasons []string
	var decision string

	if dq.EnrichmentFailed && dq.BestEffort {
		reasonCodes = append(reasonCodes, "ENRICHMENT_FAILED")
		reasons = append(reasons, "Property enrichment failed; decision needs more data.")
		decision = "NEEDS_DATA"
	}

	if decision == "" {
		if resilienceScore <= policy.DeclineScoreMax {
			reasonCodes = append(reasonCodes, "SCORE_LOW_DECLINE")
			reasons = append(reasons, "Resilience score is below decline threshold.")
			decision = "DECLINE"
		} else {
			for _, peril := range sortedKeys(policy.PerilDeclineThresholds) {
				threshold := policy.PerilDeclineThresholds[peril]
				if score := perilScore(hazards, peril); score != nil && *score >= threshold {
					reasonCodes = append(reasonCodes, "PERIL_HIGH_DECLINE_"+strings.ToUpper(peril))
					reasons = append(reasons, peril+" hazard exceeds decline threshold.")
					decision = "DECLINE"
					break
				}
			}
		}
	}

	if decision == "" {
		if resilienceScore < policy.ScoreAcceptMin {
			reasonCodes = append(reasonCodes, "SCORE_MEDIUM_REFER")
			reasons = append(reasons, "Resilience score is below accept threshold.")
			decision = "REFER"
		} else {
			for _, peril := range sortedKeys(policy.PerilReferThresholds) {
				threshold := policy.PerilReferThresholds[peril]
				if score := perilScore(hazards, peril); score != nil && *score >= threshold {
					reasonCodes = append(reasonCodes, "PERIL_ELEVATED_REFER_"+strings.ToUpper(peril))
					reasons = append(reasons, peril+" hazard exceeds refer threshold.")
					decision = "REFER"
					break
				}
			}
		}
	}

	requiredMissing := missingStructuralFields(policy.RequireStructuralFields, structuralUsed)
	if decision == "" {
		missingCount := len(dq.PerilMissing)
		if missingCount > policy.MaxMissingPerilsForAccept || len(requiredMissing) > 0 {
			if missingCount > policy.MaxMissingPerilsForAccept {
				reasonCodes = append(reasonCodes, "MISSING_PERIL_DATA")
				reasons = append(reasons, "Missing hazard data for required perils.")
			}
			for _, field := range requiredMissing {
				reasonCodes = append(reasonCodes, "STRUCTURAL_MISSING_"+strings.ToUpper(field))
				reasons = append(reasons, "Missing required structural field: "+field+".")
			}
			decision = "NEEDS_DATA"
		}
	}

	if decision == "" {
		decision = "ACCEPT"
	}

	confidence := computeConfidence(dq.UsedUnknownHazardFallback, requiredMissing, dq.EnrichmentStatus)
	if confidence < 0.7 {
		reasonCodes = append(reasonCodes, "LOW_CONFIDENCE_DATA")
		reasons = append(reasons, "Confidence is reduced due to data gaps.")
	}

	return Decision{
		Decision:                  decision,
		Confidence:                confidence,
		ReasonCodes:               uniquePreserve(reasonCodes),
		Reasons:                   uniquePreserve(reasons),
		MitigationRecommendations: mitigationRecommendations(hazards, structuralUsed),
		PolicyUsed:                policy,
	}
}

func perilScore(hazards map[string]HazardInput, peril string) *float64 {
	h, ok := hazards[peril]
	if !ok {
		return nil
	}
	return h.Score
}

func missingStructuralFields(required []string, structuralUsed map[string]any) []string {
	var missing []string
	for _, field := range required {
		if structuralUsed[field] == nil {
			missing = append(missing, field)
		}
	}
	return missing
}

func computeConfidence(usedUnknownFallback bool, requiredMissing []string, enrichmentStatus string) float64 {
	confidence := 1.0
	if usedUnknownFallback {
		confidence -= 0.15
	}
	if len(requiredMissing) > 0 {
		confidence -= 0.10
	}
	if enrichmentStatus == "queued" || enrichmentStatus == "failed" {
		confidence -= 0.10
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return roundTo(confidence, 2)
}

func roundTo(v float64, places int) float64 {
	mult := 1.0
	for i := 0; i < places; i++ {
		mult *= 10
	}
	return float64(int(v*mult+0.5)) / mult
}

func mitigationRecommendations(hazards map[string]HazardInput, structuralUsed map[string]any) []MitigationRecommendation {
	var recs []MitigationRecommendation

	wildfireScore := perilScore(hazards, "wildfire")
	vegetation, vegOK := asFloat(structuralUsed["vegetation_proximity_m"])
	if (wildfireScore != nil && *wildfireScore >= 0.70) || (vegOK && vegetation <= 30) {
		recs = append(recs, MitigationRecommendation{
			Code: "MIT_WILDFIRE_DEFENSIBLE_SPACE", Title: "Improve defensible space",
			Detail:    "Create defensible space and manage nearby vegetation within 30 meters.",
			AppliesTo: []string{"wildfire"},
		})
	}

	floodScore := perilScore(hazards, "flood")
	elevation, elevOK := asFloat(structuralUsed["elevation_m"])
	if (floodScore != nil && *floodScore >= 0.70) || !elevOK || (elevOK && elevation <= 5) {
		recs = append(recs, MitigationRecommendation{
			Code: "MIT_FLOOD_ELEVATION_DRAINAGE", Title: "Improve flood resilience",
			Detail:    "Consider flood vents, elevation verification, and drainage improvements.",
			AppliesTo: []string{"flood"},
		})
	}

	windScore := perilScore(hazards, "wind")
	roofMaterial, _ := structuralUsed["roof_material"].(string)
	roofUnknown := structuralUsed["roof_material"] == nil || !KnownRoofMaterials[roofMaterial]
	roofWeak := WeakRoofMaterials[roofMaterial]
	if (windScore != nil && *windScore >= 0.75) || roofUnknown || roofWeak {
		recs = append(recs, MitigationRecommendation{
			Code: "MIT_WIND_ROOF_HARDENING", Title: "Harden roof against wind",
			Detail:    "Inspect roof, add tie-downs, and verify fastening for wind resilience.",
			AppliesTo: []string{"wind"},
		})
	}

	return recs
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func uniquePreserve(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

// perilOrder fixes the iteration order of a peril threshold map to match
// DEFAULT_POLICY's declaration order, since the first threshold a location
// breaches determines its reason code when several perils qualify at once.
// Perils introduced by a policy override and absent from this list are
// appended afterward in alphabetical order.
var perilOrder = []string{"flood", "wildfire", "wind", "heat"}

func sortedKeys(m map[string]float64) []string {
	seen := make(map[string]bool, len(m))
	ordered := make([]string, 0, len(m))
	for _, p := range perilOrder {
		if _, ok := m[p]; ok {
			ordered = append(ordered, p)
			seen[p] = true
		}
	}
	var rest []string
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(ordered, rest...)
}
