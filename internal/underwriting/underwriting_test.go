package underwriting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianrisk/exposure-engine/internal/domain"
)

func ptr(f float64) *float64 { return &f }

func TestEvaluateDecision_LowScoreDeclines(t *testing.T) {
	d := EvaluateDecision(20, nil, map[string]any{"roof_material": "metal"}, DataQuality{}, DefaultPolicy)
	assert.Equal(t, "DECLINE", d.Decision)
	assert.Contains(t, d.ReasonCodes, "SCORE_LOW_DECLINE")
}

func TestEvaluateDecision_PerilAboveDeclineThreshold(t *testing.T) {
	hazards := map[string]HazardInput{"flood": {Score: ptr(0.95)}}
	d := EvaluateDecision(80, hazards, map[string]any{"roof_material": "metal"}, DataQuality{}, DefaultPolicy)
	assert.Equal(t, "DECLINE", d.Decision)
	assert.Contains(t, d.ReasonCodes, "PERIL_HIGH_DECLINE_FLOOD")
}

func TestEvaluateDecision_MissingStructuralFieldNeedsData(t *testing.T) {
	d := EvaluateDecision(85, nil, map[string]any{}, DataQuality{}, DefaultPolicy)
	assert.Equal(t, "NEEDS_DATA", d.Decision)
	assert.Contains(t, d.ReasonCodes, "STRUCTURAL_MISSING_ROOF_MATERIAL")
}

func TestEvaluateDecision_CleanAccept(t *testing.T) {
	d := EvaluateDecision(90, map[string]HazardInput{"flood": {Score: ptr(0.1)}}, map[string]any{"roof_material": "metal"}, DataQuality{}, DefaultPolicy)
	assert.Equal(t, "ACCEPT", d.Decision)
	assert.Equal(t, 1.0, d.Confidence)
}

func TestEvaluateDecision_EnrichmentFailedBestEffortNeedsData(t *testing.T) {
	d := EvaluateDecision(90, nil, map[string]any{"roof_material": "metal"}, DataQuality{EnrichmentFailed: true, BestEffort: true}, DefaultPolicy)
	assert.Equal(t, "NEEDS_DATA", d.Decision)
	assert.Contains(t, d.ReasonCodes, "ENRICHMENT_FAILED")
}

func TestPrepareDecisionPayload_CreateVsUpdate(t *testing.T) {
	created := PrepareDecisionPayload(nil, ManualDecisionInput{ExposureVersionID: "ev1", Decision: "ACCEPT"})
	assert.Equal(t, "created", created.AuditMetadata["action"])

	existing := &ManualDecisionPayload{Decision: "REFER"}
	updated := PrepareDecisionPayload(existing, ManualDecisionInput{ExposureVersionID: "ev1", Decision: "ACCEPT"})
	assert.Equal(t, "updated", updated.AuditMetadata["action"])
	assert.Equal(t, "REFER", updated.AuditMetadata["previous_decision"])
}

func TestEvaluateRule_AllLogic(t *testing.T) {
	rule := Rule{All: []Predicate{
		{Field: "lob", Op: "==", Value: "COMMERCIAL"},
		{Field: "tiv", Op: ">", Value: 1000000.0},
	}}
	record := map[string]any{"lob": "COMMERCIAL", "tiv": 2000000.0}
	matched, explanation := EvaluateRule(rule, record)
	assert.True(t, matched)
	assert.Equal(t, "all", explanation.Logic)
}

func TestEvaluateRule_AnyLogicWithListField(t *testing.T) {
	rule := Rule{Any: []Predicate{
		{Field: "hazard_band", Op: "in", Value: []any{"HIGH", "EXTREME"}},
	}}
	record := map[string]any{"hazard_band": []any{"LOW", "EXTREME"}}
	matched, _ := EvaluateRule(rule, record)
	assert.True(t, matched)
}

func TestEvaluateRule_NoClausesNeverMatches(t *testing.T) {
	matched, explanation := EvaluateRule(Rule{}, map[string]any{})
	assert.False(t, matched)
	assert.Equal(t, "none", explanation.Logic)
}

func TestEvaluatePredicate_ExistsOnDottedPath(t *testing.T) {
	record := map[string]any{"rollup": map[string]any{"metrics": map[string]any{"tiv_sum": 100.0}}}
	result := EvaluatePredicate(Predicate{Field: "rollup.metrics.tiv_sum", Op: "exists"}, record)
	assert.True(t, result.Matched)
}

func TestBuildLocationRecord_IncludesSortedHazardBands(t *testing.T) {
	loc := &domain.Location{ID: "loc1", ExternalLocationID: "ext1", LOB: "COMMERCIAL"}
	record := BuildLocationRecord(loc, []map[string]any{{"band": "HIGH"}, {"band": "LOW"}})
	bands, ok := record["hazard_band"].([]any)
	require.True(t, ok)
	assert.Equal(t, []any{"HIGH", "LOW"}, bands)
}

func TestBuildRollupRecord_NestsMetrics(t *testing.T) {
	record := BuildRollupRecord(map[string]any{"lob": "COMMERCIAL"}, map[string]float64{"tiv_sum": 500})
	rollup, ok := record["rollup"].(map[string]any)
	require.True(t, ok)
	metrics, ok := rollup["metrics"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(500), metrics["tiv_sum"])
}

func TestCanonicalJSON_SortsKeys(t *testing.T) {
	out, err := CanonicalJSON(map[string]any{"b": 1, "a": 2})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1}`, out)
}
