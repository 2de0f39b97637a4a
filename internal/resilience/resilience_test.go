package resilience

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianrisk/exposure-engine/internal/structural"
)

func ptr(f float64) *float64 { return &f }

func TestScore_AllUnknownHazards(t *testing.T) {
	result := Score(nil, structural.Fields{}, DefaultConfig())
	assert.Len(t, result.Warnings, 4)
	// all perils default to unknown_hazard_score=0.5, weighted sum = 0.5
	assert.InDelta(t, 0.5, result.RiskScore, 0.0001)
	assert.Equal(t, 50, result.ResilienceScore)
}

func TestScore_FloodElevationReducesRisk(t *testing.T) {
	hazards := map[string]HazardInput{"flood": {Score: ptr(0.8)}}
	elevation := 500.0
	result := Score(hazards, structural.Fields{ElevationM: &elevation}, DefaultConfig())
	floodScore := result.PerilScores["flood"]
	assert.Less(t, floodScore.Adjusted, floodScore.Raw)
}

func TestScore_WildfireVegetationBoostsRisk(t *testing.T) {
	hazards := map[string]HazardInput{"wildfire": {Score: ptr(0.5)}}
	veg := 10.0
	result := Score(hazards, structural.Fields{VegetationProximityM: &veg}, DefaultConfig())
	wildfireScore := result.PerilScores["wildfire"]
	assert.Greater(t, wildfireScore.Adjusted, wildfireScore.Raw)
}

func TestScore_RoofBonusAppliedAndClamped(t *testing.T) {
	roof := "metal"
	hazards := map[string]HazardInput{
		"flood": {Score: ptr(0.0)}, "wildfire": {Score: ptr(0.0)},
		"wind": {Score: ptr(0.0)}, "heat": {Score: ptr(0.0)},
	}
	result := Score(hazards, structural.Fields{RoofMaterial: &roof}, DefaultConfig())
	// risk=0 -> base score 100, +5 bonus clamped to 100
	assert.Equal(t, 100, result.ResilienceScore)
}

func TestScore_WeakRoofCanLowerScore(t *testing.T) {
	roof := "wood_shake"
	hazards := map[string]HazardInput{
		"flood": {Score: ptr(0.0)}, "wildfire": {Score: ptr(0.0)},
		"wind": {Score: ptr(0.0)}, "heat": {Score: ptr(0.0)},
	}
	result := Score(hazards, structural.Fields{RoofMaterial: &roof}, DefaultConfig())
	assert.Equal(t, 95, result.ResilienceScore)
}

func TestScore_ClampsNegativeToZero(t *testing.T) {
	roof := "wood_shake"
	hazards := map[string]HazardInput{
		"flood": {Score: ptr(1.0)}, "wildfire": {Score: ptr(1.0)},
		"wind": {Score: ptr(1.0)}, "heat": {Score: ptr(1.0)},
	}
	result := Score(hazards, structural.Fields{RoofMaterial: &roof}, DefaultConfig())
	require.GreaterOrEqual(t, result.ResilienceScore, 0)
}
