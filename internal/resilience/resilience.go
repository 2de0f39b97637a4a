// Package resilience implements the resilience scoring algorithm (C11):
// per-peril hazard weighting, flood/wildfire structural adjustments, and a
// roof-material bonus, reduced to a single 0-100 integer score per location.
// Grounded on app/services/resilience.py.
package resilience

import (
	"math"
	"sort"

	"github.com/meridianrisk/exposure-engine/internal/structural"
)

// DefaultWeights mirrors resilience.py's DEFAULT_CONFIG weight table.
var DefaultWeights = map[string]float64{
	"flood":    0.35,
	"wildfire": 0.35,
	"wind":     0.15,
	"heat":     0.15,
}

const DefaultUnknownHazardScore = 0.5

// RoofBonus mirrors the roof-material score adjustment table; materials
// absent from this map contribute no bonus.
var RoofBonus = map[string]int{
	"metal":           5,
	"tile":            3,
	"asphalt_shingle": 0,
	"wood_shake":      -5,
}

// Config is the tunable scoring input, defaulted from DefaultWeights /
// DefaultUnknownHazardScore / RoofBonus when a field is unset.
type Config struct {
	Weights            map[string]float64
	UnknownHazardScore float64
	RoofBonus          map[string]int
}

// DefaultConfig returns a fresh copy of the built-in scoring defaults.
func DefaultConfig() Config {
	weights := make(map[string]float64, len(DefaultWeights))
	for k, v := range DefaultWeights {
		weights[k] = v
	}
	bonus := make(map[string]int, len(RoofBonus))
	for k, v := range RoofBonus {
		bonus[k] = v
	}
	return Config{Weights: weights, UnknownHazardScore: DefaultUnknownHazardScore, RoofBonus: bonus}
}

// DefaultConfigMap renders the built-in scoring defaults in the generic
// map[string]any shape a policy pack override is deep-merged onto, mirroring
// resilience.py's module-level DEFAULT_CONFIG dict.
func DefaultConfigMap() map[string]any {
	weights := make(map[string]any, len(DefaultWeights))
	for k, v := range DefaultWeights {
		weights[k] = v
	}
	bonus := make(map[string]any, len(RoofBonus))
	for k, v := range RoofBonus {
		bonus[k] = v
	}
	return map[string]any{
		"weights":              weights,
		"unknown_hazard_score": DefaultUnknownHazardScore,
		"roof_bonus":           bonus,
	}
}

// ConfigFromMap converts a resolved policy config map (as produced by
// DefaultConfigMap and merged with any policy pack override) back into a
// typed Config for Score.
func ConfigFromMap(m map[string]any) Config {
	cfg := DefaultConfig()
	if weights, ok := m["weights"].(map[string]any); ok {
		for k, v := range weights {
			if f, ok := toFloat(v); ok {
				cfg.Weights[k] = f
			}
		}
	}
	if unknown, ok := m["unknown_hazard_score"]; ok {
		if f, ok := toFloat(unknown); ok {
			cfg.UnknownHazardScore = f
		}
	}
	if bonus, ok := m["roof_bonus"].(map[string]any); ok {
		for k, v := range bonus {
			if f, ok := toFloat(v); ok {
				cfg.RoofBonus[k] = int(f)
			}
		}
	}
	return cfg
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// HazardInput is one peril's observed hazard data for a location.
type HazardInput struct {
	Score *float64
	Band  string
}

// PerilScore is the raw/adjusted/weight triple returned for every scored
// peril, matching domain.PerilScore's JSON shape.
type PerilScore struct {
	Raw      float64
	Adjusted float64
	Weight   float64
}

// Result is the full per-location scoring output.
type Result struct {
	ResilienceScore       int
	RiskScore             float64
	PerilScores           map[string]PerilScore
	StructuralAdjustments map[string]float64
	Warnings              []string
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Score runs the full algorithm in spec.md §4.8 for one location.
func Score(hazards map[string]HazardInput, structuralUsed structural.Fields, cfg Config) Result {
	if cfg.Weights == nil {
		cfg.Weights = DefaultWeights
	}
	if cfg.RoofBonus == nil {
		cfg.RoofBonus = RoofBonus
	}
	unknownScore := cfg.UnknownHazardScore
	if unknownScore == 0 {
		unknownScore = DefaultUnknownHazardScore
	}

	perils := make([]string, 0, len(cfg.Weights))
	for p := range cfg.Weights {
		perils = append(perils, p)
	}
	sort.Strings(perils)

	perilScores := make(map[string]PerilScore, len(perils))
	adjustments := make(map[string]float64)
	var warnings []string
	var risk float64

	for _, peril := range perils {
		weight := cfg.Weights[peril]
		hazard, observed := hazards[peril]
		var raw float64
		if observed && hazard.Score != nil {
			raw = clamp(*hazard.Score, 0, 1)
		} else {
			raw = clamp(unknownScore, 0, 1)
			warnings = append(warnings, "missing hazard score for peril: "+peril)
		}

		adjusted := raw
		switch peril {
		case "flood":
			elevation := 0.0
			if structuralUsed.ElevationM != nil && *structuralUsed.ElevationM > 0 {
				elevation = *structuralUsed.ElevationM
			}
			reduction := math.Min(0.15, elevation/1000*0.10)
			adjusted = clamp(raw-reduction, 0, 1)
			if reduction != 0 {
				adjustments["flood_elevation_reduction"] = reduction
			}
		case "wildfire":
			if structuralUsed.VegetationProximityM != nil && *structuralUsed.VegetationProximityM <= 30 {
				veg := *structuralUsed.VegetationProximityM
				boost := (30 - veg) / 30 * 0.10
				adjusted = clamp(raw+boost, 0, 1)
				adjustments["wildfire_vegetation_boost"] = boost
			}
		}

		perilScores[peril] = PerilScore{Raw: raw, Adjusted: adjusted, Weight: weight}
		risk += weight * adjusted
	}

	risk = clamp(risk, 0, 1)
	riskScore := math.Round(risk*10000) / 10000

	roofBonus := 0
	if structuralUsed.RoofMaterial != nil {
		roofBonus = cfg.RoofBonus[*structuralUsed.RoofMaterial]
	}
	score := int(math.Round(100*(1-risk))) + roofBonus
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return Result{
		ResilienceScore:       score,
		RiskScore:             riskScore,
		PerilScores:           perilScores,
		StructuralAdjustments: adjustments,
		Warnings:              warnings,
	}
}
