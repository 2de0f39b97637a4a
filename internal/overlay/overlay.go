// Package overlay implements the spatial overlay engine (C10): combines
// hazard features containing a location's point into one worst-in-peril
// entry per peril, then picks a single representative attribute per
// location. Grounded on app/services/hazard_query.py.
package overlay

import (
	"fmt"
	"sort"
	"strings"

	"github.com/meridianrisk/exposure-engine/internal/domain"
)

// HazardEntry is one peril's combined observation for a location, the
// worst-in-peril survivor across every containing feature.
type HazardEntry struct {
	Peril         string
	Score         *float64
	Band          string
	Source        string
	Raw           map[string]any
	tieBreakerID  int64
}

func coerceFloat(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	case *float64:
		return n
	default:
		return nil
	}
}

// ExtractEntry builds a HazardEntry from one containing feature's raw
// properties, falling back to the dataset's own peril when the feature
// carries none.
func ExtractEntry(feature *domain.HazardFeaturePolygon, datasetPeril, datasetName, versionLabel string) HazardEntry {
	props := feature.RawProperties
	peril := datasetPeril
	if v, ok := props["hazard_category"]; ok {
		if s, ok := v.(string); ok && s != "" {
			peril = s
		}
	}
	peril = strings.ToLower(strings.TrimSpace(peril))

	score := feature.Score
	if score == nil {
		if v, ok := props["score"]; ok {
			score = coerceFloat(v)
		}
	}

	band := feature.Band
	if band == "" {
		if v, ok := props["band"].(string); ok {
			band = v
		}
	}

	return HazardEntry{
		Peril:        peril,
		Score:        score,
		Band:         band,
		Source:       fmt.Sprintf("%s:%s", datasetName, versionLabel),
		Raw:          props,
		tieBreakerID: feature.ID,
	}
}

// MergeWorstInPeril folds entry into hazards, keeping per peril the entry
// with the highest score (numeric beats null, ties broken by smallest
// feature id), per spec.md §4.7 step 4.
func MergeWorstInPeril(hazards map[string]HazardEntry, entry HazardEntry) map[string]HazardEntry {
	if hazards == nil {
		hazards = make(map[string]HazardEntry)
	}
	if entry.Peril == "" {
		return hazards
	}
	existing, ok := hazards[entry.Peril]
	if !ok {
		hazards[entry.Peril] = entry
		return hazards
	}

	switch {
	case entry.Score == nil && existing.Score == nil:
		return hazards
	case existing.Score == nil && entry.Score != nil:
		hazards[entry.Peril] = entry
		return hazards
	case entry.Score == nil:
		return hazards
	case *entry.Score > *existing.Score:
		hazards[entry.Peril] = entry
		return hazards
	case *entry.Score < *existing.Score:
		return hazards
	default:
		if entry.tieBreakerID < existing.tieBreakerID {
			hazards[entry.Peril] = entry
		}
		return hazards
	}
}

// Representative picks the single highest-scoring peril entry across
// hazards for persistence as the location's LocationHazardAttribute, per
// spec.md §4.7 step 5. Ties break on peril name for determinism.
func Representative(hazards map[string]HazardEntry) (HazardEntry, bool) {
	if len(hazards) == 0 {
		return HazardEntry{}, false
	}
	perils := make([]string, 0, len(hazards))
	for p := range hazards {
		perils = append(perils, p)
	}
	sort.Strings(perils)

	best := hazards[perils[0]]
	for _, p := range perils[1:] {
		entry := hazards[p]
		if entry.Score == nil {
			continue
		}
		if best.Score == nil || *entry.Score > *best.Score {
			best = entry
		}
	}
	return best, true
}

// Summary tallies one overlay run's outcomes.
type Summary struct {
	LocationsProcessed int `json:"locations"`
	AttributesCreated  int `json:"attributes_created"`
	LocationsSkipped   int `json:"locations_skipped"`
}
