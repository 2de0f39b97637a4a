// Package drift implements the drift engine (C14): classifies Locations
// between two exposure versions keyed by external_location_id, grounded on
// app/services/drift.py.
package drift

import (
	"sort"

	"github.com/meridianrisk/exposure-engine/internal/canon"
	"github.com/meridianrisk/exposure-engine/internal/domain"
)

// CompareFields is the fixed set of fields a MODIFIED classification
// checks, matching drift.py's COMPARE_FIELDS.
var CompareFields = []string{
	"address_line1", "city", "state_region", "postal_code", "country",
	"latitude", "longitude", "currency", "lob", "product_code",
	"tiv", "limit", "premium", "quality_tier",
}

var classificationOrder = map[domain.DriftClassification]int{
	domain.DriftNew:      0,
	domain.DriftRemoved:  1,
	domain.DriftModified: 2,
}

var numericFields = map[string]bool{"tiv": true, "limit": true, "premium": true}

func fieldValue(loc *domain.Location, field string) any {
	switch field {
	case "address_line1":
		return loc.AddressLine1
	case "city":
		return loc.City
	case "state_region":
		return loc.StateRegion
	case "postal_code":
		return loc.PostalCode
	case "country":
		return loc.Country
	case "latitude":
		return loc.Latitude
	case "longitude":
		return loc.Longitude
	case "currency":
		return loc.Currency
	case "lob":
		return loc.LOB
	case "product_code":
		return loc.ProductCode
	case "tiv":
		return loc.TIV
	case "limit":
		return loc.Limit
	case "premium":
		return loc.Premium
	case "quality_tier":
		return string(loc.QualityTier)
	default:
		return nil
	}
}

func equalValue(a, b any) bool {
	ca, _ := canon.JSON(a)
	cb, _ := canon.JSON(b)
	return string(ca) == string(cb)
}

func floatOf(v any) (float64, bool) {
	switch f := v.(type) {
	case *float64:
		if f == nil {
			return 0, false
		}
		return *f, true
	case float64:
		return f, true
	default:
		return 0, false
	}
}

// Detail is one emitted drift record.
type Detail struct {
	ExternalLocationID string                              `json:"external_location_id"`
	Classification      domain.DriftClassification         `json:"classification"`
	DeltaJSON            map[string]any                     `json:"delta_json"`
}

// Summary tallies a drift run's classification counts.
type Summary struct {
	New      int `json:"NEW"`
	Removed  int `json:"REMOVED"`
	Modified int `json:"MODIFIED"`
	Total    int `json:"total"`
}

// Result is the full drift artifact.
type Result struct {
	Details  []Detail `json:"details"`
	Summary  Summary  `json:"summary"`
	Checksum string   `json:"-"`
}

// Compute diffs locationsA (the base version) against locationsB (the
// comparison version), both keyed by external_location_id.
func Compute(locationsA, locationsB []*domain.Location) (*Result, error) {
	byIDA := make(map[string]*domain.Location, len(locationsA))
	for _, loc := range locationsA {
		byIDA[loc.ExternalLocationID] = loc
	}
	byIDB := make(map[string]*domain.Location, len(locationsB))
	for _, loc := range locationsB {
		byIDB[loc.ExternalLocationID] = loc
	}

	var details []Detail
	for id, locB := range byIDB {
		if _, ok := byIDA[id]; !ok {
			details = append(details, Detail{ExternalLocationID: id, Classification: domain.DriftNew, DeltaJSON: map[string]any{}})
		}
	}
	for id, locA := range byIDA {
		locB, ok := byIDB[id]
		if !ok {
			details = append(details, Detail{ExternalLocationID: id, Classification: domain.DriftRemoved, DeltaJSON: map[string]any{}})
			continue
		}
		delta := make(map[string]any)
		for _, field := range CompareFields {
			va, vb := fieldValue(locA, field), fieldValue(locB, field)
			if equalValue(va, vb) {
				continue
			}
			change := map[string]any{"from": va, "to": vb}
			if numericFields[field] {
				fa, okA := floatOf(va)
				fb, okB := floatOf(vb)
				if okA && okB {
					change["delta"] = fb - fa
				}
			}
			delta[field] = change
		}
		if len(delta) > 0 {
			details = append(details, Detail{ExternalLocationID: id, Classification: domain.DriftModified, DeltaJSON: delta})
		}
	}

	sort.SliceStable(details, func(i, j int) bool {
		if classificationOrder[details[i].Classification] != classificationOrder[details[j].Classification] {
			return classificationOrder[details[i].Classification] < classificationOrder[details[j].Classification]
		}
		return details[i].ExternalLocationID < details[j].ExternalLocationID
	})

	summary := Summary{Total: len(details)}
	for _, d := range details {
		switch d.Classification {
		case domain.DriftNew:
			summary.New++
		case domain.DriftRemoved:
			summary.Removed++
		case domain.DriftModified:
			summary.Modified++
		}
	}

	digest, _, err := canon.Hash(map[string]any{"details": details, "summary": summary})
	if err != nil {
		return nil, err
	}
	return &Result{Details: details, Summary: summary, Checksum: digest}, nil
}
