// Package enrichment implements the property enrichment pipeline (C9):
// address normalization, the geocoder -> parcel -> characteristics provider
// chain, structural field mapping with provenance, and the sync/async mode
// decision table. Grounded on app/services/property_enrichment.py.
package enrichment

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/meridianrisk/exposure-engine/internal/canon"
	"github.com/meridianrisk/exposure-engine/internal/providers"
	"github.com/meridianrisk/exposure-engine/internal/structural"
)

// NormalizeAddress trims and case-normalizes an address the way the
// Python pipeline does, dropping empty fields entirely rather than keeping
// them as empty strings.
func NormalizeAddress(address map[string]any) map[string]any {
	normalized := make(map[string]any)
	str := func(key string) string {
		s, _ := address[key].(string)
		return strings.TrimSpace(s)
	}
	if v := str("address_line1"); v != "" {
		normalized["address_line1"] = v
	}
	if v := str("city"); v != "" {
		normalized["city"] = v
	}
	if v := strings.ToUpper(str("state_region")); v != "" {
		normalized["state_region"] = v
	}
	if v := strings.ToUpper(strings.ReplaceAll(str("postal_code"), " ", "")); v != "" {
		normalized["postal_code"] = v
	}
	if v := strings.ToUpper(str("country")); v != "" {
		normalized["country"] = v
	}
	return normalized
}

// AddressFingerprint hashes the canonical JSON of a normalized address.
func AddressFingerprint(normalizedAddress map[string]any) (string, error) {
	digest, _, err := canon.Hash(normalizedAddress)
	return digest, err
}

// FieldProvenance records where one structural field's value came from.
type FieldProvenance struct {
	Source      string  `json:"source"`
	Provider    string  `json:"provider"`
	Confidence  float64 `json:"confidence"`
	RetrievedAt string  `json:"retrieved_at"`
	Method      string  `json:"method"`
}

// MapToStructural combines the three provider results into the canonical
// structural shape plus a per-field provenance map, per spec.md §4.6's
// preference order (characteristics for roof_material, geocode-then-parcel
// for elevation_m, characteristics-then-parcel for vegetation_proximity_m).
func MapToStructural(characteristics providers.CharacteristicsResult, parcel providers.ParcelResult, geocode providers.GeocodeResult, retrievedAt time.Time) (structural.Fields, map[string]FieldProvenance) {
	retrieved := retrievedAt.UTC().Format(time.RFC3339)
	provenance := make(map[string]FieldProvenance)
	raw := make(map[string]any)

	if characteristics.RoofMaterial != "" {
		raw["roof_material"] = characteristics.RoofMaterial
		provenance["roof_material"] = FieldProvenance{
			Source: "characteristics", Provider: characteristics.Provider,
			Confidence: characteristics.FieldConfidence["roof_material"], RetrievedAt: retrieved, Method: "stub",
		}
	} else {
		provenance["roof_material"] = FieldProvenance{RetrievedAt: retrieved, Method: "missing"}
	}

	switch {
	case geocode.ElevationM != nil:
		raw["elevation_m"] = *geocode.ElevationM
		provenance["elevation_m"] = FieldProvenance{Source: "geocode", Provider: geocode.Provider, Confidence: geocode.Confidence, RetrievedAt: retrieved, Method: "stub"}
	case parcel.ElevationM != nil:
		raw["elevation_m"] = *parcel.ElevationM
		provenance["elevation_m"] = FieldProvenance{Source: "parcel", Provider: parcel.Provider, Confidence: parcel.Confidence, RetrievedAt: retrieved, Method: "stub"}
	default:
		provenance["elevation_m"] = FieldProvenance{RetrievedAt: retrieved, Method: "missing"}
	}

	switch {
	case characteristics.VegetationProximityM != nil:
		raw["vegetation_proximity_m"] = *characteristics.VegetationProximityM
		provenance["vegetation_proximity_m"] = FieldProvenance{Source: "characteristics", Provider: characteristics.Provider, Confidence: characteristics.FieldConfidence["vegetation_proximity_m"], RetrievedAt: retrieved, Method: "stub"}
	case parcel.VegetationProximityM != nil:
		raw["vegetation_proximity_m"] = *parcel.VegetationProximityM
		provenance["vegetation_proximity_m"] = FieldProvenance{Source: "parcel", Provider: parcel.Provider, Confidence: parcel.Confidence, RetrievedAt: retrieved, Method: "stub"}
	default:
		provenance["vegetation_proximity_m"] = FieldProvenance{RetrievedAt: retrieved, Method: "missing"}
	}

	return structural.Normalize(raw), provenance
}

// Profile is the full enrichment output persisted as a PropertyProfile.
type Profile struct {
	AddressFingerprint  string
	StandardizedAddress map[string]any
	GeocodeJSON         map[string]any
	ParcelJSON          map[string]any
	CharacteristicsJSON map[string]any
	StructuralJSON      map[string]any
	ProvenanceJSON      map[string]any
	CodeVersion         string
}

// Run executes the geocoder -> parcel -> characteristics provider chain for
// one address and assembles the profile payload, per spec.md §4.6.
func Run(ctx context.Context, geocoder providers.Geocoder, parcel providers.ParcelProvider, characteristics providers.CharacteristicsProvider, address map[string]any, codeVersion string, now time.Time) (Profile, error) {
	normalized := NormalizeAddress(address)
	fingerprint, err := AddressFingerprint(normalized)
	if err != nil {
		return Profile{}, err
	}

	geocodeResult, geocodeErr := geocoder.ForwardGeocode(ctx, normalized)
	var parcelResult providers.ParcelResult
	if geocodeErr == nil {
		parcelResult, _ = parcel.ParcelLookup(ctx, geocodeResult.Lat, geocodeResult.Lon)
	}
	characteristicsResult, _ := characteristics.GetCharacteristics(ctx, fingerprint)

	structuralFields, fieldProvenance := MapToStructural(characteristicsResult, parcelResult, geocodeResult, now)

	return Profile{
		AddressFingerprint:  fingerprint,
		StandardizedAddress: normalized,
		GeocodeJSON:         toMap(geocodeResult),
		ParcelJSON:          toMap(parcelResult),
		CharacteristicsJSON: toMap(characteristicsResult),
		StructuralJSON:      structuralFields.ToMap(),
		ProvenanceJSON: map[string]any{
			"retrieved_at": now.UTC().Format(time.RFC3339),
			"providers": map[string]string{
				"geocoder":        geocodeResult.Provider,
				"parcel":          parcelResult.Provider,
				"characteristics": characteristicsResult.Provider,
			},
			"field_provenance": fieldProvenance,
		},
		CodeVersion: codeVersion,
	}, nil
}

func toMap(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{}
	}
	return m
}

// IsFresh reports whether a profile last updated at updatedAt is still
// usable under prefer_cached, per spec.md §4.6's 30-day freshness window.
func IsFresh(updatedAt *time.Time, now time.Time, days int) bool {
	if updatedAt == nil {
		return false
	}
	return !updatedAt.Before(now.AddDate(0, 0, -days))
}

// Mode decides sync-vs-async execution, per spec.md §4.6.
func Mode(requested string, providersAreStub bool) string {
	switch requested {
	case "sync":
		return "sync"
	case "async":
		return "async"
	default:
		if providersAreStub {
			return "sync"
		}
		return "async"
	}
}
