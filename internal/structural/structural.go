// Package structural normalizes and merges the small set of structural
// fields (roof_material, elevation_m, vegetation_proximity_m) consumed by
// both property enrichment (C9) and resilience scoring (C11), grounded on
// app/services/structural.py.
package structural

// Fields is the canonical structural-data shape. Only these three keys ever
// survive normalization; anything else observed upstream is dropped.
type Fields struct {
	RoofMaterial          *string  `json:"roof_material,omitempty"`
	ElevationM            *float64 `json:"elevation_m,omitempty"`
	VegetationProximityM  *float64 `json:"vegetation_proximity_m,omitempty"`
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Normalize keeps only roof_material/elevation_m/vegetation_proximity_m
// from an arbitrary raw map, validating and coercing each to its expected
// type; anything unparseable is dropped rather than erroring.
func Normalize(raw map[string]any) Fields {
	var out Fields
	if raw == nil {
		return out
	}
	if v, ok := asString(raw["roof_material"]); ok {
		out.RoofMaterial = &v
	}
	if v, ok := asFloat(raw["elevation_m"]); ok {
		out.ElevationM = &v
	}
	if v, ok := asFloat(raw["vegetation_proximity_m"]); ok {
		out.VegetationProximityM = &v
	}
	return out
}

// Merge overlays override on top of base, field by field, after
// independently normalizing each input: an override's present field always
// wins, a missing override field falls back to base.
func Merge(base, override map[string]any) Fields {
	b := Normalize(base)
	o := Normalize(override)
	merged := b
	if o.RoofMaterial != nil {
		merged.RoofMaterial = o.RoofMaterial
	}
	if o.ElevationM != nil {
		merged.ElevationM = o.ElevationM
	}
	if o.VegetationProximityM != nil {
		merged.VegetationProximityM = o.VegetationProximityM
	}
	return merged
}

// ToMap renders Fields back to a map[string]any with only the present keys,
// the shape persisted as Location.StructuralJSON / PropertyProfile.StructuralJSON.
func (f Fields) ToMap() map[string]any {
	out := make(map[string]any)
	if f.RoofMaterial != nil {
		out["roof_material"] = *f.RoofMaterial
	}
	if f.ElevationM != nil {
		out["elevation_m"] = *f.ElevationM
	}
	if f.VegetationProximityM != nil {
		out["vegetation_proximity_m"] = *f.VegetationProximityM
	}
	return out
}
