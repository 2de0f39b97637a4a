// Package providers abstracts the three external property-data lookups
// property enrichment depends on: geocoding, parcel lookup, and structural
// characteristics. Each interface returns a typed result plus the raw
// upstream payload, the provenance shape app/services/property_enrichment.py
// threads through every field it maps.
package providers

import "context"

// GeocodeResult is a forward-geocode response.
type GeocodeResult struct {
	Lat        float64
	Lon        float64
	ElevationM *float64
	Confidence float64
	Provider   string
	Raw        map[string]any
}

// Geocoder resolves a normalized address to coordinates.
type Geocoder interface {
	ForwardGeocode(ctx context.Context, normalizedAddress map[string]any) (GeocodeResult, error)
}

// ParcelResult is a parcel-by-coordinate lookup response.
type ParcelResult struct {
	ElevationM            *float64
	VegetationProximityM  *float64
	Confidence            float64
	Provider              string
	Raw                   map[string]any
}

// ParcelProvider resolves a lat/lon to parcel-level structural data.
type ParcelProvider interface {
	ParcelLookup(ctx context.Context, lat, lon float64) (ParcelResult, error)
}

// CharacteristicsResult is a characteristics-by-fingerprint lookup response.
type CharacteristicsResult struct {
	RoofMaterial          string
	VegetationProximityM  *float64
	FieldConfidence       map[string]float64
	Provider              string
	Raw                   map[string]any
}

// CharacteristicsProvider resolves an address fingerprint to structural
// property characteristics.
type CharacteristicsProvider interface {
	GetCharacteristics(ctx context.Context, addressFingerprint string) (CharacteristicsResult, error)
}
