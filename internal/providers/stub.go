package providers

import (
	"context"
	"math"
)

// StubGeocoder is the deterministic "no external call" geocoder: it derives
// a stable synthetic lat/lon from the address hash rather than returning
// zeros, so downstream spatial overlay tests exercise a real point. It is
// the geocoder control.New uses when no provider option is given.
type StubGeocoder struct{}

func (StubGeocoder) ForwardGeocode(ctx context.Context, normalizedAddress map[string]any) (GeocodeResult, error) {
	seed := stringSeed(normalizedAddress)
	lat := 30.0 + math.Mod(float64(seed%1000), 10)
	lon := -97.0 - math.Mod(float64((seed/1000)%1000), 10)
	return GeocodeResult{
		Lat:        lat,
		Lon:        lon,
		Confidence: 0.5,
		Provider:   "stub",
		Raw:        map[string]any{"stub": true},
	}, nil
}

// StubParcelProvider returns fixed, deterministic parcel characteristics.
type StubParcelProvider struct{}

func (StubParcelProvider) ParcelLookup(ctx context.Context, lat, lon float64) (ParcelResult, error) {
	elevation := math.Mod(lat*37, 200)
	veg := math.Mod(lon*-11, 100)
	return ParcelResult{
		ElevationM:           &elevation,
		VegetationProximityM: &veg,
		Confidence:           0.5,
		Provider:             "stub",
		Raw:                  map[string]any{"stub": true},
	}, nil
}

// StubCharacteristicsProvider returns fixed roof-material characteristics
// keyed off the fingerprint, so the same address always yields the same
// stub result without a live provider.
type StubCharacteristicsProvider struct{}

var stubRoofMaterials = []string{"metal", "tile", "asphalt_shingle", "wood_shake"}

func (StubCharacteristicsProvider) GetCharacteristics(ctx context.Context, addressFingerprint string) (CharacteristicsResult, error) {
	idx := stringSeed(addressFingerprint) % uint64(len(stubRoofMaterials))
	return CharacteristicsResult{
		RoofMaterial:    stubRoofMaterials[idx],
		FieldConfidence: map[string]float64{"roof_material": 0.5},
		Provider:        "stub",
		Raw:             map[string]any{"stub": true},
	}, nil
}

func stringSeed(v any) uint64 {
	s, ok := v.(string)
	if !ok {
		s = mapSeedString(v)
	}
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

func mapSeedString(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	out := ""
	for _, k := range []string{"address_line1", "city", "postal_code"} {
		if s, ok := m[k].(string); ok {
			out += s
		}
	}
	return out
}
