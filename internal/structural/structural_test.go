package structural

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_DropsUnknownAndInvalid(t *testing.T) {
	raw := map[string]any{
		"roof_material": "metal",
		"elevation_m":   12.5,
		"unknown_key":   "x",
		"vegetation_proximity_m": "not-a-number",
	}
	f := Normalize(raw)
	require.NotNil(t, f.RoofMaterial)
	assert.Equal(t, "metal", *f.RoofMaterial)
	require.NotNil(t, f.ElevationM)
	assert.Equal(t, 12.5, *f.ElevationM)
	assert.Nil(t, f.VegetationProximityM)
}

func TestMerge_OverrideWinsPerField(t *testing.T) {
	base := map[string]any{"roof_material": "tile", "elevation_m": 3.0}
	override := map[string]any{"elevation_m": 9.0}
	merged := Merge(base, override)
	require.NotNil(t, merged.RoofMaterial)
	assert.Equal(t, "tile", *merged.RoofMaterial)
	require.NotNil(t, merged.ElevationM)
	assert.Equal(t, 9.0, *merged.ElevationM)
}

func TestToMap_OnlyPresentKeys(t *testing.T) {
	f := Normalize(map[string]any{"roof_material": "metal"})
	m := f.ToMap()
	assert.Equal(t, "metal", m["roof_material"])
	_, hasElevation := m["elevation_m"]
	assert.False(t, hasElevation)
}
