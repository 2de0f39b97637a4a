package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubGeocoder_Deterministic(t *testing.T) {
	addr := map[string]any{"address_line1": "1 Main St", "city": "Austin", "postal_code": "78701"}
	a, err := StubGeocoder{}.ForwardGeocode(context.Background(), addr)
	require.NoError(t, err)
	b, err := StubGeocoder{}.ForwardGeocode(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, a.Lat, b.Lat)
	assert.Equal(t, a.Lon, b.Lon)
}

func TestStubCharacteristicsProvider_ValidRoofMaterial(t *testing.T) {
	result, err := StubCharacteristicsProvider{}.GetCharacteristics(context.Background(), "fingerprint-1")
	require.NoError(t, err)
	assert.Contains(t, stubRoofMaterials, result.RoofMaterial)
}

func TestMemoryResponseCache_RoundTrip(t *testing.T) {
	cache := NewMemoryResponseCache()
	ctx := context.Background()
	err := cache.Set(ctx, "k", map[string]string{"a": "b"}, 0)
	require.NoError(t, err)

	var out map[string]string
	found, err := cache.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "b", out["a"])
}

func TestMemoryResponseCache_Miss(t *testing.T) {
	cache := NewMemoryResponseCache()
	var out map[string]string
	found, err := cache.Get(context.Background(), "missing", &out)
	require.NoError(t, err)
	assert.False(t, found)
}
