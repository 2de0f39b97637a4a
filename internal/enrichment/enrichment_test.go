package enrichment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianrisk/exposure-engine/internal/providers"
)

func TestNormalizeAddress_TrimsAndUppercases(t *testing.T) {
	addr := map[string]any{
		"address_line1": " 1 Main St ",
		"state_region":  "tx",
		"postal_code":   "787 01",
		"country":       "us",
	}
	normalized := NormalizeAddress(addr)
	assert.Equal(t, "1 Main St", normalized["address_line1"])
	assert.Equal(t, "TX", normalized["state_region"])
	assert.Equal(t, "78701", normalized["postal_code"])
	assert.Equal(t, "US", normalized["country"])
}

func TestAddressFingerprint_Deterministic(t *testing.T) {
	addr := map[string]any{"city": "Austin"}
	a, err := AddressFingerprint(addr)
	require.NoError(t, err)
	b, err := AddressFingerprint(addr)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRun_FullPipeline(t *testing.T) {
	ctx := context.Background()
	profile, err := Run(ctx, providers.StubGeocoder{}, providers.StubParcelProvider{}, providers.StubCharacteristicsProvider{}, map[string]any{"address_line1": "1 Main St", "city": "Austin"}, "v1", time.Now())
	require.NoError(t, err)
	assert.NotEmpty(t, profile.AddressFingerprint)
	assert.NotEmpty(t, profile.StructuralJSON)
}

func TestIsFresh_Window(t *testing.T) {
	now := time.Now()
	fresh := now.AddDate(0, 0, -10)
	stale := now.AddDate(0, 0, -40)
	assert.True(t, IsFresh(&fresh, now, 30))
	assert.False(t, IsFresh(&stale, now, 30))
	assert.False(t, IsFresh(nil, now, 30))
}

func TestMode_Decision(t *testing.T) {
	assert.Equal(t, "sync", Mode("sync", false))
	assert.Equal(t, "async", Mode("async", true))
	assert.Equal(t, "sync", Mode("", true))
	assert.Equal(t, "async", Mode("", false))
}
