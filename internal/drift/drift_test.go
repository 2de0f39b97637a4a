package drift

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianrisk/exposure-engine/internal/domain"
)

func f(v float64) *float64 { return &v }

func TestCompute_ClassifiesNewRemovedModified(t *testing.T) {
	a := []*domain.Location{
		{ExternalLocationID: "L1", TIV: f(100)},
		{ExternalLocationID: "L2", TIV: f(200)},
	}
	b := []*domain.Location{
		{ExternalLocationID: "L1", TIV: f(150)},
		{ExternalLocationID: "L3", TIV: f(300)},
	}
	result, err := Compute(a, b)
	require.NoError(t, err)

	byID := map[string]Detail{}
	for _, d := range result.Details {
		byID[d.ExternalLocationID] = d
	}
	assert.Equal(t, domain.DriftModified, byID["L1"].Classification)
	assert.Equal(t, domain.DriftRemoved, byID["L2"].Classification)
	assert.Equal(t, domain.DriftNew, byID["L3"].Classification)
	assert.Equal(t, 1, result.Summary.New)
	assert.Equal(t, 1, result.Summary.Removed)
	assert.Equal(t, 1, result.Summary.Modified)
}

func TestCompute_ModifiedIncludesNumericDelta(t *testing.T) {
	a := []*domain.Location{{ExternalLocationID: "L1", TIV: f(100)}}
	b := []*domain.Location{{ExternalLocationID: "L1", TIV: f(150)}}
	result, err := Compute(a, b)
	require.NoError(t, err)
	require.Len(t, result.Details, 1)
	change := result.Details[0].DeltaJSON["tiv"].(map[string]any)
	assert.Equal(t, 50.0, change["delta"])
}

func TestCompute_OrderingContract(t *testing.T) {
	a := []*domain.Location{{ExternalLocationID: "Z"}}
	b := []*domain.Location{{ExternalLocationID: "A"}, {ExternalLocationID: "B"}}
	result, err := Compute(a, b)
	require.NoError(t, err)
	// REMOVED(Z) sorts before NEW? no: order is NEW, REMOVED, MODIFIED
	assert.Equal(t, domain.DriftNew, result.Details[0].Classification)
	assert.Equal(t, "A", result.Details[0].ExternalLocationID)
	assert.Equal(t, domain.DriftNew, result.Details[1].Classification)
	assert.Equal(t, "B", result.Details[1].ExternalLocationID)
	assert.Equal(t, domain.DriftRemoved, result.Details[2].Classification)
}

func TestCompute_IdenticalLocationsProduceNoModified(t *testing.T) {
	a := []*domain.Location{{ExternalLocationID: "L1", TIV: f(100)}}
	b := []*domain.Location{{ExternalLocationID: "L1", TIV: f(100)}}
	result, err := Compute(a, b)
	require.NoError(t, err)
	assert.Empty(t, result.Details)
}
