package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianrisk/exposure-engine/internal/domain"
)

func fp(v float64) *float64 { return &v }

func TestMergeWorstInPeril_HighestScoreWins(t *testing.T) {
	hazards := map[string]HazardEntry{}
	hazards = MergeWorstInPeril(hazards, HazardEntry{Peril: "flood", Score: fp(0.3), tieBreakerID: 1})
	hazards = MergeWorstInPeril(hazards, HazardEntry{Peril: "flood", Score: fp(0.8), tieBreakerID: 2})
	require.Contains(t, hazards, "flood")
	assert.Equal(t, 0.8, *hazards["flood"].Score)
}

func TestMergeWorstInPeril_NumericBeatsNull(t *testing.T) {
	hazards := map[string]HazardEntry{}
	hazards = MergeWorstInPeril(hazards, HazardEntry{Peril: "wildfire", Score: nil, tieBreakerID: 1})
	hazards = MergeWorstInPeril(hazards, HazardEntry{Peril: "wildfire", Score: fp(0.4), tieBreakerID: 2})
	require.NotNil(t, hazards["wildfire"].Score)
	assert.Equal(t, 0.4, *hazards["wildfire"].Score)
}

func TestMergeWorstInPeril_TieBrokenBySmallestID(t *testing.T) {
	hazards := map[string]HazardEntry{}
	hazards = MergeWorstInPeril(hazards, HazardEntry{Peril: "wind", Score: fp(0.5), tieBreakerID: 5})
	hazards = MergeWorstInPeril(hazards, HazardEntry{Peril: "wind", Score: fp(0.5), tieBreakerID: 2})
	assert.Equal(t, int64(2), hazards["wind"].tieBreakerID)
}

func TestExtractEntry_FallsBackToDatasetPeril(t *testing.T) {
	feature := &domain.HazardFeaturePolygon{ID: 1, RawProperties: map[string]any{}}
	entry := ExtractEntry(feature, "flood", "FEMA", "v1")
	assert.Equal(t, "flood", entry.Peril)
	assert.Equal(t, "FEMA:v1", entry.Source)
}

func TestRepresentative_PicksHighestAcrossPerils(t *testing.T) {
	hazards := map[string]HazardEntry{
		"flood":    {Peril: "flood", Score: fp(0.2)},
		"wildfire": {Peril: "wildfire", Score: fp(0.9)},
	}
	rep, ok := Representative(hazards)
	require.True(t, ok)
	assert.Equal(t, "wildfire", rep.Peril)
}
