package rollup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianrisk/exposure-engine/internal/domain"
)

func TestAggregate_GroupsAndSums(t *testing.T) {
	records := []Record{
		{"lob": "COMMERCIAL", "tiv": 100.0},
		{"lob": "COMMERCIAL", "tiv": 200.0},
		{"lob": "RESIDENTIAL", "tiv": 50.0},
	}
	measures := []domain.Measure{
		{Name: "count", Op: "count"},
		{Name: "tiv_sum", Op: "sum", Field: "tiv"},
	}
	result, err := Aggregate(records, []string{"lob"}, nil, measures)
	require.NoError(t, err)
	require.Len(t, result.Items, 2)

	byLob := map[string]Item{}
	for _, it := range result.Items {
		byLob[it.RollupKeyJSON["lob"].(string)] = it
	}
	assert.Equal(t, 2.0, byLob["COMMERCIAL"].MetricsJSON["count"])
	assert.Equal(t, 300.0, byLob["COMMERCIAL"].MetricsJSON["tiv_sum"])
	assert.Equal(t, 1.0, byLob["RESIDENTIAL"].MetricsJSON["count"])
}

func TestAggregate_FilterMembership(t *testing.T) {
	records := []Record{
		{"lob": "COMMERCIAL"},
		{"lob": "RESIDENTIAL"},
		{"lob": "AUTO"},
	}
	measures := []domain.Measure{{Name: "count", Op: "count"}}
	result, err := Aggregate(records, []string{"lob"}, map[string]any{"lob": []any{"COMMERCIAL", "AUTO"}}, measures)
	require.NoError(t, err)
	assert.Len(t, result.Items, 2)
}

func TestAggregate_DeterministicChecksumAcrossPermutation(t *testing.T) {
	a := []Record{{"lob": "A", "tiv": 1.0}, {"lob": "B", "tiv": 2.0}}
	b := []Record{{"lob": "B", "tiv": 2.0}, {"lob": "A", "tiv": 1.0}}
	measures := []domain.Measure{{Name: "tiv_sum", Op: "sum", Field: "tiv"}}

	ra, err := Aggregate(a, []string{"lob"}, nil, measures)
	require.NoError(t, err)
	rb, err := Aggregate(b, []string{"lob"}, nil, measures)
	require.NoError(t, err)
	assert.Equal(t, ra.Checksum, rb.Checksum)
}

func TestScoreBucket_Bands(t *testing.T) {
	assert.Equal(t, "0_19", ScoreBucket(0))
	assert.Equal(t, "0_19", ScoreBucket(19))
	assert.Equal(t, "20_39", ScoreBucket(20))
	assert.Equal(t, "40_59", ScoreBucket(59))
	assert.Equal(t, "60_79", ScoreBucket(79))
	assert.Equal(t, "80_100", ScoreBucket(80))
	assert.Equal(t, "80_100", ScoreBucket(100))
}
