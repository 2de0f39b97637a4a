package commit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildLocation_Defaults(t *testing.T) {
	row := MappedRow{
		"external_location_id": "L2",
		"latitude":              "30.1",
		"longitude":             "-97.8",
		"state_region":          "tx",
		"postal_code":           "787 01",
		"country":               "us",
		"tiv":                   "50000",
	}
	loc := BuildLocation(row, "ev1", "t1", "USD")
	require.NotNil(t, loc.Latitude)
	assert.Equal(t, 30.1, *loc.Latitude)
	require.NotNil(t, loc.Longitude)
	assert.Equal(t, -97.8, *loc.Longitude)
	assert.Equal(t, "TX", loc.StateRegion)
	assert.Equal(t, "78701", loc.PostalCode)
	assert.Equal(t, "US", loc.Country)
	assert.Equal(t, "USD", loc.Currency)
	require.NotNil(t, loc.TIV)
	assert.Equal(t, 50000.0, *loc.TIV)
}

func TestCanonicalizeRows_SortedByExternalID(t *testing.T) {
	rows := []MappedRow{
		{"external_location_id": "B"},
		{"external_location_id": "A"},
		{"external_location_id": "C"},
	}
	locations := CanonicalizeRows(rows, "ev1", "t1", "USD")
	require.Len(t, locations, 3)
	assert.Equal(t, "A", locations[0].ExternalLocationID)
	assert.Equal(t, "B", locations[1].ExternalLocationID)
	assert.Equal(t, "C", locations[2].ExternalLocationID)
}

func TestTIVSum_SkipsNil(t *testing.T) {
	rows := []MappedRow{
		{"external_location_id": "A", "tiv": "100"},
		{"external_location_id": "B"},
	}
	locations := CanonicalizeRows(rows, "ev1", "t1", "USD")
	assert.Equal(t, 100.0, TIVSum(locations))
}
