package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRow_MissingRequiredFields(t *testing.T) {
	issues := ValidateRow(1, map[string]string{})

	codes := make(map[string]bool)
	for _, iss := range issues {
		codes[iss.Code] = true
	}
	assert.True(t, codes[CodeMissingExternalID])
	assert.True(t, codes[CodeMissingLocation])
	assert.True(t, codes[CodeMissingTIV])
	assert.True(t, codes[CodeMissingSegmentation])
	assert.True(t, codes[CodeMissingCurrency])
}

func TestValidateRow_AddressSatisfiesLocation(t *testing.T) {
	row := map[string]string{
		"external_location_id": "L1",
		"address_line1":         "1 Main St",
		"city":                  "Austin",
		"state_region":          "TX",
		"postal_code":           "78701",
		"country":               "US",
		"tiv":                   "100000",
		"lob":                   "COMMERCIAL",
		"currency":              "USD",
	}
	issues := ValidateRow(1, row)
	assert.Empty(t, issues)
}

func TestValidateRow_NegativeAndInvalidTIV(t *testing.T) {
	row := map[string]string{"tiv": "-5"}
	issues := ValidateRow(1, row)
	var found bool
	for _, iss := range issues {
		if iss.Code == CodeNegativeTIV {
			found = true
		}
	}
	assert.True(t, found)

	row2 := map[string]string{"tiv": "not-a-number"}
	issues2 := ValidateRow(1, row2)
	found = false
	for _, iss := range issues2 {
		if iss.Code == CodeInvalidTIV {
			found = true
		}
	}
	assert.True(t, found)
}

func TestApplyMapping(t *testing.T) {
	row := map[string]string{"eid": "L1", "x": "y"}
	mapped := ApplyMapping(row, map[string]string{"eid": "external_location_id"})
	assert.Equal(t, "L1", mapped["external_location_id"])
	assert.Equal(t, "y", mapped["x"])
}

func TestValidate_OrderingAndDeterminism(t *testing.T) {
	rows := []map[string]string{
		{},
		{"external_location_id": "L1", "lat": "1", "lon": "2", "tiv": "100", "lob": "COM", "currency": "USD"},
	}
	result, err := Validate(rows, nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.Issues)

	for i := 1; i < len(result.Issues); i++ {
		a, b := result.Issues[i-1], result.Issues[i]
		if a.RowNumber != b.RowNumber {
			assert.Less(t, a.RowNumber, b.RowNumber)
			continue
		}
		if severityRank[a.Severity] != severityRank[b.Severity] {
			assert.Less(t, severityRank[a.Severity], severityRank[b.Severity])
		}
	}

	result2, err := Validate(rows, nil)
	require.NoError(t, err)
	assert.Equal(t, result.Checksum, result2.Checksum)
	assert.Equal(t, 2, result.Summary.TotalRows)
}
