// Package validation implements the upload validation engine (C7):
// applies an optional mapping template to raw rows, checks each row against
// the required-field rules of spec.md §4.4, and produces a deterministically
// ordered, canonically serialized issue report.
package validation

import (
	"sort"
	"strconv"
	"strings"

	"github.com/meridianrisk/exposure-engine/internal/canon"
)

type Severity string

const (
	SeverityError Severity = "ERROR"
	SeverityWarn  Severity = "WARN"
	SeverityInfo  Severity = "INFO"
)

var severityRank = map[Severity]int{
	SeverityError: 0,
	SeverityWarn:  1,
	SeverityInfo:  2,
}

const (
	CodeMissingExternalID    = "MISSING_EXTERNAL_ID"
	CodeMissingLocation      = "MISSING_LOCATION"
	CodeMissingTIV           = "MISSING_TIV"
	CodeInvalidTIV           = "INVALID_TIV"
	CodeNegativeTIV          = "NEGATIVE_TIV"
	CodeMissingSegmentation  = "MISSING_SEGMENTATION"
	CodeMissingCurrency      = "MISSING_CURRENCY_DEFAULTED"
	CodeInvalidLimit         = "INVALID_LIMIT"
	CodeNegativeLimit        = "NEGATIVE_LIMIT"
	CodeInvalidPremium       = "INVALID_PREMIUM"
	CodeNegativePremium      = "NEGATIVE_PREMIUM"
)

// Issue is one row-level finding.
type Issue struct {
	RowNumber int      `json:"row_number"`
	Severity  Severity `json:"severity"`
	Field     string   `json:"field"`
	Code      string   `json:"code"`
	Message   string   `json:"message"`
}

// Summary tallies issues by severity plus the row count validated.
type Summary struct {
	Error     int `json:"ERROR"`
	Warn      int `json:"WARN"`
	Info      int `json:"INFO"`
	TotalRows int `json:"total_rows"`
}

// Result is the full validation artifact: the issue list (persisted as the
// row_errors_uri object) plus its summary and canonical-JSON checksum.
type Result struct {
	Issues   []Issue `json:"issues"`
	Summary  Summary `json:"summary"`
	Checksum string  `json:"-"`
	Artifact []byte  `json:"-"`
}

// ApplyMapping renames src keys to dst keys per template (src -> dst);
// unmapped keys pass through unchanged. A nil template is a no-op.
func ApplyMapping(row map[string]string, template map[string]string) map[string]string {
	if len(template) == 0 {
		return row
	}
	mapped := make(map[string]string, len(row))
	for k, v := range row {
		dst, ok := template[k]
		if !ok {
			dst = k
		}
		mapped[dst] = v
	}
	return mapped
}

func field(row map[string]string, key string) string {
	return strings.TrimSpace(row[key])
}

func hasLatLon(row map[string]string) bool {
	return field(row, "lat") != "" && field(row, "lon") != ""
}

func hasAddress(row map[string]string) bool {
	return field(row, "address_line1") != "" && field(row, "city") != "" &&
		field(row, "state_region") != "" && field(row, "postal_code") != "" &&
		field(row, "country") != ""
}

func parseNumeric(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ValidateRow checks one mapped row and returns its issues, in no particular
// order (the caller sorts the full batch).
func ValidateRow(rowNumber int, row map[string]string) []Issue {
	var issues []Issue
	add := func(sev Severity, f, code, msg string) {
		issues = append(issues, Issue{RowNumber: rowNumber, Severity: sev, Field: f, Code: code, Message: msg})
	}

	if field(row, "external_location_id") == "" {
		add(SeverityError, "external_location_id", CodeMissingExternalID, "external_location_id is required")
	}

	if !hasLatLon(row) && !hasAddress(row) {
		add(SeverityError, "location", CodeMissingLocation, "row has neither lat/lon nor a complete address")
	}

	tivRaw := field(row, "tiv")
	switch {
	case tivRaw == "":
		add(SeverityError, "tiv", CodeMissingTIV, "tiv is required")
	default:
		if v, ok := parseNumeric(tivRaw); !ok {
			add(SeverityError, "tiv", CodeInvalidTIV, "tiv is not numeric")
		} else if v < 0 {
			add(SeverityError, "tiv", CodeNegativeTIV, "tiv must not be negative")
		}
	}

	if field(row, "lob") == "" && field(row, "product_code") == "" {
		add(SeverityError, "lob", CodeMissingSegmentation, "either lob or product_code is required")
	}

	if field(row, "currency") == "" {
		add(SeverityWarn, "currency", CodeMissingCurrency, "currency defaulted from tenant default")
	}

	if limitRaw := field(row, "limit"); limitRaw != "" {
		if v, ok := parseNumeric(limitRaw); !ok {
			add(SeverityWarn, "limit", CodeInvalidLimit, "limit is not numeric")
		} else if v < 0 {
			add(SeverityWarn, "limit", CodeNegativeLimit, "limit must not be negative")
		}
	}

	if premiumRaw := field(row, "premium"); premiumRaw != "" {
		if v, ok := parseNumeric(premiumRaw); !ok {
			add(SeverityWarn, "premium", CodeInvalidPremium, "premium is not numeric")
		} else if v < 0 {
			add(SeverityWarn, "premium", CodeNegativePremium, "premium must not be negative")
		}
	}

	return issues
}

// Validate runs ValidateRow over every row (after applying template),
// sorts the combined issue list per the ordering contract in spec.md §4.4,
// and computes the canonical artifact and checksum.
func Validate(rows []map[string]string, template map[string]string) (*Result, error) {
	var issues []Issue
	for i, row := range rows {
		mapped := ApplyMapping(row, template)
		issues = append(issues, ValidateRow(i+1, mapped)...)
	}

	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.RowNumber != b.RowNumber {
			return a.RowNumber < b.RowNumber
		}
		if severityRank[a.Severity] != severityRank[b.Severity] {
			return severityRank[a.Severity] < severityRank[b.Severity]
		}
		if a.Field != b.Field {
			return a.Field < b.Field
		}
		return a.Code < b.Code
	})

	summary := Summary{TotalRows: len(rows)}
	for _, iss := range issues {
		switch iss.Severity {
		case SeverityError:
			summary.Error++
		case SeverityWarn:
			summary.Warn++
		case SeverityInfo:
			summary.Info++
		}
	}

	result := &Result{Issues: issues, Summary: summary}
	digest, artifact, err := canon.Hash(map[string]any{"issues": issues, "summary": summary})
	if err != nil {
		return nil, err
	}
	result.Checksum = digest
	result.Artifact = artifact
	return result, nil
}
