package underwriting

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/meridianrisk/exposure-engine/internal/canon"
	"github.com/meridianrisk/exposure-engine/internal/domain"
)

// Predicate is one clause of a custom rule's "when" block.
type Predicate struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

// PredicateResult records what a predicate observed and whether it matched,
// returned alongside the rule's verdict for audit/explanation purposes.
type PredicateResult struct {
	Field    string `json:"field"`
	Op       string `json:"op"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
	Matched  bool   `json:"matched"`
}

// Rule is a custom underwriting rule: an "all" or "any" list of predicates
// evaluated against a location or rollup record.
type Rule struct {
	All []Predicate
	Any []Predicate
}

// Explanation is the full trace of a rule evaluation.
type Explanation struct {
	Logic      string            `json:"logic"`
	Predicates []PredicateResult `json:"predicates"`
	Observed   map[string]any    `json:"observed"`
}

func asList(v any) []any {
	if v == nil {
		return nil
	}
	if list, ok := v.([]any); ok {
		return list
	}
	return []any{v}
}

func sortedUnique(values []any) []any {
	seen := make(map[string]any)
	for _, v := range values {
		if v == nil {
			continue
		}
		seen[fmt.Sprint(v)] = v
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = seen[k]
	}
	return out
}

func getFieldValue(record map[string]any, field string) any {
	if !strings.Contains(field, ".") {
		return record[field]
	}
	var current any = record
	for _, part := range strings.Split(field, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

func coerceFloatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func compareScalar(actual any, op string, expected any) bool {
	switch op {
	case "==":
		return actual == expected
	case "!=":
		return actual != expected
	case "in", "not_in":
		contains := false
		for _, item := range asList(expected) {
			if item == actual {
				contains = true
				break
			}
		}
		if op == "in" {
			return contains
		}
		return !contains
	case ">", ">=", "<", "<=":
		a, aok := coerceFloatValue(actual)
		e, eok := coerceFloatValue(expected)
		if !aok || !eok {
			return false
		}
		switch op {
		case ">":
			return a > e
		case ">=":
			return a >= e
		case "<":
			return a < e
		case "<=":
			return a <= e
		}
	}
	return false
}

// EvaluatePredicate matches one predicate against a record, dotted-path
// fields included, with list-valued fields compared element-wise.
// Grounded on uw_rules.py's evaluate_predicate.
func EvaluatePredicate(p Predicate, record map[string]any) PredicateResult {
	actual := getFieldValue(record, p.Field)
	var matched bool

	switch {
	case p.Op == "exists":
		if list, ok := actual.([]any); ok {
			matched = len(list) > 0
		} else {
			matched = actual != nil && actual != ""
		}
	default:
		if list, ok := actual.([]any); ok {
			actualList := sortedUnique(list)
			expectedList := asList(p.Value)
			switch p.Op {
			case "in":
				for _, item := range actualList {
					if contains(expectedList, item) {
						matched = true
						break
					}
				}
			case "not_in":
				matched = true
				for _, item := range actualList {
					if contains(expectedList, item) {
						matched = false
						break
					}
				}
			case "==":
				if expectedAsList, ok := p.Value.([]any); ok {
					for _, item := range actualList {
						if contains(expectedAsList, item) {
							matched = true
							break
						}
					}
				} else {
					for _, item := range actualList {
						if item == p.Value {
							matched = true
							break
						}
					}
				}
			case "!=":
				matched = true
				if expectedAsList, ok := p.Value.([]any); ok {
					for _, item := range actualList {
						if contains(expectedAsList, item) {
							matched = false
							break
						}
					}
				} else {
					for _, item := range actualList {
						if item == p.Value {
							matched = false
							break
						}
					}
				}
			}
			actual = actualList
		} else {
			matched = compareScalar(actual, p.Op, p.Value)
		}
	}

	return PredicateResult{Field: p.Field, Op: p.Op, Expected: p.Value, Actual: actual, Matched: matched}
}

func contains(list []any, v any) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// EvaluateRule runs a rule's predicate list under its "all"/"any" logic
// against one record. Grounded on uw_rules.py's evaluate_rule.
func EvaluateRule(rule Rule, record map[string]any) (bool, Explanation) {
	logic := "none"
	var clauses []Predicate
	switch {
	case len(rule.All) > 0:
		logic = "all"
		clauses = rule.All
	case len(rule.Any) > 0:
		logic = "any"
		clauses = rule.Any
	}

	results := make([]PredicateResult, 0, len(clauses))
	for _, p := range clauses {
		results = append(results, EvaluatePredicate(p, record))
	}

	var matched bool
	switch logic {
	case "all":
		matched = len(results) > 0
		for _, r := range results {
			if !r.Matched {
				matched = false
				break
			}
		}
	case "any":
		for _, r := range results {
			if r.Matched {
				matched = true
				break
			}
		}
	}

	observed := make(map[string]any)
	for _, r := range results {
		if r.Field == "" {
			continue
		}
		if _, ok := observed[r.Field]; ok {
			continue
		}
		observed[r.Field] = r.Actual
	}

	return matched, Explanation{Logic: logic, Predicates: results, Observed: observed}
}

// BuildLocationRecord returns the flattened view of a location used as a rule's
// evaluation context, joined with its worst hazard bands/categories.
func BuildLocationRecord(loc *domain.Location, hazardEntries []map[string]any) map[string]any {
	var bands, categories []any
	for _, entry := range hazardEntries {
		if b, ok := entry["band"]; ok {
			bands = append(bands, b)
		}
		if c, ok := entry["hazard_category"]; ok {
			categories = append(categories, c)
		}
	}
	return map[string]any{
		"location_id":          loc.ID,
		"external_location_id": loc.ExternalLocationID,
		"tiv":                  loc.TIV,
		"country":              loc.Country,
		"state_region":         loc.StateRegion,
		"postal_code":          loc.PostalCode,
		"lob":                  loc.LOB,
		"product_code":         loc.ProductCode,
		"currency":             loc.Currency,
		"quality_tier":         string(loc.QualityTier),
		"geocode_confidence":   loc.GeocodeConfidence,
		"hazard_band":          sortedUnique(bands),
		"hazard_category":      sortedUnique(categories),
	}
}

// BuildRollupRecord wraps a rollup result row's key and metrics into a
// single record for rule evaluation, namespacing the metrics under
// "rollup.metrics" so dotted-path field lookups can reach them.
func BuildRollupRecord(rollupKeyJSON map[string]any, metricsJSON map[string]float64) map[string]any {
	record := make(map[string]any, len(rollupKeyJSON)+1)
	for k, v := range rollupKeyJSON {
		record[k] = v
	}
	metrics := make(map[string]any, len(metricsJSON))
	for k, v := range metricsJSON {
		metrics[k] = v
	}
	record["rollup"] = map[string]any{"metrics": metrics}
	return record
}

// CanonicalJSON renders a value as compact, key-sorted JSON text, matching
// uw_rules.py's canonical_json helper used for rule-match dedup keys.
func CanonicalJSON(v any) (string, error) {
	b, err := canon.JSON(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
