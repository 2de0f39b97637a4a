// Package rollup implements the group-by aggregation engine (C12):
// dimension-tuple grouping with sum/count measures over filtered records,
// emitted in a deterministic, canonically hashed order. Grounded on
// app/services/rollup.py.
package rollup

import (
	"sort"

	"github.com/meridianrisk/exposure-engine/internal/canon"
	"github.com/meridianrisk/exposure-engine/internal/domain"
)

// Record is one input row to the rollup — typically a Location merged with
// its representative LocationHazardAttribute for hazard_band/hazard_category.
type Record = map[string]any

func asList(v any) []any {
	switch val := v.(type) {
	case []any:
		return val
	case nil:
		return nil
	default:
		return []any{val}
	}
}

func matchesFilter(record Record, key string, want any) bool {
	actual, ok := record[key]
	if !ok {
		return false
	}
	switch w := want.(type) {
	case []any:
		for _, item := range w {
			if item == actual {
				return true
			}
		}
		return false
	default:
		return actual == w
	}
}

// Filter drops records that don't satisfy every filter clause. List-valued
// filter values are membership tests; scalar values are equality tests.
func Filter(records []Record, filters map[string]any) []Record {
	if len(filters) == 0 {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		match := true
		for key, want := range filters {
			if !matchesFilter(r, key, want) {
				match = false
				break
			}
		}
		if match {
			out = append(out, r)
		}
	}
	return out
}

func groupKey(record Record, dimensions []string) map[string]any {
	key := make(map[string]any, len(dimensions))
	for _, dim := range dimensions {
		key[dim] = record[dim]
	}
	return key
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Item is one emitted rollup row: the dimension-value tuple plus its
// computed measures.
type Item struct {
	RollupKeyJSON map[string]any     `json:"rollup_key_json"`
	RollupKeyHash string             `json:"-"`
	MetricsJSON   map[string]float64 `json:"metrics_json"`
}

// Result is the full rollup artifact.
type Result struct {
	Items    []Item `json:"items"`
	Checksum string `json:"-"`
}

// Aggregate runs the full filter -> group -> measure algorithm of spec.md
// §4.9 over records, returning items sorted by canonical JSON of
// rollup_key_json and a byte-stable checksum over the full item list.
func Aggregate(records []Record, dimensions []string, filters map[string]any, measures []domain.Measure) (*Result, error) {
	filtered := Filter(records, filters)

	type group struct {
		key     map[string]any
		metrics map[string]float64
	}
	groups := make(map[string]*group)
	var order []string

	for _, r := range filtered {
		key := groupKey(r, dimensions)
		digest, _, err := canon.Hash(key)
		if err != nil {
			return nil, err
		}
		g, ok := groups[digest]
		if !ok {
			g = &group{key: key, metrics: make(map[string]float64)}
			groups[digest] = g
			order = append(order, digest)
		}
		for _, m := range measures {
			switch m.Op {
			case "count":
				g.metrics[m.Name]++
			case "sum":
				v, ok := toFloat(r[m.Field])
				if !ok {
					v = 0
				}
				g.metrics[m.Name] += v
			}
		}
	}

	items := make([]Item, 0, len(order))
	for _, digest := range order {
		g := groups[digest]
		items = append(items, Item{RollupKeyJSON: g.key, RollupKeyHash: digest, MetricsJSON: g.metrics})
	}

	sort.Slice(items, func(i, j int) bool {
		ci, err := canon.JSON(items[i].RollupKeyJSON)
		if err != nil {
			return false
		}
		cj, err := canon.JSON(items[j].RollupKeyJSON)
		if err != nil {
			return false
		}
		return string(ci) < string(cj)
	})

	type checksumRow struct {
		RollupKeyJSON map[string]any     `json:"rollup_key_json"`
		MetricsJSON   map[string]float64 `json:"metrics_json"`
	}
	rows := make([]checksumRow, 0, len(items))
	for _, it := range items {
		rows = append(rows, checksumRow{RollupKeyJSON: it.RollupKeyJSON, MetricsJSON: it.MetricsJSON})
	}
	digest, _, err := canon.Hash(rows)
	if err != nil {
		return nil, err
	}

	return &Result{Items: items, Checksum: digest}, nil
}
