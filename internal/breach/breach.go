// Package breach implements the threshold/breach evaluator (C13):
// evaluates active ThresholdRules against RollupResultItems and reconciles
// the open breach set, grounded on app/services/breaches.py.
package breach

import (
	"time"

	"github.com/meridianrisk/exposure-engine/internal/domain"
)

// compare applies a rule's operator against actual/threshold values.
func compare(actual float64, operator string, threshold float64) bool {
	switch operator {
	case "==":
		return actual == threshold
	case "!=":
		return actual != threshold
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	default:
		return false
	}
}

// matchesWhere reports whether rollupKey contains every key/value pair in
// where (exact match, not membership — §4.10's "⊇ where").
func matchesWhere(rollupKey map[string]any, where map[string]any) bool {
	for k, v := range where {
		actual, ok := rollupKey[k]
		if !ok || actual != v {
			return false
		}
	}
	return true
}

// Match is one RollupResultItem that tripped a rule.
type Match struct {
	Item           *domain.RollupResultItem
	MetricValue    float64
	ThresholdValue float64
}

// EvaluateRule finds every item satisfying rule's where-clause and operator
// test, skipping items whose metric value is missing or non-numeric.
func EvaluateRule(rule *domain.ThresholdRule, items []*domain.RollupResultItem) []Match {
	var matches []Match
	for _, item := range items {
		if !matchesWhere(item.RollupKeyJSON, rule.Where) {
			continue
		}
		value, ok := item.MetricsJSON[rule.Metric]
		if !ok {
			continue
		}
		if compare(value, rule.Operator, rule.Value) {
			matches = append(matches, Match{Item: item, MetricValue: value, ThresholdValue: rule.Value})
		}
	}
	return matches
}

// Reconcile applies one rule's current match set against its existing
// breaches: matched rollup keys are opened/refreshed, previously
// open/acked breaches no longer matching are resolved. now is injected so
// callers (and tests) control the timestamp.
func Reconcile(rule *domain.ThresholdRule, matches []Match, existing []*domain.Breach, now time.Time) []*domain.Breach {
	existingByKey := make(map[string]*domain.Breach, len(existing))
	for _, b := range existing {
		existingByKey[b.RollupKeyHash] = b
	}
	matchedKeys := make(map[string]bool, len(matches))

	var upserts []*domain.Breach
	for _, m := range matches {
		key := m.Item.RollupKeyHash
		matchedKeys[key] = true
		existingBreach, ok := existingByKey[key]
		if !ok {
			upserts = append(upserts, &domain.Breach{
				TenantID:          rule.TenantID,
				RuleID:            rule.ID,
				RollupKeyHash:     key,
				RollupKeyJSON:     m.Item.RollupKeyJSON,
				Status:            domain.BreachOpen,
				MetricValue:       m.MetricValue,
				ThresholdValue:    m.ThresholdValue,
				FirstSeenAt:       now,
				LastSeenAt:        now,
			})
			continue
		}

		updated := *existingBreach
		updated.MetricValue = m.MetricValue
		updated.ThresholdValue = m.ThresholdValue
		updated.LastSeenAt = now
		if updated.Status == domain.BreachResolved {
			updated.Status = domain.BreachOpen
			updated.ResolvedAt = nil
			updated.FirstSeenAt = now
		}
		upserts = append(upserts, &updated)
	}

	for key, b := range existingByKey {
		if matchedKeys[key] {
			continue
		}
		if b.Status == domain.BreachOpen || b.Status == domain.BreachAcked {
			resolved := *b
			resolved.Status = domain.BreachResolved
			resolvedAt := now
			resolved.ResolvedAt = &resolvedAt
			upserts = append(upserts, &resolved)
		}
	}

	return upserts
}

// Summary tallies one evaluation run's outcomes.
type Summary struct {
	RulesEvaluated int `json:"rules_evaluated"`
	BreachesOpen   int `json:"breaches_open"`
	BreachesResolved int `json:"breaches_resolved"`
}
