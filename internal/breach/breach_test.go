package breach

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianrisk/exposure-engine/internal/domain"
)

func TestEvaluateRule_OperatorAndWhere(t *testing.T) {
	rule := &domain.ThresholdRule{
		Metric:   "tiv_sum",
		Operator: ">=",
		Value:    1000,
		Where:    map[string]any{"lob": "COMMERCIAL"},
	}
	items := []*domain.RollupResultItem{
		{RollupKeyHash: "a", RollupKeyJSON: map[string]any{"lob": "COMMERCIAL"}, MetricsJSON: map[string]float64{"tiv_sum": 1500}},
		{RollupKeyHash: "b", RollupKeyJSON: map[string]any{"lob": "COMMERCIAL"}, MetricsJSON: map[string]float64{"tiv_sum": 500}},
		{RollupKeyHash: "c", RollupKeyJSON: map[string]any{"lob": "RESIDENTIAL"}, MetricsJSON: map[string]float64{"tiv_sum": 5000}},
	}
	matches := EvaluateRule(rule, items)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].Item.RollupKeyHash)
}

func TestReconcile_NewMatchOpensBreach(t *testing.T) {
	rule := &domain.ThresholdRule{ID: "r1", TenantID: "t1"}
	now := time.Now()
	matches := []Match{{Item: &domain.RollupResultItem{RollupKeyHash: "a"}, MetricValue: 10, ThresholdValue: 5}}
	breaches := Reconcile(rule, matches, nil, now)
	require.Len(t, breaches, 1)
	assert.Equal(t, domain.BreachOpen, breaches[0].Status)
}

func TestReconcile_UnmatchedOpenBreachResolves(t *testing.T) {
	rule := &domain.ThresholdRule{ID: "r1", TenantID: "t1"}
	existing := []*domain.Breach{{RollupKeyHash: "stale", Status: domain.BreachOpen}}
	now := time.Now()
	breaches := Reconcile(rule, nil, existing, now)
	require.Len(t, breaches, 1)
	assert.Equal(t, domain.BreachResolved, breaches[0].Status)
	require.NotNil(t, breaches[0].ResolvedAt)
}

func TestReconcile_ResolvedBreachReopensOnMatch(t *testing.T) {
	rule := &domain.ThresholdRule{ID: "r1", TenantID: "t1"}
	existing := []*domain.Breach{{RollupKeyHash: "a", Status: domain.BreachResolved}}
	matches := []Match{{Item: &domain.RollupResultItem{RollupKeyHash: "a"}, MetricValue: 10, ThresholdValue: 5}}
	breaches := Reconcile(rule, matches, existing, time.Now())
	require.Len(t, breaches, 1)
	assert.Equal(t, domain.BreachOpen, breaches[0].Status)
	assert.Nil(t, breaches[0].ResolvedAt)
}
