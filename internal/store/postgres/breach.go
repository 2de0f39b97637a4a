package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/meridianrisk/exposure-engine/internal/apperrors"
	"github.com/meridianrisk/exposure-engine/internal/domain"
)

type ruleRow struct {
	ID       string                `db:"id"`
	TenantID string                `db:"tenant_id"`
	Name     string                `db:"name"`
	Metric   string                `db:"metric"`
	Operator string                `db:"operator"`
	Value    float64               `db:"value"`
	Where    JSONB[map[string]any] `db:"where_json"`
	Severity string                `db:"severity"`
	Active   bool                  `db:"active"`
}

func (r ruleRow) toDomain() *domain.ThresholdRule {
	return &domain.ThresholdRule{
		ID: r.ID, TenantID: r.TenantID, Name: r.Name, Metric: r.Metric, Operator: r.Operator,
		Value: r.Value, Where: r.Where.Value, Severity: r.Severity, Active: r.Active,
	}
}

func (s *Store) ListActiveRules(ctx context.Context, tenantID string) ([]*domain.ThresholdRule, error) {
	var rows []ruleRow
	err := s.Querier(ctx).SelectContext(ctx, &rows,
		`SELECT * FROM threshold_rules WHERE tenant_id=$1 AND active=true ORDER BY name`, tenantID)
	if err != nil {
		return nil, wrapErr("list_active_rules", err)
	}
	out := make([]*domain.ThresholdRule, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) GetRule(ctx context.Context, tenantID, id string) (*domain.ThresholdRule, error) {
	var row ruleRow
	err := s.Querier(ctx).GetContext(ctx, &row, `SELECT * FROM threshold_rules WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("ThresholdRule", id)
	}
	if err != nil {
		return nil, wrapErr("get_rule", err)
	}
	return row.toDomain(), nil
}

type breachRow struct {
	ID                string                `db:"id"`
	TenantID          string                `db:"tenant_id"`
	RuleID            string                `db:"rule_id"`
	ExposureVersionID string                `db:"exposure_version_id"`
	RollupKeyHash     string                `db:"rollup_key_hash"`
	RollupKeyJSON     JSONB[map[string]any] `db:"rollup_key_json"`
	Status            string                `db:"status"`
	MetricValue       float64               `db:"metric_value"`
	ThresholdValue    float64               `db:"threshold_value"`
	FirstSeenAt       time.Time             `db:"first_seen_at"`
	LastSeenAt        time.Time             `db:"last_seen_at"`
	ResolvedAt        sql.NullTime          `db:"resolved_at"`
}

func (r breachRow) toDomain() *domain.Breach {
	b := &domain.Breach{
		ID: r.ID, TenantID: r.TenantID, RuleID: r.RuleID, ExposureVersionID: r.ExposureVersionID,
		RollupKeyHash: r.RollupKeyHash, RollupKeyJSON: r.RollupKeyJSON.Value, Status: domain.BreachStatus(r.Status),
		MetricValue: r.MetricValue, ThresholdValue: r.ThresholdValue, FirstSeenAt: r.FirstSeenAt, LastSeenAt: r.LastSeenAt,
	}
	if r.ResolvedAt.Valid {
		b.ResolvedAt = &r.ResolvedAt.Time
	}
	return b
}

func (s *Store) FindBreach(ctx context.Context, tenantID, ruleID, exposureVersionID, rollupKeyHash string) (*domain.Breach, error) {
	var row breachRow
	err := s.Querier(ctx).GetContext(ctx, &row, `
		SELECT * FROM breaches WHERE tenant_id=$1 AND rule_id=$2 AND exposure_version_id=$3 AND rollup_key_hash=$4`,
		tenantID, ruleID, exposureVersionID, rollupKeyHash)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("Breach", rollupKeyHash)
	}
	if err != nil {
		return nil, wrapErr("find_breach", err)
	}
	return row.toDomain(), nil
}

func (s *Store) UpsertBreach(ctx context.Context, b *domain.Breach) error {
	var resolvedAt sql.NullTime
	if b.ResolvedAt != nil {
		resolvedAt = sql.NullTime{Time: *b.ResolvedAt, Valid: true}
	}
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO breaches (id, tenant_id, rule_id, exposure_version_id, rollup_key_hash, rollup_key_json,
			status, metric_value, threshold_value, first_seen_at, last_seen_at, resolved_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (tenant_id, rule_id, exposure_version_id, rollup_key_hash) DO UPDATE SET
			status=EXCLUDED.status, metric_value=EXCLUDED.metric_value, last_seen_at=EXCLUDED.last_seen_at,
			resolved_at=EXCLUDED.resolved_at`,
		b.ID, b.TenantID, b.RuleID, b.ExposureVersionID, b.RollupKeyHash, NewJSONB(b.RollupKeyJSON),
		string(b.Status), b.MetricValue, b.ThresholdValue, b.FirstSeenAt, b.LastSeenAt, resolvedAt)
	return wrapErr("upsert_breach", err)
}

func (s *Store) ListBreachesForRule(ctx context.Context, tenantID, ruleID, exposureVersionID string) ([]*domain.Breach, error) {
	var rows []breachRow
	err := s.Querier(ctx).SelectContext(ctx, &rows, `
		SELECT * FROM breaches WHERE tenant_id=$1 AND rule_id=$2 AND exposure_version_id=$3 ORDER BY rollup_key_hash`,
		tenantID, ruleID, exposureVersionID)
	if err != nil {
		return nil, wrapErr("list_breaches_for_rule", err)
	}
	out := make([]*domain.Breach, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}
