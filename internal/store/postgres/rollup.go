package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/meridianrisk/exposure-engine/internal/apperrors"
	"github.com/meridianrisk/exposure-engine/internal/domain"
)

func (s *Store) CreateRollupConfig(ctx context.Context, c *domain.RollupConfig) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO rollup_configs (id, tenant_id, name, version, dimensions, filters, measures, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		c.ID, c.TenantID, c.Name, c.Version, NewJSONB(c.Dimensions), NewJSONB(c.Filters), NewJSONB(c.Measures), c.CreatedAt)
	return wrapErr("create_rollup_config", err)
}

func (s *Store) GetRollupConfig(ctx context.Context, tenantID, id string) (*domain.RollupConfig, error) {
	var row struct {
		ID         string                 `db:"id"`
		TenantID   string                 `db:"tenant_id"`
		Name       string                 `db:"name"`
		Version    int                    `db:"version"`
		Dimensions JSONB[[]string]        `db:"dimensions"`
		Filters    JSONB[map[string]any]  `db:"filters"`
		Measures   JSONB[[]domain.Measure] `db:"measures"`
		CreatedAt  time.Time              `db:"created_at"`
	}
	err := s.Querier(ctx).GetContext(ctx, &row, `SELECT * FROM rollup_configs WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("RollupConfig", id)
	}
	if err != nil {
		return nil, wrapErr("get_rollup_config", err)
	}
	return &domain.RollupConfig{
		ID: row.ID, TenantID: row.TenantID, Name: row.Name, Version: row.Version,
		Dimensions: row.Dimensions.Value, Filters: row.Filters.Value, Measures: row.Measures.Value,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (s *Store) CreateRollupResult(ctx context.Context, r *domain.RollupResult) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO rollup_results (id, tenant_id, rollup_config_id, run_id, checksum, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		r.ID, r.TenantID, r.RollupConfigID, r.RunID, r.Checksum, r.CreatedAt)
	return wrapErr("create_rollup_result", err)
}

func (s *Store) GetRollupResult(ctx context.Context, tenantID, id string) (*domain.RollupResult, error) {
	var row struct {
		ID             string    `db:"id"`
		TenantID       string    `db:"tenant_id"`
		RollupConfigID string    `db:"rollup_config_id"`
		RunID          string    `db:"run_id"`
		Checksum       string    `db:"checksum"`
		CreatedAt      time.Time `db:"created_at"`
	}
	err := s.Querier(ctx).GetContext(ctx, &row, `SELECT * FROM rollup_results WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("RollupResult", id)
	}
	if err != nil {
		return nil, wrapErr("get_rollup_result", err)
	}
	return &domain.RollupResult{
		ID: row.ID, TenantID: row.TenantID, RollupConfigID: row.RollupConfigID,
		RunID: row.RunID, Checksum: row.Checksum, CreatedAt: row.CreatedAt,
	}, nil
}

func (s *Store) InsertRollupResultItems(ctx context.Context, items []*domain.RollupResultItem) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		for _, it := range items {
			_, err := s.Querier(ctx).ExecContext(ctx, `
				INSERT INTO rollup_result_items (id, tenant_id, rollup_result_id, rollup_key_json, rollup_key_hash, metrics_json)
				VALUES ($1,$2,$3,$4,$5,$6)`,
				it.ID, it.TenantID, it.RollupResultID, NewJSONB(it.RollupKeyJSON), it.RollupKeyHash, NewJSONB(it.MetricsJSON))
			if err != nil {
				return wrapErr("insert_rollup_result_items", err)
			}
		}
		return nil
	})
}

func (s *Store) ListRollupResultItems(ctx context.Context, tenantID, rollupResultID string) ([]*domain.RollupResultItem, error) {
	var rows []struct {
		ID             string                        `db:"id"`
		TenantID       string                        `db:"tenant_id"`
		RollupResultID string                        `db:"rollup_result_id"`
		RollupKeyJSON  JSONB[map[string]any]         `db:"rollup_key_json"`
		RollupKeyHash  string                        `db:"rollup_key_hash"`
		MetricsJSON    JSONB[map[string]float64]     `db:"metrics_json"`
	}
	err := s.Querier(ctx).SelectContext(ctx, &rows, `
		SELECT * FROM rollup_result_items WHERE tenant_id=$1 AND rollup_result_id=$2 ORDER BY rollup_key_hash`,
		tenantID, rollupResultID)
	if err != nil {
		return nil, wrapErr("list_rollup_result_items", err)
	}
	out := make([]*domain.RollupResultItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, &domain.RollupResultItem{
			ID: r.ID, TenantID: r.TenantID, RollupResultID: r.RollupResultID,
			RollupKeyJSON: r.RollupKeyJSON.Value, RollupKeyHash: r.RollupKeyHash, MetricsJSON: r.MetricsJSON.Value,
		})
	}
	return out, nil
}
