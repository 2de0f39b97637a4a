package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/meridianrisk/exposure-engine/internal/apperrors"
	"github.com/meridianrisk/exposure-engine/internal/domain"
)

type resilienceResultRow struct {
	ID                  string                  `db:"id"`
	TenantID            string                  `db:"tenant_id"`
	ExposureVersionID   string                  `db:"exposure_version_id"`
	RunID               string                  `db:"run_id"`
	RequestFingerprint  string                  `db:"request_fingerprint"`
	PolicyPackVersionID sql.NullString          `db:"policy_pack_version_id"`
	HazardVersionIDs    JSONB[[]string]         `db:"hazard_version_ids"`
	ScoringConfig       JSONB[map[string]any]   `db:"scoring_config"`
	ScoringVersion      sql.NullString          `db:"scoring_version"`
	CodeVersion         sql.NullString          `db:"code_version"`
	LocationsProcessed  int                     `db:"locations_processed"`
	CreatedAt           time.Time               `db:"created_at"`
}

func (r resilienceResultRow) toDomain() *domain.ResilienceScoreResult {
	return &domain.ResilienceScoreResult{
		ID: r.ID, TenantID: r.TenantID, ExposureVersionID: r.ExposureVersionID, RunID: r.RunID,
		RequestFingerprint: r.RequestFingerprint, PolicyPackVersionID: NullStringToPtr(r.PolicyPackVersionID),
		HazardVersionIDs: r.HazardVersionIDs.Value, ScoringConfig: r.ScoringConfig.Value,
		ScoringVersion: r.ScoringVersion.String, CodeVersion: r.CodeVersion.String,
		LocationsProcessed: r.LocationsProcessed, CreatedAt: r.CreatedAt,
	}
}

func (s *Store) FindResultByFingerprint(ctx context.Context, tenantID, fingerprint string) (*domain.ResilienceScoreResult, error) {
	var row resilienceResultRow
	err := s.Querier(ctx).GetContext(ctx, &row, `
		SELECT * FROM resilience_score_results WHERE tenant_id=$1 AND request_fingerprint=$2`, tenantID, fingerprint)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("ResilienceScoreResult", fingerprint)
	}
	if err != nil {
		return nil, wrapErr("find_resilience_result_by_fingerprint", err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetResult(ctx context.Context, tenantID, id string) (*domain.ResilienceScoreResult, error) {
	var row resilienceResultRow
	err := s.Querier(ctx).GetContext(ctx, &row, `SELECT * FROM resilience_score_results WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("ResilienceScoreResult", id)
	}
	if err != nil {
		return nil, wrapErr("get_resilience_result", err)
	}
	return row.toDomain(), nil
}

func (s *Store) CreateResult(ctx context.Context, r *domain.ResilienceScoreResult) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO resilience_score_results (id, tenant_id, exposure_version_id, run_id, request_fingerprint,
			policy_pack_version_id, hazard_version_ids, scoring_config, scoring_version, code_version,
			locations_processed, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		r.ID, r.TenantID, r.ExposureVersionID, r.RunID, r.RequestFingerprint,
		PtrToNullString(r.PolicyPackVersionID), NewJSONB(r.HazardVersionIDs), NewJSONB(r.ScoringConfig),
		r.ScoringVersion, r.CodeVersion, r.LocationsProcessed, r.CreatedAt)
	if isUniqueViolation(err) {
		return apperrors.Conflict("resilience score result already exists for this fingerprint")
	}
	return wrapErr("create_resilience_result", err)
}

func (s *Store) InsertItems(ctx context.Context, items []*domain.ResilienceScoreItem) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		for _, it := range items {
			_, err := s.Querier(ctx).ExecContext(ctx, `
				INSERT INTO resilience_score_items (id, tenant_id, result_id, location_id, resilience_score,
					risk_score, peril_scores, structural_adjustments, warnings, hazards_json, structural_json,
					input_structural_json)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
				it.ID, it.TenantID, it.ResultID, it.LocationID, it.ResilienceScore, it.RiskScore,
				NewJSONB(it.PerilScores), NewJSONB(it.StructuralAdjustments), NewJSONB(it.Warnings),
				NewJSONB(it.HazardsJSON), NewJSONB(it.StructuralJSON), NewJSONB(it.InputStructuralJSON))
			if err != nil {
				return wrapErr("insert_resilience_items", err)
			}
		}
		return nil
	})
}

func (s *Store) ListItems(ctx context.Context, tenantID, resultID string) ([]*domain.ResilienceScoreItem, error) {
	var rows []struct {
		ID                    string                               `db:"id"`
		TenantID              string                               `db:"tenant_id"`
		ResultID              string                               `db:"result_id"`
		LocationID            string                               `db:"location_id"`
		ResilienceScore       int                                  `db:"resilience_score"`
		RiskScore             float64                              `db:"risk_score"`
		PerilScores           JSONB[map[string]domain.PerilScore]  `db:"peril_scores"`
		StructuralAdjustments JSONB[map[string]float64]            `db:"structural_adjustments"`
		Warnings              JSONB[[]string]                      `db:"warnings"`
		HazardsJSON           JSONB[map[string]any]                `db:"hazards_json"`
		StructuralJSON        JSONB[map[string]any]                `db:"structural_json"`
		InputStructuralJSON   JSONB[map[string]any]                `db:"input_structural_json"`
	}
	err := s.Querier(ctx).SelectContext(ctx, &rows, `
		SELECT * FROM resilience_score_items WHERE tenant_id=$1 AND result_id=$2`, tenantID, resultID)
	if err != nil {
		return nil, wrapErr("list_resilience_items", err)
	}
	out := make([]*domain.ResilienceScoreItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, &domain.ResilienceScoreItem{
			ID: r.ID, TenantID: r.TenantID, ResultID: r.ResultID, LocationID: r.LocationID,
			ResilienceScore: r.ResilienceScore, RiskScore: r.RiskScore, PerilScores: r.PerilScores.Value,
			StructuralAdjustments: r.StructuralAdjustments.Value, Warnings: r.Warnings.Value,
			HazardsJSON: r.HazardsJSON.Value, StructuralJSON: r.StructuralJSON.Value,
			InputStructuralJSON: r.InputStructuralJSON.Value,
		})
	}
	return out, nil
}
