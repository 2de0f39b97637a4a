package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/meridianrisk/exposure-engine/internal/apperrors"
	"github.com/meridianrisk/exposure-engine/internal/domain"
)

func (s *Store) CreateDriftRun(ctx context.Context, d *domain.DriftRun) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO drift_runs (id, tenant_id, exposure_version_a_id, exposure_version_b_id, run_id,
			summary_json, artifact_uri, checksum, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		d.ID, d.TenantID, d.ExposureVersionAID, d.ExposureVersionBID, d.RunID,
		NewJSONB(d.SummaryJSON), d.ArtifactURI, d.Checksum, d.CreatedAt)
	return wrapErr("create_drift_run", err)
}

func (s *Store) GetDriftRun(ctx context.Context, tenantID, id string) (*domain.DriftRun, error) {
	var row struct {
		ID                  string                      `db:"id"`
		TenantID            string                      `db:"tenant_id"`
		ExposureVersionAID  string                      `db:"exposure_version_a_id"`
		ExposureVersionBID  string                      `db:"exposure_version_b_id"`
		RunID               string                      `db:"run_id"`
		SummaryJSON         JSONB[domain.DriftSummary]  `db:"summary_json"`
		ArtifactURI         string                      `db:"artifact_uri"`
		Checksum            string                      `db:"checksum"`
		CreatedAt           time.Time                   `db:"created_at"`
	}
	err := s.Querier(ctx).GetContext(ctx, &row, `SELECT * FROM drift_runs WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("DriftRun", id)
	}
	if err != nil {
		return nil, wrapErr("get_drift_run", err)
	}
	return &domain.DriftRun{
		ID: row.ID, TenantID: row.TenantID, ExposureVersionAID: row.ExposureVersionAID,
		ExposureVersionBID: row.ExposureVersionBID, RunID: row.RunID, SummaryJSON: row.SummaryJSON.Value,
		ArtifactURI: row.ArtifactURI, Checksum: row.Checksum, CreatedAt: row.CreatedAt,
	}, nil
}

func (s *Store) InsertDriftDetails(ctx context.Context, details []*domain.DriftDetail) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		for _, d := range details {
			_, err := s.Querier(ctx).ExecContext(ctx, `
				INSERT INTO drift_details (id, tenant_id, drift_run_id, external_location_id, classification, delta_json)
				VALUES ($1,$2,$3,$4,$5,$6)`,
				d.ID, d.TenantID, d.DriftRunID, d.ExternalLocationID, string(d.Classification), NewJSONB(d.DeltaJSON))
			if err != nil {
				return wrapErr("insert_drift_details", err)
			}
		}
		return nil
	})
}

func (s *Store) ListDriftDetails(ctx context.Context, tenantID, driftRunID string) ([]*domain.DriftDetail, error) {
	var rows []struct {
		ID                  string                `db:"id"`
		TenantID            string                `db:"tenant_id"`
		DriftRunID          string                `db:"drift_run_id"`
		ExternalLocationID  string                `db:"external_location_id"`
		Classification      string                `db:"classification"`
		DeltaJSON           JSONB[map[string]any] `db:"delta_json"`
	}
	err := s.Querier(ctx).SelectContext(ctx, &rows, `
		SELECT * FROM drift_details WHERE tenant_id=$1 AND drift_run_id=$2 ORDER BY external_location_id`,
		tenantID, driftRunID)
	if err != nil {
		return nil, wrapErr("list_drift_details", err)
	}
	out := make([]*domain.DriftDetail, 0, len(rows))
	for _, r := range rows {
		out = append(out, &domain.DriftDetail{
			ID: r.ID, TenantID: r.TenantID, DriftRunID: r.DriftRunID, ExternalLocationID: r.ExternalLocationID,
			Classification: domain.DriftClassification(r.Classification), DeltaJSON: r.DeltaJSON.Value,
		})
	}
	return out, nil
}
