package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/meridianrisk/exposure-engine/internal/apperrors"
	"github.com/meridianrisk/exposure-engine/internal/domain"
)

type runRow struct {
	ID                string         `db:"id"`
	TenantID          string         `db:"tenant_id"`
	RunType           string         `db:"run_type"`
	Status            string         `db:"status"`
	InputRefs         JSONB[map[string]any]    `db:"input_refs"`
	ConfigRefs        JSONB[map[string]any]    `db:"config_refs"`
	OutputRefs        JSONB[map[string]any]    `db:"output_refs"`
	ArtifactChecksums JSONB[map[string]string] `db:"artifact_checksums"`
	CodeVersion       string         `db:"code_version"`
	CreatedBy         sql.NullString `db:"created_by"`
	RequestID         sql.NullString `db:"request_id"`
	TaskID            sql.NullString `db:"task_id"`
	CancelRequested   bool           `db:"cancel_requested"`
	CreatedAt         time.Time      `db:"created_at"`
	StartedAt         sql.NullTime   `db:"started_at"`
	CompletedAt       sql.NullTime   `db:"completed_at"`
	CancelledAt       sql.NullTime   `db:"cancelled_at"`
}

func (r runRow) toDomain() *domain.Run {
	run := &domain.Run{
		ID:                r.ID,
		TenantID:          r.TenantID,
		RunType:           domain.RunType(r.RunType),
		Status:            domain.RunStatus(r.Status),
		InputRefs:         r.InputRefs.Value,
		ConfigRefs:        r.ConfigRefs.Value,
		OutputRefs:        r.OutputRefs.Value,
		ArtifactChecksums: r.ArtifactChecksums.Value,
		CodeVersion:       r.CodeVersion,
		CreatedBy:         r.CreatedBy.String,
		RequestID:         r.RequestID.String,
		TaskID:            r.TaskID.String,
		CancelRequested:   r.CancelRequested,
		CreatedAt:         r.CreatedAt,
	}
	if r.StartedAt.Valid {
		run.StartedAt = &r.StartedAt.Time
	}
	if r.CompletedAt.Valid {
		run.CompletedAt = &r.CompletedAt.Time
	}
	if r.CancelledAt.Valid {
		run.CancelledAt = &r.CancelledAt.Time
	}
	return run
}

func fromDomainRun(r *domain.Run) runRow {
	row := runRow{
		ID:                r.ID,
		TenantID:          r.TenantID,
		RunType:           string(r.RunType),
		Status:            string(r.Status),
		InputRefs:         NewJSONB(r.InputRefs),
		ConfigRefs:        NewJSONB(r.ConfigRefs),
		OutputRefs:        NewJSONB(r.OutputRefs),
		ArtifactChecksums: NewJSONB(r.ArtifactChecksums),
		CodeVersion:       r.CodeVersion,
		CreatedBy:         sql.NullString{String: r.CreatedBy, Valid: r.CreatedBy != ""},
		RequestID:         sql.NullString{String: r.RequestID, Valid: r.RequestID != ""},
		TaskID:            sql.NullString{String: r.TaskID, Valid: r.TaskID != ""},
		CancelRequested:   r.CancelRequested,
		CreatedAt:         r.CreatedAt,
	}
	if r.StartedAt != nil {
		row.StartedAt = sql.NullTime{Time: *r.StartedAt, Valid: true}
	}
	if r.CompletedAt != nil {
		row.CompletedAt = sql.NullTime{Time: *r.CompletedAt, Valid: true}
	}
	if r.CancelledAt != nil {
		row.CancelledAt = sql.NullTime{Time: *r.CancelledAt, Valid: true}
	}
	return row
}

func (s *Store) CreateRun(ctx context.Context, r *domain.Run) error {
	row := fromDomainRun(r)
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO runs (id, tenant_id, run_type, status, input_refs, config_refs,
			output_refs, artifact_checksums, code_version, created_by, request_id,
			task_id, cancel_requested, created_at, started_at, completed_at, cancelled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		row.ID, row.TenantID, row.RunType, row.Status, row.InputRefs, row.ConfigRefs,
		row.OutputRefs, row.ArtifactChecksums, row.CodeVersion, row.CreatedBy, row.RequestID,
		row.TaskID, row.CancelRequested, row.CreatedAt, row.StartedAt, row.CompletedAt, row.CancelledAt)
	return wrapErr("create_run", err)
}

func (s *Store) GetRun(ctx context.Context, tenantID, id string) (*domain.Run, error) {
	var row runRow
	err := s.Querier(ctx).GetContext(ctx, &row, `SELECT * FROM runs WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("Run", id)
	}
	if err != nil {
		return nil, wrapErr("get_run", err)
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateRun(ctx context.Context, r *domain.Run) error {
	row := fromDomainRun(r)
	res, err := s.Querier(ctx).ExecContext(ctx, `
		UPDATE runs SET status=$1, input_refs=$2, config_refs=$3, output_refs=$4,
			artifact_checksums=$5, cancel_requested=$6, started_at=$7, completed_at=$8, cancelled_at=$9
		WHERE id=$10 AND tenant_id=$11`,
		row.Status, row.InputRefs, row.ConfigRefs, row.OutputRefs, row.ArtifactChecksums,
		row.CancelRequested, row.StartedAt, row.CompletedAt, row.CancelledAt, row.ID, row.TenantID)
	if err != nil {
		return wrapErr("update_run", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NotFound("Run", r.ID)
	}
	return nil
}

func (s *Store) ListQueuedRuns(ctx context.Context, runType domain.RunType, limit int) ([]*domain.Run, error) {
	var rows []runRow
	err := s.Querier(ctx).SelectContext(ctx, &rows, `
		SELECT * FROM runs WHERE run_type=$1 AND status IN ('QUEUED','RUNNING')
		ORDER BY created_at ASC LIMIT $2`, string(runType), limit)
	if err != nil {
		return nil, wrapErr("list_queued_runs", err)
	}
	out := make([]*domain.Run, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) RequestCancel(ctx context.Context, tenantID, id string) error {
	res, err := s.Querier(ctx).ExecContext(ctx,
		`UPDATE runs SET cancel_requested=true WHERE id=$1 AND tenant_id=$2`, id, tenantID)
	if err != nil {
		return wrapErr("request_cancel", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NotFound("Run", id)
	}
	return nil
}

func (s *Store) FindRunInProgressByFingerprint(ctx context.Context, tenantID string, runType domain.RunType, fingerprint string) (*domain.Run, error) {
	var row runRow
	err := s.Querier(ctx).GetContext(ctx, &row, `
		SELECT * FROM runs WHERE tenant_id=$1 AND run_type=$2 AND status IN ('QUEUED','RUNNING')
			AND config_refs->>'request_fingerprint' = $3 LIMIT 1`,
		tenantID, string(runType), fingerprint)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("Run", fingerprint)
	}
	if err != nil {
		return nil, wrapErr("find_run_in_progress", err)
	}
	return row.toDomain(), nil
}
