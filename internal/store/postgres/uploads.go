package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/meridianrisk/exposure-engine/internal/apperrors"
	"github.com/meridianrisk/exposure-engine/internal/domain"
)

func (s *Store) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	var row struct {
		ID                         string         `db:"id"`
		Name                       string         `db:"name"`
		DefaultCurrency            string         `db:"default_currency"`
		DefaultPolicyPackVersionID sql.NullString `db:"default_policy_pack_version_id"`
	}
	err := s.Querier(ctx).GetContext(ctx, &row, `SELECT * FROM tenants WHERE id=$1`, tenantID)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("Tenant", tenantID)
	}
	if err != nil {
		return nil, wrapErr("get_tenant", err)
	}
	return &domain.Tenant{
		ID:                         row.ID,
		Name:                       row.Name,
		DefaultCurrency:            row.DefaultCurrency,
		DefaultPolicyPackVersionID: NullStringToPtr(row.DefaultPolicyPackVersionID),
	}, nil
}

func (s *Store) UpdateTenantDefaultPolicyPack(ctx context.Context, tenantID string, policyPackVersionID *string) error {
	res, err := s.Querier(ctx).ExecContext(ctx,
		`UPDATE tenants SET default_policy_pack_version_id=$1 WHERE id=$2`,
		PtrToNullString(policyPackVersionID), tenantID)
	if err != nil {
		return wrapErr("update_tenant_policy_pack", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NotFound("Tenant", tenantID)
	}
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, tenantID, email string) (*domain.User, error) {
	var row struct {
		ID       string `db:"id"`
		TenantID string `db:"tenant_id"`
		Email    string `db:"email"`
		Role     string `db:"role"`
	}
	err := s.Querier(ctx).GetContext(ctx, &row, `SELECT * FROM users WHERE tenant_id=$1 AND email=$2`, tenantID, email)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("User", email)
	}
	if err != nil {
		return nil, wrapErr("get_user", err)
	}
	return &domain.User{ID: row.ID, TenantID: row.TenantID, Email: row.Email, Role: domain.Role(row.Role)}, nil
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := s.Querier(ctx).ExecContext(ctx,
		`INSERT INTO users (id, tenant_id, email, role) VALUES ($1,$2,$3,$4)`,
		u.ID, u.TenantID, u.Email, string(u.Role))
	return wrapErr("create_user", err)
}

func (s *Store) CreateUpload(ctx context.Context, u *domain.ExposureUpload) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO exposure_uploads (id, tenant_id, object_uri, checksum, idempotency_key, mapping_template_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.TenantID, u.ObjectURI, u.Checksum, PtrToNullString(u.IdempotencyKey), PtrToNullString(u.MappingTemplateID), u.CreatedAt)
	if isUniqueViolation(err) {
		return apperrors.Conflict("upload idempotency_key already used")
	}
	return wrapErr("create_upload", err)
}

func scanUpload(row uploadRow) *domain.ExposureUpload {
	return &domain.ExposureUpload{
		ID:                row.ID,
		TenantID:          row.TenantID,
		ObjectURI:         row.ObjectURI,
		Checksum:          row.Checksum,
		IdempotencyKey:    NullStringToPtr(row.IdempotencyKey),
		MappingTemplateID: NullStringToPtr(row.MappingTemplateID),
		CreatedAt:         row.CreatedAt,
	}
}

type uploadRow struct {
	ID                string         `db:"id"`
	TenantID          string         `db:"tenant_id"`
	ObjectURI         string         `db:"object_uri"`
	Checksum          string         `db:"checksum"`
	IdempotencyKey    sql.NullString `db:"idempotency_key"`
	MappingTemplateID sql.NullString `db:"mapping_template_id"`
	CreatedAt         time.Time      `db:"created_at"`
}

func (s *Store) GetUploadByIdempotencyKey(ctx context.Context, tenantID, key string) (*domain.ExposureUpload, error) {
	var row uploadRow
	err := s.Querier(ctx).GetContext(ctx, &row, `SELECT * FROM exposure_uploads WHERE tenant_id=$1 AND idempotency_key=$2`, tenantID, key)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("ExposureUpload", key)
	}
	if err != nil {
		return nil, wrapErr("get_upload_by_idempotency_key", err)
	}
	return scanUpload(row), nil
}

func (s *Store) GetUpload(ctx context.Context, tenantID, id string) (*domain.ExposureUpload, error) {
	var row uploadRow
	err := s.Querier(ctx).GetContext(ctx, &row, `SELECT * FROM exposure_uploads WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("ExposureUpload", id)
	}
	if err != nil {
		return nil, wrapErr("get_upload", err)
	}
	return scanUpload(row), nil
}

func (s *Store) AttachMapping(ctx context.Context, tenantID, uploadID, mappingTemplateID string) error {
	res, err := s.Querier(ctx).ExecContext(ctx,
		`UPDATE exposure_uploads SET mapping_template_id=$1 WHERE id=$2 AND tenant_id=$3`,
		mappingTemplateID, uploadID, tenantID)
	if err != nil {
		return wrapErr("attach_mapping", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NotFound("ExposureUpload", uploadID)
	}
	return nil
}

func (s *Store) CreateMappingTemplate(ctx context.Context, m *domain.MappingTemplate) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO mapping_templates (id, tenant_id, name, version, template_json, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		m.ID, m.TenantID, m.Name, m.Version, NewJSONB(m.TemplateJSON), m.CreatedAt)
	return wrapErr("create_mapping_template", err)
}

type mappingRow struct {
	ID           string                    `db:"id"`
	TenantID     string                    `db:"tenant_id"`
	Name         string                    `db:"name"`
	Version      int                       `db:"version"`
	TemplateJSON JSONB[map[string]string]  `db:"template_json"`
	CreatedAt    time.Time                 `db:"created_at"`
}

func (r mappingRow) toDomain() *domain.MappingTemplate {
	return &domain.MappingTemplate{ID: r.ID, TenantID: r.TenantID, Name: r.Name, Version: r.Version, TemplateJSON: r.TemplateJSON.Value, CreatedAt: r.CreatedAt}
}

func (s *Store) LatestMappingTemplate(ctx context.Context, tenantID, name string) (*domain.MappingTemplate, error) {
	var row mappingRow
	err := s.Querier(ctx).GetContext(ctx, &row, `
		SELECT * FROM mapping_templates WHERE tenant_id=$1 AND name=$2 ORDER BY version DESC LIMIT 1`, tenantID, name)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("MappingTemplate", name)
	}
	if err != nil {
		return nil, wrapErr("latest_mapping_template", err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetMappingTemplate(ctx context.Context, tenantID, id string) (*domain.MappingTemplate, error) {
	var row mappingRow
	err := s.Querier(ctx).GetContext(ctx, &row, `SELECT * FROM mapping_templates WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("MappingTemplate", id)
	}
	if err != nil {
		return nil, wrapErr("get_mapping_template", err)
	}
	return row.toDomain(), nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return pqCode(err) == "23505"
}
