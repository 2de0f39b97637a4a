package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/meridianrisk/exposure-engine/internal/apperrors"
	"github.com/meridianrisk/exposure-engine/internal/domain"
)

func (s *Store) GetPolicyPack(ctx context.Context, tenantID, id string) (*domain.PolicyPack, error) {
	var row struct {
		ID       string `db:"id"`
		TenantID string `db:"tenant_id"`
		Name     string `db:"name"`
	}
	err := s.Querier(ctx).GetContext(ctx, &row, `SELECT * FROM policy_packs WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("PolicyPack", id)
	}
	if err != nil {
		return nil, wrapErr("get_policy_pack", err)
	}
	return &domain.PolicyPack{ID: row.ID, TenantID: row.TenantID, Name: row.Name}, nil
}

type policyVersionRow struct {
	ID                     string                `db:"id"`
	PolicyPackID           string                `db:"policy_pack_id"`
	VersionLabel           string                `db:"version_label"`
	ScoringConfigJSON      JSONB[map[string]any] `db:"scoring_config_json"`
	UnderwritingPolicyJSON JSONB[map[string]any] `db:"underwriting_policy_json"`
	CreatedAt              time.Time             `db:"created_at"`
}

func (r policyVersionRow) toDomain() *domain.PolicyPackVersion {
	return &domain.PolicyPackVersion{
		ID: r.ID, PolicyPackID: r.PolicyPackID, VersionLabel: r.VersionLabel,
		ScoringConfigJSON: r.ScoringConfigJSON.Value, UnderwritingPolicyJSON: r.UnderwritingPolicyJSON.Value,
		CreatedAt: r.CreatedAt,
	}
}

func (s *Store) GetPolicyPackVersion(ctx context.Context, tenantID, id string) (*domain.PolicyPackVersion, error) {
	var row policyVersionRow
	err := s.Querier(ctx).GetContext(ctx, &row, `
		SELECT v.* FROM policy_pack_versions v
		JOIN policy_packs p ON p.id = v.policy_pack_id
		WHERE p.tenant_id=$1 AND v.id=$2`, tenantID, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("PolicyPackVersion", id)
	}
	if err != nil {
		return nil, wrapErr("get_policy_pack_version", err)
	}
	return row.toDomain(), nil
}

func (s *Store) LatestPolicyPackVersion(ctx context.Context, tenantID, policyPackID string) (*domain.PolicyPackVersion, error) {
	var row policyVersionRow
	err := s.Querier(ctx).GetContext(ctx, &row, `
		SELECT v.* FROM policy_pack_versions v
		JOIN policy_packs p ON p.id = v.policy_pack_id
		WHERE p.tenant_id=$1 AND v.policy_pack_id=$2 ORDER BY v.created_at DESC LIMIT 1`,
		tenantID, policyPackID)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("PolicyPackVersion", policyPackID)
	}
	if err != nil {
		return nil, wrapErr("latest_policy_pack_version", err)
	}
	return row.toDomain(), nil
}
