package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/meridianrisk/exposure-engine/internal/apperrors"
	"github.com/meridianrisk/exposure-engine/internal/domain"
)

func (s *Store) FindByFingerprint(ctx context.Context, tenantID, fingerprint string) (*domain.PropertyProfile, error) {
	var row struct {
		ID                  string                `db:"id"`
		TenantID            string                `db:"tenant_id"`
		AddressFingerprint  string                `db:"address_fingerprint"`
		StandardizedAddress JSONB[map[string]any] `db:"standardized_address_json"`
		GeocodeJSON         JSONB[map[string]any] `db:"geocode_json"`
		ParcelJSON          JSONB[map[string]any] `db:"parcel_json"`
		CharacteristicsJSON JSONB[map[string]any] `db:"characteristics_json"`
		StructuralJSON      JSONB[map[string]any] `db:"structural_json"`
		ProvenanceJSON      JSONB[map[string]any] `db:"provenance_json"`
		UpdatedAt           time.Time             `db:"updated_at"`
	}
	err := s.Querier(ctx).GetContext(ctx, &row, `
		SELECT * FROM property_profiles WHERE tenant_id=$1 AND address_fingerprint=$2`, tenantID, fingerprint)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("PropertyProfile", fingerprint)
	}
	if err != nil {
		return nil, wrapErr("find_property_profile", err)
	}
	return &domain.PropertyProfile{
		ID: row.ID, TenantID: row.TenantID, AddressFingerprint: row.AddressFingerprint,
		StandardizedAddress: row.StandardizedAddress.Value, GeocodeJSON: row.GeocodeJSON.Value,
		ParcelJSON: row.ParcelJSON.Value, CharacteristicsJSON: row.CharacteristicsJSON.Value,
		StructuralJSON: row.StructuralJSON.Value, ProvenanceJSON: row.ProvenanceJSON.Value, UpdatedAt: row.UpdatedAt,
	}, nil
}

func (s *Store) Upsert(ctx context.Context, p *domain.PropertyProfile) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO property_profiles (id, tenant_id, address_fingerprint, standardized_address_json,
			geocode_json, parcel_json, characteristics_json, structural_json, provenance_json, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (tenant_id, address_fingerprint) DO UPDATE SET
			geocode_json=EXCLUDED.geocode_json, parcel_json=EXCLUDED.parcel_json,
			characteristics_json=EXCLUDED.characteristics_json, structural_json=EXCLUDED.structural_json,
			provenance_json=EXCLUDED.provenance_json, updated_at=EXCLUDED.updated_at`,
		p.ID, p.TenantID, p.AddressFingerprint, NewJSONB(p.StandardizedAddress),
		NewJSONB(p.GeocodeJSON), NewJSONB(p.ParcelJSON), NewJSONB(p.CharacteristicsJSON),
		NewJSONB(p.StructuralJSON), NewJSONB(p.ProvenanceJSON), p.UpdatedAt)
	return wrapErr("upsert_property_profile", err)
}
