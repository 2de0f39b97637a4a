package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/meridianrisk/exposure-engine/internal/apperrors"
	"github.com/meridianrisk/exposure-engine/internal/domain"
)

func (s *Store) CreateValidationResult(ctx context.Context, v *domain.ValidationResult) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO validation_results (id, tenant_id, upload_id, mapping_template_id, summary_json, row_errors_uri, checksum, run_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		v.ID, v.TenantID, v.UploadID, PtrToNullString(v.MappingTemplateID), NewJSONB(v.SummaryJSON), v.RowErrorsURI, v.Checksum, v.RunID, v.CreatedAt)
	return wrapErr("create_validation_result", err)
}

func (s *Store) GetValidationResult(ctx context.Context, tenantID, id string) (*domain.ValidationResult, error) {
	var row struct {
		ID                string                        `db:"id"`
		TenantID          string                        `db:"tenant_id"`
		UploadID          string                        `db:"upload_id"`
		MappingTemplateID sql.NullString                `db:"mapping_template_id"`
		SummaryJSON       JSONB[domain.ValidationSummary] `db:"summary_json"`
		RowErrorsURI      string                        `db:"row_errors_uri"`
		Checksum          string                        `db:"checksum"`
		RunID             string                        `db:"run_id"`
		CreatedAt         time.Time                     `db:"created_at"`
	}
	err := s.Querier(ctx).GetContext(ctx, &row, `SELECT * FROM validation_results WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("ValidationResult", id)
	}
	if err != nil {
		return nil, wrapErr("get_validation_result", err)
	}
	return &domain.ValidationResult{
		ID: row.ID, TenantID: row.TenantID, UploadID: row.UploadID,
		MappingTemplateID: NullStringToPtr(row.MappingTemplateID),
		SummaryJSON:       row.SummaryJSON.Value,
		RowErrorsURI:      row.RowErrorsURI, Checksum: row.Checksum, RunID: row.RunID, CreatedAt: row.CreatedAt,
	}, nil
}

func (s *Store) CreateExposureVersion(ctx context.Context, v *domain.ExposureVersion) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO exposure_versions (id, tenant_id, upload_id, mapping_template_id, idempotency_key, name, location_count, tiv_sum, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		v.ID, v.TenantID, v.UploadID, PtrToNullString(v.MappingTemplateID), PtrToNullString(v.IdempotencyKey), v.Name, v.LocationCount, v.TIVSum, v.CreatedAt)
	return wrapErr("create_exposure_version", err)
}

type exposureVersionRow struct {
	ID                string         `db:"id"`
	TenantID          string         `db:"tenant_id"`
	UploadID          string         `db:"upload_id"`
	MappingTemplateID sql.NullString `db:"mapping_template_id"`
	IdempotencyKey    sql.NullString `db:"idempotency_key"`
	Name              sql.NullString `db:"name"`
	LocationCount     int            `db:"location_count"`
	TIVSum            float64        `db:"tiv_sum"`
	CreatedAt         time.Time      `db:"created_at"`
}

func (r exposureVersionRow) toDomain() *domain.ExposureVersion {
	return &domain.ExposureVersion{
		ID: r.ID, TenantID: r.TenantID, UploadID: r.UploadID,
		MappingTemplateID: NullStringToPtr(r.MappingTemplateID),
		IdempotencyKey:    NullStringToPtr(r.IdempotencyKey),
		Name:              r.Name.String, LocationCount: r.LocationCount, TIVSum: r.TIVSum, CreatedAt: r.CreatedAt,
	}
}

func (s *Store) GetExposureVersion(ctx context.Context, tenantID, id string) (*domain.ExposureVersion, error) {
	var row exposureVersionRow
	err := s.Querier(ctx).GetContext(ctx, &row, `SELECT * FROM exposure_versions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("ExposureVersion", id)
	}
	if err != nil {
		return nil, wrapErr("get_exposure_version", err)
	}
	return row.toDomain(), nil
}

func (s *Store) FindExposureVersionByMapping(ctx context.Context, tenantID, uploadID, mappingTemplateID string) (*domain.ExposureVersion, error) {
	var row exposureVersionRow
	err := s.Querier(ctx).GetContext(ctx, &row, `
		SELECT * FROM exposure_versions WHERE tenant_id=$1 AND upload_id=$2 AND mapping_template_id=$3`,
		tenantID, uploadID, mappingTemplateID)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("ExposureVersion", uploadID)
	}
	if err != nil {
		return nil, wrapErr("find_exposure_version_by_mapping", err)
	}
	return row.toDomain(), nil
}

func (s *Store) FindExposureVersionByIdempotencyKey(ctx context.Context, tenantID, uploadID, idempotencyKey string) (*domain.ExposureVersion, error) {
	var row exposureVersionRow
	err := s.Querier(ctx).GetContext(ctx, &row, `
		SELECT * FROM exposure_versions WHERE tenant_id=$1 AND upload_id=$2 AND idempotency_key=$3`,
		tenantID, uploadID, idempotencyKey)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("ExposureVersion", uploadID)
	}
	if err != nil {
		return nil, wrapErr("find_exposure_version_by_idempotency_key", err)
	}
	return row.toDomain(), nil
}

type locationRow struct {
	ID                 string                  `db:"id"`
	TenantID           string                  `db:"tenant_id"`
	ExposureVersionID  string                  `db:"exposure_version_id"`
	ExternalLocationID string                  `db:"external_location_id"`
	AddressLine1       sql.NullString          `db:"address_line1"`
	City               sql.NullString          `db:"city"`
	StateRegion        sql.NullString          `db:"state_region"`
	PostalCode         sql.NullString          `db:"postal_code"`
	Country            sql.NullString          `db:"country"`
	Latitude           sql.NullFloat64         `db:"latitude"`
	Longitude          sql.NullFloat64         `db:"longitude"`
	GeocodeConfidence  sql.NullFloat64         `db:"geocode_confidence"`
	GeocodeMethod      sql.NullString          `db:"geocode_method"`
	QualityTier        sql.NullString          `db:"quality_tier"`
	QualityReasons     JSONB[[]string]         `db:"quality_reasons"`
	Currency           sql.NullString          `db:"currency"`
	LOB                sql.NullString          `db:"lob"`
	ProductCode        sql.NullString          `db:"product_code"`
	TIV                sql.NullFloat64         `db:"tiv"`
	Limit              sql.NullFloat64         `db:"limit"`
	Premium            sql.NullFloat64         `db:"premium"`
	StructuralJSON     JSONB[map[string]any]   `db:"structural_json"`
}

func (r locationRow) toDomain() *domain.Location {
	return &domain.Location{
		ID: r.ID, TenantID: r.TenantID, ExposureVersionID: r.ExposureVersionID, ExternalLocationID: r.ExternalLocationID,
		AddressLine1: r.AddressLine1.String, City: r.City.String, StateRegion: r.StateRegion.String,
		PostalCode: r.PostalCode.String, Country: r.Country.String,
		Latitude: NullFloat64ToPtr(r.Latitude), Longitude: NullFloat64ToPtr(r.Longitude),
		GeocodeConfidence: NullFloat64ToPtr(r.GeocodeConfidence), GeocodeMethod: r.GeocodeMethod.String,
		QualityTier: domain.QualityTier(r.QualityTier.String), QualityReasons: r.QualityReasons.Value,
		Currency: r.Currency.String, LOB: r.LOB.String, ProductCode: r.ProductCode.String,
		TIV: NullFloat64ToPtr(r.TIV), Limit: NullFloat64ToPtr(r.Limit), Premium: NullFloat64ToPtr(r.Premium),
		StructuralJSON: r.StructuralJSON.Value,
	}
}

func (s *Store) BulkInsertLocations(ctx context.Context, locations []*domain.Location) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		for _, l := range locations {
			_, err := s.Querier(ctx).ExecContext(ctx, `
				INSERT INTO locations (id, tenant_id, exposure_version_id, external_location_id,
					address_line1, city, state_region, postal_code, country, latitude, longitude,
					geocode_confidence, geocode_method, quality_tier, quality_reasons, currency, lob,
					product_code, tiv, "limit", premium, structural_json)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
				l.ID, l.TenantID, l.ExposureVersionID, l.ExternalLocationID,
				l.AddressLine1, l.City, l.StateRegion, l.PostalCode, l.Country,
				PtrToNullFloat64(l.Latitude), PtrToNullFloat64(l.Longitude), PtrToNullFloat64(l.GeocodeConfidence),
				l.GeocodeMethod, string(l.QualityTier), NewJSONB(l.QualityReasons), l.Currency, l.LOB, l.ProductCode,
				PtrToNullFloat64(l.TIV), PtrToNullFloat64(l.Limit), PtrToNullFloat64(l.Premium), NewJSONB(l.StructuralJSON))
			if err != nil {
				return wrapErr("bulk_insert_locations", err)
			}
		}
		return nil
	})
}

func (s *Store) ListLocations(ctx context.Context, tenantID, exposureVersionID string) ([]*domain.Location, error) {
	var rows []locationRow
	err := s.Querier(ctx).SelectContext(ctx, &rows, `
		SELECT * FROM locations WHERE tenant_id=$1 AND exposure_version_id=$2 ORDER BY external_location_id`,
		tenantID, exposureVersionID)
	if err != nil {
		return nil, wrapErr("list_locations", err)
	}
	out := make([]*domain.Location, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) UpdateLocationStructural(ctx context.Context, tenantID, locationID string, structural map[string]any) error {
	res, err := s.Querier(ctx).ExecContext(ctx,
		`UPDATE locations SET structural_json=$1 WHERE id=$2 AND tenant_id=$3`,
		NewJSONB(structural), locationID, tenantID)
	if err != nil {
		return wrapErr("update_location_structural", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NotFound("Location", locationID)
	}
	return nil
}

func (s *Store) UpdateLocationGeocode(ctx context.Context, tenantID, locationID string, lat, lon, confidence float64, method string, tier domain.QualityTier, reasons []string) error {
	res, err := s.Querier(ctx).ExecContext(ctx, `
		UPDATE locations SET latitude=$1, longitude=$2, geocode_confidence=$3, geocode_method=$4,
			quality_tier=$5, quality_reasons=$6 WHERE id=$7 AND tenant_id=$8`,
		lat, lon, confidence, method, string(tier), NewJSONB(reasons), locationID, tenantID)
	if err != nil {
		return wrapErr("update_location_geocode", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NotFound("Location", locationID)
	}
	return nil
}
