package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/meridianrisk/exposure-engine/internal/apperrors"
	"github.com/meridianrisk/exposure-engine/internal/domain"
	"github.com/meridianrisk/exposure-engine/internal/store/memory"
)

func (s *Store) CreateHazardDataset(ctx context.Context, d *domain.HazardDataset) error {
	_, err := s.Querier(ctx).ExecContext(ctx,
		`INSERT INTO hazard_datasets (id, tenant_id, name, peril) VALUES ($1,$2,$3,$4)`,
		d.ID, d.TenantID, d.Name, d.Peril)
	return wrapErr("create_hazard_dataset", err)
}

func (s *Store) GetHazardDataset(ctx context.Context, tenantID, id string) (*domain.HazardDataset, error) {
	var row struct {
		ID       string `db:"id"`
		TenantID string `db:"tenant_id"`
		Name     string `db:"name"`
		Peril    string `db:"peril"`
	}
	err := s.Querier(ctx).GetContext(ctx, &row, `SELECT * FROM hazard_datasets WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("HazardDataset", id)
	}
	if err != nil {
		return nil, wrapErr("get_hazard_dataset", err)
	}
	return &domain.HazardDataset{ID: row.ID, TenantID: row.TenantID, Name: row.Name, Peril: row.Peril}, nil
}

func (s *Store) CreateHazardDatasetVersion(ctx context.Context, v *domain.HazardDatasetVersion) error {
	var effective sql.NullTime
	if v.EffectiveDate != nil {
		effective = sql.NullTime{Time: *v.EffectiveDate, Valid: true}
	}
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO hazard_dataset_versions (id, dataset_id, version_label, checksum, object_uri, effective_date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		v.ID, v.DatasetID, v.VersionLabel, v.Checksum, v.ObjectURI, effective, v.CreatedAt)
	return wrapErr("create_hazard_dataset_version", err)
}

func (s *Store) GetHazardDatasetVersion(ctx context.Context, id string) (*domain.HazardDatasetVersion, error) {
	var row struct {
		ID            string         `db:"id"`
		DatasetID     string         `db:"dataset_id"`
		VersionLabel  string         `db:"version_label"`
		Checksum      string         `db:"checksum"`
		ObjectURI     string         `db:"object_uri"`
		EffectiveDate sql.NullTime   `db:"effective_date"`
		CreatedAt     time.Time      `db:"created_at"`
	}
	err := s.Querier(ctx).GetContext(ctx, &row, `SELECT * FROM hazard_dataset_versions WHERE id=$1`, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("HazardDatasetVersion", id)
	}
	if err != nil {
		return nil, wrapErr("get_hazard_dataset_version", err)
	}
	out := &domain.HazardDatasetVersion{
		ID: row.ID, DatasetID: row.DatasetID, VersionLabel: row.VersionLabel,
		Checksum: row.Checksum, ObjectURI: row.ObjectURI, CreatedAt: row.CreatedAt,
	}
	if row.EffectiveDate.Valid {
		out.EffectiveDate = &row.EffectiveDate.Time
	}
	return out, nil
}

func (s *Store) InsertFeatures(ctx context.Context, hazardDatasetVersionID string, features []*domain.HazardFeaturePolygon) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		for _, f := range features {
			_, err := s.Querier(ctx).ExecContext(ctx, `
				INSERT INTO hazard_feature_polygons (hazard_dataset_version_id, geometry_wkt, peril, score, band, raw_properties)
				VALUES ($1,$2,$3,$4,$5,$6)`,
				hazardDatasetVersionID, f.GeometryWKT, f.Peril, PtrToNullFloat64(f.Score), f.Band, NewJSONB(f.RawProperties))
			if err != nil {
				return wrapErr("insert_hazard_feature_polygons", err)
			}
		}
		return nil
	})
}

// FeaturesContainingPoint does not use a PostGIS predicate such as
// ST_Contains: the bundled migration stores geometry as plain WKT text, so it
// fetches every feature row of the hazard dataset version and runs the same
// ray-casting test the in-memory store uses, giving identical results
// across backends.
func (s *Store) FeaturesContainingPoint(ctx context.Context, hazardDatasetVersionID string, lat, lon float64) ([]*domain.HazardFeaturePolygon, error) {
	var rows []struct {
		ID                     int64           `db:"id"`
		HazardDatasetVersionID string          `db:"hazard_dataset_version_id"`
		GeometryWKT            string          `db:"geometry_wkt"`
		Peril                  string          `db:"peril"`
		Score                  sql.NullFloat64 `db:"score"`
		Band                   string          `db:"band"`
		RawProperties          JSONB[map[string]any] `db:"raw_properties"`
	}
	err := s.Querier(ctx).SelectContext(ctx, &rows,
		`SELECT * FROM hazard_feature_polygons WHERE hazard_dataset_version_id=$1`, hazardDatasetVersionID)
	if err != nil {
		return nil, wrapErr("features_containing_point", err)
	}
	out := make([]*domain.HazardFeaturePolygon, 0)
	for _, r := range rows {
		if !memory.PointInPolygonWKT(r.GeometryWKT, lat, lon) {
			continue
		}
		out = append(out, &domain.HazardFeaturePolygon{
			ID: r.ID, HazardDatasetVersionID: r.HazardDatasetVersionID, GeometryWKT: r.GeometryWKT,
			Peril: r.Peril, Score: NullFloat64ToPtr(r.Score), Band: r.Band, RawProperties: r.RawProperties.Value,
		})
	}
	return out, nil
}

func (s *Store) HasOverlayReferencing(ctx context.Context, hazardDatasetVersionID string) (bool, error) {
	var n int
	err := s.Querier(ctx).GetContext(ctx, &n, `
		SELECT count(*) FROM hazard_overlay_results r
		JOIN location_hazard_attributes a ON a.overlay_result_id = r.id
		WHERE r.params->'hazard_dataset_version_ids' ? $1`, hazardDatasetVersionID)
	if err != nil {
		return false, wrapErr("has_overlay_referencing", err)
	}
	return n > 0, nil
}
