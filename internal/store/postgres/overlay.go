package postgres

import (
	"context"
	"database/sql"

	"github.com/meridianrisk/exposure-engine/internal/domain"
)

func (s *Store) CreateOverlayResult(ctx context.Context, r *domain.HazardOverlayResult) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO hazard_overlay_results (id, tenant_id, exposure_version_id, run_id, method, params,
			locations_processed, attributes_created, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		r.ID, r.TenantID, r.ExposureVersionID, r.RunID, r.Method, NewJSONB(r.Params),
		r.LocationsProcessed, r.AttributesCreated, r.CreatedAt)
	return wrapErr("create_overlay_result", err)
}

func (s *Store) InsertLocationHazardAttributes(ctx context.Context, attrs []*domain.LocationHazardAttribute) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		for _, a := range attrs {
			_, err := s.Querier(ctx).ExecContext(ctx, `
				INSERT INTO location_hazard_attributes (id, tenant_id, location_id, overlay_result_id,
					hazard_category, band, score, source, method, raw_properties)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
				a.ID, a.TenantID, a.LocationID, a.OverlayResultID, a.HazardCategory, a.Band,
				PtrToNullFloat64(a.Score), a.Source, a.Method, NewJSONB(a.RawProperties))
			if err != nil {
				return wrapErr("insert_location_hazard_attributes", err)
			}
		}
		return nil
	})
}

func (s *Store) ListLocationHazardAttributes(ctx context.Context, tenantID, overlayResultID string) ([]*domain.LocationHazardAttribute, error) {
	var rows []struct {
		ID              string                 `db:"id"`
		TenantID        string                 `db:"tenant_id"`
		LocationID      string                 `db:"location_id"`
		OverlayResultID string                 `db:"overlay_result_id"`
		HazardCategory  string                 `db:"hazard_category"`
		Band            string                 `db:"band"`
		Score           sql.NullFloat64        `db:"score"`
		Source          string                 `db:"source"`
		Method          string                 `db:"method"`
		RawProperties   JSONB[map[string]any]  `db:"raw_properties"`
	}
	err := s.Querier(ctx).SelectContext(ctx, &rows, `
		SELECT * FROM location_hazard_attributes WHERE tenant_id=$1 AND overlay_result_id=$2`,
		tenantID, overlayResultID)
	if err != nil {
		return nil, wrapErr("list_location_hazard_attributes", err)
	}
	out := make([]*domain.LocationHazardAttribute, 0, len(rows))
	for _, r := range rows {
		out = append(out, &domain.LocationHazardAttribute{
			ID: r.ID, TenantID: r.TenantID, LocationID: r.LocationID, OverlayResultID: r.OverlayResultID,
			HazardCategory: r.HazardCategory, Band: r.Band, Score: NullFloat64ToPtr(r.Score),
			Source: r.Source, Method: r.Method, RawProperties: r.RawProperties.Value,
		})
	}
	return out, nil
}
