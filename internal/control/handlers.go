package control

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridianrisk/exposure-engine/internal/apperrors"
	"github.com/meridianrisk/exposure-engine/internal/breach"
	"github.com/meridianrisk/exposure-engine/internal/canon"
	"github.com/meridianrisk/exposure-engine/internal/commit"
	"github.com/meridianrisk/exposure-engine/internal/domain"
	"github.com/meridianrisk/exposure-engine/internal/drift"
	"github.com/meridianrisk/exposure-engine/internal/enrichment"
	"github.com/meridianrisk/exposure-engine/internal/overlay"
	"github.com/meridianrisk/exposure-engine/internal/policy"
	"github.com/meridianrisk/exposure-engine/internal/resilience"
	"github.com/meridianrisk/exposure-engine/internal/rollup"
	"github.com/meridianrisk/exposure-engine/internal/runs"
	"github.com/meridianrisk/exposure-engine/internal/structural"
	"github.com/meridianrisk/exposure-engine/internal/underwriting"
	"github.com/meridianrisk/exposure-engine/internal/validation"
)

// registerHandlers binds the ten worker.Handler implementations below to
// their run_type and hands them to the dispatcher, the control-plane
// counterpart to internal/app/application.go wiring each domain service
// into the oracle dispatcher's resolver map.
func (a *Application) registerHandlers() {
	a.dispatcher.RegisterHandler(&validationHandler{app: a})
	a.dispatcher.RegisterHandler(&commitHandler{app: a})
	a.dispatcher.RegisterHandler(&geocodeHandler{app: a})
	a.dispatcher.RegisterHandler(&overlayHandler{app: a})
	a.dispatcher.RegisterHandler(&rollupHandler{app: a})
	a.dispatcher.RegisterHandler(&breachHandler{app: a})
	a.dispatcher.RegisterHandler(&driftHandler{app: a})
	a.dispatcher.RegisterHandler(&resilienceHandler{app: a})
	a.dispatcher.RegisterHandler(&enrichmentHandler{app: a})
	a.dispatcher.RegisterHandler(&underwritingHandler{app: a})
}

func str(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func strPtr(m map[string]any, key string) *string {
	v, ok := m[key].(string)
	if !ok || v == "" {
		return nil
	}
	return &v
}

func stringSlice(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		if ss, ok := m[key].([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func mapOf(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}

// coerceFloatPtr reads a *float64 hazard score back out of a map that may
// have round-tripped through JSONB (where it surfaces as float64 or nil)
// or stayed an in-process *float64 (the in-memory store).
func coerceFloatPtr(v any) *float64 {
	switch t := v.(type) {
	case *float64:
		return t
	case float64:
		f := t
		return &f
	default:
		return nil
	}
}

// --- VALIDATION ---------------------------------------------------------

type validationHandler struct{ app *Application }

func (h *validationHandler) RunType() domain.RunType { return domain.RunValidation }

func (h *validationHandler) Handle(ctx context.Context, reg *runs.Registry, run *domain.Run) error {
	uploadID := str(run.InputRefs, "upload_id")
	upload, err := h.app.Stores.GetUpload(ctx, run.TenantID, uploadID)
	if err != nil {
		return apperrors.NotFound("upload", uploadID)
	}
	raw, err := h.app.Objects.Get(ctx, run.TenantID, upload.ObjectURI)
	if err != nil {
		return apperrors.Provider(true, "object store read failed", err)
	}
	rows, err := parseCSVRows(raw)
	if err != nil {
		return apperrors.TaskFailure("malformed upload payload", err)
	}

	var template map[string]string
	mappingTemplateID := strPtr(run.InputRefs, "mapping_template_id")
	if mappingTemplateID == nil {
		mappingTemplateID = upload.MappingTemplateID
	}
	if mappingTemplateID != nil {
		tmpl, err := h.app.Stores.GetMappingTemplate(ctx, run.TenantID, *mappingTemplateID)
		if err != nil {
			return apperrors.NotFound("mapping_template", *mappingTemplateID)
		}
		template = tmpl.TemplateJSON
	}

	result, err := validation.Validate(rows, template)
	if err != nil {
		return apperrors.TaskFailure("validation failed", err)
	}

	artifact := canon.MustJSON(result.Issues)
	key := fmt.Sprintf("validation/%s/issues.json", run.ID)
	uri, checksum, err := h.app.Objects.Put(ctx, run.TenantID, key, artifact)
	if err != nil {
		return apperrors.Provider(true, "object store write failed", err)
	}

	vr := &domain.ValidationResult{
		ID:                uuid.New().String(),
		TenantID:          run.TenantID,
		UploadID:          uploadID,
		MappingTemplateID: mappingTemplateID,
		SummaryJSON: domain.ValidationSummary{
			Error: result.Summary.Error, Warn: result.Summary.Warn,
			Info: result.Summary.Info, TotalRows: result.Summary.TotalRows,
		},
		RowErrorsURI: uri,
		Checksum:     checksum,
		RunID:        run.ID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.app.Stores.CreateValidationResult(ctx, vr); err != nil {
		return apperrors.DatabaseError("create_validation_result", err)
	}

	_, err = reg.Succeed(ctx, run.TenantID, run.ID,
		map[string]string{"validation_result_id": vr.ID, "error_count": fmt.Sprint(result.Summary.Error)},
		map[string]string{"row_errors": checksum})
	return err
}

// --- COMMIT --------------------------------------------------------------

type commitHandler struct{ app *Application }

func (h *commitHandler) RunType() domain.RunType { return domain.RunCommit }

func (h *commitHandler) Handle(ctx context.Context, reg *runs.Registry, run *domain.Run) error {
	uploadID := str(run.InputRefs, "upload_id")
	mappingTemplateID := str(run.InputRefs, "mapping_template_id")
	upload, err := h.app.Stores.GetUpload(ctx, run.TenantID, uploadID)
	if err != nil {
		return apperrors.NotFound("upload", uploadID)
	}

	if upload.IdempotencyKey != nil {
		if existing, _ := h.app.Stores.FindExposureVersionByIdempotencyKey(ctx, run.TenantID, uploadID, *upload.IdempotencyKey); existing != nil {
			_, err := reg.Succeed(ctx, run.TenantID, run.ID,
				map[string]string{"exposure_version_id": existing.ID, "idempotent_replay": "true"}, nil)
			return err
		}
	}

	tmpl, err := h.app.Stores.GetMappingTemplate(ctx, run.TenantID, mappingTemplateID)
	if err != nil {
		return apperrors.NotFound("mapping_template", mappingTemplateID)
	}
	raw, err := h.app.Objects.Get(ctx, run.TenantID, upload.ObjectURI)
	if err != nil {
		return apperrors.Provider(true, "object store read failed", err)
	}
	rows, err := parseCSVRows(raw)
	if err != nil {
		return apperrors.TaskFailure("malformed upload payload", err)
	}

	defaultCurrency := str(run.ConfigRefs, "default_currency")
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}

	ev := &domain.ExposureVersion{
		ID:                uuid.New().String(),
		TenantID:          run.TenantID,
		UploadID:          uploadID,
		MappingTemplateID: &mappingTemplateID,
		IdempotencyKey:    upload.IdempotencyKey,
		Name:              str(run.InputRefs, "name"),
		CreatedAt:         time.Now().UTC(),
	}

	mapped := make([]commit.MappedRow, 0, len(rows))
	for _, row := range rows {
		mapped = append(mapped, validation.ApplyMapping(row, tmpl.TemplateJSON))
	}
	locations := commit.CanonicalizeRows(mapped, ev.ID, run.TenantID, defaultCurrency)
	ev.LocationCount = len(locations)
	ev.TIVSum = commit.TIVSum(locations)

	if err := h.app.Stores.CreateExposureVersion(ctx, ev); err != nil {
		return apperrors.DatabaseError("create_exposure_version", err)
	}

	const batchSize = 500
	for i := 0; i < len(locations); i += batchSize {
		end := i + batchSize
		if end > len(locations) {
			end = len(locations)
		}
		if err := h.app.Stores.BulkInsertLocations(ctx, locations[i:end]); err != nil {
			return apperrors.DatabaseError("bulk_insert_locations", err)
		}
		if err := reg.UpdateProgress(ctx, run.TenantID, run.ID, map[string]any{"processed": end, "total": len(locations)}); err != nil {
			return err
		}
		ok, err := reg.ShouldContinue(ctx, run.TenantID, run.ID)
		if err != nil {
			return err
		}
		if !ok {
			_, err := reg.ObserveCancel(ctx, run.TenantID, run.ID, map[string]any{"exposure_version_id": ev.ID})
			return err
		}
	}

	_, err = reg.Succeed(ctx, run.TenantID, run.ID,
		map[string]string{"exposure_version_id": ev.ID, "location_count": fmt.Sprint(ev.LocationCount)}, nil)
	return err
}

// --- GEOCODE (property enrichment over an exposure version's locations) --

type geocodeHandler struct{ app *Application }

func (h *geocodeHandler) RunType() domain.RunType { return domain.RunGeocode }

func (h *geocodeHandler) Handle(ctx context.Context, reg *runs.Registry, run *domain.Run) error {
	exposureVersionID := str(run.InputRefs, "exposure_version_id")
	locations, err := h.app.Stores.ListLocations(ctx, run.TenantID, exposureVersionID)
	if err != nil {
		return apperrors.DatabaseError("list_locations", err)
	}

	processed := 0
	for _, loc := range locations {
		address := map[string]any{
			"address_line1": loc.AddressLine1, "city": loc.City,
			"state_region": loc.StateRegion, "postal_code": loc.PostalCode, "country": loc.Country,
		}
		profile, err := enrichment.Run(ctx, h.app.Geocoder, h.app.Parcel, h.app.Characteristics, address, run.CodeVersion, time.Now())
		if err != nil {
			if ae, ok := apperrors.As(err); ok {
				return ae
			}
			return apperrors.Provider(true, "geocode provider call failed", err)
		}
		geocode := profile.GeocodeJSON
		lat, _ := geocode["Lat"].(float64)
		lon, _ := geocode["Lon"].(float64)
		confidence, _ := geocode["Confidence"].(float64)
		tier, reasons := qualityFromConfidence(confidence)
		if err := h.app.Stores.UpdateLocationGeocode(ctx, run.TenantID, loc.ID, lat, lon, confidence, str(geocode, "Provider"), tier, reasons); err != nil {
			return apperrors.DatabaseError("update_location_geocode", err)
		}

		processed++
		if processed%100 == 0 {
			if err := reg.UpdateProgress(ctx, run.TenantID, run.ID, map[string]any{"processed": processed, "total": len(locations)}); err != nil {
				return err
			}
			ok, err := reg.ShouldContinue(ctx, run.TenantID, run.ID)
			if err != nil {
				return err
			}
			if !ok {
				_, err := reg.ObserveCancel(ctx, run.TenantID, run.ID, map[string]any{"processed": processed, "total": len(locations)})
				return err
			}
		}
	}

	_, err = reg.Succeed(ctx, run.TenantID, run.ID, map[string]string{"processed": fmt.Sprint(processed)}, nil)
	return err
}

func qualityFromConfidence(confidence float64) (domain.QualityTier, []string) {
	switch {
	case confidence >= 0.9:
		return domain.QualityTierHigh, nil
	case confidence >= 0.6:
		return domain.QualityTierMedium, []string{"moderate_geocode_confidence"}
	default:
		return domain.QualityTierLow, []string{"low_geocode_confidence"}
	}
}

// --- OVERLAY ---------------------------------------------------------------

type overlayHandler struct{ app *Application }

func (h *overlayHandler) RunType() domain.RunType { return domain.RunOverlay }

func (h *overlayHandler) Handle(ctx context.Context, reg *runs.Registry, run *domain.Run) error {
	exposureVersionID := str(run.InputRefs, "exposure_version_id")
	hazardVersionIDs := stringSlice(run.InputRefs, "hazard_dataset_version_ids")

	locations, err := h.app.Stores.ListLocations(ctx, run.TenantID, exposureVersionID)
	if err != nil {
		return apperrors.DatabaseError("list_locations", err)
	}

	type versionWithDataset struct {
		version *domain.HazardDatasetVersion
		dataset *domain.HazardDataset
	}
	versions := make([]versionWithDataset, 0, len(hazardVersionIDs))
	for _, id := range hazardVersionIDs {
		v, err := h.app.Stores.GetHazardDatasetVersion(ctx, id)
		if err != nil {
			return apperrors.NotFound("hazard_dataset_version", id)
		}
		dataset, err := h.app.Stores.GetHazardDataset(ctx, run.TenantID, v.DatasetID)
		if err != nil {
			return apperrors.NotFound("hazard_dataset", v.DatasetID)
		}
		versions = append(versions, versionWithDataset{version: v, dataset: dataset})
	}

	overlayResult := &domain.HazardOverlayResult{
		ID:                uuid.New().String(),
		TenantID:          run.TenantID,
		ExposureVersionID: exposureVersionID,
		RunID:             run.ID,
		Method:            "POSTGIS_SPATIAL_JOIN",
		Params:            map[string]any{"hazard_dataset_version_ids": hazardVersionIDs},
		CreatedAt:         time.Now().UTC(),
	}
	if err := h.app.Stores.CreateOverlayResult(ctx, overlayResult); err != nil {
		return apperrors.DatabaseError("create_overlay_result", err)
	}

	processed, skipped, attributesCreated := 0, 0, 0
	var attrs []*domain.LocationHazardAttribute
	for _, loc := range locations {
		if loc.Latitude == nil || loc.Longitude == nil {
			skipped++
			continue
		}
		hazards := map[string]overlay.HazardEntry{}
		for _, vd := range versions {
			features, err := h.app.Stores.FeaturesContainingPoint(ctx, vd.version.ID, *loc.Latitude, *loc.Longitude)
			if err != nil {
				return apperrors.DatabaseError("features_containing_point", err)
			}
			for _, f := range features {
				entry := overlay.ExtractEntry(f, vd.dataset.Peril, vd.dataset.Name, vd.version.VersionLabel)
				hazards = overlay.MergeWorstInPeril(hazards, entry)
			}
		}
		if best, ok := overlay.Representative(hazards); ok {
			attrs = append(attrs, &domain.LocationHazardAttribute{
				ID: uuid.New().String(), TenantID: run.TenantID, LocationID: loc.ID,
				OverlayResultID: overlayResult.ID, HazardCategory: best.Peril, Band: best.Band,
				Score: best.Score, Source: best.Source, Method: "POSTGIS_SPATIAL_JOIN", RawProperties: best.Raw,
			})
			attributesCreated++
		}
		processed++

		if processed%200 == 0 {
			if err := h.app.Stores.InsertLocationHazardAttributes(ctx, attrs); err != nil {
				return apperrors.DatabaseError("insert_location_hazard_attributes", err)
			}
			attrs = nil
			if err := reg.UpdateProgress(ctx, run.TenantID, run.ID, map[string]any{"processed": processed, "total": len(locations)}); err != nil {
				return err
			}
			ok, err := reg.ShouldContinue(ctx, run.TenantID, run.ID)
			if err != nil {
				return err
			}
			if !ok {
				_, err := reg.ObserveCancel(ctx, run.TenantID, run.ID, map[string]any{"overlay_result_id": overlayResult.ID, "processed": processed})
				return err
			}
		}
	}
	if len(attrs) > 0 {
		if err := h.app.Stores.InsertLocationHazardAttributes(ctx, attrs); err != nil {
			return apperrors.DatabaseError("insert_location_hazard_attributes", err)
		}
	}

	_, err = reg.Succeed(ctx, run.TenantID, run.ID, map[string]string{
		"overlay_result_id":  overlayResult.ID,
		"locations":          fmt.Sprint(processed),
		"locations_skipped":  fmt.Sprint(skipped),
		"attributes_created": fmt.Sprint(attributesCreated),
	}, nil)
	return err
}

// --- ROLLUP ----------------------------------------------------------------

type rollupHandler struct{ app *Application }

func (h *rollupHandler) RunType() domain.RunType { return domain.RunRollup }

func (h *rollupHandler) Handle(ctx context.Context, reg *runs.Registry, run *domain.Run) error {
	exposureVersionID := str(run.InputRefs, "exposure_version_id")
	rollupConfigID := str(run.InputRefs, "rollup_config_id")

	cfg, err := h.app.Stores.GetRollupConfig(ctx, run.TenantID, rollupConfigID)
	if err != nil {
		return apperrors.NotFound("rollup_config", rollupConfigID)
	}
	locations, err := h.app.Stores.ListLocations(ctx, run.TenantID, exposureVersionID)
	if err != nil {
		return apperrors.DatabaseError("list_locations", err)
	}

	records := make([]rollup.Record, 0, len(locations))
	for _, loc := range locations {
		records = append(records, underwriting.BuildLocationRecord(loc, nil))
	}

	result, err := rollup.Aggregate(records, cfg.Dimensions, cfg.Filters, cfg.Measures)
	if err != nil {
		return apperrors.TaskFailure("rollup aggregation failed", err)
	}

	rr := &domain.RollupResult{
		ID: uuid.New().String(), TenantID: run.TenantID, RollupConfigID: rollupConfigID,
		RunID: run.ID, Checksum: result.Checksum, CreatedAt: time.Now().UTC(),
	}
	if err := h.app.Stores.CreateRollupResult(ctx, rr); err != nil {
		return apperrors.DatabaseError("create_rollup_result", err)
	}

	items := make([]*domain.RollupResultItem, 0, len(result.Items))
	for _, item := range result.Items {
		digest, _, err := canon.Hash(item.RollupKeyJSON)
		if err != nil {
			return apperrors.TaskFailure("rollup key hash failed", err)
		}
		items = append(items, &domain.RollupResultItem{
			ID: uuid.New().String(), TenantID: run.TenantID, RollupResultID: rr.ID,
			RollupKeyJSON: item.RollupKeyJSON, RollupKeyHash: digest, MetricsJSON: item.MetricsJSON,
		})
	}
	if err := h.app.Stores.InsertRollupResultItems(ctx, items); err != nil {
		return apperrors.DatabaseError("insert_rollup_result_items", err)
	}

	_, err = reg.Succeed(ctx, run.TenantID, run.ID,
		map[string]string{"rollup_result_id": rr.ID, "item_count": fmt.Sprint(len(items))},
		map[string]string{"rollup_result": result.Checksum})
	return err
}

// --- BREACH_EVAL -------------------------------------------------------

type breachHandler struct{ app *Application }

func (h *breachHandler) RunType() domain.RunType { return domain.RunBreachEval }

func (h *breachHandler) Handle(ctx context.Context, reg *runs.Registry, run *domain.Run) error {
	exposureVersionID := str(run.InputRefs, "exposure_version_id")
	rollupResultID := str(run.InputRefs, "rollup_result_id")

	items, err := h.app.Stores.ListRollupResultItems(ctx, run.TenantID, rollupResultID)
	if err != nil {
		return apperrors.DatabaseError("list_rollup_result_items", err)
	}

	rules, err := h.app.Stores.ListActiveRules(ctx, run.TenantID)
	if err != nil {
		return apperrors.DatabaseError("list_active_rules", err)
	}

	now := time.Now().UTC()
	total := 0
	for _, rule := range rules {
		matches := breach.EvaluateRule(rule, items)
		existing, err := h.app.Stores.ListBreachesForRule(ctx, run.TenantID, rule.ID, exposureVersionID)
		if err != nil {
			return apperrors.DatabaseError("list_breaches_for_rule", err)
		}
		reconciled := breach.Reconcile(rule, matches, existing, now)
		for _, b := range reconciled {
			b.TenantID = run.TenantID
			b.ExposureVersionID = exposureVersionID
			if err := h.app.Stores.UpsertBreach(ctx, b); err != nil {
				return apperrors.DatabaseError("upsert_breach", err)
			}
			total++
		}
	}

	ok, err := reg.ShouldContinue(ctx, run.TenantID, run.ID)
	if err != nil {
		return err
	}
	if !ok {
		_, err := reg.ObserveCancel(ctx, run.TenantID, run.ID, map[string]any{"breaches": total})
		return err
	}

	_, err = reg.Succeed(ctx, run.TenantID, run.ID, map[string]string{"breaches": fmt.Sprint(total)}, nil)
	return err
}

// --- DRIFT -----------------------------------------------------------------

type driftHandler struct{ app *Application }

func (h *driftHandler) RunType() domain.RunType { return domain.RunDrift }

func (h *driftHandler) Handle(ctx context.Context, reg *runs.Registry, run *domain.Run) error {
	versionAID := str(run.InputRefs, "exposure_version_a_id")
	versionBID := str(run.InputRefs, "exposure_version_b_id")

	locationsA, err := h.app.Stores.ListLocations(ctx, run.TenantID, versionAID)
	if err != nil {
		return apperrors.DatabaseError("list_locations", err)
	}
	locationsB, err := h.app.Stores.ListLocations(ctx, run.TenantID, versionBID)
	if err != nil {
		return apperrors.DatabaseError("list_locations", err)
	}

	result, err := drift.Compute(locationsA, locationsB)
	if err != nil {
		return apperrors.TaskFailure("drift computation failed", err)
	}

	artifact := canon.MustJSON(result.Details)
	key := fmt.Sprintf("drift/%s/details.json", run.ID)
	uri, checksum, err := h.app.Objects.Put(ctx, run.TenantID, key, artifact)
	if err != nil {
		return apperrors.Provider(true, "object store write failed", err)
	}

	dr := &domain.DriftRun{
		ID: uuid.New().String(), TenantID: run.TenantID,
		ExposureVersionAID: versionAID, ExposureVersionBID: versionBID, RunID: run.ID,
		SummaryJSON: domain.DriftSummary{New: result.Summary.New, Removed: result.Summary.Removed, Modified: result.Summary.Modified, Total: result.Summary.Total},
		ArtifactURI: uri, Checksum: checksum, CreatedAt: time.Now().UTC(),
	}
	if err := h.app.Stores.CreateDriftRun(ctx, dr); err != nil {
		return apperrors.DatabaseError("create_drift_run", err)
	}

	details := make([]*domain.DriftDetail, 0, len(result.Details))
	for _, d := range result.Details {
		details = append(details, &domain.DriftDetail{
			ID: uuid.New().String(), TenantID: run.TenantID, DriftRunID: dr.ID,
			ExternalLocationID: d.ExternalLocationID, Classification: d.Classification, DeltaJSON: d.DeltaJSON,
		})
	}
	if err := h.app.Stores.InsertDriftDetails(ctx, details); err != nil {
		return apperrors.DatabaseError("insert_drift_details", err)
	}

	_, err = reg.Succeed(ctx, run.TenantID, run.ID,
		map[string]string{"drift_run_id": dr.ID, "total": fmt.Sprint(result.Summary.Total)},
		map[string]string{"drift_artifact": checksum})
	return err
}

// --- RESILIENCE_SCORE --------------------------------------------------

type resilienceHandler struct{ app *Application }

func (h *resilienceHandler) RunType() domain.RunType { return domain.RunResilienceScore }

func (h *resilienceHandler) Handle(ctx context.Context, reg *runs.Registry, run *domain.Run) error {
	exposureVersionID := str(run.InputRefs, "exposure_version_id")
	hazardVersionIDs := stringSlice(run.InputRefs, "hazard_dataset_version_ids")
	policyPackVersionID := strPtr(run.InputRefs, "policy_pack_version_id")

	resolved, err := policy.ResolveVersion(ctx, h.app.Stores, run.TenantID, policyPackVersionID)
	if err != nil {
		return err
	}
	cfg := resilience.ConfigFromMap(resolved.ScoringConfig)

	locations, err := h.app.Stores.ListLocations(ctx, run.TenantID, exposureVersionID)
	if err != nil {
		return apperrors.DatabaseError("list_locations", err)
	}

	overlayResultID := str(run.InputRefs, "overlay_result_id")
	attrs, err := h.app.Stores.ListLocationHazardAttributes(ctx, run.TenantID, overlayResultID)
	if err != nil {
		return apperrors.DatabaseError("list_location_hazard_attributes", err)
	}
	byLocation := make(map[string][]*domain.LocationHazardAttribute)
	for _, a := range attrs {
		byLocation[a.LocationID] = append(byLocation[a.LocationID], a)
	}

	result := &domain.ResilienceScoreResult{
		ID: uuid.New().String(), TenantID: run.TenantID, ExposureVersionID: exposureVersionID,
		RunID: run.ID, RequestFingerprint: str(run.InputRefs, "request_fingerprint"),
		PolicyPackVersionID: resolved.Meta.PolicyPackVersionID, HazardVersionIDs: hazardVersionIDs,
		ScoringConfig: resolved.ScoringConfig, ScoringVersion: resolved.Meta.VersionLabel,
		CodeVersion: run.CodeVersion, LocationsProcessed: len(locations), CreatedAt: time.Now().UTC(),
	}
	if err := h.app.Stores.CreateResult(ctx, result); err != nil {
		return apperrors.DatabaseError("create_resilience_result", err)
	}

	processed, skippedMissingCoords := 0, 0
	var items []*domain.ResilienceScoreItem
	for _, loc := range locations {
		if loc.Latitude == nil || loc.Longitude == nil {
			skippedMissingCoords++
			continue
		}
		hazards := map[string]resilience.HazardInput{}
		hazardsJSON := map[string]any{}
		for _, a := range byLocation[loc.ID] {
			hazards[a.HazardCategory] = resilience.HazardInput{Score: a.Score, Band: a.Band}
			hazardsJSON[a.HazardCategory] = map[string]any{"score": a.Score, "band": a.Band}
		}
		structuralUsed := structural.Normalize(loc.StructuralJSON)
		scored := resilience.Score(hazards, structuralUsed, cfg)

		perilScores := make(map[string]domain.PerilScore, len(scored.PerilScores))
		for k, v := range scored.PerilScores {
			perilScores[k] = domain.PerilScore{Raw: v.Raw, Adjusted: v.Adjusted, Weight: v.Weight}
		}

		items = append(items, &domain.ResilienceScoreItem{
			ID: uuid.New().String(), TenantID: run.TenantID, ResultID: result.ID, LocationID: loc.ID,
			ResilienceScore: scored.ResilienceScore, RiskScore: scored.RiskScore, PerilScores: perilScores,
			StructuralAdjustments: scored.StructuralAdjustments, Warnings: scored.Warnings,
			HazardsJSON: hazardsJSON, StructuralJSON: structuralUsed.ToMap(), InputStructuralJSON: loc.StructuralJSON,
		})
		processed++

		if processed%200 == 0 {
			if err := h.app.Stores.InsertItems(ctx, items); err != nil {
				return apperrors.DatabaseError("insert_resilience_items", err)
			}
			items = nil
			if err := reg.UpdateProgress(ctx, run.TenantID, run.ID, map[string]any{"processed": processed, "total": len(locations)}); err != nil {
				return err
			}
			ok, err := reg.ShouldContinue(ctx, run.TenantID, run.ID)
			if err != nil {
				return err
			}
			if !ok {
				_, err := reg.ObserveCancel(ctx, run.TenantID, run.ID, map[string]any{"resilience_result_id": result.ID, "processed": processed})
				return err
			}
		}
	}
	if len(items) > 0 {
		if err := h.app.Stores.InsertItems(ctx, items); err != nil {
			return apperrors.DatabaseError("insert_resilience_items", err)
		}
	}

	_, err = reg.Succeed(ctx, run.TenantID, run.ID,
		map[string]string{
			"resilience_result_id":   result.ID,
			"locations_processed":    fmt.Sprint(processed),
			"skipped_missing_coords": fmt.Sprint(skippedMissingCoords),
		}, nil)
	return err
}

// --- PROPERTY_ENRICHMENT ----------------------------------------------

type enrichmentHandler struct{ app *Application }

func (h *enrichmentHandler) RunType() domain.RunType { return domain.RunPropertyEnrichment }

func (h *enrichmentHandler) Handle(ctx context.Context, reg *runs.Registry, run *domain.Run) error {
	address := mapOf(run.InputRefs, "address")
	normalized := enrichment.NormalizeAddress(address)
	fingerprint, err := enrichment.AddressFingerprint(normalized)
	if err != nil {
		return apperrors.TaskFailure("address fingerprint failed", err)
	}

	if existing, _ := h.app.Stores.FindByFingerprint(ctx, run.TenantID, fingerprint); existing != nil {
		if enrichment.IsFresh(&existing.UpdatedAt, time.Now(), 30) {
			_, err := reg.Succeed(ctx, run.TenantID, run.ID,
				map[string]string{"property_profile_id": existing.ID, "cache_hit": "true"}, nil)
			return err
		}
	}

	profile, err := enrichment.Run(ctx, h.app.Geocoder, h.app.Parcel, h.app.Characteristics, normalized, run.CodeVersion, time.Now())
	if err != nil {
		if ae, ok := apperrors.As(err); ok {
			return ae
		}
		return apperrors.Provider(true, "enrichment provider call failed", err)
	}

	pp := &domain.PropertyProfile{
		ID: uuid.New().String(), TenantID: run.TenantID, AddressFingerprint: profile.AddressFingerprint,
		StandardizedAddress: profile.StandardizedAddress, GeocodeJSON: profile.GeocodeJSON,
		ParcelJSON: profile.ParcelJSON, CharacteristicsJSON: profile.CharacteristicsJSON,
		StructuralJSON: profile.StructuralJSON, ProvenanceJSON: profile.ProvenanceJSON, UpdatedAt: time.Now().UTC(),
	}
	if err := h.app.Stores.Upsert(ctx, pp); err != nil {
		return apperrors.DatabaseError("upsert_property_profile", err)
	}

	_, err = reg.Succeed(ctx, run.TenantID, run.ID, map[string]string{"property_profile_id": pp.ID}, nil)
	return err
}

// --- UW_EVAL -------------------------------------------------------------

type underwritingHandler struct{ app *Application }

func (h *underwritingHandler) RunType() domain.RunType { return domain.RunUWEval }

func (h *underwritingHandler) Handle(ctx context.Context, reg *runs.Registry, run *domain.Run) error {
	resilienceResultID := str(run.InputRefs, "resilience_result_id")
	locationID := str(run.InputRefs, "location_id")
	policyPackVersionID := strPtr(run.InputRefs, "policy_pack_version_id")

	resolved, err := policy.ResolveVersion(ctx, h.app.Stores, run.TenantID, policyPackVersionID)
	if err != nil {
		return err
	}
	pol := underwriting.PolicyFromMap(resolved.UnderwritingPolicy)

	items, err := h.app.Stores.ListItems(ctx, run.TenantID, resilienceResultID)
	if err != nil {
		return apperrors.DatabaseError("list_resilience_items", err)
	}
	var item *domain.ResilienceScoreItem
	for _, it := range items {
		if it.LocationID == locationID {
			item = it
			break
		}
	}
	if item == nil {
		return apperrors.NotFound("resilience_score_item", locationID)
	}

	hazards := make(map[string]underwriting.HazardInput, len(item.HazardsJSON))
	for peril, v := range item.HazardsJSON {
		m, _ := v.(map[string]any)
		hazards[peril] = underwriting.HazardInput{Score: coerceFloatPtr(m["score"])}
	}

	decision := underwriting.EvaluateDecision(item.ResilienceScore, hazards, item.StructuralJSON,
		underwriting.DataQuality{}, pol)

	artifact := canon.MustJSON(decision)
	key := fmt.Sprintf("uw-eval/%s/decision.json", run.ID)
	_, checksum, err := h.app.Objects.Put(ctx, run.TenantID, key, artifact)
	if err != nil {
		return apperrors.Provider(true, "object store write failed", err)
	}

	ok, err := reg.ShouldContinue(ctx, run.TenantID, run.ID)
	if err != nil {
		return err
	}
	if !ok {
		_, err := reg.ObserveCancel(ctx, run.TenantID, run.ID, nil)
		return err
	}

	_, err = reg.Succeed(ctx, run.TenantID, run.ID,
		map[string]string{"decision": decision.Decision, "location_id": locationID},
		map[string]string{"decision_artifact": checksum})
	return err
}
