package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridianrisk/exposure-engine/internal/apperrors"
	"github.com/meridianrisk/exposure-engine/internal/canon"
	"github.com/meridianrisk/exposure-engine/internal/control"
	"github.com/meridianrisk/exposure-engine/internal/domain"
	"github.com/meridianrisk/exposure-engine/internal/enrichment"
	"github.com/meridianrisk/exposure-engine/internal/lineage"
	"github.com/meridianrisk/exposure-engine/internal/logging"
	"github.com/meridianrisk/exposure-engine/internal/resilience"
	"github.com/meridianrisk/exposure-engine/internal/runs"
	"github.com/meridianrisk/exposure-engine/internal/structural"
)

type handler struct {
	app *control.Application
	log *logging.Logger
}

func (h *handler) recordAudit(r *http.Request, action string, metadata map[string]any) {
	caller := callerFromContext(r.Context())
	h.log.LogAudit(r.Context(), action, metadata)
	_ = h.app.Stores.RecordAudit(r.Context(), &domain.AuditEvent{
		ID: uuid.New().String(), TenantID: caller.TenantID, Action: action,
		UserID: caller.UserID, Metadata: metadata, CreatedAt: time.Now().UTC(),
	})
}

func pathSegments(r *http.Request, prefix string) []string {
	trimmed := strings.TrimPrefix(r.URL.Path, prefix)
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// --- uploads -------------------------------------------------------------

func (h *handler) uploads(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())
	if r.Method != http.MethodPost {
		writeError(w, requestID, apperrors.Validation("method not allowed"))
		return
	}
	if err := requireRole(r.Context(), mutatingRoles...); err != nil {
		writeError(w, requestID, err)
		return
	}
	caller := callerFromContext(r.Context())

	filename := strings.TrimSpace(r.Header.Get("X-Filename"))
	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	if idempotencyKey != "" {
		if existing, _ := h.app.Stores.GetUploadByIdempotencyKey(r.Context(), caller.TenantID, idempotencyKey); existing != nil {
			writeJSON(w, http.StatusOK, map[string]string{"upload_id": existing.ID, "object_uri": existing.ObjectURI})
			return
		}
	}

	body := r.Body
	defer body.Close()
	buf := make([]byte, 0)
	chunk := make([]byte, 64*1024)
	for {
		n, err := body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	if len(buf) == 0 {
		writeError(w, requestID, apperrors.Validation("file_bytes is required"))
		return
	}

	upload := &domain.ExposureUpload{
		ID:        uuid.New().String(),
		TenantID:  caller.TenantID,
		CreatedAt: time.Now().UTC(),
	}
	if idempotencyKey != "" {
		upload.IdempotencyKey = &idempotencyKey
	}
	key := fmt.Sprintf("uploads/%s/%s", upload.ID, filenameOrDefault(filename))
	uri, checksum, err := h.app.Objects.Put(r.Context(), caller.TenantID, key, buf)
	if err != nil {
		writeError(w, requestID, apperrors.Provider(true, "object store write failed", err))
		return
	}
	upload.ObjectURI = uri
	upload.Checksum = checksum

	if err := h.app.Stores.CreateUpload(r.Context(), upload); err != nil {
		writeError(w, requestID, apperrors.DatabaseError("create_upload", err))
		return
	}
	h.recordAudit(r, "upload.created", map[string]any{"upload_id": upload.ID})
	writeJSON(w, http.StatusCreated, map[string]string{"upload_id": upload.ID, "object_uri": upload.ObjectURI})
}

func filenameOrDefault(name string) string {
	if name == "" {
		return "upload.csv"
	}
	return name
}

func (h *handler) uploadResources(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())
	segs := pathSegments(r, "/uploads/")
	if len(segs) != 2 {
		writeError(w, requestID, apperrors.NotFound("route", r.URL.Path))
		return
	}
	uploadID, action := segs[0], segs[1]
	caller := callerFromContext(r.Context())

	switch action {
	case "mapping":
		h.attachMapping(w, r, uploadID, caller)
	case "validate":
		h.validateUpload(w, r, uploadID, caller)
	case "commit":
		h.commitUpload(w, r, uploadID, caller)
	default:
		writeError(w, requestID, apperrors.NotFound("route", r.URL.Path))
	}
}

func (h *handler) attachMapping(w http.ResponseWriter, r *http.Request, uploadID string, caller Caller) {
	requestID := requestIDFromContext(r.Context())
	if err := requireRole(r.Context(), mutatingRoles...); err != nil {
		writeError(w, requestID, err)
		return
	}
	var req struct {
		Name       string            `json:"name"`
		MappingMap map[string]string `json:"mapping_json"`
	}
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, requestID, apperrors.Validation("invalid request body"))
		return
	}
	if req.Name == "" || len(req.MappingMap) == 0 {
		writeError(w, requestID, apperrors.Validation("name and mapping_json are required"))
		return
	}

	existing, _ := h.app.Stores.LatestMappingTemplate(r.Context(), caller.TenantID, req.Name)
	version := 1
	if existing != nil {
		version = existing.Version + 1
	}
	tmpl := &domain.MappingTemplate{
		ID: uuid.New().String(), TenantID: caller.TenantID, Name: req.Name,
		Version: version, TemplateJSON: req.MappingMap, CreatedAt: time.Now().UTC(),
	}
	if err := h.app.Stores.CreateMappingTemplate(r.Context(), tmpl); err != nil {
		writeError(w, requestID, apperrors.DatabaseError("create_mapping_template", err))
		return
	}
	if err := h.app.Stores.AttachMapping(r.Context(), caller.TenantID, uploadID, tmpl.ID); err != nil {
		writeError(w, requestID, apperrors.DatabaseError("attach_mapping", err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"mapping_template_id": tmpl.ID, "name": tmpl.Name, "version": tmpl.Version})
}

func (h *handler) validateUpload(w http.ResponseWriter, r *http.Request, uploadID string, caller Caller) {
	requestID := requestIDFromContext(r.Context())
	if err := requireRole(r.Context(), mutatingRoles...); err != nil {
		writeError(w, requestID, err)
		return
	}
	run, err := h.app.Runs.Create(r.Context(), runs.CreateInput{
		TenantID: caller.TenantID, RunType: domain.RunValidation,
		InputRefs: map[string]any{"upload_id": uploadID},
		CreatedBy: caller.UserID, RequestID: requestID,
	})
	if err != nil {
		writeError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID, "status": string(run.Status)})
}

func (h *handler) commitUpload(w http.ResponseWriter, r *http.Request, uploadID string, caller Caller) {
	requestID := requestIDFromContext(r.Context())
	if err := requireRole(r.Context(), mutatingRoles...); err != nil {
		writeError(w, requestID, err)
		return
	}
	var req struct {
		Name              string `json:"name"`
		MappingTemplateID string `json:"mapping_template_id"`
	}
	_ = decodeJSON(r.Body, &req)

	upload, err := h.app.Stores.GetUpload(r.Context(), caller.TenantID, uploadID)
	if err != nil {
		writeError(w, requestID, apperrors.NotFound("upload", uploadID))
		return
	}
	mappingTemplateID := req.MappingTemplateID
	if mappingTemplateID == "" && upload.MappingTemplateID != nil {
		mappingTemplateID = *upload.MappingTemplateID
	}
	if mappingTemplateID == "" {
		writeError(w, requestID, apperrors.Validation("mapping_template_id is required"))
		return
	}

	run, err := h.app.Runs.Create(r.Context(), runs.CreateInput{
		TenantID: caller.TenantID, RunType: domain.RunCommit,
		InputRefs: map[string]any{"upload_id": uploadID, "mapping_template_id": mappingTemplateID, "name": req.Name},
		CreatedBy: caller.UserID, RequestID: requestID,
	})
	if err != nil {
		writeError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID, "status": string(run.Status)})
}

// --- hazard datasets -------------------------------------------------------

func (h *handler) hazardDatasets(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())
	if err := requireRole(r.Context(), mutatingRoles...); err != nil {
		writeError(w, requestID, err)
		return
	}
	caller := callerFromContext(r.Context())
	var req struct {
		Name  string `json:"name"`
		Peril string `json:"peril"`
	}
	if err := decodeJSON(r.Body, &req); err != nil || req.Name == "" || req.Peril == "" {
		writeError(w, requestID, apperrors.Validation("name and peril are required"))
		return
	}
	ds := &domain.HazardDataset{ID: uuid.New().String(), TenantID: caller.TenantID, Name: req.Name, Peril: req.Peril}
	if err := h.app.Stores.CreateHazardDataset(r.Context(), ds); err != nil {
		writeError(w, requestID, apperrors.DatabaseError("create_hazard_dataset", err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": ds.ID})
}

func (h *handler) hazardDatasetResources(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())
	segs := pathSegments(r, "/hazard-datasets/")
	if len(segs) != 2 || segs[1] != "versions" {
		writeError(w, requestID, apperrors.NotFound("route", r.URL.Path))
		return
	}
	datasetID := segs[0]
	if err := requireRole(r.Context(), mutatingRoles...); err != nil {
		writeError(w, requestID, err)
		return
	}
	caller := callerFromContext(r.Context())

	dataset, err := h.app.Stores.GetHazardDataset(r.Context(), caller.TenantID, datasetID)
	if err != nil {
		writeError(w, requestID, apperrors.NotFound("hazard_dataset", datasetID))
		return
	}

	versionLabel := strings.TrimSpace(r.Header.Get("X-Version-Label"))
	if versionLabel == "" {
		versionLabel = time.Now().UTC().Format("2006-01-02")
	}
	body := r.Body
	defer body.Close()
	buf := make([]byte, 0)
	chunk := make([]byte, 64*1024)
	for {
		n, readErr := body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if readErr != nil {
			break
		}
	}
	if len(buf) == 0 {
		writeError(w, requestID, apperrors.Validation("file_bytes is required"))
		return
	}

	key := fmt.Sprintf("hazard-datasets/%s/%s.json", dataset.ID, versionLabel)
	uri, checksum, err := h.app.Objects.Put(r.Context(), caller.TenantID, key, buf)
	if err != nil {
		writeError(w, requestID, apperrors.Provider(true, "object store write failed", err))
		return
	}

	features, err := parseHazardFeatures(buf)
	if err != nil {
		writeError(w, requestID, apperrors.TaskFailure("malformed hazard feature payload", err))
		return
	}

	version := &domain.HazardDatasetVersion{
		ID: uuid.New().String(), DatasetID: dataset.ID, VersionLabel: versionLabel,
		Checksum: checksum, ObjectURI: uri, CreatedAt: time.Now().UTC(),
	}
	if err := h.app.Stores.CreateHazardDatasetVersion(r.Context(), version); err != nil {
		writeError(w, requestID, apperrors.DatabaseError("create_hazard_dataset_version", err))
		return
	}
	if len(features) > 0 {
		if err := h.app.Stores.InsertFeatures(r.Context(), version.ID, features); err != nil {
			writeError(w, requestID, apperrors.DatabaseError("insert_features", err))
			return
		}
	}
	h.recordAudit(r, "hazard_dataset_version.created", map[string]any{"dataset_id": dataset.ID, "version_id": version.ID})
	writeJSON(w, http.StatusCreated, map[string]string{"id": version.ID, "checksum": checksum})
}

// --- overlay ---------------------------------------------------------------

func (h *handler) triggerOverlay(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())
	if err := requireRole(r.Context(), scoringRoles...); err != nil {
		writeError(w, requestID, err)
		return
	}
	caller := callerFromContext(r.Context())
	var req struct {
		ExposureVersionID       string         `json:"exposure_version_id"`
		HazardDatasetVersionIDs []string       `json:"hazard_dataset_version_ids"`
		Params                  map[string]any `json:"params"`
	}
	if err := decodeJSON(r.Body, &req); err != nil || req.ExposureVersionID == "" || len(req.HazardDatasetVersionIDs) == 0 {
		writeError(w, requestID, apperrors.Validation("exposure_version_id and hazard_dataset_version_ids are required"))
		return
	}
	run, err := h.app.Runs.Create(r.Context(), runs.CreateInput{
		TenantID: caller.TenantID, RunType: domain.RunOverlay,
		InputRefs: map[string]any{
			"exposure_version_id":        req.ExposureVersionID,
			"hazard_dataset_version_ids": toAnySlice(req.HazardDatasetVersionIDs),
		},
		ConfigRefs: req.Params, CreatedBy: caller.UserID, RequestID: requestID,
	})
	if err != nil {
		writeError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID})
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// --- resilience scoring ------------------------------------------------

func (h *handler) scoreResilience(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())
	if err := requireRole(r.Context(), scoringRoles...); err != nil {
		writeError(w, requestID, err)
		return
	}
	caller := callerFromContext(r.Context())
	var req struct {
		AddressFingerprint string `json:"address_fingerprint"`
		Address            map[string]any `json:"address"`
	}
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, requestID, apperrors.Validation("invalid request body"))
		return
	}

	fingerprint := req.AddressFingerprint
	if fingerprint == "" && req.Address != nil {
		normalized := enrichment.NormalizeAddress(req.Address)
		fp, err := enrichment.AddressFingerprint(normalized)
		if err != nil {
			writeError(w, requestID, apperrors.Validation("unable to fingerprint address"))
			return
		}
		fingerprint = fp
	}
	if fingerprint == "" {
		writeError(w, requestID, apperrors.Validation("address or address_fingerprint is required"))
		return
	}

	profile, err := h.app.Stores.FindByFingerprint(r.Context(), caller.TenantID, fingerprint)
	if err != nil || profile == nil || !enrichment.IsFresh(&profile.UpdatedAt, time.Now(), 30) {
		run, err := h.app.Runs.Create(r.Context(), runs.CreateInput{
			TenantID: caller.TenantID, RunType: domain.RunPropertyEnrichment,
			InputRefs: map[string]any{"address": req.Address}, CreatedBy: caller.UserID, RequestID: requestID,
		})
		if err != nil {
			writeError(w, requestID, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ENRICHMENT_QUEUED", "run_id": run.ID})
		return
	}

	cfg := resilience.DefaultConfig()
	structuralUsed := structural.Normalize(profile.StructuralJSON)
	scored := resilience.Score(map[string]resilience.HazardInput{}, structuralUsed, cfg)
	writeJSON(w, http.StatusOK, map[string]any{
		"property_profile_id": profile.ID,
		"resilience_score":    scored.ResilienceScore,
		"risk_score":          scored.RiskScore,
		"peril_scores":        scored.PerilScores,
		"warnings":            scored.Warnings,
	})
}

func (h *handler) scoreResilienceBatch(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())
	if err := requireRole(r.Context(), scoringRoles...); err != nil {
		writeError(w, requestID, err)
		return
	}
	caller := callerFromContext(r.Context())
	var req struct {
		ExposureVersionID       string         `json:"exposure_version_id"`
		HazardDatasetVersionIDs []string       `json:"hazard_dataset_version_ids"`
		OverlayResultID         string         `json:"overlay_result_id"`
		Config                  map[string]any `json:"config"`
		Force                   bool           `json:"force"`
		PolicyPackVersionID     *string        `json:"policy_pack_version_id"`
	}
	if err := decodeJSON(r.Body, &req); err != nil || req.ExposureVersionID == "" {
		writeError(w, requestID, apperrors.Validation("exposure_version_id is required"))
		return
	}
	policyPackVersion := ""
	if req.PolicyPackVersionID != nil {
		policyPackVersion = *req.PolicyPackVersionID
	}

	fingerprint, err := canon.RequestFingerprint(canon.ResilienceFingerprintInput{
		TenantID: caller.TenantID, ExposureVersionID: req.ExposureVersionID,
		HazardVersionIDs: req.HazardDatasetVersionIDs, ScoringConfig: req.Config,
		ScoringVersion: "v1", CodeVersion: "", PolicyPackVersion: policyPackVersion,
	})
	if err != nil {
		writeError(w, requestID, apperrors.TaskFailure("fingerprint computation failed", err))
		return
	}

	if !req.Force {
		if existing, _ := h.app.Stores.FindResultByFingerprint(r.Context(), caller.TenantID, fingerprint); existing != nil {
			writeJSON(w, http.StatusOK, map[string]string{
				"resilience_score_result_id": existing.ID, "run_id": existing.RunID, "status": "EXISTING_SUCCEEDED",
			})
			return
		}
		if inProgress, _ := h.app.Runs.FindInProgressByFingerprint(r.Context(), caller.TenantID, domain.RunResilienceScore, fingerprint); inProgress != nil {
			writeJSON(w, http.StatusOK, map[string]string{"run_id": inProgress.ID, "status": "EXISTING_IN_PROGRESS"})
			return
		}
	}

	run, err := h.app.Runs.Create(r.Context(), runs.CreateInput{
		TenantID: caller.TenantID, RunType: domain.RunResilienceScore,
		InputRefs: map[string]any{
			"exposure_version_id":        req.ExposureVersionID,
			"hazard_dataset_version_ids": toAnySlice(req.HazardDatasetVersionIDs),
			"overlay_result_id":          req.OverlayResultID,
			"request_fingerprint":        fingerprint,
		},
		ConfigRefs: map[string]any{"scoring_config": req.Config, "policy_pack_version_id": req.PolicyPackVersionID},
		CreatedBy:  caller.UserID, RequestID: requestID,
	})
	if err != nil {
		writeError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID, "status": "QUEUED"})
}

// --- rollup / breach / drift -----------------------------------------

func (h *handler) rollupConfigs(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())
	if err := requireRole(r.Context(), mutatingRoles...); err != nil {
		writeError(w, requestID, err)
		return
	}
	caller := callerFromContext(r.Context())
	var req struct {
		Name       string            `json:"name"`
		Dimensions []string          `json:"dimensions"`
		Filters    map[string]any    `json:"filters"`
		Measures   []domain.Measure  `json:"measures"`
	}
	if err := decodeJSON(r.Body, &req); err != nil || req.Name == "" || len(req.Measures) == 0 {
		writeError(w, requestID, apperrors.Validation("name and measures are required"))
		return
	}
	cfg := &domain.RollupConfig{
		ID: uuid.New().String(), TenantID: caller.TenantID, Name: req.Name, Version: 1,
		Dimensions: req.Dimensions, Filters: req.Filters, Measures: req.Measures, CreatedAt: time.Now().UTC(),
	}
	if err := h.app.Stores.CreateRollupConfig(r.Context(), cfg); err != nil {
		writeError(w, requestID, apperrors.DatabaseError("create_rollup_config", err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": cfg.ID})
}

func (h *handler) rollupConfigResources(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())
	segs := pathSegments(r, "/rollup-configs/")
	if len(segs) != 2 || segs[1] != "trigger" {
		writeError(w, requestID, apperrors.NotFound("route", r.URL.Path))
		return
	}
	if err := requireRole(r.Context(), scoringRoles...); err != nil {
		writeError(w, requestID, err)
		return
	}
	caller := callerFromContext(r.Context())
	var req struct {
		ExposureVersionID string `json:"exposure_version_id"`
	}
	if err := decodeJSON(r.Body, &req); err != nil || req.ExposureVersionID == "" {
		writeError(w, requestID, apperrors.Validation("exposure_version_id is required"))
		return
	}
	run, err := h.app.Runs.Create(r.Context(), runs.CreateInput{
		TenantID: caller.TenantID, RunType: domain.RunRollup,
		InputRefs: map[string]any{"exposure_version_id": req.ExposureVersionID, "rollup_config_id": segs[0]},
		CreatedBy: caller.UserID, RequestID: requestID,
	})
	if err != nil {
		writeError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID})
}

func (h *handler) runBreachEval(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())
	if err := requireRole(r.Context(), scoringRoles...); err != nil {
		writeError(w, requestID, err)
		return
	}
	caller := callerFromContext(r.Context())
	var req struct {
		ExposureVersionID string `json:"exposure_version_id"`
		RollupResultID    string `json:"rollup_result_id"`
	}
	if err := decodeJSON(r.Body, &req); err != nil || req.ExposureVersionID == "" || req.RollupResultID == "" {
		writeError(w, requestID, apperrors.Validation("exposure_version_id and rollup_result_id are required"))
		return
	}
	run, err := h.app.Runs.Create(r.Context(), runs.CreateInput{
		TenantID: caller.TenantID, RunType: domain.RunBreachEval,
		InputRefs: map[string]any{"exposure_version_id": req.ExposureVersionID, "rollup_result_id": req.RollupResultID},
		CreatedBy: caller.UserID, RequestID: requestID,
	})
	if err != nil {
		writeError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID})
}

func (h *handler) triggerDrift(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())
	if err := requireRole(r.Context(), scoringRoles...); err != nil {
		writeError(w, requestID, err)
		return
	}
	caller := callerFromContext(r.Context())
	var req struct {
		ExposureVersionAID string `json:"exposure_version_a_id"`
		ExposureVersionBID string `json:"exposure_version_b_id"`
	}
	if err := decodeJSON(r.Body, &req); err != nil || req.ExposureVersionAID == "" || req.ExposureVersionBID == "" {
		writeError(w, requestID, apperrors.Validation("exposure_version_a_id and exposure_version_b_id are required"))
		return
	}
	run, err := h.app.Runs.Create(r.Context(), runs.CreateInput{
		TenantID: caller.TenantID, RunType: domain.RunDrift,
		InputRefs: map[string]any{"exposure_version_a_id": req.ExposureVersionAID, "exposure_version_b_id": req.ExposureVersionBID},
		CreatedBy: caller.UserID, RequestID: requestID,
	})
	if err != nil {
		writeError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID})
}

// --- runs ------------------------------------------------------------------

func (h *handler) runResources(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())
	segs := pathSegments(r, "/runs/")
	if len(segs) == 0 {
		writeError(w, requestID, apperrors.NotFound("route", r.URL.Path))
		return
	}
	caller := callerFromContext(r.Context())
	runID := segs[0]

	if len(segs) == 1 {
		run, err := h.app.Runs.Get(r.Context(), caller.TenantID, runID)
		if err != nil {
			writeError(w, requestID, err)
			return
		}
		writeJSON(w, http.StatusOK, run)
		return
	}

	switch segs[1] {
	case "cancel":
		if err := requireRole(r.Context(), mutatingRoles...); err != nil {
			writeError(w, requestID, err)
			return
		}
		run, err := h.app.Runs.RequestCancel(r.Context(), caller.TenantID, runID)
		if err != nil {
			writeError(w, requestID, err)
			return
		}
		h.recordAudit(r, "run.cancel_requested", map[string]any{"run_id": runID})
		writeJSON(w, http.StatusOK, run)
	case "retry":
		if err := requireRole(r.Context(), mutatingRoles...); err != nil {
			writeError(w, requestID, err)
			return
		}
		run, err := h.app.Runs.Retry(r.Context(), caller.TenantID, runID, caller.UserID, requestID)
		if err != nil {
			writeError(w, requestID, err)
			return
		}
		h.recordAudit(r, "run.retried", map[string]any{"old_run_id": runID, "new_run_id": run.ID})
		writeJSON(w, http.StatusCreated, run)
	default:
		writeError(w, requestID, apperrors.NotFound("route", r.URL.Path))
	}
}

// --- property profile / lineage -----------------------------------------

func (h *handler) resolvePropertyProfile(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())
	if err := requireRole(r.Context(), scoringRoles...); err != nil {
		writeError(w, requestID, err)
		return
	}
	caller := callerFromContext(r.Context())
	var req struct {
		Address      map[string]any `json:"address"`
		PreferCached bool           `json:"prefer_cached"`
		ForceRefresh bool           `json:"force_refresh"`
	}
	if err := decodeJSON(r.Body, &req); err != nil || req.Address == nil {
		writeError(w, requestID, apperrors.Validation("address is required"))
		return
	}
	normalized := enrichment.NormalizeAddress(req.Address)
	fingerprint, err := enrichment.AddressFingerprint(normalized)
	if err != nil {
		writeError(w, requestID, apperrors.Validation("unable to fingerprint address"))
		return
	}

	if !req.ForceRefresh {
		if existing, _ := h.app.Stores.FindByFingerprint(r.Context(), caller.TenantID, fingerprint); existing != nil {
			if req.PreferCached || enrichment.IsFresh(&existing.UpdatedAt, time.Now(), 30) {
				writeJSON(w, http.StatusOK, map[string]string{"property_profile_id": existing.ID, "status": "CACHED"})
				return
			}
		}
		if inProgress, _ := h.app.Runs.FindInProgressByFingerprint(r.Context(), caller.TenantID, domain.RunPropertyEnrichment, fingerprint); inProgress != nil {
			writeJSON(w, http.StatusOK, map[string]string{"run_id": inProgress.ID, "status": "EXISTING_IN_PROGRESS"})
			return
		}
	}

	run, err := h.app.Runs.Create(r.Context(), runs.CreateInput{
		TenantID: caller.TenantID, RunType: domain.RunPropertyEnrichment,
		InputRefs: map[string]any{"address": req.Address}, CreatedBy: caller.UserID, RequestID: requestID,
	})
	if err != nil {
		writeError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID, "status": "QUEUED"})
}

func (h *handler) lineage(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())
	segs := pathSegments(r, "/lineage/")
	if len(segs) != 2 {
		writeError(w, requestID, apperrors.NotFound("route", r.URL.Path))
		return
	}
	caller := callerFromContext(r.Context())
	graph, err := lineage.Build(r.Context(), h.app.Stores, caller.TenantID, segs[0], segs[1])
	if err != nil {
		writeError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

// parseHazardFeatures decodes an uploaded hazard version payload expressed
// as a JSON array of {geometry_wkt, peril, score, band, raw_properties}.
func parseHazardFeatures(data []byte) ([]*domain.HazardFeaturePolygon, error) {
	var raw []struct {
		GeometryWKT   string         `json:"geometry_wkt"`
		Peril         string         `json:"peril"`
		Score         *float64       `json:"score"`
		Band          string         `json:"band"`
		RawProperties map[string]any `json:"raw_properties"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make([]*domain.HazardFeaturePolygon, 0, len(raw))
	for _, f := range raw {
		out = append(out, &domain.HazardFeaturePolygon{
			GeometryWKT: f.GeometryWKT, Peril: f.Peril, Score: f.Score, Band: f.Band, RawProperties: f.RawProperties,
		})
	}
	return out, nil
}
