// Package memory implements store.Stores entirely in-process, grounded on
// the teacher's memory.Store fallback referenced by
// internal/app/application.go's applyDefaults. Used in unit tests and local
// dev runs without a database.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/meridianrisk/exposure-engine/internal/apperrors"
	"github.com/meridianrisk/exposure-engine/internal/domain"
)

// Store is a tenant-naive, mutex-guarded in-memory implementation of every
// store.Stores interface. Every method that takes a tenantID checks it
// explicitly against the stored entity (never by relying on map key
// structure alone) so the "tenant isolation" testable property is exercised
// here the same way it would be against a real database. Methods without a
// tenantID parameter (GetHazardDatasetVersion, InsertFeatures,
// FeaturesContainingPoint, HasOverlayReferencing, ListQueuedRuns, UpdateRun)
// do no tenant check.
type Store struct {
	mu sync.RWMutex

	tenants        map[string]*domain.Tenant
	users          map[string]*domain.User
	uploads        map[string]*domain.ExposureUpload
	mappings       map[string]*domain.MappingTemplate
	validations    map[string]*domain.ValidationResult
	exposureVers   map[string]*domain.ExposureVersion
	locations      map[string]*domain.Location
	hazardDatasets map[string]*domain.HazardDataset
	hazardVersions map[string]*domain.HazardDatasetVersion
	features       map[string][]*domain.HazardFeaturePolygon // by hazardDatasetVersionID
	overlays       map[string]*domain.HazardOverlayResult
	locHazardAttrs map[string]*domain.LocationHazardAttribute
	rollupConfigs  map[string]*domain.RollupConfig
	rollupResults  map[string]*domain.RollupResult
	rollupItems    map[string]*domain.RollupResultItem
	rules          map[string]*domain.ThresholdRule
	breaches       map[string]*domain.Breach
	driftRuns      map[string]*domain.DriftRun
	driftDetails   map[string]*domain.DriftDetail
	resilienceRes  map[string]*domain.ResilienceScoreResult
	resilienceItem map[string]*domain.ResilienceScoreItem
	profiles       map[string]*domain.PropertyProfile
	policyPacks    map[string]*domain.PolicyPack
	policyVersions map[string]*domain.PolicyPackVersion
	runs           map[string]*domain.Run
	audits         []*domain.AuditEvent
}

func New() *Store {
	return &Store{
		tenants:        map[string]*domain.Tenant{},
		users:          map[string]*domain.User{},
		uploads:        map[string]*domain.ExposureUpload{},
		mappings:       map[string]*domain.MappingTemplate{},
		validations:    map[string]*domain.ValidationResult{},
		exposureVers:   map[string]*domain.ExposureVersion{},
		locations:      map[string]*domain.Location{},
		hazardDatasets: map[string]*domain.HazardDataset{},
		hazardVersions: map[string]*domain.HazardDatasetVersion{},
		features:       map[string][]*domain.HazardFeaturePolygon{},
		overlays:       map[string]*domain.HazardOverlayResult{},
		locHazardAttrs: map[string]*domain.LocationHazardAttribute{},
		rollupConfigs:  map[string]*domain.RollupConfig{},
		rollupResults:  map[string]*domain.RollupResult{},
		rollupItems:    map[string]*domain.RollupResultItem{},
		rules:          map[string]*domain.ThresholdRule{},
		breaches:       map[string]*domain.Breach{},
		driftRuns:      map[string]*domain.DriftRun{},
		driftDetails:   map[string]*domain.DriftDetail{},
		resilienceRes:  map[string]*domain.ResilienceScoreResult{},
		resilienceItem: map[string]*domain.ResilienceScoreItem{},
		profiles:       map[string]*domain.PropertyProfile{},
		policyPacks:    map[string]*domain.PolicyPack{},
		policyVersions: map[string]*domain.PolicyPackVersion{},
		runs:           map[string]*domain.Run{},
	}
}

// SeedTenant registers a tenant directly, used by tests and local fixtures.
func (s *Store) SeedTenant(t *domain.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
}

func (s *Store) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, apperrors.NotFound("Tenant", tenantID)
	}
	return t, nil
}

func (s *Store) UpdateTenantDefaultPolicyPack(ctx context.Context, tenantID string, policyPackVersionID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return apperrors.NotFound("Tenant", tenantID)
	}
	t.DefaultPolicyPackVersionID = policyPackVersionID
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, tenantID, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.TenantID == tenantID && u.Email == email {
			return u, nil
		}
	}
	return nil, apperrors.NotFound("User", email)
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *Store) CreateUpload(ctx context.Context, u *domain.ExposureUpload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.IdempotencyKey != nil {
		for _, existing := range s.uploads {
			if existing.TenantID == u.TenantID && existing.IdempotencyKey != nil && *existing.IdempotencyKey == *u.IdempotencyKey {
				return apperrors.Conflict("upload idempotency_key already used")
			}
		}
	}
	s.uploads[u.ID] = u
	return nil
}

func (s *Store) GetUploadByIdempotencyKey(ctx context.Context, tenantID, key string) (*domain.ExposureUpload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.uploads {
		if u.TenantID == tenantID && u.IdempotencyKey != nil && *u.IdempotencyKey == key {
			return u, nil
		}
	}
	return nil, apperrors.NotFound("ExposureUpload", key)
}

func (s *Store) GetUpload(ctx context.Context, tenantID, id string) (*domain.ExposureUpload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.uploads[id]
	if !ok || u.TenantID != tenantID {
		return nil, apperrors.NotFound("ExposureUpload", id)
	}
	return u, nil
}

func (s *Store) AttachMapping(ctx context.Context, tenantID, uploadID, mappingTemplateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[uploadID]
	if !ok || u.TenantID != tenantID {
		return apperrors.NotFound("ExposureUpload", uploadID)
	}
	u.MappingTemplateID = &mappingTemplateID
	return nil
}

func (s *Store) CreateMappingTemplate(ctx context.Context, m *domain.MappingTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[m.ID] = m
	return nil
}

func (s *Store) LatestMappingTemplate(ctx context.Context, tenantID, name string) (*domain.MappingTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.MappingTemplate
	for _, m := range s.mappings {
		if m.TenantID == tenantID && m.Name == name {
			if latest == nil || m.Version > latest.Version {
				latest = m
			}
		}
	}
	if latest == nil {
		return nil, apperrors.NotFound("MappingTemplate", name)
	}
	return latest, nil
}

func (s *Store) GetMappingTemplate(ctx context.Context, tenantID, id string) (*domain.MappingTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappings[id]
	if !ok || m.TenantID != tenantID {
		return nil, apperrors.NotFound("MappingTemplate", id)
	}
	return m, nil
}

func (s *Store) CreateValidationResult(ctx context.Context, v *domain.ValidationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validations[v.ID] = v
	return nil
}

func (s *Store) GetValidationResult(ctx context.Context, tenantID, id string) (*domain.ValidationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.validations[id]
	if !ok || v.TenantID != tenantID {
		return nil, apperrors.NotFound("ValidationResult", id)
	}
	return v, nil
}

func (s *Store) CreateExposureVersion(ctx context.Context, v *domain.ExposureVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exposureVers[v.ID] = v
	return nil
}

func (s *Store) GetExposureVersion(ctx context.Context, tenantID, id string) (*domain.ExposureVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.exposureVers[id]
	if !ok || v.TenantID != tenantID {
		return nil, apperrors.NotFound("ExposureVersion", id)
	}
	return v, nil
}

func (s *Store) FindExposureVersionByMapping(ctx context.Context, tenantID, uploadID, mappingTemplateID string) (*domain.ExposureVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.exposureVers {
		if v.TenantID == tenantID && v.UploadID == uploadID && v.MappingTemplateID != nil && *v.MappingTemplateID == mappingTemplateID {
			return v, nil
		}
	}
	return nil, apperrors.NotFound("ExposureVersion", uploadID)
}

func (s *Store) FindExposureVersionByIdempotencyKey(ctx context.Context, tenantID, uploadID, idempotencyKey string) (*domain.ExposureVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.exposureVers {
		if v.TenantID == tenantID && v.UploadID == uploadID && v.IdempotencyKey != nil && *v.IdempotencyKey == idempotencyKey {
			return v, nil
		}
	}
	return nil, apperrors.NotFound("ExposureVersion", uploadID)
}

func (s *Store) BulkInsertLocations(ctx context.Context, locations []*domain.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range locations {
		s.locations[l.ID] = l
	}
	return nil
}

func (s *Store) ListLocations(ctx context.Context, tenantID, exposureVersionID string) ([]*domain.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Location
	for _, l := range s.locations {
		if l.TenantID == tenantID && l.ExposureVersionID == exposureVersionID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalLocationID < out[j].ExternalLocationID })
	return out, nil
}

func (s *Store) UpdateLocationStructural(ctx context.Context, tenantID, locationID string, structural map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locations[locationID]
	if !ok || l.TenantID != tenantID {
		return apperrors.NotFound("Location", locationID)
	}
	l.StructuralJSON = structural
	return nil
}

func (s *Store) UpdateLocationGeocode(ctx context.Context, tenantID, locationID string, lat, lon, confidence float64, method string, tier domain.QualityTier, reasons []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locations[locationID]
	if !ok || l.TenantID != tenantID {
		return apperrors.NotFound("Location", locationID)
	}
	l.Latitude = &lat
	l.Longitude = &lon
	l.GeocodeConfidence = &confidence
	l.GeocodeMethod = method
	l.QualityTier = tier
	l.QualityReasons = reasons
	return nil
}

func (s *Store) CreateHazardDataset(ctx context.Context, d *domain.HazardDataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hazardDatasets[d.ID] = d
	return nil
}

func (s *Store) CreateHazardDatasetVersion(ctx context.Context, v *domain.HazardDatasetVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hazardVersions[v.ID] = v
	return nil
}

func (s *Store) GetHazardDataset(ctx context.Context, tenantID, id string) (*domain.HazardDataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.hazardDatasets[id]
	if !ok || d.TenantID != tenantID {
		return nil, apperrors.NotFound("HazardDataset", id)
	}
	return d, nil
}

func (s *Store) GetHazardDatasetVersion(ctx context.Context, id string) (*domain.HazardDatasetVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.hazardVersions[id]
	if !ok {
		return nil, apperrors.NotFound("HazardDatasetVersion", id)
	}
	return v, nil
}

func (s *Store) InsertFeatures(ctx context.Context, hazardDatasetVersionID string, features []*domain.HazardFeaturePolygon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features[hazardDatasetVersionID] = append(s.features[hazardDatasetVersionID], features...)
	return nil
}

func (s *Store) FeaturesContainingPoint(ctx context.Context, hazardDatasetVersionID string, lat, lon float64) ([]*domain.HazardFeaturePolygon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.HazardFeaturePolygon
	for _, f := range s.features[hazardDatasetVersionID] {
		if PointInPolygonWKT(f.GeometryWKT, lat, lon) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *Store) HasOverlayReferencing(ctx context.Context, hazardDatasetVersionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.overlays {
		if params, ok := o.Params["hazard_dataset_version_ids"].([]string); ok {
			for _, id := range params {
				if id == hazardDatasetVersionID {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

func (s *Store) CreateOverlayResult(ctx context.Context, r *domain.HazardOverlayResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlays[r.ID] = r
	return nil
}

func (s *Store) InsertLocationHazardAttributes(ctx context.Context, attrs []*domain.LocationHazardAttribute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range attrs {
		s.locHazardAttrs[a.ID] = a
	}
	return nil
}

func (s *Store) ListLocationHazardAttributes(ctx context.Context, tenantID, overlayResultID string) ([]*domain.LocationHazardAttribute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.LocationHazardAttribute
	for _, a := range s.locHazardAttrs {
		if a.TenantID == tenantID && a.OverlayResultID == overlayResultID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) CreateRollupConfig(ctx context.Context, c *domain.RollupConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollupConfigs[c.ID] = c
	return nil
}

func (s *Store) GetRollupConfig(ctx context.Context, tenantID, id string) (*domain.RollupConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.rollupConfigs[id]
	if !ok || c.TenantID != tenantID {
		return nil, apperrors.NotFound("RollupConfig", id)
	}
	return c, nil
}

func (s *Store) CreateRollupResult(ctx context.Context, r *domain.RollupResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollupResults[r.ID] = r
	return nil
}

func (s *Store) InsertRollupResultItems(ctx context.Context, items []*domain.RollupResultItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		s.rollupItems[it.ID] = it
	}
	return nil
}

func (s *Store) ListRollupResultItems(ctx context.Context, tenantID, rollupResultID string) ([]*domain.RollupResultItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.RollupResultItem
	for _, it := range s.rollupItems {
		if it.TenantID == tenantID && it.RollupResultID == rollupResultID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RollupKeyHash < out[j].RollupKeyHash })
	return out, nil
}

func (s *Store) GetRollupResult(ctx context.Context, tenantID, id string) (*domain.RollupResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rollupResults[id]
	if !ok || r.TenantID != tenantID {
		return nil, apperrors.NotFound("RollupResult", id)
	}
	return r, nil
}

func (s *Store) ListActiveRules(ctx context.Context, tenantID string) ([]*domain.ThresholdRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.ThresholdRule
	for _, r := range s.rules {
		if r.TenantID == tenantID && r.Active {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetRule(ctx context.Context, tenantID, id string) (*domain.ThresholdRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok || r.TenantID != tenantID {
		return nil, apperrors.NotFound("ThresholdRule", id)
	}
	return r, nil
}

// CreateRule registers a rule; used by tests and seed loading.
func (s *Store) CreateRule(r *domain.ThresholdRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.ID] = r
}

func (s *Store) FindBreach(ctx context.Context, tenantID, ruleID, exposureVersionID, rollupKeyHash string) (*domain.Breach, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.breaches {
		if b.TenantID == tenantID && b.RuleID == ruleID && b.ExposureVersionID == exposureVersionID && b.RollupKeyHash == rollupKeyHash {
			return b, nil
		}
	}
	return nil, apperrors.NotFound("Breach", rollupKeyHash)
}

func (s *Store) UpsertBreach(ctx context.Context, b *domain.Breach) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breaches[b.ID] = b
	return nil
}

func (s *Store) ListBreachesForRule(ctx context.Context, tenantID, ruleID, exposureVersionID string) ([]*domain.Breach, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Breach
	for _, b := range s.breaches {
		if b.TenantID == tenantID && b.RuleID == ruleID && b.ExposureVersionID == exposureVersionID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) CreateDriftRun(ctx context.Context, d *domain.DriftRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.driftRuns[d.ID] = d
	return nil
}

func (s *Store) InsertDriftDetails(ctx context.Context, details []*domain.DriftDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range details {
		s.driftDetails[d.ID] = d
	}
	return nil
}

func (s *Store) GetDriftRun(ctx context.Context, tenantID, id string) (*domain.DriftRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.driftRuns[id]
	if !ok || d.TenantID != tenantID {
		return nil, apperrors.NotFound("DriftRun", id)
	}
	return d, nil
}

func (s *Store) ListDriftDetails(ctx context.Context, tenantID, driftRunID string) ([]*domain.DriftDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.DriftDetail
	for _, d := range s.driftDetails {
		if d.TenantID == tenantID && d.DriftRunID == driftRunID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) FindResultByFingerprint(ctx context.Context, tenantID, fingerprint string) (*domain.ResilienceScoreResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.resilienceRes {
		if r.TenantID == tenantID && r.RequestFingerprint == fingerprint {
			return r, nil
		}
	}
	return nil, apperrors.NotFound("ResilienceScoreResult", fingerprint)
}

func (s *Store) CreateResult(ctx context.Context, r *domain.ResilienceScoreResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.resilienceRes {
		if existing.TenantID == r.TenantID && existing.RequestFingerprint == r.RequestFingerprint {
			return apperrors.Conflict("EXISTING_IN_PROGRESS")
		}
	}
	s.resilienceRes[r.ID] = r
	return nil
}

func (s *Store) InsertItems(ctx context.Context, items []*domain.ResilienceScoreItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		s.resilienceItem[it.ID] = it
	}
	return nil
}

func (s *Store) ListItems(ctx context.Context, tenantID, resultID string) ([]*domain.ResilienceScoreItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.ResilienceScoreItem
	for _, it := range s.resilienceItem {
		if it.TenantID == tenantID && it.ResultID == resultID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *Store) GetResult(ctx context.Context, tenantID, id string) (*domain.ResilienceScoreResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resilienceRes[id]
	if !ok || r.TenantID != tenantID {
		return nil, apperrors.NotFound("ResilienceScoreResult", id)
	}
	return r, nil
}

func (s *Store) FindByFingerprint(ctx context.Context, tenantID, fingerprint string) (*domain.PropertyProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.TenantID == tenantID && p.AddressFingerprint == fingerprint {
			return p, nil
		}
	}
	return nil, apperrors.NotFound("PropertyProfile", fingerprint)
}

func (s *Store) Upsert(ctx context.Context, p *domain.PropertyProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
	return nil
}

func (s *Store) GetPolicyPackVersion(ctx context.Context, tenantID, id string) (*domain.PolicyPackVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.policyVersions[id]
	if !ok {
		return nil, apperrors.NotFound("PolicyPackVersion", id)
	}
	pack, ok := s.policyPacks[v.PolicyPackID]
	if !ok || pack.TenantID != tenantID {
		return nil, apperrors.NotFound("PolicyPackVersion", id)
	}
	return v, nil
}

func (s *Store) GetPolicyPack(ctx context.Context, tenantID, id string) (*domain.PolicyPack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policyPacks[id]
	if !ok || p.TenantID != tenantID {
		return nil, apperrors.NotFound("PolicyPack", id)
	}
	return p, nil
}

func (s *Store) LatestPolicyPackVersion(ctx context.Context, tenantID, policyPackID string) (*domain.PolicyPackVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pack, ok := s.policyPacks[policyPackID]
	if !ok || pack.TenantID != tenantID {
		return nil, apperrors.NotFound("PolicyPack", policyPackID)
	}
	var latest *domain.PolicyPackVersion
	for _, v := range s.policyVersions {
		if v.PolicyPackID != policyPackID {
			continue
		}
		if latest == nil || v.CreatedAt.After(latest.CreatedAt) {
			latest = v
		}
	}
	if latest == nil {
		return nil, apperrors.NotFound("PolicyPackVersion", policyPackID)
	}
	return latest, nil
}

// SeedPolicyPack registers a pack+version directly, used by tests.
func (s *Store) SeedPolicyPack(pack *domain.PolicyPack, version *domain.PolicyPackVersion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policyPacks[pack.ID] = pack
	s.policyVersions[version.ID] = version
}

func (s *Store) CreateRun(ctx context.Context, r *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = r
	return nil
}

func (s *Store) GetRun(ctx context.Context, tenantID, id string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok || r.TenantID != tenantID {
		return nil, apperrors.NotFound("Run", id)
	}
	return r, nil
}

func (s *Store) UpdateRun(ctx context.Context, r *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[r.ID]; !ok {
		return apperrors.NotFound("Run", r.ID)
	}
	s.runs[r.ID] = r
	return nil
}

func (s *Store) ListQueuedRuns(ctx context.Context, runType domain.RunType, limit int) ([]*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Run
	for _, r := range s.runs {
		if r.RunType == runType && (r.Status == domain.RunQueued || r.Status == domain.RunRunning) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) RequestCancel(ctx context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok || r.TenantID != tenantID {
		return apperrors.NotFound("Run", id)
	}
	r.CancelRequested = true
	return nil
}

func (s *Store) FindRunInProgressByFingerprint(ctx context.Context, tenantID string, runType domain.RunType, fingerprint string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.runs {
		if r.TenantID != tenantID || r.RunType != runType {
			continue
		}
		if r.Status != domain.RunQueued && r.Status != domain.RunRunning {
			continue
		}
		if fp, ok := r.ConfigRefs["request_fingerprint"].(string); ok && fp == fingerprint {
			return r, nil
		}
	}
	return nil, apperrors.NotFound("Run", fingerprint)
}

func (s *Store) RecordAudit(ctx context.Context, e *domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, e)
	return nil
}
