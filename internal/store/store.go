// Package store defines the repository interfaces used by every pipeline
// component, generalizing pkg/storage/postgres/base_store.go's
// transaction-over-context pattern away from a single blockchain-oracle
// table set to the full entity model of spec.md §3.
package store

import (
	"context"

	"github.com/meridianrisk/exposure-engine/internal/domain"
)

// Methods that take a tenantID apply it as a tenant_id predicate on their
// reads and writes, and Create/Insert methods write the tenant id carried by
// the entity. The methods without a tenantID parameter do no tenant
// filtering: the HazardStore methods keyed by a hazard dataset version id
// (GetHazardDatasetVersion, InsertFeatures, FeaturesContainingPoint,
// HasOverlayReferencing) and RunStore.ListQueuedRuns, which lists runs of
// every tenant for the worker.

type TenantFilter struct {
	TenantID string
}

type TenantStore interface {
	GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error)
	UpdateTenantDefaultPolicyPack(ctx context.Context, tenantID string, policyPackVersionID *string) error
}

type UserStore interface {
	GetUserByEmail(ctx context.Context, tenantID, email string) (*domain.User, error)
	CreateUser(ctx context.Context, u *domain.User) error
}

type UploadStore interface {
	CreateUpload(ctx context.Context, u *domain.ExposureUpload) error
	GetUploadByIdempotencyKey(ctx context.Context, tenantID, key string) (*domain.ExposureUpload, error)
	GetUpload(ctx context.Context, tenantID, id string) (*domain.ExposureUpload, error)
	AttachMapping(ctx context.Context, tenantID, uploadID, mappingTemplateID string) error
}

type MappingTemplateStore interface {
	CreateMappingTemplate(ctx context.Context, m *domain.MappingTemplate) error
	LatestMappingTemplate(ctx context.Context, tenantID, name string) (*domain.MappingTemplate, error)
	GetMappingTemplate(ctx context.Context, tenantID, id string) (*domain.MappingTemplate, error)
}

type ValidationStore interface {
	CreateValidationResult(ctx context.Context, v *domain.ValidationResult) error
	GetValidationResult(ctx context.Context, tenantID, id string) (*domain.ValidationResult, error)
}

type ExposureVersionStore interface {
	CreateExposureVersion(ctx context.Context, v *domain.ExposureVersion) error
	GetExposureVersion(ctx context.Context, tenantID, id string) (*domain.ExposureVersion, error)
	FindExposureVersionByMapping(ctx context.Context, tenantID, uploadID, mappingTemplateID string) (*domain.ExposureVersion, error)
	FindExposureVersionByIdempotencyKey(ctx context.Context, tenantID, uploadID, idempotencyKey string) (*domain.ExposureVersion, error)
	BulkInsertLocations(ctx context.Context, locations []*domain.Location) error
	ListLocations(ctx context.Context, tenantID, exposureVersionID string) ([]*domain.Location, error)
	UpdateLocationStructural(ctx context.Context, tenantID, locationID string, structural map[string]any) error
	UpdateLocationGeocode(ctx context.Context, tenantID, locationID string, lat, lon, confidence float64, method string, tier domain.QualityTier, reasons []string) error
}

type HazardStore interface {
	CreateHazardDataset(ctx context.Context, d *domain.HazardDataset) error
	CreateHazardDatasetVersion(ctx context.Context, v *domain.HazardDatasetVersion) error
	GetHazardDataset(ctx context.Context, tenantID, id string) (*domain.HazardDataset, error)
	GetHazardDatasetVersion(ctx context.Context, id string) (*domain.HazardDatasetVersion, error)
	InsertFeatures(ctx context.Context, hazardDatasetVersionID string, features []*domain.HazardFeaturePolygon) error
	FeaturesContainingPoint(ctx context.Context, hazardDatasetVersionID string, lat, lon float64) ([]*domain.HazardFeaturePolygon, error)
	HasOverlayReferencing(ctx context.Context, hazardDatasetVersionID string) (bool, error)
}

type OverlayStore interface {
	CreateOverlayResult(ctx context.Context, r *domain.HazardOverlayResult) error
	InsertLocationHazardAttributes(ctx context.Context, attrs []*domain.LocationHazardAttribute) error
	ListLocationHazardAttributes(ctx context.Context, tenantID, overlayResultID string) ([]*domain.LocationHazardAttribute, error)
}

type RollupStore interface {
	CreateRollupConfig(ctx context.Context, c *domain.RollupConfig) error
	GetRollupConfig(ctx context.Context, tenantID, id string) (*domain.RollupConfig, error)
	CreateRollupResult(ctx context.Context, r *domain.RollupResult) error
	InsertRollupResultItems(ctx context.Context, items []*domain.RollupResultItem) error
	ListRollupResultItems(ctx context.Context, tenantID, rollupResultID string) ([]*domain.RollupResultItem, error)
	GetRollupResult(ctx context.Context, tenantID, id string) (*domain.RollupResult, error)
}

type BreachStore interface {
	ListActiveRules(ctx context.Context, tenantID string) ([]*domain.ThresholdRule, error)
	GetRule(ctx context.Context, tenantID, id string) (*domain.ThresholdRule, error)
	FindBreach(ctx context.Context, tenantID, ruleID, exposureVersionID, rollupKeyHash string) (*domain.Breach, error)
	UpsertBreach(ctx context.Context, b *domain.Breach) error
	ListBreachesForRule(ctx context.Context, tenantID, ruleID, exposureVersionID string) ([]*domain.Breach, error)
}

type DriftStore interface {
	CreateDriftRun(ctx context.Context, d *domain.DriftRun) error
	InsertDriftDetails(ctx context.Context, details []*domain.DriftDetail) error
	GetDriftRun(ctx context.Context, tenantID, id string) (*domain.DriftRun, error)
	ListDriftDetails(ctx context.Context, tenantID, driftRunID string) ([]*domain.DriftDetail, error)
}

type ResilienceStore interface {
	FindResultByFingerprint(ctx context.Context, tenantID, fingerprint string) (*domain.ResilienceScoreResult, error)
	CreateResult(ctx context.Context, r *domain.ResilienceScoreResult) error
	InsertItems(ctx context.Context, items []*domain.ResilienceScoreItem) error
	ListItems(ctx context.Context, tenantID, resultID string) ([]*domain.ResilienceScoreItem, error)
	GetResult(ctx context.Context, tenantID, id string) (*domain.ResilienceScoreResult, error)
}

type PropertyProfileStore interface {
	FindByFingerprint(ctx context.Context, tenantID, fingerprint string) (*domain.PropertyProfile, error)
	Upsert(ctx context.Context, p *domain.PropertyProfile) error
}

type PolicyStore interface {
	GetPolicyPackVersion(ctx context.Context, tenantID, id string) (*domain.PolicyPackVersion, error)
	GetPolicyPack(ctx context.Context, tenantID, id string) (*domain.PolicyPack, error)
	LatestPolicyPackVersion(ctx context.Context, tenantID, policyPackID string) (*domain.PolicyPackVersion, error)
}

type RunStore interface {
	CreateRun(ctx context.Context, r *domain.Run) error
	GetRun(ctx context.Context, tenantID, id string) (*domain.Run, error)
	UpdateRun(ctx context.Context, r *domain.Run) error
	ListQueuedRuns(ctx context.Context, runType domain.RunType, limit int) ([]*domain.Run, error)
	RequestCancel(ctx context.Context, tenantID, id string) error
	FindRunInProgressByFingerprint(ctx context.Context, tenantID string, runType domain.RunType, fingerprint string) (*domain.Run, error)
}

type AuditStore interface {
	RecordAudit(ctx context.Context, e *domain.AuditEvent) error
}

// Stores aggregates every repository interface the control plane and
// worker handlers need, mirroring internal/app/application.go's Stores
// struct. A concrete implementation (postgres or memory) satisfies all of
// them; internal/control takes a single Stores value, and none of its Option
// functions replaces an individual store.
type Stores interface {
	TenantStore
	UserStore
	UploadStore
	MappingTemplateStore
	ValidationStore
	ExposureVersionStore
	HazardStore
	OverlayStore
	RollupStore
	BreachStore
	DriftStore
	ResilienceStore
	PropertyProfileStore
	PolicyStore
	RunStore
	AuditStore
}
