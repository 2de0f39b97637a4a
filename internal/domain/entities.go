// Package domain holds the typed entity structs of spec.md §3. Dynamic JSON
// columns from the source system (properties, metrics, raw provenance) are
// modeled as explicit typed fields for known keys plus a raw map[string]any
// "extensions" field for anything else, per spec.md §9.
package domain

import "time"

type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleOps       Role = "OPS"
	RoleAnalyst   Role = "ANALYST"
	RoleAuditor   Role = "AUDITOR"
	RoleReadOnly  Role = "READ_ONLY"
)

// Identity is the caller identity every control-plane call carries.
// Authentication/JWT issuance is out of scope; this struct is the consumed
// result of that external process.
type Identity struct {
	TenantID string
	UserID   string
	Role     Role
}

type Tenant struct {
	ID                          string
	Name                        string
	DefaultCurrency             string
	DefaultPolicyPackVersionID  *string
}

type User struct {
	ID       string
	TenantID string
	Email    string
	Role     Role
}

type ExposureUpload struct {
	ID                 string
	TenantID           string
	ObjectURI          string
	Checksum           string
	IdempotencyKey     *string
	MappingTemplateID  *string
	CreatedAt          time.Time
}

type MappingTemplate struct {
	ID           string
	TenantID     string
	Name         string
	Version      int
	TemplateJSON map[string]string // src -> dst
	CreatedAt    time.Time
}

type ValidationResult struct {
	ID                 string
	TenantID           string
	UploadID           string
	MappingTemplateID  *string
	SummaryJSON        ValidationSummary
	RowErrorsURI       string
	Checksum           string
	RunID              string
	CreatedAt          time.Time
}

type ValidationSummary struct {
	Error int `json:"ERROR"`
	Warn  int `json:"WARN"`
	Info  int `json:"INFO"`
	TotalRows int `json:"total_rows"`
}

type ExposureVersion struct {
	ID                 string
	TenantID           string
	UploadID           string
	MappingTemplateID  *string
	IdempotencyKey     *string
	Name               string
	LocationCount      int
	TIVSum             float64
	CreatedAt          time.Time
}

type QualityTier string

const (
	QualityTierHigh    QualityTier = "HIGH"
	QualityTierMedium  QualityTier = "MEDIUM"
	QualityTierLow     QualityTier = "LOW"
)

type Location struct {
	ID                  string
	TenantID            string
	ExposureVersionID   string
	ExternalLocationID  string
	AddressLine1        string
	City                string
	StateRegion         string
	PostalCode          string
	Country             string
	Latitude            *float64
	Longitude           *float64
	GeocodeConfidence   *float64
	GeocodeMethod       string
	QualityTier         QualityTier
	QualityReasons      []string
	Currency            string
	LOB                 string
	ProductCode         string
	TIV                 *float64
	Limit               *float64
	Premium             *float64
	StructuralJSON      map[string]any
}

type HazardDataset struct {
	ID       string
	TenantID string
	Name     string
	Peril    string
}

type HazardDatasetVersion struct {
	ID              string
	DatasetID       string
	VersionLabel    string
	Checksum        string
	ObjectURI       string
	EffectiveDate   *time.Time
	CreatedAt       time.Time
}

// HazardFeaturePolygon is a single MULTIPOLYGON feature within a hazard
// dataset version. GeometryWKT holds the raw WKT/GeoJSON geometry; the
// spatial extension (or an embedded R-tree, per spec.md §9) is responsible
// for point-in-polygon containment, not this struct.
type HazardFeaturePolygon struct {
	ID                      int64
	HazardDatasetVersionID  string
	GeometryWKT             string
	Peril                   string
	Score                   *float64
	Band                    string
	RawProperties           map[string]any
}

type HazardOverlayResult struct {
	ID                   string
	TenantID             string
	ExposureVersionID    string
	RunID                string
	Method               string
	Params               map[string]any
	LocationsProcessed   int
	AttributesCreated    int
	CreatedAt            time.Time
}

type LocationHazardAttribute struct {
	ID                    string
	TenantID              string
	LocationID            string
	OverlayResultID       string
	HazardCategory        string
	Band                  string
	Score                 *float64
	Source                string
	Method                string
	RawProperties         map[string]any
}

type Measure struct {
	Name  string `json:"name"`
	Op    string `json:"op"` // sum | count
	Field string `json:"field,omitempty"`
}

type RollupConfig struct {
	ID         string
	TenantID   string
	Name       string
	Version    int
	Dimensions []string
	Filters    map[string]any
	Measures   []Measure
	CreatedAt  time.Time
}

type RollupResult struct {
	ID             string
	TenantID       string
	RollupConfigID string
	RunID          string
	Checksum       string
	CreatedAt      time.Time
}

type RollupResultItem struct {
	ID             string
	TenantID       string
	RollupResultID string
	RollupKeyJSON  map[string]any
	RollupKeyHash  string
	MetricsJSON    map[string]float64
}

type ThresholdRule struct {
	ID       string
	TenantID string
	Name     string
	Metric   string
	Operator string // ==, !=, <, <=, >, >=
	Value    float64
	Where    map[string]any
	Severity string
	Active   bool
}

type BreachStatus string

const (
	BreachOpen     BreachStatus = "OPEN"
	BreachAcked    BreachStatus = "ACKED"
	BreachResolved BreachStatus = "RESOLVED"
)

type Breach struct {
	ID                 string
	TenantID           string
	RuleID             string
	ExposureVersionID  string
	RollupKeyHash      string
	RollupKeyJSON      map[string]any
	Status             BreachStatus
	MetricValue        float64
	ThresholdValue     float64
	FirstSeenAt        time.Time
	LastSeenAt         time.Time
	ResolvedAt         *time.Time
}

type DriftClassification string

const (
	DriftNew      DriftClassification = "NEW"
	DriftRemoved  DriftClassification = "REMOVED"
	DriftModified DriftClassification = "MODIFIED"
)

type DriftRun struct {
	ID                   string
	TenantID             string
	ExposureVersionAID   string
	ExposureVersionBID   string
	RunID                string
	SummaryJSON          DriftSummary
	ArtifactURI          string
	Checksum             string
	CreatedAt            time.Time
}

type DriftSummary struct {
	New      int `json:"NEW"`
	Removed  int `json:"REMOVED"`
	Modified int `json:"MODIFIED"`
	Total    int `json:"total"`
}

type DriftDetail struct {
	ID                  string
	TenantID            string
	DriftRunID          string
	ExternalLocationID  string
	Classification      DriftClassification
	DeltaJSON           map[string]any
}

type ResilienceScoreResult struct {
	ID                    string
	TenantID              string
	ExposureVersionID     string
	RunID                 string
	RequestFingerprint    string
	PolicyPackVersionID   *string
	HazardVersionIDs      []string
	ScoringConfig         map[string]any
	ScoringVersion        string
	CodeVersion           string
	LocationsProcessed    int
	CreatedAt             time.Time
}

type ResilienceScoreItem struct {
	ID                   string
	TenantID             string
	ResultID             string
	LocationID            string
	ResilienceScore      int
	RiskScore            float64
	PerilScores          map[string]PerilScore
	StructuralAdjustments map[string]float64
	Warnings             []string
	HazardsJSON          map[string]any
	StructuralJSON       map[string]any
	InputStructuralJSON  map[string]any
}

type PerilScore struct {
	Raw      float64 `json:"raw"`
	Adjusted float64 `json:"adjusted"`
	Weight   float64 `json:"weight"`
}

type PropertyProfile struct {
	ID                    string
	TenantID              string
	AddressFingerprint    string
	StandardizedAddress   map[string]any
	GeocodeJSON           map[string]any
	ParcelJSON            map[string]any
	CharacteristicsJSON   map[string]any
	StructuralJSON        map[string]any
	ProvenanceJSON        map[string]any
	UpdatedAt             time.Time
}

type PolicyPack struct {
	ID       string
	TenantID string
	Name     string
}

type PolicyPackVersion struct {
	ID                       string
	PolicyPackID             string
	VersionLabel             string
	ScoringConfigJSON        map[string]any
	UnderwritingPolicyJSON   map[string]any
	CreatedAt                time.Time
}

type RunType string

const (
	RunValidation         RunType = "VALIDATION"
	RunCommit             RunType = "COMMIT"
	RunGeocode            RunType = "GEOCODE"
	RunOverlay            RunType = "OVERLAY"
	RunRollup             RunType = "ROLLUP"
	RunBreachEval         RunType = "BREACH_EVAL"
	RunDrift              RunType = "DRIFT"
	RunResilienceScore    RunType = "RESILIENCE_SCORE"
	RunPropertyEnrichment RunType = "PROPERTY_ENRICHMENT"
	RunUWEval             RunType = "UW_EVAL"
)

// AllRunTypes is the closed set from spec.md §4.2.
var AllRunTypes = []RunType{
	RunValidation, RunCommit, RunGeocode, RunOverlay, RunRollup,
	RunBreachEval, RunDrift, RunResilienceScore, RunPropertyEnrichment, RunUWEval,
}

type RunStatus string

const (
	RunQueued    RunStatus = "QUEUED"
	RunRunning   RunStatus = "RUNNING"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
	RunCancelled RunStatus = "CANCELLED"
)

type Run struct {
	ID                 string
	TenantID           string
	RunType            RunType
	Status             RunStatus
	InputRefs          map[string]any
	ConfigRefs         map[string]any
	OutputRefs         map[string]any
	ArtifactChecksums  map[string]string
	CodeVersion        string
	CreatedBy          string
	RequestID          string
	TaskID             string
	CreatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
	CancelRequested    bool
}

type AuditEvent struct {
	ID        string
	TenantID  string
	Action    string
	UserID    string
	Metadata  map[string]any
	CreatedAt time.Time
}
