// Package runs implements the Run registry and state machine of
// spec.md §4.2: creation, cooperative cancellation, progress tracking and
// retry-as-new-Run, generalizing the oracle request lifecycle in
// internal/app/services/oracle/service.go (CreateRequest/MarkRunning/
// CompleteRequest/FailRequest) from a single request type to the full
// run_type closed set.
package runs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridianrisk/exposure-engine/internal/apperrors"
	"github.com/meridianrisk/exposure-engine/internal/domain"
	"github.com/meridianrisk/exposure-engine/internal/logging"
	"github.com/meridianrisk/exposure-engine/internal/store"
)

// Clock returns the current time; overridable in tests.
type Clock func() time.Time

// Registry creates and transitions Run records under the state machine
// QUEUED -> RUNNING -> {SUCCEEDED, FAILED, CANCELLED}, plus QUEUED ->
// CANCELLED and cooperative RUNNING -> CANCELLED.
type Registry struct {
	stores      store.RunStore
	log         *logging.Logger
	codeVersion string
	now         Clock
}

// New constructs a Registry. codeVersion is frozen onto every Run it
// creates, matching the Config-snapshot-per-task design in spec.md §9.
func New(stores store.RunStore, log *logging.Logger, codeVersion string) *Registry {
	if log == nil {
		log = logging.NewTest()
	}
	return &Registry{stores: stores, log: log, codeVersion: codeVersion, now: time.Now}
}

// CreateInput describes a new Run request.
type CreateInput struct {
	TenantID   string
	RunType    domain.RunType
	InputRefs  map[string]any
	ConfigRefs map[string]any
	CreatedBy  string
	RequestID  string
}

// Create inserts a new QUEUED Run. input_refs/config_refs are frozen at
// creation time per spec.md §5's shared-resource policy: tenant defaults
// are read at task start and frozen into config_refs by the caller before
// Create is invoked.
func (r *Registry) Create(ctx context.Context, in CreateInput) (*domain.Run, error) {
	if in.TenantID == "" {
		return nil, apperrors.Validation("tenant_id is required")
	}
	if !isKnownRunType(in.RunType) {
		return nil, apperrors.Validation(fmt.Sprintf("unknown run_type %q", in.RunType))
	}
	run := &domain.Run{
		ID:         uuid.New().String(),
		TenantID:   in.TenantID,
		RunType:    in.RunType,
		Status:     domain.RunQueued,
		InputRefs:  copyMap(in.InputRefs),
		ConfigRefs: copyMap(in.ConfigRefs),
		OutputRefs: map[string]any{},
		CodeVersion: r.codeVersion,
		CreatedBy:   in.CreatedBy,
		RequestID:   in.RequestID,
		CreatedAt:   r.now().UTC(),
	}
	if err := r.stores.CreateRun(ctx, run); err != nil {
		return nil, apperrors.DatabaseError("create_run", err)
	}
	r.log.LogRunTransition(ctx, run.ID, string(run.RunType), "", string(run.Status))
	return run, nil
}

func isKnownRunType(rt domain.RunType) bool {
	for _, known := range domain.AllRunTypes {
		if known == rt {
			return true
		}
	}
	return false
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Get fetches a tenant-scoped Run.
func (r *Registry) Get(ctx context.Context, tenantID, runID string) (*domain.Run, error) {
	run, err := r.stores.GetRun(ctx, tenantID, runID)
	if err != nil {
		return nil, apperrors.NotFound("run", runID)
	}
	return run, nil
}

// Start transitions a QUEUED Run to RUNNING. It is a no-op (returns the
// run unchanged) if the run was already cancelled while queued, signalling
// the caller to early-exit without doing any work — the at-least-once
// delivery contract of spec.md §4.3.
func (r *Registry) Start(ctx context.Context, tenantID, runID, taskID string) (*domain.Run, error) {
	run, err := r.Get(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	if run.Status == domain.RunCancelled {
		return run, nil
	}
	if run.Status != domain.RunQueued {
		return nil, apperrors.Conflict(fmt.Sprintf("run %s is %s, cannot start", runID, run.Status))
	}
	now := r.now().UTC()
	run.Status = domain.RunRunning
	run.StartedAt = &now
	run.TaskID = taskID
	if err := r.stores.UpdateRun(ctx, run); err != nil {
		return nil, apperrors.DatabaseError("update_run", err)
	}
	r.log.LogRunTransition(ctx, run.ID, string(run.RunType), string(domain.RunQueued), string(run.Status))
	return run, nil
}

// ShouldContinue reports whether a RUNNING handler may proceed past the
// next batch boundary: false once cancellation has been observed. Handlers
// call this at every checkpoint per spec.md §4.3's cooperative-cancel
// contract; it never preempts mid-batch.
func (r *Registry) ShouldContinue(ctx context.Context, tenantID, runID string) (bool, error) {
	run, err := r.Get(ctx, tenantID, runID)
	if err != nil {
		return false, err
	}
	return run.Status == domain.RunRunning && !run.CancelRequested, nil
}

// UpdateProgress merges progress fields into output_refs at a batch
// boundary, e.g. {processed, total}. It does not change status.
func (r *Registry) UpdateProgress(ctx context.Context, tenantID, runID string, progress map[string]any) error {
	run, err := r.Get(ctx, tenantID, runID)
	if err != nil {
		return err
	}
	if run.OutputRefs == nil {
		run.OutputRefs = map[string]any{}
	}
	for k, v := range progress {
		run.OutputRefs[k] = v
	}
	if err := r.stores.UpdateRun(ctx, run); err != nil {
		return apperrors.DatabaseError("update_run", err)
	}
	return nil
}

// Succeed transitions a RUNNING Run to SUCCEEDED. Callers must have
// already durably written their artifacts before calling this: spec.md §5
// requires artifact writes to precede the terminal status flip so that no
// observer polling status ever sees SUCCEEDED without a retrievable
// artifact. If cancellation was requested concurrently, Succeed still wins
// — the run already did the work and partial-cancel semantics only apply
// to runs that stopped short.
func (r *Registry) Succeed(ctx context.Context, tenantID, runID string, outputRefs, artifactChecksums map[string]string) (*domain.Run, error) {
	run, err := r.Get(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.RunRunning {
		return nil, apperrors.Conflict(fmt.Sprintf("run %s is %s, cannot succeed", runID, run.Status))
	}
	now := r.now().UTC()
	run.Status = domain.RunSucceeded
	run.CompletedAt = &now
	if run.ArtifactChecksums == nil {
		run.ArtifactChecksums = map[string]string{}
	}
	for k, v := range artifactChecksums {
		run.ArtifactChecksums[k] = v
	}
	if run.OutputRefs == nil {
		run.OutputRefs = map[string]any{}
	}
	for k, v := range outputRefs {
		run.OutputRefs[k] = v
	}
	if err := r.stores.UpdateRun(ctx, run); err != nil {
		return nil, apperrors.DatabaseError("update_run", err)
	}
	r.log.LogRunTransition(ctx, run.ID, string(run.RunType), string(domain.RunRunning), string(run.Status))
	return run, nil
}

// Fail transitions a RUNNING (or QUEUED, for pre-start validation
// failures) Run to FAILED. Partial artifacts already written are kept for
// inspection, matching the TaskFailure error kind in spec.md §7.
func (r *Registry) Fail(ctx context.Context, tenantID, runID string, cause error) (*domain.Run, error) {
	run, err := r.Get(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.RunRunning && run.Status != domain.RunQueued {
		return nil, apperrors.Conflict(fmt.Sprintf("run %s is %s, cannot fail", runID, run.Status))
	}
	now := r.now().UTC()
	from := run.Status
	run.Status = domain.RunFailed
	run.CompletedAt = &now
	if run.OutputRefs == nil {
		run.OutputRefs = map[string]any{}
	}
	if cause != nil {
		run.OutputRefs["error"] = cause.Error()
	}
	if err := r.stores.UpdateRun(ctx, run); err != nil {
		return nil, apperrors.DatabaseError("update_run", err)
	}
	r.log.LogRunTransition(ctx, run.ID, string(run.RunType), string(from), string(run.Status))
	return run, nil
}

// RequestCancel marks a QUEUED or RUNNING run for cancellation. QUEUED
// runs are cancelled immediately since no worker has observed them yet;
// RUNNING runs are cancelled cooperatively at the handler's next batch
// boundary via ShouldContinue/ObserveCancel.
func (r *Registry) RequestCancel(ctx context.Context, tenantID, runID string) (*domain.Run, error) {
	run, err := r.Get(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	switch run.Status {
	case domain.RunSucceeded, domain.RunFailed, domain.RunCancelled:
		return run, apperrors.Conflict(fmt.Sprintf("run %s is already terminal (%s)", runID, run.Status))
	case domain.RunQueued:
		now := r.now().UTC()
		run.Status = domain.RunCancelled
		run.CancelledAt = &now
		run.CancelRequested = true
		if err := r.stores.UpdateRun(ctx, run); err != nil {
			return nil, apperrors.DatabaseError("update_run", err)
		}
		r.log.LogRunTransition(ctx, run.ID, string(run.RunType), string(domain.RunQueued), string(run.Status))
		return run, nil
	default: // RUNNING
		if err := r.stores.RequestCancel(ctx, tenantID, runID); err != nil {
			return nil, apperrors.DatabaseError("request_cancel", err)
		}
		run.CancelRequested = true
		return run, nil
	}
}

// ObserveCancel finalizes a RUNNING run whose handler observed
// CancelRequested at a batch boundary and stopped early. output_refs
// should already carry the partial {processed, total} progress; callers
// pass it through extraOutputRefs for any last-mile fields.
func (r *Registry) ObserveCancel(ctx context.Context, tenantID, runID string, extraOutputRefs map[string]any) (*domain.Run, error) {
	run, err := r.Get(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.RunRunning {
		return nil, apperrors.Conflict(fmt.Sprintf("run %s is %s, cannot observe cancel", runID, run.Status))
	}
	now := r.now().UTC()
	run.Status = domain.RunCancelled
	run.CancelledAt = &now
	if run.OutputRefs == nil {
		run.OutputRefs = map[string]any{}
	}
	for k, v := range extraOutputRefs {
		run.OutputRefs[k] = v
	}
	if err := r.stores.UpdateRun(ctx, run); err != nil {
		return nil, apperrors.DatabaseError("update_run", err)
	}
	r.log.LogRunTransition(ctx, run.ID, string(run.RunType), string(domain.RunRunning), string(run.Status))
	return run, nil
}

// Retry creates a new QUEUED Run from a FAILED or CANCELLED run's
// input_refs/config_refs, per spec.md §5: "task-level retries are
// explicit via /runs/{id}/retry (create a new Run), not automatic." The
// caller is responsible for repointing stage-specific result rows (e.g.
// overlay/rollup/resilience/drift items produced by the old run) onto the
// new run's id after this returns.
func (r *Registry) Retry(ctx context.Context, tenantID, runID, createdBy, requestID string) (*domain.Run, error) {
	old, err := r.Get(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	if old.Status != domain.RunFailed && old.Status != domain.RunCancelled {
		return nil, apperrors.Conflict(fmt.Sprintf("run %s is %s, only FAILED/CANCELLED runs can be retried", runID, old.Status))
	}
	return r.Create(ctx, CreateInput{
		TenantID:   tenantID,
		RunType:    old.RunType,
		InputRefs:  old.InputRefs,
		ConfigRefs: old.ConfigRefs,
		CreatedBy:  createdBy,
		RequestID:  requestID,
	})
}

// ListQueued returns up to limit QUEUED or RUNNING runs of the given type,
// oldest first, for worker dispatch. RUNNING runs are included so a run
// left RUNNING after a retryable failure is picked up again.
func (r *Registry) ListQueued(ctx context.Context, runType domain.RunType, limit int) ([]*domain.Run, error) {
	return r.stores.ListQueuedRuns(ctx, runType, limit)
}

// FindInProgressByFingerprint looks up a non-terminal run sharing a
// request_fingerprint, used by scoreResilienceBatch's idempotency check
// in spec.md §8: two calls with an equal fingerprint within the window
// return the same result id, or EXISTING_IN_PROGRESS/EXISTING_SUCCEEDED.
func (r *Registry) FindInProgressByFingerprint(ctx context.Context, tenantID string, runType domain.RunType, fingerprint string) (*domain.Run, error) {
	run, err := r.stores.FindRunInProgressByFingerprint(ctx, tenantID, runType, fingerprint)
	if err != nil {
		return nil, apperrors.DatabaseError("find_run_by_fingerprint", err)
	}
	return run, nil
}
