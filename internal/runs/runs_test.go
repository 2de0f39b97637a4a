package runs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianrisk/exposure-engine/internal/domain"
	"github.com/meridianrisk/exposure-engine/internal/logging"
)

type fakeStore struct {
	byID map[string]*domain.Run
}

func newFakeStore() *fakeStore { return &fakeStore{byID: map[string]*domain.Run{}} }

func (f *fakeStore) CreateRun(ctx context.Context, r *domain.Run) error {
	f.byID[r.ID] = r
	return nil
}

func (f *fakeStore) GetRun(ctx context.Context, tenantID, id string) (*domain.Run, error) {
	r, ok := f.byID[id]
	if !ok || r.TenantID != tenantID {
		return nil, assert.AnError
	}
	return r, nil
}

func (f *fakeStore) UpdateRun(ctx context.Context, r *domain.Run) error {
	f.byID[r.ID] = r
	return nil
}

func (f *fakeStore) ListQueuedRuns(ctx context.Context, runType domain.RunType, limit int) ([]*domain.Run, error) {
	var out []*domain.Run
	for _, r := range f.byID {
		if r.RunType == runType && r.Status == domain.RunQueued {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) RequestCancel(ctx context.Context, tenantID, id string) error {
	r, ok := f.byID[id]
	if !ok || r.TenantID != tenantID {
		return assert.AnError
	}
	r.CancelRequested = true
	return nil
}

func (f *fakeStore) FindRunInProgressByFingerprint(ctx context.Context, tenantID string, runType domain.RunType, fingerprint string) (*domain.Run, error) {
	return nil, nil
}

func newRegistry() (*Registry, *fakeStore) {
	s := newFakeStore()
	return New(s, logging.NewTest(), "test-code-version"), s
}

func TestCreate_RejectsUnknownRunType(t *testing.T) {
	reg, _ := newRegistry()
	_, err := reg.Create(context.Background(), CreateInput{TenantID: "t1", RunType: "BOGUS"})
	require.Error(t, err)
}

func TestCreate_SetsQueuedAndCodeVersion(t *testing.T) {
	reg, _ := newRegistry()
	run, err := reg.Create(context.Background(), CreateInput{TenantID: "t1", RunType: domain.RunValidation})
	require.NoError(t, err)
	assert.Equal(t, domain.RunQueued, run.Status)
	assert.Equal(t, "test-code-version", run.CodeVersion)
}

func TestStart_TransitionsQueuedToRunning(t *testing.T) {
	reg, _ := newRegistry()
	run, _ := reg.Create(context.Background(), CreateInput{TenantID: "t1", RunType: domain.RunOverlay})
	started, err := reg.Start(context.Background(), "t1", run.ID, "task-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunRunning, started.Status)
	assert.NotNil(t, started.StartedAt)
}

func TestStart_NoOpIfAlreadyCancelledWhileQueued(t *testing.T) {
	reg, _ := newRegistry()
	run, _ := reg.Create(context.Background(), CreateInput{TenantID: "t1", RunType: domain.RunOverlay})
	_, err := reg.RequestCancel(context.Background(), "t1", run.ID)
	require.NoError(t, err)
	started, err := reg.Start(context.Background(), "t1", run.ID, "task-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunCancelled, started.Status)
}

func TestRequestCancel_QueuedCancelsImmediately(t *testing.T) {
	reg, _ := newRegistry()
	run, _ := reg.Create(context.Background(), CreateInput{TenantID: "t1", RunType: domain.RunRollup})
	cancelled, err := reg.RequestCancel(context.Background(), "t1", run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCancelled, cancelled.Status)
}

func TestRequestCancel_RunningIsCooperative(t *testing.T) {
	reg, s := newRegistry()
	run, _ := reg.Create(context.Background(), CreateInput{TenantID: "t1", RunType: domain.RunRollup})
	_, err := reg.Start(context.Background(), "t1", run.ID, "task-1")
	require.NoError(t, err)
	_, err = reg.RequestCancel(context.Background(), "t1", run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunRunning, s.byID[run.ID].Status)
	assert.True(t, s.byID[run.ID].CancelRequested)

	cont, err := reg.ShouldContinue(context.Background(), "t1", run.ID)
	require.NoError(t, err)
	assert.False(t, cont)

	finalRun, err := reg.ObserveCancel(context.Background(), "t1", run.ID, map[string]any{"processed": 400, "total": 1000})
	require.NoError(t, err)
	assert.Equal(t, domain.RunCancelled, finalRun.Status)
	assert.Equal(t, 400, finalRun.OutputRefs["processed"])
}

func TestSucceed_RequiresRunningStatus(t *testing.T) {
	reg, _ := newRegistry()
	run, _ := reg.Create(context.Background(), CreateInput{TenantID: "t1", RunType: domain.RunDrift})
	_, err := reg.Succeed(context.Background(), "t1", run.ID, nil, nil)
	assert.Error(t, err)
}

func TestSucceed_MergesChecksumsAndOutputRefs(t *testing.T) {
	reg, _ := newRegistry()
	run, _ := reg.Create(context.Background(), CreateInput{TenantID: "t1", RunType: domain.RunDrift})
	_, err := reg.Start(context.Background(), "t1", run.ID, "task-1")
	require.NoError(t, err)
	done, err := reg.Succeed(context.Background(), "t1", run.ID,
		map[string]string{"artifact_uri": "s3://bucket/drift.json"},
		map[string]string{"drift_summary": "abc123"})
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, done.Status)
	assert.Equal(t, "abc123", done.ArtifactChecksums["drift_summary"])
	assert.NotNil(t, done.CompletedAt)
}

func TestFail_RecordsErrorInOutputRefs(t *testing.T) {
	reg, _ := newRegistry()
	run, _ := reg.Create(context.Background(), CreateInput{TenantID: "t1", RunType: domain.RunGeocode})
	_, err := reg.Start(context.Background(), "t1", run.ID, "task-1")
	require.NoError(t, err)
	failed, err := reg.Fail(context.Background(), "t1", run.ID, assert.AnError)
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, failed.Status)
	assert.NotEmpty(t, failed.OutputRefs["error"])
}

func TestRetry_CreatesNewRunFromFailedWithSameRefs(t *testing.T) {
	reg, _ := newRegistry()
	run, _ := reg.Create(context.Background(), CreateInput{
		TenantID:  "t1",
		RunType:   domain.RunOverlay,
		InputRefs: map[string]any{"exposure_version_id": "ev1"},
	})
	_, err := reg.Start(context.Background(), "t1", run.ID, "task-1")
	require.NoError(t, err)
	_, err = reg.Fail(context.Background(), "t1", run.ID, assert.AnError)
	require.NoError(t, err)

	retried, err := reg.Retry(context.Background(), "t1", run.ID, "user1", "req-2")
	require.NoError(t, err)
	assert.NotEqual(t, run.ID, retried.ID)
	assert.Equal(t, domain.RunQueued, retried.Status)
	assert.Equal(t, "ev1", retried.InputRefs["exposure_version_id"])
}

func TestRetry_RejectsNonTerminalRun(t *testing.T) {
	reg, _ := newRegistry()
	run, _ := reg.Create(context.Background(), CreateInput{TenantID: "t1", RunType: domain.RunOverlay})
	_, err := reg.Retry(context.Background(), "t1", run.ID, "user1", "req-2")
	assert.Error(t, err)
}

func TestUpdateProgress_MergesIntoOutputRefs(t *testing.T) {
	reg, _ := newRegistry()
	run, _ := reg.Create(context.Background(), CreateInput{TenantID: "t1", RunType: domain.RunResilienceScore})
	_, err := reg.Start(context.Background(), "t1", run.ID, "task-1")
	require.NoError(t, err)
	err = reg.UpdateProgress(context.Background(), "t1", run.ID, map[string]any{"processed": 1000, "total": 5000})
	require.NoError(t, err)
	got, err := reg.Get(context.Background(), "t1", run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1000, got.OutputRefs["processed"])
}
