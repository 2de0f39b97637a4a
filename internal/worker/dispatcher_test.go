package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianrisk/exposure-engine/internal/apperrors"
	"github.com/meridianrisk/exposure-engine/internal/domain"
	"github.com/meridianrisk/exposure-engine/internal/logging"
	"github.com/meridianrisk/exposure-engine/internal/runs"
)

type fakeRunStore struct {
	byID map[string]*domain.Run
}

func newFakeRunStore() *fakeRunStore { return &fakeRunStore{byID: map[string]*domain.Run{}} }

func (f *fakeRunStore) CreateRun(ctx context.Context, r *domain.Run) error {
	f.byID[r.ID] = r
	return nil
}
func (f *fakeRunStore) GetRun(ctx context.Context, tenantID, id string) (*domain.Run, error) {
	r, ok := f.byID[id]
	if !ok || r.TenantID != tenantID {
		return nil, assert.AnError
	}
	return r, nil
}
func (f *fakeRunStore) UpdateRun(ctx context.Context, r *domain.Run) error {
	f.byID[r.ID] = r
	return nil
}
func (f *fakeRunStore) ListQueuedRuns(ctx context.Context, runType domain.RunType, limit int) ([]*domain.Run, error) {
	var out []*domain.Run
	for _, r := range f.byID {
		if r.RunType == runType && r.Status == domain.RunQueued {
			out = append(out, r)
		}
	}
	return out, nil
}
func (f *fakeRunStore) RequestCancel(ctx context.Context, tenantID, id string) error { return nil }
func (f *fakeRunStore) FindRunInProgressByFingerprint(ctx context.Context, tenantID string, runType domain.RunType, fingerprint string) (*domain.Run, error) {
	return nil, nil
}

type succeedingHandler struct{ runType domain.RunType }

func (h succeedingHandler) RunType() domain.RunType { return h.runType }
func (h succeedingHandler) Handle(ctx context.Context, reg *runs.Registry, run *domain.Run) error {
	_, err := reg.Succeed(ctx, run.TenantID, run.ID, map[string]string{"artifact_uri": "s3://x"}, nil)
	return err
}

type failingHandler struct {
	runType domain.RunType
	err     error
}

func (h failingHandler) RunType() domain.RunType { return h.runType }
func (h failingHandler) Handle(ctx context.Context, reg *runs.Registry, run *domain.Run) error {
	return h.err
}

func TestDispatcher_DispatchesAndSucceeds(t *testing.T) {
	store := newFakeRunStore()
	reg := runs.New(store, logging.NewTest(), "v1")
	run, err := reg.Create(context.Background(), runs.CreateInput{TenantID: "t1", RunType: domain.RunOverlay})
	require.NoError(t, err)

	d := NewDispatcher(reg, logging.NewTest(), time.Hour, 10)
	d.RegisterHandler(succeedingHandler{runType: domain.RunOverlay})
	d.tick(context.Background())

	got, err := reg.Get(context.Background(), "t1", run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, got.Status)
}

func TestDispatcher_NonRetryableErrorFailsRun(t *testing.T) {
	store := newFakeRunStore()
	reg := runs.New(store, logging.NewTest(), "v1")
	run, err := reg.Create(context.Background(), runs.CreateInput{TenantID: "t1", RunType: domain.RunDrift})
	require.NoError(t, err)

	d := NewDispatcher(reg, logging.NewTest(), time.Hour, 10)
	d.RegisterHandler(failingHandler{runType: domain.RunDrift, err: apperrors.TaskFailure("boom", nil)})
	d.tick(context.Background())

	got, err := reg.Get(context.Background(), "t1", run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, got.Status)
}

func TestDispatcher_RetryableErrorReschedulesWithoutFailing(t *testing.T) {
	store := newFakeRunStore()
	reg := runs.New(store, logging.NewTest(), "v1")
	run, err := reg.Create(context.Background(), runs.CreateInput{TenantID: "t1", RunType: domain.RunResilienceScore})
	require.NoError(t, err)

	d := NewDispatcher(reg, logging.NewTest(), time.Hour, 10)
	d.RegisterHandler(failingHandler{runType: domain.RunResilienceScore, err: apperrors.Provider(true, "timeout", nil)})
	d.tick(context.Background())

	got, err := reg.Get(context.Background(), "t1", run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunRunning, got.Status)

	// Second tick within the backoff window should not re-dispatch.
	d.tick(context.Background())
	assert.False(t, d.shouldAttempt(run.ID, time.Now()))
	assert.False(t, store.byID[run.ID].CancelRequested)
}

func TestManager_StartStopOrderAndRollback(t *testing.T) {
	var order []string
	ok1 := &recordingService{name: "a", order: &order}
	ok2 := &recordingService{name: "b", order: &order}
	failing := &recordingService{name: "c", order: &order, failStart: true}

	m := NewManager()
	require.NoError(t, m.Register(ok1))
	require.NoError(t, m.Register(ok2))
	require.NoError(t, m.Register(failing))

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"start:a", "start:b", "start:c", "stop:b", "stop:a"}, order)
}

type recordingService struct {
	name      string
	order     *[]string
	failStart bool
}

func (r *recordingService) Name() string { return r.name }
func (r *recordingService) Start(ctx context.Context) error {
	*r.order = append(*r.order, "start:"+r.name)
	if r.failStart {
		return assert.AnError
	}
	return nil
}
func (r *recordingService) Stop(ctx context.Context) error {
	*r.order = append(*r.order, "stop:"+r.name)
	return nil
}
