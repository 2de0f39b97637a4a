package control

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianrisk/exposure-engine/internal/domain"
	"github.com/meridianrisk/exposure-engine/internal/logging"
	"github.com/meridianrisk/exposure-engine/internal/runs"
	"github.com/meridianrisk/exposure-engine/internal/store/memory"
)

func newTestApp(t *testing.T) (*Application, *memory.Store) {
	t.Helper()
	stores := memory.New()
	app, err := New(stores, logging.NewTest(), WithCodeVersion("test"))
	require.NoError(t, err)
	return app, stores
}

func TestNewRejectsNilStores(t *testing.T) {
	_, err := New(nil, logging.NewTest())
	assert.Error(t, err)
}

func TestEveryRunTypeHasAMatchingHandlerRunType(t *testing.T) {
	handlers := []interface{ RunType() domain.RunType }{
		&validationHandler{}, &commitHandler{}, &geocodeHandler{}, &overlayHandler{},
		&rollupHandler{}, &breachHandler{}, &driftHandler{}, &resilienceHandler{},
		&enrichmentHandler{}, &underwritingHandler{},
	}
	seen := map[domain.RunType]bool{}
	for _, h := range handlers {
		seen[h.RunType()] = true
	}
	for _, rt := range domain.AllRunTypes {
		assert.Truef(t, seen[rt], "no handler registered for run type %s", rt)
	}
}

func TestValidationHandlerSucceedsOnWellFormedUpload(t *testing.T) {
	app, stores := newTestApp(t)
	ctx := context.Background()

	upload := &domain.ExposureUpload{ID: "up-1", TenantID: "tenant-1"}
	require.NoError(t, stores.CreateUpload(ctx, upload))
	data := []byte("external_location_id,address_line1\nLOC-1,100 Main St\n")
	uri, checksum, err := app.Objects.Put(ctx, "tenant-1", "uploads/up-1/upload.csv", data)
	require.NoError(t, err)
	upload.ObjectURI, upload.Checksum = uri, checksum

	tmpl := &domain.MappingTemplate{
		ID: "tmpl-1", TenantID: "tenant-1", Name: "default", Version: 1,
		TemplateJSON: map[string]string{"external_location_id": "external_location_id", "address_line1": "address_line1"},
	}
	require.NoError(t, stores.CreateMappingTemplate(ctx, tmpl))
	require.NoError(t, stores.AttachMapping(ctx, "tenant-1", "up-1", "tmpl-1"))

	run, err := app.Runs.Create(ctx, runs.CreateInput{
		TenantID: "tenant-1", RunType: domain.RunValidation,
		InputRefs: map[string]any{"upload_id": "up-1"},
	})
	require.NoError(t, err)
	run, err = app.Runs.Start(ctx, "tenant-1", run.ID, "task-1")
	require.NoError(t, err)

	h := &validationHandler{app: app}
	require.NoError(t, h.Handle(ctx, app.Runs, run))

	finished, err := app.Runs.Get(ctx, "tenant-1", run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, finished.Status)
}

func TestCommitHandlerCreatesExposureVersionFromMappedRows(t *testing.T) {
	app, stores := newTestApp(t)
	ctx := context.Background()

	upload := &domain.ExposureUpload{ID: "up-2", TenantID: "tenant-1"}
	require.NoError(t, stores.CreateUpload(ctx, upload))
	data := []byte("external_location_id,address_line1,tiv\nLOC-1,100 Main St,1000\n")
	uri, checksum, err := app.Objects.Put(ctx, "tenant-1", "uploads/up-2/upload.csv", data)
	require.NoError(t, err)
	upload.ObjectURI, upload.Checksum = uri, checksum

	tmpl := &domain.MappingTemplate{
		ID: "tmpl-2", TenantID: "tenant-1", Name: "default", Version: 1,
		TemplateJSON: map[string]string{
			"external_location_id": "external_location_id",
			"address_line1":        "address_line1",
			"tiv":                  "tiv",
		},
	}
	require.NoError(t, stores.CreateMappingTemplate(ctx, tmpl))

	run, err := app.Runs.Create(ctx, runs.CreateInput{
		TenantID: "tenant-1", RunType: domain.RunCommit,
		InputRefs: map[string]any{"upload_id": "up-2", "mapping_template_id": "tmpl-2", "name": "commit-1"},
	})
	require.NoError(t, err)
	run, err = app.Runs.Start(ctx, "tenant-1", run.ID, "task-1")
	require.NoError(t, err)

	h := &commitHandler{app: app}
	require.NoError(t, h.Handle(ctx, app.Runs, run))

	finished, err := app.Runs.Get(ctx, "tenant-1", run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, finished.Status)
	assert.NotEmpty(t, finished.OutputRefs["exposure_version_id"])
}
