package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianrisk/exposure-engine/internal/control"
	"github.com/meridianrisk/exposure-engine/internal/domain"
	"github.com/meridianrisk/exposure-engine/internal/logging"
	"github.com/meridianrisk/exposure-engine/internal/store/memory"
)

func newTestHandler(t *testing.T) (http.Handler, *control.Application) {
	t.Helper()
	app, err := control.New(memory.New(), logging.NewTest())
	require.NoError(t, err)
	validator := NewStaticTokenValidator(map[string]Caller{
		"admin-token":    {TenantID: "tenant-1", Role: domain.RoleAdmin, UserID: "u-admin"},
		"analyst-token":  {TenantID: "tenant-1", Role: domain.RoleAnalyst, UserID: "u-analyst"},
		"readonly-token": {TenantID: "tenant-1", Role: domain.RoleReadOnly, UserID: "u-read"},
	})
	mux := newRouter(app, logging.NewTest())
	handler := wrapWithCORS(wrapWithAuth(mux, validator))
	return handler, app
}

func doRequest(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzIsPublic(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doRequest(h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMissingBearerTokenIsUnauthorized(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doRequest(h, http.MethodPost, "/hazard-datasets", "", `{"name":"flood","peril":"flood"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadOnlyRoleCannotCreateHazardDataset(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doRequest(h, http.MethodPost, "/hazard-datasets", "readonly-token", `{"name":"flood","peril":"flood"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminCanCreateHazardDataset(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doRequest(h, http.MethodPost, "/hazard-datasets", "admin-token", `{"name":"flood","peril":"flood"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["id"])
}

func TestCorrelationIDIsEchoedAsRequestID(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "corr-123", rec.Header().Get("X-Request-ID"))
}

func TestTriggerOverlayRequiresAnalystOrAbove(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doRequest(h, http.MethodPost, "/overlay", "analyst-token", `{"exposure_version_id":"ev-1","hazard_dataset_version_ids":["v-1"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["run_id"])
}

func TestGetUnknownRunReturnsNotFound(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doRequest(h, http.MethodGet, "/runs/does-not-exist", "admin-token", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
