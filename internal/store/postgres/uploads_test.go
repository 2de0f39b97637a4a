package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianrisk/exposure-engine/internal/apperrors"
	"github.com/meridianrisk/exposure-engine/internal/domain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Store{BaseStore: &BaseStore{DB: sqlx.NewDb(db, "postgres")}}, mock
}

func TestGetTenantReturnsNotFoundWhenRowMissing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM tenants WHERE id=\$1`).
		WithArgs("tenant-404").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetTenant(context.Background(), "tenant-404")
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindNotFound, appErr.Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTenantMapsRowToDomainTenant(t *testing.T) {
	store, mock := newMockStore(t)
	packID := "pack-1"
	rows := sqlmock.NewRows([]string{"id", "name", "default_currency", "default_policy_pack_version_id"}).
		AddRow("tenant-1", "Acme Insurance", "USD", packID)
	mock.ExpectQuery(`SELECT \* FROM tenants WHERE id=\$1`).
		WithArgs("tenant-1").
		WillReturnRows(rows)

	tenant, err := store.GetTenant(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", tenant.ID)
	assert.Equal(t, "Acme Insurance", tenant.Name)
	require.NotNil(t, tenant.DefaultPolicyPackVersionID)
	assert.Equal(t, packID, *tenant.DefaultPolicyPackVersionID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUploadTranslatesUniqueViolationToConflict(t *testing.T) {
	store, mock := newMockStore(t)
	upload := &domain.ExposureUpload{
		ID: "up-1", TenantID: "tenant-1", ObjectURI: "mem://tenant-1/up-1.csv",
		Checksum: "abc123", CreatedAt: time.Unix(0, 0),
	}
	mock.ExpectExec(`INSERT INTO exposure_uploads`).
		WithArgs(upload.ID, upload.TenantID, upload.ObjectURI, upload.Checksum, nil, nil, upload.CreatedAt).
		WillReturnError(&pq.Error{Code: "23505"})

	err := store.CreateUpload(context.Background(), upload)
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindConflict, appErr.Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}
