package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/place-resolver/internal/model"
)

var pgNow = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := newPostgresWithPool(mock)
	s.nowFunc = func() time.Time { return pgNow }
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS resolution_cache`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_Hit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"value", "created_at", "expires_at"}).
		AddRow([]byte("payload"), pgNow, pgNow.Add(time.Hour))
	mock.ExpectQuery(`SELECT value, created_at, expires_at FROM resolution_cache WHERE key = \$1`).
		WithArgs("k", pgNow).
		WillReturnRows(rows)

	e, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "payload", string(e.Value))
	assert.Equal(t, pgNow.Add(time.Hour), e.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT value, created_at, expires_at FROM resolution_cache`).
		WithArgs("nope", pgNow).
		WillReturnError(pgx.ErrNoRows)

	e, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT value`).
		WithArgs("k", pgNow).
		WillReturnError(errors.New("conn lost"))

	_, err := s.Get(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get cache entry")
}

func TestPostgresStore_Set(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO resolution_cache`).
		WithArgs("k", []byte("v"), pgNow, pgNow.Add(2*time.Hour)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Set(context.Background(), "k", []byte("v"), 2*time.Hour))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Set_ZeroTTLDeletes(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM resolution_cache WHERE key = \$1`).
		WithArgs("k").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, s.Set(context.Background(), "k", nil, 0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteExpired(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM resolution_cache WHERE expires_at <= \$1`).
		WithArgs(pgNow).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := s.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordRejections(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"disambiguation_audit"}, auditColumns).WillReturnResult(1)

	recs := []model.Rejection{{
		SubjectName: "Lofthus", Kind: model.KindPOI, ProviderID: "nominatim",
		Level: model.LevelLocal, Value: "Lofthus, MN", Reason: "country mismatch: US",
	}}
	require.NoError(t, s.RecordRejections(context.Background(), recs))
	assert.NotEmpty(t, recs[0].ID)
	assert.Equal(t, pgNow, recs[0].CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRejections(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows(auditColumns).
		AddRow("id-1", "Lofthus", "poi", "nominatim", "Local", "Lofthus, MN", "country mismatch: US", pgNow)
	mock.ExpectQuery(`FROM disambiguation_audit WHERE subject_name = \$1 AND artifact_kind = \$2 ORDER BY created_at DESC LIMIT \$3`).
		WithArgs("Lofthus", "poi", defaultListLimit).
		WillReturnRows(rows)

	got, err := s.ListRejections(context.Background(), RejectionFilter{SubjectName: "Lofthus", Kind: model.KindPOI})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.KindPOI, got[0].Kind)
	assert.Equal(t, model.LevelLocal, got[0].Level)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRejections_NoFilter(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM disambiguation_audit ORDER BY created_at DESC LIMIT \$1`).
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows(auditColumns))

	got, err := s.ListRejections(context.Background(), RejectionFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close(t *testing.T) {
	s, _ := newMockPostgresStore(t)
	assert.NoError(t, s.Close())
}
