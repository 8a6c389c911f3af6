package docstore

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS documents").WillReturnResult(sqlmock.NewResult(0, 0))

	s, err := NewSQLStoreFromDB(context.Background(), db, sqliteLikeDialect{})
	require.NoError(t, err)
	return s, mock
}

// sqliteLikeDialect leaves "?" placeholders untouched, matching the
// queries sqlmock's default regexp matcher expects in these tests.
type sqliteLikeDialect struct{}

func (sqliteLikeDialect) Rebind(query string) string { return query }

func TestSQLStorePutBytesInsertsContentAddressedRow(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	kind := "e-prescription"
	data := []byte("signed-bundle-bytes")
	id := addressFor(kind, data)

	mock.ExpectExec("INSERT INTO documents").
		WithArgs(id, kind, data).
		WillReturnResult(sqlmock.NewResult(1, 1))

	got, err := s.PutBytes(ctx, kind, data)
	require.NoError(t, err)
	require.Equal(t, id, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreGetNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT data FROM documents").
		WithArgs("missing-id").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	_, err := s.Get(ctx, "e-prescription", "missing-id")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreDelete(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("DELETE FROM documents").
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Delete(ctx, "e-prescription", "doc-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
