package docstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/erx-dienst/erx-core/pkg/erx/docstore/dbdialect"
)

// SQLStore is the durable counterpart to Store: the same content-addressed
// blob semantics, backed by a SQL table instead of an in-memory map.
// Grounded on the teacher's store.SQLiteReceiptStore / Postgres receipt
// store split — one query set, two drivers selected by DSN shape.
type SQLStore struct {
	db      *sql.DB
	dialect dbdialect.Dialect
}

// OpenSQLStore opens dsn (a "postgres://..." URL or a filesystem path for
// SQLite, mirroring the teacher's DATABASE_URL-vs-Lite-Mode branch in
// cmd/helm/main.go's runServer) and migrates the documents table.
func OpenSQLStore(ctx context.Context, dsn string) (*SQLStore, error) {
	driver, dialect := dbdialect.For(dsn)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore: open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("docstore: ping %s: %w", driver, err)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// NewSQLStoreFromDB wraps an already-open *sql.DB, for callers (tests,
// or a composition root sharing one pool across stores) that manage the
// connection themselves.
func NewSQLStoreFromDB(ctx context.Context, db *sql.DB, dialect dbdialect.Dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			id   TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			data BLOB NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("docstore: migrate: %w", err)
	}
	return nil
}

// Put stores data under kind and returns its content address.
func (s *SQLStore) Put(ctx context.Context, kind, data string) (string, error) {
	return s.PutBytes(ctx, kind, []byte(data))
}

// PutBytes is Put for callers already holding a []byte.
func (s *SQLStore) PutBytes(ctx context.Context, kind string, data []byte) (string, error) {
	id := addressFor(kind, data)
	query := s.dialect.Rebind(`INSERT INTO documents (id, kind, data) VALUES (?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)
	if _, err := s.db.ExecContext(ctx, query, id, kind, data); err != nil {
		return "", fmt.Errorf("docstore: put: %w", err)
	}
	return id, nil
}

// Get retrieves the document at id.
func (s *SQLStore) Get(ctx context.Context, kind, id string) ([]byte, error) {
	query := s.dialect.Rebind(`SELECT data FROM documents WHERE id = ?`)
	var data []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: get: %w", err)
	}
	return data, nil
}

// Delete removes the document at id. Deleting an absent id is not an error.
func (s *SQLStore) Delete(ctx context.Context, kind, id string) error {
	query := s.dialect.Rebind(`DELETE FROM documents WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("docstore: delete: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error { return s.db.Close() }
