// Package dbdialect picks a database/sql driver name and placeholder
// style from a connection string, the same "DATABASE_URL set → postgres,
// otherwise sqlite" branch the teacher's cmd/helm/main.go runServer hard-
// codes inline, pulled out so both docstore and any other SQL-backed
// adapter can share it.
package dbdialect

import (
	"strconv"
	"strings"
)

// Dialect knows how to rewrite a "?"-placeholder query for its driver.
type Dialect interface {
	Rebind(query string) string
}

type sqliteDialect struct{}

func (sqliteDialect) Rebind(query string) string { return query }

type postgresDialect struct{}

// Rebind rewrites positional "?" placeholders to Postgres's "$1", "$2", ...
func (postgresDialect) Rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// For inspects dsn and returns the database/sql driver name to register
// under plus the matching Dialect. A "postgres://" or "postgresql://"
// prefix selects Postgres; anything else (a bare filesystem path, as the
// teacher's Lite Mode uses) selects SQLite.
func For(dsn string) (driver string, dialect Dialect) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", postgresDialect{}
	}
	return "sqlite", sqliteDialect{}
}
