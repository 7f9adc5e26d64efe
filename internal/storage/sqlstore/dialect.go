package sqlstore

import (
	"regexp"
)

// Dialect selects placeholder style and migration set.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// String names the dialect; it is also the migrations subdirectory.
func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// gooseDialect is the name goose.SetDialect expects.
func (d Dialect) gooseDialect() string {
	if d == SQLite {
		return "sqlite3"
	}
	return "pgx"
}

var numberedPlaceholder = regexp.MustCompile(`\$\d+`)

// rebind rewrites $N placeholders to ? for SQLite. Queries must use each
// placeholder once, in ascending order.
func (d Dialect) rebind(query string) string {
	if d != SQLite {
		return query
	}
	return numberedPlaceholder.ReplaceAllString(query, "?")
}
