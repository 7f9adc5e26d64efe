// Package sqlite opens the file-backed SQLite credential store, the default
// when no DATABASE_URL is configured.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/hongminglow/svcmon/internal/storage/sqlstore"
)

const (
	pragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	// timeFormat stores times as "YYYY-MM-DD HH:MM:SS.fff+HH:MM", which both
	// SQLite date functions and readers of TEXT columns understand.
	timeFormat = "_time_format=sqlite"

	// legacySessions receives a sessions table from older deployments, which
	// kept raw tokens as the primary key.
	legacySessions = "sessions_legacy"
)

// NewUserStore opens (creating if needed) the database file at path and
// applies migrations.
func NewUserStore(ctx context.Context, path string) (*sqlstore.Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: empty database path")
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	s := sqlstore.New(db, sqlstore.SQLite)
	if err := s.Ping(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := adoptLegacySessions(ctx, db); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func dsn(path string) string {
	params := pragmas + "&" + timeFormat
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return path + "?" + params
}

// adoptLegacySessions moves a sessions table without a token_hash column out
// of the way so the migrations can create the audit table. Legacy users
// tables need no change: their columns are a superset of what the store reads.
func adoptLegacySessions(ctx context.Context, db *sql.DB) error {
	columns, err := tableColumns(ctx, db, "sessions")
	if err != nil {
		return fmt.Errorf("inspect sessions table: %w", err)
	}
	if len(columns) == 0 || slices.Contains(columns, "token_hash") {
		return nil
	}
	if _, err := db.ExecContext(ctx, `ALTER TABLE sessions RENAME TO `+legacySessions); err != nil {
		return fmt.Errorf("rename legacy sessions table: %w", err)
	}
	return nil
}

// tableColumns lists the columns of table; none when it does not exist.
func tableColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}
