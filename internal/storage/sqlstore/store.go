// Package sqlstore is the database/sql credential store shared by the
// Postgres and SQLite backends.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/hongminglow/svcmon/internal/dbx"
	"github.com/hongminglow/svcmon/internal/models"
	"github.com/hongminglow/svcmon/internal/storage"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

var _ storage.UserStore = (*Store)(nil)

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Store implements storage.UserStore over a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	closers []func()
}

// Option customises a Store.
type Option func(*Store)

// WithCloser registers fn to run after the *sql.DB is closed, e.g. to release
// the pgx pool behind it.
func WithCloser(fn func()) Option {
	return func(s *Store) {
		s.closers = append(s.closers, fn)
	}
}

// New wraps db, an open handle for dialect. Call Migrate before use.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{db: db, dialect: dialect}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate applies the embedded schema for the store's dialect.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect(s.dialect.gooseDialect()); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, s.db, "migrations/"+s.dialect.String()); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// FindByUsername fetches a user by exact, case-sensitive username.
func (s *Store) FindByUsername(ctx context.Context, username string) (models.User, error) {
	const query = `SELECT id, username, password_hash, salt, role, created_at FROM users WHERE username = $1`

	var (
		user      models.User
		role      string
		createdAt any
	)
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(query), username).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Salt, &role, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, storage.ErrNotFound
		}
		return models.User{}, fmt.Errorf("db error: %w", err)
	}

	user.Role, err = models.ParseRole(role)
	if err != nil {
		return models.User{}, fmt.Errorf("user %s: %w", username, err)
	}
	user.CreatedAt, err = parseTimestamp(createdAt)
	if err != nil {
		return models.User{}, fmt.Errorf("user %s created_at: %w", username, err)
	}
	return user, nil
}

// CreateUser inserts user unless the username is already taken.
func (s *Store) CreateUser(ctx context.Context, user models.User) (bool, error) {
	const query = `INSERT INTO users (username, password_hash, salt, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (username) DO NOTHING`

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	var created bool
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, s.dialect.rebind(query),
			user.Username, user.PasswordHash, user.Salt, user.Role.String(), user.CreatedAt.UTC())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

// DeleteUser removes the user and their session audit rows.
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	const (
		deleteSessions = `DELETE FROM sessions WHERE username = $1`
		deleteUser     = `DELETE FROM users WHERE username = $1`
	)

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(deleteSessions), username); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.dialect.rebind(deleteUser), username)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// RecordSession appends a session audit row.
func (s *Store) RecordSession(ctx context.Context, session storage.Session) error {
	const query = `INSERT INTO sessions (username, token_hash, created_at, expires_at) VALUES ($1, $2, $3, $4)`

	_, err := s.db.ExecContext(ctx, s.dialect.rebind(query),
		session.Username, session.TokenHash, session.CreatedAt.UTC(), session.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle and anything registered with WithCloser.
func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
	for _, fn := range s.closers {
		fn()
	}
}
