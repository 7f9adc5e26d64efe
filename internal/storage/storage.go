package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hongminglow/svcmon/internal/models"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict.
var ErrAlreadyExists = errors.New("record already exists")

// Session is an audit row written when a token is issued. TokenHash is the
// SHA-256 hex digest of the bearer token; the token itself is never stored.
type Session struct {
	TokenHash string
	Username  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// UserStore is the credential store: the source of truth for identities.
// Implementations must be safe for concurrent use.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (models.User, error)
	// CreateUser inserts user unless the username is taken. It reports whether
	// a row was created; an existing row is left untouched.
	CreateUser(ctx context.Context, user models.User) (bool, error)
	DeleteUser(ctx context.Context, username string) error
	RecordSession(ctx context.Context, session Session) error
	Ping(ctx context.Context) error
	Close()
}
