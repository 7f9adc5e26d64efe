package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hongminglow/svcmon/internal/models"
	"github.com/hongminglow/svcmon/internal/storage"
)

// DefaultUser is an account to provision: seeded at startup or added from
// the command line.
type DefaultUser struct {
	Username string
	Password string
	Role     models.Role
}

func (u DefaultUser) validate() error {
	if u.Username == "" {
		return errors.New("account with empty username")
	}
	if u.Password == "" {
		return fmt.Errorf("account %s: empty password", u.Username)
	}
	if !u.Role.Valid() {
		return fmt.Errorf("account %s: unknown role %q", u.Username, u.Role)
	}
	return nil
}

// CreateAccount hashes the password with a fresh salt and stores the user.
// It returns storage.ErrAlreadyExists when the username is taken.
func CreateAccount(ctx context.Context, store storage.UserStore, hasher *Hasher, u DefaultUser) error {
	if err := u.validate(); err != nil {
		return err
	}
	salt, err := hasher.NewSalt()
	if err != nil {
		return err
	}
	ok, err := store.CreateUser(ctx, models.User{
		Username:     u.Username,
		PasswordHash: hasher.Hash(u.Password, salt),
		Salt:         salt,
		Role:         u.Role,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("create %s: %w", u.Username, err)
	}
	if !ok {
		return storage.ErrAlreadyExists
	}
	return nil
}

// BootstrapDefaultUsers creates each missing account. Users that already
// exist keep their hash, salt and role. It returns the usernames that were
// created.
func BootstrapDefaultUsers(ctx context.Context, store storage.UserStore, hasher *Hasher, users []DefaultUser) ([]string, error) {
	var created []string
	for _, du := range users {
		if err := du.validate(); err != nil {
			return created, err
		}

		_, err := store.FindByUsername(ctx, du.Username)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return created, fmt.Errorf("lookup %s: %w", du.Username, err)
		}

		err = CreateAccount(ctx, store, hasher, du)
		switch {
		case errors.Is(err, storage.ErrAlreadyExists):
			// created concurrently by another process
		case err != nil:
			return created, err
		default:
			created = append(created, du.Username)
		}
	}
	return created, nil
}
