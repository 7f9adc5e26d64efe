package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/hongminglow/svcmon/internal/logging"
	"github.com/hongminglow/svcmon/internal/models"
	"github.com/hongminglow/svcmon/internal/storage"
)

// Settings is the immutable process-wide auth configuration. It is read once
// at startup; rotating the secret means building a new Authenticator.
type Settings struct {
	Secret     []byte
	TokenTTL   time.Duration
	Iterations int
}

// Authenticator turns credentials into tokens and tokens into identities.
type Authenticator struct {
	store  storage.UserStore
	hasher *Hasher
	tokens *TokenCodec
	logger logging.Logger

	// dummySalt/dummyHash let Login spend the same KDF work for unknown users.
	dummySalt string
	dummyHash string
}

// NewAuthenticator wires the credential store with a hasher and codec built
// from settings.
func NewAuthenticator(store storage.UserStore, settings Settings, logger logging.Logger, opts ...CodecOption) (*Authenticator, error) {
	hasher, err := NewHasher(settings.Iterations)
	if err != nil {
		return nil, err
	}
	tokens, err := NewTokenCodec(settings.Secret, settings.TokenTTL, opts...)
	if err != nil {
		return nil, err
	}
	salt, err := hasher.NewSalt()
	if err != nil {
		return nil, err
	}
	return &Authenticator{
		store:     store,
		hasher:    hasher,
		tokens:    tokens,
		logger:    logger.With("component", "auth"),
		dummySalt: salt,
		dummyHash: hasher.Hash("", salt),
	}, nil
}

// Hasher returns the password hasher built from the settings.
func (a *Authenticator) Hasher() *Hasher {
	return a.hasher
}

// Tokens returns the codec used to mint and verify bearer tokens.
func (a *Authenticator) Tokens() *TokenCodec {
	return a.tokens
}

// Login checks username/password and returns a signed token. Unknown users and
// wrong passwords both yield ErrInvalidCredentials.
func (a *Authenticator) Login(ctx context.Context, username, password string) (string, error) {
	user, err := a.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.hasher.Verify(password, a.dummySalt, a.dummyHash)
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("find user: %w", err)
	}
	if !a.hasher.Verify(password, user.Salt, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	token, err := a.tokens.Encode(Claims{Subject: user.Username, Role: user.Role})
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}

	now := time.Now()
	session := storage.Session{
		TokenHash: tokenDigest(token),
		Username:  user.Username,
		ExpiresAt: now.Add(a.tokens.TTL()),
		CreatedAt: now,
	}
	if err := a.store.RecordSession(ctx, session); err != nil {
		a.logger.Warn(ctx, "record session failed", "username", user.Username, "error", err)
	}

	a.logger.Info(ctx, "login succeeded", "username", user.Username, "role", user.Role)
	return token, nil
}

// Authenticate verifies token and re-resolves its subject against the store on
// every call, so deleted accounts are rejected even with an unexpired token.
// The returned role is the one currently stored for the user.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (models.Identity, error) {
	claims, err := a.tokens.Decode(token)
	if err != nil {
		return models.Identity{}, ErrUnauthorized
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return models.Identity{}, ErrUnauthorized
	}

	user, err := a.store.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Identity{}, ErrUnauthorized
		}
		return models.Identity{}, fmt.Errorf("resolve identity: %w", err)
	}

	return models.Identity{Username: user.Username, Role: user.Role}, nil
}

// Logout acknowledges a logout. Tokens stay valid until exp: there is no
// server-side revocation list.
func (a *Authenticator) Logout(ctx context.Context, id models.Identity) {
	a.logger.Info(ctx, "logout acknowledged", "username", id.Username)
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
