package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/svcmon/internal/logging"
	"github.com/hongminglow/svcmon/internal/models"
	"github.com/hongminglow/svcmon/internal/storage"
)

func testSettings() Settings {
	return Settings{Secret: testSecret, TokenTTL: 7 * 24 * time.Hour, Iterations: MinIterations}
}

func newSeededAuthenticator(t *testing.T) (*Authenticator, *memStore) {
	t.Helper()
	store := newMemStore()
	a, err := NewAuthenticator(store, testSettings(), logging.NewNop())
	require.NoError(t, err)

	_, err = BootstrapDefaultUsers(context.Background(), store, a.Hasher(), []DefaultUser{
		{Username: "admin", Password: "admin123", Role: models.RoleAdmin},
		{Username: "user", Password: "user123", Role: models.RoleUser},
	})
	require.NoError(t, err)
	return a, store
}

func TestNewAuthenticator_InvalidSettings(t *testing.T) {
	_, err := NewAuthenticator(newMemStore(), Settings{Secret: testSecret, TokenTTL: time.Hour, Iterations: 10}, logging.NewNop())
	require.Error(t, err)

	_, err = NewAuthenticator(newMemStore(), Settings{TokenTTL: time.Hour, Iterations: MinIterations}, logging.NewNop())
	require.Error(t, err)
}

func TestLogin_Success(t *testing.T) {
	a, store := newSeededAuthenticator(t)
	ctx := context.Background()

	tok, err := a.Login(ctx, "admin", "admin123")
	require.NoError(t, err)

	claims, err := a.Tokens().Decode(tok)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, models.RoleAdmin, claims.Role)

	require.Len(t, store.sessions, 1)
	s := store.sessions[0]
	assert.Equal(t, "admin", s.Username)
	assert.Equal(t, tokenDigest(tok), s.TokenHash)
	assert.NotEqual(t, tok, s.TokenHash)
	assert.True(t, s.ExpiresAt.After(s.CreatedAt))
}

func TestLogin_UniformFailure(t *testing.T) {
	a, store := newSeededAuthenticator(t)
	ctx := context.Background()

	_, errUnknown := a.Login(ctx, "nobody", "admin123")
	_, errWrong := a.Login(ctx, "admin", "wrong-password")
	_, errCase := a.Login(ctx, "Admin", "admin123")

	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.ErrorIs(t, errWrong, ErrInvalidCredentials)
	assert.ErrorIs(t, errCase, ErrInvalidCredentials, "usernames are case-sensitive")
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
	assert.Empty(t, store.sessions)
}

func TestLogin_StoreFailureIsNotACredentialError(t *testing.T) {
	a, store := newSeededAuthenticator(t)
	store.findErr = errors.New("db down")

	_, err := a.Login(context.Background(), "admin", "admin123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
	assert.Contains(t, err.Error(), "db down")
}

func TestLogin_SessionAuditFailureDoesNotBlockLogin(t *testing.T) {
	a, store := newSeededAuthenticator(t)
	store.sessionErr = errors.New("sessions table locked")

	tok, err := a.Login(context.Background(), "user", "user123")
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
}

func TestAuthenticate(t *testing.T) {
	a, _ := newSeededAuthenticator(t)
	ctx := context.Background()

	tok, err := a.Login(ctx, "user", "user123")
	require.NoError(t, err)

	id, err := a.Authenticate(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, models.Identity{Username: "user", Role: models.RoleUser}, id)
}

func TestAuthenticate_InvalidTokens(t *testing.T) {
	a, _ := newSeededAuthenticator(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).Unix()

	noRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "admin", "exp": exp}).SignedString(testSecret)
	require.NoError(t, err)
	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "admin", "exp": exp}).SignedString(testSecret)
	require.NoError(t, err)
	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "admin", "role": "root", "exp": exp}).SignedString(testSecret)
	require.NoError(t, err)
	expired, err := a.Tokens().EncodeWithTTL(Claims{Subject: "admin", Role: models.RoleAdmin}, -time.Minute)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"empty":    "",
		"garbage":  "abc.def.ghi",
		"no role":  noRole,
		"no sub":   noSub,
		"bad role": badRole,
		"expired":  expired,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.Authenticate(ctx, tok)
			assert.ErrorIs(t, err, ErrUnauthorized)
			assert.Equal(t, ErrUnauthorized.Error(), err.Error(), "no detail about the failed check")
		})
	}
}

func TestAuthenticate_DeletedUserIsRejected(t *testing.T) {
	a, store := newSeededAuthenticator(t)
	ctx := context.Background()

	tok, err := a.Login(ctx, "user", "user123")
	require.NoError(t, err)
	require.NoError(t, store.DeleteUser(ctx, "user"))

	_, err = a.Authenticate(ctx, tok)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticate_UsesStoredRole(t *testing.T) {
	a, store := newSeededAuthenticator(t)
	ctx := context.Background()

	tok, err := a.Login(ctx, "admin", "admin123")
	require.NoError(t, err)

	demoted := store.users["admin"]
	demoted.Role = models.RoleUser
	store.users["admin"] = demoted

	id, err := a.Authenticate(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, id.Role)
	assert.ErrorIs(t, RequireRole(id, models.RoleAdmin), ErrForbidden)
}

func TestAuthenticate_StoreFailure(t *testing.T) {
	a, store := newSeededAuthenticator(t)
	ctx := context.Background()

	tok, err := a.Login(ctx, "admin", "admin123")
	require.NoError(t, err)

	store.findErr = errors.New("connection reset")
	_, err = a.Authenticate(ctx, tok)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestLogout_IsAcknowledgementOnly(t *testing.T) {
	a, _ := newSeededAuthenticator(t)
	ctx := context.Background()

	tok, err := a.Login(ctx, "user", "user123")
	require.NoError(t, err)
	id, err := a.Authenticate(ctx, tok)
	require.NoError(t, err)

	a.Logout(ctx, id)

	_, err = a.Authenticate(ctx, tok)
	assert.NoError(t, err, "stateless tokens remain valid until exp")
}

var _ storage.UserStore = (*memStore)(nil)
