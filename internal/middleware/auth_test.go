package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/svcmon/internal/auth"
	"github.com/hongminglow/svcmon/internal/logging"
	"github.com/hongminglow/svcmon/internal/metrics"
	"github.com/hongminglow/svcmon/internal/models"
)

type stubAuthenticator map[string]models.Identity

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (models.Identity, error) {
	if token == "explode" {
		return models.Identity{}, errors.New("store unavailable")
	}
	id, ok := s[token]
	if !ok {
		return models.Identity{}, auth.ErrUnauthorized
	}
	return id, nil
}

var tokens = stubAuthenticator{
	"admin-token": {Username: "admin", Role: models.RoleAdmin},
	"user-token":  {Username: "user", Role: models.RoleUser},
}

func whoami(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	_, _ = w.Write([]byte(id.Username + ":" + id.Role.String()))
}

func serve(h http.Handler, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGuard_Authenticated(t *testing.T) {
	m := metrics.New()
	g := NewGuard(tokens, logging.NewNop(), m)
	h := g.Authenticated(whoami)

	rec := serve(h, "Bearer user-token")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user:user", rec.Body.String())

	rec = serve(h, "bearer admin-token")
	assert.Equal(t, http.StatusOK, rec.Code, "scheme is case-insensitive")
	assert.Equal(t, "admin:admin", rec.Body.String())

	for _, authz := range []string{"", "Bearer", "Bearer   ", "Basic dXNlcjp1c2VyMTIz", "user-token"} {
		rec = serve(h, authz)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, authz)
		assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
		assert.JSONEq(t, `{"detail":"Unauthorized"}`, rec.Body.String())
	}

	rec = serve(h, "Bearer forged")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.JSONEq(t, `{"detail":"Unauthorized"}`, rec.Body.String(), "missing and rejected tokens get the same body")

	assertRejections(t, m, `svcmon_auth_rejections_total{kind="unauthorized"} 6`)
}

func TestGuard_Admin(t *testing.T) {
	m := metrics.New()
	h := NewGuard(tokens, logging.NewNop(), m).Admin(whoami)

	rec := serve(h, "Bearer user-token")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"detail":"forbidden: admin role required"}`, rec.Body.String())
	assertRejections(t, m, `svcmon_auth_rejections_total{kind="forbidden"} 1`)

	rec = serve(h, "Bearer admin-token")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func assertRejections(t *testing.T, m *metrics.Metrics, series string) {
	t.Helper()
	expected := `
# HELP svcmon_auth_rejections_total Requests rejected by the auth gate (unauthorized, forbidden).
# TYPE svcmon_auth_rejections_total counter
` + series + "\n"
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "svcmon_auth_rejections_total"))
}

func TestGuard_StoreFailureIs500(t *testing.T) {
	h := NewGuard(tokens, logging.NewNop(), nil).Authenticated(whoami)

	rec := serve(h, "Bearer explode")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "store unavailable")
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "BEARER  abc.def.ghi ")
	tok, ok := bearerToken(req)
	assert.True(t, ok)
	assert.Equal(t, "abc.def.ghi", tok)
}
