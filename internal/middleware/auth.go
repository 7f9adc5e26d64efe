package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/hongminglow/svcmon/internal/auth"
	"github.com/hongminglow/svcmon/internal/http/respond"
	"github.com/hongminglow/svcmon/internal/logging"
	"github.com/hongminglow/svcmon/internal/metrics"
	"github.com/hongminglow/svcmon/internal/models"
)

// Authenticator resolves a bearer token to the caller's identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Identity, error)
}

// unauthorizedDetail is the body of every 401 from the Guard. A missing header
// and a rejected token are indistinguishable to the caller.
const unauthorizedDetail = "Unauthorized"

type identityKey struct{}

// WithIdentity stores the authenticated caller in ctx.
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the caller stored by the Guard.
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(models.Identity)
	return id, ok
}

// Guard authenticates bearer tokens and enforces role requirements before a
// handler runs.
type Guard struct {
	auth    Authenticator
	logger  logging.Logger
	metrics *metrics.Metrics
}

// NewGuard builds a Guard. m may be nil.
func NewGuard(a Authenticator, logger logging.Logger, m *metrics.Metrics) *Guard {
	return &Guard{auth: a, logger: logger.With("component", "guard"), metrics: m}
}

// Authenticated admits any valid identity.
func (g *Guard) Authenticated(next http.HandlerFunc) http.Handler {
	return g.Require(models.RoleUser, next)
}

// Admin admits only administrators.
func (g *Guard) Admin(next http.HandlerFunc) http.Handler {
	return g.Require(models.RoleAdmin, next)
}

// Require admits callers whose role satisfies required.
func (g *Guard) Require(required models.Role, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, ok := bearerToken(r)
		if !ok {
			g.reject("unauthorized")
			respond.Unauthorized(w, unauthorizedDetail)
			return
		}

		id, err := g.auth.Authenticate(ctx, token)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				g.reject("unauthorized")
				respond.Unauthorized(w, unauthorizedDetail)
				return
			}
			g.logger.Error(ctx, "authenticate failed", "error", err)
			respond.Error(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		if err := auth.RequireRole(id, required); err != nil {
			g.reject("forbidden")
			g.logger.Warn(ctx, "forbidden", "username", id.Username, "role", id.Role, "required", required, "path", r.URL.Path)
			respond.Error(w, http.StatusForbidden, err.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, id)))
	})
}

func (g *Guard) reject(kind string) {
	if g.metrics != nil {
		g.metrics.AuthRejected(kind)
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>". The
// scheme is case-insensitive.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
