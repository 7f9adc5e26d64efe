package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/hongminglow/svcmon/internal/auth"
	"github.com/hongminglow/svcmon/internal/http/respond"
	"github.com/hongminglow/svcmon/internal/logging"
	"github.com/hongminglow/svcmon/internal/metrics"
	"github.com/hongminglow/svcmon/internal/middleware"
	"github.com/hongminglow/svcmon/internal/models/dto"
)

const maxFormBytes = 1 << 16

// AuthHandler owns the token endpoint and the caller-introspection routes.
type AuthHandler struct {
	authn   *auth.Authenticator
	guard   *middleware.Guard
	metrics *metrics.Metrics
	logger  logging.Logger
}

// NewAuthHandler constructs an AuthHandler. m may be nil.
func NewAuthHandler(authn *auth.Authenticator, guard *middleware.Guard, m *metrics.Metrics, logger logging.Logger) *AuthHandler {
	return &AuthHandler{authn: authn, guard: guard, metrics: m, logger: logger.With("handler", "auth")}
}

// Register attaches auth routes to the mux.
func (h *AuthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/token", h.handleToken)
	mux.Handle("GET /auth/me", h.guard.Authenticated(h.handleMe))
	mux.Handle("POST /auth/logout", h.guard.Authenticated(h.handleLogout))
}

// handleToken implements the OAuth2 password grant shape: a form-encoded
// username and password in, a bearer token out.
func (h *AuthHandler) handleToken(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid form payload")
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if strings.TrimSpace(username) == "" || password == "" {
		respond.Error(w, http.StatusUnprocessableEntity, "username and password are required")
		return
	}

	token, err := h.authn.Login(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.countLogin("invalid")
			h.logger.Warn(r.Context(), "login rejected", "username", username)
			respond.Unauthorized(w, "Invalid credentials")
			return
		}
		h.countLogin("error")
		h.logger.Error(r.Context(), "login failed", "username", username, "error", err)
		respond.Error(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.countLogin("success")
	respond.JSON(w, http.StatusOK, dto.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(h.authn.Tokens().TTL().Seconds()),
	})
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	respond.JSON(w, http.StatusOK, dto.MeResponse{Username: id.Username, Role: id.Role})
}

// handleLogout acknowledges the request. The token remains valid until it
// expires; clients are expected to discard it.
func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	h.authn.Logout(r.Context(), id)
	respond.JSON(w, http.StatusOK, dto.MessageResponse{Message: "Logged out"})
}

func (h *AuthHandler) countLogin(result string) {
	if h.metrics != nil {
		h.metrics.LoginAttempt(result)
	}
}
