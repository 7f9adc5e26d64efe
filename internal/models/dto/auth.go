package dto

import "github.com/hongminglow/svcmon/internal/models"

// TokenResponse is returned by POST /auth/token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// MeResponse is the caller identity returned by GET /auth/me.
type MeResponse struct {
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
}

// MessageResponse is a plain acknowledgment.
type MessageResponse struct {
	Message string `json:"message"`
}
