package auth

import (
	"errors"
	"fmt"

	"github.com/hongminglow/svcmon/internal/models"
)

var (
	// ErrInvalidCredentials is returned by Login for an unknown username and
	// for a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorized covers every missing, malformed, expired, forged or
	// orphaned token. Callers get no detail on which check failed.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden matches any *ForbiddenError.
	ErrForbidden = errors.New("forbidden")

	ErrInvalidClaims = errors.New("invalid token claims")
)

// ForbiddenError is returned when a proven identity lacks the role an
// operation requires.
type ForbiddenError struct {
	Required models.Role
}

// Error names the missing role.
func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s role required", e.Required)
}

// Is makes errors.Is(err, ErrForbidden) match.
func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}
