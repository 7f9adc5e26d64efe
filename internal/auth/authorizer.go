package auth

import "github.com/hongminglow/svcmon/internal/models"

// RequireRole reports whether id may perform an operation needing required.
// Admins satisfy every requirement; users satisfy only RoleUser.
func RequireRole(id models.Identity, required models.Role) error {
	if satisfies(id.Role, required) {
		return nil
	}
	return &ForbiddenError{Required: required}
}

func satisfies(have, required models.Role) bool {
	switch have {
	case models.RoleAdmin:
		return required.Valid()
	case models.RoleUser:
		return required == models.RoleUser
	default:
		return false
	}
}
