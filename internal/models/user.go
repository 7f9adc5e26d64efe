package models

import "time"

// User is a persisted credential record.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Salt         string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the request-scoped caller resolved from a verified token.
type Identity struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}
