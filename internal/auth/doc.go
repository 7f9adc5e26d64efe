// Package auth is the token-based identity layer: password hashing, signed
// bearer tokens, request authentication and role checks.
package auth
