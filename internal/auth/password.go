package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// MinIterations is the lowest accepted PBKDF2 work factor.
	MinIterations = 100_000

	SaltBytes = 16
	keyLength = sha256.Size
)

// Hasher derives and verifies salted PBKDF2-HMAC-SHA256 password digests.
// Digests and salts are hex strings; the salt's hex text is the KDF salt input.
type Hasher struct {
	iterations int
}

// NewHasher returns a hasher running iterations PBKDF2 rounds. Fewer than
// MinIterations is an error.
func NewHasher(iterations int) (*Hasher, error) {
	if iterations < MinIterations {
		return nil, fmt.Errorf("password hash iterations %d below minimum %d", iterations, MinIterations)
	}
	return &Hasher{iterations: iterations}, nil
}

// NewSalt returns SaltBytes of crypto/rand output, hex encoded.
func (h *Hasher) NewSalt() (string, error) {
	b := make([]byte, SaltBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Hash returns the hex digest of password under salt.
func (h *Hasher) Hash(password, salt string) string {
	return hex.EncodeToString(h.derive(password, salt))
}

// Verify recomputes the digest and compares it in constant time. A malformed
// expected digest yields false.
func (h *Hasher) Verify(password, salt, expected string) bool {
	want, err := hex.DecodeString(expected)
	if err != nil || len(want) != keyLength {
		return false
	}
	return subtle.ConstantTimeCompare(h.derive(password, salt), want) == 1
}

func (h *Hasher) derive(password, salt string) []byte {
	return pbkdf2.Key([]byte(password), []byte(salt), h.iterations, keyLength, sha256.New)
}
