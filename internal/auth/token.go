package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hongminglow/svcmon/internal/models"
)

// Claims is the decoded claim set of a bearer token.
type Claims struct {
	Subject   string
	Role      models.Role
	ExpiresAt time.Time
}

// tokenClaims is the wire payload: {"sub", "role", "exp"}.
type tokenClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec mints and verifies HS256 bearer tokens.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// CodecOption configures a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock overrides the time source used for exp computation and checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) { c.now = now }
}

// NewTokenCodec creates a codec signing with secret and issuing tokens valid for ttl.
func NewTokenCodec(secret []byte, ttl time.Duration, opts ...CodecOption) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	c := &TokenCodec{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)
	return c, nil
}

// TTL returns the lifetime of tokens minted by Encode.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Encode mints a token for claims expiring after the codec's ttl.
func (c *TokenCodec) Encode(claims Claims) (string, error) {
	return c.EncodeWithTTL(claims, c.ttl)
}

// EncodeWithTTL mints a token whose exp is now+ttl, truncated to whole seconds.
// claims.ExpiresAt is ignored.
func (c *TokenCodec) EncodeWithTTL(claims Claims, ttl time.Duration) (string, error) {
	if claims.Subject == "" || !claims.Role.Valid() {
		return "", ErrInvalidClaims
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Role: string(claims.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			ExpiresAt: jwt.NewNumericDate(c.now().Add(ttl)),
		},
	})
	return tok.SignedString(c.secret)
}

// Decode verifies token and returns its claims. The signature over the literal
// "<header>.<payload>" text is checked before the payload is parsed. Every
// failure collapses to ErrUnauthorized.
func (c *TokenCodec) Decode(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, ErrUnauthorized
	}
	sig, err := c.parser.DecodeSegment(parts[2])
	if err != nil {
		return Claims{}, ErrUnauthorized
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, c.secret); err != nil {
		return Claims{}, ErrUnauthorized
	}

	var tc tokenClaims
	parsed, err := c.parser.ParseWithClaims(token, &tc, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !parsed.Valid || tc.ExpiresAt == nil {
		return Claims{}, ErrUnauthorized
	}

	return Claims{
		Subject:   tc.Subject,
		Role:      models.Role(tc.Role),
		ExpiresAt: tc.ExpiresAt.Time,
	}, nil
}
