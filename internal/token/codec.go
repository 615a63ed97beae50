// Package token mints and decodes the signed JWTs handed to clients.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrDecode is returned for any token that cannot be trusted: bad signature,
// wrong algorithm, foreign issuer, malformed payload or missing claims.
var ErrDecode = errors.New("token decode failed")

// Claims is the payload of both access and refresh tokens.  Refresh tokens
// carry no roles.
type Claims struct {
	Roles string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Issued is a freshly signed token together with the claims baked into it.
type Issued struct {
	Value  string
	Claims Claims
}

// ExpiresAt returns the expiry as it will be decoded later on.
func (i Issued) ExpiresAt() time.Time { return i.Claims.ExpiresAt.Time }

// Codec signs and verifies HS256 tokens with a shared secret.
type Codec struct {
	secret []byte
	issuer string
	newID  func() string
}

// Option tweaks a Codec at construction time.
type Option func(*Codec)

// WithIDSource replaces the jti generator.
func WithIDSource(fn func() string) Option {
	return func(c *Codec) { c.newID = fn }
}

func NewCodec(secret, issuer string, opts ...Option) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	c := &Codec{secret: []byte(secret), issuer: issuer, newID: uuid.NewString}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Issue signs a token for subject valid from issuedAt for ttl.  roles is
// stored verbatim; pass "" for refresh tokens.
func (c *Codec) Issue(subject string, issuedAt time.Time, ttl time.Duration, roles string) (Issued, error) {
	if subject == "" {
		return Issued{}, errors.New("token subject is required")
	}
	if ttl <= 0 {
		return Issued{}, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	// NumericDate is second precision; truncate so the expiry we hand back
	// equals the one a later Verify decodes.
	iat := issuedAt.UTC().Truncate(time.Second)
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        c.newID(),
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(iat.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return Issued{}, fmt.Errorf("sign token: %w", err)
	}
	return Issued{Value: signed, Claims: claims}, nil
}

// Verify checks signature, algorithm and issuer and returns the claims.  It
// does not look at the expiry: callers decide what an expired token means.
func (c *Codec) Verify(raw string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if claims.Issuer != c.issuer {
		return Claims{}, fmt.Errorf("%w: unexpected issuer %q", ErrDecode, claims.Issuer)
	}
	if claims.Subject == "" || claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return Claims{}, fmt.Errorf("%w: missing required claims", ErrDecode)
	}
	return claims, nil
}

// Expired reports whether claims are past their expiry at now.
func Expired(claims Claims, now time.Time) bool {
	return !now.Before(claims.ExpiresAt.Time)
}
