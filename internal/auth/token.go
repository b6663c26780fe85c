// Package auth decodes the bearer tokens issued by the platform's identity
// service. Tokens are HS256-signed with a shared secret and carry the caller's
// numeric user id and role. This package never issues tokens in production;
// Sign exists for tooling and tests.
package auth

import (
	"errors"
	"fmt"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/civic-report-service/internal/domain"
)

var (
	// ErrMissingToken is returned when no bearer token is presented.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken covers bad signatures, wrong algorithms, expired tokens
	// and malformed payloads.
	ErrInvalidToken = errors.New("invalid token")
	// ErrMissingUserID is returned for a valid token without a user_id claim.
	ErrMissingUserID = errors.New("token missing user_id")
)

// Claims is the token payload understood by the service.
type Claims struct {
	UserID *int64      `json:"user_id,omitempty"`
	Role   domain.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID int64
	Role   domain.Role
}

// IsAuthenticated reports whether the identity carries a user id.
func (id Identity) IsAuthenticated() bool { return id.UserID != 0 }

// HasEmployeeRole reports whether the caller may manage issue lifecycles.
func (id Identity) HasEmployeeRole() bool { return id.Role.IsElevated() }

// Decoder validates tokens against a shared HS256 secret.
type Decoder struct {
	secret []byte
	parser *jwt.Parser
}

// NewDecoder builds a Decoder. Only HS256 is accepted.
func NewDecoder(secret string) *Decoder {
	return &Decoder{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

// Decode verifies raw and returns the caller identity.
func (d *Decoder) Decode(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, ErrMissingToken
	}

	claims := &Claims{}
	tok, err := d.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return d.secret, nil
	})
	if err != nil || !tok.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == nil {
		return Identity{}, ErrMissingUserID
	}
	return Identity{UserID: *claims.UserID, Role: claims.Role}, nil
}

// FromHeader extracts the token from an Authorization header value of the form
// "Bearer <token>" and decodes it.
func (d *Decoder) FromHeader(header string) (Identity, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Identity{}, ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return Identity{}, ErrInvalidToken
	}
	return d.Decode(parts[1])
}

// Sign issues an HS256 token for userID and role.
func Sign(secret string, userID int64, role domain.Role) (string, error) {
	claims := &Claims{UserID: &userID, Role: role}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
