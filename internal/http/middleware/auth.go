// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file gates routes on the caller identity carried by the bearer token.
// RequireUser decodes the token and stores the identity in the Gin context;
// RequireEmployee additionally demands an elevated role. Both reject with the
// standard error envelope (401 / 403).
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/civic-report-service/internal/auth"
)

const (
	identityKey = "identity"
	userIDKey   = "userID"
)

// TokenDecoder turns an Authorization header into an identity.
type TokenDecoder interface {
	FromHeader(header string) (auth.Identity, error)
}

// RequireUser authenticates the request. On success the identity is available
// through IdentityFrom and the user id through UserIDFrom; the request-scoped
// logger gains a user_id field.
func RequireUser(dec TokenDecoder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := authenticate(c, dec); !ok {
			return
		}
		c.Next()
	}
}

// RequireEmployee authenticates the request and then requires an Employee,
// Admin or City Employee role.
func RequireEmployee(dec TokenDecoder) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := authenticate(c, dec)
		if !ok {
			return
		}
		if !id.HasEmployeeRole() {
			abortJSON(c, http.StatusForbidden, "forbidden", "insufficient permissions; employee role required")
			return
		}
		c.Next()
	}
}

// authenticate decodes the bearer token once per request and stores the
// identity. On failure it writes a 401 and reports false.
func authenticate(c *gin.Context, dec TokenDecoder) (auth.Identity, bool) {
	if id, ok := IdentityFrom(c); ok && id.IsAuthenticated() {
		return id, true
	}
	id, err := dec.FromHeader(c.GetHeader("Authorization"))
	if err != nil {
		msg := "invalid token"
		switch {
		case errors.Is(err, auth.ErrMissingToken):
			msg = "missing bearer token"
		case errors.Is(err, auth.ErrMissingUserID):
			msg = "token missing user_id"
		}
		c.Header("WWW-Authenticate", `Bearer realm="civic"`)
		abortJSON(c, http.StatusUnauthorized, "unauthorized", msg)
		return auth.Identity{}, false
	}

	c.Set(identityKey, id)
	c.Set(userIDKey, id.UserID)
	attachLogger(c, LoggerFrom(c).With().Int64("user_id", id.UserID).Logger())
	return id, true
}

// IdentityFrom returns the identity stored by RequireUser.
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}

// UserIDFrom returns the authenticated user id, if any.
func UserIDFrom(c *gin.Context) (int64, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id != 0
}
