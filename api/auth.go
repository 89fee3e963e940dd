package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// TokenVerifier turns a bearer token into an identity, or rejects it.
// Satisfied by tokenauth.JWTVerifier, tokenauth.OIDCVerifier, and
// tokenauth.ChainVerifier.
type TokenVerifier interface {
	Verify(token string) (userID *string, role *string, err error)
}

const identityContextKey = "diagramhub.identity"

// Identity is the authenticated (or anonymous) caller attached to an echo
// request context by authMiddleware.
type Identity struct {
	UserID *string
	Role   *string
}

// identityFrom reads the Identity a prior authMiddleware call attached to
// c. Absent middleware (or no token) yields an anonymous identity.
func identityFrom(c echo.Context) Identity {
	if v, ok := c.Get(identityContextKey).(Identity); ok {
		return v
	}
	return Identity{}
}

// authMiddleware extracts a bearer token from the Authorization header,
// verifies it via verifier, and attaches the resulting identity to the
// request context. A missing token is anonymous, not an error; an invalid
// one is rejected with 401, matching the WS handshake's token semantics
// from spec §6.1.
func authMiddleware(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if verifier == nil || token == "" {
				c.Set(identityContextKey, Identity{})
				return next(c)
			}

			userID, role, err := verifier.Verify(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			c.Set(identityContextKey, Identity{UserID: userID, Role: role})
			return next(c)
		}
	}
}
