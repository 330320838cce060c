// Package middleware holds the HTTP-edge glue around the broker. Only the
// bearer-token gate lives here; the controller layer proper is out of scope.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/reelrooms/identity/domain"
)

// userContextKey is the echo context key under which the authenticated user is
// stored.
const userContextKey = "authenticated_user"

// TokenValidator is the degrading validation gate the middleware runs on. A
// nil user means the request is not authenticated.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string) *domain.User
}

// RequireUser rejects requests without a valid bearer token and stores the
// resolved user on the echo context.
func RequireUser(validator TokenValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c.Request())
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			user := validator.ValidateAccessToken(c.Request().Context(), token)
			if user == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			c.Set(userContextKey, user)
			return next(c)
		}
	}
}

// UserFromContext returns the user stored by RequireUser, or nil.
func UserFromContext(c echo.Context) *domain.User {
	user, _ := c.Get(userContextKey).(*domain.User)
	return user
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
