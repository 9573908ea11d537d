package middleware

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// UserIDKey is the context key holding the caller's subject claim.
const UserIDKey = "user_id"

// Identity reads an optional HS256 bearer token and stores its subject under
// UserIDKey. The storefront API is public, so a missing or invalid token only
// means the caller is anonymous; the identity scopes rate limit buckets.
func Identity(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if secret == "" {
			return next
		}
		return func(c echo.Context) error {
			if sub := subject(c.Request().Header.Get("Authorization"), secret); sub != "" {
				c.Set(UserIDKey, sub)
			}
			return next(c)
		}
	}
}

func subject(header, secret string) string {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return ""
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, echo.ErrUnauthorized
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return ""
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}
