package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Context keys set by the middleware in this package.
const (
	KeyUserID    = "user_id"
	KeyRole      = "role"
	KeyRequestID = "request_id"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// issued by the auth service and stores its subject (as uint64) and role in
// the context.  Tokens must be HMAC signed with secret and carry a numeric
// subject.
func JWTAuth(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims := jwt.MapClaims{}
			tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return key, nil
			}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			uid, ok := subjectID(claims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid subject"})
			}
			c.Set(KeyUserID, uid)
			if role, ok := claims["role"].(string); ok {
				c.Set(KeyRole, role)
			}
			return next(c)
		}
	}
}

// subjectID reads the user id from "sub" (string or number) or "user_id".
func subjectID(claims jwt.MapClaims) (uint64, bool) {
	for _, name := range []string{"sub", "user_id"} {
		switch v := claims[name].(type) {
		case string:
			if id, err := strconv.ParseUint(v, 10, 64); err == nil && id > 0 {
				return id, true
			}
		case float64:
			if v > 0 && v == float64(uint64(v)) {
				return uint64(v), true
			}
		}
	}
	return 0, false
}

// UserID returns the authenticated user id stored by JWTAuth.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(KeyUserID).(uint64)
	return id, ok && id > 0
}
