// Package auth guards the evaluation API with HS256 bearer tokens. Auth is
// optional: when no secret is configured the middleware is a pass-through,
// which keeps local CLI-style usage friction-free.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Claims carried by evaluation API tokens.
type Claims struct {
	jwt.RegisteredClaims
	Subject string `json:"sub_name,omitempty"`
}

// JWTMiddleware validates Authorization: Bearer tokens signed with the
// shared secret. An empty secret disables authentication.
func JWTMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" {
				return next(c)
			}

			header := c.Request().Header.Get("Authorization")
			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenStr == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set("auth_subject", claims.Subject)
			return next(c)
		}
	}
}

// SignToken issues a token for the shared secret; used by tests and local
// tooling.
func SignToken(secret, subject string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{Subject: subject})
	return token.SignedString([]byte(secret))
}
