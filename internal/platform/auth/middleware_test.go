package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runRequest(t *testing.T, secret, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Use(JWTMiddleware(secret))
	e.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTMiddleware_EmptySecretPassesThrough(t *testing.T) {
	rec := runRequest(t, "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", rec.Code)
	}
}

func TestJWTMiddleware_MissingToken(t *testing.T) {
	rec := runRequest(t, "topsecret", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestJWTMiddleware_MalformedToken(t *testing.T) {
	rec := runRequest(t, "topsecret", "Bearer not-a-jwt")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestJWTMiddleware_WrongSecret(t *testing.T) {
	token, err := SignToken("other-secret", "svc")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	rec := runRequest(t, "topsecret", "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for a token signed elsewhere", rec.Code)
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	token, err := SignToken("topsecret", "svc")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	rec := runRequest(t, "topsecret", "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
}
