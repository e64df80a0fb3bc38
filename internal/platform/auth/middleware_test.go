package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, req *http.Request) (echo.Context, bool, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var called bool
	var seen echo.Context
	h := mw(func(c echo.Context) error {
		called = true
		seen = c
		return c.String(http.StatusOK, "ok")
	})
	err := h(c)
	if seen == nil {
		seen = c
	}
	return seen, called, err
}

func assertHTTPCode(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected HTTP %d error, got nil", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, called, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), req)
	assertHTTPCode(t, err, http.StatusUnauthorized)
	if called {
		t.Error("handler should not be called")
	}
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", tt.header)
			_, _, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), req)
			assertHTTPCode(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Name:  "Asha Rao",
		Roles: []string{RolePatient},
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken(t, claims, testSigningKey))

	c, called, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler was not called")
	}

	ctx := c.Request().Context()
	if got := UserIDFromContext(ctx); got != "user-123" {
		t.Errorf("expected user-123, got %q", got)
	}
	if got := DisplayNameFromContext(ctx); got != "Asha Rao" {
		t.Errorf("expected Asha Rao, got %q", got)
	}
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != RolePatient {
		t.Errorf("expected [patient], got %v", roles)
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken(t, claims, testSigningKey))

	_, _, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), req)
	assertHTTPCode(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-123"}}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken(t, claims, []byte("another-key")))

	_, _, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), req)
	assertHTTPCode(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_MissingSubject(t *testing.T) {
	claims := Claims{Name: "Nobody"}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken(t, claims, testSigningKey))

	_, _, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), req)
	assertHTTPCode(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_IssuerAndAudience(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "https://auth.clinic.test", Audience: "clinic-api"}

	good := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  "user-1",
		Issuer:   "https://auth.clinic.test",
		Audience: jwt.ClaimStrings{"clinic-api"},
	}}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken(t, good, testSigningKey))
	if _, _, err := runMiddleware(t, JWTMiddleware(cfg), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := good
	bad.Issuer = "https://evil.test"
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken(t, bad, testSigningKey))
	_, _, err := runMiddleware(t, JWTMiddleware(cfg), req)
	assertHTTPCode(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/health")

	var called bool
	h := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper})(func(c echo.Context) error {
		called = true
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected public path to skip auth")
	}
}

func TestDevAuthMiddleware_Defaults(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c, called, err := runMiddleware(t, DevAuthMiddleware(), req)
	if err != nil || !called {
		t.Fatalf("expected handler to run, err=%v", err)
	}
	ctx := c.Request().Context()
	if UserIDFromContext(ctx) != "dev-user" {
		t.Errorf("expected dev-user, got %q", UserIDFromContext(ctx))
	}
	if DisplayNameFromContext(ctx) != "Dev User" {
		t.Errorf("expected Dev User, got %q", DisplayNameFromContext(ctx))
	}
	if !HasRole(ctx, RoleAdmin) {
		t.Error("expected admin role")
	}
}

func TestDevAuthMiddleware_HeaderOverrides(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "user-42")
	req.Header.Set("X-User-Name", "Priya")
	req.Header.Set("X-User-Roles", "patient, doctor")

	c, _, err := runMiddleware(t, DevAuthMiddleware(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := c.Request().Context()
	if UserIDFromContext(ctx) != "user-42" {
		t.Errorf("expected user-42, got %q", UserIDFromContext(ctx))
	}
	if DisplayNameFromContext(ctx) != "Priya" {
		t.Errorf("expected Priya, got %q", DisplayNameFromContext(ctx))
	}
	roles := RolesFromContext(ctx)
	if len(roles) != 2 || roles[0] != RolePatient || roles[1] != RoleDoctor {
		t.Errorf("unexpected roles %v", roles)
	}
}

func TestDisplayNameFromContext_FallsBackToUserID(t *testing.T) {
	ctx := WithIdentity(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "user-7", "", nil)
	if got := DisplayNameFromContext(ctx); got != "user-7" {
		t.Errorf("expected user-7, got %q", got)
	}
}
