package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validClaims(subject string, roles ...string) Claims {
	return Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestVerifyToken(t *testing.T) {
	a, err := NewAuthenticator(testSecret)
	if err != nil {
		t.Fatalf("NewAuthenticator returned error: %v", err)
	}

	identity, err := a.VerifyToken(signToken(t, testSecret, validClaims("user-1", "admin")))
	if err != nil {
		t.Fatalf("VerifyToken returned error: %v", err)
	}
	if identity.UserID != "user-1" {
		t.Errorf("unexpected user id %s", identity.UserID)
	}
	if !identity.IsAdmin() {
		t.Error("expected admin role")
	}
}

func TestVerifyTokenFallbackRole(t *testing.T) {
	a, err := NewAuthenticator(testSecret)
	if err != nil {
		t.Fatalf("NewAuthenticator returned error: %v", err)
	}

	identity, err := a.VerifyToken(signToken(t, testSecret, validClaims("user-2")))
	if err != nil {
		t.Fatalf("VerifyToken returned error: %v", err)
	}
	if !identity.HasRole(RoleUser) {
		t.Errorf("expected fallback user role, got %v", identity.Roles)
	}
	if identity.IsAdmin() {
		t.Error("did not expect admin role")
	}
}

func TestVerifyTokenExpired(t *testing.T) {
	a, err := NewAuthenticator(testSecret)
	if err != nil {
		t.Fatalf("NewAuthenticator returned error: %v", err)
	}

	claims := validClaims("user-3")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	_, err = a.VerifyToken(signToken(t, testSecret, claims))
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	a, err := NewAuthenticator(testSecret)
	if err != nil {
		t.Fatalf("NewAuthenticator returned error: %v", err)
	}

	_, err = a.VerifyToken(signToken(t, "other-secret", validClaims("user-4")))
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestVerifyTokenMissingSubject(t *testing.T) {
	a, err := NewAuthenticator(testSecret)
	if err != nil {
		t.Fatalf("NewAuthenticator returned error: %v", err)
	}

	_, err = a.VerifyToken(signToken(t, testSecret, validClaims("")))
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestRequireAuthMissingHeader(t *testing.T) {
	a, err := NewAuthenticator(testSecret)
	if err != nil {
		t.Fatalf("NewAuthenticator returned error: %v", err)
	}

	handler := a.RequireAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuthRoleGating(t *testing.T) {
	a, err := NewAuthenticator(testSecret)
	if err != nil {
		t.Fatalf("NewAuthenticator returned error: %v", err)
	}

	var sawIdentity *Identity
	handler := a.RequireAuth(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawIdentity, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, validClaims("user-5")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, validClaims("admin-1", "admin")))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for admin, got %d", rec.Code)
	}
	if sawIdentity == nil || sawIdentity.UserID != "admin-1" {
		t.Fatalf("expected identity in context, got %+v", sawIdentity)
	}
}
