package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lumio-market/api/internal/platform/requestctx"
)

var testKey = []byte("unit-test-signing-key")

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(testKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestVerifyExtractsIdentity(t *testing.T) {
	authn := NewAuthenticator(testKey, WithIssuer("lumio"))
	tokenStr := signToken(t, Claims{
		Email: "pat@example.com",
		Roles: []string{"Admin", "user", "admin"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "usr_123",
			Issuer:    "lumio",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	identity, err := authn.Verify(tokenStr)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.UserID != "usr_123" {
		t.Fatalf("expected subject usr_123, got %q", identity.UserID)
	}
	if identity.Email != "pat@example.com" {
		t.Fatalf("unexpected email %q", identity.Email)
	}
	if len(identity.Roles) != 2 {
		t.Fatalf("expected deduplicated roles, got %v", identity.Roles)
	}
	if !identity.IsAdmin() {
		t.Fatal("expected admin role")
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	authn := NewAuthenticator(testKey, WithLeeway(time.Second))
	tokenStr := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "usr_123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	if _, err := authn.Verify(tokenStr); err == nil {
		t.Fatal("expected error for expired token")
	} else if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired sentinel, got %v", err)
	}
}

func TestVerifyMissingSubject(t *testing.T) {
	authn := NewAuthenticator(testKey)
	tokenStr := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	if _, err := authn.Verify(tokenStr); err == nil {
		t.Fatal("expected error for missing subject")
	}
}

func TestVerifyFallbackRole(t *testing.T) {
	authn := NewAuthenticator(testKey)
	tokenStr := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "usr_456",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	identity, err := authn.Verify(tokenStr)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(identity.Roles) != 1 || identity.Roles[0] != RoleUser {
		t.Fatalf("expected fallback user role, got %v", identity.Roles)
	}
}

func TestRequireRejectsMissingHeader(t *testing.T) {
	authn := NewAuthenticator(testKey)
	handler := authn.Require()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireEnforcesRole(t *testing.T) {
	authn := NewAuthenticator(testKey)
	tokenStr := signToken(t, Claims{
		Roles: []string{RoleUser},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "usr_789",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	handler := authn.Require(RoleAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequireStoresIdentity(t *testing.T) {
	authn := NewAuthenticator(testKey)
	tokenStr := signToken(t, Claims{
		Roles: []string{RoleUser},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "usr_789",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	var got requestctx.Identity
	handler := authn.Require(RoleUser)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = requestctx.IdentityFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got.UserID != "usr_789" {
		t.Fatalf("expected identity on context, got %+v", got)
	}
}
