package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func protectedHandler(t *testing.T, want *AdminUser) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := AdminUserFromContext(r.Context())
		if user == nil {
			t.Error("expected admin user in context")
			return
		}
		if want != nil {
			if user.ID != want.ID || user.Username != want.Username || user.Role != want.Role {
				t.Errorf("context user = %+v, want %+v", user, want)
			}
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestGenerateToken_RoundTrip(t *testing.T) {
	token, expiresAt, err := GenerateToken(testSecret, 7, "admin", "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if remaining := time.Until(expiresAt); remaining < 23*time.Hour {
		t.Errorf("expected ~24h expiry, got %v remaining", remaining)
	}

	handler := RequireAuth(testSecret, "")(protectedHandler(t, &AdminUser{ID: 7, Username: "admin", Role: "admin"}))

	r := httptest.NewRequest(http.MethodGet, "/api/peers", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestRequireAuth_MissingToken(t *testing.T) {
	handler := RequireAuth(testSecret, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/peers", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuth_WrongSecret(t *testing.T) {
	token, _, err := GenerateToken([]byte("another-secret-another-secret-xx"), 1, "admin", "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	handler := RequireAuth(testSecret, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/peers", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	claims := Claims{
		UserID:   1,
		Username: "admin",
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
			Issuer:    "gonopbx",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	handler := RequireAuth(testSecret, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/peers", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", rec.Code)
	}
}

func TestRequireAuth_QueryParamFallback(t *testing.T) {
	// WebSocket clients cannot set an Authorization header.
	token, _, err := GenerateToken(testSecret, 3, "admin", "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	handler := RequireAuth(testSecret, "")(protectedHandler(t, &AdminUser{ID: 3, Username: "admin", Role: "admin"}))

	r := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRequireAuth_MalformedHeader(t *testing.T) {
	handler := RequireAuth(testSecret, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	for _, header := range []string{"Basic dXNlcjpwYXNz", "Bearer", "token-without-scheme"} {
		r := httptest.NewRequest(http.MethodGet, "/api/peers", nil)
		r.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
}

func TestRequireAuth_APIKey(t *testing.T) {
	handler := RequireAuth(testSecret, "integration-key")(protectedHandler(t, &AdminUser{Username: "api-key", Role: "admin"}))

	r := httptest.NewRequest(http.MethodGet, "/api/calls/active", nil)
	r.Header.Set("X-API-Key", "integration-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRequireAuth_WrongAPIKey(t *testing.T) {
	handler := RequireAuth(testSecret, "integration-key")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/calls/active", nil)
	r.Header.Set("X-API-Key", "guess")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuth_APIKeyDisabled(t *testing.T) {
	// With no key configured the header must not grant access.
	handler := RequireAuth(testSecret, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/calls/active", nil)
	r.Header.Set("X-API-Key", "anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAdminUserFromContext_Unauthenticated(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if user := AdminUserFromContext(r.Context()); user != nil {
		t.Errorf("expected nil user, got %+v", user)
	}
}
