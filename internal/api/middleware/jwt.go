// Package middleware provides the HTTP middleware for the admin API:
// JWT bearer authentication and per-IP rate limiting.
package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

// adminUserKey is the context key for the authenticated admin user.
const adminUserKey contextKey = "admin_user"

// tokenTTL is the lifetime of an admin session token.
const tokenTTL = 24 * time.Hour

// AdminUser represents the authenticated user stored in the request context.
type AdminUser struct {
	ID       int64
	Username string
	Role     string
}

// Claims holds the JWT claims for admin authentication.
type Claims struct {
	UserID   int64  `json:"uid"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for an admin login.
func GenerateToken(secret []byte, userID int64, username, role string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(tokenTTL)

	claims := Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "gonopbx",
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// RequireAuth returns middleware that validates JWT bearer tokens. The token
// is taken from the Authorization header, or from the "token" query parameter
// for WebSocket upgrades where custom headers are unavailable. When apiKey is
// non-empty, a matching X-API-Key header authenticates instead, for
// home-automation clients that cannot run a login flow. On success the
// AdminUser is stored in the request context.
func RequireAuth(secret []byte, apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey != "" {
				if key := r.Header.Get("X-API-Key"); key != "" {
					if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
						ctx := context.WithValue(r.Context(), adminUserKey, &AdminUser{
							Username: "api-key",
							Role:     "admin",
						})
						next.ServeHTTP(w, r.WithContext(ctx))
						return
					}
					writeAuthError(w, http.StatusUnauthorized, "invalid api key")
					return
				}
			}

			tokenString := bearerToken(r)
			if tokenString == "" {
				writeAuthError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				slog.Debug("auth: invalid jwt", "error", err)
				writeAuthError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			if claims.UserID == 0 || claims.Username == "" {
				writeAuthError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			ctx := context.WithValue(r.Context(), adminUserKey, &AdminUser{
				ID:       claims.UserID,
				Username: claims.Username,
				Role:     claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header or, failing
// that, the "token" query parameter.
func bearerToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// AdminUserFromContext retrieves the authenticated AdminUser from the context.
// Returns nil if no user is present (unauthenticated request).
func AdminUserFromContext(ctx context.Context) *AdminUser {
	u, _ := ctx.Value(adminUserKey).(*AdminUser)
	return u
}

// authEnvelope matches the api package's envelope format for error responses.
// Defined here to avoid a circular import.
type authEnvelope struct {
	Error string `json:"error,omitempty"`
}

// writeAuthError writes a JSON error matching the API envelope format.
func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(authEnvelope{Error: msg}) //nolint:errcheck
}
