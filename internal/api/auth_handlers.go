package api

import (
	"log/slog"
	"net/http"
	"time"
	"unicode"

	"github.com/lq216/gonopbx/internal/api/middleware"
	"github.com/lq216/gonopbx/internal/database"
)

// loginRequest is the JSON body for POST /api/auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse carries the signed session token.
type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	Username  string `json:"username"`
	Role      string `json:"role"`
}

// handleLogin verifies credentials and issues a JWT.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := s.users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		slog.Error("login: failed to query user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		// Same response as a wrong password so usernames cannot be probed.
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	ok, err := database.CheckPassword(req.Password, user.PasswordHash)
	if err != nil {
		slog.Error("login: failed to verify password", "error", err, "username", req.Username)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		slog.Warn("login failed", "username", req.Username, "ip", clientIP(r))
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, expiresAt, err := middleware.GenerateToken(s.jwtSecret, user.ID, user.Username, user.Role)
	if err != nil {
		slog.Error("login: failed to sign token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("login succeeded", "username", user.Username, "ip", clientIP(r))

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format(time.RFC3339),
		Username:  user.Username,
		Role:      user.Role,
	})
}

// handleMe returns the authenticated user.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u := middleware.AdminUserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	user, err := s.users.GetByID(r.Context(), u.ID)
	if err != nil {
		slog.Error("me: failed to query user", "error", err, "user_id", u.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "user no longer exists")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":        user.ID,
		"username":  user.Username,
		"email":     user.Email,
		"full_name": user.FullName,
		"role":      user.Role,
	})
}

// changePasswordRequest is the JSON body for PUT /api/auth/password.
type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// handleChangePassword updates the caller's password after verifying the
// current one.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	u := middleware.AdminUserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req changePasswordRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if errMsg := validatePasswordStrength(req.NewPassword); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	user, err := s.users.GetByID(r.Context(), u.ID)
	if err != nil || user == nil {
		slog.Error("change password: failed to query user", "error", err, "user_id", u.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	ok, err := database.CheckPassword(req.CurrentPassword, user.PasswordHash)
	if err != nil {
		slog.Error("change password: failed to verify password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}

	hash, err := database.HashPassword(req.NewPassword)
	if err != nil {
		slog.Error("change password: failed to hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user.PasswordHash = hash
	if err := s.users.Update(r.Context(), user); err != nil {
		slog.Error("change password: failed to update", "error", err, "user_id", u.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.auditLog(r, "change_password", "admin_user", user.Username, nil)
	slog.Info("password changed", "username", user.Username)

	writeJSON(w, http.StatusOK, map[string]string{"status": "password changed"})
}

// validatePasswordStrength enforces minimum length plus at least one letter
// and one digit. Returns an error message or "".
func validatePasswordStrength(password string) string {
	if len(password) < 10 {
		return "password must be at least 10 characters"
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return "password must contain at least one letter and one digit"
	}
	return ""
}
