package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lq216/gonopbx/internal/database/models"
)

// mailboxRequest is the JSON body for PUT /api/voicemail/mailbox/{ext}.
type mailboxRequest struct {
	Enabled     *bool  `json:"enabled"`
	PIN         string `json:"pin"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	RingTimeout *int   `json:"ring_timeout"`
}

// mailboxResponse is the JSON response for a single mailbox.
// The PIN is never returned.
type mailboxResponse struct {
	Extension   string `json:"extension"`
	Enabled     bool   `json:"enabled"`
	HasPIN      bool   `json:"has_pin"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	RingTimeout int    `json:"ring_timeout"`
	UpdatedAt   string `json:"updated_at"`
}

func toMailboxResponse(b *models.VoicemailMailbox) mailboxResponse {
	return mailboxResponse{
		Extension:   b.Extension,
		Enabled:     b.Enabled,
		HasPIN:      b.PIN != "",
		Name:        b.Name,
		Email:       b.Email,
		RingTimeout: b.RingTimeout,
		UpdatedAt:   b.UpdatedAt.Format(time.RFC3339),
	}
}

// handleGetMailbox returns the mailbox for one extension.
func (s *Server) handleGetMailbox(w http.ResponseWriter, r *http.Request) {
	extension := chi.URLParam(r, "extension")
	if !extensionRe.MatchString(extension) {
		writeError(w, http.StatusBadRequest, "invalid extension")
		return
	}

	box, err := s.mailboxes.GetByExtension(r.Context(), extension)
	if err != nil {
		slog.Error("get mailbox: failed to query", "error", err, "extension", extension)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if box == nil {
		writeError(w, http.StatusNotFound, "mailbox not found")
		return
	}

	writeJSON(w, http.StatusOK, toMailboxResponse(box))
}

// handleUpdateMailbox creates or updates the mailbox for one extension.
func (s *Server) handleUpdateMailbox(w http.ResponseWriter, r *http.Request) {
	extension := chi.URLParam(r, "extension")
	if !extensionRe.MatchString(extension) {
		writeError(w, http.StatusBadRequest, "invalid extension")
		return
	}

	peer, err := s.peers.GetByExtension(r.Context(), extension)
	if err != nil {
		slog.Error("update mailbox: failed to query peer", "error", err, "extension", extension)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if peer == nil {
		writeError(w, http.StatusNotFound, "extension not found")
		return
	}

	var req mailboxRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.PIN != "" && !pinRe.MatchString(req.PIN) {
		writeError(w, http.StatusBadRequest, "pin must be 4-10 digits")
		return
	}
	if errMsg := checkEmail(req.Email); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.RingTimeout != nil && (*req.RingTimeout < 5 || *req.RingTimeout > 120) {
		writeError(w, http.StatusBadRequest, "ring_timeout must be between 5 and 120 seconds")
		return
	}

	existing, err := s.mailboxes.GetByExtension(r.Context(), extension)
	if err != nil {
		slog.Error("update mailbox: failed to query", "error", err, "extension", extension)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	box := existing
	if box == nil {
		box = &models.VoicemailMailbox{
			Extension:   extension,
			Enabled:     true,
			RingTimeout: 20,
		}
	}
	box.Name = req.Name
	box.Email = req.Email
	if req.Enabled != nil {
		box.Enabled = *req.Enabled
	}
	// Only update the PIN if a new one is provided.
	if req.PIN != "" {
		box.PIN = req.PIN
	}
	if req.RingTimeout != nil {
		box.RingTimeout = *req.RingTimeout
	}

	if err := s.mailboxes.Upsert(r.Context(), box); err != nil {
		slog.Error("update mailbox: failed to save", "error", err, "extension", extension)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.auditLog(r, "update", "voicemail_mailbox", extension, map[string]any{
		"enabled": box.Enabled, "ring_timeout": box.RingTimeout,
	})
	s.applyAsterisk(r.Context(), s.manager.ApplyVoicemail, s.manager.ApplyDialplan)

	slog.Info("mailbox updated", "extension", extension, "enabled", box.Enabled)
	writeJSON(w, http.StatusOK, toMailboxResponse(box))
}

// checkEmail validates an optional email field.
func checkEmail(email string) string {
	if email == "" {
		return ""
	}
	if len(email) > 254 || !emailRe.MatchString(email) {
		return "email is not a valid address"
	}
	return ""
}
