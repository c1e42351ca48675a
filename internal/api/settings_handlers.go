package api

import (
	"log/slog"
	"net/http"
	"strconv"
)

const smtpPasswordKey = "smtp_password"

// smtpSettingsResponse is the SMTP section of GET /api/settings. The
// stored password is never revealed, only whether one exists.
type smtpSettingsResponse struct {
	Host        string `json:"host"`
	Port        string `json:"port"`
	TLS         string `json:"tls"`
	User        string `json:"user"`
	From        string `json:"from"`
	HasPassword bool   `json:"has_password"`
}

// settingsResponse is the shape returned by GET /api/settings.
type settingsResponse struct {
	SMTP smtpSettingsResponse `json:"smtp"`
}

// smtpSettingsRequest is the SMTP section of PUT /api/settings.
type smtpSettingsRequest struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	TLS      string `json:"tls"`
	User     string `json:"user"`
	Password string `json:"password"`
	From     string `json:"from"`
}

// settingsRequest is the shape accepted by PUT /api/settings. Only
// provided sections are updated.
type settingsRequest struct {
	SMTP *smtpSettingsRequest `json:"smtp"`
}

// handleGetSettings returns all system settings grouped by section.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	get := func(key string) string {
		val, err := s.settings.Get(ctx, key)
		if err != nil {
			slog.Error("get settings: failed to query", "error", err, "key", key)
		}
		return val
	}

	pw := get(smtpPasswordKey)

	resp := settingsResponse{
		SMTP: smtpSettingsResponse{
			Host:        get("smtp_host"),
			Port:        get("smtp_port"),
			TLS:         get("smtp_tls"),
			User:        get("smtp_user"),
			From:        get("smtp_from"),
			HasPassword: pw != "",
		},
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleUpdateSettings saves system settings and regenerates the
// voicemail config, which embeds the SMTP delivery setup.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	ctx := r.Context()

	save := func(pairs map[string]string) error {
		for key, value := range pairs {
			if err := s.settings.Set(ctx, key, value); err != nil {
				return err
			}
		}
		return nil
	}

	if req.SMTP != nil {
		smtp := req.SMTP

		if smtp.Port != "" {
			port, err := strconv.Atoi(smtp.Port)
			if err != nil || port < 1 || port > 65535 {
				writeError(w, http.StatusBadRequest, "smtp port must be a valid port (1-65535)")
				return
			}
		}
		if smtp.TLS != "" && smtp.TLS != "true" && smtp.TLS != "false" {
			writeError(w, http.StatusBadRequest, "smtp tls must be \"true\" or \"false\"")
			return
		}
		if errMsg := checkEmail(smtp.From); errMsg != "" {
			writeError(w, http.StatusBadRequest, "smtp from: "+errMsg)
			return
		}

		if err := save(map[string]string{
			"smtp_host": smtp.Host,
			"smtp_port": smtp.Port,
			"smtp_tls":  smtp.TLS,
			"smtp_user": smtp.User,
			"smtp_from": smtp.From,
		}); err != nil {
			slog.Error("failed to save smtp settings", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}

		// Only update the password if a new value is provided. An empty
		// string means "leave unchanged".
		if smtp.Password != "" {
			if err := s.settings.Set(ctx, smtpPasswordKey, smtp.Password); err != nil {
				slog.Error("failed to save smtp password", "error", err)
				writeError(w, http.StatusInternalServerError, "failed to save settings")
				return
			}
		}
	}

	s.auditLog(r, "update", "settings", "smtp", nil)
	s.applyAsterisk(ctx, s.manager.ApplyVoicemail)

	slog.Info("system settings updated")
	s.handleGetSettings(w, r)
}
