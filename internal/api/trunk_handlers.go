package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/lq216/gonopbx/internal/database/models"
)

// providerServers maps provider presets to their fixed SIP registrars.
// A custom provider requires an explicit sip_server.
var providerServers = map[string]string{
	"plusnet_basic":   "sip.ipfonie.de",
	"plusnet_connect": "sipconnect.ipfonie.de",
	"telekom_allip":   "tel.t-online.de",
}

// trunkRequest is the JSON request body for creating/updating a trunk.
type trunkRequest struct {
	Name        string `json:"name"`
	Provider    string `json:"provider"`
	AuthMode    string `json:"auth_mode"`
	SIPServer   string `json:"sip_server"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	FromUser    string `json:"from_user"`
	CallerID    string `json:"caller_id"`
	NumberBlock string `json:"number_block"`
	Codecs      string `json:"codecs"`
	Enabled     *bool  `json:"enabled"`
}

// trunkResponse is the JSON response for a single trunk.
// The registration password is never returned.
type trunkResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Provider    string `json:"provider"`
	AuthMode    string `json:"auth_mode"`
	SIPServer   string `json:"sip_server"`
	Username    string `json:"username"`
	HasPassword bool   `json:"has_password"`
	FromUser    string `json:"from_user"`
	CallerID    string `json:"caller_id"`
	NumberBlock string `json:"number_block"`
	Codecs      string `json:"codecs"`
	Enabled     bool   `json:"enabled"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toTrunkResponse(t *models.SIPTrunk) trunkResponse {
	return trunkResponse{
		ID:          t.ID,
		Name:        t.Name,
		Provider:    t.Provider,
		AuthMode:    t.AuthMode,
		SIPServer:   t.SIPServer,
		Username:    t.Username,
		HasPassword: t.Password != "",
		FromUser:    t.FromUser,
		CallerID:    t.CallerID,
		NumberBlock: t.NumberBlock,
		Codecs:      t.Codecs,
		Enabled:     t.Enabled,
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   t.UpdatedAt.Format(time.RFC3339),
	}
}

// handleListTrunks returns all trunks.
func (s *Server) handleListTrunks(w http.ResponseWriter, r *http.Request) {
	trunks, err := s.trunks.List(r.Context())
	if err != nil {
		slog.Error("list trunks: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]trunkResponse, len(trunks))
	for i := range trunks {
		items[i] = toTrunkResponse(&trunks[i])
	}
	writeJSON(w, http.StatusOK, items)
}

// handleCreateTrunk creates a trunk, filling the SIP server from the
// provider preset where one exists.
func (s *Server) handleCreateTrunk(w http.ResponseWriter, r *http.Request) {
	var req trunkRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateTrunkRequest(&req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	existing, err := s.trunks.GetByName(r.Context(), req.Name)
	if err != nil {
		slog.Error("create trunk: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "trunk name already exists")
		return
	}

	trunk := &models.SIPTrunk{
		Name:        req.Name,
		Provider:    req.Provider,
		AuthMode:    req.AuthMode,
		SIPServer:   req.SIPServer,
		Username:    req.Username,
		Password:    req.Password,
		FromUser:    req.FromUser,
		CallerID:    req.CallerID,
		NumberBlock: req.NumberBlock,
		Context:     "from-trunk",
		Codecs:      req.Codecs,
		Enabled:     true,
	}
	if req.Enabled != nil {
		trunk.Enabled = *req.Enabled
	}

	if err := s.trunks.Create(r.Context(), trunk); err != nil {
		slog.Error("create trunk: failed to insert", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	created, err := s.trunks.GetByID(r.Context(), trunk.ID)
	if err != nil || created == nil {
		slog.Error("create trunk: failed to re-fetch", "error", err, "trunk_id", trunk.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.auditLog(r, "create", "sip_trunk", created.Name, map[string]string{
		"provider": created.Provider, "sip_server": created.SIPServer,
	})
	s.applyAsterisk(r.Context(), s.manager.ApplyPJSIP, s.manager.ApplyDialplan)

	slog.Info("trunk created", "trunk_id", created.ID, "name", created.Name, "provider", created.Provider)
	writeJSON(w, http.StatusCreated, toTrunkResponse(created))
}

// handleGetTrunk returns a single trunk by ID.
func (s *Server) handleGetTrunk(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid trunk id")
		return
	}

	trunk, err := s.trunks.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("get trunk: failed to query", "error", err, "trunk_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if trunk == nil {
		writeError(w, http.StatusNotFound, "trunk not found")
		return
	}

	writeJSON(w, http.StatusOK, toTrunkResponse(trunk))
}

// handleUpdateTrunk updates an existing trunk.
func (s *Server) handleUpdateTrunk(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid trunk id")
		return
	}

	existing, err := s.trunks.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("update trunk: failed to query", "error", err, "trunk_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "trunk not found")
		return
	}

	var req trunkRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateTrunkRequest(&req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if req.Name != existing.Name {
		other, err := s.trunks.GetByName(r.Context(), req.Name)
		if err != nil {
			slog.Error("update trunk: failed to query", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if other != nil {
			writeError(w, http.StatusConflict, "trunk name already exists")
			return
		}
	}

	existing.Name = req.Name
	existing.Provider = req.Provider
	existing.AuthMode = req.AuthMode
	existing.SIPServer = req.SIPServer
	existing.Username = req.Username
	existing.FromUser = req.FromUser
	existing.CallerID = req.CallerID
	existing.NumberBlock = req.NumberBlock
	existing.Codecs = req.Codecs

	// Only update the password if a new one is provided.
	if req.Password != "" {
		existing.Password = req.Password
	}
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}

	if err := s.trunks.Update(r.Context(), existing); err != nil {
		slog.Error("update trunk: failed to update", "error", err, "trunk_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	updated, err := s.trunks.GetByID(r.Context(), id)
	if err != nil || updated == nil {
		slog.Error("update trunk: failed to re-fetch", "error", err, "trunk_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.auditLog(r, "update", "sip_trunk", updated.Name, map[string]string{
		"provider": updated.Provider, "sip_server": updated.SIPServer,
	})
	s.applyAsterisk(r.Context(), s.manager.ApplyPJSIP, s.manager.ApplyDialplan)

	slog.Info("trunk updated", "trunk_id", id, "name", updated.Name)
	writeJSON(w, http.StatusOK, toTrunkResponse(updated))
}

// handleDeleteTrunk removes a trunk. Inbound routes still pointing at it
// block the delete.
func (s *Server) handleDeleteTrunk(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid trunk id")
		return
	}

	existing, err := s.trunks.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("delete trunk: failed to query", "error", err, "trunk_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "trunk not found")
		return
	}

	routes, err := s.routes.List(r.Context())
	if err != nil {
		slog.Error("delete trunk: failed to query routes", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	for _, route := range routes {
		if route.TrunkID == id {
			writeError(w, http.StatusConflict, "trunk is still referenced by inbound routes")
			return
		}
	}

	if err := s.trunks.Delete(r.Context(), id); err != nil {
		slog.Error("delete trunk: failed to delete", "error", err, "trunk_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.auditLog(r, "delete", "sip_trunk", existing.Name, nil)
	s.applyAsterisk(r.Context(), s.manager.ApplyPJSIP, s.manager.ApplyDialplan)

	slog.Info("trunk deleted", "trunk_id", id, "name", existing.Name)
	w.WriteHeader(http.StatusNoContent)
}

// validateTrunkRequest checks a trunk create/update body and fills the
// SIP server from the provider preset when one applies.
func validateTrunkRequest(req *trunkRequest) string {
	if req.Name == "" {
		return "name is required"
	}
	if req.Provider == "" {
		req.Provider = "custom"
	}
	if _, ok := providerServers[req.Provider]; !ok && req.Provider != "custom" {
		return "provider must be plusnet_basic, plusnet_connect, telekom_allip, or custom"
	}
	if req.AuthMode == "" {
		req.AuthMode = "registration"
	}
	if req.AuthMode != "registration" && req.AuthMode != "ip" {
		return "auth_mode must be \"registration\" or \"ip\""
	}

	// Provider presets pin the registrar.
	if server, ok := providerServers[req.Provider]; ok {
		req.SIPServer = server
	}
	if req.SIPServer == "" {
		return "sip_server is required for custom trunks"
	}
	if req.AuthMode == "registration" && req.Username == "" {
		return "username is required for registration trunks"
	}
	return ""
}
