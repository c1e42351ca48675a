package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/lq216/gonopbx/internal/database/models"
)

// ivrOptionRequest maps a DTMF digit to a destination extension.
type ivrOptionRequest struct {
	Digit       string `json:"digit"`
	Destination string `json:"destination"`
}

// ivrRequest is the JSON request body for creating/updating an IVR menu.
type ivrRequest struct {
	Name               string             `json:"name"`
	Extension          string             `json:"extension"`
	Prompt             string             `json:"prompt"`
	TimeoutSeconds     *int               `json:"timeout_seconds"`
	TimeoutDestination string             `json:"timeout_destination"`
	Retries            *int               `json:"retries"`
	InboundTrunkID     int64              `json:"inbound_trunk_id"`
	InboundDID         string             `json:"inbound_did"`
	Enabled            *bool              `json:"enabled"`
	Options            []ivrOptionRequest `json:"options"`
}

// ivrResponse is the JSON response for a single IVR menu.
type ivrResponse struct {
	ID                 int64              `json:"id"`
	Name               string             `json:"name"`
	Extension          string             `json:"extension"`
	Prompt             string             `json:"prompt"`
	TimeoutSeconds     int                `json:"timeout_seconds"`
	TimeoutDestination string             `json:"timeout_destination"`
	Retries            int                `json:"retries"`
	InboundTrunkID     int64              `json:"inbound_trunk_id"`
	InboundDID         string             `json:"inbound_did"`
	Enabled            bool               `json:"enabled"`
	Options            []ivrOptionRequest `json:"options"`
	CreatedAt          string             `json:"created_at"`
	UpdatedAt          string             `json:"updated_at"`
}

func toIVRResponse(m *models.IVRMenu) ivrResponse {
	options := make([]ivrOptionRequest, len(m.Options))
	for i, opt := range m.Options {
		options[i] = ivrOptionRequest{Digit: opt.Digit, Destination: opt.Destination}
	}
	return ivrResponse{
		ID:                 m.ID,
		Name:               m.Name,
		Extension:          m.Extension,
		Prompt:             m.Prompt,
		TimeoutSeconds:     m.TimeoutSeconds,
		TimeoutDestination: m.TimeoutDestination,
		Retries:            m.Retries,
		InboundTrunkID:     m.InboundTrunkID,
		InboundDID:         m.InboundDID,
		Enabled:            m.Enabled,
		Options:            options,
		CreatedAt:          m.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          m.UpdatedAt.Format(time.RFC3339),
	}
}

// handleListIVRMenus returns all IVR menus.
func (s *Server) handleListIVRMenus(w http.ResponseWriter, r *http.Request) {
	menus, err := s.ivrMenus.List(r.Context())
	if err != nil {
		slog.Error("list ivr menus: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]ivrResponse, len(menus))
	for i := range menus {
		items[i] = toIVRResponse(&menus[i])
	}
	writeJSON(w, http.StatusOK, items)
}

// handleCreateIVRMenu creates an IVR menu and syncs its inbound DID.
func (s *Server) handleCreateIVRMenu(w http.ResponseWriter, r *http.Request) {
	var req ivrRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := s.validateIVRRequest(r.Context(), &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if errMsg := s.checkExtensionFree(r.Context(), req.Extension, "", ""); errMsg != "" {
		writeError(w, http.StatusConflict, errMsg)
		return
	}

	menu := &models.IVRMenu{
		Name:               req.Name,
		Extension:          req.Extension,
		Prompt:             req.Prompt,
		TimeoutSeconds:     5,
		TimeoutDestination: req.TimeoutDestination,
		Retries:            2,
		InboundTrunkID:     req.InboundTrunkID,
		InboundDID:         req.InboundDID,
		Enabled:            true,
		Options:            toIVROptions(req.Options),
	}
	if req.TimeoutSeconds != nil {
		menu.TimeoutSeconds = *req.TimeoutSeconds
	}
	if req.Retries != nil {
		menu.Retries = *req.Retries
	}
	if req.Enabled != nil {
		menu.Enabled = *req.Enabled
	}

	if err := s.ivrMenus.Create(r.Context(), menu); err != nil {
		slog.Error("create ivr menu: failed to insert", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.syncInboundDID(r.Context(), "", menu.InboundDID, menu.InboundTrunkID, menu.Extension, "ivr "+menu.Name)

	created, err := s.ivrMenus.GetByID(r.Context(), menu.ID)
	if err != nil || created == nil {
		slog.Error("create ivr menu: failed to re-fetch", "error", err, "menu_id", menu.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.auditLog(r, "create", "ivr_menu", created.Extension, req)
	s.applyAsterisk(r.Context(), s.manager.ApplyDialplan)

	slog.Info("ivr menu created", "menu_id", created.ID, "extension", created.Extension, "options", len(created.Options))
	writeJSON(w, http.StatusCreated, toIVRResponse(created))
}

// handleGetIVRMenu returns a single IVR menu by ID.
func (s *Server) handleGetIVRMenu(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ivr menu id")
		return
	}

	menu, err := s.ivrMenus.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("get ivr menu: failed to query", "error", err, "menu_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if menu == nil {
		writeError(w, http.StatusNotFound, "ivr menu not found")
		return
	}

	writeJSON(w, http.StatusOK, toIVRResponse(menu))
}

// handleUpdateIVRMenu updates an IVR menu, replacing its options wholesale
// and re-syncing the inbound DID.
func (s *Server) handleUpdateIVRMenu(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ivr menu id")
		return
	}

	existing, err := s.ivrMenus.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("update ivr menu: failed to query", "error", err, "menu_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "ivr menu not found")
		return
	}

	var req ivrRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := s.validateIVRRequest(r.Context(), &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if req.Extension != existing.Extension {
		if errMsg := s.checkExtensionFree(r.Context(), req.Extension, "", existing.Extension); errMsg != "" {
			writeError(w, http.StatusConflict, errMsg)
			return
		}
	}

	previousDID := existing.InboundDID

	existing.Name = req.Name
	existing.Extension = req.Extension
	existing.Prompt = req.Prompt
	existing.TimeoutDestination = req.TimeoutDestination
	existing.InboundTrunkID = req.InboundTrunkID
	existing.InboundDID = req.InboundDID
	existing.Options = toIVROptions(req.Options)
	if req.TimeoutSeconds != nil {
		existing.TimeoutSeconds = *req.TimeoutSeconds
	}
	if req.Retries != nil {
		existing.Retries = *req.Retries
	}
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}

	if err := s.ivrMenus.Update(r.Context(), existing); err != nil {
		slog.Error("update ivr menu: failed to update", "error", err, "menu_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.syncInboundDID(r.Context(), previousDID, existing.InboundDID, existing.InboundTrunkID, existing.Extension, "ivr "+existing.Name)

	updated, err := s.ivrMenus.GetByID(r.Context(), id)
	if err != nil || updated == nil {
		slog.Error("update ivr menu: failed to re-fetch", "error", err, "menu_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.auditLog(r, "update", "ivr_menu", updated.Extension, req)
	s.applyAsterisk(r.Context(), s.manager.ApplyDialplan)

	slog.Info("ivr menu updated", "menu_id", id, "extension", updated.Extension)
	writeJSON(w, http.StatusOK, toIVRResponse(updated))
}

// handleDeleteIVRMenu removes an IVR menu and its synced inbound route.
func (s *Server) handleDeleteIVRMenu(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ivr menu id")
		return
	}

	existing, err := s.ivrMenus.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("delete ivr menu: failed to query", "error", err, "menu_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "ivr menu not found")
		return
	}

	if err := s.ivrMenus.Delete(r.Context(), id); err != nil {
		slog.Error("delete ivr menu: failed to delete", "error", err, "menu_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.syncInboundDID(r.Context(), existing.InboundDID, "", 0, "", "")

	s.auditLog(r, "delete", "ivr_menu", existing.Extension, nil)
	s.applyAsterisk(r.Context(), s.manager.ApplyDialplan)

	slog.Info("ivr menu deleted", "menu_id", id, "extension", existing.Extension)
	w.WriteHeader(http.StatusNoContent)
}

// validateIVRRequest checks an IVR body: digit uniqueness and format, and
// that every destination resolves.
func (s *Server) validateIVRRequest(ctx context.Context, req *ivrRequest) string {
	if req.Name == "" {
		return "name is required"
	}
	if !extensionRe.MatchString(req.Extension) {
		return "extension must be 2-6 digits"
	}
	if req.TimeoutSeconds != nil && (*req.TimeoutSeconds < 1 || *req.TimeoutSeconds > 60) {
		return "timeout_seconds must be between 1 and 60"
	}
	if req.Retries != nil && (*req.Retries < 0 || *req.Retries > 9) {
		return "retries must be between 0 and 9"
	}
	if len(req.Options) == 0 {
		return "options must contain at least one digit mapping"
	}
	if req.InboundDID != "" {
		if !didRe.MatchString(req.InboundDID) {
			return "inbound_did must be 3-20 digits with an optional leading +"
		}
		if req.InboundTrunkID == 0 {
			return "inbound_trunk_id is required when inbound_did is set"
		}
	}

	seen := make(map[string]bool, len(req.Options))
	for _, opt := range req.Options {
		if !dtmfRe.MatchString(opt.Digit) {
			return "option digit must be one of 0-9, *, #"
		}
		if seen[opt.Digit] {
			return "option digit " + opt.Digit + " is mapped twice"
		}
		seen[opt.Digit] = true

		ok, err := s.destinationExists(ctx, opt.Destination)
		if err != nil {
			slog.Error("validate ivr: failed to resolve destination", "error", err, "destination", opt.Destination)
			return "internal error"
		}
		if !ok {
			return "option destination " + opt.Destination + " does not name a peer, ring group, or ivr menu"
		}
	}

	if req.TimeoutDestination != "" {
		ok, err := s.destinationExists(ctx, req.TimeoutDestination)
		if err != nil {
			slog.Error("validate ivr: failed to resolve timeout destination", "error", err)
			return "internal error"
		}
		if !ok {
			return "timeout_destination does not name a peer, ring group, or ivr menu"
		}
	}
	return ""
}

func toIVROptions(options []ivrOptionRequest) []models.IVROption {
	out := make([]models.IVROption, len(options))
	for i, opt := range options {
		out[i] = models.IVROption{Digit: opt.Digit, Destination: opt.Destination}
	}
	return out
}
