package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lq216/gonopbx/internal/database/models"
	"github.com/lq216/gonopbx/internal/dialplan"
)

// forwardTypes are the accepted values for the {type} URL parameter. At
// most one rule exists per (extension, type) pair.
var forwardTypes = map[string]bool{
	dialplan.ForwardUnconditional: true,
	dialplan.ForwardBusy:          true,
	dialplan.ForwardNoAnswer:      true,
}

// forwardRequest is the JSON body for PUT /api/callforward/{ext}/{type}.
type forwardRequest struct {
	Destination string `json:"destination"`
	RingTime    *int   `json:"ring_time"`
	Enabled     *bool  `json:"enabled"`
}

// forwardResponse is the JSON response for a single forwarding rule.
type forwardResponse struct {
	Extension   string `json:"extension"`
	ForwardType string `json:"forward_type"`
	Destination string `json:"destination"`
	RingTime    int    `json:"ring_time"`
	Enabled     bool   `json:"enabled"`
	UpdatedAt   string `json:"updated_at"`
}

func toForwardResponse(f *models.CallForward) forwardResponse {
	return forwardResponse{
		Extension:   f.Extension,
		ForwardType: f.ForwardType,
		Destination: f.Destination,
		RingTime:    f.RingTime,
		Enabled:     f.Enabled,
		UpdatedAt:   f.UpdatedAt.Format(time.RFC3339),
	}
}

// handleGetCallForwards returns all forwarding rules for one extension.
func (s *Server) handleGetCallForwards(w http.ResponseWriter, r *http.Request) {
	extension := chi.URLParam(r, "extension")
	if !extensionRe.MatchString(extension) {
		writeError(w, http.StatusBadRequest, "invalid extension")
		return
	}

	forwards, err := s.forwards.ListByExtension(r.Context(), extension)
	if err != nil {
		slog.Error("get call forwards: failed to query", "error", err, "extension", extension)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]forwardResponse, len(forwards))
	for i := range forwards {
		items[i] = toForwardResponse(&forwards[i])
	}
	writeJSON(w, http.StatusOK, items)
}

// handleSetCallForward creates or replaces the rule for one
// (extension, type) pair.
func (s *Server) handleSetCallForward(w http.ResponseWriter, r *http.Request) {
	extension := chi.URLParam(r, "extension")
	forwardType := chi.URLParam(r, "type")
	if !extensionRe.MatchString(extension) {
		writeError(w, http.StatusBadRequest, "invalid extension")
		return
	}
	if !forwardTypes[forwardType] {
		writeError(w, http.StatusBadRequest, "type must be \"unconditional\", \"busy\", or \"no_answer\"")
		return
	}

	peer, err := s.peers.GetByExtension(r.Context(), extension)
	if err != nil {
		slog.Error("set call forward: failed to query peer", "error", err, "extension", extension)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if peer == nil {
		writeError(w, http.StatusNotFound, "extension not found")
		return
	}

	var req forwardRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Destination == "" {
		writeError(w, http.StatusBadRequest, "destination is required")
		return
	}
	if req.RingTime != nil && (*req.RingTime < 5 || *req.RingTime > 120) {
		writeError(w, http.StatusBadRequest, "ring_time must be between 5 and 120 seconds")
		return
	}

	existing, err := s.forwards.Get(r.Context(), extension, forwardType)
	if err != nil {
		slog.Error("set call forward: failed to query", "error", err, "extension", extension)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	fwd := existing
	if fwd == nil {
		fwd = &models.CallForward{
			Extension:   extension,
			ForwardType: forwardType,
			RingTime:    20,
			Enabled:     true,
		}
	}
	fwd.Destination = req.Destination
	if req.RingTime != nil {
		fwd.RingTime = *req.RingTime
	}
	if req.Enabled != nil {
		fwd.Enabled = *req.Enabled
	}

	if existing == nil {
		err = s.forwards.Create(r.Context(), fwd)
	} else {
		err = s.forwards.Update(r.Context(), fwd)
	}
	if err != nil {
		slog.Error("set call forward: failed to save", "error", err, "extension", extension, "type", forwardType)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.auditLog(r, "set", "call_forward", extension+"/"+forwardType, req)
	s.applyAsterisk(r.Context(), s.manager.ApplyDialplan)

	slog.Info("call forward set", "extension", extension, "type", forwardType, "destination", fwd.Destination, "enabled", fwd.Enabled)
	writeJSON(w, http.StatusOK, toForwardResponse(fwd))
}

// handleDeleteCallForward removes the rule for one (extension, type) pair.
func (s *Server) handleDeleteCallForward(w http.ResponseWriter, r *http.Request) {
	extension := chi.URLParam(r, "extension")
	forwardType := chi.URLParam(r, "type")
	if !extensionRe.MatchString(extension) {
		writeError(w, http.StatusBadRequest, "invalid extension")
		return
	}
	if !forwardTypes[forwardType] {
		writeError(w, http.StatusBadRequest, "type must be \"unconditional\", \"busy\", or \"no_answer\"")
		return
	}

	existing, err := s.forwards.Get(r.Context(), extension, forwardType)
	if err != nil {
		slog.Error("delete call forward: failed to query", "error", err, "extension", extension)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "forward rule not found")
		return
	}

	if err := s.forwards.Delete(r.Context(), existing.ID); err != nil {
		slog.Error("delete call forward: failed to delete", "error", err, "extension", extension)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.auditLog(r, "delete", "call_forward", extension+"/"+forwardType, nil)
	s.applyAsterisk(r.Context(), s.manager.ApplyDialplan)

	slog.Info("call forward deleted", "extension", extension, "type", forwardType)
	w.WriteHeader(http.StatusNoContent)
}
