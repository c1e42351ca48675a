package api

import (
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lq216/gonopbx/internal/database/models"
)

// extensionRe validates extension numbers: digits only, 2-6 chars.
var extensionRe = regexp.MustCompile(`^\d{2,6}$`)

// peerRequest is the JSON request body for creating/updating a SIP peer.
type peerRequest struct {
	Extension   string `json:"extension"`
	Secret      string `json:"secret"`
	CallerID    string `json:"caller_id"`
	Codecs      string `json:"codecs"`
	OutboundCID string `json:"outbound_cid"`
	PAI         string `json:"pai"`
	BLFEnabled  *bool  `json:"blf_enabled"`
	PickupGroup string `json:"pickup_group"`
	Enabled     *bool  `json:"enabled"`
}

// peerResponse is the JSON response for a single SIP peer.
// The SIP secret is never returned.
type peerResponse struct {
	ID          int64  `json:"id"`
	Extension   string `json:"extension"`
	CallerID    string `json:"caller_id"`
	Codecs      string `json:"codecs"`
	OutboundCID string `json:"outbound_cid"`
	PAI         string `json:"pai"`
	BLFEnabled  bool   `json:"blf_enabled"`
	PickupGroup string `json:"pickup_group"`
	Enabled     bool   `json:"enabled"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toPeerResponse(p *models.SIPPeer) peerResponse {
	return peerResponse{
		ID:          p.ID,
		Extension:   p.Extension,
		CallerID:    p.CallerID,
		Codecs:      p.Codecs,
		OutboundCID: p.OutboundCID,
		PAI:         p.PAI,
		BLFEnabled:  p.BLFEnabled,
		PickupGroup: p.PickupGroup,
		Enabled:     p.Enabled,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}

// handleListPeers returns all SIP peers.
func (s *Server) handleListPeers(w http.ResponseWriter, r *http.Request) {
	peers, err := s.peers.List(r.Context())
	if err != nil {
		slog.Error("list peers: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]peerResponse, len(peers))
	for i := range peers {
		items[i] = toPeerResponse(&peers[i])
	}
	writeJSON(w, http.StatusOK, items)
}

// handleCreatePeer creates a SIP peer and its default voicemail mailbox.
func (s *Server) handleCreatePeer(w http.ResponseWriter, r *http.Request) {
	var req peerRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validatePeerRequest(req, true); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	existing, err := s.peers.GetByExtension(r.Context(), req.Extension)
	if err != nil {
		slog.Error("create peer: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "extension already exists")
		return
	}

	peer := &models.SIPPeer{
		Extension:   req.Extension,
		Secret:      req.Secret,
		CallerID:    req.CallerID,
		Context:     "internal",
		Codecs:      req.Codecs,
		OutboundCID: req.OutboundCID,
		PAI:         req.PAI,
		PickupGroup: req.PickupGroup,
		Enabled:     true,
	}
	if req.BLFEnabled != nil {
		peer.BLFEnabled = *req.BLFEnabled
	}
	if req.Enabled != nil {
		peer.Enabled = *req.Enabled
	}

	if err := s.peers.Create(r.Context(), peer); err != nil {
		slog.Error("create peer: failed to insert", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Every extension gets a mailbox record so voicemail branches in the
	// dialplan always resolve.
	box := &models.VoicemailMailbox{
		Extension:   peer.Extension,
		Enabled:     true,
		Name:        peer.CallerID,
		RingTimeout: 20,
	}
	if err := s.mailboxes.Upsert(r.Context(), box); err != nil {
		slog.Error("create peer: failed to create mailbox", "error", err, "extension", peer.Extension)
	}

	created, err := s.peers.GetByID(r.Context(), peer.ID)
	if err != nil || created == nil {
		slog.Error("create peer: failed to re-fetch", "error", err, "peer_id", peer.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.auditLog(r, "create", "sip_peer", created.Extension, req)
	s.applyAsterisk(r.Context(), s.manager.ApplyPJSIP, s.manager.ApplyVoicemail, s.manager.ApplyDialplan)

	slog.Info("peer created", "peer_id", created.ID, "extension", created.Extension)
	writeJSON(w, http.StatusCreated, toPeerResponse(created))
}

// handleGetPeer returns a single SIP peer by ID.
func (s *Server) handleGetPeer(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid peer id")
		return
	}

	peer, err := s.peers.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("get peer: failed to query", "error", err, "peer_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if peer == nil {
		writeError(w, http.StatusNotFound, "peer not found")
		return
	}

	writeJSON(w, http.StatusOK, toPeerResponse(peer))
}

// handleUpdatePeer updates an existing SIP peer.
func (s *Server) handleUpdatePeer(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid peer id")
		return
	}

	existing, err := s.peers.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("update peer: failed to query", "error", err, "peer_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "peer not found")
		return
	}

	var req peerRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validatePeerRequest(req, false); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if req.Extension != existing.Extension {
		other, err := s.peers.GetByExtension(r.Context(), req.Extension)
		if err != nil {
			slog.Error("update peer: failed to query", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if other != nil {
			writeError(w, http.StatusConflict, "extension already exists")
			return
		}
	}

	existing.Extension = req.Extension
	existing.CallerID = req.CallerID
	existing.Codecs = req.Codecs
	existing.OutboundCID = req.OutboundCID
	existing.PAI = req.PAI
	existing.PickupGroup = req.PickupGroup

	// Only update the secret if a new one is provided.
	if req.Secret != "" {
		existing.Secret = req.Secret
	}
	if req.BLFEnabled != nil {
		existing.BLFEnabled = *req.BLFEnabled
	}
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}

	if err := s.peers.Update(r.Context(), existing); err != nil {
		slog.Error("update peer: failed to update", "error", err, "peer_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	updated, err := s.peers.GetByID(r.Context(), id)
	if err != nil || updated == nil {
		slog.Error("update peer: failed to re-fetch", "error", err, "peer_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.auditLog(r, "update", "sip_peer", updated.Extension, req)
	s.applyAsterisk(r.Context(), s.manager.ApplyPJSIP, s.manager.ApplyDialplan)

	slog.Info("peer updated", "peer_id", id, "extension", updated.Extension)
	writeJSON(w, http.StatusOK, toPeerResponse(updated))
}

// handleDeletePeer removes a SIP peer.
func (s *Server) handleDeletePeer(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid peer id")
		return
	}

	existing, err := s.peers.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("delete peer: failed to query", "error", err, "peer_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "peer not found")
		return
	}

	if err := s.peers.Delete(r.Context(), id); err != nil {
		slog.Error("delete peer: failed to delete", "error", err, "peer_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.auditLog(r, "delete", "sip_peer", existing.Extension, nil)
	s.applyAsterisk(r.Context(), s.manager.ApplyPJSIP, s.manager.ApplyVoicemail, s.manager.ApplyDialplan)

	slog.Info("peer deleted", "peer_id", id, "extension", existing.Extension)
	w.WriteHeader(http.StatusNoContent)
}

// parseIDParam extracts and parses the numeric ID from the URL parameter.
func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// validatePeerRequest checks required fields for a peer create/update.
// isCreate controls whether secret is required.
func validatePeerRequest(req peerRequest, isCreate bool) string {
	if !extensionRe.MatchString(req.Extension) {
		return "extension must be 2-6 digits"
	}
	if isCreate && req.Secret == "" {
		return "secret is required"
	}
	if req.Secret != "" && len(req.Secret) < 8 {
		return "secret must be at least 8 characters"
	}
	if req.OutboundCID != "" && !digitsRe.MatchString(req.OutboundCID) {
		return "outbound_cid must contain only digits"
	}
	if req.PAI != "" && !digitsRe.MatchString(req.PAI) {
		return "pai must contain only digits"
	}
	return ""
}
