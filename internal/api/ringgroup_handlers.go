package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/lq216/gonopbx/internal/database/models"
)

// ringGroupStrategies are the accepted ring strategies.
var ringGroupStrategies = map[string]bool{
	"ringall":     true,
	"roundrobin":  true,
	"leastrecent": true,
}

// ringGroupRequest is the JSON request body for creating/updating a ring group.
type ringGroupRequest struct {
	Name           string   `json:"name"`
	Extension      string   `json:"extension"`
	Strategy       string   `json:"strategy"`
	RingTime       *int     `json:"ring_time"`
	InboundTrunkID int64    `json:"inbound_trunk_id"`
	InboundDID     string   `json:"inbound_did"`
	Enabled        *bool    `json:"enabled"`
	Members        []string `json:"members"`
}

// ringGroupResponse is the JSON response for a single ring group.
type ringGroupResponse struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Extension      string   `json:"extension"`
	Strategy       string   `json:"strategy"`
	RingTime       int      `json:"ring_time"`
	InboundTrunkID int64    `json:"inbound_trunk_id"`
	InboundDID     string   `json:"inbound_did"`
	Enabled        bool     `json:"enabled"`
	Members        []string `json:"members"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

func toRingGroupResponse(g *models.RingGroup) ringGroupResponse {
	members := g.Members
	if members == nil {
		members = []string{}
	}
	return ringGroupResponse{
		ID:             g.ID,
		Name:           g.Name,
		Extension:      g.Extension,
		Strategy:       g.Strategy,
		RingTime:       g.RingTime,
		InboundTrunkID: g.InboundTrunkID,
		InboundDID:     g.InboundDID,
		Enabled:        g.Enabled,
		Members:        members,
		CreatedAt:      g.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      g.UpdatedAt.Format(time.RFC3339),
	}
}

// handleListRingGroups returns all ring groups.
func (s *Server) handleListRingGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.ringGroups.List(r.Context())
	if err != nil {
		slog.Error("list ring groups: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]ringGroupResponse, len(groups))
	for i := range groups {
		items[i] = toRingGroupResponse(&groups[i])
	}
	writeJSON(w, http.StatusOK, items)
}

// handleCreateRingGroup creates a ring group and syncs its inbound DID
// into the route table.
func (s *Server) handleCreateRingGroup(w http.ResponseWriter, r *http.Request) {
	var req ringGroupRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := s.validateRingGroupRequest(r.Context(), &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if errMsg := s.checkExtensionFree(r.Context(), req.Extension, "", ""); errMsg != "" {
		writeError(w, http.StatusConflict, errMsg)
		return
	}

	group := &models.RingGroup{
		Name:           req.Name,
		Extension:      req.Extension,
		Strategy:       req.Strategy,
		RingTime:       25,
		InboundTrunkID: req.InboundTrunkID,
		InboundDID:     req.InboundDID,
		Enabled:        true,
		Members:        req.Members,
	}
	if req.RingTime != nil {
		group.RingTime = *req.RingTime
	}
	if req.Enabled != nil {
		group.Enabled = *req.Enabled
	}

	if err := s.ringGroups.Create(r.Context(), group); err != nil {
		slog.Error("create ring group: failed to insert", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.syncInboundDID(r.Context(), "", group.InboundDID, group.InboundTrunkID, group.Extension, "ring group "+group.Name)

	created, err := s.ringGroups.GetByID(r.Context(), group.ID)
	if err != nil || created == nil {
		slog.Error("create ring group: failed to re-fetch", "error", err, "group_id", group.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.auditLog(r, "create", "ring_group", created.Extension, req)
	s.applyAsterisk(r.Context(), s.manager.ApplyQueues, s.manager.ApplyDialplan)

	slog.Info("ring group created", "group_id", created.ID, "extension", created.Extension, "members", len(created.Members))
	writeJSON(w, http.StatusCreated, toRingGroupResponse(created))
}

// handleGetRingGroup returns a single ring group by ID.
func (s *Server) handleGetRingGroup(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ring group id")
		return
	}

	group, err := s.ringGroups.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("get ring group: failed to query", "error", err, "group_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if group == nil {
		writeError(w, http.StatusNotFound, "ring group not found")
		return
	}

	writeJSON(w, http.StatusOK, toRingGroupResponse(group))
}

// handleUpdateRingGroup updates a ring group, replacing its member list
// wholesale and re-syncing the inbound DID.
func (s *Server) handleUpdateRingGroup(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ring group id")
		return
	}

	existing, err := s.ringGroups.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("update ring group: failed to query", "error", err, "group_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "ring group not found")
		return
	}

	var req ringGroupRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := s.validateRingGroupRequest(r.Context(), &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if req.Extension != existing.Extension {
		if errMsg := s.checkExtensionFree(r.Context(), req.Extension, existing.Extension, ""); errMsg != "" {
			writeError(w, http.StatusConflict, errMsg)
			return
		}
	}

	previousDID := existing.InboundDID

	existing.Name = req.Name
	existing.Extension = req.Extension
	existing.Strategy = req.Strategy
	existing.InboundTrunkID = req.InboundTrunkID
	existing.InboundDID = req.InboundDID
	existing.Members = req.Members
	if req.RingTime != nil {
		existing.RingTime = *req.RingTime
	}
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}

	if err := s.ringGroups.Update(r.Context(), existing); err != nil {
		slog.Error("update ring group: failed to update", "error", err, "group_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.syncInboundDID(r.Context(), previousDID, existing.InboundDID, existing.InboundTrunkID, existing.Extension, "ring group "+existing.Name)

	updated, err := s.ringGroups.GetByID(r.Context(), id)
	if err != nil || updated == nil {
		slog.Error("update ring group: failed to re-fetch", "error", err, "group_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.auditLog(r, "update", "ring_group", updated.Extension, req)
	s.applyAsterisk(r.Context(), s.manager.ApplyQueues, s.manager.ApplyDialplan)

	slog.Info("ring group updated", "group_id", id, "extension", updated.Extension)
	writeJSON(w, http.StatusOK, toRingGroupResponse(updated))
}

// handleDeleteRingGroup removes a ring group and its synced inbound route.
func (s *Server) handleDeleteRingGroup(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ring group id")
		return
	}

	existing, err := s.ringGroups.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("delete ring group: failed to query", "error", err, "group_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "ring group not found")
		return
	}

	if err := s.ringGroups.Delete(r.Context(), id); err != nil {
		slog.Error("delete ring group: failed to delete", "error", err, "group_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.syncInboundDID(r.Context(), existing.InboundDID, "", 0, "", "")

	s.auditLog(r, "delete", "ring_group", existing.Extension, nil)
	s.applyAsterisk(r.Context(), s.manager.ApplyQueues, s.manager.ApplyDialplan)

	slog.Info("ring group deleted", "group_id", id, "extension", existing.Extension)
	w.WriteHeader(http.StatusNoContent)
}

// validateRingGroupRequest checks a ring group body and verifies every
// member is a known peer extension.
func (s *Server) validateRingGroupRequest(ctx context.Context, req *ringGroupRequest) string {
	if req.Name == "" {
		return "name is required"
	}
	if !extensionRe.MatchString(req.Extension) {
		return "extension must be 2-6 digits"
	}
	if req.Strategy == "" {
		req.Strategy = "ringall"
	}
	if !ringGroupStrategies[req.Strategy] {
		return "strategy must be \"ringall\", \"roundrobin\", or \"leastrecent\""
	}
	if req.RingTime != nil && (*req.RingTime < 5 || *req.RingTime > 120) {
		return "ring_time must be between 5 and 120 seconds"
	}
	if len(req.Members) == 0 {
		return "members must contain at least one extension"
	}
	if req.InboundDID != "" {
		if !didRe.MatchString(req.InboundDID) {
			return "inbound_did must be 3-20 digits with an optional leading +"
		}
		if req.InboundTrunkID == 0 {
			return "inbound_trunk_id is required when inbound_did is set"
		}
	}
	for _, member := range req.Members {
		peer, err := s.peers.GetByExtension(ctx, member)
		if err != nil {
			slog.Error("validate ring group: failed to query member", "error", err, "member", member)
			return "internal error"
		}
		if peer == nil {
			return "member " + member + " is not a known extension"
		}
	}
	return ""
}

// checkExtensionFree verifies that an extension number is not already used
// by a peer, another ring group, or an IVR menu. excludeGroup and
// excludeIVR skip the record being updated.
func (s *Server) checkExtensionFree(ctx context.Context, extension, excludeGroup, excludeIVR string) string {
	peer, err := s.peers.GetByExtension(ctx, extension)
	if err != nil {
		slog.Error("extension check: failed to query peer", "error", err)
		return "internal error"
	}
	if peer != nil {
		return "extension is already used by a sip peer"
	}
	group, err := s.ringGroups.GetByExtension(ctx, extension)
	if err != nil {
		slog.Error("extension check: failed to query ring group", "error", err)
		return "internal error"
	}
	if group != nil && group.Extension != excludeGroup {
		return "extension is already used by a ring group"
	}
	menu, err := s.ivrMenus.GetByExtension(ctx, extension)
	if err != nil {
		slog.Error("extension check: failed to query ivr menu", "error", err)
		return "internal error"
	}
	if menu != nil && menu.Extension != excludeIVR {
		return "extension is already used by an ivr menu"
	}
	return ""
}

// syncInboundDID keeps the route table aligned with a ring group or IVR
// menu's inbound DID: the old route is removed when the DID changes, and a
// route for the new DID is created or repointed. Failures are logged only;
// the owning record was already saved.
func (s *Server) syncInboundDID(ctx context.Context, previousDID, did string, trunkID int64, destination, description string) {
	if previousDID != "" && previousDID != did {
		if route, err := s.routes.GetByDID(ctx, previousDID); err != nil {
			slog.Error("did sync: failed to query previous route", "error", err, "did", previousDID)
		} else if route != nil {
			if err := s.routes.Delete(ctx, route.ID); err != nil {
				slog.Error("did sync: failed to delete previous route", "error", err, "did", previousDID)
			}
		}
	}

	if did == "" {
		return
	}

	route, err := s.routes.GetByDID(ctx, did)
	if err != nil {
		slog.Error("did sync: failed to query route", "error", err, "did", did)
		return
	}
	if route == nil {
		route = &models.InboundRoute{
			DID:                  did,
			TrunkID:              trunkID,
			DestinationExtension: destination,
			Description:          description,
			Enabled:              true,
		}
		if err := s.routes.Create(ctx, route); err != nil {
			slog.Error("did sync: failed to create route", "error", err, "did", did)
		}
		return
	}

	route.TrunkID = trunkID
	route.DestinationExtension = destination
	route.Description = description
	route.Enabled = true
	if err := s.routes.Update(ctx, route); err != nil {
		slog.Error("did sync: failed to update route", "error", err, "did", did)
	}
}
