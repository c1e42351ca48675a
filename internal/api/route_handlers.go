package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/lq216/gonopbx/internal/database/models"
)

// routeRequest is the JSON request body for creating/updating an inbound route.
type routeRequest struct {
	DID                  string `json:"did"`
	TrunkID              int64  `json:"trunk_id"`
	DestinationExtension string `json:"destination_extension"`
	Description          string `json:"description"`
	Enabled              *bool  `json:"enabled"`
}

// routeResponse is the JSON response for a single inbound route.
type routeResponse struct {
	ID                   int64  `json:"id"`
	DID                  string `json:"did"`
	TrunkID              int64  `json:"trunk_id"`
	DestinationExtension string `json:"destination_extension"`
	Description          string `json:"description"`
	Enabled              bool   `json:"enabled"`
	CreatedAt            string `json:"created_at"`
	UpdatedAt            string `json:"updated_at"`
}

func toRouteResponse(rt *models.InboundRoute) routeResponse {
	return routeResponse{
		ID:                   rt.ID,
		DID:                  rt.DID,
		TrunkID:              rt.TrunkID,
		DestinationExtension: rt.DestinationExtension,
		Description:          rt.Description,
		Enabled:              rt.Enabled,
		CreatedAt:            rt.CreatedAt.Format(time.RFC3339),
		UpdatedAt:            rt.UpdatedAt.Format(time.RFC3339),
	}
}

// handleListRoutes returns all inbound routes.
func (s *Server) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := s.routes.List(r.Context())
	if err != nil {
		slog.Error("list routes: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]routeResponse, len(routes))
	for i := range routes {
		items[i] = toRouteResponse(&routes[i])
	}
	writeJSON(w, http.StatusOK, items)
}

// handleCreateRoute creates an inbound route after validating DID
// uniqueness and that the destination resolves.
func (s *Server) handleCreateRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := s.validateRouteRequest(r, req, 0); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	route := &models.InboundRoute{
		DID:                  req.DID,
		TrunkID:              req.TrunkID,
		DestinationExtension: req.DestinationExtension,
		Description:          req.Description,
		Enabled:              true,
	}
	if req.Enabled != nil {
		route.Enabled = *req.Enabled
	}

	if err := s.routes.Create(r.Context(), route); err != nil {
		slog.Error("create route: failed to insert", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	created, err := s.routes.GetByID(r.Context(), route.ID)
	if err != nil || created == nil {
		slog.Error("create route: failed to re-fetch", "error", err, "route_id", route.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.auditLog(r, "create", "inbound_route", created.DID, req)
	s.applyAsterisk(r.Context(), s.manager.ApplyDialplan)

	slog.Info("inbound route created", "route_id", created.ID, "did", created.DID, "destination", created.DestinationExtension)
	writeJSON(w, http.StatusCreated, toRouteResponse(created))
}

// handleGetRoute returns a single inbound route by ID.
func (s *Server) handleGetRoute(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid route id")
		return
	}

	route, err := s.routes.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("get route: failed to query", "error", err, "route_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if route == nil {
		writeError(w, http.StatusNotFound, "route not found")
		return
	}

	writeJSON(w, http.StatusOK, toRouteResponse(route))
}

// handleUpdateRoute updates an existing inbound route.
func (s *Server) handleUpdateRoute(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid route id")
		return
	}

	existing, err := s.routes.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("update route: failed to query", "error", err, "route_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "route not found")
		return
	}

	var req routeRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := s.validateRouteRequest(r, req, id); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	existing.DID = req.DID
	existing.TrunkID = req.TrunkID
	existing.DestinationExtension = req.DestinationExtension
	existing.Description = req.Description
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}

	if err := s.routes.Update(r.Context(), existing); err != nil {
		slog.Error("update route: failed to update", "error", err, "route_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	updated, err := s.routes.GetByID(r.Context(), id)
	if err != nil || updated == nil {
		slog.Error("update route: failed to re-fetch", "error", err, "route_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.auditLog(r, "update", "inbound_route", updated.DID, req)
	s.applyAsterisk(r.Context(), s.manager.ApplyDialplan)

	slog.Info("inbound route updated", "route_id", id, "did", updated.DID)
	writeJSON(w, http.StatusOK, toRouteResponse(updated))
}

// handleDeleteRoute removes an inbound route.
func (s *Server) handleDeleteRoute(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid route id")
		return
	}

	existing, err := s.routes.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("delete route: failed to query", "error", err, "route_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "route not found")
		return
	}

	if err := s.routes.Delete(r.Context(), id); err != nil {
		slog.Error("delete route: failed to delete", "error", err, "route_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.auditLog(r, "delete", "inbound_route", existing.DID, nil)
	s.applyAsterisk(r.Context(), s.manager.ApplyDialplan)

	slog.Info("inbound route deleted", "route_id", id, "did", existing.DID)
	w.WriteHeader(http.StatusNoContent)
}

// validateRouteRequest checks a route body: DID format and uniqueness,
// trunk existence, and that the destination names a peer, ring group, or
// IVR menu. selfID excludes the route being updated from the uniqueness
// check (0 on create).
func (s *Server) validateRouteRequest(r *http.Request, req routeRequest, selfID int64) string {
	if !didRe.MatchString(req.DID) {
		return "did must be 3-20 digits with an optional leading +"
	}
	if req.TrunkID == 0 {
		return "trunk_id is required"
	}
	if req.DestinationExtension == "" {
		return "destination_extension is required"
	}

	ctx := r.Context()

	other, err := s.routes.GetByDID(ctx, req.DID)
	if err != nil {
		slog.Error("validate route: failed to query did", "error", err)
		return "internal error"
	}
	if other != nil && other.ID != selfID {
		return "did is already routed"
	}

	trunk, err := s.trunks.GetByID(ctx, req.TrunkID)
	if err != nil {
		slog.Error("validate route: failed to query trunk", "error", err)
		return "internal error"
	}
	if trunk == nil {
		return "trunk does not exist"
	}

	ok, err := s.destinationExists(ctx, req.DestinationExtension)
	if err != nil {
		slog.Error("validate route: failed to resolve destination", "error", err)
		return "internal error"
	}
	if !ok {
		return "destination_extension does not name a peer, ring group, or ivr menu"
	}
	return ""
}
