package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/lq216/gonopbx/internal/database/models"
)

// auditResponse is the JSON response for a single audit log entry.
type auditResponse struct {
	ID         int64           `json:"id"`
	Timestamp  string          `json:"timestamp"`
	Username   string          `json:"username"`
	Action     string          `json:"action"`
	ObjectType string          `json:"object_type"`
	ObjectID   string          `json:"object_id"`
	Details    json.RawMessage `json:"details"`
	IPAddress  string          `json:"ip_address"`
}

func toAuditResponse(e *models.AuditLog) auditResponse {
	details := json.RawMessage("null")
	if e.Details != "" && json.Valid([]byte(e.Details)) {
		details = json.RawMessage(e.Details)
	}
	return auditResponse{
		ID:         e.ID,
		Timestamp:  e.Timestamp.Format(time.RFC3339),
		Username:   e.Username,
		Action:     e.Action,
		ObjectType: e.ObjectType,
		ObjectID:   e.ObjectID,
		Details:    details,
		IPAddress:  e.IPAddress,
	}
}

// handleListAudit returns the audit trail, newest first.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	entries, total, err := s.audit.List(r.Context(), pg.Limit, pg.Offset)
	if err != nil {
		slog.Error("list audit: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]auditResponse, len(entries))
	for i := range entries {
		items[i] = toAuditResponse(&entries[i])
	}

	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  items,
		Total:  total,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}
