package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/lq216/gonopbx/internal/ami"
)

// handleActiveCalls returns the correlator's in-flight call snapshot.
func (s *Server) handleActiveCalls(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.correlator.ActiveCalls())
}

// originateRequest is the JSON body for POST /api/calls/originate.
type originateRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// handleOriginate places a call from one extension to another via the
// manager connection. The from-side device rings first.
func (s *Server) handleOriginate(w http.ResponseWriter, r *http.Request) {
	var req originateRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if !extensionRe.MatchString(req.From) {
		writeError(w, http.StatusBadRequest, "from must be 2-6 digits")
		return
	}
	if req.To == "" {
		writeError(w, http.StatusBadRequest, "to is required")
		return
	}

	peer, err := s.peers.GetByExtension(r.Context(), req.From)
	if err != nil {
		slog.Error("originate: failed to query peer", "error", err, "from", req.From)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if peer == nil {
		writeError(w, http.StatusNotFound, "from extension not found")
		return
	}

	if err := s.ami.Originate(r.Context(), req.From, req.To); err != nil {
		if errors.Is(err, ami.ErrNotConnected) {
			writeError(w, http.StatusServiceUnavailable, "asterisk connection is down")
			return
		}
		slog.Error("originate: action failed", "error", err, "from", req.From, "to", req.To)
		writeError(w, http.StatusBadGateway, "originate failed")
		return
	}

	s.auditLog(r, "originate", "call", req.From+"->"+req.To, nil)

	slog.Info("call originated", "from", req.From, "to", req.To)
	writeJSON(w, http.StatusOK, map[string]string{"status": "originated"})
}
