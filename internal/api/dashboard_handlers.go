package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/lq216/gonopbx/internal/database/models"
)

// endpointStatus is one registered device in the dashboard summary.
type endpointStatus struct {
	Extension   string `json:"extension"`
	DeviceState string `json:"device_state"`
}

// recentCallEntry is one row in the dashboard's recent call list.
type recentCallEntry struct {
	ID          int64  `json:"id"`
	Caller      string `json:"caller"`
	Destination string `json:"destination"`
	Duration    int    `json:"duration"`
	Disposition string `json:"disposition"`
	CallDate    string `json:"call_date"`
}

// handleDashboardStatus aggregates entity counts, live endpoint states
// from the engine, and recent call records.
func (s *Server) handleDashboardStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	count := func(name string, query func() (int, error)) int {
		n, err := query()
		if err != nil {
			slog.Error("dashboard: failed to count "+name, "error", err)
			return 0
		}
		return n
	}

	totalPeers := count("peers", func() (int, error) {
		items, err := s.peers.List(ctx)
		return len(items), err
	})
	totalTrunks := count("trunks", func() (int, error) {
		items, err := s.trunks.List(ctx)
		return len(items), err
	})
	totalRoutes := count("routes", func() (int, error) {
		items, err := s.routes.List(ctx)
		return len(items), err
	})
	totalGroups := count("ring groups", func() (int, error) {
		items, err := s.ringGroups.List(ctx)
		return len(items), err
	})
	totalIVRs := count("ivr menus", func() (int, error) {
		items, err := s.ivrMenus.List(ctx)
		return len(items), err
	})

	// Live endpoint reachability, best effort while disconnected.
	endpoints := []endpointStatus{}
	if s.ami.Connected() {
		entries, err := s.ami.SendList(ctx, "PJSIPShowEndpoints", nil)
		if err != nil {
			slog.Warn("dashboard: endpoint listing failed", "error", err)
		} else {
			for _, e := range entries {
				if e.Name() != "EndpointList" {
					continue
				}
				endpoints = append(endpoints, endpointStatus{
					Extension:   e.Get("ObjectName"),
					DeviceState: e.Get("DeviceState"),
				})
			}
		}
	}

	recent, err := s.cdrs.ListRecent(ctx, 10)
	if err != nil {
		slog.Error("dashboard: failed to list recent cdrs", "error", err)
		recent = nil
	}
	recentCalls := make([]recentCallEntry, 0, len(recent))
	for i := range recent {
		recentCalls = append(recentCalls, toRecentCallEntry(&recent[i]))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ami_connected": s.ami.Connected(),
		"active_calls":  s.correlator.ActiveCallCount(),
		"total_peers":   totalPeers,
		"total_trunks":  totalTrunks,
		"total_routes":  totalRoutes,
		"total_groups":  totalGroups,
		"total_ivrs":    totalIVRs,
		"endpoints":     endpoints,
		"recent_calls":  recentCalls,
	})
}

func toRecentCallEntry(c *models.CDR) recentCallEntry {
	return recentCallEntry{
		ID:          c.ID,
		Caller:      c.Src,
		Destination: c.Dst,
		Duration:    c.Duration,
		Disposition: c.Disposition,
		CallDate:    c.CallDate.Format(time.RFC3339),
	}
}
