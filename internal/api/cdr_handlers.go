package api

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/lq216/gonopbx/internal/database"
	"github.com/lq216/gonopbx/internal/database/models"
)

// cdrResponse is the JSON response for a single call record.
type cdrResponse struct {
	ID          int64  `json:"id"`
	CallDate    string `json:"call_date"`
	CLID        string `json:"clid"`
	Src         string `json:"src"`
	Dst         string `json:"dst"`
	Duration    int    `json:"duration"`
	BillSec     int    `json:"billsec"`
	Disposition string `json:"disposition"`
	Channel     string `json:"channel"`
	DstChannel  string `json:"dst_channel"`
	UniqueID    string `json:"uniqueid"`
}

func toCDRResponse(c *models.CDR) cdrResponse {
	return cdrResponse{
		ID:          c.ID,
		CallDate:    c.CallDate.Format(time.RFC3339),
		CLID:        c.CLID,
		Src:         c.Src,
		Dst:         c.Dst,
		Duration:    c.Duration,
		BillSec:     c.BillSec,
		Disposition: c.Disposition,
		Channel:     c.Channel,
		DstChannel:  c.DstChannel,
		UniqueID:    c.UniqueID,
	}
}

// cdrFilterFromQuery builds the repository filter from query parameters.
// Returns an error message for an invalid disposition.
func cdrFilterFromQuery(r *http.Request, limit, offset int) (database.CDRListFilter, string) {
	q := r.URL.Query()
	disposition := q.Get("disposition")
	switch disposition {
	case "", "ANSWERED", "NO ANSWER", "BUSY", "FAILED":
	default:
		return database.CDRListFilter{}, "disposition must be ANSWERED, NO ANSWER, BUSY, or FAILED"
	}

	return database.CDRListFilter{
		Limit:       limit,
		Offset:      offset,
		Search:      q.Get("search"),
		Disposition: disposition,
		StartDate:   q.Get("start_date"),
		EndDate:     q.Get("end_date"),
	}, ""
}

// handleListCDRs returns call records with pagination and optional filters.
// Query params: limit, offset, search, disposition, start_date, end_date.
func (s *Server) handleListCDRs(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	filter, errMsg := cdrFilterFromQuery(r, pg.Limit, pg.Offset)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	cdrs, total, err := s.cdrs.List(r.Context(), filter)
	if err != nil {
		slog.Error("list cdrs: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]cdrResponse, len(cdrs))
	for i := range cdrs {
		items[i] = toCDRResponse(&cdrs[i])
	}

	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  items,
		Total:  total,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}

// handleExportCDRs exports call records as CSV with the same filters as
// the list endpoint, capped at 10000 rows.
func (s *Server) handleExportCDRs(w http.ResponseWriter, r *http.Request) {
	filter, errMsg := cdrFilterFromQuery(r, 10000, 0)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	cdrs, _, err := s.cdrs.List(r.Context(), filter)
	if err != nil {
		slog.Error("export cdrs: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=cdr.csv")

	cw := csv.NewWriter(w)
	cw.Write([]string{
		"ID", "Call Date", "Caller ID", "Source", "Destination",
		"Duration", "Billed Seconds", "Disposition", "Channel",
		"Destination Channel", "Unique ID",
	})

	for _, c := range cdrs {
		cw.Write([]string{
			strconv.FormatInt(c.ID, 10),
			c.CallDate.Format(time.RFC3339),
			c.CLID,
			c.Src,
			c.Dst,
			strconv.Itoa(c.Duration),
			strconv.Itoa(c.BillSec),
			c.Disposition,
			c.Channel,
			c.DstChannel,
			c.UniqueID,
		})
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		slog.Error("export cdrs: csv write error", "error", err)
	}
}
