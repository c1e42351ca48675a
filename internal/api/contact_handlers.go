package api

import (
	"encoding/csv"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/lq216/gonopbx/internal/database/models"
)

// contactRequest is the JSON request body for creating/updating a contact.
type contactRequest struct {
	Name              string `json:"name"`
	InternalExtension string `json:"internal_extension"`
	ExternalNumber    string `json:"external_number"`
	Company           string `json:"company"`
	Tag               string `json:"tag"`
	Note              string `json:"note"`
	OwnerExtension    string `json:"owner_extension"`
}

// contactResponse is the JSON response for a single contact.
type contactResponse struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	InternalExtension string `json:"internal_extension"`
	ExternalNumber    string `json:"external_number"`
	Company           string `json:"company"`
	Tag               string `json:"tag"`
	Note              string `json:"note"`
	OwnerExtension    string `json:"owner_extension"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

func toContactResponse(c *models.Contact) contactResponse {
	return contactResponse{
		ID:                c.ID,
		Name:              c.Name,
		InternalExtension: c.InternalExtension,
		ExternalNumber:    c.ExternalNumber,
		Company:           c.Company,
		Tag:               c.Tag,
		Note:              c.Note,
		OwnerExtension:    c.OwnerExtension,
		CreatedAt:         c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         c.UpdatedAt.Format(time.RFC3339),
	}
}

// handleListContacts returns contacts. With ?owner=EXT the result is the
// global book plus that extension's private entries; without it, the
// global book only.
func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")

	var (
		contacts []models.Contact
		err      error
	)
	if owner != "" {
		contacts, err = s.contacts.List(r.Context(), owner)
	} else {
		contacts, err = s.contacts.ListGlobal(r.Context())
	}
	if err != nil {
		slog.Error("list contacts: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]contactResponse, len(contacts))
	for i := range contacts {
		items[i] = toContactResponse(&contacts[i])
	}
	writeJSON(w, http.StatusOK, items)
}

// handleCreateContact creates a contact.
func (s *Server) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateContactRequest(req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	contact := contactFromRequest(req)
	if err := s.contacts.Create(r.Context(), contact); err != nil {
		slog.Error("create contact: failed to insert", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	created, err := s.contacts.GetByID(r.Context(), contact.ID)
	if err != nil || created == nil {
		slog.Error("create contact: failed to re-fetch", "error", err, "contact_id", contact.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.auditLog(r, "create", "contact", created.Name, nil)

	slog.Info("contact created", "contact_id", created.ID, "name", created.Name)
	writeJSON(w, http.StatusCreated, toContactResponse(created))
}

// handleGetContact returns a single contact by ID.
func (s *Server) handleGetContact(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid contact id")
		return
	}

	contact, err := s.contacts.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("get contact: failed to query", "error", err, "contact_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if contact == nil {
		writeError(w, http.StatusNotFound, "contact not found")
		return
	}

	writeJSON(w, http.StatusOK, toContactResponse(contact))
}

// handleUpdateContact updates an existing contact.
func (s *Server) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid contact id")
		return
	}

	existing, err := s.contacts.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("update contact: failed to query", "error", err, "contact_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "contact not found")
		return
	}

	var req contactRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateContactRequest(req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	existing.Name = req.Name
	existing.InternalExtension = req.InternalExtension
	existing.ExternalNumber = req.ExternalNumber
	existing.Company = req.Company
	existing.Tag = req.Tag
	existing.Note = req.Note
	existing.OwnerExtension = req.OwnerExtension

	if err := s.contacts.Update(r.Context(), existing); err != nil {
		slog.Error("update contact: failed to update", "error", err, "contact_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.auditLog(r, "update", "contact", existing.Name, nil)

	slog.Info("contact updated", "contact_id", id, "name", existing.Name)
	writeJSON(w, http.StatusOK, toContactResponse(existing))
}

// handleDeleteContact removes a contact.
func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid contact id")
		return
	}

	existing, err := s.contacts.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("delete contact: failed to query", "error", err, "contact_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "contact not found")
		return
	}

	if err := s.contacts.Delete(r.Context(), id); err != nil {
		slog.Error("delete contact: failed to delete", "error", err, "contact_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.auditLog(r, "delete", "contact", existing.Name, nil)

	slog.Info("contact deleted", "contact_id", id, "name", existing.Name)
	w.WriteHeader(http.StatusNoContent)
}

// contactCSVHeader is the column layout for CSV import and export.
var contactCSVHeader = []string{
	"Name", "Internal Extension", "External Number", "Company", "Tag", "Note", "Owner Extension",
}

// handleExportContacts streams the address book as CSV.
func (s *Server) handleExportContacts(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")

	var (
		contacts []models.Contact
		err      error
	)
	if owner != "" {
		contacts, err = s.contacts.List(r.Context(), owner)
	} else {
		contacts, err = s.contacts.ListGlobal(r.Context())
	}
	if err != nil {
		slog.Error("export contacts: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=contacts.csv")

	cw := csv.NewWriter(w)
	cw.Write(contactCSVHeader)
	for _, c := range contacts {
		cw.Write([]string{
			c.Name, c.InternalExtension, c.ExternalNumber,
			c.Company, c.Tag, c.Note, c.OwnerExtension,
		})
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		slog.Error("export contacts: csv write error", "error", err)
	}
}

// handleImportContacts bulk-creates contacts from an uploaded CSV in the
// export column layout. Rows that fail validation are skipped and counted.
func (s *Server) handleImportContacts(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	cr := csv.NewReader(r.Body)
	cr.FieldsPerRecord = len(contactCSVHeader)

	header, err := cr.Read()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid csv: missing header row")
		return
	}
	if len(header) != len(contactCSVHeader) {
		writeError(w, http.StatusBadRequest, "invalid csv: expected "+strconv.Itoa(len(contactCSVHeader))+" columns")
		return
	}

	imported, skipped := 0, 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid csv on row "+strconv.Itoa(imported+skipped+2))
			return
		}

		req := contactRequest{
			Name:              row[0],
			InternalExtension: row[1],
			ExternalNumber:    row[2],
			Company:           row[3],
			Tag:               row[4],
			Note:              row[5],
			OwnerExtension:    row[6],
		}
		if validateContactRequest(req) != "" {
			skipped++
			continue
		}

		if err := s.contacts.Create(r.Context(), contactFromRequest(req)); err != nil {
			slog.Error("import contacts: failed to insert", "error", err, "name", req.Name)
			skipped++
			continue
		}
		imported++
	}

	s.auditLog(r, "import", "contact", "", map[string]int{"imported": imported, "skipped": skipped})

	slog.Info("contacts imported", "imported", imported, "skipped", skipped)
	writeJSON(w, http.StatusOK, map[string]int{"imported": imported, "skipped": skipped})
}

// validateContactRequest checks required fields for a contact create/update.
func validateContactRequest(req contactRequest) string {
	if req.Name == "" {
		return "name is required"
	}
	if req.InternalExtension == "" && req.ExternalNumber == "" {
		return "internal_extension or external_number is required"
	}
	if req.InternalExtension != "" && !extensionRe.MatchString(req.InternalExtension) {
		return "internal_extension must be 2-6 digits"
	}
	if req.ExternalNumber != "" && !didRe.MatchString(req.ExternalNumber) {
		return "external_number must be 3-20 digits with an optional leading +"
	}
	if req.OwnerExtension != "" && !extensionRe.MatchString(req.OwnerExtension) {
		return "owner_extension must be 2-6 digits"
	}
	return ""
}

func contactFromRequest(req contactRequest) *models.Contact {
	return &models.Contact{
		Name:              req.Name,
		InternalExtension: req.InternalExtension,
		ExternalNumber:    req.ExternalNumber,
		Company:           req.Company,
		Tag:               req.Tag,
		Note:              req.Note,
		OwnerExtension:    req.OwnerExtension,
	}
}
