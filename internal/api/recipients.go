package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/blastry/internal/recipient"
)

// AddRecipientRequest is the request body for POST /recipients
type AddRecipientRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// ImportResponse is the response for POST /recipients/import
type ImportResponse struct {
	Added   int    `json:"added"`
	Skipped int    `json:"skipped"`
	Warning string `json:"warning,omitempty"`
}

// activeRecipients resolves the active project's recipient list.
func (s *Server) activeRecipients(w http.ResponseWriter) *recipient.Registry {
	reg := s.deps.Recipients()
	if reg == nil {
		s.sendError(w, http.StatusServiceUnavailable, "recipient list is not ready")
		return nil
	}
	return reg
}

// handleListRecipients handles GET /api/v1/recipients
func (s *Server) handleListRecipients(w http.ResponseWriter, r *http.Request) {
	reg := s.activeRecipients(w)
	if reg == nil {
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{
		"eventId":    reg.EventID(),
		"recipients": reg.List(),
	})
}

// handleAddRecipient handles POST /api/v1/recipients
func (s *Server) handleAddRecipient(w http.ResponseWriter, r *http.Request) {
	reg := s.activeRecipients(w)
	if reg == nil {
		return
	}

	var req AddRecipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	p, err := reg.AddManual(r.Context(), req.Name, req.Phone)
	if err != nil {
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, p)
}

// handleImportRecipients handles POST /api/v1/recipients/import. The
// body is the raw CSV upload.
func (s *Server) handleImportRecipients(w http.ResponseWriter, r *http.Request) {
	reg := s.activeRecipients(w)
	if reg == nil {
		return
	}

	rows, err := recipient.ParseCSV(r.Body)
	if err != nil {
		s.sendAppError(w, err)
		return
	}

	added, err := reg.BulkImport(r.Context(), rows)
	resp := ImportResponse{Added: added, Skipped: len(rows) - added}
	if err != nil {
		// Partial imports still land; surface the first failure.
		resp.Warning = err.Error()
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleRecipientTemplate handles GET /api/v1/recipients/template.csv
func (s *Server) handleRecipientTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="template.csv"`)
	if err := recipient.WriteTemplateCSV(w); err != nil {
		s.logger.Error("failed to write recipient template", "error", err)
	}
}

// handleRemoveRecipient handles DELETE /api/v1/recipients/{id}
func (s *Server) handleRemoveRecipient(w http.ResponseWriter, r *http.Request) {
	reg := s.activeRecipients(w)
	if reg == nil {
		return
	}
	if err := reg.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.sendAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
