package api

import (
	"encoding/json"
	"net/http"

	"github.com/foxzi/blastry/internal/history"
	"github.com/foxzi/blastry/internal/recipient"
)

// SendRequest is the request body for POST /send
type SendRequest struct {
	Mode string `json:"mode,omitempty"`
}

// handleSend handles POST /api/v1/send. The active project's message
// goes to its whole recipient list.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	active, ok := s.deps.Projects.Active()
	if !ok {
		s.sendError(w, http.StatusNotFound, "no active project")
		return
	}
	reg := s.activeRecipients(w)
	if reg == nil {
		return
	}

	res, err := s.deps.Dispatcher.Dispatch(r.Context(), active, reg.List(), req.Mode)
	if err != nil {
		s.logger.Error("dispatch failed", "projectId", active.ID, "error", err)
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusAccepted, res)
}

// activeHistory resolves the active project's job history.
func (s *Server) activeHistory(w http.ResponseWriter) *history.Observer {
	obs := s.deps.History()
	if obs == nil {
		s.sendError(w, http.StatusServiceUnavailable, "job history is not ready")
		return nil
	}
	return obs
}

// handleHistoryDays handles GET /api/v1/history/days
func (s *Server) handleHistoryDays(w http.ResponseWriter, r *http.Request) {
	obs := s.activeHistory(w)
	if obs == nil {
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"days": obs.Days()})
}

// handleHistoryBatches handles GET /api/v1/history/batches
func (s *Server) handleHistoryBatches(w http.ResponseWriter, r *http.Request) {
	obs := s.activeHistory(w)
	if obs == nil {
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"batches": obs.Batches()})
}

// handleHistoryAudience handles GET /api/v1/history/audience. The
// recipient list is joined in so people never dispatched to still
// appear as pending.
func (s *Server) handleHistoryAudience(w http.ResponseWriter, r *http.Request) {
	obs := s.activeHistory(w)
	if obs == nil {
		return
	}
	var people []recipient.Recipient
	if reg := s.deps.Recipients(); reg != nil {
		people = reg.List()
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"audience": obs.Audience(people)})
}

// handleHistoryStats handles GET /api/v1/history/stats
func (s *Server) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	obs := s.activeHistory(w)
	if obs == nil {
		return
	}
	s.sendJSON(w, http.StatusOK, obs.Stats())
}
