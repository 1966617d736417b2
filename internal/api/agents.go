package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"

	"github.com/foxzi/blastry/internal/phone"
)

// AgentView decorates an agent record with derived display fields.
type AgentView struct {
	ID          string `json:"id"`
	Enabled     bool   `json:"enabled"`
	Status      string `json:"status"`
	State       string `json:"state,omitempty"`
	Phase       string `json:"phase"`
	DailyLimit  int    `json:"dailyLimit"`
	SentToday   int    `json:"sentToday"`
	SendDelayMs int    `json:"sendDelayMs"`
	LastSeen    string `json:"lastSeen,omitempty"`
	UptimeBase  int64  `json:"uptimeBase,omitempty"`
	HasQR       bool   `json:"hasQr"`
}

// CreateAgentRequest is the request body for POST /agents
type CreateAgentRequest struct {
	ID string `json:"id,omitempty"`
}

// handleListAgents handles GET /api/v1/agents
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	filter := r.URL.Query().Get("filter")

	today := phone.Today()
	agents := s.deps.Agents.List(query, filter)
	views := make([]AgentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, AgentView{
			ID:          a.ID,
			Enabled:     a.Enabled,
			Status:      a.Status,
			State:       a.State,
			Phase:       a.Phase(),
			DailyLimit:  a.DailyLimit,
			SentToday:   a.SentToday(today),
			SendDelayMs: a.SendDelayMs,
			LastSeen:    a.LastSeen,
			UptimeBase:  a.UptimeBase(),
			HasQR:       a.QRPayload() != "",
		})
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"agents": views})
}

// handleCreateAgent handles POST /api/v1/agents
func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	a, err := s.deps.Agents.Create(r.Context(), req.ID)
	if err != nil {
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, a)
}

// handleAgentStats handles GET /api/v1/agents/stats
func (s *Server) handleAgentStats(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.deps.Agents.Stats())
}

// handleReviveAgents handles POST /api/v1/agents/revive
func (s *Server) handleReviveAgents(w http.ResponseWriter, r *http.Request) {
	revived, err := s.deps.Agents.ReviveAll(r.Context())
	resp := map[string]any{"revived": revived}
	if err != nil {
		resp["warning"] = err.Error()
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleAgentQR handles GET /api/v1/agents/{id}/qr.png, rendering the
// agent's reported pairing payload as a PNG.
func (s *Server) handleAgentQR(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Agents.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.sendAppError(w, err)
		return
	}

	payload := a.QRPayload()
	if payload == "" {
		s.sendError(w, http.StatusNotFound, "agent has no pending QR code")
		return
	}

	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		s.logger.Error("failed to render QR code", "agent", a.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to render QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

// handleToggleAgent handles POST /api/v1/agents/{id}/toggle
func (s *Server) handleToggleAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Agents.ToggleEnabled(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, a)
}

// handleResetAgentCount handles POST /api/v1/agents/{id}/reset-count
func (s *Server) handleResetAgentCount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Agents.ResetDailyCount(r.Context(), id); err != nil {
		s.sendAppError(w, err)
		return
	}
	a, _ := s.deps.Agents.Get(id)
	s.sendJSON(w, http.StatusOK, a)
}

// SetDelayRequest is the request body for POST /agents/{id}/delay
type SetDelayRequest struct {
	SendDelayMs int `json:"sendDelayMs"`
}

// handleSetAgentDelay handles POST /api/v1/agents/{id}/delay
func (s *Server) handleSetAgentDelay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req SetDelayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.deps.Agents.SetSendDelay(r.Context(), id, req.SendDelayMs); err != nil {
		s.sendAppError(w, err)
		return
	}
	a, _ := s.deps.Agents.Get(id)
	s.sendJSON(w, http.StatusOK, a)
}

// handleDeleteAgent handles DELETE /api/v1/agents/{id}
func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Agents.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.sendAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
