package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/blastry/internal/campaign"
	"github.com/foxzi/blastry/internal/store"
)

// ProjectsResponse is the response for GET /projects
type ProjectsResponse struct {
	Projects []campaign.Project `json:"projects"`
	ActiveID string             `json:"activeId,omitempty"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Projects int    `json:"projects"`
	Agents   int    `json:"agents"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Version:  s.deps.Version,
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		Projects: len(s.deps.Projects.Snapshot()),
		Agents:   s.deps.Agents.Len(),
	})
}

// handleListProjects handles GET /api/v1/projects
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	resp := ProjectsResponse{Projects: s.deps.Projects.Snapshot()}
	if active, ok := s.deps.Projects.Active(); ok {
		resp.ActiveID = active.ID
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleCreateProject handles POST /api/v1/projects
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Projects.Create(r.Context())
	if err != nil {
		s.logger.Error("failed to create project", "error", err)
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, p)
}

// handlePatchProject handles PATCH /api/v1/projects/{id}
func (s *Server) handlePatchProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(fields) == 0 {
		s.sendError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	if err := s.deps.Projects.Patch(r.Context(), id, fields); err != nil {
		s.sendAppError(w, err)
		return
	}
	p, _ := s.deps.Projects.Get(id)
	s.sendJSON(w, http.StatusOK, p)
}

// handleDeleteProject handles DELETE /api/v1/projects/{id}
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Projects.Delete(r.Context(), id); err != nil {
		s.sendAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleActivateProject handles POST /api/v1/projects/{id}/activate
func (s *Server) handleActivateProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Projects.SetActive(id); err != nil {
		s.sendAppError(w, err)
		return
	}
	p, _ := s.deps.Projects.Get(id)
	s.sendJSON(w, http.StatusOK, p)
}

// ScheduleRequest is the request body for POST /projects/{id}/schedule
type ScheduleRequest struct {
	Mode        string `json:"mode"`
	ScheduleISO string `json:"scheduleISO,omitempty"`
}

// handleScheduleProject handles POST /api/v1/projects/{id}/schedule
func (s *Server) handleScheduleProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.deps.Projects.SetSchedule(r.Context(), id, req.Mode, req.ScheduleISO); err != nil {
		s.sendAppError(w, err)
		return
	}
	p, _ := s.deps.Projects.Get(id)
	s.sendJSON(w, http.StatusOK, p)
}

// SaveTemplateRequest is the request body for POST /templates
type SaveTemplateRequest struct {
	ProjectID string `json:"projectId,omitempty"`
	Name      string `json:"name"`
}

// handleListTemplates handles GET /api/v1/templates
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	tpls, err := s.deps.Projects.Templates(r.Context())
	if err != nil {
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"templates": tpls})
}

// handleSaveTemplate handles POST /api/v1/templates. The template
// content is the named project's current message; the active project
// is the default source.
func (s *Server) handleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	var req SaveTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	projectID := req.ProjectID
	if projectID == "" {
		active, ok := s.deps.Projects.Active()
		if !ok {
			s.sendError(w, http.StatusNotFound, "no active project")
			return
		}
		projectID = active.ID
	}

	tpl, err := s.deps.Projects.SaveTemplate(r.Context(), projectID, req.Name)
	if err != nil {
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, tpl)
}

// handlePickTemplate handles POST /api/v1/templates/{id}/pick
func (s *Server) handlePickTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		ProjectID string `json:"projectId,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	projectID := req.ProjectID
	if projectID == "" {
		active, ok := s.deps.Projects.Active()
		if !ok {
			s.sendError(w, http.StatusNotFound, "no active project")
			return
		}
		projectID = active.ID
	}

	if err := s.deps.Projects.PickTemplate(r.Context(), projectID, id); err != nil {
		s.sendAppError(w, err)
		return
	}
	p, _ := s.deps.Projects.Get(projectID)
	s.sendJSON(w, http.StatusOK, p)
}

// handleDeleteTemplate handles DELETE /api/v1/templates/{id}
func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Projects.DeleteTemplate(r.Context(), id); err != nil {
		s.sendAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetTheme handles GET /api/v1/theme
func (s *Server) handleGetTheme(w http.ResponseWriter, r *http.Request) {
	var theme string
	ok, err := s.deps.Store.Get(r.Context(), store.ThemeModePath(), &theme)
	if err != nil {
		s.sendAppError(w, err)
		return
	}
	if !ok {
		theme = "light"
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"themeMode": theme})
}

// handleSetTheme handles PUT /api/v1/theme
func (s *Server) handleSetTheme(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ThemeMode string `json:"themeMode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ThemeMode != "light" && req.ThemeMode != "dark" {
		s.sendError(w, http.StatusBadRequest, "themeMode must be light or dark")
		return
	}
	if err := s.deps.Store.Put(r.Context(), store.ThemeModePath(), req.ThemeMode); err != nil {
		s.sendAppError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"themeMode": req.ThemeMode})
}
