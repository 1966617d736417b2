package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/blastry/internal/agent"
	"github.com/foxzi/blastry/internal/campaign"
	"github.com/foxzi/blastry/internal/config"
	"github.com/foxzi/blastry/internal/dispatch"
	"github.com/foxzi/blastry/internal/history"
	"github.com/foxzi/blastry/internal/metrics"
	"github.com/foxzi/blastry/internal/recipient"
	"github.com/foxzi/blastry/internal/store"
)

// Deps are the components the API exposes. Recipients and History
// follow the active project, so they are resolved per request.
type Deps struct {
	Store      *store.Store
	Projects   *campaign.Store
	Agents     *agent.Registry
	Dispatcher *dispatch.Dispatcher
	Recipients func() *recipient.Registry
	History    func() *history.Observer
	Metrics    *metrics.Metrics
	Version    string
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	deps       Deps
	config     *config.APIConfig
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(deps Deps, cfg *config.APIConfig, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		deps:      deps,
		config:    cfg,
		logger:    logger,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	if s.deps.Metrics != nil {
		s.router.Use(s.deps.Metrics.HTTPMiddleware)
	}

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/projects", s.handleListProjects)
		r.Post("/projects", s.handleCreateProject)
		r.Patch("/projects/{id}", s.handlePatchProject)
		r.Delete("/projects/{id}", s.handleDeleteProject)
		r.Post("/projects/{id}/activate", s.handleActivateProject)
		r.Post("/projects/{id}/schedule", s.handleScheduleProject)

		r.Get("/templates", s.handleListTemplates)
		r.Post("/templates", s.handleSaveTemplate)
		r.Post("/templates/{id}/pick", s.handlePickTemplate)
		r.Delete("/templates/{id}", s.handleDeleteTemplate)

		r.Get("/recipients", s.handleListRecipients)
		r.Post("/recipients", s.handleAddRecipient)
		r.Post("/recipients/import", s.handleImportRecipients)
		r.Get("/recipients/template.csv", s.handleRecipientTemplate)
		r.Delete("/recipients/{id}", s.handleRemoveRecipient)

		r.Post("/send", s.handleSend)

		r.Get("/history/days", s.handleHistoryDays)
		r.Get("/history/batches", s.handleHistoryBatches)
		r.Get("/history/audience", s.handleHistoryAudience)
		r.Get("/history/stats", s.handleHistoryStats)

		r.Get("/agents", s.handleListAgents)
		r.Post("/agents", s.handleCreateAgent)
		r.Get("/agents/stats", s.handleAgentStats)
		r.Post("/agents/revive", s.handleReviveAgents)
		r.Get("/agents/{id}/qr.png", s.handleAgentQR)
		r.Post("/agents/{id}/toggle", s.handleToggleAgent)
		r.Post("/agents/{id}/reset-count", s.handleResetAgentCount)
		r.Post("/agents/{id}/delay", s.handleSetAgentDelay)
		r.Delete("/agents/{id}", s.handleDeleteAgent)

		r.Get("/theme", s.handleGetTheme)
		r.Put("/theme", s.handleSetTheme)
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
