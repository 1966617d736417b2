package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxzi/blastry/internal/agent"
	"github.com/foxzi/blastry/internal/api"
	"github.com/foxzi/blastry/internal/campaign"
	"github.com/foxzi/blastry/internal/config"
	"github.com/foxzi/blastry/internal/dispatch"
	"github.com/foxzi/blastry/internal/history"
	"github.com/foxzi/blastry/internal/metrics"
	"github.com/foxzi/blastry/internal/phone"
	"github.com/foxzi/blastry/internal/recipient"
	"github.com/foxzi/blastry/internal/store"
)

// App is the main application
type App struct {
	config        *config.Config
	logger        *slog.Logger
	store         *store.Store
	metrics       *metrics.Metrics
	metricsServer *metrics.Server
	collector     *metrics.Collector
	projects      *campaign.Store
	agents        *agent.Registry
	dispatcher    *dispatch.Dispatcher
	scopes        *scopeSet
	apiServer     *api.Server
	version       string
}

// New creates a new application
func New(cfg *config.Config, version string) (*App, error) {
	logger := setupLogger(cfg.Logging)

	st, err := store.Open(cfg.Storage.Path, logger.With("component", "store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		st.Instrument(m)
		logger.Info("metrics enabled", "addr", cfg.Metrics.ListenAddr)
	}

	uid := cfg.Identity.UID
	projects := campaign.NewStore(st, uid, logger.With("component", "projects"))
	if err := projects.Start(context.Background()); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to start project store: %w", err)
	}

	agents, err := agent.Open(context.Background(), st, agent.Defaults{
		DailyLimit:  cfg.Agents.DailyLimit,
		SendDelayMs: cfg.Agents.SendDelayMs,
	}, logger.With("component", "agents"), agentMetrics(m))
	if err != nil {
		projects.Close()
		st.Close()
		return nil, fmt.Errorf("failed to open agent registry: %w", err)
	}

	norm := phone.Normalizer{
		CountryPrefix: cfg.Phone.CountryPrefix,
		MobilePrefix:  cfg.Phone.MobilePrefix,
	}
	scopes := newScopeSet(st, uid, norm, cfg.LanguageTag(), logger)
	dispatcher := dispatch.New(st, projects, uid, logger.With("component", "dispatch"), dispatchMetrics(m))

	a := &App{
		config:     cfg,
		logger:     logger,
		store:      st,
		metrics:    m,
		projects:   projects,
		agents:     agents,
		dispatcher: dispatcher,
		scopes:     scopes,
		version:    version,
	}

	a.apiServer = api.NewServer(api.Deps{
		Store:      st,
		Projects:   projects,
		Agents:     agents,
		Dispatcher: dispatcher,
		Recipients: a.activeRecipients,
		History:    a.activeHistory,
		Metrics:    m,
		Version:    version,
	}, &cfg.API, logger.With("component", "api"))

	if m != nil {
		a.metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, cfg.Metrics.AllowedIPs, logger.With("component", "metrics"))
		a.collector = metrics.NewCollector(m, metrics.Providers{
			Projects:      func() int { return len(projects.Snapshot()) },
			Subscriptions: st.SubscriptionCount,
			Fleet:         a.fleetStats,
		}, cfg.Storage.Path, cfg.Metrics.FlushInterval)
	}

	return a, nil
}

// activeRecipients resolves the recipient registry for the active
// project, nil when no project is active or the scope failed to open.
func (a *App) activeRecipients() *recipient.Registry {
	p, ok := a.projects.Active()
	if !ok {
		return nil
	}
	return a.scopes.Recipients(p.EventID)
}

func (a *App) activeHistory() *history.Observer {
	p, ok := a.projects.Active()
	if !ok {
		return nil
	}
	return a.scopes.History(p.EventID)
}

func (a *App) fleetStats() metrics.FleetStats {
	byStatus := make(map[string]int)
	for _, ag := range a.agents.List("", agent.FilterAll) {
		byStatus[ag.Status]++
	}
	return metrics.FleetStats{ByStatus: byStatus}
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting blastry",
		"version", a.version,
		"api_addr", a.config.API.ListenAddr,
		"uid", a.config.Identity.UID,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.collector != nil {
		a.collector.Start()
	}

	errCh := make(chan error, 2)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}
	if a.collector != nil {
		a.collector.Stop()
	}

	a.scopes.Close()
	a.agents.Close()
	a.projects.Close()

	if err := a.store.Close(); err != nil {
		a.logger.Error("store close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// agentMetrics adapts the optional metrics handle for the agent
// registry. A typed nil would defeat the registry's nil check.
func agentMetrics(m *metrics.Metrics) agent.Metrics {
	if m == nil {
		return nil
	}
	return m
}

func dispatchMetrics(m *metrics.Metrics) dispatch.Metrics {
	if m == nil {
		return nil
	}
	return m
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
