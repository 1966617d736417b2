package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/foxzi/blastry/internal/apperr"
	"github.com/foxzi/blastry/internal/phone"
	"github.com/foxzi/blastry/internal/store"
)

// Metrics receives command counters. Tests pass nil for the no-op.
type Metrics interface {
	CommandIssued(action string)
}

type noopMetrics struct{}

func (noopMetrics) CommandIssued(string) {}

// Defaults seed fresh agent records.
type Defaults struct {
	DailyLimit  int
	SendDelayMs int
}

// Registry mirrors the agent fleet under servers/ and issues
// lifecycle commands over serverCommands/.
type Registry struct {
	st      *store.Store
	logger  *slog.Logger
	metrics Metrics
	def     Defaults
	now     func() time.Time

	mu     sync.RWMutex
	agents map[string]Agent

	sub  *store.Subscription
	done chan struct{}
}

// Open loads the fleet and begins watching it.
func Open(ctx context.Context, st *store.Store, def Defaults, logger *slog.Logger, metrics Metrics) (*Registry, error) {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	r := &Registry{
		st:      st,
		logger:  logger.With("component", "agents"),
		metrics: metrics,
		def:     def,
		now:     time.Now,
		agents:  make(map[string]Agent),
	}

	records, err := st.List(ctx, store.AgentsPrefix())
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		var a Agent
		if err := json.Unmarshal(rec.Data, &a); err != nil {
			r.logger.Warn("skipping undecodable agent record", "path", rec.Path, "error", err)
			continue
		}
		id := store.LastSegment(rec.Path)
		a.ID = id
		r.agents[id] = a
	}

	sub, err := st.Watch(store.AgentsPrefix())
	if err != nil {
		return nil, err
	}
	r.sub = sub
	r.done = make(chan struct{})
	go r.reduce()
	return r, nil
}

// Close tears down the registry's subscription.
func (r *Registry) Close() {
	r.sub.Close()
	<-r.done
}

func (r *Registry) reduce() {
	defer close(r.done)
	for ev := range r.sub.Events() {
		id := store.LastSegment(ev.Path)
		switch ev.Type {
		case store.EventPut:
			var a Agent
			if err := json.Unmarshal(ev.Data, &a); err != nil {
				r.logger.Warn("undecodable agent update", "path", ev.Path, "error", err)
				continue
			}
			a.ID = id
			r.mu.Lock()
			r.agents[id] = a
			r.mu.Unlock()
		case store.EventDelete:
			r.mu.Lock()
			delete(r.agents, id)
			r.mu.Unlock()
		}
	}
}

// sanitizeName lowercases a requested agent name and collapses
// whitespace runs to underscores.
func sanitizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "_")
}

// allocateName finds the first free server{N} slot, falling back to a
// timestamp-derived name when all fifty are taken.
func (r *Registry) allocateName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for n := 1; n <= 50; n++ {
		id := fmt.Sprintf("server%d", n)
		if _, taken := r.agents[id]; !taken {
			return id
		}
	}
	return fmt.Sprintf("server%d", r.now().UnixMilli())
}

// Create reserves an agent record and issues its start command. The
// record path is claimed with a compare-and-set: racing on the same
// name surfaces as a conflict rather than a silent overwrite.
func (r *Registry) Create(ctx context.Context, desiredID string) (Agent, error) {
	id := sanitizeName(desiredID)
	if id == "" {
		id = r.allocateName()
	}

	now := r.now()
	nowISO := now.UTC().Format(time.RFC3339)
	a := Agent{
		ID:          id,
		Enabled:     true,
		DailyLimit:  r.def.DailyLimit,
		Date:        phone.DayKey(now),
		Count:       0,
		Status:      StatusBooting,
		State:       PhaseWaitingQR,
		SendDelayMs: r.def.SendDelayMs,
		CreatedAt:   nowISO,
		UpdatedAt:   now.UnixMilli(),
		LastSeen:    nowISO,
	}
	if err := r.st.Create(ctx, store.AgentPath(id), a); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return Agent{}, apperr.Newf(apperr.KindConflict, "agent name %q is taken", id)
		}
		return Agent{}, err
	}

	r.mu.Lock()
	r.agents[id] = a
	r.mu.Unlock()

	if err := r.issueCommand(ctx, id, Command{Action: ActionStart}); err != nil {
		r.logger.Error("start command failed", "agent", id, "error", err)
		return a, err
	}
	r.logger.Info("agent created", "agent", id)
	return a, nil
}

// ToggleEnabled flips the desired-state flag. The status written
// alongside is a client-side guess the agent's next report may
// overwrite.
func (r *Registry) ToggleEnabled(ctx context.Context, id string) (Agent, error) {
	a, err := r.Get(id)
	if err != nil {
		return Agent{}, err
	}
	a.Enabled = !a.Enabled
	if a.Enabled {
		a.Status = StatusOnline
	} else {
		a.Status = StatusDisabled
	}
	a.UpdatedAt = r.now().UnixMilli()
	err = r.patch(ctx, a, map[string]any{
		"enabled":   a.Enabled,
		"status":    a.Status,
		"updatedAt": a.UpdatedAt,
	})
	return a, err
}

// ResetDailyCount zeroes today's counter.
func (r *Registry) ResetDailyCount(ctx context.Context, id string) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	a.Date = phone.Today()
	a.Count = 0
	a.UpdatedAt = r.now().UnixMilli()
	return r.patch(ctx, a, map[string]any{
		"date":      a.Date,
		"count":     0,
		"updatedAt": a.UpdatedAt,
	})
}

// SetSendDelay updates the inter-message delay. Any positive value is
// accepted.
func (r *Registry) SetSendDelay(ctx context.Context, id string, ms int) error {
	if ms <= 0 {
		return apperr.New(apperr.KindInvalidInput, "send delay must be a positive number of milliseconds")
	}
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	a.SendDelayMs = ms
	a.UpdatedAt = r.now().UnixMilli()
	return r.patch(ctx, a, map[string]any{
		"sendDelayMs": ms,
		"updatedAt":   a.UpdatedAt,
	})
}

// Delete marks the record as tearing down and tells the agent to log
// out and clean up. The record stays visible until the agent removes
// it.
func (r *Registry) Delete(ctx context.Context, id string) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	a.Enabled = false
	a.Status = StatusDeleting
	a.State = "logout_and_cleanup"
	a.UpdatedAt = r.now().UnixMilli()
	if err := r.patch(ctx, a, map[string]any{
		"enabled":   false,
		"status":    StatusDeleting,
		"state":     "logout_and_cleanup",
		"updatedAt": a.UpdatedAt,
	}); err != nil {
		return err
	}
	return r.issueCommand(ctx, id, Command{
		Action:       ActionDelete,
		Logout:       true,
		PurgeSession: true,
		KillBrowser:  true,
	})
}

// ReviveAll issues ensure_running to every enabled agent. Individual
// failures are collected and do not stop the sweep.
func (r *Registry) ReviveAll(ctx context.Context) (int, error) {
	r.mu.RLock()
	var ids []string
	for id, a := range r.agents {
		if a.Enabled {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()
	sort.Strings(ids)

	var (
		revived int
		errs    []error
	)
	for _, id := range ids {
		if err := r.issueCommand(ctx, id, Command{Action: ActionEnsureRunning}); err != nil {
			r.logger.Error("revive failed, continuing", "agent", id, "error", err)
			errs = append(errs, fmt.Errorf("agent %s: %w", id, err))
			continue
		}
		revived++
	}
	return revived, errors.Join(errs...)
}

func (r *Registry) issueCommand(ctx context.Context, id string, cmd Command) error {
	cmd.By = "ui"
	cmd.RequestedAt = r.now().UnixMilli()
	if err := r.st.Put(ctx, store.CommandPath(id), cmd); err != nil {
		return err
	}
	r.metrics.CommandIssued(cmd.Action)
	r.logger.Info("command issued", "agent", id, "action", cmd.Action)
	return nil
}

// patch writes fields remotely and keeps the optimistic local copy
// either way; a failed write is reported, not rolled back.
func (r *Registry) patch(ctx context.Context, a Agent, fields map[string]any) error {
	r.mu.Lock()
	r.agents[a.ID] = a
	r.mu.Unlock()
	return r.st.Patch(ctx, store.AgentPath(a.ID), fields)
}

// Get returns one agent by id.
func (r *Registry) Get(id string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return Agent{}, apperr.Newf(apperr.KindNotFound, "agent %q not found", id)
	}
	return a, nil
}

// Len reports the fleet size.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
