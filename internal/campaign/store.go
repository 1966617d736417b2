package campaign

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/foxzi/blastry/internal/apperr"
	"github.com/foxzi/blastry/internal/store"
)

// Store owns the project set for one user. It keeps an in-memory
// reduction of the remote records, applies mutations optimistically
// and persists them to the shared store. A failed remote write never
// rolls the local state back: the operator sees the attempted value
// and retries.
type Store struct {
	st     *store.Store
	uid    string
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	projects map[string]Project
	activeID string

	sub  *store.Subscription
	done chan struct{}
}

func NewStore(st *store.Store, uid string, logger *slog.Logger) *Store {
	return &Store{
		st:       st,
		uid:      uid,
		logger:   logger.With("component", "campaign"),
		now:      time.Now,
		projects: make(map[string]Project),
	}
}

// Start loads the project set, runs the legacy event id migration,
// seeds a default project when none exists and begins watching for
// remote updates.
func (s *Store) Start(ctx context.Context) error {
	records, err := s.st.List(ctx, store.ProjectsPrefix(s.uid))
	if err != nil {
		return err
	}

	now := s.now()
	s.mu.Lock()
	for _, rec := range records {
		var p Project
		if err := json.Unmarshal(rec.Data, &p); err != nil {
			s.logger.Warn("skipping undecodable project record", "path", rec.Path, "error", err)
			continue
		}
		if p.ID == "" {
			p.ID = store.LastSegment(rec.Path)
		}
		s.projects[p.ID] = sanitize(p, now)
	}
	s.mu.Unlock()

	if err := s.migrateLegacy(ctx); err != nil {
		s.logger.Warn("legacy event id migration incomplete", "error", err)
	}

	if len(s.Snapshot()) == 0 {
		if _, err := s.Create(ctx); err != nil {
			return err
		}
	} else {
		s.mu.Lock()
		if _, ok := s.projects[s.activeID]; !ok {
			s.activeID = s.firstLocked()
		}
		s.mu.Unlock()
	}

	sub, err := s.st.Watch(store.ProjectsPrefix(s.uid))
	if err != nil {
		return err
	}
	s.sub = sub
	s.done = make(chan struct{})
	go s.reduce()
	return nil
}

// Close tears down the remote subscription.
func (s *Store) Close() {
	if s.sub != nil {
		s.sub.Close()
		<-s.done
	}
}

func (s *Store) reduce() {
	defer close(s.done)
	for ev := range s.sub.Events() {
		switch ev.Type {
		case store.EventPut:
			var p Project
			if err := json.Unmarshal(ev.Data, &p); err != nil {
				s.logger.Warn("undecodable project update", "path", ev.Path, "error", err)
				continue
			}
			if p.ID == "" {
				p.ID = store.LastSegment(ev.Path)
			}
			s.mu.Lock()
			s.projects[p.ID] = sanitize(p, s.now())
			if s.activeID == "" {
				s.activeID = p.ID
			}
			s.mu.Unlock()
		case store.EventDelete:
			id := store.LastSegment(ev.Path)
			s.mu.Lock()
			delete(s.projects, id)
			if s.activeID == id {
				s.activeID = s.firstLocked()
			}
			s.mu.Unlock()
		}
	}
}

// migrateLegacy rewrites missing/empty/"default" event ids to equal
// the project id, locally and remotely. Idempotent.
func (s *Store) migrateLegacy(ctx context.Context) error {
	s.mu.Lock()
	var fix []Project
	for id, p := range s.projects {
		if needsEventIDMigration(p) {
			p.EventID = p.ID
			p.UpdatedAt = s.now().UnixMilli()
			s.projects[id] = p
			fix = append(fix, p)
		}
	}
	s.mu.Unlock()

	var firstErr error
	for _, p := range fix {
		err := s.st.Patch(ctx, store.ProjectPath(s.uid, p.ID), map[string]any{
			"eventId":   p.EventID,
			"updatedAt": p.UpdatedAt,
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
		s.logger.Info("migrated legacy event id", "project", p.ID)
	}
	return firstErr
}

// Create makes a new project, persists it and activates it.
func (s *Store) Create(ctx context.Context) (Project, error) {
	s.mu.Lock()
	p := NewProject(len(s.projects)+1, s.now())
	s.projects[p.ID] = p
	s.activeID = p.ID
	s.mu.Unlock()

	if err := s.st.Put(ctx, store.ProjectPath(s.uid, p.ID), p); err != nil {
		// Local optimistic state is retained.
		return p, apperr.Wrap(apperr.KindOf(err), "failed to persist project", err)
	}
	return p, nil
}

// Patch merges fields into the project locally, then persists the
// same patch plus updatedAt. The local value is kept on remote
// failure.
func (s *Store) Patch(ctx context.Context, id string, fields map[string]any) error {
	// Identity is assigned at creation; a patch must never rewrite it
	// or the event id could regress to "default".
	delete(fields, "id")
	delete(fields, "eventId")

	s.mu.Lock()
	p, ok := s.projects[id]
	if !ok {
		s.mu.Unlock()
		return apperr.Newf(apperr.KindNotFound, "project %s not found", id)
	}
	updatedAt := s.now().UnixMilli()
	fields["updatedAt"] = updatedAt
	p = applyFields(p, fields)
	s.projects[id] = p
	s.mu.Unlock()

	if err := s.st.Patch(ctx, store.ProjectPath(s.uid, id), fields); err != nil {
		return apperr.Wrap(apperr.KindOf(err), "failed to persist project patch", err)
	}
	return nil
}

// SetSchedule validates and applies a schedule change. Times more
// than five seconds in the past are rejected.
func (s *Store) SetSchedule(ctx context.Context, id, mode, iso string) error {
	if mode == ModeNow {
		return s.Patch(ctx, id, map[string]any{"sendMode": ModeNow})
	}
	if mode != ModeSchedule {
		return apperr.Newf(apperr.KindInvalidInput, "unknown send mode %q", mode)
	}

	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return apperr.New(apperr.KindInvalidInput, "invalid schedule timestamp")
	}
	if t.Before(s.now().Add(-5 * time.Second)) {
		return apperr.New(apperr.KindInvalidInput, "scheduled time is already past")
	}

	return s.Patch(ctx, id, map[string]any{
		"sendMode":    ModeSchedule,
		"scheduleISO": t.UTC().Format(time.RFC3339),
		"scheduleMs":  t.UnixMilli(),
	})
}

// Delete removes a project. The last remaining project cannot be
// deleted. If the active project is removed, activation falls to the
// first remaining project.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.projects[id]; !ok {
		s.mu.Unlock()
		return apperr.Newf(apperr.KindNotFound, "project %s not found", id)
	}
	if len(s.projects) <= 1 {
		s.mu.Unlock()
		return apperr.New(apperr.KindInvariantViolation, "at least one project must remain")
	}
	delete(s.projects, id)
	if s.activeID == id {
		s.activeID = s.firstLocked()
	}
	s.mu.Unlock()

	if err := s.st.Delete(ctx, store.ProjectPath(s.uid, id)); err != nil {
		return apperr.Wrap(apperr.KindOf(err), "failed to delete project remotely", err)
	}
	return nil
}

// SetActive selects the active project.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return apperr.Newf(apperr.KindNotFound, "project %s not found", id)
	}
	s.activeID = id
	return nil
}

// Active returns the currently selected project.
func (s *Store) Active() (Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[s.activeID]
	return p, ok
}

// Get returns a project by id.
func (s *Store) Get(id string) (Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	return p, ok
}

// Snapshot returns all projects ordered by most recently updated.
func (s *Store) Snapshot() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt > out[j].UpdatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// firstLocked returns the id of the first project in snapshot order.
// Caller holds s.mu.
func (s *Store) firstLocked() string {
	best := ""
	var bestAt int64 = -1
	for id, p := range s.projects {
		if p.UpdatedAt > bestAt || (p.UpdatedAt == bestAt && id < best) {
			best = id
			bestAt = p.UpdatedAt
		}
	}
	return best
}

// applyFields mirrors a store-side JSON merge onto the typed struct.
func applyFields(p Project, fields map[string]any) Project {
	data, err := json.Marshal(p)
	if err != nil {
		return p
	}
	obj := make(map[string]any)
	if err := json.Unmarshal(data, &obj); err != nil {
		return p
	}
	for k, v := range fields {
		obj[k] = v
	}
	merged, err := json.Marshal(obj)
	if err != nil {
		return p
	}
	var out Project
	if err := json.Unmarshal(merged, &out); err != nil {
		return p
	}
	return out
}
