package recipient

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/foxzi/blastry/internal/apperr"
	"github.com/foxzi/blastry/internal/phone"
	"github.com/foxzi/blastry/internal/store"
)

// Recipient sources. Bulk imports keep the historic "excel" tag on
// the wire regardless of the upload format.
const (
	SourceManual = "manual"
	SourceImport = "excel"
)

// Recipient is one person on a project's list. Phone is stored in
// canonical international form.
type Recipient struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt,omitempty"`
	Source    string `json:"source"`
}

// Row is one imported name/phone pair before normalization.
type Row struct {
	Name  string
	Phone string
}

// Registry owns the recipient list for one event id. Display order
// is locale-aware lexicographic by name, recomputed on every change.
type Registry struct {
	st      *store.Store
	uid     string
	eventID string
	logger  *slog.Logger
	norm    phone.Normalizer
	coll    *collate.Collator
	now     func() time.Time

	mu     sync.RWMutex
	people map[string]Recipient

	sub  *store.Subscription
	done chan struct{}
}

// Open loads the recipient list for an event and begins watching it.
func Open(ctx context.Context, st *store.Store, uid, eventID string, norm phone.Normalizer, lang language.Tag, logger *slog.Logger) (*Registry, error) {
	r := &Registry{
		st:      st,
		uid:     uid,
		eventID: eventID,
		logger:  logger.With("component", "recipients", "event_id", eventID),
		norm:    norm,
		coll:    collate.New(lang),
		now:     time.Now,
		people:  make(map[string]Recipient),
	}

	records, err := st.List(ctx, store.PeoplePrefix(uid, eventID))
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		var p Recipient
		if err := json.Unmarshal(rec.Data, &p); err != nil {
			r.logger.Warn("skipping undecodable recipient", "path", rec.Path, "error", err)
			continue
		}
		if p.ID == "" {
			p.ID = store.LastSegment(rec.Path)
		}
		r.people[p.ID] = p
	}

	sub, err := st.Watch(store.PeoplePrefix(uid, eventID))
	if err != nil {
		return nil, err
	}
	r.sub = sub
	r.done = make(chan struct{})
	go r.reduce()
	return r, nil
}

// Close tears down the registry's subscription. Called when the
// owning scope (the selected project) changes.
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
			var p Recipient
			if err := json.Unmarshal(ev.Data, &p); err != nil {
				r.logger.Warn("undecodable recipient update", "path", ev.Path, "error", err)
				continue
			}
			if p.ID == "" {
				p.ID = id
			}
			r.mu.Lock()
			r.people[id] = p
			r.mu.Unlock()
		case store.EventDelete:
			r.mu.Lock()
			delete(r.people, id)
			r.mu.Unlock()
		}
	}
}

// EventID returns the event id this registry is scoped to.
func (r *Registry) EventID() string { return r.eventID }

// AddManual adds one recipient. Manual adds do not dedupe against
// existing phones.
func (r *Registry) AddManual(ctx context.Context, name, rawPhone string) (Recipient, error) {
	name = strings.TrimSpace(name)
	normalized := r.norm.Normalize(rawPhone)
	if name == "" || normalized == "" {
		return Recipient{}, apperr.New(apperr.KindInvalidInput, "name or phone missing")
	}

	p := Recipient{
		ID:        uuid.NewString(),
		Name:      name,
		Phone:     normalized,
		CreatedAt: r.now().UTC().Format(time.RFC3339),
		Source:    SourceManual,
	}
	if err := r.st.Put(ctx, store.PersonPath(r.uid, r.eventID, p.ID), p); err != nil {
		return Recipient{}, apperr.Wrap(apperr.KindOf(err), "failed to add recipient", err)
	}

	r.mu.Lock()
	r.people[p.ID] = p
	r.mu.Unlock()
	return p, nil
}

// BulkImport adds rows, skipping empties and phones already present.
// The dedupe set is updated as rows land, so duplicates within the
// batch are also skipped. Import is not transactional: a failed row
// is logged and skipped, rows already written stay.
func (r *Registry) BulkImport(ctx context.Context, rows []Row) (added int, err error) {
	seen := make(map[string]bool)
	r.mu.RLock()
	for _, p := range r.people {
		seen[r.norm.Normalize(p.Phone)] = true
	}
	r.mu.RUnlock()

	var firstErr error
	for _, row := range rows {
		name := strings.TrimSpace(row.Name)
		normalized := r.norm.Normalize(row.Phone)
		if name == "" || normalized == "" {
			continue
		}
		if seen[normalized] {
			continue
		}

		now := r.now().UTC().Format(time.RFC3339)
		p := Recipient{
			ID:        uuid.NewString(),
			Name:      name,
			Phone:     normalized,
			CreatedAt: now,
			UpdatedAt: now,
			Source:    SourceImport,
		}
		if err := r.st.Put(ctx, store.PersonPath(r.uid, r.eventID, p.ID), p); err != nil {
			r.logger.Warn("import row failed, continuing", "name", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		r.mu.Lock()
		r.people[p.ID] = p
		r.mu.Unlock()
		seen[normalized] = true
		added++
	}
	return added, firstErr
}

// Remove deletes a recipient.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if err := r.st.Delete(ctx, store.PersonPath(r.uid, r.eventID, id)); err != nil {
		return apperr.Wrap(apperr.KindOf(err), "failed to remove recipient", err)
	}
	r.mu.Lock()
	delete(r.people, id)
	r.mu.Unlock()
	return nil
}

// List returns the recipients in display order.
func (r *Registry) List() []Recipient {
	r.mu.RLock()
	out := make([]Recipient, 0, len(r.people))
	for _, p := range r.people {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if c := r.coll.CompareString(out[i].Name, out[j].Name); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len reports the number of recipients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.people)
}
