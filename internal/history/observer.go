package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/foxzi/blastry/internal/dispatch"
	"github.com/foxzi/blastry/internal/store"
)

// Observer mirrors the job records of one event id and serves
// read-only projections over them: day buckets, batch aggregates and
// per-recipient latest status. It never writes jobs back.
type Observer struct {
	st      *store.Store
	uid     string
	eventID string
	logger  *slog.Logger

	mu    sync.RWMutex
	jobs  map[string]dispatch.Job
	order map[string]int
	next  int

	sub  *store.Subscription
	done chan struct{}
}

// Open loads the job history for an event and begins watching it.
func Open(ctx context.Context, st *store.Store, uid, eventID string, logger *slog.Logger) (*Observer, error) {
	o := &Observer{
		st:      st,
		uid:     uid,
		eventID: eventID,
		logger:  logger.With("component", "history", "event_id", eventID),
		jobs:    make(map[string]dispatch.Job),
		order:   make(map[string]int),
	}

	records, err := st.List(ctx, store.JobsPrefix(uid, eventID))
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		o.apply(store.LastSegment(rec.Path), rec.Data)
	}

	sub, err := st.Watch(store.JobsPrefix(uid, eventID))
	if err != nil {
		return nil, err
	}
	o.sub = sub
	o.done = make(chan struct{})
	go o.reduce()
	return o, nil
}

// Close tears down the observer's subscription.
func (o *Observer) Close() {
	o.sub.Close()
	<-o.done
}

func (o *Observer) reduce() {
	defer close(o.done)
	for ev := range o.sub.Events() {
		id := store.LastSegment(ev.Path)
		switch ev.Type {
		case store.EventPut:
			o.mu.Lock()
			o.apply(id, ev.Data)
			o.mu.Unlock()
		case store.EventDelete:
			o.mu.Lock()
			delete(o.jobs, id)
			o.mu.Unlock()
		}
	}
}

// apply decodes and stores one job record. First-seen order is kept
// so equal-timestamp projections stay stable. Callers hold the lock
// (or run before the watch starts).
func (o *Observer) apply(id string, data []byte) {
	var job dispatch.Job
	if err := json.Unmarshal(data, &job); err != nil {
		o.logger.Warn("undecodable job record", "jobId", id, "error", err)
		return
	}
	if job.ID == "" {
		job.ID = id
	}
	if _, ok := o.order[id]; !ok {
		o.order[id] = o.next
		o.next++
	}
	o.jobs[id] = job
}

// Len reports how many job records are currently mirrored.
func (o *Observer) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.jobs)
}

// snapshot returns the mirrored jobs in first-seen order.
func (o *Observer) snapshot() []dispatch.Job {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]dispatch.Job, 0, len(o.jobs))
	for id := range o.jobs {
		out = append(out, o.jobs[id])
	}
	sortByFirstSeen(out, o.order)
	return out
}
