package store

import (
	"context"
	"strings"
	"sync"
)

// EventType distinguishes puts from deletes.
type EventType int

const (
	EventPut EventType = iota
	EventDelete
)

// Event is a single observed change under a watched prefix.
type Event struct {
	Type EventType
	Path string
	Data []byte
}

// Subscription delivers events for one watched prefix. Delivery is
// per-path monotonic: a later write to a path is never observed
// before an earlier one. Cross-path interleaving is unspecified.
type Subscription struct {
	store  *Store
	id     int64
	prefix string

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool

	events  chan Event
	closing chan struct{}
	done    chan struct{}
}

// Events is the channel the subscription delivers on. It is closed
// after Close.
func (sub *Subscription) Events() <-chan Event {
	return sub.events
}

// Close tears the subscription down. Pending events are dropped and
// the events channel is closed. Safe to call more than once.
func (sub *Subscription) Close() {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.closed = true
	sub.cond.Broadcast()
	sub.mu.Unlock()

	close(sub.closing)
	sub.store.unsubscribe(sub.id)
	<-sub.done
}

func (sub *Subscription) enqueue(ev Event) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	sub.queue = append(sub.queue, ev)
	sub.cond.Signal()
}

// pump moves queued events onto the delivery channel. The queue is
// unbounded so writers never block on slow consumers.
func (sub *Subscription) pump() {
	defer close(sub.done)
	defer close(sub.events)

	for {
		sub.mu.Lock()
		for len(sub.queue) == 0 && !sub.closed {
			sub.cond.Wait()
		}
		if sub.closed {
			sub.mu.Unlock()
			return
		}
		ev := sub.queue[0]
		sub.queue = sub.queue[1:]
		sub.mu.Unlock()

		select {
		case sub.events <- ev:
		case <-sub.closing:
			return
		}
	}
}

// Watch subscribes to every record under prefix. Existing records are
// delivered first as put events, then live changes as they commit.
func (s *Store) Watch(prefix string) (*Subscription, error) {
	sub := &Subscription{
		store:   s,
		prefix:  prefix,
		events:  make(chan Event, 64),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	sub.cond = sync.NewCond(&sub.mu)

	// Registration and snapshot happen under the write lock so the
	// snapshot cannot miss or duplicate a concurrent write.
	s.mu.Lock()
	snapshot, err := s.List(context.Background(), prefix)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	for _, rec := range snapshot {
		sub.queue = append(sub.queue, Event{Type: EventPut, Path: rec.Path, Data: rec.Data})
	}
	s.nextID++
	sub.id = s.nextID
	s.subs[sub.id] = sub
	s.mu.Unlock()

	go sub.pump()
	return sub, nil
}

func (s *Store) unsubscribe(id int64) {
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}

// notifyLocked fans an event out to matching subscriptions. Caller
// holds s.mu, so enqueue order equals commit order.
func (s *Store) notifyLocked(ev Event) {
	for _, sub := range s.subs {
		if strings.HasPrefix(ev.Path, sub.prefix) {
			sub.enqueue(ev)
		}
	}
}

// SubscriptionCount reports the number of live subscriptions.
func (s *Store) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
