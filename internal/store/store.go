package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/blastry/internal/apperr"
)

var bucketRecords = []byte("records")

// Store is a path-addressable shared data store backed by BoltDB.
// Records live under slash-separated paths and are JSON-encoded.
// Writes are last-write-wins per path; Create is the only
// compare-and-set primitive. Watch subscriptions observe puts and
// deletes under a prefix with per-path monotonic delivery.
type Store struct {
	db     *bolt.DB
	logger *slog.Logger
	obs    WriteObserver

	// mu serializes writes and subscription registration so that
	// event order matches commit order.
	mu     sync.Mutex
	subs   map[int64]*Subscription
	nextID int64
}

// Record is a raw stored record.
type Record struct {
	Path string
	Data []byte
}

// WriteObserver counts write outcomes. The metrics package implements
// it.
type WriteObserver interface {
	StoreWrite()
	StoreWriteFailed()
}

// Instrument attaches a write observer. Call before the store is
// shared between goroutines.
func (s *Store) Instrument(o WriteObserver) {
	s.obs = o
}

func (s *Store) observe(err error) {
	if s.obs == nil {
		return
	}
	if err != nil {
		s.obs.StoreWriteFailed()
		return
	}
	s.obs.StoreWrite()
}

// Open opens (creating if needed) a store at the given file path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create records bucket: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With("component", "store"),
		subs:   make(map[int64]*Subscription),
	}, nil
}

// Close closes the store and tears down all subscriptions.
func (s *Store) Close() error {
	s.mu.Lock()
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return s.db.Close()
}

// Put writes a record at path, replacing any previous value.
func (s *Store) Put(ctx context.Context, path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecords).Put([]byte(path), data)
	})
	s.observe(err)
	if err != nil {
		return apperr.Wrap(apperr.KindUnknown, "store write failed", err)
	}

	s.notifyLocked(Event{Type: EventPut, Path: path, Data: data})
	return nil
}

// Patch merges partial fields into the JSON object at path. Missing
// records fail with NotFound.
func (s *Store) Patch(ctx context.Context, path string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var merged []byte
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		cur := b.Get([]byte(path))
		if cur == nil {
			return apperr.Newf(apperr.KindNotFound, "no record at %s", path)
		}

		obj := make(map[string]any)
		if err := json.Unmarshal(cur, &obj); err != nil {
			return fmt.Errorf("failed to decode record at %s: %w", path, err)
		}
		for k, v := range fields {
			obj[k] = v
		}

		data, err := json.Marshal(obj)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		merged = data
		return b.Put([]byte(path), data)
	})
	s.observe(err)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindUnknown {
			return err
		}
		return apperr.Wrap(apperr.KindUnknown, "store patch failed", err)
	}

	s.notifyLocked(Event{Type: EventPut, Path: path, Data: merged})
	return nil
}

// Create writes a record only if the path is currently empty. A
// populated path aborts with Conflict and the existing record is left
// untouched. This is the store's single atomic primitive.
func (s *Store) Create(ctx context.Context, path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b.Get([]byte(path)) != nil {
			return apperr.Newf(apperr.KindConflict, "record already exists at %s", path)
		}
		return b.Put([]byte(path), data)
	})
	s.observe(err)
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return err
		}
		return apperr.Wrap(apperr.KindUnknown, "store create failed", err)
	}

	s.notifyLocked(Event{Type: EventPut, Path: path, Data: data})
	return nil
}

// Get reads the record at path into out. It reports whether the
// record exists.
func (s *Store) Get(ctx context.Context, path string, out any) (bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketRecords).Get([]byte(path)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return false, apperr.Wrap(apperr.KindUnknown, "store read failed", err)
	}
	if data == nil {
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return true, fmt.Errorf("failed to decode record at %s: %w", path, err)
		}
	}
	return true, nil
}

// Delete removes the record at path. Deleting a missing path is a
// no-op and emits no event.
func (s *Store) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b.Get([]byte(path)) == nil {
			return nil
		}
		existed = true
		return b.Delete([]byte(path))
	})
	s.observe(err)
	if err != nil {
		return apperr.Wrap(apperr.KindUnknown, "store delete failed", err)
	}

	if existed {
		s.notifyLocked(Event{Type: EventDelete, Path: path})
	}
	return nil
}

// List returns all records whose path starts with prefix, in path
// order.
func (s *Store) List(ctx context.Context, prefix string) ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRecords).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			records = append(records, Record{
				Path: string(k),
				Data: append([]byte(nil), v...),
			})
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnknown, "store list failed", err)
	}
	return records, nil
}

// Count returns the number of records under prefix.
func (s *Store) Count(ctx context.Context, prefix string) (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRecords).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, apperr.Wrap(apperr.KindUnknown, "store count failed", err)
	}
	return n, nil
}

// LastSegment returns the final path segment, typically the record id.
func LastSegment(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
