package app

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/text/language"

	"github.com/foxzi/blastry/internal/history"
	"github.com/foxzi/blastry/internal/phone"
	"github.com/foxzi/blastry/internal/recipient"
	"github.com/foxzi/blastry/internal/store"
)

// scopeSet holds the recipient registry and delivery history observer
// for whichever project is currently active. Switching the active
// project tears down the old subscriptions and opens new ones keyed
// by the project's event id. Access is lazy: the first request after
// a switch pays the open cost.
type scopeSet struct {
	st     *store.Store
	uid    string
	norm   phone.Normalizer
	lang   language.Tag
	logger *slog.Logger

	mu         sync.Mutex
	eventID    string
	recipients *recipient.Registry
	jobs       *history.Observer
}

func newScopeSet(st *store.Store, uid string, norm phone.Normalizer, lang language.Tag, logger *slog.Logger) *scopeSet {
	return &scopeSet{
		st:     st,
		uid:    uid,
		norm:   norm,
		lang:   lang,
		logger: logger,
	}
}

// ensureLocked opens both scoped views for eventID, replacing any
// previous scope. Callers hold s.mu.
func (s *scopeSet) ensureLocked(eventID string) error {
	if eventID == s.eventID && s.recipients != nil {
		return nil
	}
	s.closeLocked()

	ctx := context.Background()
	reg, err := recipient.Open(ctx, s.st, s.uid, eventID, s.norm, s.lang, s.logger.With("component", "recipients"))
	if err != nil {
		return err
	}
	obs, err := history.Open(ctx, s.st, s.uid, eventID, s.logger.With("component", "history"))
	if err != nil {
		reg.Close()
		return err
	}

	s.eventID = eventID
	s.recipients = reg
	s.jobs = obs
	return nil
}

// Recipients returns the registry for eventID, reopening the scope if
// the active project changed. Nil means the scope could not be
// opened.
func (s *scopeSet) Recipients(eventID string) *recipient.Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLocked(eventID); err != nil {
		s.logger.Error("failed to open recipient scope", "event_id", eventID, "error", err)
		return nil
	}
	return s.recipients
}

// History returns the job observer for eventID, reopening the scope
// if the active project changed.
func (s *scopeSet) History(eventID string) *history.Observer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLocked(eventID); err != nil {
		s.logger.Error("failed to open history scope", "event_id", eventID, "error", err)
		return nil
	}
	return s.jobs
}

func (s *scopeSet) closeLocked() {
	if s.recipients != nil {
		s.recipients.Close()
		s.recipients = nil
	}
	if s.jobs != nil {
		s.jobs.Close()
		s.jobs = nil
	}
	s.eventID = ""
}

// Close tears down the current scope.
func (s *scopeSet) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}
