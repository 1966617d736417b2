package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/blastry/internal/apperr"
	"github.com/foxzi/blastry/internal/campaign"
	"github.com/foxzi/blastry/internal/recipient"
	"github.com/foxzi/blastry/internal/store"
)

// Metrics receives dispatch counters. The metrics package implements
// it; tests pass nil and get the no-op.
type Metrics interface {
	JobsDispatched(n int)
	JobWriteFailed()
}

type noopMetrics struct{}

func (noopMetrics) JobsDispatched(int) {}
func (noopMetrics) JobWriteFailed()    {}

// Projects is the slice of the campaign store the dispatcher needs to
// flip the tab after a send.
type Projects interface {
	Patch(ctx context.Context, id string, fields map[string]any) error
}

// Dispatcher fans a campaign message out into one job record per
// recipient under whatsapp/{uid}/{eventId}.
type Dispatcher struct {
	st       *store.Store
	projects Projects
	uid      string
	logger   *slog.Logger
	metrics  Metrics
	now      func() time.Time
}

// Result reports what a send produced.
type Result struct {
	BatchID string `json:"batchId"`
	Count   int    `json:"count"`
}

func New(st *store.Store, projects Projects, uid string, logger *slog.Logger, metrics Metrics) *Dispatcher {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Dispatcher{
		st:       st,
		projects: projects,
		uid:      uid,
		logger:   logger.With("component", "dispatch"),
		metrics:  metrics,
		now:      time.Now,
	}
}

// Dispatch writes one pending job per recipient. modeOverride, when
// non-empty, wins over the project's own send mode. Job writes run
// concurrently and are not rolled back on partial failure; the first
// write error is returned alongside the count that did land.
func (d *Dispatcher) Dispatch(ctx context.Context, p campaign.Project, recipients []recipient.Recipient, modeOverride string) (Result, error) {
	if strings.TrimSpace(p.MessageText) == "" {
		return Result{}, apperr.New(apperr.KindInvalidInput, "message text is empty")
	}
	targets := make([]recipient.Recipient, 0, len(recipients))
	for _, r := range recipients {
		if strings.TrimSpace(r.Name) == "" || strings.TrimSpace(r.Phone) == "" {
			continue
		}
		targets = append(targets, r)
	}
	if len(targets) == 0 {
		return Result{}, apperr.New(apperr.KindInvalidInput, "no recipients to send to")
	}

	now := d.now()
	mode := p.SendMode
	if modeOverride != "" {
		mode = modeOverride
	}
	scheduleISO, scheduleMs := d.schedule(p, mode, now)

	batchID := fmt.Sprintf("batch_%d", now.UnixMilli())
	nowISO := now.UTC().Format(time.RFC3339)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		written  int
		firstErr error
	)
	for _, r := range targets {
		job := Job{
			ID:                uuid.NewString(),
			FormattedContacts: r.Phone,
			RecipientName:     r.Name,
			Message:           p.MessageText,
			ImageURL:          p.ImageURL,
			ScheduleMessage:   scheduleISO,
			ScheduleMessageMs: scheduleMs,
			BatchID:           batchID,
			BatchSize:         len(targets),
			SMS:               "no",
			Status:            StatusPending,
			CreatedAt:         nowISO,
			UpdatedAt:         nowISO,
			Attempts:          0,
		}
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			path := store.JobPath(d.uid, p.EventID, job.ID)
			if err := d.st.Put(ctx, path, job); err != nil {
				d.logger.Error("job write failed", "jobId", job.ID, "batchId", batchID, "error", err)
				d.metrics.JobWriteFailed()
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			mu.Lock()
			written++
			mu.Unlock()
		}(job)
	}
	wg.Wait()

	d.metrics.JobsDispatched(written)
	d.logger.Info("batch dispatched",
		"batchId", batchID, "eventId", p.EventID, "mode", mode,
		"requested", len(targets), "written", written)

	if firstErr != nil {
		return Result{BatchID: batchID, Count: written},
			apperr.Wrap(apperr.KindOf(firstErr), "dispatch incomplete", firstErr)
	}
	if err := d.projects.Patch(ctx, p.ID, map[string]any{"tab": campaign.TabHistory}); err != nil {
		d.logger.Warn("tab switch after send failed", "projectId", p.ID, "error", err)
	}
	return Result{BatchID: batchID, Count: written}, nil
}

// schedule resolves the effective delivery time. Immediate sends and
// unparseable schedule strings both collapse to now.
func (d *Dispatcher) schedule(p campaign.Project, mode string, now time.Time) (string, int64) {
	if mode == campaign.ModeNow {
		return now.UTC().Format(time.RFC3339), now.UnixMilli()
	}
	t, err := time.Parse(time.RFC3339, p.ScheduleISO)
	if err != nil {
		d.logger.Warn("unparseable schedule, sending now", "projectId", p.ID, "scheduleISO", p.ScheduleISO)
		return now.UTC().Format(time.RFC3339), now.UnixMilli()
	}
	return t.UTC().Format(time.RFC3339), t.UnixMilli()
}
