package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/foxzi/blastry/internal/apperr"
	"github.com/foxzi/blastry/internal/campaign"
	"github.com/foxzi/blastry/internal/recipient"
	"github.com/foxzi/blastry/internal/store"
)

type fakeProjects struct {
	patches []map[string]any
}

func (f *fakeProjects) Patch(ctx context.Context, id string, fields map[string]any) error {
	f.patches = append(f.patches, fields)
	return nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.Store, *fakeProjects) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(filepath.Join(t.TempDir(), "store.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	projects := &fakeProjects{}
	return New(st, projects, "u1", logger, nil), st, projects
}

func testProject(mode string) campaign.Project {
	return campaign.Project{
		ID:          "p1",
		EventID:     "p1",
		MessageText: "hello there",
		SendMode:    mode,
		ScheduleISO: "2026-09-01T10:00:00Z",
	}
}

func testRecipients(n int) []recipient.Recipient {
	out := make([]recipient.Recipient, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, recipient.Recipient{
			Name:  "Person " + string(rune('A'+i)),
			Phone: "97252100000" + string(rune('0'+i)),
		})
	}
	return out
}

func TestDispatchWritesOneJobPerRecipient(t *testing.T) {
	d, st, projects := newTestDispatcher(t)
	ctx := context.Background()

	res, err := d.Dispatch(ctx, testProject(campaign.ModeSchedule), testRecipients(3), "")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Count != 3 {
		t.Fatalf("count = %d, want 3", res.Count)
	}
	if !strings.HasPrefix(res.BatchID, "batch_") {
		t.Fatalf("batch id %q lacks batch_ prefix", res.BatchID)
	}

	recs, err := st.List(ctx, store.JobsPrefix("u1", "p1"))
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("stored %d jobs, want 3", len(recs))
	}
	seen := map[string]bool{}
	for _, raw := range recs {
		var job Job
		if err := json.Unmarshal(raw.Data, &job); err != nil {
			t.Fatalf("decode job: %v", err)
		}
		if job.BatchID != res.BatchID {
			t.Errorf("job %s batchId = %q, want %q", job.ID, job.BatchID, res.BatchID)
		}
		if job.BatchSize != 3 {
			t.Errorf("job %s batchSize = %d, want 3", job.ID, job.BatchSize)
		}
		if job.Status != StatusPending || job.Attempts != 0 || job.SMS != "no" {
			t.Errorf("job %s seed fields = %q/%d/%q", job.ID, job.Status, job.Attempts, job.SMS)
		}
		if job.ScheduleMessage != "2026-09-01T10:00:00Z" {
			t.Errorf("job %s scheduleMessage = %q", job.ID, job.ScheduleMessage)
		}
		if seen[job.ID] {
			t.Errorf("duplicate job id %s", job.ID)
		}
		seen[job.ID] = true
	}

	if len(projects.patches) != 1 || projects.patches[0]["tab"] != campaign.TabHistory {
		t.Fatalf("project patches = %v, want single tab switch to history", projects.patches)
	}
}

func TestDispatchNowModeUsesCallTime(t *testing.T) {
	d, st, _ := newTestDispatcher(t)
	ctx := context.Background()

	before := time.Now().UnixMilli()
	res, err := d.Dispatch(ctx, testProject(campaign.ModeSchedule), testRecipients(1), campaign.ModeNow)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	after := time.Now().UnixMilli()

	recs, err := st.List(ctx, store.JobsPrefix("u1", "p1"))
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	var job Job
	for _, raw := range recs {
		if err := json.Unmarshal(raw.Data, &job); err != nil {
			t.Fatalf("decode job: %v", err)
		}
	}
	if job.ScheduleMessageMs < before || job.ScheduleMessageMs > after {
		t.Fatalf("scheduleMessageMs %d outside call window [%d, %d]", job.ScheduleMessageMs, before, after)
	}
	if res.Count != 1 {
		t.Fatalf("count = %d, want 1", res.Count)
	}
}

func TestDispatchValidation(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	ctx := context.Background()

	if _, err := d.Dispatch(ctx, testProject(campaign.ModeNow), nil, ""); !apperr.Is(err, apperr.KindInvalidInput) {
		t.Fatalf("empty recipients error = %v, want invalid input", err)
	}

	blank := testProject(campaign.ModeNow)
	blank.MessageText = "   "
	if _, err := d.Dispatch(ctx, blank, testRecipients(2), ""); !apperr.Is(err, apperr.KindInvalidInput) {
		t.Fatalf("blank message error = %v, want invalid input", err)
	}

	// Recipients with no usable name or phone are skipped, and an
	// all-unusable list counts as empty.
	junk := []recipient.Recipient{{Name: " ", Phone: "972521234567"}, {Name: "A", Phone: ""}}
	if _, err := d.Dispatch(ctx, testProject(campaign.ModeNow), junk, ""); !apperr.Is(err, apperr.KindInvalidInput) {
		t.Fatalf("unusable recipients error = %v, want invalid input", err)
	}
}

func TestDispatchUnparseableScheduleFallsBackToNow(t *testing.T) {
	d, st, _ := newTestDispatcher(t)
	ctx := context.Background()

	p := testProject(campaign.ModeSchedule)
	p.ScheduleISO = "not-a-time"
	before := time.Now().UnixMilli()
	if _, err := d.Dispatch(ctx, p, testRecipients(1), ""); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	after := time.Now().UnixMilli()

	recs, err := st.List(ctx, store.JobsPrefix("u1", "p1"))
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	var job Job
	for _, raw := range recs {
		if err := json.Unmarshal(raw.Data, &job); err != nil {
			t.Fatalf("decode job: %v", err)
		}
	}
	if job.ScheduleMessageMs < before || job.ScheduleMessageMs > after {
		t.Fatalf("fallback scheduleMessageMs %d outside [%d, %d]", job.ScheduleMessageMs, before, after)
	}
}
