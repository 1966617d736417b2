package history

import (
	"sort"
	"strings"
	"time"

	"github.com/foxzi/blastry/internal/dispatch"
	"github.com/foxzi/blastry/internal/phone"
	"github.com/foxzi/blastry/internal/recipient"
)

// Batch is one aggregated send: every job sharing a batch id, or a
// synthetic single-job batch for legacy records written without one.
type Batch struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	ImageURL  string `json:"imageUrl,omitempty"`
	Timestamp int64  `json:"timestamp"`
	BatchSize int    `json:"batchSize"`
	Total     int    `json:"total"`
	Sent      int    `json:"sent"`
	Error     int    `json:"error"`
	Pending   int    `json:"pending"`
}

// DayBucket groups batches by UTC calendar day.
type DayBucket struct {
	Day     string  `json:"day"`
	Batches []Batch `json:"batches"`
}

// AudienceRow is the latest delivery outcome for one phone number.
type AudienceRow struct {
	Phone     string `json:"phone"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	UpdatedAt int64  `json:"updatedAt"`
	JobID     string `json:"jobId"`
}

// Stats are whole-history totals.
type Stats struct {
	Sent    int `json:"sent"`
	Error   int `json:"error"`
	Pending int `json:"pending"`
	Total   int `json:"total"`
}

// jobTime picks the projection timestamp for a job in milliseconds.
// Creation time wins when present; the schedule is the last resort.
func jobTime(j dispatch.Job) int64 {
	for _, iso := range []string{j.CreatedAt, j.SentAt, j.UpdatedAt, j.ScheduleMessage} {
		if iso == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, iso); err == nil {
			return t.UnixMilli()
		}
	}
	if j.ScheduleMessageMs > 0 {
		return j.ScheduleMessageMs
	}
	return 0
}

// statusRank orders audience rows: failures surface first, delivered
// last.
func statusRank(status string) int {
	switch status {
	case dispatch.StatusError, dispatch.StatusFailed:
		return 0
	case dispatch.StatusPending:
		return 1
	case dispatch.StatusSending, dispatch.StatusProcessing:
		return 2
	case dispatch.StatusSent:
		return 3
	}
	return 1
}

func sortByFirstSeen(jobs []dispatch.Job, order map[string]int) {
	sort.SliceStable(jobs, func(i, k int) bool {
		return order[jobs[i].ID] < order[jobs[k].ID]
	})
}

// Batches aggregates the history into batches, newest first. Jobs
// without a batch id become single-job batches keyed single_<jobId>.
func (o *Observer) Batches() []Batch {
	return aggregateBatches(o.snapshot())
}

func aggregateBatches(jobs []dispatch.Job) []Batch {
	byID := make(map[string]*Batch)
	var ids []string
	for _, j := range jobs {
		id := j.BatchID
		if strings.TrimSpace(id) == "" {
			id = "single_" + j.ID
		}
		b, ok := byID[id]
		if !ok {
			b = &Batch{ID: id, Message: j.Message, ImageURL: j.ImageURL, BatchSize: j.BatchSize}
			byID[id] = b
			ids = append(ids, id)
		}
		b.Total++
		if j.BatchSize > b.BatchSize {
			b.BatchSize = j.BatchSize
		}
		if ts := jobTime(j); ts > b.Timestamp {
			b.Timestamp = ts
		}
		switch j.Status {
		case dispatch.StatusSent:
			b.Sent++
		case dispatch.StatusError, dispatch.StatusFailed:
			b.Error++
		default:
			b.Pending++
		}
	}

	out := make([]Batch, 0, len(ids))
	for _, id := range ids {
		b := byID[id]
		if b.BatchSize == 0 {
			b.BatchSize = b.Total
		}
		out = append(out, *b)
	}
	sort.SliceStable(out, func(i, k int) bool {
		return out[i].Timestamp > out[k].Timestamp
	})
	return out
}

// Days slices the history into UTC day buckets, newest day first.
// Jobs are bucketed individually and aggregated within their day, so
// a batch crossing midnight shows up in both days with that day's
// counts. Jobs with no usable timestamp land in the "unknown" bucket
// at the end.
func (o *Observer) Days() []DayBucket {
	jobs := o.snapshot()

	byDay := make(map[string][]dispatch.Job)
	var keys []string
	for _, j := range jobs {
		day := "unknown"
		if ts := jobTime(j); ts > 0 {
			day = phone.DayKey(time.UnixMilli(ts))
		}
		if _, ok := byDay[day]; !ok {
			keys = append(keys, day)
		}
		byDay[day] = append(byDay[day], j)
	}

	sort.SliceStable(keys, func(i, k int) bool {
		if keys[i] == "unknown" {
			return false
		}
		if keys[k] == "unknown" {
			return true
		}
		return keys[i] > keys[k]
	})

	out := make([]DayBucket, 0, len(keys))
	for _, day := range keys {
		out = append(out, DayBucket{Day: day, Batches: aggregateBatches(byDay[day])})
	}
	return out
}

// Audience reduces the history to one row per phone number carrying
// that number's most recent job, joined with the recipient list:
// recipients no job has reached yet get a pending row. Sorted
// failures first, then by recency and name.
func (o *Observer) Audience(people []recipient.Recipient) []AudienceRow {
	jobs := o.snapshot()

	latest := make(map[string]dispatch.Job)
	var phones []string
	for _, j := range jobs {
		p := j.FormattedContacts
		if p == "" {
			continue
		}
		prev, ok := latest[p]
		if !ok {
			latest[p] = j
			phones = append(phones, p)
			continue
		}
		if jobTime(j) > jobTime(prev) {
			latest[p] = j
		}
	}

	names := make(map[string]string, len(people))
	for _, person := range people {
		if person.Phone == "" {
			continue
		}
		names[person.Phone] = person.Name
		if _, ok := latest[person.Phone]; !ok {
			latest[person.Phone] = dispatch.Job{Status: dispatch.StatusPending}
			phones = append(phones, person.Phone)
		}
	}

	out := make([]AudienceRow, 0, len(phones))
	for _, p := range phones {
		j := latest[p]
		name := names[p]
		if name == "" {
			name = j.RecipientName
		}
		out = append(out, AudienceRow{
			Phone:     p,
			Name:      name,
			Status:    j.Status,
			UpdatedAt: jobTime(j),
			JobID:     j.ID,
		})
	}
	sort.SliceStable(out, func(i, k int) bool {
		ri, rk := statusRank(out[i].Status), statusRank(out[k].Status)
		if ri != rk {
			return ri < rk
		}
		if out[i].UpdatedAt != out[k].UpdatedAt {
			return out[i].UpdatedAt > out[k].UpdatedAt
		}
		return out[i].Name < out[k].Name
	})
	return out
}

// Stats totals the history by outcome.
func (o *Observer) Stats() Stats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var s Stats
	for _, j := range o.jobs {
		switch j.Status {
		case dispatch.StatusSent:
			s.Sent++
		case dispatch.StatusError, dispatch.StatusFailed:
			s.Error++
		default:
			s.Pending++
		}
		s.Total++
	}
	return s
}
