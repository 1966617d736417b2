package campaign

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Send modes.
const (
	ModeNow      = "now"
	ModeSchedule = "schedule"
)

// Project tabs. The dispatcher flips the active tab to history after
// a successful send.
const (
	TabCampaign = "campaign"
	TabPeople   = "people"
	TabHistory  = "history"
)

// Project pairs a recipient list (via EventID) with a message and a
// delivery schedule. JSON field names are the shared-store wire
// contract and must not change.
type Project struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Tab                string `json:"tab"`
	EventID            string `json:"eventId"`
	MessageText        string `json:"messageText"`
	ImageURL           string `json:"imageUrl,omitempty"`
	SendMode           string `json:"sendMode"`
	ScheduleISO        string `json:"scheduleISO"`
	ScheduleMs         int64  `json:"scheduleMs,omitempty"`
	SelectedTemplateID string `json:"selectedTplId,omitempty"`
	UpdatedAt          int64  `json:"updatedAt"`
}

// NewProject builds a fresh project. The event id equals the project
// id: every project gets its own recipient list and job history
// namespace, never the legacy shared "default".
func NewProject(ordinal int, now time.Time) Project {
	id := fmt.Sprintf("p_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
	return Project{
		ID:          id,
		Name:        fmt.Sprintf("Campaign %d", ordinal),
		Tab:         TabCampaign,
		EventID:     id,
		MessageText: "",
		SendMode:    ModeSchedule,
		ScheduleISO: now.UTC().Format(time.RFC3339),
		UpdatedAt:   now.UnixMilli(),
	}
}

// needsEventIDMigration reports whether a loaded record still carries
// the legacy missing/empty/"default" event id.
func needsEventIDMigration(p Project) bool {
	ev := strings.TrimSpace(p.EventID)
	return ev == "" || strings.EqualFold(ev, "default")
}

// sanitize normalizes fields on records loaded from the store:
// unknown send modes fall back to schedule and a missing schedule
// timestamp defaults to now.
func sanitize(p Project, now time.Time) Project {
	if p.SendMode != ModeNow && p.SendMode != ModeSchedule {
		p.SendMode = ModeSchedule
	}
	if p.ScheduleISO == "" {
		p.ScheduleISO = now.UTC().Format(time.RFC3339)
	}
	if p.Tab == "" {
		p.Tab = TabCampaign
	}
	return p
}
