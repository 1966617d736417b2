package agent

import (
	"sort"
	"strings"

	"github.com/foxzi/blastry/internal/phone"
)

// Dashboard filters.
const (
	FilterAll      = "all"
	FilterOnline   = "online"
	FilterDisabled = "disabled"
	FilterOffline  = "offline"
)

// Stats are fleet-wide dashboard numbers.
type Stats struct {
	Total     int `json:"total"`
	Online    int `json:"online"`
	Disabled  int `json:"disabled"`
	SentToday int `json:"sentToday"`
}

func matchesFilter(a Agent, filter string) bool {
	switch filter {
	case FilterOnline:
		return a.Status == StatusOnline
	case FilterDisabled:
		return !a.Enabled || a.Status == StatusDisabled
	case FilterOffline:
		return a.Enabled && a.Status != StatusOnline
	}
	return true
}

// List returns agents matching a substring query and a status filter,
// online agents first and ids alphabetical within each group.
func (r *Registry) List(query, filter string) []Agent {
	q := strings.ToLower(strings.TrimSpace(query))

	r.mu.RLock()
	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		if q != "" && !strings.Contains(strings.ToLower(a.ID), q) {
			continue
		}
		if !matchesFilter(a, filter) {
			continue
		}
		out = append(out, a)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool {
		oi, ok := out[i].Status == StatusOnline, out[k].Status == StatusOnline
		if oi != ok {
			return oi
		}
		return out[i].ID < out[k].ID
	})
	return out
}

// Stats totals the fleet for the dashboard header.
func (r *Registry) Stats() Stats {
	today := phone.Today()

	r.mu.RLock()
	defer r.mu.RUnlock()

	var s Stats
	for _, a := range r.agents {
		s.Total++
		if a.Status == StatusOnline {
			s.Online++
		}
		if !a.Enabled || a.Status == StatusDisabled {
			s.Disabled++
		}
		s.SentToday += a.SentToday(today)
	}
	return s
}
