package agent

import (
	"strings"
	"time"
)

// Agent statuses. The external sending agent reports most of these;
// the client only asserts online/disabled on toggle and deleting on
// teardown.
const (
	StatusBooting       = "booting"
	StatusOnline        = "online"
	StatusDisabled      = "disabled"
	StatusOffline       = "offline"
	StatusQR            = "qr"
	StatusAuthenticated = "authenticated"
	StatusDisconnected  = "disconnected"
	StatusDeleting      = "deleting"
)

// Pairing phases derived from an agent's reported status and state.
const (
	PhaseReady     = "ready"
	PhaseScanQR    = "scan_qr"
	PhaseAuth      = "auth"
	PhaseLoading   = "loading"
	PhaseWaitingQR = "waiting_qr"
)

// ProcessLock is the external agent's liveness marker.
type ProcessLock struct {
	StartedAt int64 `json:"startedAt,omitempty"`
}

// Agent is one sending-agent record under servers/{id}. Enabled is
// the desired-state flag the client owns; status and state are
// agent-reported and only observed here.
type Agent struct {
	ID          string       `json:"id,omitempty"`
	Enabled     bool         `json:"enabled"`
	DailyLimit  int          `json:"dailyLimit"`
	Date        string       `json:"date"`
	Count       int          `json:"count"`
	Status      string       `json:"status"`
	State       string       `json:"state"`
	SendDelayMs int          `json:"sendDelayMs"`
	QR          string       `json:"qr,omitempty"`
	QRValue     string       `json:"qrValue,omitempty"`
	QRCode      string       `json:"qrCode,omitempty"`
	CreatedAt   string       `json:"createdAt"`
	UpdatedAt   int64        `json:"updatedAt"`
	LastSeen    string       `json:"lastSeen,omitempty"`
	LastSentAt  string       `json:"lastSentAt,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	LastError   string       `json:"lastError,omitempty"`
	ReadyAt     int64        `json:"readyAt,omitempty"`
	ProcessLock *ProcessLock `json:"processLock,omitempty"`
}

// Command is the single-slot record under serverCommands/{id}. Each
// write replaces whatever command was pending before it.
type Command struct {
	Action       string `json:"action"`
	By           string `json:"by"`
	RequestedAt  int64  `json:"requestedAt"`
	Logout       bool   `json:"logout,omitempty"`
	PurgeSession bool   `json:"purgeSession,omitempty"`
	KillBrowser  bool   `json:"killBrowser,omitempty"`
}

// Command actions.
const (
	ActionStart         = "start"
	ActionDelete        = "delete"
	ActionEnsureRunning = "ensure_running"
)

// QRPayload returns the agent's pairing payload. Agents have reported
// it under three field names over time; first non-empty wins.
func (a Agent) QRPayload() string {
	for _, v := range []string{a.QR, a.QRValue, a.QRCode} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Phase derives the pairing phase from the reported status and state.
// Precedence is ready > scan_qr > auth > loading > waiting_qr.
func (a Agent) Phase() string {
	state := strings.ToLower(strings.TrimSpace(a.State))
	if a.Status == StatusOnline || strings.Contains(state, "ready") {
		return PhaseReady
	}
	if a.QRPayload() != "" {
		return PhaseScanQR
	}
	if a.Status == StatusAuthenticated || strings.Contains(state, "auth") {
		return PhaseAuth
	}
	if isLoadingState(state) {
		return PhaseLoading
	}
	return PhaseWaitingQR
}

func isLoadingState(state string) bool {
	return state == "loading" ||
		strings.HasPrefix(state, "loading_") ||
		strings.HasPrefix(state, "state_")
}

// UptimeBase picks the timestamp the dashboard counts uptime from:
// the process lock when the agent holds one, then the ready mark,
// then creation time.
func (a Agent) UptimeBase() int64 {
	if a.ProcessLock != nil && a.ProcessLock.StartedAt > 0 {
		return a.ProcessLock.StartedAt
	}
	if a.ReadyAt > 0 {
		return a.ReadyAt
	}
	if t, err := time.Parse(time.RFC3339, a.CreatedAt); err == nil {
		return t.UnixMilli()
	}
	return 0
}

// SentToday returns the agent's counter when its date field matches
// today, otherwise zero. The counter is the agent's; the client only
// resets it.
func (a Agent) SentToday(today string) int {
	if a.Date == today {
		return a.Count
	}
	return 0
}
