package dispatch

// Job statuses. The client writes pending and never mutates status
// afterwards; the external sending agent owns the rest of the
// lifecycle.
const (
	StatusPending    = "pending"
	StatusSending    = "sending"
	StatusProcessing = "processing"
	StatusSent       = "sent"
	StatusError      = "error"
	StatusFailed     = "failed"
)

// Job is one per-recipient delivery record under
// whatsapp/{uid}/{eventId}. JSON field names are the wire contract
// the external agent consumes.
type Job struct {
	ID                string `json:"id,omitempty"`
	FormattedContacts string `json:"formattedContacts"`
	RecipientName     string `json:"recipientName"`
	Message           string `json:"message"`
	ImageURL          string `json:"imageUrl,omitempty"`
	ScheduleMessage   string `json:"scheduleMessage"`
	ScheduleMessageMs int64  `json:"scheduleMessageMs"`
	BatchID           string `json:"batchId"`
	BatchSize         int    `json:"batchSize"`
	SMS               string `json:"sms"`
	Status            string `json:"status"`
	CreatedAt         string `json:"createdAt"`
	UpdatedAt         string `json:"updatedAt"`
	SentAt            string `json:"sentAt,omitempty"`
	Attempts          int    `json:"attempts"`
}

// IsTerminal reports whether a status is final.
func IsTerminal(status string) bool {
	switch status {
	case StatusSent, StatusError, StatusFailed:
		return true
	}
	return false
}
