package phone

import (
	"strings"
	"time"
)

// Normalizer canonicalizes raw phone input into an international
// digit string. Defaults match Israeli numbering (972 country code,
// mobile numbers starting with 5).
type Normalizer struct {
	CountryPrefix string
	MobilePrefix  string
}

// Default is the normalizer used when no configuration is supplied.
var Default = Normalizer{CountryPrefix: "972", MobilePrefix: "5"}

// Normalize strips non-digits and prefixes the country code. Empty
// input yields an empty string, which callers treat as invalid.
func (n Normalizer) Normalize(raw string) string {
	digits := sanitize(raw)
	if digits == "" {
		return ""
	}
	switch {
	case strings.HasPrefix(digits, n.CountryPrefix):
		return digits
	case strings.HasPrefix(digits, "0") && len(digits) >= 9:
		return n.CountryPrefix + digits[1:]
	case strings.HasPrefix(digits, n.MobilePrefix) && (len(digits) == 9 || len(digits) == 10):
		return n.CountryPrefix + digits
	default:
		return digits
	}
}

// Normalize applies the default normalizer.
func Normalize(raw string) string {
	return Default.Normalize(raw)
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteByte(byte(r))
		}
	}
	return b.String()
}

// DayKey returns the UTC calendar date (YYYY-MM-DD) for a timestamp.
// The UTC basis is applied uniformly for bucketing and matching.
func DayKey(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format("2006-01-02")
}

// DayKeyISO derives the day key from an ISO timestamp string. An
// unparseable value buckets under "unknown".
func DayKeyISO(iso string) string {
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return "unknown"
	}
	return DayKey(t)
}

// Today returns the current UTC day key.
func Today() string {
	return DayKey(time.Now())
}
