package models

import (
	"strings"
	"time"
)

// DateKeyLayout is the canonical day format used for booking dates
const DateKeyLayout = "2006-01-02"

// DateKey is a calendar day in canonical YYYY-MM-DD form (UTC)
type DateKey string

// ParseDateKey normalizes a plain day ("2025-06-01") or a timestamp
// ("2025-06-01T09:30:00.000Z") into a DateKey.
func ParseDateKey(raw string) (DateKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", InvalidRequestf("date is required")
	}

	if t, err := time.Parse(DateKeyLayout, raw); err == nil {
		return DateKeyFromTime(t), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return DateKeyFromTime(t), nil
	}

	return "", InvalidRequestf("date %q must be formatted as YYYY-MM-DD", raw)
}

// DateKeyFromTime returns the UTC day of t
func DateKeyFromTime(t time.Time) DateKey {
	return DateKey(t.UTC().Format(DateKeyLayout))
}

// String returns the canonical form
func (d DateKey) String() string {
	return string(d)
}

// DayRange returns the half-open UTC interval [start, end) covered by the day
func (d DateKey) DayRange() (time.Time, time.Time) {
	start, err := time.Parse(DateKeyLayout, string(d))
	if err != nil {
		return time.Time{}, time.Time{}
	}
	return start, start.Add(24 * time.Hour)
}

// Valid reports whether d is a well-formed day
func (d DateKey) Valid() bool {
	_, err := time.Parse(DateKeyLayout, string(d))
	return err == nil
}
