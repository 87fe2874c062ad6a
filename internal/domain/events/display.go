package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/markusmobius/go-dateparser"
)

const (
	isoDateLayout   = "2006-01-02"
	longDateLayout  = "Monday, January 2, 2006"
	shortDateLayout = "Jan 2, 2006"
)

// LongDate renders the event date as "Monday, January 2, 2006".
func (e Event) LongDate() string {
	return formatDate(e.Date, longDateLayout)
}

// ShortDate renders the event date as "Jan 2, 2006".
func (e Event) ShortDate() string {
	return formatDate(e.Date, shortDateLayout)
}

// TimeRange renders "start - end", or only the start time when no end is set.
func (e Event) TimeRange() string {
	if e.EndTime == "" {
		return e.StartTime
	}
	return e.StartTime + " - " + e.EndTime
}

// NormalizeDate turns a user-supplied date filter into YYYY-MM-DD. Besides
// ISO dates it accepts natural language such as "tomorrow" or "next friday",
// resolved relative to now.
func NormalizeDate(input string, now time.Time) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", nil
	}
	if t, ok := parseDate(input); ok {
		return t.Format(isoDateLayout), nil
	}
	parsed, err := dateparser.Parse(&dateparser.Configuration{CurrentTime: now}, input)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", input, err)
	}
	return parsed.Time.Format(isoDateLayout), nil
}

func formatDate(value, layout string) string {
	if t, ok := parseDate(value); ok {
		return t.Format(layout)
	}
	if parsed, err := dateparser.Parse(&dateparser.Configuration{CurrentTime: time.Now()}, value); err == nil && !parsed.Time.IsZero() {
		return parsed.Time.Format(layout)
	}
	return value
}

// isoDate trims a timestamp the API may return down to the date part accepted
// by an HTML date input.
func isoDate(value string) string {
	if t, ok := parseDate(value); ok {
		return t.Format(isoDateLayout)
	}
	return value
}

func parseDate(value string) (time.Time, bool) {
	if t, err := time.Parse(isoDateLayout, value); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	return time.Time{}, false
}
