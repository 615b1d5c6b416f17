// Package util provides date and time helpers shared by the conversation
// engine, the admin API and the notifier.
package util

import (
	"fmt"
	"time"
)

var jpWeekdays = [7]string{"日", "月", "火", "水", "木", "金", "土"}

// DateOnly truncates t to its calendar date in t's location.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ParseDate parses a stored practice date (YYYY-MM-DD).
func ParseDate(date string) (time.Time, error) {
	return time.Parse("2006-01-02", date)
}

// ParseClock parses a stored practice time (HH:mm).
func ParseClock(clock string) (time.Time, error) {
	return time.Parse("15:04", clock)
}

// IsBeforeDay reports whether date (YYYY-MM-DD) falls strictly before the
// calendar day of now. Same-day dates are not before.
func IsBeforeDay(date string, now time.Time) (bool, error) {
	d, err := ParseDate(date)
	if err != nil {
		return false, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return d.Before(DateOnly(now)), nil
}

// IsClockBefore reports whether clock a (HH:mm) is strictly before clock b.
func IsClockBefore(a, b string) (bool, error) {
	ta, err := ParseClock(a)
	if err != nil {
		return false, fmt.Errorf("invalid time %q: %w", a, err)
	}
	tb, err := ParseClock(b)
	if err != nil {
		return false, fmt.Errorf("invalid time %q: %w", b, err)
	}
	return ta.Before(tb), nil
}

// MessageDateFormat renders a stored date as "MM/DD(曜)" for user-facing
// messages. Unparseable dates are passed through unchanged rather than
// breaking a whole listing.
func MessageDateFormat(date string) string {
	d, err := ParseDate(date)
	if err != nil {
		return date
	}
	return fmt.Sprintf("%02d/%02d(%s)", int(d.Month()), d.Day(), jpWeekdays[d.Weekday()])
}
