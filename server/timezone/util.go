// Package timezone provides calendar-day helpers for due dates.
//
// Due dates are stored as unix seconds. Anything that talks about "days" (the
// workload projection, daily counters) converts them into a single configured
// location first, so an item due at 23:30 local time lands on that local day.
package timezone

import (
	"fmt"
	"time"
)

// DayLayout is the layout used for calendar-day keys.
const DayLayout = "2006-01-02"

// ParseTimezone parses an IANA timezone identifier (e.g., "Asia/Shanghai").
// If the timezone is invalid, returns UTC and an error.
func ParseTimezone(tz string) (*time.Location, error) {
	if tz == "" || tz == "UTC" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	return loc, nil
}

// IsValidTimezone checks if a timezone identifier is valid.
func IsValidTimezone(tz string) bool {
	_, err := ParseTimezone(tz)
	return err == nil
}

// StartOfDay returns the start of the day (00:00:00) in the given timezone.
func StartOfDay(t time.Time, tz *time.Location) time.Time {
	if tz == nil {
		tz = time.UTC
	}
	local := t.In(tz)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tz)
}

// DaysBetween returns the number of calendar days from the local day of from to
// the local day of to. It is negative when to falls on an earlier day and ignores
// DST transitions.
func DaysBetween(from, to time.Time, tz *time.Location) int {
	if tz == nil {
		tz = time.UTC
	}
	a := from.In(tz)
	b := to.In(tz)
	// Compare as UTC midnights so 23h and 25h days still count as one.
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// DayKey formats a unix timestamp as its calendar day in tz.
func DayKey(ts int64, tz *time.Location) string {
	if tz == nil {
		tz = time.UTC
	}
	return time.Unix(ts, 0).In(tz).Format(DayLayout)
}
