// Package calendar holds the day arithmetic used by streaks and milestones.
// Every value it returns is a UTC midnight.
package calendar

import "time"

const day = 24 * time.Hour

// NormalizeDay truncates t to midnight UTC of its UTC calendar day.
func NormalizeDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the normalized day of now.
func Today(now time.Time) time.Time {
	return NormalizeDay(now)
}

// AddDays moves d by n calendar days (n may be negative).
func AddDays(d time.Time, n int) time.Time {
	return NormalizeDay(d).AddDate(0, 0, n)
}

// DaysBetweenInclusive counts calendar days from a to b, both ends included.
// Returns 1 for the same day and values <= 0 when b is before a.
func DaysBetweenInclusive(a, b time.Time) int {
	diff := NormalizeDay(b).Sub(NormalizeDay(a))
	days := int(diff / day)
	if diff < 0 && diff%day != 0 {
		days--
	}
	return days + 1
}

// Min returns the earlier of a and b.
func Min(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

// Format renders a normalized day as YYYY-MM-DD.
func Format(d time.Time) string {
	return NormalizeDay(d).Format(time.DateOnly)
}

// Parse reads a YYYY-MM-DD string or an RFC 3339 timestamp and normalizes it.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return NormalizeDay(t), nil
}
