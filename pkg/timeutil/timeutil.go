// Package timeutil provides time helpers for the sync protocol.
// Timestamps cross the wire as ISO-8601 strings with millisecond precision
// and are stored in UTC everywhere; these helpers keep both conventions in
// one place. No external dependencies - uses only standard library.
package timeutil

import "time"

// WireFormat is the timestamp layout used by the sync API.
const WireFormat = "2006-01-02T15:04:05.000Z07:00"

// UTC normalizes a time to UTC.
func UTC(t time.Time) time.Time {
	return t.UTC()
}

// NowUTC returns the current time in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// FormatWire formats a time for the sync API.
func FormatWire(t time.Time) string {
	return t.UTC().Format(WireFormat)
}

// ParseWire parses a sync API timestamp. It accepts both millisecond and
// full RFC3339 precision since older clients omit the fraction.
func ParseWire(value string) (time.Time, error) {
	t, err := time.Parse(WireFormat, value)
	if err == nil {
		return t.UTC(), nil
	}
	t, err = time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// TruncateMillis drops sub-millisecond precision. Wire round-trips never
// carry more than millisecond resolution, so comparisons against parsed
// timestamps should truncate first.
func TruncateMillis(t time.Time) time.Time {
	return t.Truncate(time.Millisecond)
}

// IsSameDay reports whether two times fall on the same UTC day.
func IsSameDay(t1, t2 time.Time) bool {
	u1, u2 := t1.UTC(), t2.UTC()
	return u1.Year() == u2.Year() && u1.YearDay() == u2.YearDay()
}

// DaysBetween returns the number of whole UTC days between two times.
func DaysBetween(t1, t2 time.Time) int {
	d1 := t1.UTC().Truncate(24 * time.Hour)
	d2 := t2.UTC().Truncate(24 * time.Hour)
	days := int(d2.Sub(d1).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}
