package util

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrUnparsableTimestamp is returned when no layout in the fallback chain matches.
var ErrUnparsableTimestamp = errors.New("unparsable timestamp")

// TimestampLayouts is the fallback chain tried in order by ParseTimestamp.
// Layouts without a zone are read as UTC.
var TimestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05Z07:00",
	"02.01.2006T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses s with the layouts in TimestampLayouts, then as unix
// seconds. The result is always UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrUnparsableTimestamp)
	}
	for _, layout := range TimestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsableTimestamp, s)
}

// ParseTime is the boolean form of ParseTimestamp for optional query values.
func ParseTime(s string) (time.Time, bool) {
	t, err := ParseTimestamp(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// FormatTimestamp renders t as ISO-8601 in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
