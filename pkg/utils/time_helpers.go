package utils

import (
	"strings"
	"time"
)

// Clock is injected into services so tests can move time.
type Clock func() time.Time

func SystemClock() time.Time { return time.Now().UTC() }

var isoLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// FormatUTC renders t as ISO-8601 in UTC, or "" for the zero time.
func FormatUTC(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ParseUTC reads the timestamp formats found in the workbook; "" yields zero time.
func ParseUTC(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// MonthKey returns the YYYY-MM bucket of t in UTC.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// FormatSecondsToHumanReadable renders a duration as "1d 2h 3m".
func FormatSecondsToHumanReadable(d time.Duration) string {
	if d <= 0 {
		return "0m"
	}
	d = d.Round(time.Minute)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute

	var parts []string
	if days > 0 {
		parts = append(parts, itoa(int64(days))+"d")
	}
	if hours > 0 {
		parts = append(parts, itoa(int64(hours))+"h")
	}
	if minutes > 0 || len(parts) == 0 {
		parts = append(parts, itoa(int64(minutes))+"m")
	}
	return strings.Join(parts, " ")
}
