package utils

import (
	"strconv"
	"strings"
)

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

// FormatID renders a Telegram id for a workbook cell; 0 becomes "".
func FormatID(id int64) string {
	if id == 0 {
		return ""
	}
	return itoa(id)
}

// ParseID reads an id cell. Legacy cells written as floats ("123.0") are accepted.
func ParseID(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return id
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return int64(f)
	}
	return 0
}

func ParseInt(raw string) int {
	return int(ParseID(raw))
}

func FormatBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// ParseBool treats "true", "1", "yes" and "y" (any case) as true.
func ParseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "y":
		return true
	default:
		return false
	}
}

// SafeGet returns row[idx] trimmed, or "" when the row is shorter.
func SafeGet(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
