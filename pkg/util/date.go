package util

import (
	"fmt"
	"strings"
	"time"
)

// UnboundedDate is the sentinel the detector understands as "no bound".
const UnboundedDate = "None"

// DefaultDateLayout is YYYY-MM-DD.
const DefaultDateLayout = "2006-01-02"

// IsUnbounded reports whether s denotes an open bound (empty or "None").
func IsUnbounded(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, UnboundedDate)
}

// ParseDateBound parses a calendar date in layout. Unbounded text yields the
// zero time and no error; malformed text yields the zero time and an error.
func ParseDateBound(s, layout string) (time.Time, error) {
	if IsUnbounded(s) {
		return time.Time{}, nil
	}
	if layout == "" {
		layout = DefaultDateLayout
	}
	t, err := time.ParseInLocation(layout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDateBound renders t in layout, or the sentinel when t is zero.
func FormatDateBound(t time.Time, layout string) string {
	if t.IsZero() {
		return UnboundedDate
	}
	if layout == "" {
		layout = DefaultDateLayout
	}
	return t.Format(layout)
}

// FormatPercent renders a percentage without trailing zeros (3, 2.5).
func FormatPercent(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.6f", v), "0"), ".")
}
