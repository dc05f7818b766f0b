// Package dateparse provides utilities for parsing the timestamps users type
// when logging training. A log looks backwards, so relative inputs resolve to
// past dates.
package dateparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTimestamp parses a user-entered time and returns an RFC 3339 timestamp.
// Uses the current time as the reference point.
//
// Supported formats:
//   - Full timestamps: "2026-03-01T18:30:00Z" (passed through)
//   - Exact dates: "2026-03-01" (midnight UTC)
//   - Relative days: "-2d"
//   - Relative weeks: "-1w"
//   - Day names: "monday", "tuesday", etc. (most recent occurrence)
//   - Keywords: "now", "today", "yesterday"
func ParseTimestamp(input string) (string, error) {
	return ParseTimestampFrom(input, time.Now().UTC())
}

// ParseTimestampFrom parses a time input relative to the given reference time.
// This variant enables deterministic testing with a fixed "now".
func ParseTimestampFrom(input string, now time.Time) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("empty time input")
	}

	// Full timestamp: keep the moment the user gave us.
	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return t.UTC().Format(time.RFC3339), nil
	}

	lower := strings.ToLower(input)

	// Exact date: YYYY-MM-DD
	if t, err := time.Parse("2006-01-02", lower); err == nil {
		return formatTimestamp(t), nil
	}

	// Keywords
	switch lower {
	case "now":
		return now.Format(time.RFC3339), nil
	case "today":
		return formatTimestamp(now), nil
	case "yesterday":
		return formatTimestamp(now.AddDate(0, 0, -1)), nil
	}

	// Relative offsets into the past: -Nd, -Nw
	if strings.HasPrefix(lower, "-") && len(lower) >= 3 {
		suffix := lower[len(lower)-1]
		numStr := lower[1 : len(lower)-1]
		n, err := strconv.Atoi(numStr)
		if err == nil && n >= 0 {
			switch suffix {
			case 'd':
				return formatTimestamp(now.AddDate(0, 0, -n)), nil
			case 'w':
				return formatTimestamp(now.AddDate(0, 0, -n*7)), nil
			default:
				return "", fmt.Errorf("unknown relative unit %q in %q (use d or w)", string(suffix), input)
			}
		}
	}

	// Day names: most recent occurrence of that weekday
	dayMap := map[string]time.Weekday{
		"sunday":    time.Sunday,
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
	}
	if target, ok := dayMap[lower]; ok {
		daysBack := (int(now.Weekday()) - int(target) + 7) % 7
		if daysBack == 0 {
			daysBack = 7 // "monday" on a Monday means last week's
		}
		return formatTimestamp(now.AddDate(0, 0, -daysBack)), nil
	}

	return "", fmt.Errorf("unrecognized time format: %q", input)
}

// formatTimestamp truncates to midnight UTC for date-granularity inputs.
func formatTimestamp(t time.Time) string {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
}
