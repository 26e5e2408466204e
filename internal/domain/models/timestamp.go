package models

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the canonical stored timestamp format.
const TimestampLayout = "2006-01-02 15:04:05"

// MonthLayout identifies a reporting month.
const MonthLayout = "2006-01"

// ErrInvalidTimestamp marks stored timestamps that could not be parsed.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

var timestampPattern = regexp.MustCompile(
	`^(\d{4})\s*[-./]\s*(\d{1,2})\s*[-./]\s*(\d{1,2})\.?(?:[\sT]+(\d{1,2}):(\d{1,2})(?::(\d{1,2})(?:\.\d+)?)?)?$`,
)

// ParseTimestamp reads the canonical layout and its common punctuation
// variants ("2024.03.05 10:00:00", "2024/3/5 10:00", "2024-03-05").
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}

	cleaned := strings.TrimSpace(strings.ReplaceAll(value, "\u00a0", " "))
	match := timestampPattern.FindStringSubmatch(cleaned)
	if match == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, value)
	}

	parts := make([]int, 6)
	for i := range parts {
		if match[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(match[i+1])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, value)
		}
		parts[i] = n
	}

	year, month, day, hour, minute, second := parts[0], parts[1], parts[2], parts[3], parts[4], parts[5]
	if month < 1 || month > 12 || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, value)
	}

	ts := time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)
	if ts.Day() != day {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, value)
	}
	return ts, nil
}

// FormatTimestamp renders ts in the canonical layout, falling back to raw
// when ts is unset.
func FormatTimestamp(ts time.Time, raw string) string {
	if ts.IsZero() {
		return raw
	}
	return ts.Format(TimestampLayout)
}
