package domain

import (
	"fmt"
	"strings"
	"time"
)

// timestampLayout is fixed-width ISO-8601 in UTC, so string order matches time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTimestamp encodes t for storage backends that keep text timestamps.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ParseTimestamp decodes ISO-8601 timestamps, including bare dates.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{timestampLayout, time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}
