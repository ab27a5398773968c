package server

import (
	"strings"
	"time"
)

const dateOnlyLayout = "2006-01-02"

// parseWindow reads start/end query values. Both RFC3339 and date-only
// forms are accepted; a date-only end extends to the end of that day.
func parseWindow(startValue, endValue string) (time.Time, time.Time, error) {
	start, err := parseTimeParam(startValue, false)
	if err != nil {
		return time.Time{}, time.Time{}, newValidationError("start", "invalid_time", "must be RFC3339 or YYYY-MM-DD")
	}
	end, err := parseTimeParam(endValue, true)
	if err != nil {
		return time.Time{}, time.Time{}, newValidationError("end", "invalid_time", "must be RFC3339 or YYYY-MM-DD")
	}
	if start.IsZero() || end.IsZero() {
		return time.Time{}, time.Time{}, newValidationError("start", "required", "start and end are required")
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, newValidationError("end", "invalid_window", "end must be after start")
	}
	return start, end, nil
}

func parseTimeParam(value string, endOfDay bool) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return parsed.UTC(), nil
	}
	parsed, err := time.Parse(dateOnlyLayout, trimmed)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		parsed = parsed.AddDate(0, 0, 1).Add(-time.Second)
	}
	return parsed.UTC(), nil
}

// parseListParam splits a comma-separated multi-value parameter.
func parseListParam(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
