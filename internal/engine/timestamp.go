package engine

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedTimestamp marks a record whose timestamp could not be
// normalized. Callers exclude the record and count it; they never
// substitute a zero instant.
var ErrMalformedTimestamp = errors.New("malformed_timestamp")

// ParseTimestamp canonicalizes an external timestamp encoding into a
// UTC instant with second precision. The encoding is six numeric
// components (year, month, day, hour, minute, second) separated by
// any non-digit delimiters, so "2025-01-31 08:30:00" and
// "2025-01-31_08-30-00" normalize identically.
func ParseTimestamp(s string) (time.Time, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r < '0' || r > '9'
	})
	if len(parts) != 6 {
		return time.Time{}, ErrMalformedTimestamp
	}

	nums := make([]int, 6)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, ErrMalformedTimestamp
		}
		nums[i] = n
	}

	year, month, day := nums[0], nums[1], nums[2]
	hour, minute, second := nums[3], nums[4], nums[5]
	if year < 1970 || month < 1 || month > 12 || day < 1 || day > 31 ||
		hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, ErrMalformedTimestamp
	}

	ts := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	// time.Date normalizes out-of-range days (Feb 30 becomes Mar 2);
	// reject instead.
	if ts.Day() != day || ts.Month() != time.Month(month) {
		return time.Time{}, ErrMalformedTimestamp
	}
	return ts, nil
}
