package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSelectGranularityBySpan(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		days int
		want Granularity
	}{
		{1, GranularityFiveMinute},
		{7, GranularityFiveMinute},
		{8, GranularityHourly},
		{31, GranularityHourly},
		{60, GranularityDaily},
		{93, GranularityDaily},
		{180, GranularityWeekly},
		{365, GranularityWeekly},
		{366, GranularityMonthly},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SelectGranularity(base, base.AddDate(0, 0, tc.days)), "%d days", tc.days)
	}
}

func TestParseGranularity(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	g, ok := ParseGranularity("auto", base, base.AddDate(0, 0, 60))
	assert.True(t, ok)
	assert.Equal(t, GranularityDaily, g)

	g, ok = ParseGranularity("quarterly", base, base.AddDate(1, 0, 0))
	assert.True(t, ok)
	assert.Equal(t, GranularityQuarterly, g)

	_, ok = ParseGranularity("fortnightly", base, base)
	assert.False(t, ok)
}

func TestBucketOfISOWeek(t *testing.T) {
	// 2025-01-01 is a Wednesday in ISO week 2025-W01, which starts
	// Monday 2024-12-30.
	ts := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	b := bucketOf(ts, GranularityWeekly, time.January)

	assert.Equal(t, "2025-W01", b.Label)
	assert.True(t, b.Start.Equal(time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC)))
	assert.True(t, b.End.Equal(time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)))
}

func TestBucketOfCalendarQuarter(t *testing.T) {
	ts := time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC)
	b := bucketOf(ts, GranularityQuarterly, time.January)

	assert.Equal(t, "2025-Q2", b.Label)
	assert.True(t, b.Start.Equal(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, b.End.Equal(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)))
}

func TestBucketOfFiscalYear(t *testing.T) {
	// Fiscal year starting in April: March 2025 belongs to FY2025
	// (April 2024 through March 2025).
	ts := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	b := bucketOf(ts, GranularityYearly, time.April)

	assert.Equal(t, "FY2025", b.Label)
	assert.True(t, b.Start.Equal(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, b.End.Equal(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)))
}

func TestBucketOfFiscalQuarter(t *testing.T) {
	// With an April fiscal start, May sits in fiscal Q1.
	ts := time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC)
	b := bucketOf(ts, GranularityQuarterly, time.April)

	assert.Equal(t, "FY2026-Q1", b.Label)
	assert.True(t, b.Start.Equal(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)))
}

func TestBucketClipToWindow(t *testing.T) {
	ts := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	b := bucketOf(ts, GranularityMonthly, time.January)

	start := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)
	lo, hi := b.clip(start, end)

	assert.True(t, lo.Equal(start))
	assert.True(t, hi.Equal(end))
}
