package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkouts(feature string, at time.Time, users ...string) []Record {
	out := make([]Record, 0, len(users))
	for _, user := range users {
		out = append(out, Record{
			Timestamp: at.Format("2006-01-02 15:04:05"),
			Feature:   feature,
			User:      user,
			Host:      "ws01",
		})
	}
	return out
}

func TestAggregateIdempotence(t *testing.T) {
	base := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	var records []Record
	for i := 0; i < 12; i++ {
		records = append(records, checkouts("simulator", base.Add(time.Duration(i)*5*time.Minute), "acme-aaaa", "acme-bbbb")...)
	}
	policies := NewPolicySet([]PolicyRecord{
		{Group: "acme_eda", Feature: "simulator", MaxConcurrent: 4},
	})

	req := AggregateRequest{
		Records:     records,
		Policies:    policies,
		Start:       base,
		End:         base.Add(2 * time.Hour),
		Granularity: GranularityHourly,
	}

	eng := New(Config{})
	first := eng.Aggregate(req)
	second := eng.Aggregate(req)

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first.Rows)
}

func TestAggregateConservationAcrossBuckets(t *testing.T) {
	base := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	var records []Record
	for i := 0; i < 100; i++ {
		at := base.Add(time.Duration(i) * 17 * time.Minute)
		records = append(records, checkouts("simulator", at, "acme-aaaa", "acme-bbbb", "acme-cccc")...)
	}

	eng := New(Config{})
	window := AggregateRequest{
		Records:  records,
		Policies: NewPolicySet(nil),
		Start:    base,
		End:      base.AddDate(0, 0, 2),
	}

	fine := window
	fine.Granularity = GranularityHourly
	coarse := window
	coarse.Granularity = GranularityDaily

	sum := func(rows []Row) int {
		total := 0
		for _, r := range rows {
			total += r.UsageCount
		}
		return total
	}

	fineResult := eng.Aggregate(fine)
	coarseResult := eng.Aggregate(coarse)
	assert.Equal(t, sum(coarseResult.Rows), sum(fineResult.Rows))
	assert.Equal(t, len(records), sum(coarseResult.Rows))
}

func TestAggregateRowOrderIsDeterministic(t *testing.T) {
	base := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	records := checkouts("viewer", base.Add(time.Hour), "globex-aaaa")
	records = append(records, checkouts("simulator", base, "acme-aaaa")...)
	records = append(records, checkouts("viewer", base, "acme-aaaa")...)

	result := New(Config{}).Aggregate(AggregateRequest{
		Records:     records,
		Policies:    NewPolicySet(nil),
		Start:       base,
		End:         base.Add(2 * time.Hour),
		Granularity: GranularityHourly,
	})

	require.Len(t, result.Rows, 3)
	assert.Equal(t, "simulator", result.Rows[0].Feature)
	assert.Equal(t, "viewer", result.Rows[1].Feature)
	assert.Equal(t, "globex", result.Rows[2].Company)
}

func TestAggregateReportsGranularityUsed(t *testing.T) {
	base := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	records := checkouts("simulator", base, "acme-aaaa")

	explicit := New(Config{}).Aggregate(AggregateRequest{
		Records:     records,
		Policies:    NewPolicySet(nil),
		Start:       base,
		End:         base.Add(time.Hour),
		Granularity: GranularityDaily,
	})
	assert.Equal(t, GranularityDaily, explicit.Granularity)

	// A 60-day window auto-selects daily resolution.
	auto := New(Config{}).Aggregate(AggregateRequest{
		Records:  records,
		Policies: NewPolicySet(nil),
		Start:    base,
		End:      base.AddDate(0, 0, 60),
	})
	assert.Equal(t, GranularityDaily, auto.Granularity)
}

func TestAggregateExcludesMalformedTimestamps(t *testing.T) {
	base := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	records := checkouts("simulator", base, "acme-aaaa")
	records = append(records, Record{Timestamp: "garbage", Feature: "simulator", User: "acme-bbbb"})

	result := New(Config{}).Aggregate(AggregateRequest{
		Records:     records,
		Policies:    NewPolicySet(nil),
		Start:       base.Add(-time.Hour),
		End:         base.Add(time.Hour),
		Granularity: GranularityHourly,
	})

	assert.Equal(t, 1, result.Meta.ExcludedMalformed)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, 1, result.Rows[0].UsageCount)
}

func TestPeriodUtilizationSevenDayWindow(t *testing.T) {
	// 84 usage hours against 10 seats over a 7-day window:
	// 84 / (10 × 168) = 5% and UNDERUTILIZED.
	base := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	var records []Record
	for i := 0; i < 84; i++ {
		records = append(records, checkouts("simulator", base.Add(time.Duration(i)*time.Hour), "acme-aaaa")...)
	}
	policies := NewPolicySet([]PolicyRecord{
		{Group: "acme_eda", Feature: "simulator", MaxConcurrent: 10},
	})

	result := New(Config{}).Aggregate(AggregateRequest{
		Records:     records,
		Policies:    policies,
		Start:       base,
		End:         base.AddDate(0, 0, 7),
		Granularity: GranularityWeekly,
	})

	require.Len(t, result.Rows, 1)
	row := result.Rows[0]
	assert.Equal(t, 10, row.PolicyMax)
	assert.InDelta(t, 84.0, row.UsageHours, 0.01)
	assert.InDelta(t, 5.0, row.PeriodUtilization, 0.01)
	assert.Equal(t, StatusUnderutilized, row.UtilizationStatus)
}

func TestUtilizationStatusThresholds(t *testing.T) {
	base := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	policies := NewPolicySet([]PolicyRecord{
		{Group: "acme_eda", Feature: "simulator", MaxConcurrent: 1},
	})
	eng := New(Config{})

	run := func(activeHours int) Row {
		var records []Record
		for i := 0; i < activeHours; i++ {
			records = append(records, checkouts("simulator", base.Add(time.Duration(i)*time.Hour), "acme-aaaa")...)
		}
		result := eng.Aggregate(AggregateRequest{
			Records:     records,
			Policies:    policies,
			Start:       base,
			End:         base.AddDate(0, 0, 1),
			Granularity: GranularityDaily,
		})
		require.Len(t, result.Rows, 1)
		return result.Rows[0]
	}

	// 16 of 24 hours is 66%, 8 is 33%, 2 is 8%.
	assert.Equal(t, StatusEffectiveUse, run(16).UtilizationStatus)
	assert.Equal(t, StatusPartialUse, run(8).UtilizationStatus)
	assert.Equal(t, StatusUnderutilized, run(2).UtilizationStatus)
}

func TestNoPolicyStatus(t *testing.T) {
	base := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)

	result := New(Config{}).Aggregate(AggregateRequest{
		Records:     checkouts("simulator", base, "acme-aaaa"),
		Policies:    NewPolicySet(nil),
		Start:       base,
		End:         base.Add(time.Hour),
		Granularity: GranularityHourly,
	})

	require.Len(t, result.Rows, 1)
	assert.Equal(t, StatusNoPolicy, result.Rows[0].UtilizationStatus)
	assert.Zero(t, result.Rows[0].PolicyMax)
	assert.Zero(t, result.Rows[0].ActiveUtilization)
	assert.Zero(t, result.Rows[0].PeriodUtilization)
}

func TestAggregateFilterRestrictsDimensions(t *testing.T) {
	base := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	records := checkouts("simulator", base, "acme-aaaa", "globex-bbbb")
	records = append(records, checkouts("viewer", base, "acme-aaaa")...)

	result := New(Config{}).Aggregate(AggregateRequest{
		Records:     records,
		Policies:    NewPolicySet(nil),
		Start:       base.Add(-time.Hour),
		End:         base.Add(time.Hour),
		Granularity: GranularityHourly,
		Filter:      NewFilter([]string{"simulator"}, []string{"acme"}, nil),
	})

	require.Len(t, result.Rows, 1)
	assert.Equal(t, "acme", result.Rows[0].Company)
	assert.Equal(t, "simulator", result.Rows[0].Feature)
	assert.Equal(t, 1, result.Rows[0].ActiveUsers)
}

func TestDistinctUsersNotDoubleCounted(t *testing.T) {
	// The same user re-appearing across adjacent samples must not
	// inflate peak concurrency.
	base := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	var records []Record
	for i := 0; i < 6; i++ {
		records = append(records, checkouts("simulator", base.Add(time.Duration(i)*5*time.Minute), "acme-aaaa")...)
	}

	result := New(Config{}).Aggregate(AggregateRequest{
		Records:     records,
		Policies:    NewPolicySet(nil),
		Start:       base,
		End:         base.Add(time.Hour),
		Granularity: GranularityHourly,
	})

	require.Len(t, result.Rows, 1)
	assert.Equal(t, 1, result.Rows[0].PeakConcurrent)
	assert.Equal(t, 1, result.Rows[0].ActiveUsers)
	assert.Equal(t, 6, result.Rows[0].ActiveSnapshots)
}

func TestAggregateSurfacesPolicyWarnings(t *testing.T) {
	base := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	policies := NewPolicySet([]PolicyRecord{
		{Group: "acme_eda", Feature: "simulator", MaxConcurrent: 5},
		{Group: "acme_asic", Feature: "simulator", MaxConcurrent: 8},
	})

	result := New(Config{}).Aggregate(AggregateRequest{
		Records:     checkouts("simulator", base, "acme-aaaa"),
		Policies:    policies,
		Start:       base,
		End:         base.Add(time.Hour),
		Granularity: GranularityHourly,
	})

	assert.NotEmpty(t, result.Meta.Warnings)
}

func TestAggregateMetaReportsIntervalFallback(t *testing.T) {
	base := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)

	result := New(Config{}).Aggregate(AggregateRequest{
		Records:     checkouts("simulator", base, "acme-aaaa"),
		Policies:    NewPolicySet(nil),
		Start:       base,
		End:         base.Add(time.Hour),
		Granularity: GranularityHourly,
	})

	assert.True(t, result.Meta.IntervalFallback)
	assert.InDelta(t, 5.0, result.Meta.IntervalMinutes, 0.01)
}

func BenchmarkAggregateMonth(b *testing.B) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var records []Record
	for day := 0; day < 30; day++ {
		for slot := 0; slot < 96; slot++ {
			at := base.AddDate(0, 0, day).Add(time.Duration(slot) * 15 * time.Minute)
			records = append(records, checkouts("simulator", at,
				"acme-aaaa", "acme-bbbb", fmt.Sprintf("globex-%04d", slot%7))...)
		}
	}
	policies := NewPolicySet([]PolicyRecord{
		{Group: "acme_eda", Feature: "simulator", MaxConcurrent: 10},
	})
	eng := New(Config{})
	req := AggregateRequest{
		Records:     records,
		Policies:    policies,
		Start:       base,
		End:         base.AddDate(0, 1, 0),
		Granularity: GranularityDaily,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		eng.Aggregate(req)
	}
}
