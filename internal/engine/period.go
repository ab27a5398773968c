package engine

import (
	"fmt"
	"time"
)

// bucket is one aggregation period: [Start, End) with a stable label.
type bucket struct {
	Start time.Time
	End   time.Time
	Label string
}

// bucketOf places an instant into its period for the given
// granularity. Weeks are ISO weeks (Monday start). Quarters are
// calendar quarters unless a fiscal start month is configured, in
// which case both quarters and years align to it.
func bucketOf(ts time.Time, g Granularity, fiscalStart time.Month) bucket {
	ts = ts.UTC()
	switch g {
	case GranularityFiveMinute:
		start := ts.Truncate(5 * time.Minute)
		return bucket{
			Start: start,
			End:   start.Add(5 * time.Minute),
			Label: start.Format("2006-01-02 15:04"),
		}
	case GranularityHourly:
		start := ts.Truncate(time.Hour)
		return bucket{
			Start: start,
			End:   start.Add(time.Hour),
			Label: start.Format("2006-01-02 15:00"),
		}
	case GranularityDaily:
		start := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		return bucket{
			Start: start,
			End:   start.AddDate(0, 0, 1),
			Label: start.Format("2006-01-02"),
		}
	case GranularityWeekly:
		start := isoWeekStart(ts)
		year, week := ts.ISOWeek()
		return bucket{
			Start: start,
			End:   start.AddDate(0, 0, 7),
			Label: fmt.Sprintf("%d-W%02d", year, week),
		}
	case GranularityMonthly:
		start := time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
		return bucket{
			Start: start,
			End:   start.AddDate(0, 1, 0),
			Label: start.Format("2006-01"),
		}
	case GranularityQuarterly:
		return quarterOf(ts, fiscalStart)
	case GranularityYearly:
		return yearOf(ts, fiscalStart)
	default:
		return bucketOf(ts, GranularityDaily, fiscalStart)
	}
}

func isoWeekStart(ts time.Time) time.Time {
	day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return day.AddDate(0, 0, 1-weekday)
}

func quarterOf(ts time.Time, fiscalStart time.Month) bucket {
	offset := (int(ts.Month()) - int(fiscalStart) + 12) % 12
	quarter := offset / 3

	startMonth := (int(fiscalStart) - 1 + quarter*3) % 12
	startYear := ts.Year()
	if int(ts.Month())-1 < startMonth {
		startYear--
	}
	start := time.Date(startYear, time.Month(startMonth+1), 1, 0, 0, 0, 0, time.UTC)

	label := fmt.Sprintf("%d-Q%d", start.Year(), start.Month()/3+1)
	if fiscalStart != time.January {
		fy := fiscalYearOf(ts, fiscalStart)
		label = fmt.Sprintf("FY%d-Q%d", fy, quarter+1)
	}
	return bucket{Start: start, End: start.AddDate(0, 3, 0), Label: label}
}

func yearOf(ts time.Time, fiscalStart time.Month) bucket {
	startYear := ts.Year()
	if ts.Month() < fiscalStart {
		startYear--
	}
	start := time.Date(startYear, fiscalStart, 1, 0, 0, 0, 0, time.UTC)

	label := fmt.Sprintf("%d", startYear)
	if fiscalStart != time.January {
		label = fmt.Sprintf("FY%d", startYear+1)
	}
	return bucket{Start: start, End: start.AddDate(1, 0, 0), Label: label}
}

// fiscalYearOf labels a fiscal year by the calendar year it ends in.
func fiscalYearOf(ts time.Time, fiscalStart time.Month) int {
	if ts.Month() >= fiscalStart {
		return ts.Year() + 1
	}
	return ts.Year()
}

// clip bounds a bucket to the query window for denominator purposes.
// A month bucket queried for its first week contributes only that
// week's hours to period utilization.
func (b bucket) clip(start, end time.Time) (time.Time, time.Time) {
	lo, hi := b.Start, b.End
	if !start.IsZero() && start.After(lo) {
		lo = start
	}
	if !end.IsZero() && end.Before(hi) {
		hi = end
	}
	return lo, hi
}
