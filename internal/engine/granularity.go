package engine

import "time"

// SelectGranularity picks an aggregation resolution that keeps the
// bucket count manageable for the requested span. Explicit
// granularities bypass this entirely.
func SelectGranularity(start, end time.Time) Granularity {
	span := end.Sub(start)
	switch {
	case span <= 7*24*time.Hour:
		return GranularityFiveMinute
	case span <= 31*24*time.Hour:
		return GranularityHourly
	case span <= 93*24*time.Hour:
		return GranularityDaily
	case span <= 365*24*time.Hour:
		return GranularityWeekly
	default:
		return GranularityMonthly
	}
}

// ParseGranularity maps an external granularity name; empty or "auto"
// defers to SelectGranularity.
func ParseGranularity(s string, start, end time.Time) (Granularity, bool) {
	switch s {
	case "", "auto":
		return SelectGranularity(start, end), true
	case string(GranularityFiveMinute):
		return GranularityFiveMinute, true
	case string(GranularityHourly):
		return GranularityHourly, true
	case string(GranularityDaily):
		return GranularityDaily, true
	case string(GranularityWeekly):
		return GranularityWeekly, true
	case string(GranularityMonthly):
		return GranularityMonthly, true
	case string(GranularityQuarterly):
		return GranularityQuarterly, true
	case string(GranularityYearly):
		return GranularityYearly, true
	default:
		return "", false
	}
}
