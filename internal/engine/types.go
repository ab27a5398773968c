package engine

import "time"

// Record is one observed checkout as supplied by the calling layer.
// The timestamp is still in its external string encoding; Aggregate
// and DetectOveruse normalize it and exclude malformed rows, counting
// them in Meta rather than failing.
type Record struct {
	Timestamp string
	Feature   string
	User      string
	Host      string
}

// PolicyRecord is one capacity rule: a group of users allowed at most
// MaxConcurrent simultaneous checkouts of Feature. Company may be left
// empty, in which case it is derived from the group name.
type PolicyRecord struct {
	Group         string
	Company       string
	Feature       string
	MaxConcurrent int
	Members       []string
}

// Filter restricts which records participate in a computation. Empty
// sets mean no restriction on that dimension.
type Filter struct {
	Features  map[string]struct{}
	Companies map[string]struct{}
	Users     map[string]struct{}
}

// NewFilter builds a Filter from plain slices.
func NewFilter(features, companies, users []string) Filter {
	return Filter{
		Features:  toSet(features),
		Companies: toSet(companies),
		Users:     toSet(users),
	}
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func (f Filter) keepFeature(feature string) bool {
	if len(f.Features) == 0 {
		return true
	}
	_, ok := f.Features[feature]
	return ok
}

func (f Filter) keepCompany(company string) bool {
	if len(f.Companies) == 0 {
		return true
	}
	_, ok := f.Companies[company]
	return ok
}

func (f Filter) keepUser(user string) bool {
	if len(f.Users) == 0 {
		return true
	}
	_, ok := f.Users[user]
	return ok
}

// Granularity is an aggregation bucket width.
type Granularity string

const (
	GranularityFiveMinute Granularity = "5min"
	GranularityHourly     Granularity = "hourly"
	GranularityDaily      Granularity = "daily"
	GranularityWeekly     Granularity = "weekly"
	GranularityMonthly    Granularity = "monthly"
	GranularityQuarterly  Granularity = "quarterly"
	GranularityYearly     Granularity = "yearly"
)

// UtilizationStatus classifies period utilization against capacity.
type UtilizationStatus string

const (
	StatusNoPolicy      UtilizationStatus = "NO_POLICY"
	StatusEffectiveUse  UtilizationStatus = "EFFECTIVE_USE"
	StatusPartialUse    UtilizationStatus = "PARTIAL_USE"
	StatusUnderutilized UtilizationStatus = "UNDERUTILIZED"
)

// Row is one (period, company, feature) aggregation result. Field
// names are a stable contract consumed by reporting collaborators.
type Row struct {
	Period            string            `json:"period"`
	Company           string            `json:"company"`
	Feature           string            `json:"feature"`
	UsageCount        int               `json:"usage_count"`
	ActiveUsers       int               `json:"active_users"`
	ActiveSnapshots   int               `json:"active_snapshots"`
	UsageMinutes      float64           `json:"usage_minutes"`
	UsageHours        float64           `json:"usage_hours"`
	PeakConcurrent    int               `json:"peak_concurrent"`
	AvgConcurrent     float64           `json:"avg_concurrent"`
	PolicyMax         int               `json:"policy_max"`
	ActiveUtilization float64           `json:"active_utilization_pct"`
	PeriodUtilization float64           `json:"period_utilization_pct"`
	UtilizationStatus UtilizationStatus `json:"utilization_status"`
}

// Meta reports every degradation applied while computing a result.
// Exclusions and fallbacks are surfaced here, never hidden.
type Meta struct {
	ExcludedMalformed int      `json:"excluded_malformed"`
	IntervalFallback  bool     `json:"interval_fallback"`
	IntervalMinutes   float64  `json:"interval_minutes"`
	Warnings          []string `json:"warnings,omitempty"`
}

// Result is a full aggregation response. Granularity echoes the
// resolution actually used, which callers need when it was
// auto-selected from the window span.
type Result struct {
	Rows        []Row       `json:"rows"`
	Meta        Meta        `json:"meta"`
	Granularity Granularity `json:"granularity"`
}

// Sample is one derived concurrency observation: how many distinct
// users held Feature within Company at Instant.
type Sample struct {
	Instant time.Time
	Company string
	Feature string
	Count   int
}

// Session is a continuous span of usage inferred from consecutive
// samples. Duration credits the final interval's unobserved tail:
// End − Start + one nominal interval.
type Session struct {
	Start    time.Time
	End      time.Time
	Duration time.Duration
}

// OveruseReport characterizes capacity violations for one
// (feature, company) within a window. Nil report means no violation.
type OveruseReport struct {
	Feature            string        `json:"feature"`
	Company            string        `json:"company"`
	PolicyMax          int           `json:"policy_max"`
	PeakConcurrent     int           `json:"peak_concurrent"`
	MaxExcess          int           `json:"max_excess"`
	OverSnapshotCount  int           `json:"over_snapshot_count"`
	TotalSnapshotCount int           `json:"total_snapshot_count"`
	OverPct            float64       `json:"over_pct"`
	EstimatedDuration  time.Duration `json:"estimated_overuse_duration"`
}

// AggregateRequest is the input to Aggregate.
type AggregateRequest struct {
	Records     []Record
	Policies    *PolicySet
	Start       time.Time
	End         time.Time
	Granularity Granularity
	Filter      Filter
}
