package engine

import (
	"sort"
	"time"
)

// FeatureStat summarizes one (company, feature) series over a whole
// window, without period bucketing.
type FeatureStat struct {
	Company           string            `json:"company"`
	Feature           string            `json:"feature"`
	TotalCheckouts    int               `json:"total_checkouts"`
	UniqueUsers       int               `json:"unique_users"`
	ActiveDays        int               `json:"active_days"`
	SessionCount      int               `json:"session_count"`
	UsageHours        float64           `json:"usage_hours"`
	PeakConcurrent    int               `json:"peak_concurrent"`
	AvgConcurrent     float64           `json:"avg_concurrent"`
	PolicyMax         int               `json:"policy_max"`
	PeriodUtilization float64           `json:"period_utilization_pct"`
	UtilizationStatus UtilizationStatus `json:"utilization_status"`
}

// FeatureStats computes whole-window summaries per (company, feature).
// The same session and concurrency machinery backs these numbers, so
// they agree with Aggregate over the identical window.
func (e *Engine) FeatureStats(records []Record, policies *PolicySet, start, end time.Time, filter Filter) ([]FeatureStat, Meta) {
	rows, excluded := normalize(records, policies, start, end, filter)
	samples := CountConcurrency(rows)

	meta := Meta{
		ExcludedMalformed: excluded,
		Warnings:          policies.Warnings(),
	}

	type accum struct {
		checkouts int
		users     map[string]struct{}
		days      map[string]struct{}
		instants  map[time.Time]struct{}
		peak      int
	}

	accums := make(map[seriesKey]*accum)
	for _, row := range rows {
		k := seriesKey{company: row.company, feature: row.feature}
		acc, ok := accums[k]
		if !ok {
			acc = &accum{
				users:    make(map[string]struct{}),
				days:     make(map[string]struct{}),
				instants: make(map[time.Time]struct{}),
			}
			accums[k] = acc
		}
		acc.checkouts++
		acc.users[row.user] = struct{}{}
		acc.days[row.instant.Format("2006-01-02")] = struct{}{}
		acc.instants[row.instant] = struct{}{}
	}
	for _, s := range samples {
		k := seriesKey{company: s.Company, feature: s.Feature}
		if acc, ok := accums[k]; ok && s.Count > acc.peak {
			acc.peak = s.Count
		}
	}

	windowHours := end.Sub(start).Hours()

	out := make([]FeatureStat, 0, len(accums))
	for k, acc := range accums {
		instants := make([]time.Time, 0, len(acc.instants))
		for ts := range acc.instants {
			instants = append(instants, ts)
		}
		nominal, _ := EstimateInterval(instants, e.cfg)
		sessions := ReconstructSessions(instants, nominal, e.cfg)
		usage := TotalUsage(sessions)

		stat := FeatureStat{
			Company:        k.company,
			Feature:        k.feature,
			TotalCheckouts: acc.checkouts,
			UniqueUsers:    len(acc.users),
			ActiveDays:     len(acc.days),
			SessionCount:   len(sessions),
			UsageHours:     round2(usage.Hours()),
			PeakConcurrent: acc.peak,
		}
		if windowHours > 0 {
			stat.AvgConcurrent = round2(usage.Hours() / windowHours)
		}

		if max, ok := policies.MaxConcurrent(k.company, k.feature); ok {
			stat.PolicyMax = max
			if windowHours > 0 {
				stat.PeriodUtilization = round2(usage.Hours() / (float64(max) * windowHours) * 100)
			}
			switch {
			case stat.PeriodUtilization >= e.cfg.EffectiveUsePct:
				stat.UtilizationStatus = StatusEffectiveUse
			case stat.PeriodUtilization >= e.cfg.PartialUsePct:
				stat.UtilizationStatus = StatusPartialUse
			default:
				stat.UtilizationStatus = StatusUnderutilized
			}
		} else {
			stat.UtilizationStatus = StatusNoPolicy
		}

		out = append(out, stat)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Company != out[j].Company {
			return out[i].Company < out[j].Company
		}
		return out[i].Feature < out[j].Feature
	})
	return out, meta
}
