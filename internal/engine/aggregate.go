package engine

import (
	"math"
	"sort"
	"time"
)

// Engine computes aggregations over immutable record and policy
// snapshots. It holds tunables only; every method is pure, re-entrant
// and free of I/O. Identical inputs always produce identical results.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults()}
}

type seriesKey struct {
	company string
	feature string
}

type rowKey struct {
	bucket  string
	company string
	feature string
}

type rowAccum struct {
	bucket     bucket
	company    string
	feature    string
	usageCount int
	users      map[string]struct{}
	instants   map[time.Time]struct{}
	peak       int
}

// Aggregate buckets usage into periods and overlays capacity policy.
// Rows come back in deterministic period-then-company-then-feature
// order. Malformed timestamps, interval fallbacks and policy
// ambiguities are reported in Meta, never hidden and never fatal.
func (e *Engine) Aggregate(req AggregateRequest) Result {
	rows, excluded := normalize(req.Records, req.Policies, req.Start, req.End, req.Filter)
	samples := CountConcurrency(rows)

	meta := Meta{
		ExcludedMalformed: excluded,
		Warnings:          req.Policies.Warnings(),
	}

	granularity := req.Granularity
	if granularity == "" {
		granularity = SelectGranularity(req.Start, req.End)
	}

	// Nominal interval per series, with a global estimate as the
	// fallback for series too short to measure.
	allInstants := make([]time.Time, 0, len(rows))
	for _, row := range rows {
		allInstants = append(allInstants, row.instant)
	}
	globalNominal, globalFallback := EstimateInterval(allInstants, e.cfg)
	meta.IntervalFallback = globalFallback
	meta.IntervalMinutes = globalNominal.Minutes()

	seriesInstants := make(map[seriesKey]map[time.Time]struct{})
	for _, row := range rows {
		k := seriesKey{company: row.company, feature: row.feature}
		if seriesInstants[k] == nil {
			seriesInstants[k] = make(map[time.Time]struct{})
		}
		seriesInstants[k][row.instant] = struct{}{}
	}
	seriesNominal := make(map[seriesKey]time.Duration, len(seriesInstants))
	for k, set := range seriesInstants {
		instants := make([]time.Time, 0, len(set))
		for ts := range set {
			instants = append(instants, ts)
		}
		nominal, fallback := EstimateInterval(instants, e.cfg)
		if fallback {
			nominal = globalNominal
		}
		seriesNominal[k] = nominal
	}

	// Group rows into (period, company, feature) accumulators.
	accums := make(map[rowKey]*rowAccum)
	bucketInstants := make(map[rowKey]map[time.Time]struct{})
	for _, row := range rows {
		b := bucketOf(row.instant, granularity, e.cfg.FiscalYearStartMonth)
		k := rowKey{bucket: b.Label, company: row.company, feature: row.feature}
		acc, ok := accums[k]
		if !ok {
			acc = &rowAccum{
				bucket:   b,
				company:  row.company,
				feature:  row.feature,
				users:    make(map[string]struct{}),
				instants: make(map[time.Time]struct{}),
			}
			accums[k] = acc
			bucketInstants[k] = make(map[time.Time]struct{})
		}
		acc.usageCount++
		acc.users[row.user] = struct{}{}
		acc.instants[row.instant] = struct{}{}
		bucketInstants[k][row.instant] = struct{}{}
	}

	for _, s := range samples {
		b := bucketOf(s.Instant, granularity, e.cfg.FiscalYearStartMonth)
		k := rowKey{bucket: b.Label, company: s.Company, feature: s.Feature}
		if acc, ok := accums[k]; ok && s.Count > acc.peak {
			acc.peak = s.Count
		}
	}

	out := make([]Row, 0, len(accums))
	for k, acc := range accums {
		nominal := seriesNominal[seriesKey{company: acc.company, feature: acc.feature}]

		instants := make([]time.Time, 0, len(bucketInstants[k]))
		for ts := range bucketInstants[k] {
			instants = append(instants, ts)
		}
		sessions := ReconstructSessions(instants, nominal, e.cfg)
		usage := TotalUsage(sessions)

		lo, hi := acc.bucket.clip(req.Start, req.End)
		periodHours := hi.Sub(lo).Hours()

		row := Row{
			Period:          acc.bucket.Label,
			Company:         acc.company,
			Feature:         acc.feature,
			UsageCount:      acc.usageCount,
			ActiveUsers:     len(acc.users),
			ActiveSnapshots: len(acc.instants),
			UsageMinutes:    round2(usage.Minutes()),
			UsageHours:      round2(usage.Hours()),
			PeakConcurrent:  acc.peak,
		}
		if periodHours > 0 {
			row.AvgConcurrent = round2(usage.Hours() / periodHours)
		}

		e.classify(&row, req.Policies, periodHours)
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		ba, bb := accums[rowKey{a.Period, a.Company, a.Feature}].bucket, accums[rowKey{b.Period, b.Company, b.Feature}].bucket
		if !ba.Start.Equal(bb.Start) {
			return ba.Start.Before(bb.Start)
		}
		if a.Company != b.Company {
			return a.Company < b.Company
		}
		return a.Feature < b.Feature
	})

	return Result{Rows: out, Meta: meta, Granularity: granularity}
}

// classify overlays policy capacity onto one row and assigns the
// utilization verdict. The two utilization metrics use different
// denominators and are never conflated: active utilization measures
// fullness while in use, period utilization measures fullness across
// the whole period including idle time.
func (e *Engine) classify(row *Row, policies *PolicySet, periodHours float64) {
	max, ok := policies.MaxConcurrent(row.Company, row.Feature)
	if !ok {
		row.UtilizationStatus = StatusNoPolicy
		return
	}
	row.PolicyMax = max

	if row.ActiveSnapshots > 0 {
		avgActive := float64(row.UsageCount) / float64(row.ActiveSnapshots)
		row.ActiveUtilization = round2(avgActive / float64(max) * 100)
	}
	if periodHours > 0 {
		row.PeriodUtilization = round2(row.UsageHours / (float64(max) * periodHours) * 100)
	}

	switch {
	case row.PeriodUtilization >= e.cfg.EffectiveUsePct:
		row.UtilizationStatus = StatusEffectiveUse
	case row.PeriodUtilization >= e.cfg.PartialUsePct:
		row.UtilizationStatus = StatusPartialUse
	default:
		row.UtilizationStatus = StatusUnderutilized
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
