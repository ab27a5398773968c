package engine

import "time"

// DetectOveruse flags sampled instants where concurrency for one
// (feature, company) exceeded policy capacity within the window.
// Violations are counted per discrete sample; merging them into
// continuous spans would change the reported counts and is
// deliberately not done. Returns nil when no rule applies or no
// sample exceeds capacity.
func (e *Engine) DetectOveruse(records []Record, policies *PolicySet, start, end time.Time, feature, company string) *OveruseReport {
	filter := NewFilter([]string{feature}, []string{company}, nil)
	rows, _ := normalize(records, policies, start, end, filter)
	samples := CountConcurrency(rows)

	max, ok := policies.MaxConcurrent(company, feature)
	if !ok || len(samples) == 0 {
		return nil
	}

	instants := make([]time.Time, 0, len(samples))
	peak := 0
	over := 0
	for _, s := range samples {
		instants = append(instants, s.Instant)
		if s.Count > peak {
			peak = s.Count
		}
		if s.Count > max {
			over++
		}
	}
	if over == 0 {
		return nil
	}

	nominal, _ := EstimateInterval(instants, e.cfg)

	return &OveruseReport{
		Feature:            feature,
		Company:            company,
		PolicyMax:          max,
		PeakConcurrent:     peak,
		MaxExcess:          peak - max,
		OverSnapshotCount:  over,
		TotalSnapshotCount: len(samples),
		OverPct:            round2(float64(over) / float64(len(samples)) * 100),
		EstimatedDuration:  time.Duration(over) * nominal,
	}
}

// EstimateSeriesInterval exposes interval estimation over raw records
// for one optional (feature, company) series.
func (e *Engine) EstimateSeriesInterval(records []Record, policies *PolicySet, start, end time.Time, filter Filter) (time.Duration, bool, int) {
	rows, excluded := normalize(records, policies, start, end, filter)
	instants := make([]time.Time, 0, len(rows))
	for _, row := range rows {
		instants = append(instants, row.instant)
	}
	nominal, fallback := EstimateInterval(instants, e.cfg)
	return nominal, fallback, excluded
}
