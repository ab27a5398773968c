package engine

import "time"

// ReconstructSessions merges sorted distinct instants of one series
// into continuous sessions. Consecutive instants belong to the same
// session while their gap stays within tolerance (GapToleranceFactor
// times the nominal interval). Every session's duration credits the
// final sampled interval's unobserved tail: End − Start + nominal.
// A single-instant series yields one session of exactly one nominal
// interval.
func ReconstructSessions(instants []time.Time, nominal time.Duration, cfg Config) []Session {
	cfg = cfg.withDefaults()
	if nominal <= 0 {
		nominal = cfg.DefaultInterval
	}
	tolerance := time.Duration(float64(nominal) * cfg.GapToleranceFactor)

	distinct := distinctSorted(instants)
	if len(distinct) == 0 {
		return nil
	}

	var sessions []Session
	start := distinct[0]
	end := distinct[0]

	flush := func() {
		sessions = append(sessions, Session{
			Start:    start,
			End:      end,
			Duration: end.Sub(start) + nominal,
		})
	}

	for _, ts := range distinct[1:] {
		if ts.Sub(end) <= tolerance {
			end = ts
			continue
		}
		flush()
		start, end = ts, ts
	}
	flush()

	return sessions
}

// TotalUsage sums session durations.
func TotalUsage(sessions []Session) time.Duration {
	var total time.Duration
	for _, s := range sessions {
		total += s.Duration
	}
	return total
}
