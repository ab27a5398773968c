package engine

import (
	"sort"
	"time"
)

// EstimateInterval infers the nominal sampling interval from the
// distinct sorted instants of a series: the median of consecutive
// gaps, clamped to [MinInterval, MaxInterval]. The median resists the
// asymmetric outlier gaps left by missed runs or one-off manual
// samples, which would bias a mean. Fewer than two distinct instants
// returns (DefaultInterval, true): the fallback flag, not an error.
func EstimateInterval(instants []time.Time, cfg Config) (time.Duration, bool) {
	cfg = cfg.withDefaults()

	distinct := distinctSorted(instants)
	if len(distinct) < 2 {
		return cfg.DefaultInterval, true
	}

	gaps := make([]time.Duration, 0, len(distinct)-1)
	for i := 1; i < len(distinct); i++ {
		gaps = append(gaps, distinct[i].Sub(distinct[i-1]))
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })

	var median time.Duration
	mid := len(gaps) / 2
	if len(gaps)%2 == 1 {
		median = gaps[mid]
	} else {
		median = (gaps[mid-1] + gaps[mid]) / 2
	}

	if median < cfg.MinInterval {
		median = cfg.MinInterval
	}
	if median > cfg.MaxInterval {
		median = cfg.MaxInterval
	}
	return median, false
}

func distinctSorted(instants []time.Time) []time.Time {
	if len(instants) == 0 {
		return nil
	}
	sorted := make([]time.Time, len(instants))
	copy(sorted, instants)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	out := sorted[:1]
	for _, ts := range sorted[1:] {
		if !ts.Equal(out[len(out)-1]) {
			out = append(out, ts)
		}
	}
	return out
}
