package engine

import "time"

// Config carries the engine's tunables. Zero values fall back to the
// documented defaults via withDefaults, so Config{} is usable as-is.
//
// EffectiveUsePct and PartialUsePct are the period-utilization
// classification thresholds: at or above EffectiveUsePct the verdict
// is EFFECTIVE_USE, at or above PartialUsePct it is PARTIAL_USE, below
// it UNDERUTILIZED. Missing capacity is always NO_POLICY.
type Config struct {
	DefaultInterval      time.Duration
	MinInterval          time.Duration
	MaxInterval          time.Duration
	GapToleranceFactor   float64
	EffectiveUsePct      float64
	PartialUsePct        float64
	FiscalYearStartMonth time.Month
}

func DefaultConfig() Config {
	return Config{
		DefaultInterval:      5 * time.Minute,
		MinInterval:          time.Minute,
		MaxInterval:          time.Hour,
		GapToleranceFactor:   2.5,
		EffectiveUsePct:      60,
		PartialUsePct:        20,
		FiscalYearStartMonth: time.January,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = defaults.DefaultInterval
	}
	if c.MinInterval <= 0 {
		c.MinInterval = defaults.MinInterval
	}
	if c.MaxInterval <= 0 || c.MaxInterval < c.MinInterval {
		c.MaxInterval = defaults.MaxInterval
	}
	if c.GapToleranceFactor < 1 {
		c.GapToleranceFactor = defaults.GapToleranceFactor
	}
	if c.EffectiveUsePct <= 0 {
		c.EffectiveUsePct = defaults.EffectiveUsePct
	}
	if c.PartialUsePct <= 0 || c.PartialUsePct >= c.EffectiveUsePct {
		c.PartialUsePct = defaults.PartialUsePct
	}
	if c.FiscalYearStartMonth < time.January || c.FiscalYearStartMonth > time.December {
		c.FiscalYearStartMonth = defaults.FiscalYearStartMonth
	}
	return c
}
