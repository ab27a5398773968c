package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EngineConfig holds the aggregation engine tunables. Every value here is
// policy, not mechanism: thresholds and intervals the system owner may adjust
// without a redeploy.
type EngineConfig struct {
	// DefaultIntervalMinutes is used when a series has fewer than two
	// distinct instants and the sampling interval cannot be estimated.
	DefaultIntervalMinutes int `mapstructure:"defaultIntervalMinutes"`

	// MinIntervalMinutes / MaxIntervalMinutes clamp the estimated interval.
	MinIntervalMinutes int `mapstructure:"minIntervalMinutes"`
	MaxIntervalMinutes int `mapstructure:"maxIntervalMinutes"`

	// GapToleranceFactor multiplies the nominal interval to decide whether
	// two consecutive samples belong to the same session.
	GapToleranceFactor float64 `mapstructure:"gapToleranceFactor"`

	// EffectiveUsePct and PartialUsePct are the period-utilization
	// classification thresholds (status EFFECTIVE_USE / PARTIAL_USE).
	EffectiveUsePct float64 `mapstructure:"effectiveUsePct"`
	PartialUsePct   float64 `mapstructure:"partialUsePct"`

	// FiscalYearStartMonth shifts yearly buckets (1 = calendar January).
	FiscalYearStartMonth int `mapstructure:"fiscalYearStartMonth"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultIntervalMinutes: 5,
		MinIntervalMinutes:     1,
		MaxIntervalMinutes:     60,
		GapToleranceFactor:     2.5,
		EffectiveUsePct:        60,
		PartialUsePct:          20,
		FiscalYearStartMonth:   1,
	}
}

// EngineConfigHolder exposes the current EngineConfig with hot reload.
type EngineConfigHolder struct {
	current atomic.Value // holds EngineConfig
}

func NewEngineConfigHolder() (*EngineConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("engine")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/flexwatch/config")
	v.AddConfigPath("/etc/flexwatch")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FLEXWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultEngineConfig()
	v.SetDefault("engine.defaultIntervalMinutes", defaults.DefaultIntervalMinutes)
	v.SetDefault("engine.minIntervalMinutes", defaults.MinIntervalMinutes)
	v.SetDefault("engine.maxIntervalMinutes", defaults.MaxIntervalMinutes)
	v.SetDefault("engine.gapToleranceFactor", defaults.GapToleranceFactor)
	v.SetDefault("engine.effectiveUsePct", defaults.EffectiveUsePct)
	v.SetDefault("engine.partialUsePct", defaults.PartialUsePct)
	v.SetDefault("engine.fiscalYearStartMonth", defaults.FiscalYearStartMonth)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg EngineConfig
	if err := v.UnmarshalKey("engine", &cfg); err != nil {
		return nil, err
	}
	if err := validateEngineConfig(cfg); err != nil {
		return nil, err
	}

	holder := &EngineConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated EngineConfig
		if err := v.UnmarshalKey("engine", &updated); err != nil {
			log.Printf("[engine-config] reload failed: %v", err)
			return
		}
		if err := validateEngineConfig(updated); err != nil {
			log.Printf("[engine-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[engine-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *EngineConfigHolder) Get() EngineConfig {
	return h.current.Load().(EngineConfig)
}

func validateEngineConfig(cfg EngineConfig) error {
	if cfg.DefaultIntervalMinutes <= 0 {
		return errors.New("engine.defaultIntervalMinutes must be positive")
	}
	if cfg.MinIntervalMinutes <= 0 || cfg.MaxIntervalMinutes < cfg.MinIntervalMinutes {
		return errors.New("engine interval clamp range is invalid")
	}
	if cfg.GapToleranceFactor < 1 {
		return errors.New("engine.gapToleranceFactor must be >= 1")
	}
	if cfg.PartialUsePct <= 0 || cfg.EffectiveUsePct <= cfg.PartialUsePct {
		return errors.New("engine utilization thresholds must satisfy 0 < partial < effective")
	}
	if cfg.FiscalYearStartMonth < 1 || cfg.FiscalYearStartMonth > 12 {
		return errors.New("engine.fiscalYearStartMonth must be within 1..12")
	}
	return nil
}
