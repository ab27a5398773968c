package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/flexwatch/internal/engine"
)

var (
	ErrInvalidWindow      = errors.New("invalid_window")
	ErrUnknownGranularity = errors.New("unknown_granularity")
)

// AggregateRequest is the external form of an aggregation query.
type AggregateRequest struct {
	Start       time.Time
	End         time.Time
	Granularity string
	Features    []string
	Companies   []string
	Users       []string
}

// OveruseRequest selects one (feature, company) series for violation
// analysis.
type OveruseRequest struct {
	Start   time.Time
	End     time.Time
	Feature string
	Company string
}

// OveruseResponse wraps the report; Report is nil when no sample
// exceeded capacity.
type OveruseResponse struct {
	Report *engine.OveruseReport `json:"report"`
}

// IntervalResponse is the estimated nominal sampling interval for a
// series.
type IntervalResponse struct {
	IntervalMinutes   float64 `json:"interval_minutes"`
	Fallback          bool    `json:"fallback"`
	ExcludedMalformed int     `json:"excluded_malformed"`
}

// DateRangeResponse is the observed snapshot time span.
type DateRangeResponse struct {
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}

// StatsResponse carries whole-window per-series summaries.
type StatsResponse struct {
	Stats []engine.FeatureStat `json:"stats"`
	Meta  engine.Meta          `json:"meta"`
}

// Service is the query surface over stored snapshots and policies.
type Service interface {
	Aggregate(ctx context.Context, req AggregateRequest) (*engine.Result, error)
	DetectOveruse(ctx context.Context, req OveruseRequest) (*OveruseResponse, error)
	EstimateInterval(ctx context.Context, req AggregateRequest) (*IntervalResponse, error)
	FeatureStats(ctx context.Context, req AggregateRequest) (*StatsResponse, error)
	Features(ctx context.Context) ([]string, error)
	Companies(ctx context.Context) ([]string, error)
	Users(ctx context.Context, feature string) ([]string, error)
	DateRange(ctx context.Context) (*DateRangeResponse, error)
}
