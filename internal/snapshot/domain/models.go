package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrNoRecords        = errors.New("no_records")
)

// Record is one observed license checkout at one sampled instant.
// Append-only; rows are never updated after ingestion.
type Record struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	Timestamp  time.Time    `json:"timestamp" gorm:"index:idx_snapshot_ts;not null"`
	Feature    string       `json:"feature" gorm:"index:idx_snapshot_feature;not null"`
	User       string       `json:"user" gorm:"column:username;not null"`
	Host       string       `json:"host"`
	SourceFile string       `json:"source_file" gorm:"index:idx_snapshot_source"`
	CreatedAt  time.Time    `json:"created_at"`
}

func (Record) TableName() string { return "lmstat_snapshots" }

// Filter restricts which snapshot rows a query sees. Empty slices
// mean no restriction on that dimension.
type Filter struct {
	Start    time.Time
	End      time.Time
	Features []string
	Users    []string
}

// Repository is the persistence boundary for snapshot records.
type Repository interface {
	Insert(ctx context.Context, records []Record) error
	List(ctx context.Context, f Filter) ([]Record, error)
	SourceFiles(ctx context.Context) (map[string]struct{}, error)
	DistinctFeatures(ctx context.Context) ([]string, error)
	DistinctUsers(ctx context.Context, feature string) ([]string, error)
	DateRange(ctx context.Context) (time.Time, time.Time, error)
}
