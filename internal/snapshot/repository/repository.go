package repository

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/flexwatch/internal/snapshot/domain"
	"github.com/smallbiznis/flexwatch/pkg/db"
)

type snapshotRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

// New returns the gorm-backed snapshot repository.
func New(db *gorm.DB, log *zap.Logger) domain.Repository {
	return &snapshotRepository{
		db:  db,
		log: log.Named("snapshot.repository"),
	}
}

func (r *snapshotRepository) Insert(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).CreateInBatches(records, 500).Error
	if db.IsDuplicateKeyErr(err) {
		// Concurrent sweeps can race on the same source file; the
		// losing insert is a no-op, not a failure.
		r.log.Warn("insert skipped duplicate records", zap.Error(err))
		return nil
	}
	return err
}

func (r *snapshotRepository) List(ctx context.Context, f domain.Filter) ([]domain.Record, error) {
	if !f.Start.IsZero() && !f.End.IsZero() && f.End.Before(f.Start) {
		return nil, domain.ErrInvalidTimeRange
	}

	q := r.db.WithContext(ctx).Model(&domain.Record{})
	if !f.Start.IsZero() {
		q = q.Where("timestamp >= ?", f.Start)
	}
	if !f.End.IsZero() {
		q = q.Where("timestamp <= ?", f.End)
	}
	if len(f.Features) > 0 {
		q = q.Where("feature IN ?", f.Features)
	}
	if len(f.Users) > 0 {
		q = q.Where("username IN ?", f.Users)
	}

	var records []domain.Record
	if err := q.Order("timestamp ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *snapshotRepository) SourceFiles(ctx context.Context) (map[string]struct{}, error) {
	var files []string
	err := r.db.WithContext(ctx).
		Raw("SELECT DISTINCT source_file FROM lmstat_snapshots").
		Scan(&files).Error
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		seen[f] = struct{}{}
	}
	return seen, nil
}

func (r *snapshotRepository) DistinctFeatures(ctx context.Context) ([]string, error) {
	var features []string
	err := r.db.WithContext(ctx).
		Raw("SELECT DISTINCT feature FROM lmstat_snapshots ORDER BY feature").
		Scan(&features).Error
	return features, err
}

func (r *snapshotRepository) DistinctUsers(ctx context.Context, feature string) ([]string, error) {
	var users []string
	q := r.db.WithContext(ctx).Model(&domain.Record{}).Distinct("username").Order("username")
	if feature != "" {
		q = q.Where("feature = ?", feature)
	}
	err := q.Pluck("username", &users).Error
	return users, err
}

func (r *snapshotRepository) DateRange(ctx context.Context) (time.Time, time.Time, error) {
	var first, last domain.Record
	err := r.db.WithContext(ctx).Order("timestamp ASC").Limit(1).Find(&first).Error
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if first.ID == 0 {
		return time.Time{}, time.Time{}, domain.ErrNoRecords
	}
	if err := r.db.WithContext(ctx).Order("timestamp DESC").Limit(1).Find(&last).Error; err != nil {
		return time.Time{}, time.Time{}, err
	}
	return first.Timestamp, last.Timestamp, nil
}
