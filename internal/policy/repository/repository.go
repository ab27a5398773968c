package repository

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/flexwatch/internal/policy/domain"
)

type policyRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

// New returns the gorm-backed policy repository.
func New(db *gorm.DB, log *zap.Logger) domain.Repository {
	return &policyRepository{
		db:  db,
		log: log.Named("policy.repository"),
	}
}

// Replace swaps the rule set for one source file atomically. A policy
// is a versioned snapshot, never merged incrementally.
func (r *policyRepository) Replace(ctx context.Context, sourceFile string, rules []domain.Rule) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM license_policies WHERE source_file = ?", sourceFile).Error; err != nil {
			return err
		}
		if len(rules) == 0 {
			return nil
		}
		return tx.CreateInBatches(rules, 500).Error
	})
}

func (r *policyRepository) ListAll(ctx context.Context) ([]domain.Rule, error) {
	var rules []domain.Rule
	err := r.db.WithContext(ctx).
		Order("group_name, feature, username").
		Find(&rules).Error
	return rules, err
}
