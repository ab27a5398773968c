package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrNoOptionsFile = errors.New("no_options_file")
	ErrEmptyPolicy   = errors.New("empty_policy")
)

// Rule is one (group, feature, member) capacity row parsed from a
// FlexLM options file. A GROUP with N members and a MAX for feature F
// produces N rows sharing the same PolicyMax.
type Rule struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	GroupName  string       `json:"group_name" gorm:"index:idx_policy_group;not null"`
	Company    string       `json:"company" gorm:"index:idx_policy_company;not null"`
	Feature    string       `json:"feature" gorm:"index:idx_policy_feature;not null"`
	User       string       `json:"user" gorm:"column:username;not null"`
	PolicyMax  int          `json:"policy_max" gorm:"not null"`
	SourceFile string       `json:"source_file"`
	CreatedAt  time.Time    `json:"created_at"`
}

func (Rule) TableName() string { return "license_policies" }

// Repository is the persistence boundary for policy rules. Reload
// replaces the whole rule set for a source file in one transaction.
type Repository interface {
	Replace(ctx context.Context, sourceFile string, rules []Rule) error
	ListAll(ctx context.Context) ([]Rule, error)
}
