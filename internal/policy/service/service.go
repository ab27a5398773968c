package service

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/flexwatch/internal/analytics/cache"
	"github.com/smallbiznis/flexwatch/internal/clock"
	"github.com/smallbiznis/flexwatch/internal/observability/metrics"
	"github.com/smallbiznis/flexwatch/internal/policy/domain"
	"github.com/smallbiznis/flexwatch/internal/policy/ingest"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	Node    *snowflake.Node
	Repo    domain.Repository
	Metrics *metrics.Metrics `optional:"true"`
	Cache   *cache.Cache     `optional:"true"`
}

// Service owns options-file ingestion. Each successful reload replaces
// the stored rule set wholesale and bumps the policy version.
type Service struct {
	log     *zap.Logger
	clock   clock.Clock
	node    *snowflake.Node
	repo    domain.Repository
	metrics *metrics.Metrics
	cache   *cache.Cache

	optionsPath string
	version     atomic.Int64
}

func New(p Params, optionsPath string) *Service {
	return &Service{
		log:         p.Log.Named("policy.service"),
		clock:       p.Clock,
		node:        p.Node,
		repo:        p.Repo,
		metrics:     p.Metrics,
		cache:       p.Cache,
		optionsPath: optionsPath,
	}
}

// Version returns the number of successful reloads since startup.
func (s *Service) Version() int64 { return s.version.Load() }

// ReloadResult summarizes one options-file ingestion.
type ReloadResult struct {
	SourceFile    string `json:"source_file"`
	Groups        int    `json:"groups"`
	Rules         int    `json:"rules"`
	SkippedLines  int    `json:"skipped_lines"`
	PolicyVersion int64  `json:"policy_version"`
}

// Reload re-ingests the configured options file.
func (s *Service) Reload(ctx context.Context) (*ReloadResult, error) {
	if s.optionsPath == "" {
		return nil, domain.ErrNoOptionsFile
	}

	f, err := os.Open(s.optionsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	parsed, err := ingest.Parse(f)
	if err != nil {
		return nil, err
	}

	sourceFile := filepath.Base(s.optionsPath)
	rules := s.buildRules(parsed, sourceFile, s.clock.Now())
	if len(rules) == 0 {
		return nil, domain.ErrEmptyPolicy
	}

	if err := s.repo.Replace(ctx, sourceFile, rules); err != nil {
		return nil, err
	}

	version := s.version.Add(1)
	s.cache.Bump(ctx)
	s.metrics.RecordPolicyReload(ctx)

	s.log.Info("policy reloaded",
		zap.String("source_file", sourceFile),
		zap.Int("rules", len(rules)),
		zap.Int64("policy_version", version),
	)

	return &ReloadResult{
		SourceFile:    sourceFile,
		Groups:        len(parsed.Groups),
		Rules:         len(rules),
		SkippedLines:  parsed.Skipped,
		PolicyVersion: version,
	}, nil
}

// buildRules expands every MAX directive into one row per member.
// A MAX on a single user becomes a one-member group named after the
// user.
func (s *Service) buildRules(parsed *ingest.OptionsFile, sourceFile string, now time.Time) []domain.Rule {
	var rules []domain.Rule
	for _, max := range parsed.MaxRules {
		switch max.Kind {
		case "GROUP":
			group, ok := parsed.Groups[max.Target]
			if !ok {
				s.log.Warn("MAX references unknown group", zap.String("group", max.Target))
				continue
			}
			company := ingest.GroupCompany(group.Name)
			for _, member := range group.Members {
				rules = append(rules, domain.Rule{
					ID:         s.node.Generate(),
					GroupName:  group.Name,
					Company:    company,
					Feature:    max.Feature,
					User:       member,
					PolicyMax:  max.Limit,
					SourceFile: sourceFile,
					CreatedAt:  now,
				})
			}
		case "USER":
			rules = append(rules, domain.Rule{
				ID:         s.node.Generate(),
				GroupName:  max.Target,
				Company:    ingest.UserCompany(max.Target),
				Feature:    max.Feature,
				User:       max.Target,
				PolicyMax:  max.Limit,
				SourceFile: sourceFile,
				CreatedAt:  now,
			})
		}
	}
	return rules
}
