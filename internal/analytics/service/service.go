package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/flexwatch/internal/analytics/cache"
	"github.com/smallbiznis/flexwatch/internal/analytics/domain"
	appconfig "github.com/smallbiznis/flexwatch/internal/config"
	"github.com/smallbiznis/flexwatch/internal/engine"
	"github.com/smallbiznis/flexwatch/internal/observability/metrics"
	policydomain "github.com/smallbiznis/flexwatch/internal/policy/domain"
	snapshotdomain "github.com/smallbiznis/flexwatch/internal/snapshot/domain"
)

type Params struct {
	fx.In

	Log          *zap.Logger
	SnapshotRepo snapshotdomain.Repository
	PolicyRepo   policydomain.Repository
	EngineConfig *appconfig.EngineConfigHolder
	Metrics      *metrics.Metrics `optional:"true"`
	Cache        *cache.Cache     `optional:"true"`
}

type analyticsService struct {
	log          *zap.Logger
	snapshotRepo snapshotdomain.Repository
	policyRepo   policydomain.Repository
	engineConfig *appconfig.EngineConfigHolder
	metrics      *metrics.Metrics
	cache        *cache.Cache
}

// New builds the analytics service: it materializes immutable record
// and policy snapshots from the repositories and hands them to the
// engine. The engine itself never touches storage.
func New(p Params) domain.Service {
	return &analyticsService{
		log:          p.Log.Named("analytics.service"),
		snapshotRepo: p.SnapshotRepo,
		policyRepo:   p.PolicyRepo,
		engineConfig: p.EngineConfig,
		metrics:      p.Metrics,
		cache:        p.Cache,
	}
}

func (s *analyticsService) engine() *engine.Engine {
	cfg := s.engineConfig.Get()
	return engine.New(engine.Config{
		DefaultInterval:      time.Duration(cfg.DefaultIntervalMinutes) * time.Minute,
		MinInterval:          time.Duration(cfg.MinIntervalMinutes) * time.Minute,
		MaxInterval:          time.Duration(cfg.MaxIntervalMinutes) * time.Minute,
		GapToleranceFactor:   cfg.GapToleranceFactor,
		EffectiveUsePct:      cfg.EffectiveUsePct,
		PartialUsePct:        cfg.PartialUsePct,
		FiscalYearStartMonth: time.Month(cfg.FiscalYearStartMonth),
	})
}

// load materializes the engine's immutable inputs. Feature and user
// filters are pushed down to storage; company filtering happens in
// the engine because company is a derived attribute.
func (s *analyticsService) load(ctx context.Context, start, end time.Time, features, users []string) ([]engine.Record, *engine.PolicySet, error) {
	records, err := s.snapshotRepo.List(ctx, snapshotdomain.Filter{
		Start:    start,
		End:      end,
		Features: features,
		Users:    users,
	})
	if err != nil {
		return nil, nil, err
	}

	engineRecords := make([]engine.Record, 0, len(records))
	for _, rec := range records {
		engineRecords = append(engineRecords, engine.Record{
			Timestamp: rec.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			Feature:   rec.Feature,
			User:      rec.User,
			Host:      rec.Host,
		})
	}

	policies, err := s.loadPolicies(ctx)
	if err != nil {
		return nil, nil, err
	}
	return engineRecords, policies, nil
}

func (s *analyticsService) loadPolicies(ctx context.Context) (*engine.PolicySet, error) {
	rules, err := s.policyRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	type groupKey struct {
		group   string
		feature string
		max     int
	}
	grouped := make(map[groupKey]*engine.PolicyRecord)
	var order []groupKey
	for _, rule := range rules {
		k := groupKey{group: rule.GroupName, feature: rule.Feature, max: rule.PolicyMax}
		rec, ok := grouped[k]
		if !ok {
			rec = &engine.PolicyRecord{
				Group:         rule.GroupName,
				Company:       rule.Company,
				Feature:       rule.Feature,
				MaxConcurrent: rule.PolicyMax,
			}
			grouped[k] = rec
			order = append(order, k)
		}
		rec.Members = append(rec.Members, rule.User)
	}

	records := make([]engine.PolicyRecord, 0, len(order))
	for _, k := range order {
		records = append(records, *grouped[k])
	}
	return engine.NewPolicySet(records), nil
}

func validateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return domain.ErrInvalidWindow
	}
	return nil
}

func (s *analyticsService) Aggregate(ctx context.Context, req domain.AggregateRequest) (*engine.Result, error) {
	if err := validateWindow(req.Start, req.End); err != nil {
		return nil, err
	}
	granularity, ok := engine.ParseGranularity(req.Granularity, req.Start, req.End)
	if !ok {
		return nil, domain.ErrUnknownGranularity
	}

	key := cacheKey("agg", req, string(granularity))
	if payload, err := s.cache.Get(ctx, key); err == nil {
		var cached engine.Result
		if err := json.Unmarshal(payload, &cached); err == nil {
			s.metrics.RecordCacheHit(ctx)
			return &cached, nil
		}
	}

	records, policies, err := s.load(ctx, req.Start, req.End, req.Features, req.Users)
	if err != nil {
		return nil, err
	}

	result := s.engine().Aggregate(engine.AggregateRequest{
		Records:     records,
		Policies:    policies,
		Start:       req.Start,
		End:         req.End,
		Granularity: granularity,
		Filter:      engine.NewFilter(req.Features, req.Companies, req.Users),
	})
	s.metrics.RecordAggregateQuery(ctx, string(granularity))

	if payload, err := json.Marshal(result); err == nil {
		s.cache.Set(ctx, key, payload)
	}
	return &result, nil
}

func (s *analyticsService) DetectOveruse(ctx context.Context, req domain.OveruseRequest) (*domain.OveruseResponse, error) {
	if err := validateWindow(req.Start, req.End); err != nil {
		return nil, err
	}

	records, policies, err := s.load(ctx, req.Start, req.End, []string{req.Feature}, nil)
	if err != nil {
		return nil, err
	}

	report := s.engine().DetectOveruse(records, policies, req.Start, req.End, req.Feature, req.Company)
	if report != nil {
		s.metrics.RecordOveruseReport(ctx, req.Feature)
	}
	return &domain.OveruseResponse{Report: report}, nil
}

func (s *analyticsService) EstimateInterval(ctx context.Context, req domain.AggregateRequest) (*domain.IntervalResponse, error) {
	if err := validateWindow(req.Start, req.End); err != nil {
		return nil, err
	}

	records, policies, err := s.load(ctx, req.Start, req.End, req.Features, req.Users)
	if err != nil {
		return nil, err
	}

	nominal, fallback, excluded := s.engine().EstimateSeriesInterval(
		records, policies, req.Start, req.End,
		engine.NewFilter(req.Features, req.Companies, req.Users),
	)
	return &domain.IntervalResponse{
		IntervalMinutes:   nominal.Minutes(),
		Fallback:          fallback,
		ExcludedMalformed: excluded,
	}, nil
}

func (s *analyticsService) FeatureStats(ctx context.Context, req domain.AggregateRequest) (*domain.StatsResponse, error) {
	if err := validateWindow(req.Start, req.End); err != nil {
		return nil, err
	}

	records, policies, err := s.load(ctx, req.Start, req.End, req.Features, req.Users)
	if err != nil {
		return nil, err
	}

	stats, meta := s.engine().FeatureStats(
		records, policies, req.Start, req.End,
		engine.NewFilter(req.Features, req.Companies, req.Users),
	)
	return &domain.StatsResponse{Stats: stats, Meta: meta}, nil
}

func (s *analyticsService) Features(ctx context.Context) ([]string, error) {
	return s.snapshotRepo.DistinctFeatures(ctx)
}

// Companies derives the catalog from observed users and policy
// membership through the same resolver queries use.
func (s *analyticsService) Companies(ctx context.Context) ([]string, error) {
	users, err := s.snapshotRepo.DistinctUsers(ctx, "")
	if err != nil {
		return nil, err
	}
	policies, err := s.loadPolicies(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, user := range users {
		seen[policies.ResolveCompany(user)] = struct{}{}
	}

	companies := make([]string, 0, len(seen))
	for company := range seen {
		companies = append(companies, company)
	}
	sort.Strings(companies)
	return companies, nil
}

func (s *analyticsService) Users(ctx context.Context, feature string) ([]string, error) {
	return s.snapshotRepo.DistinctUsers(ctx, feature)
}

func (s *analyticsService) DateRange(ctx context.Context) (*domain.DateRangeResponse, error) {
	lo, hi, err := s.snapshotRepo.DateRange(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.DateRangeResponse{Earliest: lo, Latest: hi}, nil
}

func cacheKey(kind string, req domain.AggregateRequest, granularity string) string {
	features := append([]string(nil), req.Features...)
	companies := append([]string(nil), req.Companies...)
	users := append([]string(nil), req.Users...)
	sort.Strings(features)
	sort.Strings(companies)
	sort.Strings(users)

	return fmt.Sprintf("%s:%d:%d:%s:%s|%s|%s",
		kind,
		req.Start.Unix(), req.End.Unix(),
		granularity,
		strings.Join(features, ","),
		strings.Join(companies, ","),
		strings.Join(users, ","),
	)
}
