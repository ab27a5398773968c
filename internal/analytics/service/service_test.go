package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	analyticsdomain "github.com/smallbiznis/flexwatch/internal/analytics/domain"
	appconfig "github.com/smallbiznis/flexwatch/internal/config"
	policydomain "github.com/smallbiznis/flexwatch/internal/policy/domain"
	policyrepo "github.com/smallbiznis/flexwatch/internal/policy/repository"
	snapshotdomain "github.com/smallbiznis/flexwatch/internal/snapshot/domain"
	snapshotrepo "github.com/smallbiznis/flexwatch/internal/snapshot/repository"
)

type fixture struct {
	svc  analyticsdomain.Service
	node *snowflake.Node
	snap snapshotdomain.Repository
	pol  policydomain.Repository
}

func setup(t *testing.T) *fixture {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&snapshotdomain.Record{}, &policydomain.Rule{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	holder, err := appconfig.NewEngineConfigHolder()
	require.NoError(t, err)

	snap := snapshotrepo.New(gdb, zap.NewNop())
	pol := policyrepo.New(gdb, zap.NewNop())

	svc := New(Params{
		Log:          zap.NewNop(),
		SnapshotRepo: snap,
		PolicyRepo:   pol,
		EngineConfig: holder,
	})
	return &fixture{svc: svc, node: node, snap: snap, pol: pol}
}

func (f *fixture) seedCheckout(t *testing.T, at time.Time, feature, user string) {
	t.Helper()
	require.NoError(t, f.snap.Insert(context.Background(), []snapshotdomain.Record{{
		ID:         f.node.Generate(),
		Timestamp:  at,
		Feature:    feature,
		User:       user,
		Host:       "ws01",
		SourceFile: "lmstat_" + at.Format("2006-01-02_15-04-05") + ".txt",
		CreatedAt:  time.Now().UTC(),
	}}))
}

func (f *fixture) seedPolicy(t *testing.T, group, feature, user string, max int) {
	t.Helper()
	require.NoError(t, f.pol.Replace(context.Background(), "vendor.opt", []policydomain.Rule{{
		ID:         f.node.Generate(),
		GroupName:  group,
		Company:    "acme",
		Feature:    feature,
		User:       user,
		PolicyMax:  max,
		SourceFile: "vendor.opt",
		CreatedAt:  time.Now().UTC(),
	}}))
}

func TestAggregateEndToEnd(t *testing.T) {
	f := setup(t)
	base := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		at := base.Add(time.Duration(i) * 5 * time.Minute)
		f.seedCheckout(t, at, "simulator", "acme-abcd")
		f.seedCheckout(t, at, "simulator", "acme-efgh")
	}
	f.seedPolicy(t, "acme_eda", "simulator", "acme-abcd", 4)

	result, err := f.svc.Aggregate(context.Background(), analyticsdomain.AggregateRequest{
		Start:       base,
		End:         base.Add(time.Hour),
		Granularity: "hourly",
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	row := result.Rows[0]
	assert.Equal(t, "acme", row.Company)
	assert.Equal(t, "simulator", row.Feature)
	assert.Equal(t, 12, row.UsageCount)
	assert.Equal(t, 2, row.ActiveUsers)
	assert.Equal(t, 6, row.ActiveSnapshots)
	assert.Equal(t, 2, row.PeakConcurrent)
	assert.Equal(t, 4, row.PolicyMax)
}

func TestAggregateRejectsBadInput(t *testing.T) {
	f := setup(t)
	base := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)

	_, err := f.svc.Aggregate(context.Background(), analyticsdomain.AggregateRequest{
		Start: base,
		End:   base.Add(-time.Hour),
	})
	assert.ErrorIs(t, err, analyticsdomain.ErrInvalidWindow)

	_, err = f.svc.Aggregate(context.Background(), analyticsdomain.AggregateRequest{
		Start:       base,
		End:         base.Add(time.Hour),
		Granularity: "fortnightly",
	})
	assert.ErrorIs(t, err, analyticsdomain.ErrUnknownGranularity)
}

func TestDetectOveruseEndToEnd(t *testing.T) {
	f := setup(t)
	base := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)

	// Three concurrent users against a cap of two.
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * 5 * time.Minute)
		f.seedCheckout(t, at, "simulator", "acme-abcd")
		f.seedCheckout(t, at, "simulator", "acme-efgh")
	}
	f.seedCheckout(t, base.Add(10*time.Minute), "simulator", "acme-ijkl")
	f.seedPolicy(t, "acme_eda", "simulator", "acme-abcd", 2)

	resp, err := f.svc.DetectOveruse(context.Background(), analyticsdomain.OveruseRequest{
		Start:   base,
		End:     base.Add(time.Hour),
		Feature: "simulator",
		Company: "acme",
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Report)
	assert.Equal(t, 3, resp.Report.PeakConcurrent)
	assert.Equal(t, 1, resp.Report.MaxExcess)
	assert.Equal(t, 1, resp.Report.OverSnapshotCount)
}

func TestDetectOveruseNoViolationYieldsNilReport(t *testing.T) {
	f := setup(t)
	base := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)

	f.seedCheckout(t, base, "simulator", "acme-abcd")
	f.seedPolicy(t, "acme_eda", "simulator", "acme-abcd", 2)

	resp, err := f.svc.DetectOveruse(context.Background(), analyticsdomain.OveruseRequest{
		Start:   base,
		End:     base.Add(time.Hour),
		Feature: "simulator",
		Company: "acme",
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Report)
}

func TestEstimateIntervalEndToEnd(t *testing.T) {
	f := setup(t)
	base := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		f.seedCheckout(t, base.Add(time.Duration(i)*5*time.Minute), "simulator", "acme-abcd")
	}

	resp, err := f.svc.EstimateInterval(context.Background(), analyticsdomain.AggregateRequest{
		Start: base,
		End:   base.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, resp.Fallback)
	assert.InDelta(t, 5.0, resp.IntervalMinutes, 0.01)
}

func TestCatalogsEndToEnd(t *testing.T) {
	f := setup(t)
	base := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)

	f.seedCheckout(t, base, "simulator", "acme-abcd")
	f.seedCheckout(t, base.Add(time.Hour), "viewer", "globex-wxyz")

	features, err := f.svc.Features(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"simulator", "viewer"}, features)

	companies, err := f.svc.Companies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "globex"}, companies)

	r, err := f.svc.DateRange(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Earliest.Equal(base))
	assert.True(t, r.Latest.Equal(base.Add(time.Hour)))
}

func TestFeatureStatsEndToEnd(t *testing.T) {
	f := setup(t)
	base := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		f.seedCheckout(t, base.Add(time.Duration(i)*5*time.Minute), "simulator", "acme-abcd")
	}
	f.seedPolicy(t, "acme_eda", "simulator", "acme-abcd", 2)

	resp, err := f.svc.FeatureStats(context.Background(), analyticsdomain.AggregateRequest{
		Start: base,
		End:   base.Add(time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, resp.Stats, 1)
	assert.Equal(t, 6, resp.Stats[0].TotalCheckouts)
	assert.Equal(t, 1, resp.Stats[0].UniqueUsers)
	assert.Equal(t, 2, resp.Stats[0].PolicyMax)

	_, err = f.svc.FeatureStats(context.Background(), analyticsdomain.AggregateRequest{})
	assert.ErrorIs(t, err, analyticsdomain.ErrInvalidWindow)
}
