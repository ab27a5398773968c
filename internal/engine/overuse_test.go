package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func concurrencySeries(feature string, base time.Time, counts []int) []Record {
	var records []Record
	for i, count := range counts {
		at := base.Add(time.Duration(i) * 5 * time.Minute)
		for u := 0; u < count; u++ {
			records = append(records, Record{
				Timestamp: at.Format("2006-01-02 15:04:05"),
				Feature:   feature,
				User:      fmt.Sprintf("acme-%04d", u),
			})
		}
	}
	return records
}

func TestDetectOveruseSingleViolation(t *testing.T) {
	base := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	records := concurrencySeries("simulator", base, []int{8, 9, 10, 11, 10, 9})
	policies := NewPolicySet([]PolicyRecord{
		{Group: "acme_eda", Feature: "simulator", MaxConcurrent: 10},
	})

	report := New(Config{}).DetectOveruse(records, policies, base, base.Add(time.Hour), "simulator", "acme")
	require.NotNil(t, report)

	assert.Equal(t, 11, report.PeakConcurrent)
	assert.Equal(t, 1, report.MaxExcess)
	assert.Equal(t, 1, report.OverSnapshotCount)
	assert.Equal(t, 6, report.TotalSnapshotCount)
	assert.InDelta(t, 16.67, report.OverPct, 0.01)
	assert.Equal(t, 5*time.Minute, report.EstimatedDuration)
}

func TestDetectOveruseNoViolation(t *testing.T) {
	base := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	records := concurrencySeries("simulator", base, []int{8, 9, 10})
	policies := NewPolicySet([]PolicyRecord{
		{Group: "acme_eda", Feature: "simulator", MaxConcurrent: 10},
	})

	report := New(Config{}).DetectOveruse(records, policies, base, base.Add(time.Hour), "simulator", "acme")
	assert.Nil(t, report)
}

func TestDetectOveruseWithoutPolicy(t *testing.T) {
	base := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	records := concurrencySeries("simulator", base, []int{20})

	report := New(Config{}).DetectOveruse(records, NewPolicySet(nil), base, base.Add(time.Hour), "simulator", "acme")
	assert.Nil(t, report)
}

func TestDetectOveruseDurationScalesWithViolations(t *testing.T) {
	base := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	records := concurrencySeries("simulator", base, []int{11, 12, 11, 9, 9, 9})
	policies := NewPolicySet([]PolicyRecord{
		{Group: "acme_eda", Feature: "simulator", MaxConcurrent: 10},
	})

	report := New(Config{}).DetectOveruse(records, policies, base, base.Add(time.Hour), "simulator", "acme")
	require.NotNil(t, report)
	assert.Equal(t, 3, report.OverSnapshotCount)
	assert.Equal(t, 15*time.Minute, report.EstimatedDuration)
}
