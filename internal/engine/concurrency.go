package engine

import (
	"sort"
	"time"
)

// normalized is a Record after timestamp parsing and company
// resolution.
type normalized struct {
	instant time.Time
	company string
	feature string
	user    string
}

// normalize parses timestamps, resolves companies and applies the
// filter. Malformed rows are excluded and counted.
func normalize(records []Record, policies *PolicySet, start, end time.Time, f Filter) ([]normalized, int) {
	out := make([]normalized, 0, len(records))
	excluded := 0

	for _, rec := range records {
		instant, err := ParseTimestamp(rec.Timestamp)
		if err != nil {
			excluded++
			continue
		}
		if !start.IsZero() && instant.Before(start) {
			continue
		}
		if !end.IsZero() && instant.After(end) {
			continue
		}
		if !f.keepFeature(rec.Feature) || !f.keepUser(rec.User) {
			continue
		}
		company := policies.ResolveCompany(rec.User)
		if !f.keepCompany(company) {
			continue
		}
		out = append(out, normalized{
			instant: instant,
			company: company,
			feature: rec.Feature,
			user:    rec.User,
		})
	}
	return out, excluded
}

// CountConcurrency measures concurrency directly from evidence: the
// number of distinct users per (instant, company, feature). Every
// downstream metric derives from these samples, never from raw sample
// counts, which overstate concurrency when a user spans adjacent
// snapshots.
func CountConcurrency(rows []normalized) []Sample {
	type key struct {
		instant time.Time
		company string
		feature string
	}

	users := make(map[key]map[string]struct{})
	for _, row := range rows {
		k := key{instant: row.instant, company: row.company, feature: row.feature}
		set, ok := users[k]
		if !ok {
			set = make(map[string]struct{})
			users[k] = set
		}
		set[row.user] = struct{}{}
	}

	samples := make([]Sample, 0, len(users))
	for k, set := range users {
		samples = append(samples, Sample{
			Instant: k.instant,
			Company: k.company,
			Feature: k.feature,
			Count:   len(set),
		})
	}
	sort.Slice(samples, func(i, j int) bool {
		if !samples[i].Instant.Equal(samples[j].Instant) {
			return samples[i].Instant.Before(samples[j].Instant)
		}
		if samples[i].Company != samples[j].Company {
			return samples[i].Company < samples[j].Company
		}
		return samples[i].Feature < samples[j].Feature
	})
	return samples
}
