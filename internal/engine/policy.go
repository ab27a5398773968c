package engine

import (
	"fmt"
	"sort"
	"strings"
)

type capacityKey struct {
	company string
	feature string
}

// PolicySet is the indexed, immutable form of a policy rule
// collection. Build one per query; it is safe for concurrent reads.
type PolicySet struct {
	memberCompany map[string]string
	capacity      map[capacityKey]int
	warnings      []string
}

// NewPolicySet indexes policy records for resolution and capacity
// lookup. When several rules disagree on capacity for the same
// (company, feature), the effective value is their maximum and the
// disagreement is surfaced as an AmbiguousPolicy warning. A group
// whose members span several companies shares one capacity pool
// across all of them; that too is flagged, never silently resolved.
func NewPolicySet(records []PolicyRecord) *PolicySet {
	ps := &PolicySet{
		memberCompany: make(map[string]string),
		capacity:      make(map[capacityKey]int),
	}

	seen := make(map[capacityKey][]int)
	warned := make(map[string]struct{})

	for _, rec := range records {
		company := rec.Company
		if company == "" {
			company = groupCompany(rec.Group)
		}

		for _, member := range rec.Members {
			if existing, ok := ps.memberCompany[member]; ok && existing != company {
				warn(ps, warned, fmt.Sprintf(
					"AmbiguousPolicy: user %q belongs to groups of both %q and %q", member, existing, company))
				continue
			}
			ps.memberCompany[member] = company
		}

		memberCompanies := make(map[string]struct{})
		for _, member := range rec.Members {
			memberCompanies[conventionCompany(member)] = struct{}{}
		}
		if len(memberCompanies) > 1 {
			warn(ps, warned, fmt.Sprintf(
				"AmbiguousPolicy: group %q spans %d companies sharing one pool of %d seats",
				rec.Group, len(memberCompanies), rec.MaxConcurrent))
		}

		if rec.MaxConcurrent <= 0 {
			continue
		}
		key := capacityKey{company: company, feature: rec.Feature}
		seen[key] = append(seen[key], rec.MaxConcurrent)
		if rec.MaxConcurrent > ps.capacity[key] {
			ps.capacity[key] = rec.MaxConcurrent
		}
	}

	for key, values := range seen {
		if len(values) < 2 {
			continue
		}
		distinct := make(map[int]struct{}, len(values))
		for _, v := range values {
			distinct[v] = struct{}{}
		}
		if len(distinct) > 1 {
			warn(ps, warned, fmt.Sprintf(
				"AmbiguousPolicy: %d rules disagree on capacity for (%s, %s); using maximum %d",
				len(values), key.company, key.feature, ps.capacity[key]))
		}
	}

	sort.Strings(ps.warnings)
	return ps
}

func warn(ps *PolicySet, warned map[string]struct{}, msg string) {
	if _, ok := warned[msg]; ok {
		return
	}
	warned[msg] = struct{}{}
	ps.warnings = append(ps.warnings, msg)
}

// Warnings returns ambiguity warnings gathered while indexing.
func (ps *PolicySet) Warnings() []string {
	if ps == nil {
		return nil
	}
	return ps.warnings
}

// MaxConcurrent returns the effective capacity for (company, feature)
// and whether any rule defines one.
func (ps *PolicySet) MaxConcurrent(company, feature string) (int, bool) {
	if ps == nil {
		return 0, false
	}
	max, ok := ps.capacity[capacityKey{company: company, feature: feature}]
	return max, ok
}

// ResolveCompany maps a user identifier to its owning company.
// Resolution is total: explicit policy membership wins, then the
// prefix before the first dash, then the identifier itself. The
// Concurrency Counter and the policy overlay both use this function;
// diverging resolutions would silently skew utilization.
func (ps *PolicySet) ResolveCompany(user string) string {
	if ps != nil {
		if company, ok := ps.memberCompany[user]; ok {
			return company
		}
	}
	return conventionCompany(user)
}

func conventionCompany(user string) string {
	if i := strings.Index(user, "-"); i > 0 {
		return user[:i]
	}
	return user
}

func groupCompany(group string) string {
	if i := strings.Index(group, "_"); i > 0 {
		return group[:i]
	}
	return group
}
