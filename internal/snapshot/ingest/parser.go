package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	ErrBadFilename = errors.New("bad_snapshot_filename")

	filenameRe = regexp.MustCompile(`^lmstat_(\d{4}-\d{2}-\d{2})_(\d{2})-(\d{2})-(\d{2})\.txt$`)
	featureRe  = regexp.MustCompile(`^Users of ([^:]+):`)

	// Partner accounts follow <company>-<4 letter code>. Used only
	// when no policy membership list is available.
	partnerUserRe = regexp.MustCompile(`^[a-z0-9]+-[a-z]{4}$`)
)

// Checkout is one parsed line of lmstat output: user holding feature
// on host at the snapshot instant.
type Checkout struct {
	Feature string
	User    string
	Host    string
}

// ParsedSnapshot is the result of parsing one raw lmstat file.
type ParsedSnapshot struct {
	Timestamp time.Time
	Checkouts []Checkout
	Skipped   int
}

// TimestampFromFilename extracts the sample instant from a raw file
// name of the form lmstat_2025-01-31_08-30-00.txt.
func TimestampFromFilename(name string) (time.Time, error) {
	m := filenameRe.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrBadFilename, name)
	}
	ts, err := time.Parse("2006-01-02 15:04:05", fmt.Sprintf("%s %s:%s:%s", m[1], m[2], m[3], m[4]))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrBadFilename, name)
	}
	return ts.UTC(), nil
}

// KeepUser decides whether a checkout line belongs to a tracked
// partner account. Explicit policy membership wins; without a policy
// the naming convention is the filter.
type KeepUser func(user string) bool

// MemberFilter keeps only users in the given set.
func MemberFilter(members map[string]struct{}) KeepUser {
	return func(user string) bool {
		_, ok := members[user]
		return ok
	}
}

// ConventionFilter keeps users matching the partner naming convention.
func ConventionFilter() KeepUser {
	return func(user string) bool {
		return partnerUserRe.MatchString(user)
	}
}

// Parse reads one lmstat report. Feature headers look like
// "Users of <name>:  (Total of N licenses issued; ...)"; checkout
// lines are indented exactly four spaces and contain " start ".
// Deeper-indented lines describe individual license grants and are
// not distinct checkouts.
func Parse(name string, r io.Reader, keep KeepUser) (*ParsedSnapshot, error) {
	ts, err := TimestampFromFilename(name)
	if err != nil {
		return nil, err
	}

	out := &ParsedSnapshot{Timestamp: ts}
	feature := ""

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if m := featureRe.FindStringSubmatch(line); m != nil && strings.Contains(line, "licenses issued") {
			feature = strings.TrimSpace(m[1])
			continue
		}
		if feature == "" {
			continue
		}
		if !strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "      ") {
			continue
		}
		if !strings.Contains(line, " start ") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			out.Skipped++
			continue
		}
		user, host := fields[0], fields[1]
		if strings.HasPrefix(user, `"`) {
			out.Skipped++
			continue
		}
		if keep != nil && !keep(user) {
			out.Skipped++
			continue
		}

		out.Checkouts = append(out.Checkouts, Checkout{
			Feature: feature,
			User:    user,
			Host:    host,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
