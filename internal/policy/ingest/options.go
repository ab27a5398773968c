package ingest

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// Group is one GROUP definition from a FlexLM options file.
type Group struct {
	Name    string
	Members []string
}

// MaxRule is one MAX line: a seat cap for a feature granted to a
// group or a single user.
type MaxRule struct {
	Limit   int
	Feature string
	Kind    string // GROUP or USER
	Target  string
}

// OptionsFile is the parsed form of a FlexLM options file. Only GROUP
// and MAX directives matter for capacity policy; INCLUDE, EXCLUDE and
// the rest are operational directives with no seat-count meaning.
type OptionsFile struct {
	Groups   map[string]Group
	MaxRules []MaxRule
	Skipped  int
}

// Parse reads a FlexLM options file. Lines ending in a backslash
// continue on the next line, which FlexLM allows for long GROUP
// member lists.
func Parse(r io.Reader) (*OptionsFile, error) {
	out := &OptionsFile{Groups: make(map[string]Group)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var pending string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasSuffix(line, `\`) {
			pending += strings.TrimSuffix(line, `\`) + " "
			continue
		}
		line = pending + line
		pending = ""

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		switch strings.ToUpper(fields[0]) {
		case "GROUP":
			if len(fields) < 3 {
				out.Skipped++
				continue
			}
			name := fields[1]
			g := out.Groups[name]
			g.Name = name
			g.Members = append(g.Members, fields[2:]...)
			out.Groups[name] = g
		case "MAX":
			if len(fields) != 5 {
				out.Skipped++
				continue
			}
			limit, err := strconv.Atoi(fields[1])
			if err != nil || limit <= 0 {
				out.Skipped++
				continue
			}
			kind := strings.ToUpper(fields[3])
			if kind != "GROUP" && kind != "USER" {
				out.Skipped++
				continue
			}
			out.MaxRules = append(out.MaxRules, MaxRule{
				Limit:   limit,
				Feature: fields[2],
				Kind:    kind,
				Target:  fields[4],
			})
		default:
			// INCLUDE, EXCLUDE, RESERVE and friends.
			out.Skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GroupCompany derives the owning company from a group name: the
// prefix before the first underscore, or the whole name.
func GroupCompany(group string) string {
	if i := strings.Index(group, "_"); i > 0 {
		return group[:i]
	}
	return group
}

// UserCompany derives the owning company from a user name: the prefix
// before the first dash, or the whole name.
func UserCompany(user string) string {
	if i := strings.Index(user, "-"); i > 0 {
		return user[:i]
	}
	return user
}
