// Package tle is the orbital element store. It parses bulk two-line element
// text into records keyed by exact satellite name, refreshes the local cache
// from a network source on demand, and persists updates atomically so an
// in-progress prediction never observes a half-written file.
package tle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/akhenakh/sgp4"
)

// Record holds one satellite's two-line element set plus the name line that
// precedes it in the bulk format.
type Record struct {
	Name    string `json:"name"`
	Line1   string `json:"line1"`
	Line2   string `json:"line2"`
	NoradID int    `json:"norad_id"`
}

// Set maps exact satellite names to their element records.
type Set map[string]Record

// ErrSatelliteNotFound is returned by Lookup when no record carries the
// requested name. Matching is exact, not substring.
var ErrSatelliteNotFound = errors.New("satellite not found in element set")

// Lookup returns the record for the given exact satellite name.
func (s Set) Lookup(name string) (Record, error) {
	rec, ok := s[name]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrSatelliteNotFound, name)
	}
	return rec, nil
}

// Names returns the satellite names present in the set.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	return names
}

// Parse reads bulk element text in the standard 3-line format (name line,
// line 1, line 2) as served by CelesTrak. Every group is validated through
// the SGP4 parser; a malformed group or a duplicate satellite name is an
// error rather than being silently skipped or shadowed.
func Parse(raw string) (Set, error) {
	lines := splitLines(raw)
	if len(lines) == 0 {
		return nil, errors.New("empty element text")
	}
	if len(lines)%3 != 0 {
		return nil, fmt.Errorf("element text has %d non-blank lines, expected a multiple of 3", len(lines))
	}

	set := make(Set, len(lines)/3)
	for i := 0; i+2 < len(lines); i += 3 {
		name, l1, l2 := lines[i], lines[i+1], lines[i+2]

		if len(l1) == 0 || l1[0] != '1' {
			return nil, fmt.Errorf("entry %q: first element line must start with '1'", name)
		}
		if len(l2) == 0 || l2[0] != '2' {
			return nil, fmt.Errorf("entry %q: second element line must start with '2'", name)
		}

		group := name + "\n" + l1 + "\n" + l2
		parsed, err := sgp4.ParseTLE(group)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", name, err)
		}

		if _, dup := set[name]; dup {
			return nil, fmt.Errorf("duplicate element entry for %q", name)
		}
		set[name] = Record{
			Name:    name,
			Line1:   l1,
			Line2:   l2,
			NoradID: parsed.SatelliteNumber,
		}
	}

	return set, nil
}

func splitLines(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(strings.TrimSuffix(line, "\r"), " ")
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
