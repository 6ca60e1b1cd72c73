package ingest

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Veraticus/onion-topology/internal/model"
)

// HeaderPattern recognizes column names that usually carry a semantic role.
type HeaderPattern struct {
	Name       string
	Role       model.Role
	Regex      string
	Priority   int     // Higher priority patterns are checked first
	Confidence float64 // Base confidence when the pattern matches (0.0-1.0)
}

type compiledHeaderPattern struct {
	compiledRegex *regexp.Regexp
	HeaderPattern
}

// HeaderDetector suggests column roles from header names.
type HeaderDetector struct {
	patterns []compiledHeaderPattern
}

// DefaultHeaderPatterns covers the column names exported by common access-control
// systems.
func DefaultHeaderPatterns() []HeaderPattern {
	return []HeaderPattern{
		{Name: "Event Time", Role: model.RoleTimestamp, Regex: `^(event\s*)?(time\s*stamp|date\s*time|timestamp|event\s*time|time)$`, Priority: 100, Confidence: 0.95},
		{Name: "Date", Role: model.RoleTimestamp, Regex: `(date|time|when)`, Priority: 40, Confidence: 0.6},
		{Name: "Person", Role: model.RoleUserID, Regex: `^(user\s*(id|name)?|person\s*(id)?|employee\s*(id)?|badge\s*(id|number|no)?|card\s*(holder|number|no)?|cardholder)$`, Priority: 90, Confidence: 0.9},
		{Name: "Identity", Role: model.RoleUserID, Regex: `(user|person|employee|badge|card|holder|token)`, Priority: 30, Confidence: 0.55},
		{Name: "Device", Role: model.RoleDoorID, Regex: `^(door\s*(id|name)?|device\s*(id|name)?|reader\s*(id|name)?|location|portal|access\s*point)$`, Priority: 90, Confidence: 0.9},
		{Name: "Place", Role: model.RoleDoorID, Regex: `(door|device|reader|gate|portal|location|point)`, Priority: 30, Confidence: 0.55},
		{Name: "Result", Role: model.RoleEventType, Regex: `^(event\s*(type)?|access\s*result|result|status|outcome|transaction\s*type)$`, Priority: 80, Confidence: 0.85},
		{Name: "Activity", Role: model.RoleEventType, Regex: `(event|result|status|outcome|message|type)`, Priority: 20, Confidence: 0.5},
	}
}

// NewHeaderDetector compiles the given patterns, matching case-insensitively.
func NewHeaderDetector(patterns []HeaderPattern) (*HeaderDetector, error) {
	compiled := make([]compiledHeaderPattern, 0, len(patterns))

	for _, p := range patterns {
		regexStr := p.Regex
		if !strings.HasPrefix(regexStr, "(?i)") {
			regexStr = "(?i)" + regexStr
		}

		regex, err := regexp.Compile(regexStr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile header pattern %s: %w", p.Name, err)
		}

		compiled = append(compiled, compiledHeaderPattern{
			HeaderPattern: p,
			compiledRegex: regex,
		})
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority > compiled[j].Priority
	})

	return &HeaderDetector{patterns: compiled}, nil
}

// HeaderMatch is a role suggestion for one column.
type HeaderMatch struct {
	Column      string
	PatternName string
	Role        model.Role
	Confidence  float64
}

// Match returns the highest-priority pattern matching header, or nil.
func (d *HeaderDetector) Match(header string) *HeaderMatch {
	h := normalizeHeader(header)
	for _, p := range d.patterns {
		if p.compiledRegex.MatchString(h) {
			return &HeaderMatch{
				Column:      header,
				PatternName: p.Name,
				Role:        p.Role,
				Confidence:  p.Confidence,
			}
		}
	}
	return nil
}

// PatternCount returns the number of loaded patterns.
func (d *HeaderDetector) PatternCount() int {
	return len(d.patterns)
}

// Suggest proposes a mapping covering as many roles as it can. Each role goes to
// the column with the most confident match; ties go to the leftmost column. A
// column is never assigned two roles.
func (d *HeaderDetector) Suggest(headers []string) model.ColumnMapping {
	var matches []HeaderMatch
	for _, h := range headers {
		norm := normalizeHeader(h)
		for _, p := range d.patterns {
			if p.compiledRegex.MatchString(norm) {
				matches = append(matches, HeaderMatch{Column: h, PatternName: p.Name, Role: p.Role, Confidence: p.Confidence})
			}
		}
	}

	position := make(map[string]int, len(headers))
	for i, h := range headers {
		if _, ok := position[h]; !ok {
			position[h] = i
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return position[matches[i].Column] < position[matches[j].Column]
	})

	mapping := make(model.ColumnMapping)
	taken := make(map[model.Role]bool)
	for _, m := range matches {
		if taken[m.Role] {
			continue
		}
		if _, used := mapping[m.Column]; used {
			continue
		}
		mapping[m.Column] = m.Role
		taken[m.Role] = true
	}
	return mapping
}

var headerSeparators = strings.NewReplacer("_", " ", "-", " ", ".", " ")

func normalizeHeader(h string) string {
	return strings.Join(strings.Fields(headerSeparators.Replace(h)), " ")
}

var defaultDetector = func() *HeaderDetector {
	d, err := NewHeaderDetector(DefaultHeaderPatterns())
	if err != nil {
		panic(err)
	}
	return d
}()

// SuggestMapping proposes a column mapping using the default header patterns.
func SuggestMapping(headers []string) model.ColumnMapping {
	return defaultDetector.Suggest(headers)
}
