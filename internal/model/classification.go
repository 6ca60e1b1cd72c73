package model

import (
	"fmt"
	"strings"
)

// SecurityLevel is the operator-assigned sensitivity of a door.
type SecurityLevel string

// Security level constants.
const (
	SecurityUnclassified SecurityLevel = "unclassified"
	SecurityGreen        SecurityLevel = "green"
	SecurityYellow       SecurityLevel = "yellow"
	SecurityRed          SecurityLevel = "red"
)

// SecurityLevels lists all levels from least to most restricted.
var SecurityLevels = []SecurityLevel{SecurityUnclassified, SecurityGreen, SecurityYellow, SecurityRed}

// Severity orders levels for sorting; unclassified is lowest.
func (s SecurityLevel) Severity() int {
	switch s {
	case SecurityGreen:
		return 1
	case SecurityYellow:
		return 2
	case SecurityRed:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is one of the known levels.
func (s SecurityLevel) Valid() bool {
	switch s {
	case SecurityUnclassified, SecurityGreen, SecurityYellow, SecurityRed:
		return true
	}
	return false
}

// Next cycles to the next level, wrapping from red back to unclassified.
func (s SecurityLevel) Next() SecurityLevel {
	return SecurityLevels[(s.Severity()+1)%len(SecurityLevels)]
}

// ParseSecurityLevel parses a level name. "orange" is accepted for yellow.
func ParseSecurityLevel(s string) (SecurityLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unclassified":
		return SecurityUnclassified, nil
	case "green":
		return SecurityGreen, nil
	case "yellow", "orange":
		return SecurityYellow, nil
	case "red":
		return SecurityRed, nil
	}
	return "", fmt.Errorf("unknown security level %q", s)
}

// SecurityLevelFromSlider maps the 0-10 classification slider to a level.
func SecurityLevelFromSlider(v int) SecurityLevel {
	switch {
	case v <= 2:
		return SecurityUnclassified
	case v <= 5:
		return SecurityGreen
	case v <= 7:
		return SecurityYellow
	default:
		return SecurityRed
	}
}

// DoorClassification holds the values an operator entered for one door.
// Empty strings and nil pointers mean the form field was left blank.
type DoorClassification struct {
	IsEntranceExit *bool         `json:"is_entrance_exit,omitempty" yaml:"is_entrance_exit,omitempty"`
	IsStair        *bool         `json:"is_stair,omitempty" yaml:"is_stair,omitempty"`
	Floor          string        `json:"floor,omitempty" yaml:"floor,omitempty"`
	SecurityLevel  SecurityLevel `json:"security_level,omitempty" yaml:"security_level,omitempty"`
}

// ClassificationRecord is the set of manual classifications for one file layout,
// keyed by door ID.
type ClassificationRecord map[string]DoorClassification

// Clone returns an independent copy of the record.
func (r ClassificationRecord) Clone() ClassificationRecord {
	if r == nil {
		return nil
	}
	out := make(ClassificationRecord, len(r))
	for door, c := range r {
		out[door] = c.clone()
	}
	return out
}

func (c DoorClassification) clone() DoorClassification {
	out := c
	if c.IsEntranceExit != nil {
		v := *c.IsEntranceExit
		out.IsEntranceExit = &v
	}
	if c.IsStair != nil {
		v := *c.IsStair
		out.IsStair = &v
	}
	return out
}

// Bool returns a pointer to v, for filling optional classification fields.
func Bool(v bool) *bool {
	return &v
}
