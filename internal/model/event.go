// Package model defines the core domain models used throughout the application.
package model

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Role is the semantic meaning of a source column in an uploaded event log.
type Role string

// Required semantic roles.
const (
	RoleTimestamp Role = "Timestamp"
	RoleUserID    Role = "UserID"
	RoleDoorID    Role = "DoorID"
	RoleEventType Role = "EventType"
)

// RequiredRoles lists every role a column mapping must cover, in display order.
var RequiredRoles = []Role{RoleTimestamp, RoleUserID, RoleDoorID, RoleEventType}

// Description returns the label shown to operators when mapping columns.
func (r Role) Description() string {
	switch r {
	case RoleTimestamp:
		return "Timestamp (Event Time)"
	case RoleUserID:
		return "UserID (Person Identifier)"
	case RoleDoorID:
		return "DoorID (Device Name)"
	case RoleEventType:
		return "EventType (Access Result)"
	default:
		return string(r)
	}
}

// ParseRole converts a role name, case-insensitively, into a Role.
func ParseRole(s string) (Role, bool) {
	for _, r := range RequiredRoles {
		if strings.EqualFold(strings.TrimSpace(s), string(r)) {
			return r, true
		}
	}
	return "", false
}

// ColumnMapping maps a source column name to its semantic role.
type ColumnMapping map[string]Role

// ColumnFor returns the source column mapped to the given role.
// When several columns claim the same role the lexically smallest wins.
func (m ColumnMapping) ColumnFor(role Role) (string, bool) {
	var (
		found string
		ok    bool
	)
	for col, r := range m {
		if r != role {
			continue
		}
		if !ok || col < found {
			found = col
			ok = true
		}
	}
	return found, ok
}

// RawTable is a decoded upload: a header row and its string cells.
type RawTable struct {
	Headers []string
	Rows    [][]string
}

// Fingerprint returns the header fingerprint of the table.
func (t RawTable) Fingerprint() HeaderFingerprint {
	return Fingerprint(t.Headers)
}

// HeaderFingerprint identifies a file layout by its sorted set of column names.
// It is the cache key for column mappings and door classifications.
type HeaderFingerprint string

// Fingerprint builds the fingerprint for a set of headers. Column order and file
// content never influence the result.
func Fingerprint(headers []string) HeaderFingerprint {
	seen := make(map[string]bool, len(headers))
	names := make([]string, 0, len(headers))
	for _, h := range headers {
		h = strings.TrimSpace(h)
		if seen[h] {
			continue
		}
		seen[h] = true
		names = append(names, h)
	}
	sort.Strings(names)

	// json.Marshal on a []string cannot fail.
	data, _ := json.Marshal(names)
	return HeaderFingerprint(data)
}

// Event is a single normalized badge tap.
type Event struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	UserID    string    `json:"user_id" yaml:"user_id"`
	DoorID    string    `json:"door_id" yaml:"door_id"`
	EventType string    `json:"event_type" yaml:"event_type"`
}
