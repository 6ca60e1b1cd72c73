// Package export writes session results and classification records to files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/onion-topology/internal/model"
	"github.com/Veraticus/onion-topology/internal/session"
	"gopkg.in/yaml.v3"
)

// Format is an output encoding.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

// ErrUnsupportedFormat is returned for formats a writer cannot produce.
var ErrUnsupportedFormat = errors.New("unsupported format")

// ParseFormat accepts a format name ("yml" is yaml).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, s)
}

// FormatForPath picks a format from a file extension, defaulting to JSON.
func FormatForPath(path string) Format {
	f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return FormatJSON
	}
	return f
}

// Bundle is the complete result of one session: the Session Context and its
// render-ready graph elements.
type Bundle struct {
	Session  *session.Context `json:"session" yaml:"session"`
	Elements session.Elements `json:"elements" yaml:"elements"`
}

// NewBundle packages a session for export.
func NewBundle(c *session.Context) Bundle {
	return Bundle{Session: c, Elements: c.Elements()}
}

// WriteBundle encodes the bundle as JSON or YAML. CSV output is the statistics
// summary only.
func WriteBundle(w io.Writer, format Format, b Bundle) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, b)
	case FormatYAML:
		return writeYAML(w, b)
	case FormatCSV:
		if b.Session == nil {
			return fmt.Errorf("%w: csv needs a session", ErrUnsupportedFormat)
		}
		return WriteStatsCSV(w, b.Session)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// WriteElements encodes only the graph elements.
func WriteElements(w io.Writer, format Format, el session.Elements) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, el)
	case FormatYAML:
		return writeYAML(w, el)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// WriteFile writes the bundle to path in the format its extension names.
func WriteFile(path string, b Bundle) error {
	return WriteFileAs(path, FormatForPath(path), b)
}

// WriteFileAs writes the bundle to path in format.
func WriteFileAs(path string, format Format, b Bundle) (err error) {
	f, err := os.Create(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, closeErr)
		}
	}()
	return WriteBundle(f, format, b)
}

// WriteStatsCSV writes the headline statistics as metric,value rows.
func WriteStatsCSV(w io.Writer, c *session.Context) (retErr error) {
	csvWriter := csv.NewWriter(w)
	defer func() {
		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil && retErr == nil {
			retErr = fmt.Errorf("CSV writer flush error: %w", err)
		}
	}()

	s := c.Stats
	rows := [][]string{
		{"metric", "value"},
		{"session_id", c.ID},
		{"total_events", strconv.Itoa(s.TotalEvents)},
		{"cleaned_events", strconv.Itoa(s.CleanedEvents)},
		{"unique_users", strconv.Itoa(s.UniqueUsers)},
		{"unique_devices", strconv.Itoa(s.UniqueDevices)},
		{"date_start", formatDate(s.DateStart)},
		{"date_end", formatDate(s.DateEnd)},
		{"active_days", strconv.Itoa(s.ActiveDays)},
		{"events_per_active_day", formatFloat(s.EventsPerActiveDay)},
		{"peak_hour", strconv.Itoa(s.PeakHour)},
		{"peak_hour_events", strconv.Itoa(s.PeakHourEvents)},
		{"busiest_day", s.BusiestDay},
		{"busiest_floor", s.BusiestFloor},
		{"most_active_user", s.MostActiveUser},
		{"most_active_user_events", strconv.Itoa(s.MostActiveUserEvents)},
		{"average_events_per_user", formatFloat(s.AverageEventsPerUser)},
		{"activity_level", s.ActivityLevel},
		{"access_pattern", s.AccessPattern},
		{"activity_variance", formatFloat(s.ActivityVariance)},
		{"non_access_percent", formatFloat(s.NonAccessPercent)},
		{"duplicate_percent", formatFloat(s.DuplicatePercent)},
		{"off_hours_percent", formatFloat(s.OffHoursPercent)},
		{"classified_doors", strconv.Itoa(s.ClassifiedDoors)},
		{"compliance_score", formatFloat(s.ComplianceScore)},
	}
	for _, level := range model.SecurityLevels {
		rows = append(rows, []string{"doors_" + string(level), strconv.Itoa(s.SecurityDistribution[level])})
	}
	for i, d := range s.TopDevices {
		rows = append(rows, []string{fmt.Sprintf("top_device_%d", i+1), fmt.Sprintf("%s (%d)", d.DoorID, d.Count)})
	}

	if err := csvWriter.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write statistics: %w", err)
	}
	return nil
}

// ClassificationFile is the on-disk form of one layout's manual classifications.
type ClassificationFile struct {
	Fingerprint model.HeaderFingerprint    `json:"header_fingerprint" yaml:"header_fingerprint"`
	Doors       model.ClassificationRecord `json:"doors" yaml:"doors"`
}

// WriteClassifications encodes a classification file as YAML.
func WriteClassifications(w io.Writer, f ClassificationFile) error {
	return writeYAML(w, f)
}

// ReadClassifications decodes a YAML (or JSON, which is valid YAML) classification
// file. Security levels are normalized; unknown levels are rejected.
func ReadClassifications(r io.Reader) (ClassificationFile, error) {
	var f ClassificationFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return ClassificationFile{}, fmt.Errorf("classification file is empty")
		}
		return ClassificationFile{}, fmt.Errorf("failed to decode classification file: %w", err)
	}

	for door, c := range f.Doors {
		level, err := model.ParseSecurityLevel(string(c.SecurityLevel))
		if err != nil {
			return ClassificationFile{}, fmt.Errorf("door %q: %w", door, err)
		}
		if c.SecurityLevel != "" {
			c.SecurityLevel = level
		}
		f.Doors[door] = c
	}
	if f.Doors == nil {
		f.Doors = model.ClassificationRecord{}
	}
	return f, nil
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func writeYAML(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		_ = encoder.Close()
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return encoder.Close()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
