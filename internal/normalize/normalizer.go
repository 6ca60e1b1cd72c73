// Package normalize turns a raw access-control table into a clean, canonical event list.
package normalize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/onion-topology/internal/common"
	"github.com/Veraticus/onion-topology/internal/config"
	"github.com/Veraticus/onion-topology/internal/model"
)

// Options controls how rows are parsed and which rows count as noise.
type Options struct {
	Location              *time.Location
	TimestampLayouts      []string
	InvalidPhrasesExact   []string
	InvalidPhrasesContain []string
	SameDoorScanThreshold time.Duration
	PingPongThreshold     time.Duration
}

// OptionsFromConfig derives normalizer options from the processing config.
func OptionsFromConfig(p config.Processing) (Options, error) {
	loc, err := p.Location()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Location:              loc,
		TimestampLayouts:      p.TimestampLayouts,
		InvalidPhrasesExact:   p.InvalidPhrasesExact,
		InvalidPhrasesContain: p.InvalidPhrasesContain,
		SameDoorScanThreshold: p.SameDoorScanThreshold,
		PingPongThreshold:     p.PingPongThreshold,
	}, nil
}

// Result is the cleaned table plus an account of every removed row.
// OriginalRowCount always equals CleanedRowCount plus the four removal counters.
type Result struct {
	Events           []model.Event
	OriginalRowCount int
	UnparseableRows  int
	FilteredRows     int
	DuplicateEvents  int
	PingPongEvents   int
}

// CleanedRowCount is the number of events that survived cleaning.
func (r Result) CleanedRowCount() int {
	return len(r.Events)
}

// RemovedRows is the number of uploaded rows that did not survive cleaning.
func (r Result) RemovedRows() int {
	return r.OriginalRowCount - len(r.Events)
}

type indexedEvent struct {
	model.Event
	row int
}

// Normalize parses, filters and de-noises the table. The table is not modified.
func Normalize(table model.RawTable, mapping model.ColumnMapping, opts Options) (Result, error) {
	cols, err := resolveColumns(table.Headers, mapping)
	if err != nil {
		return Result{}, err
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if len(opts.TimestampLayouts) == 0 {
		opts.TimestampLayouts = config.DefaultTimestampLayouts
	}

	res := Result{OriginalRowCount: len(table.Rows)}
	filter := newPhraseFilter(opts.InvalidPhrasesExact, opts.InvalidPhrasesContain)

	byUser := make(map[string][]indexedEvent)
	for i, row := range table.Rows {
		ev, ok := parseRow(row, cols, opts)
		if !ok {
			res.UnparseableRows++
			continue
		}
		if filter.excludes(ev.EventType) {
			res.FilteredRows++
			continue
		}
		byUser[ev.UserID] = append(byUser[ev.UserID], indexedEvent{Event: ev, row: i})
	}

	cleaned := make([]indexedEvent, 0, len(table.Rows))
	for _, user := range sortedKeys(byUser) {
		seq := byUser[user]
		sort.SliceStable(seq, func(a, b int) bool {
			if !seq[a].Timestamp.Equal(seq[b].Timestamp) {
				return seq[a].Timestamp.Before(seq[b].Timestamp)
			}
			return seq[a].row < seq[b].row
		})

		var dropped int
		seq, dropped = collapseRescans(seq, opts.SameDoorScanThreshold)
		res.DuplicateEvents += dropped

		seq, dropped = dropPingPong(seq, opts.PingPongThreshold)
		res.PingPongEvents += dropped

		cleaned = append(cleaned, seq...)
	}

	sort.SliceStable(cleaned, func(a, b int) bool {
		x, y := cleaned[a], cleaned[b]
		if !x.Timestamp.Equal(y.Timestamp) {
			return x.Timestamp.Before(y.Timestamp)
		}
		if x.UserID != y.UserID {
			return x.UserID < y.UserID
		}
		return x.row < y.row
	})

	res.Events = make([]model.Event, len(cleaned))
	for i, ev := range cleaned {
		res.Events[i] = ev.Event
	}

	common.LogDebug("Normalized event log", common.Fields{
		"original_rows": res.OriginalRowCount,
		"cleaned_rows":  len(res.Events),
		"unparseable":   res.UnparseableRows,
		"filtered":      res.FilteredRows,
		"duplicates":    res.DuplicateEvents,
		"ping_pong":     res.PingPongEvents,
	})

	return res, nil
}

type columnIndex struct {
	timestamp int
	user      int
	door      int
	eventType int
}

// ValidateMapping checks that every required role maps to a column present in headers.
func ValidateMapping(headers []string, mapping model.ColumnMapping) error {
	_, err := resolveColumns(headers, mapping)
	return err
}

func resolveColumns(headers []string, mapping model.ColumnMapping) (columnIndex, error) {
	position := make(map[string]int, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(h)
		if _, dup := position[h]; !dup {
			position[h] = i
		}
	}

	schemaErr := &common.SchemaError{}
	idx := make(map[model.Role]int, len(model.RequiredRoles))
	for _, role := range model.RequiredRoles {
		col, ok := mapping.ColumnFor(role)
		if !ok {
			schemaErr.Missing = append(schemaErr.Missing, role)
			continue
		}
		pos, ok := position[strings.TrimSpace(col)]
		if !ok {
			schemaErr.Unknown = append(schemaErr.Unknown, col)
			continue
		}
		idx[role] = pos
	}

	if len(schemaErr.Missing) > 0 || len(schemaErr.Unknown) > 0 {
		return columnIndex{}, schemaErr
	}

	return columnIndex{
		timestamp: idx[model.RoleTimestamp],
		user:      idx[model.RoleUserID],
		door:      idx[model.RoleDoorID],
		eventType: idx[model.RoleEventType],
	}, nil
}

func parseRow(row []string, cols columnIndex, opts Options) (model.Event, bool) {
	cell := func(i int) string {
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	ts, err := ParseTimestamp(cell(cols.timestamp), opts.TimestampLayouts, opts.Location)
	if err != nil {
		return model.Event{}, false
	}

	ev := model.Event{
		Timestamp: ts,
		UserID:    cell(cols.user),
		DoorID:    cell(cols.door),
		EventType: cell(cols.eventType),
	}
	if ev.UserID == "" || ev.DoorID == "" {
		return model.Event{}, false
	}
	return ev, true
}

// ParseTimestamp tries each layout in order, then Unix seconds or milliseconds.
func ParseTimestamp(s string, layouts []string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range layouts {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts.In(loc), nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		if n >= 1e12 {
			return time.UnixMilli(n).In(loc), nil
		}
		return time.Unix(n, 0).In(loc), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// collapseRescans keeps the first of consecutive same-door taps. A tap is dropped
// when it falls within window of the last kept tap at that door, so a steady
// stream of taps keeps one event per window rather than folding into the first.
func collapseRescans(seq []indexedEvent, window time.Duration) ([]indexedEvent, int) {
	out := make([]indexedEvent, 0, len(seq))
	dropped := 0
	for _, ev := range seq {
		if n := len(out); n > 0 {
			last := out[n-1]
			if ev.DoorID == last.DoorID && ev.Timestamp.Sub(last.Timestamp) <= window {
				dropped++
				continue
			}
		}
		out = append(out, ev)
	}
	return out, dropped
}

// dropPingPong removes A→B→A bounces where both hops are faster than threshold.
// The first A is kept; the bounce to B and the return to A are dropped. Passes
// repeat until no bounce remains, so a longer rapid toggle collapses to its first tap.
func dropPingPong(seq []indexedEvent, threshold time.Duration) ([]indexedEvent, int) {
	total := 0
	for {
		next, dropped := dropPingPongPass(seq, threshold)
		total += dropped
		if dropped == 0 {
			return next, total
		}
		seq = next
	}
}

func dropPingPongPass(seq []indexedEvent, threshold time.Duration) ([]indexedEvent, int) {
	out := make([]indexedEvent, 0, len(seq))
	dropped := 0
	for i := 0; i < len(seq); {
		if i+2 < len(seq) {
			a, b, c := seq[i], seq[i+1], seq[i+2]
			if a.DoorID == c.DoorID && a.DoorID != b.DoorID &&
				b.Timestamp.Sub(a.Timestamp) < threshold &&
				c.Timestamp.Sub(b.Timestamp) < threshold {
				out = append(out, a)
				dropped += 2
				i += 3
				continue
			}
		}
		out = append(out, seq[i])
		i++
	}
	return out, dropped
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
