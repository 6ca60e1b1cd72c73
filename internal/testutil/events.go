// Package testutil builds synthetic access logs for tests.
package testutil

import (
	"bytes"
	"encoding/csv"
	"time"

	"github.com/Veraticus/onion-topology/internal/model"
)

// Base is the reference instant for synthetic logs: Monday 2024-01-15 08:00 UTC.
var Base = time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)

// TimestampLayout is the layout LogBuilder writes timestamps in.
const TimestampLayout = "2006-01-02 15:04:05"

// Column names written by LogBuilder.
const (
	ColTime   = "Event Time"
	ColUser   = "Badge"
	ColDoor   = "Reader"
	ColResult = "Result"
)

// StandardMapping maps LogBuilder's columns to their semantic roles.
func StandardMapping() model.ColumnMapping {
	return model.ColumnMapping{
		ColTime:   model.RoleTimestamp,
		ColUser:   model.RoleUserID,
		ColDoor:   model.RoleDoorID,
		ColResult: model.RoleEventType,
	}
}

// LogBuilder assembles raw access-control tables for tests.
//
// Example:
//
//	table := testutil.NewLogBuilder().
//		Tap(0, "alice", "MAIN").
//		Tap(5*time.Minute, "alice", "LAB").
//		Table()
type LogBuilder struct {
	rows [][]string
}

// NewLogBuilder creates an empty builder.
func NewLogBuilder() *LogBuilder {
	return &LogBuilder{}
}

// Tap adds a granted access for user at door, offset from Base.
func (b *LogBuilder) Tap(offset time.Duration, user, door string) *LogBuilder {
	return b.TapWithResult(offset, user, door, "ACCESS GRANTED")
}

// TapWithResult adds an access with an explicit result code.
func (b *LogBuilder) TapWithResult(offset time.Duration, user, door, result string) *LogBuilder {
	return b.Raw(Base.Add(offset).Format(TimestampLayout), user, door, result)
}

// Raw adds a row verbatim, for malformed-input cases.
func (b *LogBuilder) Raw(timestamp, user, door, result string) *LogBuilder {
	b.rows = append(b.rows, []string{timestamp, user, door, result})
	return b
}

// Walk adds one tap per door for user, starting at offset and spaced by step.
func (b *LogBuilder) Walk(offset, step time.Duration, user string, doors ...string) *LogBuilder {
	for i, door := range doors {
		b.Tap(offset+time.Duration(i)*step, user, door)
	}
	return b
}

// Len returns the number of rows added so far.
func (b *LogBuilder) Len() int {
	return len(b.rows)
}

// Table returns a copy of the accumulated rows as a raw table.
func (b *LogBuilder) Table() model.RawTable {
	rows := make([][]string, len(b.rows))
	for i, r := range b.rows {
		rows[i] = append([]string(nil), r...)
	}
	return model.RawTable{
		Headers: []string{ColTime, ColUser, ColDoor, ColResult},
		Rows:    rows,
	}
}

// CSV renders the accumulated rows as a comma-separated file with a header row.
func (b *LogBuilder) CSV() []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	table := b.Table()
	// Writes to a bytes.Buffer cannot fail.
	_ = w.Write(table.Headers)
	_ = w.WriteAll(table.Rows)
	return buf.Bytes()
}

// Events builds already-normalized events, one per door, spaced by step from Base+offset.
func Events(offset, step time.Duration, user string, doors ...string) []model.Event {
	out := make([]model.Event, len(doors))
	for i, door := range doors {
		out[i] = model.Event{
			Timestamp: Base.Add(offset + time.Duration(i)*step),
			UserID:    user,
			DoorID:    door,
			EventType: "ACCESS GRANTED",
		}
	}
	return out
}
