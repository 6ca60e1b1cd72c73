package normalize

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/onion-topology/internal/common"
	"github.com/Veraticus/onion-topology/internal/config"
	"github.com/Veraticus/onion-topology/internal/model"
	"github.com/Veraticus/onion-topology/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultOptions(t *testing.T) Options {
	t.Helper()
	opts, err := OptionsFromConfig(config.DefaultProcessing())
	require.NoError(t, err)
	return opts
}

func TestNormalize_SchemaErrors(t *testing.T) {
	table := testutil.NewLogBuilder().Tap(0, "alice", "MAIN").Table()

	tests := []struct {
		mapping     model.ColumnMapping
		name        string
		wantMissing []model.Role
		wantUnknown []string
	}{
		{
			name: "door role unmapped",
			mapping: model.ColumnMapping{
				testutil.ColTime:   model.RoleTimestamp,
				testutil.ColUser:   model.RoleUserID,
				testutil.ColResult: model.RoleEventType,
			},
			wantMissing: []model.Role{model.RoleDoorID},
		},
		{
			name:        "empty mapping",
			mapping:     model.ColumnMapping{},
			wantMissing: model.RequiredRoles,
		},
		{
			name: "mapped column absent from file",
			mapping: model.ColumnMapping{
				testutil.ColTime:   model.RoleTimestamp,
				testutil.ColUser:   model.RoleUserID,
				"Device":           model.RoleDoorID,
				testutil.ColResult: model.RoleEventType,
			},
			wantUnknown: []string{"Device"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(table, tt.mapping, defaultOptions(t))
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrSchema))

			var schemaErr *common.SchemaError
			require.True(t, errors.As(err, &schemaErr))
			assert.Equal(t, tt.wantMissing, schemaErr.Missing)
			assert.Equal(t, tt.wantUnknown, schemaErr.Unknown)
		})
	}
}

func TestNormalize_RescanScenario(t *testing.T) {
	// 19 users walk 5 distinct doors ten minutes apart (95 events); five of them
	// rescan their first door three seconds later.
	b := testutil.NewLogBuilder()
	doors := []string{"MAIN", "HALL", "LAB", "STORE", "ROOF"}
	for u := 0; u < 19; u++ {
		user := fmt.Sprintf("user-%02d", u)
		start := time.Duration(u) * time.Minute
		b.Walk(start, 10*time.Minute, user, doors...)
		if u < 5 {
			b.Tap(start+3*time.Second, user, "MAIN")
		}
	}
	require.Equal(t, 100, b.Len())

	res, err := Normalize(b.Table(), testutil.StandardMapping(), defaultOptions(t))
	require.NoError(t, err)

	assert.Equal(t, 100, res.OriginalRowCount)
	assert.Equal(t, 95, res.CleanedRowCount())
	assert.Equal(t, 5, res.DuplicateEvents)
	assert.Equal(t, 0, res.PingPongEvents)
	assert.Equal(t, 5, res.RemovedRows())
}

func TestNormalize_KeepsFirstOfRescanBurst(t *testing.T) {
	table := testutil.NewLogBuilder().
		TapWithResult(0, "alice", "MAIN", "FIRST").
		TapWithResult(4*time.Second, "alice", "MAIN", "SECOND").
		TapWithResult(8*time.Second, "alice", "MAIN", "THIRD").
		TapWithResult(30*time.Second, "alice", "MAIN", "LATER").
		Table()

	res, err := Normalize(table, testutil.StandardMapping(), defaultOptions(t))
	require.NoError(t, err)

	require.Len(t, res.Events, 2)
	assert.Equal(t, "FIRST", res.Events[0].EventType)
	assert.Equal(t, "LATER", res.Events[1].EventType)
	assert.Equal(t, 2, res.DuplicateEvents)
}

func TestNormalize_SteadyTapsKeepOnePerWindow(t *testing.T) {
	b := testutil.NewLogBuilder()
	for i := 0; i < 5; i++ {
		b.Tap(time.Duration(i)*8*time.Second, "alice", "MAIN")
	}

	res, err := Normalize(b.Table(), testutil.StandardMapping(), defaultOptions(t))
	require.NoError(t, err)

	// 0s kept, 8s folded, 16s kept, 24s folded, 32s kept
	require.Len(t, res.Events, 3)
	assert.True(t, res.Events[0].Timestamp.Equal(testutil.Base))
	assert.True(t, res.Events[1].Timestamp.Equal(testutil.Base.Add(16*time.Second)))
	assert.True(t, res.Events[2].Timestamp.Equal(testutil.Base.Add(32*time.Second)))
	assert.Equal(t, 2, res.DuplicateEvents)
}

func TestNormalize_UnparseableRows(t *testing.T) {
	table := testutil.NewLogBuilder().
		Tap(0, "alice", "MAIN").
		Raw("not a date", "bob", "MAIN", "ACCESS GRANTED").
		Raw("", "carol", "MAIN", "ACCESS GRANTED").
		Tap(time.Minute, "", "MAIN").
		Tap(2*time.Minute, "dave", "").
		Raw("1705305600", "erin", "LAB", "ACCESS GRANTED").
		Table()

	res, err := Normalize(table, testutil.StandardMapping(), defaultOptions(t))
	require.NoError(t, err)

	assert.Equal(t, 6, res.OriginalRowCount)
	assert.Equal(t, 4, res.UnparseableRows)
	require.Len(t, res.Events, 2)
	assert.Equal(t, "alice", res.Events[0].UserID)
	assert.Equal(t, "erin", res.Events[1].UserID)
	assert.True(t, res.Events[1].Timestamp.Equal(testutil.Base), "unix seconds parse as 2024-01-15 08:00 UTC")
}

func TestNormalize_ShortRowsAreUnparseable(t *testing.T) {
	table := model.RawTable{
		Headers: []string{testutil.ColTime, testutil.ColUser, testutil.ColDoor, testutil.ColResult},
		Rows: [][]string{
			{"2024-01-15 08:00:00", "alice", "MAIN"},
			{"2024-01-15 08:00:00"},
		},
	}

	res, err := Normalize(table, testutil.StandardMapping(), defaultOptions(t))
	require.NoError(t, err)
	assert.Equal(t, 1, res.CleanedRowCount(), "a missing event type is allowed")
	assert.Equal(t, 1, res.UnparseableRows)
}

func TestNormalize_PhraseFilter(t *testing.T) {
	table := testutil.NewLogBuilder().
		TapWithResult(0, "alice", "MAIN", "ACCESS GRANTED").
		TapWithResult(time.Hour, "alice", "LAB", "invalid access level").
		TapWithResult(2*time.Hour, "bob", "LAB", "Door held - NO ENTRY MADE").
		TapWithResult(3*time.Hour, "bob", "MAIN", "ACCESS GRANTED").
		Table()

	t.Run("no filtering by default", func(t *testing.T) {
		res, err := Normalize(table, testutil.StandardMapping(), defaultOptions(t))
		require.NoError(t, err)
		assert.Equal(t, 4, res.CleanedRowCount())
		assert.Zero(t, res.FilteredRows)
	})

	t.Run("exact and contains phrases", func(t *testing.T) {
		opts := defaultOptions(t)
		opts.InvalidPhrasesExact = []string{"INVALID ACCESS LEVEL"}
		opts.InvalidPhrasesContain = []string{"no entry made"}

		res, err := Normalize(table, testutil.StandardMapping(), opts)
		require.NoError(t, err)
		assert.Equal(t, 2, res.CleanedRowCount())
		assert.Equal(t, 2, res.FilteredRows)
		for _, ev := range res.Events {
			assert.Equal(t, "ACCESS GRANTED", ev.EventType)
		}
	})
}

func TestNormalize_PingPong(t *testing.T) {
	table := testutil.NewLogBuilder().
		Tap(0, "alice", "MAIN").
		Tap(20*time.Second, "alice", "LOBBY").
		Tap(40*time.Second, "alice", "MAIN").
		Tap(10*time.Minute, "alice", "LAB").
		// slow bounce is genuine movement
		Tap(0, "bob", "MAIN").
		Tap(2*time.Minute, "bob", "LOBBY").
		Tap(4*time.Minute, "bob", "MAIN").
		// a five-tap toggle collapses to its first tap
		Tap(0, "carol", "MAIN").
		Tap(15*time.Second, "carol", "LOBBY").
		Tap(30*time.Second, "carol", "MAIN").
		Tap(45*time.Second, "carol", "LOBBY").
		Tap(60*time.Second, "carol", "MAIN").
		Table()

	res, err := Normalize(table, testutil.StandardMapping(), defaultOptions(t))
	require.NoError(t, err)

	assert.Equal(t, 6, res.PingPongEvents)
	assert.Equal(t, 6, res.CleanedRowCount())

	doorsOf := func(user string) []string {
		var out []string
		for _, ev := range res.Events {
			if ev.UserID == user {
				out = append(out, ev.DoorID)
			}
		}
		return out
	}
	assert.Equal(t, []string{"MAIN", "LAB"}, doorsOf("alice"))
	assert.Equal(t, []string{"MAIN", "LOBBY", "MAIN"}, doorsOf("bob"))
	assert.Equal(t, []string{"MAIN"}, doorsOf("carol"))
}

func TestNormalize_CanonicalOrderAndImmutability(t *testing.T) {
	b := testutil.NewLogBuilder().
		Tap(time.Hour, "bob", "LAB").
		Tap(0, "carol", "MAIN").
		Tap(0, "alice", "MAIN")
	table := b.Table()
	snapshot := b.Table()

	res, err := Normalize(table, testutil.StandardMapping(), defaultOptions(t))
	require.NoError(t, err)

	require.Len(t, res.Events, 3)
	assert.Equal(t, "alice", res.Events[0].UserID)
	assert.Equal(t, "carol", res.Events[1].UserID)
	assert.Equal(t, "bob", res.Events[2].UserID)
	assert.Equal(t, snapshot, table, "input table must not be modified")
}

func TestNormalize_EmptyTable(t *testing.T) {
	table := testutil.NewLogBuilder().Table()
	res, err := Normalize(table, testutil.StandardMapping(), defaultOptions(t))
	require.NoError(t, err)
	assert.Zero(t, res.OriginalRowCount)
	assert.Empty(t, res.Events)
}

func TestParseTimestamp(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	ts, err := ParseTimestamp("01/15/2024 08:30", config.DefaultTimestampLayouts, berlin)
	require.NoError(t, err)
	assert.Equal(t, 8, ts.Hour())
	assert.Equal(t, berlin, ts.Location())

	ts, err = ParseTimestamp("2024-01-15T08:30:00Z", config.DefaultTimestampLayouts, berlin)
	require.NoError(t, err)
	assert.Equal(t, 9, ts.Hour(), "explicit offsets are converted to the configured zone")

	ts, err = ParseTimestamp("1705305600000", config.DefaultTimestampLayouts, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, testutil.Base, ts)

	_, err = ParseTimestamp("yesterday", config.DefaultTimestampLayouts, time.UTC)
	assert.Error(t, err)
}
