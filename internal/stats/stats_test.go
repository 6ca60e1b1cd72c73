package stats

import (
	"testing"
	"time"

	"github.com/Veraticus/onion-topology/internal/config"
	"github.com/Veraticus/onion-topology/internal/model"
	"github.com/Veraticus/onion-topology/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultOptions() Options {
	return OptionsFromConfig(config.DefaultProcessing())
}

func concat(groups ...[]model.Event) []model.Event {
	var out []model.Event
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func door(id, floor string, level model.SecurityLevel) model.Door {
	return model.Door{DoorID: id, Floor: floor, SecurityLevel: level}
}

func TestCompute_Counts(t *testing.T) {
	events := concat(
		// Monday 08:00
		testutil.Events(0, time.Minute, "alice", "MAIN", "LAB", "LAB"),
		// Monday 20:00, off hours
		testutil.Events(12*time.Hour, time.Minute, "bob", "MAIN"),
		// Tuesday 05:00, off hours
		testutil.Events(21*time.Hour, time.Minute, "alice", "MAIN"),
	)
	doors := []model.Door{
		door("MAIN", "1", model.SecurityGreen),
		door("LAB", "2", model.SecurityRed),
	}

	b := Compute(Input{Events: events, Doors: doors, OriginalRowCount: 10, DuplicateEvents: 1}, defaultOptions())

	assert.Equal(t, 10, b.TotalEvents)
	assert.Equal(t, 5, b.CleanedEvents)
	assert.Equal(t, 2, b.UniqueUsers)
	assert.Equal(t, 2, b.UniqueDevices)
	assert.Equal(t, 2, b.ActiveDays)
	assert.InDelta(t, 2.5, b.EventsPerActiveDay, 1e-9)
	assert.Equal(t, testutil.Base, b.DateStart)
	assert.Equal(t, testutil.Base.Add(21*time.Hour), b.DateEnd)

	assert.Equal(t, 5, b.NonAccessEvents)
	assert.InDelta(t, 50.0, b.NonAccessPercent, 1e-9, "non-access events are a share of the original rows")
	assert.Equal(t, 1, b.DuplicateEvents)
	assert.InDelta(t, 20.0, b.DuplicatePercent, 1e-9, "duplicates are a share of the cleaned rows")
	assert.Equal(t, 2, b.OffHoursEvents)
	assert.InDelta(t, 40.0, b.OffHoursPercent, 1e-9)

	assert.Equal(t, []DeviceCount{{DoorID: "MAIN", Count: 3}, {DoorID: "LAB", Count: 2}}, b.TopDevices)
	assert.Equal(t, "alice", b.MostActiveUser)
	assert.Equal(t, 4, b.MostActiveUserEvents)
	assert.InDelta(t, 2.5, b.AverageEventsPerUser, 1e-9)
	assert.Equal(t, "1", b.BusiestFloor)
	assert.Equal(t, "Monday", b.BusiestDay)
	assert.Equal(t, 8, b.PeakHour)
	assert.Equal(t, 3, b.PeakHourEvents)
	assert.Equal(t, PatternMorningRush, b.AccessPattern)
}

func TestCompute_OffHoursBoundaries(t *testing.T) {
	// testutil.Base is 08:00
	tests := []struct {
		name    string
		offset  time.Duration
		wantOff int
	}{
		{name: "05:59 is off hours", offset: -2*time.Hour - time.Minute, wantOff: 1},
		{name: "06:00 opens business hours", offset: -2 * time.Hour, wantOff: 0},
		{name: "17:59 is business hours", offset: 9*time.Hour + 59*time.Minute, wantOff: 0},
		{name: "18:00 is off hours", offset: 10 * time.Hour, wantOff: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := testutil.Events(tt.offset, time.Minute, "alice", "MAIN")
			b := Compute(Input{Events: events, OriginalRowCount: 1}, defaultOptions())
			assert.Equal(t, tt.wantOff, b.OffHoursEvents)
		})
	}
}

func TestCompute_SecurityDistributionAndCompliance(t *testing.T) {
	tests := []struct {
		name       string
		doors      []model.Door
		wantScore  float64
		wantLowFlg bool
	}{
		{
			name:      "nothing classified",
			doors:     []model.Door{door("A", "1", model.SecurityUnclassified)},
			wantScore: 0,
		},
		{
			name: "all green",
			doors: []model.Door{
				door("A", "1", model.SecurityGreen),
				door("B", "1", model.SecurityGreen),
				door("C", "1", model.SecurityUnclassified),
			},
			wantScore: 100,
		},
		{
			name: "green yellow red",
			doors: []model.Door{
				door("A", "1", model.SecurityGreen),
				door("B", "1", model.SecurityYellow),
				door("C", "1", model.SecurityRed),
				door("D", "1", model.SecurityRed),
			},
			wantScore:  37.5,
			wantLowFlg: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := testutil.Events(0, time.Minute, "alice", "A")
			b := Compute(Input{Events: events, Doors: tt.doors, OriginalRowCount: 1}, defaultOptions())

			assert.InDelta(t, tt.wantScore, b.ComplianceScore, 1e-9)
			require.Len(t, b.SecurityDistribution, 4, "every level is always present")

			total := 0
			for _, n := range b.SecurityDistribution {
				total += n
			}
			assert.Equal(t, len(tt.doors), total)

			var low bool
			for _, f := range b.Flags {
				if f.Kind == model.AnomalyLowCompliance {
					low = true
				}
			}
			assert.Equal(t, tt.wantLowFlg, low)
		})
	}
}

func TestCompute_HighPeakActivity(t *testing.T) {
	var events []model.Event
	for i := 0; i < 12; i++ {
		events = append(events, testutil.Events(time.Duration(i)*time.Second, 0, "alice", "MAIN")...)
	}
	opts := defaultOptions()
	opts.PeakHourAnomalyThreshold = 10

	b := Compute(Input{Events: events, OriginalRowCount: len(events)}, opts)

	require.Len(t, b.Flags, 1)
	assert.Equal(t, model.AnomalyHighPeakActivity, b.Flags[0].Kind)
}

func TestCompute_Empty(t *testing.T) {
	b := Compute(Input{OriginalRowCount: 7}, defaultOptions())

	assert.False(t, b.HasData())
	assert.Equal(t, 7, b.NonAccessEvents)
	assert.InDelta(t, 100.0, b.NonAccessPercent, 1e-9)
	assert.Zero(t, b.DuplicatePercent)
	assert.Zero(t, b.OffHoursPercent)
	assert.Equal(t, -1, b.PeakHour)
	assert.Equal(t, PatternNone, b.AccessPattern)
	assert.Empty(t, b.TopDevices)
	assert.Empty(t, b.Flags)
}

func TestCompute_IsFreshPerCall(t *testing.T) {
	events := testutil.Events(0, time.Minute, "alice", "MAIN", "LAB")
	first := Compute(Input{Events: events, OriginalRowCount: 2}, defaultOptions())
	second := Compute(Input{OriginalRowCount: 0}, defaultOptions())

	assert.True(t, first.HasData())
	assert.Zero(t, second.CleanedEvents)
	assert.Zero(t, second.UniqueUsers)
	assert.Empty(t, second.MostActiveUser)

	again := Compute(Input{Events: events, OriginalRowCount: 2}, defaultOptions())
	assert.Equal(t, first, again)
}

func TestAccessPattern(t *testing.T) {
	tests := map[int]string{
		-1: PatternNone,
		3:  PatternOffHours,
		7:  PatternMorningRush,
		10: PatternMorningRush,
		12: PatternLunchActivity,
		18: PatternEveningRush,
		22: PatternEveningActivity,
	}
	for hour, want := range tests {
		assert.Equal(t, want, AccessPattern(hour), "hour %d", hour)
	}
}

func TestActivityLevel(t *testing.T) {
	assert.Equal(t, ActivityHigh, ActivityLevel(1000.5))
	assert.Equal(t, ActivityMedium, ActivityLevel(1000))
	assert.Equal(t, ActivityMedium, ActivityLevel(501))
	assert.Equal(t, ActivityLow, ActivityLevel(500))
}

func TestMeanVariance(t *testing.T) {
	assert.Zero(t, Mean(nil))
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-9)
	assert.Zero(t, Variance([]float64{4}))
	assert.InDelta(t, 1.0, Variance([]float64{1, 2, 3}), 1e-9)
	assert.Zero(t, Percent(3, 0))
}
