// Package stats computes the session statistics bundle and its anomaly flags.
//
// Every value is derived from the arguments of a single Compute call; the package
// keeps no state between calls.
package stats

import (
	"fmt"
	"sort"
	"time"

	"github.com/Veraticus/onion-topology/internal/config"
	"github.com/Veraticus/onion-topology/internal/model"
)

// Activity levels derived from the hourly variance.
const (
	ActivityHigh   = "High"
	ActivityMedium = "Medium"
	ActivityLow    = "Low"
)

// Access pattern labels derived from the peak hour.
const (
	PatternMorningRush     = "Morning Rush"
	PatternLunchActivity   = "Lunch Activity"
	PatternEveningRush     = "Evening Rush"
	PatternEveningActivity = "Evening Activity"
	PatternOffHours        = "Off-Hours Activity"
	PatternNone            = "No Pattern"
)

// Options tunes the statistics engine.
type Options struct {
	BusinessHoursStart         int
	BusinessHoursEnd           int
	TopDevices                 int
	PeakHourAnomalyThreshold   int
	ComplianceAnomalyThreshold float64
}

// OptionsFromConfig derives statistics options from the processing config.
func OptionsFromConfig(p config.Processing) Options {
	return Options{
		BusinessHoursStart:         p.BusinessHoursStart,
		BusinessHoursEnd:           p.BusinessHoursEnd,
		TopDevices:                 p.TopDevices,
		PeakHourAnomalyThreshold:   p.PeakHourAnomalyThreshold,
		ComplianceAnomalyThreshold: p.ComplianceAnomalyThreshold,
	}
}

// Input is the data a bundle is computed from.
type Input struct {
	Events           []model.Event
	Doors            []model.Door
	OriginalRowCount int
	DuplicateEvents  int
}

// DeviceCount is a door and its number of events.
type DeviceCount struct {
	DoorID string `json:"door_id" yaml:"door_id"`
	Count  int    `json:"count" yaml:"count"`
}

// Bundle is the complete statistics result for one session.
type Bundle struct {
	DateStart            time.Time                   `json:"date_start" yaml:"date_start"`
	DateEnd              time.Time                   `json:"date_end" yaml:"date_end"`
	SecurityDistribution map[model.SecurityLevel]int `json:"security_distribution" yaml:"security_distribution"`
	BusiestDay           string                      `json:"busiest_day" yaml:"busiest_day"`
	MostActiveUser       string                      `json:"most_active_user" yaml:"most_active_user"`
	ActivityLevel        string                      `json:"activity_level" yaml:"activity_level"`
	AccessPattern        string                      `json:"access_pattern" yaml:"access_pattern"`
	BusiestFloor         string                      `json:"busiest_floor" yaml:"busiest_floor"`
	TopDevices           []DeviceCount               `json:"top_devices" yaml:"top_devices"`
	Flags                []model.AnomalyFlag         `json:"anomaly_flags" yaml:"anomaly_flags"`
	HourlyCounts         [24]int                     `json:"hourly_counts" yaml:"hourly_counts"`
	TotalEvents          int                         `json:"total_events" yaml:"total_events"`
	CleanedEvents        int                         `json:"cleaned_events" yaml:"cleaned_events"`
	UniqueUsers          int                         `json:"unique_users" yaml:"unique_users"`
	UniqueDevices        int                         `json:"unique_devices" yaml:"unique_devices"`
	ActiveDays           int                         `json:"active_days" yaml:"active_days"`
	ClassifiedDoors      int                         `json:"classified_doors" yaml:"classified_doors"`
	NonAccessEvents      int                         `json:"non_access_events" yaml:"non_access_events"`
	DuplicateEvents      int                         `json:"duplicate_events" yaml:"duplicate_events"`
	OffHoursEvents       int                         `json:"off_hours_events" yaml:"off_hours_events"`
	PeakHour             int                         `json:"peak_hour" yaml:"peak_hour"`
	PeakHourEvents       int                         `json:"peak_hour_events" yaml:"peak_hour_events"`
	MostActiveUserEvents int                         `json:"most_active_user_events" yaml:"most_active_user_events"`
	EventsPerActiveDay   float64                     `json:"events_per_active_day" yaml:"events_per_active_day"`
	ComplianceScore      float64                     `json:"compliance_score" yaml:"compliance_score"`
	NonAccessPercent     float64                     `json:"non_access_percent" yaml:"non_access_percent"`
	DuplicatePercent     float64                     `json:"duplicate_percent" yaml:"duplicate_percent"`
	OffHoursPercent      float64                     `json:"off_hours_percent" yaml:"off_hours_percent"`
	AverageEventsPerUser float64                     `json:"average_events_per_user" yaml:"average_events_per_user"`
	ActivityVariance     float64                     `json:"activity_variance" yaml:"activity_variance"`
}

// HasData reports whether the bundle was computed from at least one event.
func (b Bundle) HasData() bool {
	return b.CleanedEvents > 0
}

// Compute builds a fresh bundle. Non-access events are reported against the
// original row count; duplicate and off-hours events against the cleaned count.
func Compute(in Input, opts Options) Bundle {
	b := Bundle{
		TotalEvents:          in.OriginalRowCount,
		CleanedEvents:        len(in.Events),
		DuplicateEvents:      in.DuplicateEvents,
		SecurityDistribution: make(map[model.SecurityLevel]int, len(model.SecurityLevels)),
		PeakHour:             -1,
		AccessPattern:        PatternNone,
		ActivityLevel:        ActivityLow,
	}

	b.NonAccessEvents = max(in.OriginalRowCount-len(in.Events), 0)
	b.NonAccessPercent = Percent(b.NonAccessEvents, in.OriginalRowCount)
	b.DuplicatePercent = Percent(in.DuplicateEvents, len(in.Events))

	for _, level := range model.SecurityLevels {
		b.SecurityDistribution[level] = 0
	}
	floorOf := make(map[string]string, len(in.Doors))
	for _, d := range in.Doors {
		b.SecurityDistribution[d.SecurityLevel]++
		floorOf[d.DoorID] = d.Floor
	}
	b.ClassifiedDoors = len(in.Doors) - b.SecurityDistribution[model.SecurityUnclassified]
	b.ComplianceScore = complianceScore(b.SecurityDistribution, b.ClassifiedDoors)

	if len(in.Events) > 0 {
		summarizeEvents(&b, in.Events, floorOf, opts)
	}

	b.Flags = anomalies(b, opts)
	return b
}

func summarizeEvents(b *Bundle, events []model.Event, floorOf map[string]string, opts Options) {
	users := make(map[string]int)
	devices := make(map[string]int)
	days := make(map[string]bool)
	floors := make(map[string]int)
	var weekdays [7]int

	b.DateStart, b.DateEnd = events[0].Timestamp, events[0].Timestamp
	for _, ev := range events {
		users[ev.UserID]++
		devices[ev.DoorID]++
		days[ev.Timestamp.Format(time.DateOnly)] = true
		weekdays[ev.Timestamp.Weekday()]++

		hour := ev.Timestamp.Hour()
		b.HourlyCounts[hour]++
		if hour < opts.BusinessHoursStart || hour >= opts.BusinessHoursEnd {
			b.OffHoursEvents++
		}

		floor, ok := floorOf[ev.DoorID]
		if !ok || floor == "" {
			floor = model.DefaultFloor
		}
		floors[floor]++

		if ev.Timestamp.Before(b.DateStart) {
			b.DateStart = ev.Timestamp
		}
		if ev.Timestamp.After(b.DateEnd) {
			b.DateEnd = ev.Timestamp
		}
	}

	b.UniqueUsers = len(users)
	b.UniqueDevices = len(devices)
	b.ActiveDays = len(days)
	b.EventsPerActiveDay = float64(len(events)) / float64(len(days))
	b.OffHoursPercent = Percent(b.OffHoursEvents, len(events))
	b.TopDevices = topDevices(devices, opts.TopDevices)

	b.MostActiveUser, b.MostActiveUserEvents = busiest(users)
	b.AverageEventsPerUser = float64(len(events)) / float64(len(users))
	b.BusiestFloor, _ = busiest(floors)

	for hour, n := range b.HourlyCounts {
		if n > b.PeakHourEvents {
			b.PeakHour, b.PeakHourEvents = hour, n
		}
	}
	b.AccessPattern = AccessPattern(b.PeakHour)

	busiestDay := time.Sunday
	for day, n := range weekdays {
		if n > weekdays[busiestDay] {
			busiestDay = time.Weekday(day)
		}
	}
	b.BusiestDay = busiestDay.String()

	hourly := make([]float64, len(b.HourlyCounts))
	for i, n := range b.HourlyCounts {
		hourly[i] = float64(n)
	}
	b.ActivityVariance = Variance(hourly)
	b.ActivityLevel = ActivityLevel(b.ActivityVariance)
}

// complianceScore weights green doors fully and yellow doors by half, over all
// classified doors. It is 0 when nothing is classified.
func complianceScore(dist map[model.SecurityLevel]int, classified int) float64 {
	if classified == 0 {
		return 0
	}
	weighted := float64(dist[model.SecurityGreen]) + 0.5*float64(dist[model.SecurityYellow])
	return weighted / float64(classified) * 100
}

// ActivityLevel buckets the hourly activity variance.
func ActivityLevel(variance float64) string {
	switch {
	case variance > 1000:
		return ActivityHigh
	case variance > 500:
		return ActivityMedium
	default:
		return ActivityLow
	}
}

// AccessPattern labels the facility's rhythm by its peak hour; -1 means no data.
func AccessPattern(peakHour int) string {
	switch {
	case peakHour < 0:
		return PatternNone
	case peakHour >= 7 && peakHour <= 10:
		return PatternMorningRush
	case peakHour >= 11 && peakHour <= 14:
		return PatternLunchActivity
	case peakHour >= 15 && peakHour <= 18:
		return PatternEveningRush
	case peakHour >= 19 && peakHour <= 23:
		return PatternEveningActivity
	default:
		return PatternOffHours
	}
}

func topDevices(devices map[string]int, n int) []DeviceCount {
	out := make([]DeviceCount, 0, len(devices))
	for id, count := range devices {
		out = append(out, DeviceCount{DoorID: id, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].DoorID < out[j].DoorID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// busiest returns the key with the highest count; ties go to the smallest key.
func busiest(counts map[string]int) (string, int) {
	var (
		best  string
		bestN int
	)
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best, bestN
}

func anomalies(b Bundle, opts Options) []model.AnomalyFlag {
	var flags []model.AnomalyFlag
	if b.PeakHour >= 0 && b.PeakHourEvents > opts.PeakHourAnomalyThreshold {
		flags = append(flags, model.AnomalyFlag{
			Kind:    model.AnomalyHighPeakActivity,
			Message: fmt.Sprintf("%d events in the %02d:00 hour exceeds the threshold of %d", b.PeakHourEvents, b.PeakHour, opts.PeakHourAnomalyThreshold),
		})
	}
	if b.ClassifiedDoors > 0 && b.ComplianceScore < opts.ComplianceAnomalyThreshold {
		flags = append(flags, model.AnomalyFlag{
			Kind:    model.AnomalyLowCompliance,
			Message: fmt.Sprintf("compliance score %.1f%% is below %.0f%%", b.ComplianceScore, opts.ComplianceAnomalyThreshold),
		})
	}
	return flags
}
