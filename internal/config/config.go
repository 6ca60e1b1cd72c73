// Package config provides configuration loading and validation for the application.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/onion-topology/internal/common"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Entrance tie-break rules for the heuristic entrance ranking.
const (
	TieBreakDoorID   = "door_id"
	TieBreakEarliest = "earliest"
)

// Processing tunes the cleaning, graph and statistics stages.
type Processing struct {
	InvalidPhrasesExact        []string      `mapstructure:"invalid_phrases_exact"`
	InvalidPhrasesContain      []string      `mapstructure:"invalid_phrases_contain"`
	TimestampLayouts           []string      `mapstructure:"timestamp_layouts" validate:"min=1,dive,required"`
	EntranceTieBreak           string        `mapstructure:"entrance_tie_break" validate:"oneof=door_id earliest"`
	Timezone                   string        `mapstructure:"timezone" validate:"required"`
	NumFloors                  int           `mapstructure:"num_floors" validate:"gte=1"`
	TopNHeuristicEntrances     int           `mapstructure:"top_n_heuristic_entrances" validate:"gte=1"`
	SameDoorScanThreshold      time.Duration `mapstructure:"same_door_scan_threshold" validate:"gte=0"`
	PingPongThreshold          time.Duration `mapstructure:"ping_pong_threshold" validate:"gte=0"`
	EdgeMaxGap                 time.Duration `mapstructure:"edge_max_gap" validate:"gt=0"`
	SessionBoundary            time.Duration `mapstructure:"session_boundary" validate:"gt=0"`
	BusinessHoursStart         int           `mapstructure:"business_hours_start" validate:"gte=0,lte=23"`
	BusinessHoursEnd           int           `mapstructure:"business_hours_end" validate:"gte=1,lte=24,gtfield=BusinessHoursStart"`
	TopDevices                 int           `mapstructure:"top_devices" validate:"gte=1"`
	CriticalTrafficShare       float64       `mapstructure:"critical_traffic_share" validate:"gt=0,lte=1"`
	PeakHourAnomalyThreshold   int           `mapstructure:"peak_hour_anomaly_threshold" validate:"gte=0"`
	ComplianceAnomalyThreshold float64       `mapstructure:"compliance_anomaly_threshold" validate:"gte=0,lte=100"`
}

// Location resolves the configured timezone.
func (p Processing) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", common.ErrInvalidConfig, p.Timezone, err)
	}
	return loc, nil
}

// Files bounds what the CSV decoder accepts.
type Files struct {
	MaxFileSize int64 `mapstructure:"max_file_size" validate:"gt=0"`
	MaxRows     int   `mapstructure:"max_rows" validate:"gt=0"`
}

// Storage locates the classification database.
type Storage struct {
	DatabasePath string `mapstructure:"database_path" validate:"required"`
}

// Logging selects the slog handler.
type Logging struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// Config is the complete application configuration.
type Config struct {
	Storage    Storage    `mapstructure:"storage"`
	Logging    Logging    `mapstructure:"logging"`
	Processing Processing `mapstructure:"processing"`
	Files      Files      `mapstructure:"files"`
}

// DefaultTimestampLayouts are tried in order when parsing event timestamps.
var DefaultTimestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"2006/01/02 15:04:05",
	"02.01.2006 15:04:05",
}

// DefaultProcessing returns the processing defaults.
func DefaultProcessing() Processing {
	return Processing{
		NumFloors:                  1,
		TopNHeuristicEntrances:     5,
		EntranceTieBreak:           TieBreakDoorID,
		SameDoorScanThreshold:      10 * time.Second,
		PingPongThreshold:          time.Minute,
		InvalidPhrasesExact:        []string{},
		InvalidPhrasesContain:      []string{},
		EdgeMaxGap:                 4 * time.Hour,
		SessionBoundary:            2 * time.Hour,
		BusinessHoursStart:         6,
		BusinessHoursEnd:           18,
		TopDevices:                 5,
		CriticalTrafficShare:       0.25,
		PeakHourAnomalyThreshold:   1000,
		ComplianceAnomalyThreshold: 50,
		Timezone:                   "UTC",
		TimestampLayouts:           append([]string(nil), DefaultTimestampLayouts...),
	}
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	p := DefaultProcessing()
	v.SetDefault("processing.num_floors", p.NumFloors)
	v.SetDefault("processing.top_n_heuristic_entrances", p.TopNHeuristicEntrances)
	v.SetDefault("processing.entrance_tie_break", p.EntranceTieBreak)
	v.SetDefault("processing.same_door_scan_threshold", p.SameDoorScanThreshold)
	v.SetDefault("processing.ping_pong_threshold", p.PingPongThreshold)
	v.SetDefault("processing.invalid_phrases_exact", p.InvalidPhrasesExact)
	v.SetDefault("processing.invalid_phrases_contain", p.InvalidPhrasesContain)
	v.SetDefault("processing.edge_max_gap", p.EdgeMaxGap)
	v.SetDefault("processing.session_boundary", p.SessionBoundary)
	v.SetDefault("processing.business_hours_start", p.BusinessHoursStart)
	v.SetDefault("processing.business_hours_end", p.BusinessHoursEnd)
	v.SetDefault("processing.top_devices", p.TopDevices)
	v.SetDefault("processing.critical_traffic_share", p.CriticalTrafficShare)
	v.SetDefault("processing.peak_hour_anomaly_threshold", p.PeakHourAnomalyThreshold)
	v.SetDefault("processing.compliance_anomaly_threshold", p.ComplianceAnomalyThreshold)
	v.SetDefault("processing.timezone", p.Timezone)
	v.SetDefault("processing.timestamp_layouts", p.TimestampLayouts)

	v.SetDefault("files.max_file_size", int64(10*1024*1024))
	v.SetDefault("files.max_rows", 1_000_000)

	v.SetDefault("storage.database_path", DefaultDatabasePath())

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}

	cfg.Storage.DatabasePath = ExpandPath(cfg.Storage.DatabasePath)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks struct constraints and the timezone.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %s", common.ErrInvalidConfig, formatValidationError(err))
	}
	if _, err := cfg.Processing.Location(); err != nil {
		return err
	}
	return nil
}

func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
