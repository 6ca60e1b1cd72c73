package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/onion-topology/internal/common"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, yamlDoc string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	if yamlDoc != "" {
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(strings.NewReader(yamlDoc)))
	}
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper(t, ""))
	require.NoError(t, err)

	p := cfg.Processing
	assert.Equal(t, 1, p.NumFloors)
	assert.Equal(t, 5, p.TopNHeuristicEntrances)
	assert.Equal(t, 10*time.Second, p.SameDoorScanThreshold)
	assert.Equal(t, time.Minute, p.PingPongThreshold)
	assert.Empty(t, p.InvalidPhrasesExact, "event-type filtering is off by default")
	assert.Empty(t, p.InvalidPhrasesContain)
	assert.Equal(t, 6, p.BusinessHoursStart)
	assert.Equal(t, 18, p.BusinessHoursEnd)
	assert.Equal(t, TieBreakDoorID, p.EntranceTieBreak)
	assert.Equal(t, DefaultTimestampLayouts, p.TimestampLayouts)
	assert.Equal(t, 1_000_000, cfg.Files.MaxRows)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromYAML(t *testing.T) {
	cfg, err := Load(newViper(t, `
processing:
  num_floors: 4
  same_door_scan_threshold: 5s
  ping_pong_threshold: 90s
  invalid_phrases_exact: ["INVALID ACCESS LEVEL"]
  invalid_phrases_contain: ["NO ENTRY MADE"]
  entrance_tie_break: earliest
  timezone: Europe/Berlin
storage:
  database_path: /tmp/onion-test.db
`))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Processing.NumFloors)
	assert.Equal(t, 5*time.Second, cfg.Processing.SameDoorScanThreshold)
	assert.Equal(t, 90*time.Second, cfg.Processing.PingPongThreshold)
	assert.Equal(t, []string{"INVALID ACCESS LEVEL"}, cfg.Processing.InvalidPhrasesExact)
	assert.Equal(t, TieBreakEarliest, cfg.Processing.EntranceTieBreak)
	assert.Equal(t, "/tmp/onion-test.db", cfg.Storage.DatabasePath)

	loc, err := cfg.Processing.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "zero floors", doc: "processing:\n  num_floors: 0\n"},
		{name: "bad tie break", doc: "processing:\n  entrance_tie_break: random\n"},
		{name: "inverted business hours", doc: "processing:\n  business_hours_start: 18\n  business_hours_end: 6\n"},
		{name: "share above one", doc: "processing:\n  critical_traffic_share: 1.5\n"},
		{name: "unknown timezone", doc: "processing:\n  timezone: Mars/Olympus\n"},
		{name: "bad log format", doc: "logging:\n  format: xml\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newViper(t, tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("ONION_TEST_DIR", "/data")

	assert.Equal(t, filepath.Join(home, "x", "onion.db"), ExpandPath("~/x/onion.db"))
	assert.Equal(t, home, ExpandPath("~"))
	assert.Equal(t, "/data/onion.db", ExpandPath("$ONION_TEST_DIR/onion.db"))
	assert.Equal(t, ":memory:", ExpandPath(":memory:"))
	assert.Equal(t, "", ExpandPath(""))
}
