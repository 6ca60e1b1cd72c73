package components

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Veraticus/onion-topology/internal/model"
	"github.com/Veraticus/onion-topology/internal/tui/themes"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func manyRows(n int) []DoorRow {
	rows := make([]DoorRow, n)
	for i := range rows {
		rows[i] = DoorRow{Door: model.Door{DoorID: fmt.Sprintf("D%02d", i), OnionLayer: 1}}
	}
	return rows
}

func TestDoorRow_EffectiveValues(t *testing.T) {
	tests := []struct {
		name         string
		row          DoorRow
		wantFloor    string
		wantLevel    model.SecurityLevel
		wantEntrance bool
		wantStair    bool
	}{
		{
			name:      "falls back to defaults",
			row:       DoorRow{Door: model.Door{DoorID: "A"}},
			wantFloor: model.DefaultFloor,
			wantLevel: model.SecurityUnclassified,
		},
		{
			name:         "uses resolved door attributes",
			row:          DoorRow{Door: model.Door{DoorID: "A", Floor: "2", SecurityLevel: model.SecurityGreen, IsEntranceExit: true}},
			wantFloor:    "2",
			wantLevel:    model.SecurityGreen,
			wantEntrance: true,
		},
		{
			name: "manual values win",
			row: DoorRow{
				Door: model.Door{DoorID: "A", Floor: "2", IsEntranceExit: true},
				Classification: model.DoorClassification{
					Floor:          "4",
					SecurityLevel:  model.SecurityRed,
					IsEntranceExit: model.Bool(false),
					IsStair:        model.Bool(true),
				},
			},
			wantFloor: "4",
			wantLevel: model.SecurityRed,
			wantStair: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantFloor, tt.row.Floor())
			assert.Equal(t, tt.wantLevel, tt.row.SecurityLevel())
			assert.Equal(t, tt.wantEntrance, tt.row.IsEntranceExit())
			assert.Equal(t, tt.wantStair, tt.row.IsStair())
		})
	}
}

func TestDoorListModel_Scrolling(t *testing.T) {
	m := NewDoorListModel(manyRows(20), themes.Default)
	m.Resize(80, 7) // five visible rows

	for range 6 {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	}
	assert.Equal(t, 6, m.Cursor())

	view := m.View()
	assert.Contains(t, view, "D06")
	assert.NotContains(t, view, "D01")
	assert.Len(t, strings.Split(view, "\n"), 7)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyPgUp})
	assert.Equal(t, 1, m.Cursor())
	assert.Contains(t, m.View(), "D01")

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnd})
	assert.Equal(t, 19, m.Cursor())
	assert.Contains(t, m.View(), "D19")
}

func TestDoorListModel_SetSelected(t *testing.T) {
	m := NewDoorListModel(manyRows(3), themes.Default)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})

	row, ok := m.Selected()
	require.True(t, ok)
	row.Classification.SecurityLevel = model.SecurityYellow
	row.Edited = true
	m.SetSelected(row)

	assert.Equal(t, model.SecurityYellow, m.Rows()[1].SecurityLevel())
	assert.Contains(t, m.View(), "D01*")
}

func TestDoorListModel_Empty(t *testing.T) {
	m := NewDoorListModel(nil, themes.Default)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})

	_, ok := m.Selected()
	assert.False(t, ok)
	m.SetSelected(DoorRow{})
	assert.Empty(t, m.Rows())
	assert.Contains(t, m.View(), "No doors")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
