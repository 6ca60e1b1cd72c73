// Package tui is the interactive door classification editor.
package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/onion-topology/internal/model"
	"github.com/Veraticus/onion-topology/internal/tui/components"
	"github.com/Veraticus/onion-topology/internal/tui/themes"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Model holds the editor state.
type Model struct {
	theme        themes.Theme
	base         model.ClassificationRecord
	status       string
	help         help.Model
	keymap       KeyMap
	list         components.DoorListModel
	floorInput   textinput.Model
	numFloors    int
	width        int
	height       int
	statusErr    bool
	editingFloor bool
	saved        bool
	quitting     bool
}

// New creates an editor over doors. Existing manual values in record are shown
// and preserved; record entries for doors not in the list survive a save.
func New(doors []model.Door, record model.ClassificationRecord, cfg Config) Model {
	current := record.Clone()
	rows := make([]components.DoorRow, len(doors))
	for i, d := range doors {
		rows[i] = components.DoorRow{Door: d, Classification: current[d.DoorID]}
	}

	input := textinput.New()
	input.Prompt = "Floor: "
	input.CharLimit = 16
	input.Placeholder = model.DefaultFloor

	m := Model{
		theme:      cfg.Theme,
		base:       record.Clone(),
		help:       help.New(),
		keymap:     DefaultKeyMap(),
		list:       components.NewDoorListModel(rows, cfg.Theme),
		floorInput: input,
		numFloors:  max(cfg.NumFloors, 1),
		width:      cfg.Width,
		height:     cfg.Height,
	}
	m.help.Width = cfg.Width
	m.list.Resize(cfg.Width, m.listHeight())
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.list.Resize(msg.Width, m.listHeight())
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keymap.ForceQuit) {
			m.quitting = true
			return m, tea.Quit
		}
		if m.editingFloor {
			return m.updateFloorInput(msg)
		}
		return m.handleKey(msg)
	}

	if m.editingFloor {
		var cmd tea.Cmd
		m.floorInput, cmd = m.floorInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status = ""
	m.statusErr = false

	switch {
	case key.Matches(msg, m.keymap.Save):
		m.saved = true
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keymap.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keymap.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.list.Resize(m.width, m.listHeight())
		return m, nil

	case key.Matches(msg, m.keymap.CycleSecurity):
		m.edit(func(row *components.DoorRow) {
			row.Classification.SecurityLevel = row.SecurityLevel().Next()
		})

	case key.Matches(msg, m.keymap.ToggleEntrance):
		m.edit(func(row *components.DoorRow) {
			row.Classification.IsEntranceExit = model.Bool(!row.IsEntranceExit())
		})

	case key.Matches(msg, m.keymap.ToggleStair):
		m.edit(func(row *components.DoorRow) {
			row.Classification.IsStair = model.Bool(!row.IsStair())
		})

	case key.Matches(msg, m.keymap.FloorUp):
		m.edit(func(row *components.DoorRow) {
			row.Classification.Floor = m.stepFloor(row.Floor(), 1)
		})

	case key.Matches(msg, m.keymap.FloorDown):
		m.edit(func(row *components.DoorRow) {
			row.Classification.Floor = m.stepFloor(row.Floor(), -1)
		})

	case key.Matches(msg, m.keymap.EditFloor):
		row, ok := m.list.Selected()
		if !ok {
			return m, nil
		}
		m.editingFloor = true
		m.floorInput.SetValue(row.Floor())
		m.floorInput.CursorEnd()
		return m, m.floorInput.Focus()

	case key.Matches(msg, m.keymap.Reset):
		row, ok := m.list.Selected()
		if !ok {
			return m, nil
		}
		row.Classification = m.base.Clone()[row.Door.DoorID]
		row.Edited = false
		m.list.SetSelected(row)
		m.status = fmt.Sprintf("%s reset", row.Door.DoorID)

	default:
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateFloorInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Cancel):
		m.editingFloor = false
		m.floorInput.Blur()
		return m, nil

	case key.Matches(msg, m.keymap.Confirm):
		value := strings.TrimSpace(m.floorInput.Value())
		if value == "" {
			m.status = "floor cannot be empty"
			m.statusErr = true
			return m, nil
		}
		m.editingFloor = false
		m.floorInput.Blur()
		m.edit(func(row *components.DoorRow) {
			row.Classification.Floor = value
		})
		if n, err := strconv.Atoi(value); err == nil && (n < 1 || n > m.numFloors) {
			m.status = fmt.Sprintf("floor %d is outside 1..%d", n, m.numFloors)
			m.statusErr = true
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.floorInput, cmd = m.floorInput.Update(msg)
	return m, cmd
}

// edit applies fn to the selected row and marks it edited.
func (m *Model) edit(fn func(row *components.DoorRow)) {
	row, ok := m.list.Selected()
	if !ok {
		return
	}
	fn(&row)
	row.Edited = true
	m.list.SetSelected(row)
}

// stepFloor moves a numeric floor by delta within 1..numFloors. Named floors
// restart at the default floor.
func (m Model) stepFloor(floor string, delta int) string {
	n, err := strconv.Atoi(floor)
	if err != nil {
		return model.DefaultFloor
	}
	return strconv.Itoa(min(max(n+delta, 1), m.numFloors))
}

func (m Model) listHeight() int {
	// title, subtitle, detail box, status and help
	reserved := 9
	if m.help.ShowAll {
		reserved += 4
	}
	return max(m.height-reserved, 3)
}

// Saved reports whether the operator chose to save.
func (m Model) Saved() bool {
	return m.saved
}

// Edited returns the number of doors changed in this session.
func (m Model) Edited() int {
	n := 0
	for _, row := range m.list.Rows() {
		if row.Edited {
			n++
		}
	}
	return n
}

// Record returns the classification record with every listed door fully
// specified. Entries for unlisted doors are carried over unchanged.
func (m Model) Record() model.ClassificationRecord {
	out := m.base.Clone()
	if out == nil {
		out = make(model.ClassificationRecord)
	}
	for _, row := range m.list.Rows() {
		out[row.Door.DoorID] = model.DoorClassification{
			Floor:          row.Floor(),
			IsEntranceExit: model.Bool(row.IsEntranceExit()),
			IsStair:        model.Bool(row.IsStair()),
			SecurityLevel:  row.SecurityLevel(),
		}
	}
	return out
}

// View renders the editor.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	rows := m.list.Rows()
	subtitle := fmt.Sprintf("%d doors · floors 1-%d · %d edited", len(rows), m.numFloors, m.Edited())

	sections := []string{
		m.theme.Title.Render("Classify doors"),
		m.theme.Subtitle.Render(subtitle),
		m.list.View(),
		m.renderDetail(),
	}

	switch {
	case m.editingFloor:
		sections = append(sections, m.floorInput.View())
	case m.status != "" && m.statusErr:
		sections = append(sections, m.theme.StatusError.Render(m.status))
	case m.status != "":
		sections = append(sections, m.theme.StatusInfo.Render(m.status))
	}

	sections = append(sections, m.help.View(m.keymap))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderDetail() string {
	row, ok := m.list.Selected()
	if !ok {
		return ""
	}
	d := row.Door
	parts := []string{
		m.theme.Bold.Render(d.DoorID),
		m.theme.Level(row.SecurityLevel()).Render(string(row.SecurityLevel())),
		fmt.Sprintf("layer %d", d.OnionLayer),
		fmt.Sprintf("%d events", d.EventCount),
	}
	if d.MostCommonNext != "" {
		parts = append(parts, "next "+d.MostCommonNext)
	}
	if d.IsCritical {
		parts = append(parts, m.theme.StatusWarning.Render("critical"))
	}
	return m.theme.RoundedBox.Render(strings.Join(parts, "  "))
}
