package components

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/onion-topology/internal/model"
	"github.com/Veraticus/onion-topology/internal/tui/themes"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DoorRow is one editable line of the door list.
type DoorRow struct {
	Door           model.Door
	Classification model.DoorClassification
	Edited         bool
}

// IsEntranceExit reports the effective entrance flag of the row.
func (r DoorRow) IsEntranceExit() bool {
	if r.Classification.IsEntranceExit != nil {
		return *r.Classification.IsEntranceExit
	}
	return r.Door.IsEntranceExit
}

// IsStair reports the effective stair flag of the row.
func (r DoorRow) IsStair() bool {
	if r.Classification.IsStair != nil {
		return *r.Classification.IsStair
	}
	return r.Door.IsStair
}

// Floor reports the effective floor of the row.
func (r DoorRow) Floor() string {
	if r.Classification.Floor != "" {
		return r.Classification.Floor
	}
	if r.Door.Floor != "" {
		return r.Door.Floor
	}
	return model.DefaultFloor
}

// SecurityLevel reports the effective security level of the row.
func (r DoorRow) SecurityLevel() model.SecurityLevel {
	if r.Classification.SecurityLevel != "" {
		return r.Classification.SecurityLevel
	}
	if r.Door.SecurityLevel != "" {
		return r.Door.SecurityLevel
	}
	return model.SecurityUnclassified
}

// DoorListModel is a scrolling list of doors with a cursor.
type DoorListModel struct {
	theme  themes.Theme
	rows   []DoorRow
	cursor int
	offset int
	width  int
	height int
}

// NewDoorListModel creates a list over rows.
func NewDoorListModel(rows []DoorRow, theme themes.Theme) DoorListModel {
	return DoorListModel{
		rows:   rows,
		theme:  theme,
		width:  80,
		height: 20,
	}
}

// Update handles cursor movement. Editing keys are handled by the owner.
func (m DoorListModel) Update(msg tea.Msg) (DoorListModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			m.MoveCursor(-1)
		case "down", "j":
			m.MoveCursor(1)
		case "home", "g":
			m.MoveCursor(-len(m.rows))
		case "end", "G":
			m.MoveCursor(len(m.rows))
		case "pgup":
			m.MoveCursor(-m.visibleRows())
		case "pgdown":
			m.MoveCursor(m.visibleRows())
		}
	case tea.WindowSizeMsg:
		m.Resize(msg.Width, msg.Height)
	}
	return m, nil
}

// MoveCursor moves the cursor by delta, clamped to the list.
func (m *DoorListModel) MoveCursor(delta int) {
	if len(m.rows) == 0 {
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), len(m.rows)-1)

	visible := m.visibleRows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	} else if m.cursor >= m.offset+visible {
		m.offset = m.cursor - visible + 1
	}
}

// Resize sets the area available to the list.
func (m *DoorListModel) Resize(width, height int) {
	m.width = width
	m.height = height
	m.MoveCursor(0)
}

// Cursor returns the index of the selected row.
func (m DoorListModel) Cursor() int {
	return m.cursor
}

// Selected returns the selected row.
func (m DoorListModel) Selected() (DoorRow, bool) {
	if len(m.rows) == 0 {
		return DoorRow{}, false
	}
	return m.rows[m.cursor], true
}

// SetSelected replaces the selected row.
func (m *DoorListModel) SetSelected(row DoorRow) {
	if len(m.rows) == 0 {
		return
	}
	m.rows[m.cursor] = row
}

// Rows returns the rows in display order.
func (m DoorListModel) Rows() []DoorRow {
	return m.rows
}

func (m DoorListModel) visibleRows() int {
	// header and its border take two lines
	return max(m.height-2, 1)
}

var columns = []struct {
	title string
	width int
}{
	{"Door", 18},
	{"Layer", 6},
	{"Floor", 6},
	{"Security", 13},
	{"Entrance", 9},
	{"Stair", 6},
	{"Events", 7},
}

// View renders the visible window of the list.
func (m DoorListModel) View() string {
	if len(m.rows) == 0 {
		return lipgloss.NewStyle().Foreground(m.theme.Muted).Render("No doors to classify")
	}

	headers := make([]string, len(columns))
	for i, c := range columns {
		headers[i] = lipgloss.NewStyle().Width(c.width).Render(c.title)
	}
	lines := []string{m.theme.Header.Render(strings.Join(headers, ""))}

	end := min(m.offset+m.visibleRows(), len(m.rows))
	for i := m.offset; i < end; i++ {
		lines = append(lines, m.renderRow(i))
	}
	return strings.Join(lines, "\n")
}

func (m DoorListModel) renderRow(i int) string {
	row := m.rows[i]
	name := row.Door.DoorID
	if row.Edited {
		name += "*"
	}
	layer := strconv.Itoa(row.Door.OnionLayer)
	if row.Door.Isolated {
		layer += "?"
	}

	cells := []string{
		truncate(name, columns[0].width-1),
		layer,
		row.Floor(),
		string(row.SecurityLevel()),
		check(row.IsEntranceExit()),
		check(row.IsStair()),
		strconv.Itoa(row.Door.EventCount),
	}

	rendered := make([]string, len(cells))
	for j, cell := range cells {
		style := lipgloss.NewStyle().Width(columns[j].width)
		if j == 3 && i != m.cursor {
			style = m.theme.Level(row.SecurityLevel()).Width(columns[j].width)
		}
		rendered[j] = style.Render(cell)
	}

	line := strings.Join(rendered, "")
	if i == m.cursor {
		return m.theme.Selected.Render(line)
	}
	return m.theme.Normal.Render(line)
}

func check(v bool) string {
	if v {
		return "yes"
	}
	return "-"
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return fmt.Sprintf("%s…", string(r[:width-1]))
}
