package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/onion-topology/internal/model"
	"github.com/Veraticus/onion-topology/internal/session"
	"github.com/charmbracelet/lipgloss"
)

// RenderReport formats a session for the terminal.
func RenderReport(c *session.Context) string {
	sections := []string{
		FormatTitle("Facility onion model"),
		SubtleStyle.Render(fmt.Sprintf("session %s · %s", c.ID, c.Status)),
		"",
		RenderBox("Overview", renderOverview(c)),
	}

	if len(c.Doors) > 0 {
		sections = append(sections, "", BoldStyle.Render(DoorIcon+" Doors by layer"), renderDoors(c.Doors))
	}
	if len(c.Paths.TopTransitions) > 0 {
		sections = append(sections, "", BoldStyle.Render("Top transitions"), renderTransitions(c))
	}
	if c.Stats.HasData() {
		sections = append(sections, "", BoldStyle.Render(ChartIcon+" Activity by hour"), renderHourly(c.Stats.HourlyCounts))
	}
	if len(c.Flags) > 0 {
		sections = append(sections, "", BoldStyle.Render("Anomalies"))
		for _, f := range c.Flags {
			sections = append(sections, FormatWarning(f.Message))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// WriteReport writes the rendered report followed by a newline.
func WriteReport(w io.Writer, c *session.Context) error {
	_, err := fmt.Fprintln(w, RenderReport(c))
	return err
}

func renderOverview(c *session.Context) string {
	s := c.Stats
	rows := [][2]string{
		{"Rows uploaded", strconv.Itoa(c.OriginalRowCount)},
		{"Events kept", strconv.Itoa(c.CleanedRowCount)},
		{"Removed", fmt.Sprintf("%d unparseable, %d filtered, %d rescans, %d ping-pong",
			c.Cleaning.UnparseableRows, c.Cleaning.FilteredRows, c.Cleaning.DuplicateEvents, c.Cleaning.PingPongEvents)},
	}
	if s.HasData() {
		rows = append(rows,
			[2]string{"Period", fmt.Sprintf("%s to %s (%d active days)", s.DateStart.Format(time.DateOnly), s.DateEnd.Format(time.DateOnly), s.ActiveDays)},
			[2]string{"Users / doors", fmt.Sprintf("%d / %d", s.UniqueUsers, s.UniqueDevices)},
			[2]string{"Peak hour", fmt.Sprintf("%02d:00 (%d events)", s.PeakHour, s.PeakHourEvents)},
			[2]string{"Busiest day", s.BusiestDay},
			[2]string{"Most active user", fmt.Sprintf("%s (%d events)", s.MostActiveUser, s.MostActiveUserEvents)},
			[2]string{"Activity", fmt.Sprintf("%s, %s", s.ActivityLevel, s.AccessPattern)},
			[2]string{"Off-hours", fmt.Sprintf("%.1f%%", s.OffHoursPercent)},
			[2]string{"Entrances", strings.Join(c.ConfirmedEntrances, ", ")},
			[2]string{"Visits", fmt.Sprintf("%d (%.0f%% multi-hop, avg %.2f doors)", c.Paths.Visits, c.Paths.MultiHopShare*100, c.Paths.AveragePathLength)},
		)
	}
	rows = append(rows, [2]string{"Compliance", fmt.Sprintf("%.1f%% over %d classified doors", s.ComplianceScore, s.ClassifiedDoors)})

	width := 0
	for _, r := range rows {
		width = max(width, lipgloss.Width(r[0]))
	}
	label := SubtleStyle.Width(width + 2)

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, label.Render(r[0])+r[1])
	}
	return strings.Join(lines, "\n")
}

func renderDoors(doors []model.Door) string {
	headers := []string{"Layer", "Door", "Floor", "Security", "Entrance", "Critical", "Next", "Events"}
	rows := make([][]string, 0, len(doors))
	for _, d := range doors {
		layer := strconv.Itoa(d.OnionLayer)
		if d.Isolated {
			layer += "*"
		}
		rows = append(rows, []string{
			layer,
			d.DoorID,
			d.Floor,
			FormatLevel(d.SecurityLevel),
			yesNo(d.IsEntranceExit, EntranceIcon),
			yesNo(d.IsCritical, "!"),
			d.MostCommonNext,
			strconv.Itoa(d.EventCount),
		})
	}
	return renderTable(headers, rows)
}

func renderTransitions(c *session.Context) string {
	headers := []string{"From", "To", "Count"}
	rows := make([][]string, 0, len(c.Paths.TopTransitions))
	for _, tr := range c.Paths.TopTransitions {
		rows = append(rows, []string{tr.Source, tr.Target, strconv.Itoa(tr.Count)})
	}
	return renderTable(headers, rows)
}

// renderHourly draws one bar per hour scaled to the busiest hour.
func renderHourly(counts [24]int) string {
	const barWidth = 30
	peak := 0
	for _, n := range counts {
		peak = max(peak, n)
	}

	lines := make([]string, 0, len(counts))
	for hour, n := range counts {
		if n == 0 {
			continue
		}
		bar := strings.Repeat("█", max(1, n*barWidth/max(peak, 1)))
		lines = append(lines, fmt.Sprintf("%s %s %d", SubtleStyle.Render(fmt.Sprintf("%02d", hour)), InfoStyle.Render(bar), n))
	}
	return strings.Join(lines, "\n")
}

func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	lines := make([]string, 0, len(rows)+1)
	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = TableHeaderStyle.Width(widths[i] + 2).Render(h)
	}
	lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, cells...))

	for _, row := range rows {
		rendered := make([]string, len(row))
		for i, cell := range row {
			rendered[i] = TableCellStyle.Width(widths[i] + 2).Render(cell)
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
	}
	return strings.Join(lines, "\n")
}

func yesNo(v bool, mark string) string {
	if v {
		return mark
	}
	return ""
}
