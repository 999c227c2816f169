// Package board draws a replica snapshot as terminal columns.
package board

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/astromechza/livesync/pkg/model"
	"github.com/astromechza/livesync/pkg/supervisor"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	stateColors = map[supervisor.State]lipgloss.Color{
		supervisor.Disconnected: lipgloss.Color("8"),
		supervisor.Connecting:   lipgloss.Color("11"),
		supervisor.Connected:    lipgloss.Color("10"),
		supervisor.Reconnecting: lipgloss.Color("11"),
		supervisor.Offline:      lipgloss.Color("9"),
	}
	titleColors = map[string]lipgloss.Color{
		model.StatusInProgress.Title(): lipgloss.Color("12"),
		model.StatusCompleted.Title():  lipgloss.Color("10"),
		model.StatusError.Title():      lipgloss.Color("9"),
	}
)

// Render draws the connection state followed by one column per region,
// fitting the columns into width.
func Render(doc model.Document, state supervisor.State, width int) string {
	dot := lipgloss.NewStyle().Foreground(stateColors[state]).Render("●")
	status := fmt.Sprintf("%s %s", dot, state)
	if state == supervisor.Offline {
		status += mutedStyle.Render(" (polling)")
	}

	if len(doc.Regions) == 0 {
		return status + "\n"
	}
	colWidth := width/len(doc.Regions) - 4
	if colWidth < 16 {
		colWidth = 16
	}

	cols := make([]string, 0, len(doc.Regions))
	for _, r := range doc.Regions {
		cols = append(cols, columnStyle.Width(colWidth).Render(column(r)))
	}
	return status + "\n" + lipgloss.JoinHorizontal(lipgloss.Top, cols...) + "\n"
}

func column(r model.Region) string {
	title := headerStyle.Foreground(titleColors[r.Title]).Render(r.Title)
	if r.Count != nil {
		title += mutedStyle.Render(fmt.Sprintf(" %d", *r.Count))
	}
	lines := []string{title, ""}
	if len(r.Items) == 0 {
		lines = append(lines, mutedStyle.Render("No tasks yet..."))
	}
	for _, it := range r.Items {
		lines = append(lines, card(it))
	}
	return strings.Join(lines, "\n")
}

func card(it model.Item) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(it.Name))
	if len(it.ID) >= 8 {
		b.WriteString(mutedStyle.Render(" " + it.ID[:8]))
	}
	if it.Message != "" {
		b.WriteString("\n" + it.Message)
	}
	if it.DurationMs != nil {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("\n%dms", *it.DurationMs)))
	}
	if it.Result != nil {
		b.WriteString("\n→ " + *it.Result)
	}
	if it.Error != nil {
		b.WriteString("\n✗ " + *it.Error)
	}
	return b.String()
}
