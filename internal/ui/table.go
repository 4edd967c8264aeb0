package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"airwatch.klederson.com/internal/registry"
)

// RenderTable renders rows of one kind as a bordered table for terminal
// output outside the monitor.
func RenderTable(k registry.Kind, rows []Row) string {
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		cells = append(cells, r.Cells())
	}
	accent := lipgloss.NewStyle().Foreground(kindColor(k)).Bold(true)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorBorderNorm)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return accent.Padding(0, 1)
			}
			return lipgloss.NewStyle().Foreground(ColorGreen).Padding(0, 1)
		}).
		Headers(Columns(k)...).
		Rows(cells...)

	title := StylePanelTitle.Render(fmt.Sprintf("%s [%d]", k, len(rows)))
	return lipgloss.JoinVertical(lipgloss.Left, title, t.Render())
}
