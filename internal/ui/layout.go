package ui

import "github.com/charmbracelet/lipgloss"

// ComposeLayout joins the record list and detail panel horizontally,
// with menu bar on top and status bar on bottom.
func ComposeLayout(menuBar, recordList, detail, statusBar string) string {
	middle := lipgloss.JoinHorizontal(lipgloss.Top, recordList, detail)
	return lipgloss.JoinVertical(lipgloss.Left, menuBar, middle, statusBar)
}

// SplitWidth divides the terminal width between the list and the detail
// panel.
func SplitWidth(width int) (list, detail int) {
	detail = width * 2 / 5
	if detail < 30 {
		detail = 30
	}
	list = width - detail
	if list < 20 {
		list = 20
	}
	return list, detail
}
