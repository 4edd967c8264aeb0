package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"airwatch.klederson.com/internal/config"
	"airwatch.klederson.com/internal/mode"
)

// RenderMenuBar renders the top menu bar.
func RenderMenuBar(width int, sensorID string, m mode.Mode, alarm bool) string {
	title := fmt.Sprintf(" %s v%s ", config.AppName, config.AppVersion)

	keys := []struct{ key, label string }{
		{"C", "apture"},
		{"D", "etect"},
		{"O", "ff"},
		{"Tab", ""},
		{"S", "ave"},
		{"X", "clear"},
		{"Q", "uit"},
	}

	menu := ""
	for _, k := range keys {
		menu += "  " + StyleMenuKey.Render("["+k.key+"]") + StyleMenuLabel.Render(k.label)
	}

	status := modeStyle(m).Render(strings.ToUpper(m.String()))
	if alarm {
		status = StyleAlarm.Render(" ALARM ") + " " + status
	}

	left := StyleMenuKey.Render(title) + menu
	right := status + "  " + StyleMenuLabel.Render("Sensor: "+shortID(sensorID)) + " "

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	return StyleMenuBar.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

func modeStyle(m mode.Mode) lipgloss.Style {
	switch m {
	case mode.Capture:
		return StyleModeCapture
	case mode.Detect:
		return StyleModeDetect
	}
	return StyleModeOff
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
