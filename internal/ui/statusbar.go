package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Status is the data shown in the bottom bar.
type Status struct {
	Networks, Stations, Devices int
	Received, Accepted, Dropped uint64
	Detected                    int
	Alarm                       bool
	Rate                        []float64 // accepted frames per tick
	Message                     string
}

// RenderStatusBar renders the bottom status bar.
func RenderStatusBar(width int, s Status) string {
	counts := fmt.Sprintf(" NET: %d  STA: %d  BLE: %d  Rx: %d  Ok: %d  Drop: %d",
		s.Networks, s.Stations, s.Devices, s.Received, s.Accepted, s.Dropped)

	content := StyleStatusBar.Foreground(ColorGreen).Render(counts)
	if s.Detected > 0 {
		marker := StyleDetectedMarker
		if s.Alarm {
			marker = StyleAlarm
		}
		content += "  " + marker.Render(fmt.Sprintf("DETECTED: %d", s.Detected))
	}
	if s.Message != "" {
		content += "  " + StyleHelp.Render(s.Message)
	}

	spark := ""
	if len(s.Rate) > 0 {
		spark = lipgloss.NewStyle().Foreground(ColorMidGreen).Render(renderSparkline(s.Rate, 20))
	}

	gap := width - lipgloss.Width(content) - lipgloss.Width(spark) - 2
	if gap < 0 {
		gap = 0
	}
	return StyleStatusBar.Width(width).Render(content + strings.Repeat(" ", gap) + spark)
}
