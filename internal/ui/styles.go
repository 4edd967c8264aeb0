package ui

import (
	"github.com/charmbracelet/lipgloss"

	"airwatch.klederson.com/internal/registry"
)

// Matrix color palette
var (
	ColorMatrixGreen  = lipgloss.Color("#00FF41")
	ColorGreen        = lipgloss.Color("#00CC33")
	ColorMidGreen     = lipgloss.Color("#008F11")
	ColorDimGreen     = lipgloss.Color("#004A0A")
	ColorNetwork      = lipgloss.Color("#FFCC00")
	ColorStation      = lipgloss.Color("#33FF66")
	ColorDevice       = lipgloss.Color("#00FFAA")
	ColorBorderBright = lipgloss.Color("#00FF41")
	ColorBorderNorm   = lipgloss.Color("#00AA22")
	ColorError        = lipgloss.Color("#FF3300")
	ColorWarning      = lipgloss.Color("#FFAA00")
)

// Pre-built styles
var (
	StyleMenuBar = lipgloss.NewStyle().
			Background(lipgloss.Color("#002200")).
			Foreground(ColorMatrixGreen).
			Bold(true).
			Padding(0, 1)

	StyleMenuKey = lipgloss.NewStyle().
			Foreground(ColorMatrixGreen).
			Bold(true)

	StyleMenuLabel = lipgloss.NewStyle().
			Foreground(ColorGreen)

	StyleStatusBar = lipgloss.NewStyle().
			Background(lipgloss.Color("#002200")).
			Foreground(ColorGreen).
			Padding(0, 1)

	StyleModeCapture = lipgloss.NewStyle().
				Foreground(ColorMatrixGreen).
				Bold(true)

	StyleModeDetect = lipgloss.NewStyle().
			Foreground(ColorWarning).
			Bold(true)

	StyleModeOff = lipgloss.NewStyle().
			Foreground(ColorDimGreen).
			Bold(true)

	StyleAlarm = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(ColorError).
			Bold(true)

	StylePanelBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorBorderNorm)

	StylePanelActive = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorBorderBright)

	StylePanelTitle = lipgloss.NewStyle().
			Foreground(ColorMatrixGreen).
			Bold(true).
			Padding(0, 1)

	StyleRecordName = lipgloss.NewStyle().
			Foreground(ColorMatrixGreen).
			Bold(true)

	StyleRecordAddr = lipgloss.NewStyle().
			Foreground(ColorMidGreen)

	StyleRecordRSSI = lipgloss.NewStyle().
			Foreground(ColorGreen)

	StyleSeparator = lipgloss.NewStyle().
			Foreground(ColorMidGreen)

	StyleTabActive = lipgloss.NewStyle().
			Foreground(ColorMatrixGreen).
			Bold(true)

	StyleTabInactive = lipgloss.NewStyle().
				Foreground(ColorDimGreen)

	StyleHelp = lipgloss.NewStyle().
			Foreground(ColorDimGreen)

	StyleDetectedMarker = lipgloss.NewStyle().
				Foreground(ColorWarning).
				Bold(true)
)

// kindColor is the accent of a registry kind.
func kindColor(k registry.Kind) lipgloss.Color {
	switch k {
	case registry.KindNetworks:
		return ColorNetwork
	case registry.KindStations:
		return ColorStation
	}
	return ColorDevice
}

// signalColor grades an RSSI from strong (bright) to weak (red).
func signalColor(rssi float64) lipgloss.Color {
	switch {
	case rssi >= -55:
		return ColorMatrixGreen
	case rssi >= -70:
		return ColorGreen
	case rssi >= -85:
		return ColorWarning
	}
	return ColorError
}
