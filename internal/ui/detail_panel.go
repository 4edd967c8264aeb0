package ui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"airwatch.klederson.com/internal/detect"
)

// RenderDetailPanel renders the selected record with its signal history,
// followed by the identities matched in detection mode.
func RenderDetailPanel(r *Row, width, height int, rssiHistory []float64, detected []detect.Identity) string {
	innerW := width - 4
	if innerW < 20 {
		innerW = 20
	}

	sep := StyleSeparator.Render(strings.Repeat("-", innerW))
	lines := []string{StylePanelTitle.Render("DETAIL"), sep, ""}

	labelSty := lipgloss.NewStyle().Foreground(ColorMidGreen)
	valSty := lipgloss.NewStyle().Foreground(ColorMatrixGreen).Bold(true)

	if r == nil {
		lines = append(lines, StyleHelp.Render("  Nothing selected"))
	} else {
		fields := []Field{
			{"Name", r.Title},
			{"Addr", r.Addr},
			{"Kind", r.Kind.String()},
			{"RSSI", fmt.Sprintf("%d dBm", r.RSSI)},
		}
		if r.Channel != 0 {
			fields = append(fields, Field{"Channel", fmt.Sprintf("%d", r.Channel)})
		}
		fields = append(fields, r.Extra...)
		fields = append(fields,
			Field{"Seen", fmt.Sprintf("%d", r.TimesSeen)},
			Field{"Last", formatLastSeen(r.LastSeen)},
		)
		for _, f := range fields {
			lines = append(lines, labelSty.Render(fmt.Sprintf("  %-10s", f.Label))+valSty.Render(f.Value))
		}

		lines = append(lines, "")

		barWidth := innerW - 22
		if barWidth < 10 {
			barWidth = 10
		}
		bar := renderSignalBar(float64(r.RSSI), barWidth)
		lines = append(lines, labelSty.Render("  Signal ")+bar+valSty.Render(fmt.Sprintf(" %ddBm", r.RSSI)))

		if len(rssiHistory) > 0 {
			sparkW := innerW - 4
			if sparkW < 10 {
				sparkW = 10
			}
			lines = append(lines, "", labelSty.Render("  RSSI History:"))
			lines = append(lines, "  "+lipgloss.NewStyle().Foreground(ColorGreen).Render(renderSparkline(rssiHistory, sparkW)))
		}
	}

	if len(detected) > 0 {
		lines = append(lines, "", StyleDetectedMarker.Render(fmt.Sprintf("  DETECTED [%d]", len(detected))), sep)
		for _, id := range detected {
			lines = append(lines, "  "+StyleDetectedMarker.Render("! ")+valSty.Render(truncRaw(id.String(), innerW-4)))
		}
	}

	content := strings.Join(lines, "\n")
	return clampLines(StylePanelActive.Width(width-2).Height(height-2).Render(content), height)
}

func renderSignalBar(rssi float64, width int) string {
	// Map RSSI -100..-30 to 0..width filled bars
	ratio := (rssi + 100.0) / 70.0
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(math.Round(ratio * float64(width)))

	bar := strings.Repeat("|", filled) + strings.Repeat("-", width-filled)
	filledPart := lipgloss.NewStyle().Foreground(signalColor(rssi)).Render(bar[:filled])
	emptyPart := lipgloss.NewStyle().Foreground(ColorDimGreen).Render(bar[filled:])
	return StyleHelp.Render("[") + filledPart + emptyPart + StyleHelp.Render("]")
}

func renderSparkline(values []float64, width int) string {
	if len(values) == 0 {
		return ""
	}

	chars := []byte{'_', '.', '-', '~', '^'}

	minV, maxV := values[0], values[0]
	for _, v := range values {
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}

	rng := maxV - minV
	if rng < 1 {
		rng = 1
	}

	// Take last `width` values
	start := 0
	if len(values) > width {
		start = len(values) - width
	}

	var sb strings.Builder
	for i := start; i < len(values); i++ {
		idx := int((values[i] - minV) / rng * float64(len(chars)-1))
		idx = min(max(idx, 0), len(chars)-1)
		sb.WriteByte(chars[idx])
	}
	return sb.String()
}

func formatLastSeen(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Second:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh ago", int(d.Hours()))
}
