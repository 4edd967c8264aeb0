package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"airwatch.klederson.com/internal/registry"
)

// ListState holds what the record list shows.
type ListState struct {
	Kind   registry.Kind
	Counts map[registry.Kind]int
	Search string // text search on title/address
	Active bool   // text input mode
}

// Cursor row style: black text on bright green = unmissable highlight
var cursorRowSty = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#000000")).
	Background(ColorMatrixGreen).
	Bold(true)

// FilterRows keeps rows whose title or address contains search, ignoring case.
func FilterRows(rows []Row, search string) []Row {
	if search == "" {
		return rows
	}
	q := strings.ToLower(search)
	out := rows[:0:0]
	for _, r := range rows {
		if strings.Contains(strings.ToLower(r.Title), q) || strings.Contains(strings.ToLower(r.Addr), q) {
			out = append(out, r)
		}
	}
	return out
}

// RenderRecordList renders the scrollable record list panel with a cursor.
// The tab bar stays fixed at the top; only the entries scroll.
func RenderRecordList(rows []Row, width, height int, cursorIndex int, st ListState) string {
	innerW := width - 4
	if innerW < 10 {
		innerW = 10
	}

	title := StylePanelTitle.Render(fmt.Sprintf("%s [%d]", strings.ToUpper(st.Kind.String()), len(rows)))
	separator := StyleSeparator.Render(strings.Repeat("-", innerW))
	headerLines := []string{title, separator, renderTabBar(st)}
	headerCount := len(headerLines)

	innerH := height - 2
	if innerH < headerCount+1 {
		innerH = headerCount + 1
	}
	space := innerH - headerCount

	var lines []string
	if len(rows) == 0 {
		lines = append(lines, "", StyleHelp.Render(" No records..."), StyleHelp.Render(" Waiting for traffic"))
	} else {
		const linesPerRow = 3 // 2 content + 1 blank
		maxVisible := space / linesPerRow
		if maxVisible < 1 {
			maxVisible = 1
		}

		viewStart := 0
		if cursorIndex >= maxVisible {
			viewStart = cursorIndex - maxVisible + 1
		}

		for i := viewStart; i < len(rows) && len(lines) < space; i++ {
			for _, l := range renderEntry(rows[i], innerW, i == cursorIndex) {
				if len(lines) >= space {
					break
				}
				lines = append(lines, l)
			}
		}
	}

	if len(lines) > space {
		lines = lines[:space]
	}
	for len(lines) < space {
		lines = append(lines, "")
	}

	all := append(headerLines, lines...)
	rendered := StylePanelBorder.Width(width - 2).Height(innerH).Render(strings.Join(all, "\n"))

	// lipgloss Height() only sets a minimum; it won't truncate overflow.
	return clampLines(rendered, height)
}

func renderEntry(r Row, maxW int, isCursor bool) []string {
	marker := " "
	if r.Detected {
		marker = "!"
	}

	title := r.Title
	if nameMax := maxW - 14; len(title) > nameMax && nameMax > 3 {
		title = title[:nameMax]
	}

	tag := "[" + r.Tag + "]"
	detail := fmt.Sprintf("%ddBm", r.RSSI)
	if r.Kind != registry.KindDevices {
		detail += fmt.Sprintf("  ch%d", r.Channel)
	}
	detail += fmt.Sprintf("  x%d  %s", r.TimesSeen, formatLastSeen(r.LastSeen))

	if isCursor {
		raw1 := truncRaw(fmt.Sprintf(">> %s %s %s", marker, title, tag), maxW)
		raw2 := truncRaw("     "+r.Addr+"  "+detail, maxW)
		return []string{cursorRowSty.Render(raw1), cursorRowSty.Render(raw2), ""}
	}

	accent := lipgloss.NewStyle().Foreground(kindColor(r.Kind))
	if r.Detected {
		marker = StyleDetectedMarker.Render(marker)
	}
	line1 := fmt.Sprintf("   %s %s %s", marker, StyleRecordName.Render(title), accent.Render(tag))
	line2 := "     " + StyleRecordAddr.Render(r.Addr) + "  " + StyleRecordRSSI.Render(detail)
	return []string{line1, line2, ""}
}

func renderTabBar(st ListState) string {
	bar := ""
	for i, k := range registry.Kinds {
		label := fmt.Sprintf("[%d:%s %d]", i+1, k, st.Counts[k])
		if k == st.Kind {
			bar += " " + StyleTabActive.Foreground(kindColor(k)).Render(label)
		} else {
			bar += " " + StyleTabInactive.Render(label)
		}
	}
	if st.Active {
		bar += "  " + StyleTabActive.Render("/"+st.Search+"_")
	} else if st.Search != "" {
		bar += "  " + StyleTabInactive.Render("/"+st.Search)
	}
	return bar
}

// truncRaw pads or truncates a raw string to exactly w characters.
func truncRaw(s string, w int) string {
	if len(s) > w {
		return s[:w]
	}
	if len(s) < w {
		return s + strings.Repeat(" ", w-len(s))
	}
	return s
}

func clampLines(s string, height int) string {
	out := strings.Split(s, "\n")
	if len(out) > height {
		out = out[:height]
	}
	for len(out) < height {
		out = append(out, "")
	}
	return strings.Join(out, "\n")
}
