package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"airwatch.klederson.com/internal/config"
	"airwatch.klederson.com/internal/control"
	"airwatch.klederson.com/internal/detect"
	"airwatch.klederson.com/internal/mode"
	"airwatch.klederson.com/internal/registry"
	"airwatch.klederson.com/internal/ui"
)

// shared holds state shared between the Bubble Tea model copies and main.go.
// Because Bubble Tea uses value receivers, pointer fields ensure all copies
// see the same underlying data.
type shared struct {
	sensor  *Sensor
	history map[string]*Ring[float64]
	rate    *Ring[float64]

	lastAccepted uint64
}

// Monitor is the root Bubble Tea model of the terminal dashboard.
type Monitor struct {
	width  int
	height int

	kind      registry.Kind
	cursor    int
	search    string
	searching bool
	message   string

	shared *shared

	// Cached snapshot
	rows     []ui.Row
	detected []detect.Identity
	stats    Stats
}

// NewMonitor creates a dashboard over s.
func NewMonitor(s *Sensor) Monitor {
	m := Monitor{
		kind: registry.KindNetworks,
		shared: &shared{
			sensor:  s,
			history: make(map[string]*Ring[float64]),
			rate:    NewRing[float64](config.HistoryLen),
		},
	}
	m.refresh()
	return m
}

func (m Monitor) Init() tea.Cmd {
	return tea.Batch(tickCmd(), sampleCmd())
}

func (m Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.searching {
			return m.handleSearchKey(msg)
		}
		return m.handleKey(msg)

	case TickMsg:
		m.refresh()
		return m, tickCmd()

	case SampleMsg:
		m.sample()
		return m, sampleCmd()

	case ResultMsg:
		if msg.Err != nil {
			m.message = msg.Action + " failed: " + msg.Err.Error()
		} else {
			m.message = msg.Action + " done"
		}
		m.refresh()
		return m, nil
	}

	return m, nil
}

func (m Monitor) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := m.shared.sensor
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		return m, tea.Quit

	case "c", "C":
		return m, m.setMode(mode.Capture)
	case "d", "D":
		return m, m.setMode(mode.Detect)
	case "o", "O":
		return m, m.setMode(mode.Off)

	case "s", "S":
		return m, commandCmd(s, control.CmdSaveData, "save")
	case "x", "X":
		return m, commandCmd(s, control.CmdClearData, "clear")

	case "tab":
		m.selectKind(m.kind%registry.KindDevices + 1)
	case "1":
		m.selectKind(registry.KindNetworks)
	case "2":
		m.selectKind(registry.KindStations)
	case "3":
		m.selectKind(registry.KindDevices)

	case "/":
		m.searching = true

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
	case "home":
		m.cursor = 0
	case "end":
		if len(m.rows) > 0 {
			m.cursor = len(m.rows) - 1
		}
	}
	return m, nil
}

func (m Monitor) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.searching = false
	case tea.KeyEsc:
		m.searching = false
		m.search = ""
	case tea.KeyBackspace:
		if len(m.search) > 0 {
			m.search = m.search[:len(m.search)-1]
		}
	case tea.KeyRunes:
		m.search += string(msg.Runes)
	case tea.KeyCtrlC:
		return m, tea.Quit
	}
	m.cursor = 0
	m.refresh()
	return m, nil
}

func (m *Monitor) selectKind(k registry.Kind) {
	if k == m.kind {
		return
	}
	m.kind = k
	m.cursor = 0
	m.refresh()
}

func (m Monitor) setMode(next mode.Mode) tea.Cmd {
	s := m.shared.sensor
	return func() tea.Msg {
		return ResultMsg{Action: "mode " + next.String(), Err: s.SetMode(next)}
	}
}

// refresh re-reads the registries and counters.
func (m *Monitor) refresh() {
	s := m.shared.sensor
	m.stats = s.Stats()
	m.detected = s.Engine().Detected()
	m.rows = ui.FilterRows(buildRows(s.Registries(), m.kind, m.detected), m.search)
	if m.cursor >= len(m.rows) {
		m.cursor = max(len(m.rows)-1, 0)
	}
}

// sample records one RSSI point per record and the accepted-frame rate.
// Histories of records that left the registries are dropped.
func (m *Monitor) sample() {
	sh := m.shared
	set := sh.sensor.Registries()
	seen := make(map[string]struct{})
	for _, k := range registry.Kinds {
		for _, r := range buildRows(set, k, nil) {
			seen[r.Key] = struct{}{}
			h, ok := sh.history[r.Key]
			if !ok {
				h = NewRing[float64](config.HistoryLen)
				sh.history[r.Key] = h
			}
			h.Push(float64(r.RSSI))
		}
	}
	for key := range sh.history {
		if _, ok := seen[key]; !ok {
			delete(sh.history, key)
		}
	}

	accepted := sh.sensor.Stats().Accepted
	sh.rate.Push(float64(accepted - sh.lastAccepted))
	sh.lastAccepted = accepted
}

func (m Monitor) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing " + config.AppName + "..."
	}

	menuH := 1
	statusH := 1
	bodyH := m.height - menuH - statusH
	if bodyH < 5 {
		bodyH = 5
	}
	listW, detailW := ui.SplitWidth(m.width)

	s := m.shared.sensor
	menuBar := ui.RenderMenuBar(m.width, s.cfg.Sensor.ID, m.stats.Mode, m.stats.Alarm)

	list := ui.RenderRecordList(m.rows, listW, bodyH, m.cursor, ui.ListState{
		Kind: m.kind,
		Counts: map[registry.Kind]int{
			registry.KindNetworks: m.stats.Networks,
			registry.KindStations: m.stats.Stations,
			registry.KindDevices:  m.stats.Devices,
		},
		Search: m.search,
		Active: m.searching,
	})

	var (
		selected *ui.Row
		history  []float64
	)
	if m.cursor < len(m.rows) {
		selected = &m.rows[m.cursor]
		if h, ok := m.shared.history[selected.Key]; ok {
			history = h.Values()
		}
	}
	detail := ui.RenderDetailPanel(selected, detailW, bodyH, history, m.detected)

	statusBar := ui.RenderStatusBar(m.width, ui.Status{
		Networks: m.stats.Networks,
		Stations: m.stats.Stations,
		Devices:  m.stats.Devices,
		Received: m.stats.Received,
		Accepted: m.stats.Accepted,
		Dropped:  m.stats.Dropped,
		Detected: m.stats.Detected,
		Alarm:    m.stats.Alarm,
		Rate:     m.shared.rate.Values(),
		Message:  m.message,
	})

	return ui.ComposeLayout(menuBar, list, detail, statusBar)
}

// buildRows flattens one registry, marking records that match a detected
// identity.
func buildRows(set *registry.Set, k registry.Kind, detected []detect.Identity) []ui.Row {
	hit := make(map[detect.Identity]bool, len(detected))
	for _, id := range detected {
		hit[id] = true
	}

	var rows []ui.Row
	switch k {
	case registry.KindNetworks:
		for _, n := range set.Networks.Snapshot() {
			r := ui.NetworkRow(n)
			r.Detected = hit[detect.Identity{Kind: k, Addr: n.BSSID}] || hit[detect.Identity{Kind: k, SSID: n.SSID}]
			rows = append(rows, r)
		}
	case registry.KindStations:
		for _, st := range set.Stations.Snapshot() {
			r := ui.StationRow(st)
			r.Detected = hit[detect.Identity{Kind: k, Addr: st.Addr}]
			rows = append(rows, r)
		}
	case registry.KindDevices:
		for _, d := range set.Devices.Snapshot() {
			r := ui.DeviceRow(d)
			r.Detected = hit[detect.Identity{Kind: k, Addr: d.Addr}]
			rows = append(rows, r)
		}
	}
	return rows
}

// BuildRows flattens one registry for display outside the monitor.
func BuildRows(set *registry.Set, k registry.Kind) []ui.Row {
	return buildRows(set, k, nil)
}

func commandCmd(s *Sensor, cmd control.Command, action string) tea.Cmd {
	return func() tea.Msg {
		return ResultMsg{Action: action, Err: s.Command(context.Background(), cmd)}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(config.TargetFPS), func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func sampleCmd() tea.Cmd {
	return tea.Tick(config.SampleInterval, func(t time.Time) tea.Msg {
		return SampleMsg(t)
	})
}
