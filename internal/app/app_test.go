package app

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"airwatch.klederson.com/internal/detect"
	"airwatch.klederson.com/internal/hwaddr"
	"airwatch.klederson.com/internal/registry"
)

func seededMonitor(t *testing.T) Monitor {
	t.Helper()
	s := newTestSensor(t, newMemPersister())
	now := time.Now()
	set := s.Registries()
	_, _ = set.Networks.Observe(registry.Network{
		SSID: "corp-net", BSSID: hwaddr.MustParse("02:11:22:33:44:55"), RSSI: -48, Channel: 6,
		Role: registry.RoleBeacon, Sighting: registry.Sighting{LastSeen: now},
	})
	_, _ = set.Networks.Observe(registry.Network{
		SSID: "guest", BSSID: hwaddr.MustParse("02:11:22:33:44:66"), RSSI: -70, Channel: 11,
		Role: registry.RoleBeacon, Sighting: registry.Sighting{LastSeen: now},
	})
	_, _ = set.Stations.Observe(registry.Station{
		Addr: hwaddr.MustParse("02:aa:bb:cc:dd:ee"), RSSI: -60, Channel: 6,
		Sighting: registry.Sighting{LastSeen: now},
	})
	m := NewMonitor(s)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	return next.(Monitor)
}

func press(m Monitor, keys ...string) Monitor {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, _ := m.Update(msg)
		m = next.(Monitor)
	}
	return m
}

func TestMonitorTabsAndCursor(t *testing.T) {
	m := seededMonitor(t)
	if m.kind != registry.KindNetworks || len(m.rows) != 2 {
		t.Fatalf("initial kind=%v rows=%d", m.kind, len(m.rows))
	}

	m = press(m, "down", "down")
	if m.cursor != 1 {
		t.Errorf("cursor = %d, want clamp at 1", m.cursor)
	}

	m = press(m, "tab")
	if m.kind != registry.KindStations || len(m.rows) != 1 || m.cursor != 0 {
		t.Errorf("after tab kind=%v rows=%d cursor=%d", m.kind, len(m.rows), m.cursor)
	}
	m = press(m, "tab", "tab")
	if m.kind != registry.KindNetworks {
		t.Errorf("tab did not wrap: %v", m.kind)
	}
	m = press(m, "3")
	if m.kind != registry.KindDevices || len(m.rows) != 0 {
		t.Errorf("kind=%v rows=%d", m.kind, len(m.rows))
	}
}

func TestMonitorSearch(t *testing.T) {
	m := seededMonitor(t)
	m = press(m, "/", "g", "u", "enter")
	if m.searching {
		t.Error("still searching after enter")
	}
	if len(m.rows) != 1 || m.rows[0].Title != "guest" {
		t.Fatalf("rows = %+v", m.rows)
	}

	m = press(m, "/", "esc")
	if m.search != "" || len(m.rows) != 2 {
		t.Errorf("esc did not clear search: %q rows=%d", m.search, len(m.rows))
	}
}

func TestMonitorView(t *testing.T) {
	m := seededMonitor(t)
	m.sample()
	view := m.View()
	for _, want := range []string{"AIRWATCH", "NETWORKS [2]", "corp-net", "DETAIL", "NET: 2"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestMonitorQuit(t *testing.T) {
	m := seededMonitor(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("no command on quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

func TestMonitorSampleKeepsLiveHistory(t *testing.T) {
	m := seededMonitor(t)
	m.sample()
	m.sample()
	if got := len(m.shared.history); got != 3 {
		t.Fatalf("histories = %d, want 3", got)
	}
	key := m.rows[0].Key
	if got := m.shared.history[key].Len(); got != 2 {
		t.Errorf("samples = %d, want 2", got)
	}

	m.shared.sensor.Registries().Clear()
	m.sample()
	if got := len(m.shared.history); got != 0 {
		t.Errorf("histories after clear = %d, want 0", got)
	}
}

func TestBuildRowsMarksDetected(t *testing.T) {
	m := seededMonitor(t)
	set := m.shared.sensor.Registries()
	rows := buildRows(set, registry.KindNetworks, []detect.Identity{
		{Kind: registry.KindNetworks, SSID: "guest"},
	})
	for _, r := range rows {
		if r.Detected != (r.Title == "guest") {
			t.Errorf("%s detected = %v", r.Title, r.Detected)
		}
	}
}

func TestRing(t *testing.T) {
	r := NewRing[float64](3)
	if r.Values() != nil || r.Last() != 0 {
		t.Fatal("empty ring not empty")
	}
	for _, v := range []float64{1, 2, 3, 4} {
		r.Push(v)
	}
	got := r.Values()
	want := []float64{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("Values = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Values = %v, want %v", got, want)
			break
		}
	}
	if r.Last() != 4 || r.Len() != 3 {
		t.Errorf("Last=%v Len=%d", r.Last(), r.Len())
	}
}
