package control

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"airwatch.klederson.com/internal/config"
	"airwatch.klederson.com/internal/hwaddr"
	"airwatch.klederson.com/internal/mode"
	"airwatch.klederson.com/internal/registry"
)

type sent struct {
	ep      Endpoint
	payload string
}

// fakeTransport records everything the service pushes.
type fakeTransport struct {
	mu      sync.Mutex
	h       Handler
	notes   []sent
	values  map[Endpoint]string
	started chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{values: map[Endpoint]string{}, started: make(chan struct{})}
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Start(_ context.Context, h Handler) error {
	f.mu.Lock()
	f.h = h
	f.mu.Unlock()
	close(f.started)
	return nil
}

func (f *fakeTransport) Notify(ep Endpoint, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, sent{ep, string(p)})
	return nil
}

func (f *fakeTransport) SetValue(ep Endpoint, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[ep] = string(p)
	return nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) on(ep Endpoint) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, n := range f.notes {
		if n.ep == ep {
			out = append(out, n.payload)
		}
	}
	return out
}

func (f *fakeTransport) value(ep Endpoint) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[ep]
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakeSensor struct {
	mu       sync.Mutex
	set      *registry.Set
	settings config.Settings
	commands []Command
}

func (s *fakeSensor) ListSize() string {
	return fmt.Sprintf("%d:%d:%d:0", s.set.Networks.Len(), s.set.Stations.Len(), s.set.Devices.Len())
}

func (s *fakeSensor) Settings() config.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *fakeSensor) ApplySettings(st config.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = st
	return nil
}

func (s *fakeSensor) Command(_ context.Context, c Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, c)
	if c == CmdClearData {
		s.set.Clear()
	}
	return nil
}

func startService(t *testing.T) (*fakeSensor, *fakeTransport, *Service) {
	t.Helper()
	sensor := &fakeSensor{set: registry.NewSet(10, 10, 10), settings: config.DefaultSettings()}
	for i := byte(1); i <= 5; i++ {
		if _, err := sensor.set.Stations.Observe(registry.Station{Addr: hwaddr.Addr{2, 0, 0, 0, 0, i}, RSSI: -50}); err != nil {
			t.Fatal(err)
		}
	}
	tr := newFakeTransport()
	svc := NewService(sensor, sensor.set, zap.NewNop(), tr)
	svc.tick = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	<-tr.started
	return sensor, tr, svc
}

func TestServiceExport(t *testing.T) {
	_, tr, svc := startService(t)

	svc.HandleWrite(Bulk, []byte("stations"))
	waitFor(t, "START", func() bool { return len(tr.on(Bulk)) == 1 })
	if got := tr.on(Bulk)[0]; got != "START:0001" {
		t.Fatalf("first notification = %q", got)
	}

	svc.HandleWrite(Bulk, []byte("0001"))
	waitFor(t, "END", func() bool { return len(tr.on(Bulk)) == 3 })
	notes := tr.on(Bulk)
	if !strings.HasPrefix(notes[1], "0001") || len(notes[1]) != 4+5*registry.StationRecordSize {
		t.Errorf("packet length = %d", len(notes[1]))
	}
	if !strings.HasPrefix(notes[2], "END:") {
		t.Errorf("last notification = %q", notes[2])
	}
}

func TestServiceExportResetOnDisconnect(t *testing.T) {
	_, tr, svc := startService(t)

	svc.HandleWrite(Bulk, []byte("stations"))
	waitFor(t, "START", func() bool { return len(tr.on(Bulk)) == 1 })
	svc.HandleDisconnect()
	svc.HandleWrite(Bulk, []byte("0001"))
	waitFor(t, "ERROR", func() bool { return len(tr.on(Bulk)) == 2 })
	if got := tr.on(Bulk)[1]; !strings.HasPrefix(got, "ERROR:") {
		t.Fatalf("packet after disconnect = %q", got)
	}
}

func TestServiceSettings(t *testing.T) {
	sensor, tr, svc := startService(t)
	waitFor(t, "initial settings", func() bool { return tr.value(Settings) != "" })
	if got := tr.value(Settings); got != config.DefaultSettings().String() {
		t.Fatalf("initial settings = %q", got)
	}

	svc.HandleWrite(Settings, []byte("2|-70|1|4000|500|1|60|247"))
	waitFor(t, "settings applied", func() bool { return sensor.Settings().Mode == mode.Detect })
	waitFor(t, "settings republished", func() bool { return tr.value(Settings) == "2|-70|1|4000|500|1|60|247" })

	svc.HandleWrite(Settings, []byte("garbage"))
	waitFor(t, "settings error", func() bool { return len(tr.on(Settings)) == 1 })
	if got := tr.on(Settings)[0]; !strings.HasPrefix(got, "ERROR:") {
		t.Fatalf("notification = %q", got)
	}
	if sensor.Settings().MTU != 247 {
		t.Fatal("rejected settings changed state")
	}
}

func TestServiceCommands(t *testing.T) {
	sensor, tr, svc := startService(t)

	svc.HandleWrite(Commands, []byte("clear_data"))
	svc.HandleWrite(Commands, []byte("reboot"))
	waitFor(t, "command results", func() bool { return len(tr.on(Commands)) == 2 })

	notes := tr.on(Commands)
	if notes[0] != "OK:clear_data" {
		t.Errorf("clear_data result = %q", notes[0])
	}
	if notes[1] != "ERROR:unknown command" {
		t.Errorf("unknown command result = %q", notes[1])
	}
	if sensor.set.Stations.Len() != 0 {
		t.Error("clear_data did not clear")
	}
	// List size follows the registries.
	waitFor(t, "list size update", func() bool {
		n := tr.on(ListSize)
		return len(n) > 0 && n[len(n)-1] == "0:0:0:0"
	})
}

func TestParseCommand(t *testing.T) {
	for _, s := range []string{"restart", "clear_data", "save_data"} {
		if _, err := ParseCommand(s); err != nil {
			t.Errorf("ParseCommand(%q) = %v", s, err)
		}
	}
	if _, err := ParseCommand("RESTART"); err == nil {
		t.Error("ParseCommand is case-sensitive")
	}
}

func TestTopics(t *testing.T) {
	tp := Topics{Prefix: "airwatch", Sensor: "s1"}
	if got := tp.Out(ListSize); got != "airwatch/s1/listsize" {
		t.Errorf("Out(ListSize) = %q", got)
	}
	if got := tp.Out(Commands); got != "airwatch/s1/commands/result" {
		t.Errorf("Out(Commands) = %q", got)
	}
	for _, ep := range []Endpoint{Bulk, Settings, Commands} {
		in, ok := tp.In(ep)
		if !ok {
			t.Fatalf("no inbound topic for %s", ep)
		}
		back, ok := tp.Endpoint(in)
		if !ok || back != ep {
			t.Errorf("Endpoint(%q) = %v, %v", in, back, ok)
		}
	}
	if _, ok := tp.In(ListSize); ok {
		t.Error("list size must be read-only")
	}
	if _, ok := tp.Endpoint("other/s1/commands"); ok {
		t.Error("foreign topic matched")
	}
}

func TestCharacteristicUUID(t *testing.T) {
	svc := uuid.MustParse("6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	want := map[Endpoint]string{
		ListSize: "6e400002-b5a3-f393-e0a9-e50e24dcca9e",
		Bulk:     "6e400003-b5a3-f393-e0a9-e50e24dcca9e",
		Settings: "6e400004-b5a3-f393-e0a9-e50e24dcca9e",
		Commands: "6e400005-b5a3-f393-e0a9-e50e24dcca9e",
	}
	for ep, w := range want {
		if got := CharacteristicUUID(svc, ep).String(); got != w {
			t.Errorf("%s = %s, want %s", ep, got, w)
		}
	}
}
