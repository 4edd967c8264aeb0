package detect

import (
	"testing"
	"time"

	"airwatch.klederson.com/internal/dot11"
	"airwatch.klederson.com/internal/hwaddr"
	"airwatch.klederson.com/internal/registry"
)

type simClock struct{ t time.Time }

func (c *simClock) Now() time.Time          { return c.t }
func (c *simClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

var (
	known   = hwaddr.MustParse("00:11:22:33:44:55")
	unknown = hwaddr.MustParse("66:77:88:99:AA:BB")
	tag     = hwaddr.MustParse("C0:FF:EE:00:00:01")
)

func watchList() *registry.Set {
	set := registry.NewSet(8, 8, 8)
	set.Stations.Observe(registry.Station{Addr: known})
	set.Networks.Observe(registry.Network{SSID: "Corp", BSSID: known, Role: registry.RoleBeacon})
	set.Devices.Observe(registry.Device{Addr: tag})
	return set
}

func TestAlarmLifecycle(t *testing.T) {
	clk := &simClock{t: time.Unix(1_700_000_000, 0)}
	e := NewEngine(watchList(), clk.Now)

	e.Clean()
	if e.IsAlarmed() {
		t.Fatal("alarmed right after Clean")
	}

	if e.ObserveFrame(dot11.Frame{Src: unknown}) {
		t.Fatal("unknown station matched")
	}
	if e.IsAlarmed() {
		t.Fatal("alarmed without a match")
	}

	if !e.ObserveFrame(dot11.Frame{Src: known}) {
		t.Fatal("known station not matched")
	}
	if !e.IsAlarmed() {
		t.Fatal("not alarmed after match")
	}

	clk.Advance(59 * time.Second)
	if !e.IsAlarmed() {
		t.Fatal("alarm dropped before window elapsed")
	}
	clk.Advance(time.Second)
	if e.IsAlarmed() {
		t.Fatal("still alarmed 60s after last match")
	}

	e.ObserveDevice(tag)
	if !e.IsAlarmed() {
		t.Fatal("ble match did not re-arm")
	}
	e.Clean()
	if e.IsAlarmed() || len(e.Detected()) != 0 || !e.LastDetection().IsZero() {
		t.Fatal("Clean left state behind")
	}
}

func TestDetectionDoesNotMutateRegistries(t *testing.T) {
	set := watchList()
	e := NewEngine(set, nil)
	before := set.Stations.Snapshot()[0].TimesSeen

	e.ObserveFrame(dot11.Frame{Src: known, BSSID: known, SSID: "Corp"})
	e.ObserveFrame(dot11.Frame{Src: unknown})
	e.ObserveDevice(unknown)

	if set.Stations.Len() != 1 || set.Networks.Len() != 1 || set.Devices.Len() != 1 {
		t.Error("registry grew in detection")
	}
	if set.Stations.Snapshot()[0].TimesSeen != before {
		t.Error("registry record touched in detection")
	}

	got := e.Detected()
	if len(got) != 3 {
		t.Fatalf("Detected = %v, want station, bssid and ssid hits", got)
	}
	if got[0].String() != "networks:00:11:22:33:44:55" || got[1].String() != "networks:Corp" || got[2].String() != "stations:00:11:22:33:44:55" {
		t.Errorf("Detected = %v", got)
	}
}
