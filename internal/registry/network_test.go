package registry

import "testing"

func TestProbeThenBeaconPromotes(t *testing.T) {
	r := NewNetworks(8, WithClock(newFakeClock().Now))
	bssid := addr(0xB)

	r.Observe(Network{SSID: "Foo", Role: RoleProbe, RSSI: -80})
	out, err := r.Observe(Network{SSID: "Foo", BSSID: bssid, Channel: 6, Role: RoleBeacon, RSSI: -50})
	if err != nil || out != Merged {
		t.Fatalf("beacon observe = %v, %v; want merged", out, err)
	}

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("got %d records, want 1", len(snap))
	}
	n := snap[0]
	if n.Role != RoleBeacon || n.BSSID != bssid || n.Channel != 6 {
		t.Errorf("record = %+v, want beacon at %s ch6", n, bssid)
	}
	if n.TimesSeen != 2 || n.RSSI != -50 {
		t.Errorf("TimesSeen=%d RSSI=%d, want 2 / -50", n.TimesSeen, n.RSSI)
	}
}

func TestBeaconForOtherSSIDNeverMerges(t *testing.T) {
	r := NewNetworks(8)
	r.Observe(Network{SSID: "Foo", Role: RoleProbe})
	r.Observe(Network{SSID: "Bar", BSSID: addr(1), Role: RoleBeacon})

	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	foo, _ := r.Find(func(n *Network) bool { return n.SSID == "Foo" })
	if foo.Role != RoleProbe || !foo.BSSID.IsZero() {
		t.Errorf("probe record modified: %+v", foo)
	}
}

func TestSecondAccessPointKeepsOwnRecord(t *testing.T) {
	r := NewNetworks(8)
	r.Observe(Network{SSID: "Mesh", BSSID: addr(1), Role: RoleBeacon})
	r.Observe(Network{SSID: "Mesh", BSSID: addr(2), Role: RoleBeacon})
	r.Observe(Network{SSID: "Mesh", BSSID: addr(1), Role: RoleBeacon})
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestProbeMatchesAnyAddress(t *testing.T) {
	r := NewNetworks(8)
	r.Observe(Network{SSID: "Home", BSSID: addr(1), Role: RoleBeacon, RSSI: -70})
	out, _ := r.Observe(Network{SSID: "Home", Role: RoleProbe, RSSI: -40})
	if out != Merged {
		t.Fatalf("probe = %v, want merged", out)
	}
	n, _ := r.Find(func(n *Network) bool { return n.SSID == "Home" })
	if n.Role != RoleBeacon || n.BSSID != addr(1) || n.RSSI != -40 {
		t.Errorf("record = %+v", n)
	}
}

func TestOtherRefreshesOnly(t *testing.T) {
	r := NewNetworks(8)
	if out, _ := r.Observe(Network{BSSID: addr(7), Role: RoleOther}); out != Ignored {
		t.Fatalf("other on empty registry = %v, want ignored", out)
	}
	r.Observe(Network{SSID: "Cafe", BSSID: addr(7), Channel: 11, Role: RoleBeacon, RSSI: -60})
	out, _ := r.Observe(Network{BSSID: addr(7), Channel: 1, Role: RoleOther, RSSI: -20})
	if out != Merged {
		t.Fatalf("other = %v, want merged", out)
	}
	n, _ := r.Find(func(n *Network) bool { return n.BSSID == addr(7) })
	if n.Channel != 11 || n.RSSI != -60 || n.TimesSeen != 2 {
		t.Errorf("record = %+v", n)
	}
}

func TestHiddenSSIDIgnored(t *testing.T) {
	r := NewNetworks(8)
	if out, _ := r.Observe(Network{BSSID: addr(1), Role: RoleBeacon}); out != Ignored {
		t.Errorf("hidden beacon = %v, want ignored", out)
	}
	if r.ContainsSSID("") {
		t.Error("empty SSID reported as present")
	}
}

func TestDeviceMergeRules(t *testing.T) {
	r := NewDevices(4)
	a := addr(3)
	r.Observe(Device{Addr: a, Name: "Watch", RSSI: -40})
	r.Observe(Device{Addr: a, RSSI: -75})
	d, _ := r.Find(func(d *Device) bool { return d.Addr == a })
	if d.Name != "Watch" {
		t.Errorf("Name = %q, empty name must not clear it", d.Name)
	}
	if d.RSSI != -75 {
		t.Errorf("RSSI = %d, want latest -75", d.RSSI)
	}
	r.Observe(Device{Addr: a, Name: "Watch 2"})
	d, _ = r.Find(func(d *Device) bool { return d.Addr == a })
	if d.Name != "Watch 2" || d.TimesSeen != 3 {
		t.Errorf("record = %+v", d)
	}
}
