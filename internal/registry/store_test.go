package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"airwatch.klederson.com/internal/hwaddr"
)

// fakeClock advances one second per call so every observation has a
// distinct, ordered timestamp.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func addr(n int) hwaddr.Addr {
	return hwaddr.Addr{0x02, 0, 0, 0, byte(n >> 8), byte(n)}
}

func TestSizeNeverExceedsCapacity(t *testing.T) {
	clk := newFakeClock()
	r := NewStations(8, WithClock(clk.Now))
	for i := 0; i < 100; i++ {
		if _, err := r.Observe(Station{Addr: addr(i % 37), RSSI: -50}); err != nil {
			t.Fatalf("Observe: %v", err)
		}
		if r.Len() > r.Capacity() {
			t.Fatalf("Len() = %d exceeds capacity %d", r.Len(), r.Capacity())
		}
	}
	if r.Len() != 8 {
		t.Errorf("Len() = %d, want 8", r.Len())
	}
}

func TestReobserveIncrementsTimesSeen(t *testing.T) {
	r := NewStations(4, WithClock(newFakeClock().Now))
	a := addr(1)

	if out, _ := r.Observe(Station{Addr: a, RSSI: -60}); out != Inserted {
		t.Fatalf("first observe = %v, want inserted", out)
	}
	before, _ := r.Find(func(s *Station) bool { return s.Addr == a })

	if out, _ := r.Observe(Station{Addr: a, RSSI: -70}); out != Merged {
		t.Fatalf("second observe = %v, want merged", out)
	}
	after, _ := r.Find(func(s *Station) bool { return s.Addr == a })

	if after.TimesSeen != before.TimesSeen+1 {
		t.Errorf("TimesSeen = %d, want %d", after.TimesSeen, before.TimesSeen+1)
	}
	if !after.LastSeen.After(before.LastSeen) {
		t.Error("LastSeen not advanced")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
	if after.RSSI != -60 {
		t.Errorf("RSSI = %d, want max -60", after.RSSI)
	}
}

func TestCapacityPlusOneEvictsOldest(t *testing.T) {
	const capacity = 5
	r := NewStations(capacity, WithClock(newFakeClock().Now))
	for i := 0; i < capacity; i++ {
		r.Observe(Station{Addr: addr(i)})
	}
	// Refresh addr(0) so addr(1) becomes the least recently seen.
	r.Observe(Station{Addr: addr(0)})

	out, err := r.Observe(Station{Addr: addr(99)})
	if err != nil || out != Evicted {
		t.Fatalf("Observe = %v, %v; want evicted", out, err)
	}
	if r.Len() != capacity {
		t.Errorf("Len() = %d, want %d", r.Len(), capacity)
	}
	if r.Contains(addr(1)) {
		t.Error("oldest record addr(1) still present")
	}
	for _, want := range []int{0, 2, 3, 4, 99} {
		if !r.Contains(addr(want)) {
			t.Errorf("addr(%d) missing", want)
		}
	}
}

func TestLockTimeout(t *testing.T) {
	r := NewStations(4, WithLockWait(time.Millisecond))
	r.mustLock()
	_, err := r.Observe(Station{Addr: addr(1)})
	r.unlock()
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("err = %v, want ErrLockTimeout", err)
	}
	if _, err := r.Observe(Station{Addr: addr(1)}); err != nil {
		t.Fatalf("after unlock: %v", err)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	r := NewDevices(4)
	r.Observe(Device{Addr: addr(1), Name: "tag"})
	snap := r.Snapshot()
	snap[0].Name = "changed"
	got, _ := r.Find(func(d *Device) bool { return d.Addr == addr(1) })
	if got.Name != "tag" {
		t.Errorf("registry mutated through snapshot: %q", got.Name)
	}
}

func TestSweepIrrelevant(t *testing.T) {
	r := NewStations(10, WithClock(newFakeClock().Now))
	// addr(1) seen 10 times, addr(2) once, addr(4) often but weak.
	for i := 0; i < 10; i++ {
		r.Observe(Station{Addr: addr(1), RSSI: -40})
	}
	r.Observe(Station{Addr: addr(2), RSSI: -40})
	for i := 0; i < 5; i++ {
		r.Observe(Station{Addr: addr(4), RSSI: -95})
	}
	// mean = (10+1+5)/3 = 5.33, a third of it is 1.78
	removed := r.SweepIrrelevant(-90)
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if !r.Contains(addr(1)) || r.Contains(addr(2)) || r.Contains(addr(4)) {
		t.Errorf("unexpected survivors: %+v", r.Snapshot())
	}
}

func TestReplaceKeepsMostRecent(t *testing.T) {
	r := NewStations(2)
	base := time.Unix(1_700_000_000, 0)
	r.Replace([]Station{
		{Addr: addr(1), Sighting: Sighting{LastSeen: base}},
		{Addr: addr(2), Sighting: Sighting{LastSeen: base.Add(2 * time.Second)}},
		{Addr: addr(3), Sighting: Sighting{LastSeen: base.Add(time.Second)}},
	})
	if r.Len() != 2 || r.Contains(addr(1)) {
		t.Errorf("Replace kept %+v", r.Snapshot())
	}
}

func TestConcurrentObserve(t *testing.T) {
	r := NewStations(16, WithLockWait(time.Second))
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				r.Observe(Station{Addr: addr(g*1000 + i%20)})
				_ = r.Snapshot()
			}
		}(g)
	}
	wg.Wait()
	if r.Len() > 16 {
		t.Errorf("Len() = %d exceeds capacity", r.Len())
	}
}

// indexedSlots counts the slots an index holds and fails if any of them
// points at a record with a different key.
func indexedSlots[T any, K comparable](t *testing.T, ix *index[T, K], items []T) int {
	t.Helper()
	n := 0
	for k, slots := range ix.pos {
		for _, i := range slots {
			if i >= len(items) {
				t.Fatalf("key %v points past the end: %d >= %d", k, i, len(items))
			}
			if got, ok := ix.key(&items[i]); !ok || got != k {
				t.Errorf("key %v points at slot %d holding %v", k, i, got)
			}
			n++
		}
	}
	return n
}

func TestStationIndexFollowsEvictSweepReplace(t *testing.T) {
	r := NewStations(3, WithClock(newFakeClock().Now))
	check := func(step string, want ...hwaddr.Addr) {
		t.Helper()
		if n := indexedSlots(t, r.byAddr, r.items); n != len(r.items) {
			t.Errorf("%s: %d indexed slots for %d records", step, n, len(r.items))
		}
		if r.Len() != len(want) {
			t.Errorf("%s: Len = %d, want %d", step, r.Len(), len(want))
		}
		for _, a := range want {
			if !r.Contains(a) {
				t.Errorf("%s: %s missing", step, a)
			}
		}
	}

	for i := 1; i <= 3; i++ {
		r.Observe(Station{Addr: addr(i), RSSI: -40})
	}
	r.Observe(Station{Addr: addr(1), RSSI: -40})
	// addr(2) is now the oldest and gets evicted.
	if out, _ := r.Observe(Station{Addr: addr(4), RSSI: -40}); out != Evicted {
		t.Fatalf("outcome = %v, want evicted", out)
	}
	check("evict", addr(1), addr(3), addr(4))
	if r.Contains(addr(2)) {
		t.Error("evicted station still found")
	}
	if out, _ := r.Observe(Station{Addr: addr(2)}); out != Evicted {
		t.Errorf("re-observing evicted station = %v, want evicted", out)
	}

	r.Replace([]Station{{Addr: addr(5)}, {Addr: addr(6)}})
	check("replace", addr(5), addr(6))
	if r.Contains(addr(1)) {
		t.Error("replaced station still found")
	}

	r.Observe(Station{Addr: addr(5), RSSI: -40})
	r.Observe(Station{Addr: addr(5), RSSI: -40})
	r.Observe(Station{Addr: addr(5), RSSI: -40})
	if removed := r.SweepIrrelevant(-90); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	check("sweep", addr(5))
	if out, _ := r.Observe(Station{Addr: addr(5)}); out != Merged {
		t.Errorf("after sweep = %v, want merged", out)
	}

	r.Clear()
	check("clear")
}

func TestNetworkIndexFollowsTakeover(t *testing.T) {
	r := NewNetworks(4, WithClock(newFakeClock().Now))
	r.Observe(Network{SSID: "Home", Role: RoleProbe})
	if r.ContainsBSSID(addr(7)) {
		t.Fatal("probe record found by address")
	}
	// The beacon takes over the probe record and gives it an address.
	if out, _ := r.Observe(Network{SSID: "Home", BSSID: addr(7), Role: RoleBeacon}); out != Merged {
		t.Fatalf("beacon = %v, want merged", out)
	}
	if !r.ContainsBSSID(addr(7)) || !r.ContainsSSID("Home") {
		t.Errorf("indexes lost the merged record: %+v", r.Snapshot())
	}
	if out, _ := r.Observe(Network{BSSID: addr(7), Role: RoleOther}); out != Merged {
		t.Errorf("traffic = %v, want merged", out)
	}
	if n := indexedSlots(t, r.byBSSID, r.items); n != 1 {
		t.Errorf("bssid slots = %d, want 1", n)
	}
	if n := indexedSlots(t, r.bySSID, r.items); n != 1 {
		t.Errorf("ssid slots = %d, want 1", n)
	}
	if r.ContainsBSSID(hwaddr.Addr{}) {
		t.Error("zero address matched")
	}
}

func TestLockWaitSucceedsWhenReleased(t *testing.T) {
	r := NewStations(4, WithLockWait(time.Second))
	r.mustLock()
	released := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		r.unlock()
		close(released)
	}()
	if _, err := r.Observe(Station{Addr: addr(1)}); err != nil {
		t.Fatalf("Observe = %v, want success once the lock is released", err)
	}
	<-released
	if !r.Contains(addr(1)) {
		t.Error("station missing")
	}
}
