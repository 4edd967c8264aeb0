package capture

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"airwatch.klederson.com/internal/dot11"
	"airwatch.klederson.com/internal/hwaddr"
)

var mockSSIDs = []string{
	"HomeNetwork_2G", "XFINITY-7A3F", "TP-Link_5GHz", "AndroidAP", "Starlink_WiFi",
	"CoffeeShop", "NETGEAR42", "eduroam", "Guest", "FRITZ!Box 7590", "", "Linksys00311",
}

var mockDeviceNames = []string{
	"iPhone 15 Pro", "Galaxy S24 Ultra", "Pixel 9 Pro", "AirPods Pro", "MacBook Air",
	"Apple Watch", "Fitbit Charge 6", "Tile Tracker", "Tesla Model 3", "iPad Pro",
	"OnePlus Buds 3", "",
}

var mock24GChannels = []uint8{1, 6, 11}
var mock5GChannels = []uint8{36, 40, 44, 48, 149, 153, 157, 161}

type mockEmitter struct {
	addr      hwaddr.Addr
	name      string
	baseRSSI  float64
	phase     float64
	amplitude float64
	active    bool
	channel   uint8
	ap        int  // index into networks for stations, -1 when roaming
	public    bool // devices only
}

func (m *mockEmitter) rssi(t float64, rng *rand.Rand) int8 {
	v := m.baseRSSI + m.amplitude*math.Sin(t*0.5+m.phase) + (rng.Float64()-0.5)*4
	return clampRSSI(int(v))
}

// MockSource synthesises a small radio environment for demo mode: access
// points beaconing, stations probing and exchanging data, and BLE
// peripherals advertising. It satisfies both FrameSource and AdvertSource.
type MockSource struct {
	interval time.Duration

	mu       sync.Mutex
	rng      *rand.Rand
	networks []mockEmitter
	stations []mockEmitter
	devices  []mockEmitter
}

// NewMockSource creates a demo environment. The same seed always produces
// the same environment.
func NewMockSource(seed int64, networks, stations, devices int) *MockSource {
	rng := rand.New(rand.NewSource(seed))
	s := &MockSource{interval: 200 * time.Millisecond, rng: rng}

	for i := 0; i < networks; i++ {
		ch := mock24GChannels[rng.Intn(len(mock24GChannels))]
		if rng.Intn(2) == 0 {
			ch = mock5GChannels[rng.Intn(len(mock5GChannels))]
		}
		s.networks = append(s.networks, s.emitter(mockSSIDs[i%len(mockSSIDs)], ch, -1))
		s.networks[i].addr[0] &^= 0x03 // globally administered unicast
	}
	for i := 0; i < stations; i++ {
		ap := -1
		if networks > 0 && rng.Intn(4) != 0 {
			ap = rng.Intn(networks)
		}
		st := s.emitter("", 0, ap)
		if ap >= 0 {
			st.channel = s.networks[ap].channel
		}
		s.stations = append(s.stations, st)
	}
	for i := 0; i < devices; i++ {
		d := s.emitter(mockDeviceNames[rng.Intn(len(mockDeviceNames))], 0, -1)
		d.public = rng.Intn(3) == 0
		s.devices = append(s.devices, d)
	}
	return s
}

func (s *MockSource) emitter(name string, ch uint8, ap int) mockEmitter {
	var a hwaddr.Addr
	s.rng.Read(a[:])
	a[0] &^= 0x01 // unicast
	return mockEmitter{
		addr:      a,
		name:      name,
		baseRSSI:  -40 - s.rng.Float64()*50, // -40 to -90 dBm
		phase:     s.rng.Float64() * 2 * math.Pi,
		amplitude: 3 + s.rng.Float64()*8,
		active:    true,
		channel:   ch,
		ap:        ap,
	}
}

// WithInterval changes the tick between bursts.
func (s *MockSource) WithInterval(d time.Duration) *MockSource {
	s.interval = d
	return s
}

// Capture implements FrameSource.
func (s *MockSource) Capture(ctx context.Context, emit func(dot11.Capture)) error {
	return s.loop(ctx, func(t float64) {
		for _, c := range s.frames(t) {
			emit(c)
		}
	})
}

// Scan implements AdvertSource.
func (s *MockSource) Scan(ctx context.Context, emit func(Advert)) error {
	return s.loop(ctx, func(t float64) {
		for _, a := range s.adverts(t) {
			emit(a)
		}
	})
}

func (s *MockSource) loop(ctx context.Context, tick func(t float64)) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	t := 0.0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t += s.interval.Seconds()
			tick(t)
		}
	}
}

// frames returns one burst of 802.11 traffic at time t.
func (s *MockSource) frames(t float64) []dot11.Capture {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var out []dot11.Capture
	add := func(raw []byte, e *mockEmitter, ch uint8) {
		out = append(out, dot11.Capture{Raw: raw, RSSI: e.rssi(t, s.rng), Channel: ch, At: now})
	}

	for i := range s.networks {
		n := &s.networks[i]
		// Randomly toggle visibility (appear/disappear)
		if s.rng.Float64() < 0.005 {
			n.active = !n.active
		}
		if n.active {
			add(dot11.BuildBeacon(n.addr, n.name, n.channel), n, n.channel)
		}
	}

	for i := range s.stations {
		st := &s.stations[i]
		if s.rng.Float64() < 0.005 {
			st.active = !st.active
		}
		if !st.active {
			continue
		}
		switch r := s.rng.Float64(); {
		case st.ap < 0 || r < 0.1:
			ssid := ""
			if len(s.networks) > 0 && s.rng.Intn(2) == 0 {
				ssid = s.networks[s.rng.Intn(len(s.networks))].name
			}
			add(dot11.BuildProbeRequest(st.addr, ssid), st, st.channel)
		case r < 0.7:
			ap := s.networks[st.ap].addr
			add(dot11.BuildData(true, false, ap, st.addr, hwaddr.Broadcast, hwaddr.Addr{}), st, st.channel)
		case r < 0.9:
			ap := &s.networks[st.ap]
			add(dot11.BuildData(false, true, st.addr, ap.addr, ap.addr, hwaddr.Addr{}), ap, ap.channel)
		default:
			add(dot11.BuildRTS(s.networks[st.ap].addr, st.addr), st, st.channel)
		}
	}
	return out
}

// adverts returns one burst of BLE advertisements at time t.
func (s *MockSource) adverts(t float64) []Advert {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	out := make([]Advert, 0, len(s.devices))
	for i := range s.devices {
		d := &s.devices[i]
		if s.rng.Float64() < 0.005 {
			d.active = !d.active
		}
		if !d.active {
			continue
		}
		name := d.name
		// Some devices occasionally omit the name (realistic)
		if s.rng.Float64() < 0.05 {
			name = ""
		}
		out = append(out, Advert{Addr: d.addr, Name: name, RSSI: d.rssi(t, s.rng), Public: d.public, At: now})
	}
	return out
}
