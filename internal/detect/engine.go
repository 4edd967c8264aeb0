// Package detect matches live observations against the registries while
// the sensor is in detection mode and derives the presence alarm.
//
// The engine only reads the registries. Matches go into a separate
// detected set, so the watch-list itself never changes in this mode.
package detect

import (
	"sort"
	"sync"
	"time"

	"airwatch.klederson.com/internal/dot11"
	"airwatch.klederson.com/internal/hwaddr"
	"airwatch.klederson.com/internal/registry"
)

// AlarmWindow is how long a single match keeps the alarm raised.
const AlarmWindow = 60 * time.Second

// Identity is one matched watch-list entry.
type Identity struct {
	Kind registry.Kind
	Addr hwaddr.Addr
	SSID string
}

func (id Identity) String() string {
	if id.SSID != "" {
		return id.Kind.String() + ":" + id.SSID
	}
	return id.Kind.String() + ":" + id.Addr.String()
}

// Engine tracks detections. Safe for concurrent use.
type Engine struct {
	set *registry.Set
	now func() time.Time

	mu       sync.Mutex
	detected map[Identity]struct{}
	last     time.Time
}

// NewEngine creates an engine matching against set. now defaults to time.Now.
func NewEngine(set *registry.Set, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		set:      set,
		now:      now,
		detected: make(map[Identity]struct{}),
	}
}

// ObserveFrame checks the transmitter, the BSSID and the SSID of f against
// the registries and records every hit. It reports whether anything matched.
func (e *Engine) ObserveFrame(f dot11.Frame) bool {
	var hits []Identity
	if !f.Src.IsZero() && e.set.Stations.Contains(f.Src) {
		hits = append(hits, Identity{Kind: registry.KindStations, Addr: f.Src})
	}
	if !f.BSSID.IsZero() && !f.BSSID.IsBroadcast() && e.set.Networks.ContainsBSSID(f.BSSID) {
		hits = append(hits, Identity{Kind: registry.KindNetworks, Addr: f.BSSID})
	}
	if f.SSID != "" && e.set.Networks.ContainsSSID(f.SSID) {
		hits = append(hits, Identity{Kind: registry.KindNetworks, SSID: f.SSID})
	}
	return e.record(hits...)
}

// ObserveDevice checks a BLE advertiser against the device registry.
func (e *Engine) ObserveDevice(a hwaddr.Addr) bool {
	if !e.set.Devices.Contains(a) {
		return false
	}
	return e.record(Identity{Kind: registry.KindDevices, Addr: a})
}

func (e *Engine) record(hits ...Identity) bool {
	if len(hits) == 0 {
		return false
	}
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range hits {
		e.detected[id] = struct{}{}
	}
	e.last = now
	return true
}

// IsAlarmed reports whether something matched within the alarm window.
func (e *Engine) IsAlarmed() bool {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.detected) > 0 && now.Sub(e.last) < AlarmWindow
}

// LastDetection returns the time of the most recent match, zero if none.
func (e *Engine) LastDetection() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Detected returns the matched identities sorted by their string form.
func (e *Engine) Detected() []Identity {
	e.mu.Lock()
	out := make([]Identity, 0, len(e.detected))
	for id := range e.detected {
		out = append(out, id)
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Clean forgets every detection; IsAlarmed is false immediately after.
func (e *Engine) Clean() {
	e.mu.Lock()
	defer e.mu.Unlock()
	clear(e.detected)
	e.last = time.Time{}
}
