package registry

import (
	"unicode/utf8"

	"airwatch.klederson.com/internal/hwaddr"
)

// MaxNameLen is the longest advertised BLE name kept.
const MaxNameLen = 31

// Device is a BLE peripheral heard advertising.
type Device struct {
	Addr   hwaddr.Addr
	Name   string
	RSSI   int8
	Public bool // address is a public (IEEE-assigned) address
	Sighting
}

func deviceSighting(d *Device) *Sighting { return &d.Sighting }
func deviceRSSI(d *Device) int8          { return d.RSSI }

// Devices is the BLE peripheral registry, keyed by device address.
type Devices struct {
	*Store[Device]
	byAddr *index[Device, hwaddr.Addr]
}

func deviceAddr(d *Device) (hwaddr.Addr, bool) { return d.Addr, true }

// NewDevices creates an empty device registry.
func NewDevices(capacity int, opts ...Option) *Devices {
	r := &Devices{
		Store:  NewStore(capacity, deviceSighting, opts...),
		byAddr: newIndex(deviceAddr),
	}
	r.addIndex(r.byAddr)
	return r
}

// trimName cuts name to MaxNameLen bytes without splitting a character.
func trimName(name string) string {
	if len(name) <= MaxNameLen {
		return name
	}
	name = name[:MaxNameLen]
	for len(name) > 0 {
		r, size := utf8.DecodeLastRuneInString(name)
		if r != utf8.RuneError || size > 1 {
			break
		}
		name = name[:len(name)-1]
	}
	return name
}

// Observe inserts or refreshes the device. Unlike networks and stations the
// latest RSSI wins, advertisements fluctuate too much for a maximum to mean
// anything. An empty name never clears a known one.
func (r *Devices) Observe(obs Device) (Outcome, error) {
	obs.Name = trimName(obs.Name)
	return r.upsert(
		r.byAddr.at(obs.Addr),
		func(e *Device) bool { return e.Addr == obs.Addr },
		func(e *Device) {
			if obs.Name != "" {
				e.Name = obs.Name
			}
			e.RSSI = obs.RSSI
			e.Public = obs.Public
		},
		func() (Device, bool) { return obs, true },
	)
}

// Contains reports whether the address is registered.
func (r *Devices) Contains(a hwaddr.Addr) bool {
	return r.has(r.byAddr.at(a), func(e *Device) bool { return e.Addr == a })
}

// SweepIrrelevant drops rarely seen or weak devices.
func (r *Devices) SweepIrrelevant(floor int8) int {
	return r.Sweep(Relevant(floor, deviceSighting, deviceRSSI))
}
