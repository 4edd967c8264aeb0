package dot11

import (
	"errors"
	"sync/atomic"

	"airwatch.klederson.com/internal/hwaddr"
	"airwatch.klederson.com/internal/registry"
)

// Stats counts what the classifier did with every capture it saw.
type Stats struct {
	Received  uint64
	Accepted  uint64
	TooShort  uint64
	Weak      uint64
	Malformed uint64
	Filtered  uint64
}

// Classifier applies the signal floor and management-only filter and
// parses what survives. Settings may change while capture is running.
type Classifier struct {
	floor    atomic.Int32
	mgmtOnly atomic.Bool

	received  atomic.Uint64
	accepted  atomic.Uint64
	tooShort  atomic.Uint64
	weak      atomic.Uint64
	malformed atomic.Uint64
	filtered  atomic.Uint64
}

// NewClassifier creates a classifier with the given RSSI floor in dBm.
func NewClassifier(floor int8, mgmtOnly bool) *Classifier {
	c := &Classifier{}
	c.SetFloor(floor)
	c.SetManagementOnly(mgmtOnly)
	return c
}

// SetFloor changes the minimum accepted signal strength.
func (c *Classifier) SetFloor(floor int8) { c.floor.Store(int32(floor)) }

// SetManagementOnly toggles dropping of control and data frames.
func (c *Classifier) SetManagementOnly(on bool) { c.mgmtOnly.Store(on) }

// Classify parses one capture. The returned error is one of ErrTooShort,
// ErrWeakSignal, ErrMalformed or ErrFiltered (possibly wrapped); callers
// drop the frame and carry on.
func (c *Classifier) Classify(cp Capture) (Frame, error) {
	c.received.Add(1)
	if len(cp.Raw) < MinHeaderLen {
		c.tooShort.Add(1)
		return Frame{}, ErrTooShort
	}
	if int32(cp.RSSI) < c.floor.Load() {
		c.weak.Add(1)
		return Frame{}, ErrWeakSignal
	}

	f, err := Parse(cp.Raw)
	if err != nil {
		if errors.Is(err, ErrTooShort) {
			c.tooShort.Add(1)
		} else {
			c.malformed.Add(1)
		}
		return Frame{}, err
	}
	if c.mgmtOnly.Load() && f.Type != TypeManagement {
		c.filtered.Add(1)
		return Frame{}, ErrFiltered
	}
	f.RSSI = cp.RSSI
	f.Channel = cp.Channel
	c.accepted.Add(1)
	return f, nil
}

// Stats returns the counters.
func (c *Classifier) Stats() Stats {
	return Stats{
		Received:  c.received.Load(),
		Accepted:  c.accepted.Load(),
		TooShort:  c.tooShort.Load(),
		Weak:      c.weak.Load(),
		Malformed: c.malformed.Load(),
		Filtered:  c.filtered.Load(),
	}
}

// Dropped is the total of frames rejected for any reason.
func (s Stats) Dropped() uint64 {
	return s.TooShort + s.Weak + s.Malformed + s.Filtered
}

func isStation(a hwaddr.Addr) bool {
	return !a.IsZero() && !a.IsMulticast()
}

// Apply records f in the registries:
//
//   - the network registry when the frame names a BSSID that is not
//     broadcast, or is a probe carrying an SSID
//   - the station registry for the source and any unicast destination
//   - the station registry again for the BSSID, so traffic through an
//     access point also aggregates under the AP's own address; skipped when
//     the BSSID is the source or destination, which were just recorded
//
// It returns the number of updates skipped on lock timeouts.
func Apply(f Frame, set *registry.Set) int {
	skipped := 0
	note := func(_ registry.Outcome, err error) {
		if errors.Is(err, registry.ErrLockTimeout) {
			skipped++
		}
	}

	hasBSSID := !f.BSSID.IsZero() && !f.BSSID.IsBroadcast()
	switch {
	case hasBSSID:
		note(set.Networks.Observe(registry.Network{
			SSID: f.SSID, BSSID: f.BSSID, RSSI: f.RSSI, Channel: f.Channel, Role: f.Role,
		}))
	case f.Role == registry.RoleProbe && f.SSID != "":
		note(set.Networks.Observe(registry.Network{
			SSID: f.SSID, RSSI: f.RSSI, Channel: f.Channel, Role: registry.RoleProbe,
		}))
	}

	var bssid hwaddr.Addr
	if hasBSSID {
		bssid = f.BSSID
	}
	station := func(a hwaddr.Addr) {
		note(set.Stations.Observe(registry.Station{
			Addr: a, BSSID: bssid, RSSI: f.RSSI, Channel: f.Channel,
		}))
	}
	if isStation(f.Src) {
		station(f.Src)
	}
	if isStation(f.Dst) && f.Dst != f.Src {
		station(f.Dst)
	}
	if hasBSSID && f.BSSID != f.Src && f.BSSID != f.Dst {
		station(f.BSSID)
	}
	return skipped
}
