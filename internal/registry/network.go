package registry

import (
	"airwatch.klederson.com/internal/hwaddr"
)

// MaxSSIDLen is the longest SSID 802.11 allows.
const MaxSSIDLen = 32

// Role records how a network was observed.
type Role uint8

const (
	RoleOther Role = iota
	RoleProbe
	RoleBeacon
)

func (r Role) String() string {
	switch r {
	case RoleProbe:
		return "probe"
	case RoleBeacon:
		return "beacon"
	default:
		return "other"
	}
}

func parseRole(s string) Role {
	switch s {
	case "probe":
		return RoleProbe
	case "beacon":
		return RoleBeacon
	default:
		return RoleOther
	}
}

// Network is a WiFi network seen through beacons, probes or traffic.
type Network struct {
	SSID    string
	BSSID   hwaddr.Addr
	RSSI    int8 // best seen
	Channel uint8
	Role    Role
	Sighting
}

func networkSighting(n *Network) *Sighting { return &n.Sighting }
func networkRSSI(n *Network) int8          { return n.RSSI }

// Networks is the network registry.
type Networks struct {
	*Store[Network]
	bySSID  *index[Network, string]
	byBSSID *index[Network, hwaddr.Addr]
}

func networkSSID(n *Network) (string, bool)       { return n.SSID, n.SSID != "" }
func networkBSSID(n *Network) (hwaddr.Addr, bool) { return n.BSSID, !n.BSSID.IsZero() }

// NewNetworks creates an empty network registry.
func NewNetworks(capacity int, opts ...Option) *Networks {
	r := &Networks{
		Store:   NewStore(capacity, networkSighting, opts...),
		bySSID:  newIndex(networkSSID),
		byBSSID: newIndex(networkBSSID),
	}
	r.addIndex(r.bySSID)
	r.addIndex(r.byBSSID)
	return r
}

// Observe applies one observation. The role of obs decides what it matches:
//
//   - probe: any record with the same SSID
//   - beacon: same SSID and either the same BSSID or a record that is not
//     yet a confirmed beacon, which it then takes over
//   - other: same BSSID only; refreshes counters and never inserts
//
// Signal strength keeps the maximum.
func (r *Networks) Observe(obs Network) (Outcome, error) {
	switch obs.Role {
	case RoleProbe:
		if obs.SSID == "" {
			return Ignored, nil
		}
		return r.upsert(
			r.bySSID.at(obs.SSID),
			func(e *Network) bool { return e.SSID == obs.SSID },
			func(e *Network) { e.RSSI = max(e.RSSI, obs.RSSI) },
			func() (Network, bool) { return obs, true },
		)

	case RoleBeacon:
		if obs.SSID == "" {
			return Ignored, nil
		}
		return r.upsert(
			r.bySSID.at(obs.SSID),
			func(e *Network) bool {
				return e.SSID == obs.SSID && (e.BSSID == obs.BSSID || e.Role != RoleBeacon)
			},
			func(e *Network) {
				e.BSSID = obs.BSSID
				e.Channel = obs.Channel
				e.Role = RoleBeacon
				e.RSSI = max(e.RSSI, obs.RSSI)
			},
			func() (Network, bool) { return obs, true },
		)

	default:
		if obs.BSSID.IsZero() {
			return Ignored, nil
		}
		return r.upsert(
			r.byBSSID.at(obs.BSSID),
			func(e *Network) bool { return e.BSSID == obs.BSSID },
			func(*Network) {},
			func() (Network, bool) { return Network{}, false },
		)
	}
}

// ContainsBSSID reports whether a network with this address is registered.
func (r *Networks) ContainsBSSID(a hwaddr.Addr) bool {
	if a.IsZero() {
		return false
	}
	return r.has(r.byBSSID.at(a), func(e *Network) bool { return e.BSSID == a })
}

// ContainsSSID reports whether a network with this name is registered.
func (r *Networks) ContainsSSID(ssid string) bool {
	if ssid == "" {
		return false
	}
	return r.has(r.bySSID.at(ssid), func(e *Network) bool { return e.SSID == ssid })
}

// SweepIrrelevant drops rarely seen or weak networks.
func (r *Networks) SweepIrrelevant(floor int8) int {
	return r.Sweep(Relevant(floor, networkSighting, networkRSSI))
}
