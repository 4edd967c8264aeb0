package registry

import "airwatch.klederson.com/internal/hwaddr"

// Station is a WiFi client or access point seen sending or receiving traffic.
type Station struct {
	Addr    hwaddr.Addr
	BSSID   hwaddr.Addr // last associated access point
	RSSI    int8
	Channel uint8
	Sighting
}

func stationSighting(s *Station) *Sighting { return &s.Sighting }
func stationRSSI(s *Station) int8          { return s.RSSI }

// Stations is the station registry, keyed by station address.
type Stations struct {
	*Store[Station]
	byAddr *index[Station, hwaddr.Addr]
}

func stationAddr(s *Station) (hwaddr.Addr, bool) { return s.Addr, true }

// NewStations creates an empty station registry.
func NewStations(capacity int, opts ...Option) *Stations {
	r := &Stations{
		Store:  NewStore(capacity, stationSighting, opts...),
		byAddr: newIndex(stationAddr),
	}
	r.addIndex(r.byAddr)
	return r
}

// Observe inserts or refreshes the station. BSSID and channel always follow
// the latest observation; signal strength keeps the maximum.
func (r *Stations) Observe(obs Station) (Outcome, error) {
	return r.upsert(
		r.byAddr.at(obs.Addr),
		func(e *Station) bool { return e.Addr == obs.Addr },
		func(e *Station) {
			e.BSSID = obs.BSSID
			e.Channel = obs.Channel
			e.RSSI = max(e.RSSI, obs.RSSI)
		},
		func() (Station, bool) { return obs, true },
	)
}

// Contains reports whether the address is registered.
func (r *Stations) Contains(a hwaddr.Addr) bool {
	return r.has(r.byAddr.at(a), func(e *Station) bool { return e.Addr == a })
}

// SweepIrrelevant drops rarely seen or weak stations.
func (r *Stations) SweepIrrelevant(floor int8) int {
	return r.Sweep(Relevant(floor, stationSighting, stationRSSI))
}
