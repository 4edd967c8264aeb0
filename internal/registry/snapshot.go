package registry

// Snapshotter is the kind-agnostic view of a registry used by export and
// persistence. Encode works on a snapshot, so no lock is held while the
// caller does I/O with the result.
type Snapshotter interface {
	Kind() Kind
	Len() int
	Capacity() int
	Encode() ([][]byte, error)
	Load(raw [][]byte) error
	Clear()
}

var (
	_ Snapshotter = (*Networks)(nil)
	_ Snapshotter = (*Stations)(nil)
	_ Snapshotter = (*Devices)(nil)
)

func (r *Networks) Kind() Kind { return KindNetworks }
func (r *Stations) Kind() Kind { return KindStations }
func (r *Devices) Kind() Kind  { return KindDevices }

// Encode snapshots the registry and encodes every record.
func (r *Networks) Encode() ([][]byte, error) { return EncodeAll(r.Snapshot()) }

// Encode snapshots the registry and encodes every record.
func (r *Stations) Encode() ([][]byte, error) { return EncodeAll(r.Snapshot()) }

// Encode snapshots the registry and encodes every record.
func (r *Devices) Encode() ([][]byte, error) { return EncodeAll(r.Snapshot()) }

// Load replaces the registry contents with decoded records. On a decode
// error the registry is left untouched.
func (r *Networks) Load(raw [][]byte) error {
	recs, err := decodeAll[Network](raw, r.now(), networkSighting)
	if err != nil {
		return err
	}
	r.Replace(recs)
	return nil
}

// Load replaces the registry contents with decoded records.
func (r *Stations) Load(raw [][]byte) error {
	recs, err := decodeAll[Station](raw, r.now(), stationSighting)
	if err != nil {
		return err
	}
	r.Replace(recs)
	return nil
}

// Load replaces the registry contents with decoded records.
func (r *Devices) Load(raw [][]byte) error {
	recs, err := decodeAll[Device](raw, r.now(), deviceSighting)
	if err != nil {
		return err
	}
	r.Replace(recs)
	return nil
}

// Set groups the three registries the sensor owns.
type Set struct {
	Networks *Networks
	Stations *Stations
	Devices  *Devices
}

// NewSet creates the three registries with the given capacities.
func NewSet(networks, stations, devices int, opts ...Option) *Set {
	return &Set{
		Networks: NewNetworks(networks, opts...),
		Stations: NewStations(stations, opts...),
		Devices:  NewDevices(devices, opts...),
	}
}

// Get returns the registry for k, or nil for KindNone.
func (s *Set) Get(k Kind) Snapshotter {
	switch k {
	case KindNetworks:
		return s.Networks
	case KindStations:
		return s.Stations
	case KindDevices:
		return s.Devices
	}
	return nil
}

// Clear empties all three registries.
func (s *Set) Clear() {
	s.Networks.Clear()
	s.Stations.Clear()
	s.Devices.Clear()
}

// Sweep runs the relevance sweep over every registry that is full and
// returns the total number of records removed.
func (s *Set) Sweep(floor int8) int {
	removed := 0
	if s.Networks.Len() >= s.Networks.Capacity() {
		removed += s.Networks.SweepIrrelevant(floor)
	}
	if s.Stations.Len() >= s.Stations.Capacity() {
		removed += s.Stations.SweepIrrelevant(floor)
	}
	if s.Devices.Len() >= s.Devices.Capacity() {
		removed += s.Devices.SweepIrrelevant(floor)
	}
	return removed
}
