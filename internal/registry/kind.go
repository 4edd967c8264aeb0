package registry

import "fmt"

// Kind names one of the three registries. Its String form is the token the
// controller writes to request an export.
type Kind int

const (
	KindNone Kind = iota
	KindNetworks
	KindStations
	KindDevices
)

// Kinds lists the registry kinds in export/persistence order.
var Kinds = []Kind{KindNetworks, KindStations, KindDevices}

func (k Kind) String() string {
	switch k {
	case KindNetworks:
		return "networks"
	case KindStations:
		return "stations"
	case KindDevices:
		return "ble"
	default:
		return "none"
	}
}

// ParseKind maps a request token to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "networks":
		return KindNetworks, nil
	case "stations":
		return KindStations, nil
	case "ble":
		return KindDevices, nil
	}
	return KindNone, fmt.Errorf("unknown registry kind %q", s)
}

// RecordSize is the fixed encoded size of one record of this kind.
func (k Kind) RecordSize() int {
	switch k {
	case KindNetworks:
		return NetworkRecordSize
	case KindStations:
		return StationRecordSize
	case KindDevices:
		return DeviceRecordSize
	}
	return 0
}
