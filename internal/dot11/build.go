package dot11

import (
	"github.com/google/gopacket/layers"

	"airwatch.klederson.com/internal/hwaddr"
)

// Frame builders used by the demo capture source and by tests. They emit
// minimal but well-formed headers.

func header(typ Type, subtype uint8, flags byte, a1, a2, a3 hwaddr.Addr) []byte {
	b := make([]byte, mgmtHeaderLen)
	b[0] = subtype<<4 | byte(typ)<<2
	b[1] = flags
	copy(b[4:10], a1[:])
	copy(b[10:16], a2[:])
	copy(b[16:22], a3[:])
	return b
}

func ssidElement(ssid string) []byte {
	if len(ssid) > 255 {
		ssid = ssid[:255]
	}
	return append([]byte{byte(layers.Dot11InformationElementIDSSID), byte(len(ssid))}, ssid...)
}

// BuildBeacon returns a beacon from bssid advertising ssid on channel.
func BuildBeacon(bssid hwaddr.Addr, ssid string, channel uint8) []byte {
	b := header(TypeManagement, SubtypeBeacon, 0, hwaddr.Broadcast, bssid, bssid)
	b = append(b, make([]byte, 12)...) // timestamp, interval, capability
	b = append(b, ssidElement(ssid)...)
	b = append(b, 1, 1, 0x82)    // supported rates
	b = append(b, 3, 1, channel) // DS parameter set
	return b
}

// BuildProbeRequest returns a broadcast probe request from src for ssid.
// An empty ssid is the wildcard probe.
func BuildProbeRequest(src hwaddr.Addr, ssid string) []byte {
	b := header(TypeManagement, SubtypeProbeReq, 0, hwaddr.Broadcast, src, hwaddr.Broadcast)
	return append(b, ssidElement(ssid)...)
}

// BuildDeauth returns a deauthentication frame from src to dst within bssid.
func BuildDeauth(src, dst, bssid hwaddr.Addr) []byte {
	b := header(TypeManagement, SubtypeDeauth, 0, dst, src, bssid)
	return append(b, 7, 0) // reason code
}

// BuildData returns a data frame with the given to/from-DS bits. The four
// addresses are laid out exactly as passed; a4 is only written when both
// bits are set.
func BuildData(toDS, fromDS bool, a1, a2, a3, a4 hwaddr.Addr) []byte {
	var flags byte
	if toDS {
		flags |= byte(layers.Dot11FlagsToDS)
	}
	if fromDS {
		flags |= byte(layers.Dot11FlagsFromDS)
	}
	b := header(TypeData, 0, flags, a1, a2, a3)
	if toDS && fromDS {
		b = append(b, a4[:]...)
	}
	return append(b, 0xaa, 0xaa, 0x03) // LLC
}

// BuildRTS returns an RTS control frame.
func BuildRTS(ra, ta hwaddr.Addr) []byte {
	return controlTA(SubtypeRTS, ra, ta)
}

// controlTA returns a control frame of subtype carrying receiver and
// transmitter addresses.
func controlTA(subtype uint8, ra, ta hwaddr.Addr) []byte {
	b := make([]byte, ctrlTALen)
	b[0] = subtype<<4 | byte(TypeControl)<<2
	copy(b[4:10], ra[:])
	copy(b[10:16], ta[:])
	return b
}

// BuildCTS returns a CTS control frame.
func BuildCTS(ra hwaddr.Addr) []byte {
	b := make([]byte, MinHeaderLen)
	b[0] = SubtypeCTS<<4 | byte(TypeControl)<<2
	copy(b[4:10], ra[:])
	return b
}
