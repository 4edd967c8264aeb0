package dot11

import (
	"errors"
	"time"

	"airwatch.klederson.com/internal/hwaddr"
	"airwatch.klederson.com/internal/registry"
)

var (
	// ErrTooShort marks frames below the minimum header length.
	ErrTooShort = errors.New("frame too short")
	// ErrWeakSignal marks frames below the configured RSSI floor.
	ErrWeakSignal = errors.New("signal below floor")
	// ErrMalformed marks truncated or unsupported frames.
	ErrMalformed = errors.New("malformed frame")
	// ErrFiltered marks frames dropped by the management-only filter.
	ErrFiltered = errors.New("frame filtered")
)

// Type is the 802.11 frame type from the frame control field.
type Type uint8

const (
	TypeManagement Type = 0
	TypeControl    Type = 1
	TypeData       Type = 2
	TypeExtension  Type = 3
)

func (t Type) String() string {
	switch t {
	case TypeManagement:
		return "mgmt"
	case TypeControl:
		return "ctrl"
	case TypeData:
		return "data"
	default:
		return "ext"
	}
}

// Management subtypes.
const (
	SubtypeAssocReq    = 0x0
	SubtypeAssocResp   = 0x1
	SubtypeReassocReq  = 0x2
	SubtypeReassocResp = 0x3
	SubtypeProbeReq    = 0x4
	SubtypeProbeResp   = 0x5
	SubtypeBeacon      = 0x8
	SubtypeATIM        = 0x9
	SubtypeDisassoc    = 0xA
	SubtypeAuth        = 0xB
	SubtypeDeauth      = 0xC
	SubtypeAction      = 0xD
)

// Control subtypes.
const (
	SubtypeWrapper     = 0x7
	SubtypeBlockAckReq = 0x8
	SubtypeBlockAck    = 0x9
	SubtypePSPoll      = 0xA
	SubtypeRTS         = 0xB
	SubtypeCTS         = 0xC
	SubtypeACK         = 0xD
	SubtypeCFEnd       = 0xE
	SubtypeCFEndAck    = 0xF
)

// Header lengths.
const (
	MinHeaderLen   = 10 // frame control, duration, receiver address
	mgmtHeaderLen  = 24
	ctrlTALen      = 16 // control frame carrying a transmitter address
)

// Capture is one frame as handed over by a capture source.
type Capture struct {
	Raw     []byte
	RSSI    int8
	Channel uint8
	At      time.Time
}

// Frame is a classified frame. Absent addresses are zero.
type Frame struct {
	Type    Type
	Subtype uint8
	Src     hwaddr.Addr
	Dst     hwaddr.Addr
	BSSID   hwaddr.Addr
	SSID    string // empty for hidden/wildcard or frames without an SSID element
	Role    registry.Role
	RSSI    int8
	Channel uint8
}
