package registry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"airwatch.klederson.com/internal/hwaddr"
)

// Fixed record layouts shared by the export protocol and snapshot storage.
// Multi-byte integers are big endian, strings are zero padded, timestamps
// are Unix seconds.
//
//	network: addr(6) ssid(32) rssi(1) channel(1) role(16) last_seen(8) times_seen(4)
//	station: addr(6) bssid(6) rssi(1) channel(1) last_seen(8) times_seen(4)
//	ble:     addr(6) name(32) rssi(1) last_seen(8) public(1) times_seen(4)
const (
	NetworkRecordSize = 6 + 32 + 1 + 1 + 16 + 8 + 4
	StationRecordSize = 6 + 6 + 1 + 1 + 8 + 4
	DeviceRecordSize  = 6 + 32 + 1 + 8 + 1 + 4

	roleFieldLen = 16
	nameFieldLen = 32
)

// ErrRecordSize is returned when decoding a buffer of the wrong length.
var ErrRecordSize = errors.New("wrong record size")

func putString(b []byte, s string) {
	n := copy(b, s)
	clear(b[n:])
}

func getString(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}

func unixOrZero(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.Unix())
}

func timeOrZero(sec uint64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), 0)
}

// AppendBinary appends the 68-byte network layout to b.
func (n Network) AppendBinary(b []byte) ([]byte, error) {
	var rec [NetworkRecordSize]byte
	copy(rec[0:6], n.BSSID[:])
	putString(rec[6:38], n.SSID)
	rec[38] = byte(n.RSSI)
	rec[39] = n.Channel
	putString(rec[40:56], n.Role.String())
	binary.BigEndian.PutUint64(rec[56:64], unixOrZero(n.LastSeen))
	binary.BigEndian.PutUint32(rec[64:68], n.TimesSeen)
	return append(b, rec[:]...), nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (n Network) MarshalBinary() ([]byte, error) {
	return n.AppendBinary(make([]byte, 0, NetworkRecordSize))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (n *Network) UnmarshalBinary(b []byte) error {
	if len(b) != NetworkRecordSize {
		return fmt.Errorf("%w: network record is %d bytes, got %d", ErrRecordSize, NetworkRecordSize, len(b))
	}
	*n = Network{
		BSSID:   hwaddr.FromBytes(b[0:6]),
		SSID:    getString(b[6:38]),
		RSSI:    int8(b[38]),
		Channel: b[39],
		Role:    parseRole(getString(b[40:56])),
		Sighting: Sighting{
			LastSeen:  timeOrZero(binary.BigEndian.Uint64(b[56:64])),
			TimesSeen: binary.BigEndian.Uint32(b[64:68]),
		},
	}
	return nil
}

// AppendBinary appends the 26-byte station layout to b.
func (s Station) AppendBinary(b []byte) ([]byte, error) {
	var rec [StationRecordSize]byte
	copy(rec[0:6], s.Addr[:])
	copy(rec[6:12], s.BSSID[:])
	rec[12] = byte(s.RSSI)
	rec[13] = s.Channel
	binary.BigEndian.PutUint64(rec[14:22], unixOrZero(s.LastSeen))
	binary.BigEndian.PutUint32(rec[22:26], s.TimesSeen)
	return append(b, rec[:]...), nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s Station) MarshalBinary() ([]byte, error) {
	return s.AppendBinary(make([]byte, 0, StationRecordSize))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *Station) UnmarshalBinary(b []byte) error {
	if len(b) != StationRecordSize {
		return fmt.Errorf("%w: station record is %d bytes, got %d", ErrRecordSize, StationRecordSize, len(b))
	}
	*s = Station{
		Addr:    hwaddr.FromBytes(b[0:6]),
		BSSID:   hwaddr.FromBytes(b[6:12]),
		RSSI:    int8(b[12]),
		Channel: b[13],
		Sighting: Sighting{
			LastSeen:  timeOrZero(binary.BigEndian.Uint64(b[14:22])),
			TimesSeen: binary.BigEndian.Uint32(b[22:26]),
		},
	}
	return nil
}

// AppendBinary appends the 52-byte BLE layout to b. Names are cut to at most
// 31 bytes on a character boundary so the field always ends in a zero byte.
func (d Device) AppendBinary(b []byte) ([]byte, error) {
	var rec [DeviceRecordSize]byte
	copy(rec[0:6], d.Addr[:])
	putString(rec[6:38], trimName(d.Name))
	rec[38] = byte(d.RSSI)
	binary.BigEndian.PutUint64(rec[39:47], unixOrZero(d.LastSeen))
	if d.Public {
		rec[47] = 1
	}
	binary.BigEndian.PutUint32(rec[48:52], d.TimesSeen)
	return append(b, rec[:]...), nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (d Device) MarshalBinary() ([]byte, error) {
	return d.AppendBinary(make([]byte, 0, DeviceRecordSize))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (d *Device) UnmarshalBinary(b []byte) error {
	if len(b) != DeviceRecordSize {
		return fmt.Errorf("%w: ble record is %d bytes, got %d", ErrRecordSize, DeviceRecordSize, len(b))
	}
	*d = Device{
		Addr:   hwaddr.FromBytes(b[0:6]),
		Name:   getString(b[6:38]),
		RSSI:   int8(b[38]),
		Public: b[47] != 0,
		Sighting: Sighting{
			LastSeen:  timeOrZero(binary.BigEndian.Uint64(b[39:47])),
			TimesSeen: binary.BigEndian.Uint32(b[48:52]),
		},
	}
	return nil
}

// Record is implemented by Network, Station and Device.
type Record interface {
	AppendBinary(b []byte) ([]byte, error)
}

// EncodeAll encodes each record into its own buffer.
func EncodeAll[T Record](recs []T) ([][]byte, error) {
	out := make([][]byte, 0, len(recs))
	for _, r := range recs {
		b, err := r.AppendBinary(nil)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// decodeAll decodes raw records into values of T. Timestamps after now are
// pulled back to now so a clock that moved backwards between runs cannot pin
// records against eviction.
func decodeAll[T any, P interface {
	*T
	UnmarshalBinary([]byte) error
}](raw [][]byte, now time.Time, sighting func(*T) *Sighting) ([]T, error) {
	out := make([]T, 0, len(raw))
	for i, b := range raw {
		var rec T
		if err := P(&rec).UnmarshalBinary(b); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if st := sighting(&rec); st.LastSeen.After(now) {
			st.LastSeen = now
		}
		out = append(out, rec)
	}
	return out, nil
}
