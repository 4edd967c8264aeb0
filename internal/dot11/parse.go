package dot11

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"airwatch.klederson.com/internal/hwaddr"
	"airwatch.klederson.com/internal/registry"
)

const (
	ssidMask = '.'
	// Capture sources strip the FCS but layers.Dot11 expects one.
	fcsLen = 4
)

// Parse decodes the link-layer header of raw. Signal strength and channel
// are left for the caller to fill in.
func Parse(raw []byte) (Frame, error) {
	if len(raw) < MinHeaderLen {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrTooShort, len(raw))
	}
	buf := make([]byte, len(raw)+fcsLen)
	copy(buf, raw)

	var d layers.Dot11
	err := d.DecodeFromBytes(buf, gopacket.NilDecodeFeedback)
	f := Frame{
		Type:    Type(d.Type.MainType()),
		Subtype: uint8(d.Type) >> 2,
		Role:    registry.RoleOther,
	}
	if d.Proto != 0 {
		return f, fmt.Errorf("%w: protocol version %d", ErrMalformed, d.Proto)
	}
	if f.Type == TypeExtension {
		return f, fmt.Errorf("%w: extension frame", ErrMalformed)
	}
	if err != nil {
		return f, fmt.Errorf("%w: %s header: %v", ErrMalformed, f.Type, err)
	}

	switch f.Type {
	case TypeManagement:
		err = parseManagement(&d, &f)
	case TypeControl:
		err = parseControl(&d, raw, &f)
	case TypeData:
		parseData(&d, &f)
	}
	return f, err
}

func addr(b net.HardwareAddr) hwaddr.Addr {
	if len(b) < len(hwaddr.Addr{}) {
		return hwaddr.Addr{}
	}
	return hwaddr.FromBytes(b)
}

// ieOffset returns where the information elements start for management
// subtypes that carry an SSID, and false for the rest.
func ieOffset(subtype uint8) (int, bool) {
	switch subtype {
	case SubtypeProbeReq:
		return mgmtHeaderLen, true
	case SubtypeAssocReq:
		return mgmtHeaderLen + 4, true // capability, listen interval
	case SubtypeReassocReq:
		return mgmtHeaderLen + 10, true // capability, listen interval, current AP
	case SubtypeBeacon, SubtypeProbeResp:
		return mgmtHeaderLen + 12, true // timestamp, interval, capability
	}
	return 0, false
}

func parseManagement(d *layers.Dot11, f *Frame) error {
	f.Dst, f.Src, f.BSSID = addr(d.Address1), addr(d.Address2), addr(d.Address3)

	off, ok := ieOffset(f.Subtype)
	if !ok {
		return nil
	}
	if f.Subtype == SubtypeProbeReq {
		f.Role = registry.RoleProbe
	} else {
		f.Role = registry.RoleBeacon
	}
	fixed := off - mgmtHeaderLen
	if len(d.Payload) < fixed {
		return fmt.Errorf("%w: fixed parameters %d bytes, need %d", ErrMalformed, len(d.Payload), fixed)
	}
	var err error
	f.SSID, err = findSSID(d.Payload[fixed:])
	return err
}

// findSSID walks the information elements until the SSID element. A missing
// or zero-length element is a hidden or wildcard SSID and yields "".
//
// ies must be backed by fcsLen spare bytes past its length:
// Dot11InformationElement wants that much room even for short elements.
func findSSID(ies []byte) (string, error) {
	for len(ies) >= 2 {
		n := 2 + int(ies[1])
		if n > len(ies) {
			return "", fmt.Errorf("%w: element %d needs %d bytes, have %d", ErrMalformed, ies[0], n, len(ies))
		}
		id := layers.Dot11InformationElementID(ies[0])
		if id == layers.Dot11InformationElementIDVendor {
			// no SSID here, and elements shorter than an OUI do not decode
			ies = ies[n:]
			continue
		}
		var ie layers.Dot11InformationElement
		if err := ie.DecodeFromBytes(ies[:len(ies)+fcsLen], gopacket.NilDecodeFeedback); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if ie.ID == layers.Dot11InformationElementIDSSID {
			if ie.Length == 0 {
				return "", nil
			}
			return sanitizeSSID(ie.Info), nil
		}
		ies = ies[n:]
	}
	return "", nil
}

func sanitizeSSID(b []byte) string {
	if len(b) > registry.MaxSSIDLen {
		b = b[:registry.MaxSSIDLen]
	}
	out := make([]byte, len(b))
	for i, ch := range b {
		if ch < 0x20 || ch > 0x7e {
			ch = ssidMask
		}
		out[i] = ch
	}
	return string(out)
}

// parseControl handles the two control layouts: frames carrying a
// transmitter address (receiver @4, transmitter @10) and receiver-only
// frames (receiver @4). Block-ack frames carry a transmitter that
// layers.Dot11 does not decode, so it is read from raw.
func parseControl(d *layers.Dot11, raw []byte, f *Frame) error {
	ra := addr(d.Address1)
	switch f.Subtype {
	case SubtypeRTS, SubtypePSPoll, SubtypeBlockAckReq, SubtypeBlockAck, SubtypeCFEnd, SubtypeCFEndAck:
		if len(raw) < ctrlTALen {
			return fmt.Errorf("%w: control frame %d bytes", ErrMalformed, len(raw))
		}
		ta := addr(d.Address2)
		if f.Subtype == SubtypeBlockAckReq || f.Subtype == SubtypeBlockAck {
			ta = hwaddr.FromBytes(raw[MinHeaderLen:ctrlTALen])
		}
		switch f.Subtype {
		case SubtypePSPoll:
			f.BSSID, f.Src = ra, ta
		case SubtypeCFEnd, SubtypeCFEndAck:
			f.Dst, f.BSSID = ra, ta
		default:
			f.Dst, f.Src = ra, ta
		}
	default:
		f.Dst = ra
	}
	return nil
}

// parseData resolves addresses from the to-DS/from-DS bits:
//
//	toDS fromDS  addr1   addr2   addr3   addr4
//	  0    0     dst     src     bssid   -
//	  1    0     bssid   src     dst     -
//	  0    1     dst     bssid   src     -
//	  1    1     bssid   -       dst     src
//
// In the four-address case the receiving AP is reported as the BSSID.
func parseData(d *layers.Dot11, f *Frame) {
	a1, a2, a3 := addr(d.Address1), addr(d.Address2), addr(d.Address3)
	switch toDS, fromDS := d.Flags.ToDS(), d.Flags.FromDS(); {
	case !toDS && !fromDS:
		f.Dst, f.Src, f.BSSID = a1, a2, a3
	case toDS && !fromDS:
		f.BSSID, f.Src, f.Dst = a1, a2, a3
	case !toDS && fromDS:
		f.Dst, f.BSSID, f.Src = a1, a2, a3
	default:
		f.BSSID, f.Dst, f.Src = a1, a3, addr(d.Address4)
	}
}
