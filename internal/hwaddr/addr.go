// Package hwaddr holds the 6-byte hardware address used to identify
// access points, stations and BLE peripherals.
package hwaddr

import (
	"errors"
	"fmt"
)

// Len is the size of a hardware address in bytes.
const Len = 6

// ErrInvalid is returned by Parse for anything that is not AA:BB:CC:DD:EE:FF.
var ErrInvalid = errors.New("invalid hardware address")

// Addr is an immutable 6-byte hardware address. It is comparable and can be
// used directly as a map key.
type Addr [Len]byte

// Broadcast is FF:FF:FF:FF:FF:FF.
var Broadcast = Addr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// FromBytes copies the first six bytes of b. It panics if b is shorter.
func FromBytes(b []byte) Addr {
	var a Addr
	copy(a[:], b[:Len])
	return a
}

// Parse reads the canonical colon-separated form. Hex digits may be either case.
func Parse(s string) (Addr, error) {
	var a Addr
	if len(s) != 17 {
		return a, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	for i := 0; i < Len; i++ {
		if i > 0 && s[i*3-1] != ':' {
			return a, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
		hi, ok1 := unhex(s[i*3])
		lo, ok2 := unhex(s[i*3+1])
		if !ok1 || !ok2 {
			return a, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
		a[i] = hi<<4 | lo
	}
	return a, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Addr {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

const hexDigits = "0123456789ABCDEF"

// String returns the canonical upper-case form, e.g. "AA:BB:CC:DD:EE:FF".
func (a Addr) String() string {
	buf := make([]byte, 0, 17)
	for i, b := range a {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, hexDigits[b>>4], hexDigits[b&0x0f])
	}
	return string(buf)
}

// IsBroadcast reports whether a is the all-ones address.
func (a Addr) IsBroadcast() bool { return a == Broadcast }

// IsZero reports whether a is unset.
func (a Addr) IsZero() bool { return a == Addr{} }

// IsMulticast reports whether the group bit of the first octet is set.
func (a Addr) IsMulticast() bool { return a[0]&0x01 != 0 }

// IsLocallyAdministered reports whether the U/L bit is set. Randomised
// (privacy) addresses always carry it.
func (a Addr) IsLocallyAdministered() bool { return a[0]&0x02 != 0 }
