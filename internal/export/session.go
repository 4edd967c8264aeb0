// Package export implements the pull-driven transfer of a registry
// snapshot over a narrow-MTU notification channel.
//
// The controller writes a request token ("networks", "stations", "ble").
// The session snapshots that registry and answers "START:NNNN" with the
// packet count in hex. The controller then writes 1-based packet indexes as
// four hex digits; each answer is a four-digit hex packet number followed
// by fixed-size records. The final packet is followed by "END:<unix time>".
package export

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"airwatch.klederson.com/internal/registry"
)

const (
	// HeaderSize is the length of the hex packet-number prefix.
	HeaderSize = 4
	// RequestTimeout resets a session that stops pulling packets.
	RequestTimeout = 10 * time.Second
)

var (
	ErrUnknownRequest = errors.New("unknown request")
	ErrPacketRange    = errors.New("packet index out of range")
	ErrNoSession      = errors.New("no active request")
	ErrSnapshot       = errors.New("snapshot failed")
)

// Source hands out registries by kind. *registry.Set implements it.
type Source interface {
	Get(k registry.Kind) registry.Snapshotter
}

// Session is the state of one bulk-transfer endpoint. It is not safe for
// concurrent use; the control service owns it from a single goroutine.
type Session struct {
	src     Source
	mtu     int
	now     func() time.Time
	timeout time.Duration

	kind        registry.Kind
	records     [][]byte
	perPacket   int
	total       int
	lastRequest time.Time
}

// NewSession creates an idle session. now defaults to time.Now.
func NewSession(src Source, mtu int, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{src: src, mtu: mtu, now: now, timeout: RequestTimeout}
}

// SetMTU changes the MTU used by the next request.
func (s *Session) SetMTU(mtu int) { s.mtu = mtu }

// Kind returns the active request kind, KindNone when idle.
func (s *Session) Kind() registry.Kind { return s.kind }

// Total returns the packet count of the active request.
func (s *Session) Total() int { return s.total }

// PerPacket returns how many records each packet of the active request carries.
func (s *Session) PerPacket() int { return s.perPacket }

// ItemsPerPacket is max(1, (mtu - HeaderSize) / recordSize).
func ItemsPerPacket(mtu, recordSize int) int {
	if recordSize <= 0 {
		return 1
	}
	return max(1, (mtu-HeaderSize)/recordSize)
}

// TotalPackets is ceil(items / perPacket).
func TotalPackets(items, perPacket int) int {
	if perPacket <= 0 {
		return 0
	}
	return (items + perPacket - 1) / perPacket
}

// Reset drops the active request.
func (s *Session) Reset() {
	s.kind = registry.KindNone
	s.records = nil
	s.perPacket = 0
	s.total = 0
}

// Expire resets the session when no packet was requested within the timeout.
// It reports whether it did.
func (s *Session) Expire() bool {
	if s.kind == registry.KindNone || s.now().Sub(s.lastRequest) < s.timeout {
		return false
	}
	s.Reset()
	return true
}

// Handle processes one write from the controller and returns the
// notifications to send, in order. A protocol violation yields a single
// "ERROR:" notification and an error wrapping one of the package sentinels;
// the session state is left as it was.
func (s *Session) Handle(msg string) ([][]byte, error) {
	if idx, ok := parseIndex(msg); ok {
		return s.packet(idx)
	}
	kind, err := registry.ParseKind(msg)
	if err != nil {
		return violation(fmt.Errorf("%w: %q", ErrUnknownRequest, msg))
	}
	return s.start(kind)
}

func (s *Session) start(kind registry.Kind) ([][]byte, error) {
	reg := s.src.Get(kind)
	if reg == nil {
		return violation(fmt.Errorf("%w: %s", ErrUnknownRequest, kind))
	}
	records, err := reg.Encode()
	if err != nil {
		return violation(fmt.Errorf("%w: %w", ErrSnapshot, err))
	}

	s.kind = kind
	s.records = records
	s.perPacket = ItemsPerPacket(s.mtu, kind.RecordSize())
	s.total = TotalPackets(len(records), s.perPacket)
	s.lastRequest = s.now()

	out := [][]byte{[]byte(fmt.Sprintf("START:%04X", s.total))}
	if s.total == 0 {
		out = append(out, s.end())
	}
	return out, nil
}

func (s *Session) packet(idx int) ([][]byte, error) {
	s.Expire()
	if s.kind == registry.KindNone {
		return violation(fmt.Errorf("%w: packet %d", ErrNoSession, idx))
	}
	if idx < 1 || idx > s.total {
		return violation(fmt.Errorf("%w: %d not in [1,%d]", ErrPacketRange, idx, s.total))
	}
	s.lastRequest = s.now()

	from := (idx - 1) * s.perPacket
	to := min(from+s.perPacket, len(s.records))
	buf := make([]byte, 0, HeaderSize+(to-from)*s.kind.RecordSize())
	buf = fmt.Appendf(buf, "%04X", idx)
	for _, rec := range s.records[from:to] {
		buf = append(buf, rec...)
	}

	out := [][]byte{buf}
	if idx == s.total {
		out = append(out, s.end())
	}
	return out, nil
}

// end builds the END marker and closes the request.
func (s *Session) end() []byte {
	s.Reset()
	return []byte("END:" + strconv.FormatInt(s.now().Unix(), 10))
}

func violation(err error) ([][]byte, error) {
	return [][]byte{[]byte("ERROR:" + err.Error())}, err
}

// parseIndex accepts exactly four hex digits.
func parseIndex(msg string) (int, bool) {
	if len(msg) != HeaderSize {
		return 0, false
	}
	v, err := strconv.ParseUint(msg, 16, 16)
	if err != nil {
		return 0, false
	}
	return int(v), true
}
