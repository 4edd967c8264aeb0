// Package mode switches the sensor between its producer modes.
//
// Exactly one set of pipelines runs at a time. A transition cancels the
// outgoing pipelines and waits for them to return before the incoming ones
// start, so two producers of the same capture kind never overlap.
// Registries are never touched by a transition.
package mode

import "fmt"

// Mode is the sensor's operating mode.
type Mode uint8

const (
	Off Mode = iota
	Capture
	Detect
)

func (m Mode) String() string {
	switch m {
	case Capture:
		return "capture"
	case Detect:
		return "detect"
	default:
		return "off"
	}
}

// Parse accepts the names ("off", "capture", "detect") and the settings
// wire digits ("0", "1", "2").
func Parse(s string) (Mode, error) {
	switch s {
	case "off", "0":
		return Off, nil
	case "capture", "1":
		return Capture, nil
	case "detect", "2":
		return Detect, nil
	}
	return Off, fmt.Errorf("unknown mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
