// Package config loads the sensor's file configuration and parses the runtime
// settings string exchanged with the controller.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"airwatch.klederson.com/internal/mode"
)

// ErrSettings is returned for a malformed settings string.
var ErrSettings = errors.New("invalid settings")

// settingsFields is the number of pipe-delimited fields in the wire form.
const settingsFields = 8

// Settings are the runtime knobs the core reads. They can be changed while
// running, from the control channel or by editing the config file.
type Settings struct {
	Mode             mode.Mode     `yaml:"mode"`
	RSSIFloor        int8          `yaml:"rssi_floor"`
	ManagementOnly   bool          `yaml:"management_only"`
	ScanDuration     time.Duration `yaml:"scan_duration"`
	ScanDelay        time.Duration `yaml:"scan_delay"`
	IgnoreRandomBLE  bool          `yaml:"ignore_random_ble"`
	AutosaveInterval time.Duration `yaml:"autosave_interval"`
	MTU              int           `yaml:"mtu"`
}

// DefaultSettings returns the settings a fresh sensor starts with.
func DefaultSettings() Settings {
	return Settings{
		Mode:             mode.Capture,
		RSSIFloor:        DefaultFloor,
		ScanDuration:     5 * time.Second,
		ScanDelay:        time.Second,
		AutosaveInterval: 5 * time.Minute,
		MTU:              DefaultMTU,
	}
}

// Validate checks ranges. A zero autosave interval disables autosave.
func (s Settings) Validate() error {
	if s.Mode > mode.Detect {
		return fmt.Errorf("%w: mode %d", ErrSettings, s.Mode)
	}
	if s.ScanDuration <= 0 {
		return fmt.Errorf("%w: scan duration must be positive", ErrSettings)
	}
	if s.ScanDelay < 0 || s.AutosaveInterval < 0 {
		return fmt.Errorf("%w: negative interval", ErrSettings)
	}
	if s.MTU < MinMTU || s.MTU > MaxMTU {
		return fmt.Errorf("%w: mtu %d outside [%d,%d]", ErrSettings, s.MTU, MinMTU, MaxMTU)
	}
	return nil
}

// String formats the settings in wire form:
// mode|rssi_floor|mgmt_only|scan_ms|delay_ms|ignore_random|autosave_s|mtu
func (s Settings) String() string {
	return fmt.Sprintf("%d|%d|%d|%d|%d|%d|%d|%d",
		s.Mode,
		s.RSSIFloor,
		b2i(s.ManagementOnly),
		s.ScanDuration.Milliseconds(),
		s.ScanDelay.Milliseconds(),
		b2i(s.IgnoreRandomBLE),
		int64(s.AutosaveInterval/time.Second),
		s.MTU,
	)
}

// ParseSettings parses the wire form and validates the result.
func ParseSettings(raw string) (Settings, error) {
	parts := strings.Split(strings.TrimSpace(raw), "|")
	if len(parts) != settingsFields {
		return Settings{}, fmt.Errorf("%w: want %d fields, got %d", ErrSettings, settingsFields, len(parts))
	}

	var (
		s   Settings
		err error
	)
	if s.Mode, err = mode.Parse(parts[0]); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrSettings, err)
	}
	floor, err := strconv.ParseInt(parts[1], 10, 8)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: rssi floor %q", ErrSettings, parts[1])
	}
	s.RSSIFloor = int8(floor)

	if s.ManagementOnly, err = parseFlag(parts[2]); err != nil {
		return Settings{}, err
	}
	scan, err := parseUint(parts[3], "scan_ms")
	if err != nil {
		return Settings{}, err
	}
	s.ScanDuration = time.Duration(scan) * time.Millisecond

	delay, err := parseUint(parts[4], "delay_ms")
	if err != nil {
		return Settings{}, err
	}
	s.ScanDelay = time.Duration(delay) * time.Millisecond

	if s.IgnoreRandomBLE, err = parseFlag(parts[5]); err != nil {
		return Settings{}, err
	}
	autosave, err := parseUint(parts[6], "autosave_s")
	if err != nil {
		return Settings{}, err
	}
	s.AutosaveInterval = time.Duration(autosave) * time.Second

	mtu, err := parseUint(parts[7], "mtu")
	if err != nil {
		return Settings{}, err
	}
	s.MTU = int(mtu)

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func parseFlag(s string) (bool, error) {
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, fmt.Errorf("%w: flag %q", ErrSettings, s)
}

func parseUint(s, field string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrSettings, field, s)
	}
	return v, nil
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
