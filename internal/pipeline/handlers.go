package pipeline

import (
	"errors"

	"airwatch.klederson.com/internal/capture"
	"airwatch.klederson.com/internal/detect"
	"airwatch.klederson.com/internal/dot11"
	"airwatch.klederson.com/internal/registry"
)

// AdvertFilter reports the current BLE acceptance settings.
type AdvertFilter func() (floor int8, ignoreRandom bool)

// CaptureFrames classifies a capture and records it in the registries.
func CaptureFrames(cl *dot11.Classifier, set *registry.Set, c *Counters) func(dot11.Capture) {
	return func(cp dot11.Capture) {
		f, err := cl.Classify(cp)
		if err != nil {
			return
		}
		if n := dot11.Apply(f, set); n > 0 {
			c.LockSkips.Add(uint64(n))
		}
	}
}

// DetectFrames classifies a capture and matches it against the registries.
func DetectFrames(cl *dot11.Classifier, eng *detect.Engine) func(dot11.Capture) {
	return func(cp dot11.Capture) {
		f, err := cl.Classify(cp)
		if err != nil {
			return
		}
		eng.ObserveFrame(f)
	}
}

// CaptureAdverts records accepted adverts in the device registry.
func CaptureAdverts(set *registry.Set, accept AdvertFilter, c *Counters) func(capture.Advert) {
	return func(a capture.Advert) {
		if !accepted(a, accept, c) {
			return
		}
		_, err := set.Devices.Observe(registry.Device{
			Addr:   a.Addr,
			Name:   a.Name,
			RSSI:   a.RSSI,
			Public: a.Public,
		})
		if errors.Is(err, registry.ErrLockTimeout) {
			c.LockSkips.Add(1)
		}
	}
}

// DetectAdverts matches accepted adverts against the device registry.
func DetectAdverts(eng *detect.Engine, accept AdvertFilter, c *Counters) func(capture.Advert) {
	return func(a capture.Advert) {
		if !accepted(a, accept, c) {
			return
		}
		eng.ObserveDevice(a.Addr)
	}
}

func accepted(a capture.Advert, accept AdvertFilter, c *Counters) bool {
	floor, ignoreRandom := accept()
	if a.RSSI < floor || (ignoreRandom && !a.Public) {
		c.Filtered.Add(1)
		return false
	}
	return true
}
