// Package capture wraps the radios. Vendor callbacks are turned into typed
// values and handed to an emit function that must not block.
package capture

import (
	"context"
	"time"

	"airwatch.klederson.com/internal/dot11"
	"airwatch.klederson.com/internal/hwaddr"
)

// Advert is one BLE advertisement.
type Advert struct {
	Addr   hwaddr.Addr
	Name   string
	RSSI   int8
	Public bool
	At     time.Time
}

// FrameSource produces raw 802.11 captures. Capture blocks until ctx is done
// or the source fails, and never calls emit after it returns.
type FrameSource interface {
	Capture(ctx context.Context, emit func(dot11.Capture)) error
}

// AdvertSource produces BLE advertisements with the same contract as
// FrameSource.
type AdvertSource interface {
	Scan(ctx context.Context, emit func(Advert)) error
}

func clampRSSI(v int) int8 {
	switch {
	case v < -128:
		return -128
	case v > 127:
		return 127
	}
	return int8(v)
}
