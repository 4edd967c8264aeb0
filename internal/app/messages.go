package app

import "time"

// TickMsg triggers a dashboard refresh.
type TickMsg time.Time

// SampleMsg triggers an RSSI and frame-rate sample.
type SampleMsg time.Time

// ResultMsg reports the outcome of an action started from the keyboard.
type ResultMsg struct {
	Action string
	Err    error
}
