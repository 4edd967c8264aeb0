// Package dot11 classifies raw 802.11 frames captured in monitor mode and
// turns them into registry observations.
//
// Headers and information elements are decoded with gopacket's layers
// package; a short or inconsistent frame yields ErrMalformed instead of a
// panic. The Classifier counts every dropped frame by reason; nothing on
// the capture path is logged per frame.
package dot11
