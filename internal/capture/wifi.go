package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"go.uber.org/zap"

	"airwatch.klederson.com/internal/config"
	"airwatch.klederson.com/internal/dot11"
)

// ErrLinkType is returned when the interface is not delivering radiotap
// headers, which means it is not in monitor mode.
var ErrLinkType = errors.New("interface is not in monitor mode (radiotap link type required)")

const (
	readTimeout    = 250 * time.Millisecond
	radiotapMinLen = 8
)

// WiFiSource captures on a monitor-mode interface through libpcap and hops
// across a channel set.
type WiFiSource struct {
	iface    string
	channels []uint8
	dwell    func() time.Duration
	hop      func(ctx context.Context, iface string, ch uint8) error
	log      *zap.Logger
}

// NewWiFiSource creates a source on iface. dwell is read before every hop so
// scan duration changes apply without a restart.
func NewWiFiSource(iface string, channels []uint8, dwell func() time.Duration, log *zap.Logger) *WiFiSource {
	return &WiFiSource{
		iface:    iface,
		channels: channels,
		dwell:    dwell,
		hop:      setChannel,
		log:      log.With(zap.String("component", "wifi"), zap.String("iface", iface)),
	}
}

// Capture implements FrameSource.
func (s *WiFiSource) Capture(ctx context.Context, emit func(dot11.Capture)) error {
	handle, err := pcap.OpenLive(s.iface, config.SnapLen, true, readTimeout)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w (try running with sudo or setcap cap_net_raw+ep)", s.iface, err)
	}
	defer handle.Close()

	if handle.LinkType() != layers.LinkTypeIEEE80211Radio {
		return fmt.Errorf("%s: %w", s.iface, ErrLinkType)
	}

	hopCtx, stopHop := context.WithCancel(ctx)
	hopDone := make(chan struct{})
	go func() {
		defer close(hopDone)
		s.hopLoop(hopCtx)
	}()
	defer func() {
		stopHop()
		<-hopDone
	}()

	s.log.Info("capture started", zap.Int("channels", len(s.channels)))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, ci, err := handle.ReadPacketData()
		switch {
		case errors.Is(err, pcap.NextErrorTimeoutExpired):
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("read from %s: %w", s.iface, err)
		}
		if c, ok := decodeRadioTap(data, ci.Timestamp); ok {
			emit(c)
		}
	}
}

func (s *WiFiSource) hopLoop(ctx context.Context) {
	if len(s.channels) == 0 {
		return
	}
	for i := 0; ; i = (i + 1) % len(s.channels) {
		ch := s.channels[i]
		if err := s.hop(ctx, s.iface, ch); err != nil && ctx.Err() == nil {
			s.log.Debug("channel hop failed", zap.Uint8("channel", ch), zap.Error(err))
		}
		if len(s.channels) == 1 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.dwell()):
		}
	}
}

// setChannel tunes the interface with iw (requires root).
func setChannel(ctx context.Context, iface string, ch uint8) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "iw", "dev", iface, "set", "channel", strconv.Itoa(int(ch))).CombinedOutput()
	if err != nil {
		return fmt.Errorf("iw set channel %d: %w: %s", ch, err, out)
	}
	return nil
}

// decodeRadioTap strips the radiotap header and trailing FCS and returns the
// 802.11 frame with its signal and channel.
func decodeRadioTap(data []byte, at time.Time) (dot11.Capture, bool) {
	if len(data) < radiotapMinLen || int(binary.LittleEndian.Uint16(data[2:4])) > len(data) {
		return dot11.Capture{}, false
	}
	var rt layers.RadioTap
	if err := rt.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return dot11.Capture{}, false
	}
	payload := rt.Payload
	if rt.Flags.FCS() && len(payload) >= 4 {
		payload = payload[:len(payload)-4]
	}
	if len(payload) == 0 {
		return dot11.Capture{}, false
	}

	c := dot11.Capture{
		Raw: append([]byte(nil), payload...),
		At:  at,
	}
	if rt.Present.DBMAntennaSignal() {
		c.RSSI = rt.DBMAntennaSignal
	} else {
		c.RSSI = -128
	}
	if rt.Present.Channel() {
		c.Channel = ChannelForFrequency(int(rt.ChannelFrequency))
	}
	return c, true
}

// ChannelForFrequency maps a centre frequency in MHz to its 802.11 channel
// number, or 0 if the frequency is not in a known band.
func ChannelForFrequency(mhz int) uint8 {
	switch {
	case mhz == 2484:
		return 14
	case mhz >= 2412 && mhz <= 2472:
		return uint8((mhz - 2407) / 5)
	case mhz >= 5160 && mhz <= 5885:
		return uint8((mhz - 5000) / 5)
	case mhz >= 5955 && mhz <= 7115:
		return uint8((mhz - 5950) / 5)
	}
	return 0
}
