package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"airwatch.klederson.com/internal/capture"
	"airwatch.klederson.com/internal/detect"
	"airwatch.klederson.com/internal/dot11"
	"airwatch.klederson.com/internal/hwaddr"
	"airwatch.klederson.com/internal/registry"
)

// burst emits a fixed list of captures and then waits for cancellation.
type burst []dot11.Capture

func (b burst) Capture(ctx context.Context, emit func(dot11.Capture)) error {
	for _, c := range b {
		emit(c)
	}
	<-ctx.Done()
	return ctx.Err()
}

// countingScanner counts scan cycles and emits one advert per cycle.
type countingScanner struct {
	cycles atomic.Int32
	advert capture.Advert
}

func (s *countingScanner) Scan(ctx context.Context, emit func(capture.Advert)) error {
	s.cycles.Add(1)
	emit(s.advert)
	<-ctx.Done()
	return ctx.Err()
}

func TestCaptureFramesPopulateRegistries(t *testing.T) {
	set := registry.NewSet(10, 10, 10)
	cl := dot11.NewClassifier(-90, false)
	var c Counters

	ap := hwaddr.MustParse("00:11:22:33:44:55")
	sta := hwaddr.MustParse("02:00:00:00:00:01")
	src := burst{
		{Raw: dot11.BuildBeacon(ap, "lab", 6), RSSI: -50, Channel: 6},
		{Raw: dot11.BuildData(true, false, ap, sta, hwaddr.Broadcast, hwaddr.Addr{}), RSSI: -60, Channel: 6},
		{Raw: []byte{1, 2, 3}, RSSI: -40},
	}
	p := New("wifi", 16, src.Capture, CaptureFrames(cl, set, &c), &c)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() = %v", err)
	}

	if set.Networks.Len() != 1 {
		t.Errorf("networks = %d, want 1", set.Networks.Len())
	}
	if !set.Stations.Contains(sta) {
		t.Error("station not recorded")
	}
	if got := cl.Stats().TooShort; got != 1 {
		t.Errorf("TooShort = %d, want 1", got)
	}
}

func TestQueueFullDrops(t *testing.T) {
	var c Counters
	release := make(chan struct{})
	produce := func(ctx context.Context, emit func(int)) error {
		for i := 0; i < 10; i++ {
			emit(i)
		}
		close(release)
		return nil
	}
	handled := 0
	handle := func(int) {
		<-release
		handled++
	}
	p := New("slow", 2, produce, handle, &c)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if got := uint64(handled) + c.QueueDrops.Load(); got != 10 {
		t.Fatalf("handled %d + dropped %d != 10", handled, c.QueueDrops.Load())
	}
	if c.QueueDrops.Load() == 0 {
		t.Fatal("expected drops with a full queue")
	}
}

func TestCycledRescans(t *testing.T) {
	src := &countingScanner{}
	produce := Cycled(src, func() (time.Duration, time.Duration) { return 5 * time.Millisecond, time.Millisecond })

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_ = produce(ctx, func(capture.Advert) {})
	if src.cycles.Load() < 2 {
		t.Fatalf("cycles = %d, want several", src.cycles.Load())
	}
}

func TestAdvertFilter(t *testing.T) {
	set := registry.NewSet(10, 10, 10)
	var c Counters
	accept := func() (int8, bool) { return -80, true }
	handle := CaptureAdverts(set, accept, &c)

	pub := hwaddr.MustParse("00:AA:00:00:00:01")
	rnd := hwaddr.MustParse("C2:AA:00:00:00:02")
	weak := hwaddr.MustParse("00:AA:00:00:00:03")

	handle(capture.Advert{Addr: pub, Name: "tag", RSSI: -60, Public: true})
	handle(capture.Advert{Addr: rnd, RSSI: -60, Public: false})
	handle(capture.Advert{Addr: weak, RSSI: -95, Public: true})

	if !set.Devices.Contains(pub) || set.Devices.Len() != 1 {
		t.Fatalf("devices = %d, want only the public advertiser", set.Devices.Len())
	}
	if got := c.Filtered.Load(); got != 2 {
		t.Fatalf("Filtered = %d, want 2", got)
	}
}

func TestDetectAdvertsDoNotMutate(t *testing.T) {
	set := registry.NewSet(10, 10, 10)
	known := hwaddr.MustParse("00:AA:00:00:00:01")
	if _, err := set.Devices.Observe(registry.Device{Addr: known, RSSI: -50, Public: true}); err != nil {
		t.Fatal(err)
	}
	eng := detect.NewEngine(set, nil)
	var c Counters
	handle := DetectAdverts(eng, func() (int8, bool) { return -100, false }, &c)

	handle(capture.Advert{Addr: hwaddr.MustParse("00:AA:00:00:00:09"), RSSI: -50})
	if eng.IsAlarmed() {
		t.Fatal("alarm raised for unknown device")
	}
	handle(capture.Advert{Addr: known, RSSI: -50})
	if !eng.IsAlarmed() {
		t.Fatal("alarm not raised for known device")
	}
	if set.Devices.Len() != 1 {
		t.Fatalf("devices = %d, detection must not insert", set.Devices.Len())
	}
}
