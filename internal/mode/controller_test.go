package mode

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
)

// fakePipeline records start/stop and checks that no two pipelines of the
// same kind ever run together.
type fakePipeline struct {
	name    string
	kind    string
	running *sync.Map
	overlap *atomic.Bool
	started *atomic.Int32
}

func (p *fakePipeline) Name() string { return p.name }

func (p *fakePipeline) Run(ctx context.Context) error {
	if _, loaded := p.running.LoadOrStore(p.kind, p.name); loaded {
		p.overlap.Store(true)
	}
	p.started.Add(1)
	<-ctx.Done()
	p.running.Delete(p.kind)
	return ctx.Err()
}

func newFixture() (*Controller, *atomic.Bool, *atomic.Int32) {
	var (
		running sync.Map
		overlap atomic.Bool
		started atomic.Int32
	)
	build := func(m Mode) []Pipeline {
		if m == Off {
			return nil
		}
		return []Pipeline{
			&fakePipeline{name: m.String() + "-wifi", kind: "wifi", running: &running, overlap: &overlap, started: &started},
			&fakePipeline{name: m.String() + "-ble", kind: "ble", running: &running, overlap: &overlap, started: &started},
		}
	}
	return NewController(build, zap.NewNop()), &overlap, &started
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"0", Off, true},
		{"1", Capture, true},
		{"2", Detect, true},
		{"capture", Capture, true},
		{"detect", Detect, true},
		{"off", Off, true},
		{"3", Off, false},
		{"", Off, false},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("Parse(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestTransitionsNeverOverlap(t *testing.T) {
	c, overlap, _ := newFixture()
	ctx := context.Background()

	for _, m := range []Mode{Capture, Detect, Capture, Off, Detect, Capture} {
		c.Set(ctx, m)
		if c.Mode() != m {
			t.Fatalf("Mode() = %v, want %v", c.Mode(), m)
		}
	}
	c.Stop()
	if overlap.Load() {
		t.Fatal("two pipelines of the same kind ran concurrently")
	}
	if c.Mode() != Off {
		t.Fatalf("after Stop mode = %v", c.Mode())
	}
}

func TestSetSameModeIsNoop(t *testing.T) {
	c, _, started := newFixture()
	ctx := context.Background()
	c.Set(ctx, Capture)
	c.Set(ctx, Capture)
	c.Stop()
	if got := started.Load(); got > 2 {
		t.Fatalf("started %d pipelines, want at most 2", got)
	}
}

func TestOnChange(t *testing.T) {
	c, _, _ := newFixture()
	var seen []Mode
	c.OnChange(func(m Mode) { seen = append(seen, m) })

	ctx := context.Background()
	c.Set(ctx, Detect)
	c.Set(ctx, Off)
	if len(seen) != 2 || seen[0] != Detect || seen[1] != Off {
		t.Fatalf("seen = %v", seen)
	}
}

func TestModeText(t *testing.T) {
	var m Mode
	if err := m.UnmarshalText([]byte("detect")); err != nil || m != Detect {
		t.Fatalf("UnmarshalText = %v, %v", m, err)
	}
	b, _ := Capture.MarshalText()
	if string(b) != "capture" {
		t.Fatalf("MarshalText = %q", b)
	}
}
