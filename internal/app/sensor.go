package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"airwatch.klederson.com/internal/capture"
	"airwatch.klederson.com/internal/config"
	"airwatch.klederson.com/internal/control"
	"airwatch.klederson.com/internal/detect"
	"airwatch.klederson.com/internal/dot11"
	"airwatch.klederson.com/internal/mode"
	"airwatch.klederson.com/internal/pipeline"
	"airwatch.klederson.com/internal/registry"
	"airwatch.klederson.com/internal/store"
	"airwatch.klederson.com/internal/telemetry"
)

// ErrRestart is returned by Run when the controller asked for a restart.
var ErrRestart = errors.New("restart requested")

const saveTimeout = 10 * time.Second

// Options configure a Sensor.
type Options struct {
	Config     *config.File
	ConfigPath string // watched for changes when set
	Demo       bool
	Log        *zap.Logger

	// Sources override the radios; nil selects them from Config and Demo.
	Frames  capture.FrameSource
	Adverts capture.AdvertSource
	// Transports override the control transports.
	Transports []control.Transport
	// Persister overrides the SQLite store.
	Persister store.Persister
}

// Sensor owns every long-lived component: the registries, the classifier,
// the detection engine, the mode controller and the control service.
type Sensor struct {
	cfg  *config.File
	path string
	log  *zap.Logger

	set        *registry.Set
	classifier *dot11.Classifier
	engine     *detect.Engine
	counters   pipeline.Counters
	controller *mode.Controller
	service    *control.Service

	frames  capture.FrameSource
	adverts capture.AdvertSource

	persist   store.Persister
	closers   []func() error
	telemetry *telemetry.Influx

	// applyMu orders settings changes together with the mode transitions
	// they cause.
	applyMu  sync.Mutex
	mu       sync.RWMutex
	settings config.Settings
	runCtx   context.Context
	lastSave time.Time

	restart chan struct{}
}

var _ control.Sensor = (*Sensor)(nil)

// New wires a sensor from opts. Optional collaborators (persistence,
// telemetry, individual transports) that fail to initialise are logged and
// left out.
func New(opts Options) (*Sensor, error) {
	cfg := opts.Config
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	s := &Sensor{
		cfg:      cfg,
		path:     opts.ConfigPath,
		log:      log,
		settings: cfg.Settings,
		restart:  make(chan struct{}, 1),
		runCtx:   context.Background(),
	}
	s.set = registry.NewSet(cfg.Registry.Networks, cfg.Registry.Stations, cfg.Registry.Devices,
		registry.WithLockWait(cfg.Registry.LockWait))
	s.classifier = dot11.NewClassifier(cfg.Settings.RSSIFloor, cfg.Settings.ManagementOnly)
	s.engine = detect.NewEngine(s.set, nil)
	s.controller = mode.NewController(s.pipelines, log)
	s.controller.OnChange(func(m mode.Mode) {
		if m == mode.Detect {
			s.engine.Clean()
		}
	})

	var ble *capture.BLESource
	needAdapter := !opts.Demo && (cfg.Sensor.BLE || cfg.Control.GATT.Enabled)
	if needAdapter {
		ble = capture.NewBLESource(log)
	}

	s.frames, s.adverts = opts.Frames, opts.Adverts
	if s.frames == nil && s.adverts == nil {
		if opts.Demo {
			mock := capture.NewMockSource(time.Now().UnixNano(), config.DemoNetworks, config.DemoStations, config.DemoDevices)
			s.frames, s.adverts = mock, mock
		} else {
			s.frames = capture.NewWiFiSource(cfg.Sensor.WiFiInterface, cfg.Sensor.Channels, s.scanDuration, log)
			if cfg.Sensor.BLE {
				s.adverts = ble
			}
		}
	}

	transports := opts.Transports
	if transports == nil {
		if cfg.Control.GATT.Enabled && ble != nil {
			g, err := control.NewGATT(ble.Adapter, cfg.Control.GATT.ServiceUUID, config.AppName, log)
			if err != nil {
				return nil, err
			}
			transports = append(transports, g)
		}
		if cfg.Control.MQTT.Enabled {
			transports = append(transports, control.NewMQTT(cfg.Control.MQTT, cfg.Sensor.ID, log))
		}
	}
	s.service = control.NewService(s, s.set, log, transports...)

	s.persist = opts.Persister
	if s.persist == nil && cfg.Store.Path != "" {
		db, err := store.Open(cfg.Store.Path, cfg.Store.BusyTimeout)
		if err != nil {
			log.Warn("persistence disabled", zap.Error(err))
		} else {
			s.persist = db
			s.closers = append(s.closers, db.Close)
		}
	}

	if cfg.Telemetry.Enabled {
		t, err := telemetry.Connect(cfg.Telemetry, cfg.Sensor.ID, log)
		if err != nil {
			log.Warn("telemetry disabled", zap.Error(err))
		} else {
			s.telemetry = t
			s.closers = append(s.closers, t.Close)
		}
	}
	return s, nil
}

// Registries returns the registry set.
func (s *Sensor) Registries() *registry.Set { return s.set }

// Engine returns the detection engine.
func (s *Sensor) Engine() *detect.Engine { return s.engine }

// Mode returns the current mode.
func (s *Sensor) Mode() mode.Mode { return s.controller.Mode() }

// Run loads the persisted registries, starts the control service,
// housekeeping and the configured mode, and blocks until ctx is done or a
// restart is requested. The registries are saved on the way out.
func (s *Sensor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.runCtx = ctx
	s.lastSave = time.Now()
	s.mu.Unlock()

	s.load(ctx)

	var wg sync.WaitGroup
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error("task stopped", zap.String("task", name), zap.Error(err))
			}
		}()
	}
	spawn("control", s.service.Run)
	spawn("housekeeping", s.housekeep)
	if s.path != "" {
		w := config.NewWatcher(s.path, s.reload, s.log)
		spawn("config", w.Watch)
	}

	s.applyMu.Lock()
	s.controller.Set(ctx, s.Settings().Mode)
	s.applyMu.Unlock()
	s.log.Info("sensor running",
		zap.String("sensor_id", s.cfg.Sensor.ID),
		zap.Stringer("mode", s.controller.Mode()),
		zap.String("settings", s.Settings().String()))

	var err error
	select {
	case <-ctx.Done():
	case <-s.restart:
		err = ErrRestart
	}

	cancel()
	s.controller.Stop()
	wg.Wait()

	saveCtx, done := context.WithTimeout(context.Background(), saveTimeout)
	defer done()
	if serr := s.Save(saveCtx); serr != nil {
		s.log.Error("final save failed", zap.Error(serr))
	}
	for _, c := range s.closers {
		if cerr := c(); cerr != nil {
			s.log.Warn("close failed", zap.Error(cerr))
		}
	}
	return err
}

func (s *Sensor) load(ctx context.Context) {
	if s.persist == nil {
		return
	}
	if err := store.LoadAll(ctx, s.persist, s.set); err != nil {
		s.log.Warn("snapshot load failed, starting empty", zap.Error(err))
		return
	}
	s.log.Info("snapshot loaded",
		zap.Int("networks", s.set.Networks.Len()),
		zap.Int("stations", s.set.Stations.Len()),
		zap.Int("ble", s.set.Devices.Len()))
}

// Save persists a snapshot of every registry. When the save fails the
// registries are cleared, as after a failed load, so the sensor never keeps
// running on records that disagree with what is on disk.
func (s *Sensor) Save(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	if err := store.SaveAll(ctx, s.persist, s.set); err != nil {
		s.set.Clear()
		s.log.Warn("snapshot save failed, registries cleared", zap.Error(err))
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	s.mu.Lock()
	s.lastSave = time.Now()
	s.mu.Unlock()
	s.log.Debug("snapshot saved")
	return nil
}

// pipelines is the mode.Builder for this sensor.
func (s *Sensor) pipelines(m mode.Mode) []mode.Pipeline {
	var (
		onFrame  func(dot11.Capture)
		onAdvert func(capture.Advert)
	)
	switch m {
	case mode.Capture:
		onFrame = pipeline.CaptureFrames(s.classifier, s.set, &s.counters)
		onAdvert = pipeline.CaptureAdverts(s.set, s.advertFilter, &s.counters)
	case mode.Detect:
		onFrame = pipeline.DetectFrames(s.classifier, s.engine)
		onAdvert = pipeline.DetectAdverts(s.engine, s.advertFilter, &s.counters)
	default:
		return nil
	}

	var pipes []mode.Pipeline
	if s.frames != nil {
		pipes = append(pipes, pipeline.New(m.String()+"/wifi", config.FrameQueueLen, s.frames.Capture, onFrame, &s.counters))
	}
	if s.adverts != nil {
		pipes = append(pipes, pipeline.New(m.String()+"/ble", config.AdvertQueueLen, pipeline.Cycled(s.adverts, s.scanTiming), onAdvert, &s.counters))
	}
	return pipes
}

func (s *Sensor) advertFilter() (int8, bool) {
	st := s.Settings()
	return st.RSSIFloor, st.IgnoreRandomBLE
}

func (s *Sensor) scanTiming() (time.Duration, time.Duration) {
	st := s.Settings()
	return st.ScanDuration, st.ScanDelay
}

func (s *Sensor) scanDuration() time.Duration { return s.Settings().ScanDuration }

// ListSize implements control.Sensor.
func (s *Sensor) ListSize() string {
	alarm := 0
	if s.engine.IsAlarmed() {
		alarm = 1
	}
	return fmt.Sprintf("%d:%d:%d:%d", s.set.Networks.Len(), s.set.Stations.Len(), s.set.Devices.Len(), alarm)
}

// Settings implements control.Sensor.
func (s *Sensor) Settings() config.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// ApplySettings implements control.Sensor. A mode change drives the mode
// controller; everything else takes effect on the running pipelines.
func (s *Sensor) ApplySettings(st config.Settings) error {
	if err := st.Validate(); err != nil {
		return err
	}
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	prev := s.settings
	s.settings = st
	ctx := s.runCtx
	s.mu.Unlock()

	s.classifier.SetFloor(st.RSSIFloor)
	s.classifier.SetManagementOnly(st.ManagementOnly)
	if st.Mode != prev.Mode {
		s.controller.Set(ctx, st.Mode)
	}
	s.log.Info("settings applied", zap.String("settings", st.String()))
	return nil
}

// SetMode changes only the mode.
func (s *Sensor) SetMode(m mode.Mode) error {
	st := s.Settings()
	st.Mode = m
	if err := s.ApplySettings(st); err != nil {
		return err
	}
	s.service.Refresh()
	return nil
}

// Command implements control.Sensor.
func (s *Sensor) Command(ctx context.Context, cmd control.Command) error {
	switch cmd {
	case control.CmdRestart:
		select {
		case s.restart <- struct{}{}:
		default:
		}
		return nil
	case control.CmdClearData:
		s.set.Clear()
		s.engine.Clean()
		s.log.Info("registries cleared")
		return nil
	case control.CmdSaveData:
		ctx, cancel := context.WithTimeout(ctx, saveTimeout)
		defer cancel()
		return s.Save(ctx)
	}
	return fmt.Errorf("%w: %q", control.ErrUnknownCommand, cmd)
}

// reload applies settings from a changed config file.
func (s *Sensor) reload(f *config.File) {
	if f.Registry != s.cfg.Registry {
		s.log.Warn("registry changes take effect after restart")
	}
	if err := s.ApplySettings(f.Settings); err != nil {
		s.log.Warn("reloaded settings rejected", zap.Error(err))
		return
	}
	s.service.Refresh()
}
