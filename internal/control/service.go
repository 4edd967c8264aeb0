package control

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"airwatch.klederson.com/internal/config"
	"airwatch.klederson.com/internal/export"
	"airwatch.klederson.com/internal/registry"
)

const writeQueueLen = 32

// Sensor is what the service needs from the running sensor.
type Sensor interface {
	// ListSize returns "networks:stations:ble:alarm".
	ListSize() string
	Settings() config.Settings
	ApplySettings(config.Settings) error
	// Command runs cmd. It must return promptly; restart is asynchronous.
	Command(ctx context.Context, cmd Command) error
}

type write struct {
	ep      Endpoint
	payload []byte
}

// Service owns the export session and serializes every controller request
// on one goroutine.
type Service struct {
	sensor     Sensor
	session    *export.Session
	transports []Transport
	log        *zap.Logger

	writes      chan write
	disconnects chan struct{}
	refresh     chan struct{}
	tick        time.Duration

	active   []Transport
	lastSize string
}

// NewService creates a service exporting from src.
func NewService(sensor Sensor, src export.Source, log *zap.Logger, transports ...Transport) *Service {
	return &Service{
		sensor:      sensor,
		session:     export.NewSession(src, sensor.Settings().MTU, nil),
		transports:  transports,
		log:         log.With(zap.String("component", "control")),
		writes:      make(chan write, writeQueueLen),
		disconnects: make(chan struct{}, 1),
		refresh:     make(chan struct{}, 1),
		tick:        config.ListSizePeriod,
	}
}

// HandleWrite implements Handler.
func (s *Service) HandleWrite(ep Endpoint, payload []byte) {
	select {
	case s.writes <- write{ep: ep, payload: append([]byte(nil), payload...)}:
	default:
		s.log.Warn("control write dropped, queue full", zap.Stringer("endpoint", ep))
	}
}

// HandleDisconnect implements Handler.
func (s *Service) HandleDisconnect() {
	select {
	case s.disconnects <- struct{}{}:
	default:
	}
}

// Refresh republishes settings and list size, e.g. after a config reload.
func (s *Service) Refresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// Run starts the transports and serves until ctx is done. Transports that
// fail to start are logged and skipped.
func (s *Service) Run(ctx context.Context) error {
	for _, t := range s.transports {
		if err := t.Start(ctx, s); err != nil {
			s.log.Error("transport failed to start", zap.String("transport", t.Name()), zap.Error(err))
			continue
		}
		s.log.Info("transport started", zap.String("transport", t.Name()))
		s.active = append(s.active, t)
	}
	defer func() {
		for _, t := range s.active {
			if err := t.Close(); err != nil {
				s.log.Warn("transport close failed", zap.String("transport", t.Name()), zap.Error(err))
			}
		}
	}()

	s.publishSettings()
	s.publishListSize(true)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case w := <-s.writes:
			s.dispatch(ctx, w)
		case <-s.disconnects:
			if s.session.Kind() != registry.KindNone {
				s.log.Debug("controller disconnected, export reset")
			}
			s.session.Reset()
		case <-s.refresh:
			s.session.SetMTU(s.sensor.Settings().MTU)
			s.publishSettings()
			s.publishListSize(true)
		case <-ticker.C:
			if s.session.Expire() {
				s.log.Debug("export request timed out")
			}
			s.publishListSize(false)
		}
	}
}

func (s *Service) dispatch(ctx context.Context, w write) {
	switch w.ep {
	case Bulk:
		msgs, err := s.session.Handle(string(w.payload))
		if err != nil {
			s.log.Debug("export request rejected", zap.ByteString("request", w.payload), zap.Error(err))
		}
		for _, m := range msgs {
			s.notify(Bulk, m)
		}

	case Settings:
		st, err := config.ParseSettings(string(w.payload))
		if err == nil {
			err = s.sensor.ApplySettings(st)
		}
		if err != nil {
			s.log.Warn("settings rejected", zap.ByteString("settings", w.payload), zap.Error(err))
			s.notify(Settings, []byte("ERROR:"+err.Error()))
			return
		}
		s.session.SetMTU(st.MTU)
		s.publishSettings()

	case Commands:
		cmd, err := ParseCommand(string(w.payload))
		if err == nil {
			err = s.sensor.Command(ctx, cmd)
		}
		if err != nil {
			s.log.Warn("command failed", zap.ByteString("command", w.payload), zap.Error(err))
			s.notify(Commands, []byte("ERROR:"+errorText(err)))
			return
		}
		s.log.Info("command executed", zap.String("command", string(cmd)))
		s.notify(Commands, []byte("OK:"+string(cmd)))

	case ListSize:
		s.publishListSize(true)
	}
}

func errorText(err error) string {
	if errors.Is(err, ErrUnknownCommand) {
		return ErrUnknownCommand.Error()
	}
	return err.Error()
}

func (s *Service) publishSettings() {
	v := []byte(s.sensor.Settings().String())
	for _, t := range s.active {
		if err := t.SetValue(Settings, v); err != nil {
			s.log.Debug("settings publish failed", zap.String("transport", t.Name()), zap.Error(err))
		}
	}
}

// publishListSize notifies the list-size string when it changed, or always
// when force is set.
func (s *Service) publishListSize(force bool) {
	v := s.sensor.ListSize()
	if !force && v == s.lastSize {
		return
	}
	s.lastSize = v
	s.notify(ListSize, []byte(v))
}

func (s *Service) notify(ep Endpoint, payload []byte) {
	for _, t := range s.active {
		if err := t.Notify(ep, payload); err != nil {
			s.log.Debug("notify failed", zap.String("transport", t.Name()), zap.Stringer("endpoint", ep), zap.Error(err))
		}
	}
}
