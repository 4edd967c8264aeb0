package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"airwatch.klederson.com/internal/config"
	"airwatch.klederson.com/internal/mode"
	"airwatch.klederson.com/internal/telemetry"
)

// Stats is a point-in-time view of the sensor for the monitor and telemetry.
type Stats struct {
	Mode       mode.Mode
	Networks   int
	Stations   int
	Devices    int
	Alarm      bool
	Detected   int
	Received   uint64
	Accepted   uint64
	Dropped    uint64
	QueueDrops uint64
	LockSkips  uint64
	Filtered   uint64
}

// Stats collects the current counters.
func (s *Sensor) Stats() Stats {
	cs := s.classifier.Stats()
	return Stats{
		Mode:       s.controller.Mode(),
		Networks:   s.set.Networks.Len(),
		Stations:   s.set.Stations.Len(),
		Devices:    s.set.Devices.Len(),
		Alarm:      s.engine.IsAlarmed(),
		Detected:   len(s.engine.Detected()),
		Received:   cs.Received,
		Accepted:   cs.Accepted,
		Dropped:    cs.Dropped(),
		QueueDrops: s.counters.QueueDrops.Load(),
		LockSkips:  s.counters.LockSkips.Load(),
		Filtered:   s.counters.Filtered.Load(),
	}
}

// housekeep runs the periodic chores: autosave, relevance sweep and
// telemetry.
func (s *Sensor) housekeep(ctx context.Context) error {
	ticker := time.NewTicker(config.HousekeepInterval)
	defer ticker.Stop()

	lastSweep := time.Now()
	lastTelemetry := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.autosave(ctx, now)

			if now.Sub(lastSweep) >= config.SweepInterval {
				lastSweep = now
				s.sweep()
			}

			if s.telemetry != nil && now.Sub(lastTelemetry) >= s.cfg.Telemetry.Interval {
				lastTelemetry = now
				s.telemetry.Record(s.sample(now))
			}
		}
	}
}

func (s *Sensor) autosave(ctx context.Context, now time.Time) {
	s.mu.RLock()
	interval := s.settings.AutosaveInterval
	due := interval > 0 && now.Sub(s.lastSave) >= interval
	s.mu.RUnlock()
	if !due {
		return
	}
	if err := s.Save(ctx); err != nil {
		s.log.Warn("autosave failed", zap.Error(err))
	}
}

// sweep prunes full registries while capturing. The registries are the
// watch list in detect mode and are left alone there.
func (s *Sensor) sweep() {
	st := s.Stats()
	s.log.Debug("capture counters",
		zap.Uint64("received", st.Received),
		zap.Uint64("accepted", st.Accepted),
		zap.Uint64("dropped", st.Dropped),
		zap.Uint64("queue_drops", st.QueueDrops),
		zap.Uint64("lock_skips", st.LockSkips))

	if st.Mode != mode.Capture {
		return
	}
	if n := s.set.Sweep(s.Settings().RSSIFloor); n > 0 {
		s.log.Info("relevance sweep", zap.Int("removed", n))
	}
}

func (s *Sensor) sample(now time.Time) telemetry.Sample {
	st := s.Stats()
	return telemetry.Sample{
		At:         now,
		Mode:       st.Mode.String(),
		Networks:   st.Networks,
		Stations:   st.Stations,
		Devices:    st.Devices,
		Alarm:      st.Alarm,
		Detected:   st.Detected,
		Received:   st.Received,
		Accepted:   st.Accepted,
		Dropped:    st.Dropped,
		QueueDrops: st.QueueDrops,
		LockSkips:  st.LockSkips,
	}
}
