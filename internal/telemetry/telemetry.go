// Package telemetry writes periodic sensor health points to InfluxDB.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"airwatch.klederson.com/internal/config"
)

const connectTimeout = 10 * time.Second

var (
	// ErrDisabled is returned by Connect when telemetry is off in config.
	ErrDisabled = errors.New("telemetry: disabled in configuration")

	// ErrConnectionFailed indicates the initial ping failed.
	ErrConnectionFailed = errors.New("telemetry: connection failed")
)

// Sample is one observation of the sensor's state.
type Sample struct {
	At         time.Time
	Mode       string
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
}

// Point converts s to the line-protocol point written for sensor id.
func (s Sample) Point(sensorID string) *write.Point {
	return write.NewPoint(
		"airwatch_sensor",
		map[string]string{
			"sensor_id": sensorID,
			"mode":      s.Mode,
		},
		map[string]interface{}{
			"networks":    s.Networks,
			"stations":    s.Stations,
			"devices":     s.Devices,
			"alarm":       s.Alarm,
			"detected":    s.Detected,
			"received":    s.Received,
			"accepted":    s.Accepted,
			"dropped":     s.Dropped,
			"queue_drops": s.QueueDrops,
			"lock_skips":  s.LockSkips,
		},
		s.At,
	)
}

// Influx is a non-blocking point writer.
type Influx struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	sensorID string
	log      *zap.Logger
}

// Connect creates the client and verifies the server answers.
func Connect(cfg config.TelemetryConfig, sensorID string, log *zap.Logger) (*Influx, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetBatchSize(20).SetFlushInterval(uint(cfg.Interval.Milliseconds())))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	t := &Influx{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		sensorID: sensorID,
		log:      log.With(zap.String("component", "telemetry")),
	}
	go t.handleWriteErrors(t.writeAPI.Errors())
	return t, nil
}

func (t *Influx) handleWriteErrors(errs <-chan error) {
	for err := range errs {
		t.log.Warn("influx write failed", zap.Error(err))
	}
}

// Record queues s for writing.
func (t *Influx) Record(s Sample) {
	t.writeAPI.WritePoint(s.Point(t.sensorID))
}

// Close flushes pending points and closes the client.
func (t *Influx) Close() error {
	t.writeAPI.Flush()
	t.client.Close()
	return nil
}
