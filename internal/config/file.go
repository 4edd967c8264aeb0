package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// File is the on-disk configuration.
type File struct {
	Sensor    SensorConfig    `yaml:"sensor"`
	Registry  RegistryConfig  `yaml:"registry"`
	Settings  Settings        `yaml:"settings"`
	Control   ControlConfig   `yaml:"control"`
	Store     StoreConfig     `yaml:"store"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SensorConfig identifies the sensor and its radios.
type SensorConfig struct {
	ID            string  `yaml:"id"`
	WiFiInterface string  `yaml:"wifi_interface"`
	Channels      []uint8 `yaml:"channels"` // Hop set; empty stays on the current channel
	BLE           bool    `yaml:"ble"`
}

// RegistryConfig sizes the registries.
type RegistryConfig struct {
	Networks int           `yaml:"networks"`
	Stations int           `yaml:"stations"`
	Devices  int           `yaml:"devices"`
	LockWait time.Duration `yaml:"lock_wait"`
}

// ControlConfig selects the control-channel transports.
type ControlConfig struct {
	GATT GATTConfig `yaml:"gatt"`
	MQTT MQTTConfig `yaml:"mqtt"`
}

// GATTConfig configures the BLE peripheral transport.
type GATTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceUUID string `yaml:"service_uuid"`
}

// MQTTConfig configures the MQTT transport.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // tcp://host:port
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// StoreConfig locates the snapshot database.
type StoreConfig struct {
	Path        string `yaml:"path"` // Empty disables persistence
	BusyTimeout int    `yaml:"busy_timeout"`
}

// TelemetryConfig configures the InfluxDB writer.
type TelemetryConfig struct {
	Enabled  bool          `yaml:"enabled"`
	URL      string        `yaml:"url"`
	Token    string        `yaml:"token"`
	Org      string        `yaml:"org"`
	Bucket   string        `yaml:"bucket"`
	Interval time.Duration `yaml:"interval"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	Output string `yaml:"output"` // stderr, stdout or a file path
}

// Default returns a File with every field set to its default.
func Default() *File {
	return &File{
		Sensor: SensorConfig{
			ID:            uuid.NewString(),
			WiFiInterface: "wlan0mon",
			Channels:      []uint8{1, 6, 11},
			BLE:           true,
		},
		Registry: RegistryConfig{
			Networks: NetworkCapacity,
			Stations: StationCapacity,
			Devices:  DeviceCapacity,
			LockWait: LockWait,
		},
		Settings: DefaultSettings(),
		Control: ControlConfig{
			GATT: GATTConfig{
				Enabled:     true,
				ServiceUUID: "6e400001-b5a3-f393-e0a9-e50e24dcca9e",
			},
			MQTT: MQTTConfig{
				Broker:      "tcp://localhost:1883",
				ClientID:    "airwatch",
				TopicPrefix: "airwatch",
				QoS:         1,
			},
		},
		Store: StoreConfig{
			Path:        "./data/airwatch.db",
			BusyTimeout: 5,
		},
		Telemetry: TelemetryConfig{
			URL:      "http://localhost:8086",
			Org:      "airwatch",
			Bucket:   "sensor",
			Interval: TelemetryInterval,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates. A missing file yields the defaults.
func Load(path string) (*File, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *File) {
	if v := os.Getenv("AIRWATCH_WIFI_INTERFACE"); v != "" {
		cfg.Sensor.WiFiInterface = v
	}
	if v := os.Getenv("AIRWATCH_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("AIRWATCH_MQTT_USERNAME"); v != "" {
		cfg.Control.MQTT.Username = v
	}
	if v := os.Getenv("AIRWATCH_MQTT_PASSWORD"); v != "" {
		cfg.Control.MQTT.Password = v
	}
	if v := os.Getenv("AIRWATCH_INFLUXDB_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *File) Validate() error {
	if c.Sensor.ID == "" {
		return errors.New("sensor.id is required")
	}
	if c.Registry.Networks <= 0 || c.Registry.Stations <= 0 || c.Registry.Devices <= 0 {
		return errors.New("registry capacities must be positive")
	}
	if c.Registry.LockWait <= 0 {
		return errors.New("registry.lock_wait must be positive")
	}
	for _, ch := range c.Sensor.Channels {
		if ch == 0 || ch > 196 {
			return fmt.Errorf("sensor.channels: invalid channel %d", ch)
		}
	}
	if err := c.Settings.Validate(); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	if c.Control.GATT.Enabled {
		if _, err := uuid.Parse(c.Control.GATT.ServiceUUID); err != nil {
			return fmt.Errorf("control.gatt.service_uuid: %w", err)
		}
	}
	if c.Control.MQTT.Enabled {
		if c.Control.MQTT.Broker == "" {
			return errors.New("control.mqtt.broker is required")
		}
		if c.Control.MQTT.QoS > 2 {
			return fmt.Errorf("control.mqtt.qos must be 0-2, got %d", c.Control.MQTT.QoS)
		}
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.URL == "" || c.Telemetry.Bucket == "" {
			return errors.New("telemetry.url and telemetry.bucket are required")
		}
		if c.Telemetry.Interval <= 0 {
			return errors.New("telemetry.interval must be positive")
		}
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
