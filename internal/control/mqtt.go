package control

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"airwatch.klederson.com/internal/config"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second
	mqttKeepAlive      = 60 * time.Second
	mqttQuiesceMS      = 1000
)

// ErrNotConnected is returned when publishing while the broker is down.
var ErrNotConnected = errors.New("mqtt: not connected")

// Topics builds the topic tree of one sensor:
//
//	<prefix>/<sensor>/status              online/offline (retained, LWT)
//	<prefix>/<sensor>/listsize            list-size string (retained)
//	<prefix>/<sensor>/bulk/request        controller writes
//	<prefix>/<sensor>/bulk                export notifications
//	<prefix>/<sensor>/settings            current settings (retained)
//	<prefix>/<sensor>/settings/set        controller writes
//	<prefix>/<sensor>/commands            controller writes
//	<prefix>/<sensor>/commands/result     command results
type Topics struct {
	Prefix string
	Sensor string
}

func (t Topics) base() string { return t.Prefix + "/" + t.Sensor }

// Status is the availability topic.
func (t Topics) Status() string { return t.base() + "/status" }

// Out is the topic the sensor publishes ep on.
func (t Topics) Out(ep Endpoint) string {
	switch ep {
	case Commands:
		return t.base() + "/commands/result"
	default:
		return t.base() + "/" + ep.String()
	}
}

// In is the topic the controller writes ep on. ListSize has none.
func (t Topics) In(ep Endpoint) (string, bool) {
	switch ep {
	case Bulk:
		return t.base() + "/bulk/request", true
	case Settings:
		return t.base() + "/settings/set", true
	case Commands:
		return t.base() + "/commands", true
	}
	return "", false
}

// Endpoint maps an inbound topic back to its endpoint.
func (t Topics) Endpoint(topic string) (Endpoint, bool) {
	if !strings.HasPrefix(topic, t.base()+"/") {
		return 0, false
	}
	for _, ep := range Endpoints {
		if in, ok := t.In(ep); ok && in == topic {
			return ep, true
		}
	}
	return 0, false
}

// retained reports whether ep carries state rather than events.
func retained(ep Endpoint) bool { return ep == ListSize || ep == Settings }

// MQTT carries the endpoints over an MQTT broker.
type MQTT struct {
	cfg    config.MQTTConfig
	topics Topics
	log    *zap.Logger

	mu     sync.RWMutex
	client pahomqtt.Client
}

// NewMQTT creates the transport for sensorID.
func NewMQTT(cfg config.MQTTConfig, sensorID string, log *zap.Logger) *MQTT {
	return &MQTT{
		cfg:    cfg,
		topics: Topics{Prefix: cfg.TopicPrefix, Sensor: sensorID},
		log:    log.With(zap.String("component", "mqtt")),
	}
}

// Name implements Transport.
func (m *MQTT) Name() string { return "mqtt" }

func (m *MQTT) buildClientOptions() *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(m.cfg.Broker)
	opts.SetClientID(m.cfg.ClientID + "-" + m.topics.Sensor)
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Second)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetKeepAlive(mqttKeepAlive)
	opts.SetWill(m.topics.Status(), "offline", 1, true)
	return opts
}

// Start implements Transport.
func (m *MQTT) Start(_ context.Context, h Handler) error {
	opts := m.buildClientOptions()

	onMessage := func(_ pahomqtt.Client, msg pahomqtt.Message) {
		ep, ok := m.topics.Endpoint(msg.Topic())
		if !ok {
			return
		}
		h.HandleWrite(ep, msg.Payload())
	}

	// Subscriptions are (re)made on every connect since the session is clean.
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		for _, ep := range Endpoints {
			topic, ok := m.topics.In(ep)
			if !ok {
				continue
			}
			if tok := c.Subscribe(topic, m.cfg.QoS, onMessage); tok.WaitTimeout(mqttPublishTimeout) && tok.Error() != nil {
				m.log.Error("subscribe failed", zap.String("topic", topic), zap.Error(tok.Error()))
			}
		}
		c.Publish(m.topics.Status(), 1, true, "online")
		m.log.Info("connected", zap.String("broker", m.cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		m.log.Warn("connection lost", zap.Error(err))
		h.HandleDisconnect()
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		client.Disconnect(0) // stops the connect retry loop
		return fmt.Errorf("mqtt connect: timeout after %v", mqttConnectTimeout)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect: %w", err)
	}

	m.mu.Lock()
	m.client = client
	m.mu.Unlock()
	return nil
}

func (m *MQTT) publish(topic string, retain bool, payload []byte) error {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()
	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := client.Publish(topic, m.cfg.QoS, retain, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("mqtt publish %s: timeout", topic)
	}
	return token.Error()
}

// Notify implements Transport.
func (m *MQTT) Notify(ep Endpoint, payload []byte) error {
	return m.publish(m.topics.Out(ep), retained(ep), payload)
}

// SetValue implements Transport.
func (m *MQTT) SetValue(ep Endpoint, payload []byte) error {
	return m.publish(m.topics.Out(ep), true, payload)
}

// Close publishes offline and disconnects.
func (m *MQTT) Close() error {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()
	if client == nil {
		return nil
	}
	if client.IsConnected() {
		client.Publish(m.topics.Status(), 1, true, "offline").WaitTimeout(mqttPublishTimeout)
	}
	client.Disconnect(mqttQuiesceMS)
	return nil
}
