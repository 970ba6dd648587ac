package bus

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sproutlab/bud/pkg/errorsx"
	"github.com/sproutlab/bud/pkg/logging"
)

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	KeepAlive      time.Duration
	PingTimeout    time.Duration
	ConnectTimeout time.Duration
}

// ClientID builds a broker client identifier from the configured prefix and
// the daemon name, with a random tail so restarted daemons never fight over
// a live session on the broker.
func ClientID(prefix, daemon string) string {
	if strings.TrimSpace(prefix) == "" {
		prefix = "bud"
	}
	return prefix + "-" + daemon + "-" + uuid.NewString()[:8]
}

func (c MQTTConfig) withDefaults() MQTTConfig {
	if c.ClientID == "" {
		c.ClientID = "bud-" + uuid.NewString()[:8]
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 60 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 10 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	return c
}

// MQTT is the production Bus backed by an external MQTT broker. Publishes use
// QoS 1 and never block the caller; delivery failures are logged. Subscriptions
// are re-established automatically after a reconnect.
type MQTT struct {
	cfg    MQTTConfig
	client mqtt.Client
	log    *slog.Logger

	mu   sync.Mutex
	subs map[string]Handler
}

var _ Bus = (*MQTT)(nil)

func NewMQTT(cfg MQTTConfig, log *slog.Logger) *MQTT {
	m := &MQTT{
		cfg:  cfg.withDefaults(),
		log:  logging.NewComponentLogger(log, "bus"),
		subs: make(map[string]Handler),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(m.cfg.BrokerURL).
		SetClientID(m.cfg.ClientID).
		SetAutoReconnect(true).
		SetKeepAlive(m.cfg.KeepAlive).
		SetPingTimeout(m.cfg.PingTimeout).
		SetConnectTimeout(m.cfg.ConnectTimeout)
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}
	opts.SetOnConnectHandler(m.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.log.Warn("bus_connection_lost", "error", err)
	})

	m.client = mqtt.NewClient(opts)
	return m
}

func (m *MQTT) Name() string { return "mqtt" }

func (m *MQTT) Start(ctx context.Context) error {
	token := m.client.Connect()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.cfg.ConnectTimeout):
		return errorsx.Errorf(errorsx.ReasonBusConnect, "connect to %s timed out", m.cfg.BrokerURL)
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonBusConnect)
	}
	return nil
}

func (m *MQTT) Stop() error {
	m.client.Disconnect(250)
	m.log.Info("bus_disconnected", "client_id", m.cfg.ClientID)
	return nil
}

// Publish sends with QoS 1 and returns immediately; the token is awaited on a
// side goroutine so the audio path is never blocked on broker round-trips.
func (m *MQTT) Publish(topic, payload string, retained bool) error {
	token := m.client.Publish(topic, 1, retained, payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			m.log.Error("bus_publish_failed", "topic", topic, "error", err)
		}
	}()
	return nil
}

func (m *MQTT) Subscribe(topic string, h Handler) error {
	m.mu.Lock()
	m.subs[topic] = h
	m.mu.Unlock()
	if m.client.IsConnected() {
		m.subscribe(topic, h)
	}
	return nil
}

func (m *MQTT) onConnect(mqtt.Client) {
	m.log.Info("bus_connected", "broker", m.cfg.BrokerURL, "client_id", m.cfg.ClientID)
	m.mu.Lock()
	subs := make(map[string]Handler, len(m.subs))
	for topic, h := range m.subs {
		subs[topic] = h
	}
	m.mu.Unlock()
	for topic, h := range subs {
		m.subscribe(topic, h)
	}
}

func (m *MQTT) subscribe(topic string, h Handler) {
	token := m.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		h(msg.Topic(), msg.Payload())
	})
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			m.log.Error("bus_subscribe_failed", "topic", topic, "error", err)
		}
	}()
}
