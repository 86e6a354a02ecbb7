// Package telemetry publishes study notices to an MQTT broker so other
// lab machines can follow a session live.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/teslashibe/go-blink/internal/log"
	"github.com/teslashibe/go-blink/pkg/study"
)

// Config holds broker settings.
type Config struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string // random when empty
	Prefix   string // topic prefix

	QoS    byte
	Retain bool

	// PublishFrames also sends every annotated JPEG to <prefix>/<session>/frame.
	PublishFrames bool

	KeepAlive      time.Duration
	PingTimeout    time.Duration
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// DefaultConfig returns settings for a broker on localhost.
func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://localhost:1883",
		Prefix:         "blink",
		KeepAlive:      2 * time.Second,
		PingTimeout:    1 * time.Second,
		ConnectTimeout: 30 * time.Second,
		PublishTimeout: 5 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Broker == "" {
		return errors.New("telemetry: broker is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("telemetry: qos must be 0, 1 or 2, got %d", c.QoS)
	}
	if strings.ContainsAny(c.Prefix, "+#") {
		return fmt.Errorf("telemetry: prefix %q contains a wildcard", c.Prefix)
	}
	return nil
}

// Client is the part of mqtt.Client the publisher uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher is a study.Sink that forwards notices to MQTT.
type Publisher struct {
	cfg    Config
	client Client
}

// Connect dials the broker.
func Connect(cfg Config) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "blink-" + uuid.New().String()
	}

	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetPingTimeout(cfg.PingTimeout)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(mqtt.Client) {
		log.Info("telemetry connected", "broker", cfg.Broker, "client", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn("telemetry connection lost", "broker", cfg.Broker, "err", err)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("telemetry: connect %s: %w", cfg.Broker, token.Error())
	}

	return NewPublisher(cfg, client), nil
}

// NewPublisher wraps an existing client.
func NewPublisher(cfg Config, client Client) *Publisher {
	return &Publisher{cfg: cfg, client: client}
}

// Topic returns the topic for a notice kind within a session.
func (p *Publisher) Topic(session, kind string) string {
	if session == "" {
		session = "idle"
	}
	if p.cfg.Prefix == "" {
		return session + "/" + kind
	}
	return p.cfg.Prefix + "/" + session + "/" + kind
}

// Notify implements study.Sink.
func (p *Publisher) Notify(n study.Notice) {
	payload, err := json.Marshal(n)
	if err != nil {
		log.Warn("telemetry encode failed", "type", n.Type, "err", err)
		return
	}
	p.publish(p.Topic(n.Session, string(n.Type)), payload)
}

// Frame implements study.Sink. Frames are only sent when PublishFrames is set.
// Frames carry no session id, so they go to the "live" topic.
func (p *Publisher) Frame(jpeg []byte) {
	if !p.cfg.PublishFrames {
		return
	}
	p.publish(p.Topic("live", "frame"), jpeg)
}

// publish does not wait: sinks are called with the session lock held.
func (p *Publisher) publish(topic string, payload []byte) {
	token := p.client.Publish(topic, p.cfg.QoS, p.cfg.Retain, payload)
	go func() {
		if !token.WaitTimeout(p.cfg.PublishTimeout) {
			log.Debug("telemetry publish timed out", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			log.Warn("telemetry publish failed", "topic", topic, "err", err)
		}
	}()
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

var _ study.Sink = (*Publisher)(nil)
