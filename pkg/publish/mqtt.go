package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hatseye/hatseye/pkg/hazard"
	"github.com/hatseye/hatseye/pkg/interaction"
	"github.com/hatseye/hatseye/pkg/telemetry"
)

// Config holds MQTT publisher configuration.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string

	// Topic is the prefix; messages go to Topic/alerts, Topic/telemetry
	// and Topic/sessions.
	Topic string
	QoS   byte

	ConnectTimeout time.Duration
	PublishTimeout time.Duration

	// TelemetryInterval is the minimum gap between telemetry publishes.
	TelemetryInterval time.Duration

	// OnPublish is called after every publish attempt.
	OnPublish func(kind string, err error)

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Broker:            "tcp://localhost:1883",
		Topic:             "hatseye",
		QoS:               1,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		TelemetryInterval: time.Second,
		Logger:            slog.Default(),
	}
}

// ClientFactory builds the underlying paho client. Tests replace it.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// MQTT publishes to a broker with paho.
type MQTT struct {
	cfg    Config
	client mqtt.Client
	logger *slog.Logger

	// nil publishes every snapshot
	telemetryGate *rate.Sometimes

	wg sync.WaitGroup
}

var (
	_ Publisher        = (*MQTT)(nil)
	_ hazard.AlertSink = (*MQTT)(nil)
)

// NewMQTT creates a publisher. Call Connect before publishing.
func NewMQTT(cfg Config) *MQTT {
	return NewMQTTWithFactory(cfg, mqtt.NewClient)
}

// NewMQTTWithFactory creates a publisher using factory for the client.
func NewMQTTWithFactory(cfg Config, factory ClientFactory) *MQTT {
	def := DefaultConfig()
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	if cfg.Broker == "" {
		cfg.Broker = def.Broker
	}
	if cfg.Topic == "" {
		cfg.Topic = def.Topic
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	if cfg.QoS > 2 {
		cfg.QoS = 2
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "hatseye-" + uuid.NewString()[:8]
	}

	p := &MQTT{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "publish.mqtt"),
	}
	if cfg.TelemetryInterval > 0 {
		p.telemetryGate = &rate.Sometimes{Interval: cfg.TelemetryInterval}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		p.logger.Info("connected to mqtt broker", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.logger.Warn("mqtt connection lost", "broker", cfg.Broker, "error", err)
	})

	p.client = factory(opts)
	return p
}

// Connect connects to the broker, waiting at most ConnectTimeout.
func (p *MQTT) Connect(ctx context.Context) error {
	token := p.client.Connect()
	if err := p.wait(ctx, token, p.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("publish: connect %s: %w", p.cfg.Broker, err)
	}
	return nil
}

// Topic returns the full topic for kind.
func (p *MQTT) Topic(kind string) string {
	return p.cfg.Topic + "/" + kind
}

// PublishAlert publishes a hazard alert.
func (p *MQTT) PublishAlert(ctx context.Context, a hazard.Alert) error {
	return p.publish(ctx, KindAlert, NewAlertMessage(a))
}

// PublishTelemetry publishes a snapshot, dropping it silently when the
// previous one went out less than TelemetryInterval ago.
func (p *MQTT) PublishTelemetry(ctx context.Context, s telemetry.Snapshot) error {
	if p.telemetryGate == nil {
		return p.publish(ctx, KindTelemetry, NewTelemetryMessage(s))
	}
	var err error
	p.telemetryGate.Do(func() {
		err = p.publish(ctx, KindTelemetry, NewTelemetryMessage(s))
	})
	return err
}

// PublishOutcome publishes the outcome of an interaction session.
func (p *MQTT) PublishOutcome(ctx context.Context, o interaction.Outcome) error {
	return p.publish(ctx, KindSession, o)
}

// Alert implements hazard.AlertSink. The publish runs in the background
// so the frame loop is never blocked on the broker.
func (p *MQTT) Alert(a hazard.Alert) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PublishTimeout)
		defer cancel()
		if err := p.PublishAlert(ctx, a); err != nil {
			p.logger.Warn("alert publish failed", "class", a.Class, "error", err)
		}
	}()
}

func (p *MQTT) publish(ctx context.Context, kind string, v any) error {
	err := p.send(ctx, kind, v)
	if p.cfg.OnPublish != nil {
		p.cfg.OnPublish(kind, err)
	}
	return err
}

func (p *MQTT) send(ctx context.Context, kind string, v any) error {
	if !p.client.IsConnected() {
		return ErrNotConnected
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("publish: marshal %s: %w", kind, err)
	}
	token := p.client.Publish(p.Topic(kind), p.cfg.QoS, false, payload)
	if err := p.wait(ctx, token, p.cfg.PublishTimeout); err != nil {
		return fmt.Errorf("publish: %s: %w", kind, err)
	}
	p.logger.Debug("published", "topic", p.Topic(kind), "bytes", len(payload))
	return nil
}

func (p *MQTT) wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close waits for background alert publishes and disconnects.
func (p *MQTT) Close() error {
	p.wg.Wait()
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	return nil
}
