package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hatseye/hatseye/internal/log"
	"github.com/hatseye/hatseye/pkg/hazard"
	"github.com/hatseye/hatseye/pkg/interaction"
	"github.com/hatseye/hatseye/pkg/telemetry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeToken struct {
	done chan struct{}
	err  error
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	Topic   string
	QoS     byte
	Payload []byte
}

type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	connectErr   error
	publishToken func() mqtt.Token
	messages     []published
	disconnected bool
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *fakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = c.connectErr == nil
	return doneToken(c.connectErr)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnected = true
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{Topic: topic, QoS: qos, Payload: payload.([]byte)})
	if c.publishToken != nil {
		return c.publishToken()
	}
	return doneToken(nil)
}

func (c *fakeClient) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	return doneToken(nil)
}

func (c *fakeClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return doneToken(nil)
}

func (c *fakeClient) Unsubscribe(...string) mqtt.Token        { return doneToken(nil) }
func (c *fakeClient) AddRoute(string, mqtt.MessageHandler)    {}
func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func (c *fakeClient) Messages() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.messages...)
}

func newTestPublisher(t *testing.T, fc *fakeClient, mutate func(*Config)) *MQTT {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Logger = log.Discard()
	cfg.PublishTimeout = 50 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	p := NewMQTTWithFactory(cfg, func(opts *mqtt.ClientOptions) mqtt.Client {
		assert.Equal(t, cfg.Broker, opts.Servers[0].String())
		return fc
	})
	require.NoError(t, p.Connect(context.Background()))
	return p
}

func TestPublishAlert(t *testing.T) {
	fc := &fakeClient{}
	p := newTestPublisher(t, fc, nil)
	defer p.Close()

	first := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	err := p.PublishAlert(context.Background(), hazard.Alert{
		Class:     "pothole",
		FirstSeen: first,
		At:        first.Add(300 * time.Millisecond),
	})
	require.NoError(t, err)

	msgs := fc.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hatseye/alerts", msgs[0].Topic)
	assert.Equal(t, byte(1), msgs[0].QoS)

	var got AlertMessage
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &got))
	assert.Equal(t, "pothole", got.Class)
	assert.Equal(t, int64(300), got.DwellMs)
}

func TestPublishTelemetryThrottled(t *testing.T) {
	fc := &fakeClient{}
	p := newTestPublisher(t, fc, func(c *Config) { c.TelemetryInterval = time.Hour })
	defer p.Close()

	snap := telemetry.Snapshot{Readings: []telemetry.SensorReading{
		{ID: 1, DistanceCM: 90, Intensity: 10},
		{ID: 2, DistanceCM: 25, Intensity: 200},
	}}
	for i := 0; i < 5; i++ {
		require.NoError(t, p.PublishTelemetry(context.Background(), snap))
	}

	msgs := fc.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hatseye/telemetry", msgs[0].Topic)

	var got TelemetryMessage
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &got))
	assert.Equal(t, 25, got.NearestCM)
	assert.Len(t, got.Readings, 2)
}

func TestPublishTelemetryUnthrottled(t *testing.T) {
	fc := &fakeClient{}
	p := newTestPublisher(t, fc, func(c *Config) { c.TelemetryInterval = 0 })
	defer p.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, p.PublishTelemetry(context.Background(), telemetry.Snapshot{}))
	}
	assert.Len(t, fc.Messages(), 3)
}

func TestPublishOutcome(t *testing.T) {
	fc := &fakeClient{}
	var kinds []string
	p := newTestPublisher(t, fc, func(c *Config) {
		c.Topic = "hat/7"
		c.OnPublish = func(kind string, err error) { kinds = append(kinds, kind) }
	})
	defer p.Close()

	err := p.PublishOutcome(context.Background(), interaction.Outcome{Reason: interaction.ReasonAnswered, Answer: "A door."})
	require.NoError(t, err)
	assert.Equal(t, "hat/7/sessions", fc.Messages()[0].Topic)
	assert.Equal(t, []string{KindSession}, kinds)
}

func TestPublishNotConnected(t *testing.T) {
	fc := &fakeClient{}
	p := newTestPublisher(t, fc, nil)
	fc.Disconnect(0)

	var gotErr error
	p.cfg.OnPublish = func(_ string, err error) { gotErr = err }

	err := p.PublishAlert(context.Background(), hazard.Alert{Class: "pothole"})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, gotErr, ErrNotConnected)
	assert.NoError(t, p.Close())
}

func TestPublishTimeout(t *testing.T) {
	fc := &fakeClient{publishToken: func() mqtt.Token {
		return &fakeToken{done: make(chan struct{})}
	}}
	p := newTestPublisher(t, fc, nil)
	defer p.Close()

	err := p.PublishAlert(context.Background(), hazard.Alert{Class: "pothole"})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPublishBrokerError(t *testing.T) {
	boom := errors.New("not authorized")
	fc := &fakeClient{publishToken: func() mqtt.Token { return doneToken(boom) }}
	p := newTestPublisher(t, fc, nil)
	defer p.Close()

	err := p.PublishAlert(context.Background(), hazard.Alert{Class: "pothole"})
	assert.ErrorIs(t, err, boom)
}

func TestConnectError(t *testing.T) {
	fc := &fakeClient{connectErr: errors.New("refused")}
	cfg := DefaultConfig()
	cfg.Logger = log.Discard()
	p := NewMQTTWithFactory(cfg, func(*mqtt.ClientOptions) mqtt.Client { return fc })

	err := p.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tcp://localhost:1883")
}

func TestAlertSinkPublishesInBackground(t *testing.T) {
	fc := &fakeClient{}
	p := newTestPublisher(t, fc, nil)

	var sink hazard.AlertSink = p
	sink.Alert(hazard.Alert{Class: "pothole", At: time.Now()})

	require.NoError(t, p.Close())
	require.Len(t, fc.Messages(), 1)
	assert.True(t, fc.disconnected)
}

func TestGeneratedClientID(t *testing.T) {
	var id string
	p := NewMQTTWithFactory(Config{Logger: log.Discard()}, func(opts *mqtt.ClientOptions) mqtt.Client {
		id = opts.ClientID
		return &fakeClient{}
	})
	defer p.Close()
	assert.Regexp(t, `^hatseye-[0-9a-f]{8}$`, id)
	assert.Equal(t, "hatseye/telemetry", p.Topic(KindTelemetry))
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	ctx := context.Background()
	assert.NoError(t, p.PublishAlert(ctx, hazard.Alert{}))
	assert.NoError(t, p.PublishTelemetry(ctx, telemetry.Snapshot{}))
	assert.NoError(t, p.PublishOutcome(ctx, interaction.Outcome{}))
	assert.NoError(t, p.Close())
}
