// Package publish forwards hazard alerts, telemetry snapshots and session
// outcomes to an MQTT broker for remote monitoring.
package publish

import (
	"context"
	"errors"
	"time"

	"github.com/hatseye/hatseye/pkg/hazard"
	"github.com/hatseye/hatseye/pkg/interaction"
	"github.com/hatseye/hatseye/pkg/telemetry"
)

// Sentinel errors.
var (
	ErrNotConnected = errors.New("publish: not connected")
	ErrTimeout      = errors.New("publish: timeout")
)

// Message kinds, used as topic suffixes and metric labels.
const (
	KindAlert     = "alerts"
	KindTelemetry = "telemetry"
	KindSession   = "sessions"
)

// Publisher sends pipeline events to an external sink. Publish methods
// must not block the caller beyond ctx.
type Publisher interface {
	PublishAlert(ctx context.Context, a hazard.Alert) error
	PublishTelemetry(ctx context.Context, s telemetry.Snapshot) error
	PublishOutcome(ctx context.Context, o interaction.Outcome) error
	Close() error
}

// AlertMessage is the payload published for a hazard alert.
type AlertMessage struct {
	Class     string    `json:"class"`
	FirstSeen time.Time `json:"first_seen"`
	At        time.Time `json:"at"`
	DwellMs   int64     `json:"dwell_ms"`
}

// NewAlertMessage builds the payload for a.
func NewAlertMessage(a hazard.Alert) AlertMessage {
	return AlertMessage{
		Class:     a.Class,
		FirstSeen: a.FirstSeen,
		At:        a.At,
		DwellMs:   a.At.Sub(a.FirstSeen).Milliseconds(),
	}
}

// TelemetryMessage is the payload published for a snapshot.
type TelemetryMessage struct {
	Readings   []telemetry.SensorReading `json:"readings"`
	NearestCM  int                       `json:"nearest_cm,omitempty"`
	ReceivedAt time.Time                 `json:"received_at"`
}

// NewTelemetryMessage builds the payload for s.
func NewTelemetryMessage(s telemetry.Snapshot) TelemetryMessage {
	m := TelemetryMessage{Readings: s.Readings, ReceivedAt: s.ReceivedAt}
	if r, ok := s.Nearest(); ok {
		m.NearestCM = r.DistanceCM
	}
	return m
}

// Noop discards everything. It is used when MQTT is disabled.
type Noop struct{}

var _ Publisher = Noop{}

func (Noop) PublishAlert(context.Context, hazard.Alert) error           { return nil }
func (Noop) PublishTelemetry(context.Context, telemetry.Snapshot) error { return nil }
func (Noop) PublishOutcome(context.Context, interaction.Outcome) error  { return nil }
func (Noop) Close() error                                               { return nil }
