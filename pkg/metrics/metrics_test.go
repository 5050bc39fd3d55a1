package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hatseye/hatseye/pkg/telemetry"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.FrameProcessed()
		m.DetectionCall(nil, time.Second)
		m.HazardAlert("pothole")
		m.SetHazardActive(true)
		m.TelemetryFrame(true)
		m.TelemetryStatus(telemetry.StatusLinked)
		m.SessionEnded("answered")
		m.SessionState("idle")
		m.VisionRequest(nil)
		m.SetClients("camera", 1)
		m.Published("alert", nil)
	})
	assert.Nil(t, m.Registry())
}

func TestDetectionCall(t *testing.T) {
	m := newTestMetrics(t)
	m.DetectionCall(nil, 200*time.Millisecond)
	m.DetectionCall(nil, 300*time.Millisecond)
	m.DetectionCall(errors.New("boom"), time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.detectionCalls.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.detectionCalls.WithLabelValues("error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.detectionLatency))
}

func TestStateGaugesKeepOneLabel(t *testing.T) {
	m := newTestMetrics(t)

	m.TelemetryStatus(telemetry.StatusConnecting)
	m.TelemetryStatus(telemetry.StatusLinked)
	assert.Equal(t, 1, testutil.CollectAndCount(m.telemetryStatus))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.telemetryStatus.WithLabelValues("linked")))

	m.SessionState("listening")
	m.SessionState("analyzing")
	assert.Equal(t, 1, testutil.CollectAndCount(m.sessionState))
}

func TestHazardAndTelemetryCounters(t *testing.T) {
	m := newTestMetrics(t)
	m.HazardAlert("pothole")
	m.HazardAlert("pothole")
	m.SetHazardActive(true)
	m.TelemetryFrame(true)
	m.TelemetryFrame(false)
	m.TelemetryFrame(false)
	m.FrameProcessed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.hazardAlerts.WithLabelValues("pothole")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.hazardActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.telemetryFrames.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesTotal))

	m.SetHazardActive(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.hazardActive))
}

func TestRegistryGathers(t *testing.T) {
	m := newTestMetrics(t)
	m.SetClients("camera", 3)
	m.Published("alert", errors.New("offline"))

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["hatseye_websocket_clients"])
	assert.True(t, names["hatseye_mqtt_published_total"])
}

func TestDuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestDefaultRegistry(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	assert.NotNil(t, m.Registry())
}
