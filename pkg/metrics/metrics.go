// Package metrics exposes prometheus collectors for the fusion pipeline.
// Every recording method is safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hatseye/hatseye/pkg/telemetry"
)

const namespace = "hatseye"

// Metrics holds every hatseye collector.
type Metrics struct {
	registry *prometheus.Registry

	framesTotal      prometheus.Counter
	detectionCalls   *prometheus.CounterVec
	detectionLatency prometheus.Histogram

	hazardAlerts *prometheus.CounterVec
	hazardActive prometheus.Gauge

	telemetryFrames *prometheus.CounterVec
	telemetryStatus *prometheus.GaugeVec

	sessions       *prometheus.CounterVec
	sessionState   *prometheus.GaugeVec
	visionRequests *prometheus.CounterVec

	wsClients *prometheus.GaugeVec
	published *prometheus.CounterVec
}

// New creates the collectors and registers them on registry. A nil
// registry gets a fresh one with the Go and process collectors.
func New(registry *prometheus.Registry) (*Metrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.framesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_total",
		Help:      "Camera frames processed by the frame loop",
	})

	m.detectionCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "detection_calls_total",
		Help:      "External detection calls by outcome",
	}, []string{"status"}) // status: success, error

	m.detectionLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "detection_latency_seconds",
		Help:      "Latency of external detection calls",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 8),
	})

	m.hazardAlerts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hazard_alerts_total",
		Help:      "Hazard alerts raised by class",
	}, []string{"class"})

	m.hazardActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "hazard_alert_active",
		Help:      "1 while a hazard alert is active",
	})

	m.telemetryFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "telemetry_frames_total",
		Help:      "Telemetry lines received by result",
	}, []string{"result"}) // result: accepted, rejected

	m.telemetryStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "telemetry_link_status",
		Help:      "1 for the current telemetry link status",
	}, []string{"status"})

	m.sessions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "interaction_sessions_total",
		Help:      "Finished interaction sessions by reason",
	}, []string{"reason"})

	m.sessionState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "interaction_state",
		Help:      "1 for the current interaction state",
	}, []string{"state"})

	m.visionRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "vision_requests_total",
		Help:      "Vision analysis requests by outcome",
	}, []string{"status"})

	m.wsClients = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_clients",
		Help:      "Connected websocket clients per hub",
	}, []string{"hub"})

	m.published = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mqtt_published_total",
		Help:      "MQTT publishes by kind and outcome",
	}, []string{"kind", "status"})
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.framesTotal,
		m.detectionCalls,
		m.detectionLatency,
		m.hazardAlerts,
		m.hazardActive,
		m.telemetryFrames,
		m.telemetryStatus,
		m.sessions,
		m.sessionState,
		m.visionRequests,
		m.wsClients,
		m.published,
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// FrameProcessed counts one frame-loop iteration.
func (m *Metrics) FrameProcessed() {
	if m == nil {
		return
	}
	m.framesTotal.Inc()
}

// DetectionCall records one completed detection call. Its signature
// matches detection.CacheConfig.OnResult.
func (m *Metrics) DetectionCall(err error, latency time.Duration) {
	if m == nil {
		return
	}
	m.detectionCalls.WithLabelValues(status(err)).Inc()
	if err == nil {
		m.detectionLatency.Observe(latency.Seconds())
	}
}

// HazardAlert counts a raised alert.
func (m *Metrics) HazardAlert(class string) {
	if m == nil {
		return
	}
	m.hazardAlerts.WithLabelValues(class).Inc()
}

// SetHazardActive records whether an alert is active.
func (m *Metrics) SetHazardActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.hazardActive.Set(1)
	} else {
		m.hazardActive.Set(0)
	}
}

// TelemetryFrame counts one received telemetry line.
func (m *Metrics) TelemetryFrame(accepted bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	m.telemetryFrames.WithLabelValues(result).Inc()
}

// TelemetryStatus records the current link status.
func (m *Metrics) TelemetryStatus(s telemetry.Status) {
	if m == nil {
		return
	}
	m.telemetryStatus.Reset()
	m.telemetryStatus.WithLabelValues(s.String()).Set(1)
}

// SessionEnded counts a finished interaction session.
func (m *Metrics) SessionEnded(reason string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(reason).Inc()
}

// SessionState records the current interaction state.
func (m *Metrics) SessionState(state string) {
	if m == nil {
		return
	}
	m.sessionState.Reset()
	m.sessionState.WithLabelValues(state).Set(1)
}

// VisionRequest counts one vision analysis.
func (m *Metrics) VisionRequest(err error) {
	if m == nil {
		return
	}
	m.visionRequests.WithLabelValues(status(err)).Inc()
}

// SetClients records the client count of a websocket hub.
func (m *Metrics) SetClients(hub string, n int) {
	if m == nil {
		return
	}
	m.wsClients.WithLabelValues(hub).Set(float64(n))
}

// Published counts one MQTT publish.
func (m *Metrics) Published(kind string, err error) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(kind, status(err)).Inc()
}
