// Package hazard turns a noisy per-frame detection stream into debounced,
// edge-triggered alerts.
package hazard

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hatseye/hatseye/pkg/detection"
)

// Alert is raised once each time a hazard has been continuously present
// for the dwell period.
type Alert struct {
	Class     string    `json:"class"`
	FirstSeen time.Time `json:"first_seen"`
	At        time.Time `json:"at"`
}

// AlertSink receives alerts. Implementations must not block.
type AlertSink interface {
	Alert(a Alert)
}

// SinkFunc adapts a function to AlertSink.
type SinkFunc func(a Alert)

// Alert implements AlertSink.
func (f SinkFunc) Alert(a Alert) { f(a) }

// Sinks fans an alert out to several sinks.
type Sinks []AlertSink

// Alert implements AlertSink.
func (s Sinks) Alert(a Alert) {
	for _, sink := range s {
		if sink != nil {
			sink.Alert(a)
		}
	}
}

// Window is the debounce state for the hazard currently being tracked.
type Window struct {
	ActiveClass string    `json:"active_class"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	AlertActive bool      `json:"alert_active"`
}

// Config holds debouncer configuration.
type Config struct {
	// Classes are the detection classes treated as hazards.
	Classes []string

	// Dwell is how long a hazard must be continuously present.
	Dwell time.Duration

	// MissTolerance is the number of consecutive absent frames tolerated
	// before the window resets. Zero resets on the first miss.
	MissTolerance int

	Logger *slog.Logger
}

// DefaultConfig returns the pothole policy.
func DefaultConfig() Config {
	return Config{
		Classes: []string{"pothole"},
		Dwell:   250 * time.Millisecond,
		Logger:  slog.Default(),
	}
}

// Debouncer tracks one hazard window. Update is called by the frame loop;
// Window and Active may be read from anywhere.
type Debouncer struct {
	cfg    Config
	sink   AlertSink
	logger *slog.Logger

	mu     sync.Mutex
	win    Window
	misses int
}

// New creates a debouncer. sink may be nil.
func New(cfg Config, sink AlertSink) *Debouncer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MissTolerance < 0 {
		cfg.MissTolerance = 0
	}
	return &Debouncer{
		cfg:    cfg,
		sink:   sink,
		logger: cfg.Logger.With("component", "hazard"),
	}
}

// Update feeds one frame's detections observed at now and reports whether
// the alert is active after it.
func (d *Debouncer) Update(r detection.Result, now time.Time) bool {
	d.mu.Lock()
	fired, alert, active := d.update(r, now)
	d.mu.Unlock()

	if fired {
		d.logger.Info("hazard alert", "class", alert.Class, "dwell_ms", alert.At.Sub(alert.FirstSeen).Milliseconds())
		if d.sink != nil {
			d.sink.Alert(alert)
		}
	}
	return active
}

func (d *Debouncer) update(r detection.Result, now time.Time) (bool, Alert, bool) {
	class, present := d.pick(r)

	if !present {
		if d.win.ActiveClass == "" {
			return false, Alert{}, false
		}
		d.misses++
		if d.misses > d.cfg.MissTolerance {
			if d.win.AlertActive {
				d.logger.Debug("hazard cleared", "class", d.win.ActiveClass)
			}
			d.win = Window{}
			d.misses = 0
		}
		return false, Alert{}, d.win.AlertActive
	}

	d.misses = 0
	if class != d.win.ActiveClass {
		d.win = Window{ActiveClass: class, FirstSeenAt: now}
	}

	if !d.win.AlertActive && now.Sub(d.win.FirstSeenAt) >= d.cfg.Dwell {
		d.win.AlertActive = true
		return true, Alert{Class: class, FirstSeen: d.win.FirstSeenAt, At: now}, true
	}
	return false, Alert{}, d.win.AlertActive
}

// pick chooses the hazard class to track. The active class wins while it
// is still present so two hazards in view do not restart the window.
func (d *Debouncer) pick(r detection.Result) (string, bool) {
	if d.win.ActiveClass != "" && r.Has(d.win.ActiveClass) {
		return d.win.ActiveClass, true
	}
	for _, c := range d.cfg.Classes {
		if r.Has(c) {
			return c, true
		}
	}
	return "", false
}

// Reset clears the window without raising anything.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.win = Window{}
	d.misses = 0
}

// Window returns a copy of the current window.
func (d *Debouncer) Window() Window {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.win
}

// Active reports whether the alert is currently active.
func (d *Debouncer) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.win.AlertActive
}
