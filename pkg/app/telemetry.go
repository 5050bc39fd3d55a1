package app

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hatseye/hatseye/pkg/telemetry"
	"github.com/hatseye/hatseye/pkg/web"
)

// reopenInterval is the pause between attempts to find the device once a
// reader has given up.
const reopenInterval = 10 * time.Second

// telemetryLink keeps a telemetry.Reader open for the life of the app. The
// device may come and go; readers see Unavailable while none is open.
type telemetryLink struct {
	cfg    telemetry.Config
	logger *slog.Logger
	reader atomic.Pointer[telemetry.Reader]
	closed atomic.Bool
	retry  time.Duration
}

var _ web.Telemetry = (*telemetryLink)(nil)

func (a *App) telemetryConfig() telemetry.Config {
	tc := a.cfg.Telemetry
	cfg := telemetry.DefaultConfig()
	cfg.Port = tc.Port
	cfg.Baud = tc.Baud
	cfg.Sensors = tc.Sensors
	cfg.MaxIntensity = tc.MaxIntensity
	setDuration(&cfg.ProbeTimeout, tc.ProbeTimeout)
	setDuration(&cfg.ReadTimeout, tc.ReadTimeout)
	setDuration(&cfg.LinkTimeout, tc.LinkTimeout)
	setDuration(&cfg.ReconnectBackoff, tc.ReconnectBackoff)
	setDuration(&cfg.MaxBackoff, tc.MaxBackoff)
	if tc.ReconnectAttempts > 0 {
		cfg.ReconnectAttempts = tc.ReconnectAttempts
	}
	if a.opts.opener != nil {
		cfg.Opener = a.opts.opener
	}
	if a.opts.lister != nil {
		cfg.Lister = a.opts.lister
	}
	cfg.OnStatus = a.metrics.TelemetryStatus
	cfg.OnFrame = a.metrics.TelemetryFrame
	cfg.Logger = a.opts.logger
	return cfg
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func newTelemetryLink(cfg telemetry.Config, logger *slog.Logger) *telemetryLink {
	return &telemetryLink{
		cfg:    cfg,
		logger: logger.With("component", "app.telemetry"),
		retry:  reopenInterval,
	}
}

// Run opens the device and reads it until ctx is done, reopening after
// the reader gives up. Failures are logged and never returned.
func (l *telemetryLink) Run(ctx context.Context) {
	for {
		r, err := telemetry.Open(ctx, l.cfg)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Warn("telemetry unavailable, sensor display hidden", "port", l.cfg.Port, "error", err)
		} else {
			l.logger.Info("telemetry linked", "port", r.Path())
			l.reader.Store(r)
			err = r.Run(ctx)
			l.reader.Store(nil)
			r.Close()
			if ctx.Err() != nil || l.closed.Load() {
				return
			}
			l.logger.Warn("telemetry reader stopped", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.retry):
		}
	}
}

// Poll implements web.Telemetry.
func (l *telemetryLink) Poll() (telemetry.Snapshot, error) {
	if r := l.reader.Load(); r != nil {
		return r.Poll()
	}
	return telemetry.Snapshot{}, telemetry.ErrDeviceUnavailable
}

// Status implements web.Telemetry.
func (l *telemetryLink) Status() telemetry.Status {
	if r := l.reader.Load(); r != nil {
		return r.Status()
	}
	return telemetry.StatusUnavailable
}

// Send implements web.Telemetry.
func (l *telemetryLink) Send(command string) error {
	if r := l.reader.Load(); r != nil {
		return r.Send(command)
	}
	return telemetry.ErrDeviceUnavailable
}

// Path implements web.Telemetry.
func (l *telemetryLink) Path() string {
	if r := l.reader.Load(); r != nil {
		return r.Path()
	}
	return ""
}

// Snapshot returns the latest snapshot, or nil when there is none to show.
func (l *telemetryLink) Snapshot() *telemetry.Snapshot {
	s, err := l.Poll()
	if err != nil {
		return nil
	}
	return &s
}

func (l *telemetryLink) Close() {
	l.closed.Store(true)
	if r := l.reader.Load(); r != nil {
		r.Close()
	}
}

