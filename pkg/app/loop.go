package app

import (
	"context"
	"errors"
	"time"

	"github.com/hatseye/hatseye/pkg/camera"
	"github.com/hatseye/hatseye/pkg/compositor"
	"github.com/hatseye/hatseye/pkg/detection"
	"github.com/hatseye/hatseye/pkg/frame"
	"github.com/hatseye/hatseye/pkg/hazard"
	"github.com/hatseye/hatseye/pkg/telemetry"
)

const (
	// readRetry is the pause after a failed camera read.
	readRetry = 100 * time.Millisecond

	// telemetryTick is how often telemetry is pushed to websocket clients
	// and the publisher.
	telemetryTick = time.Second

	blankWidth  = 640
	blankHeight = 480
)

// openCamera opens the device described by c and swaps it in. The old
// source is closed after the swap so a pending Read returns.
func (a *App) openCamera(ctx context.Context, c camera.Config) error {
	src, err := a.opts.openCamera(ctx, c, a.opts.logger)
	if err != nil {
		return err
	}
	device := c.Device
	if d, ok := src.(interface{ Device() int }); ok {
		device = d.Device()
	}
	a.swapSource(src)
	a.cameraLive.Store(true)
	a.device.Store(int64(device))
	a.logger.Info("camera opened", "device", device, "width", c.Width, "height", c.Height)
	return nil
}

// useBlank serves black frames so the feed and overlay keep running
// without a camera.
func (a *App) useBlank() {
	a.swapSource(camera.NewStatic(camera.Blank(blankWidth, blankHeight), 100*time.Millisecond))
	a.cameraLive.Store(false)
	a.device.Store(camera.AutoDevice)
}

func (a *App) swapSource(src camera.Source) {
	a.srcMu.Lock()
	old := a.source
	a.source = src
	a.srcMu.Unlock()
	if old != nil && old != src {
		old.Close()
	}
}

func (a *App) currentSource() camera.Source {
	a.srcMu.Lock()
	defer a.srcMu.Unlock()
	return a.source
}

// frameLoop reads the camera until ctx is done. Each frame is latched raw
// for the interaction machine, then annotated and published.
func (a *App) frameLoop(ctx context.Context) error {
	var seq uint64
	for {
		img, err := a.currentSource().Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !errors.Is(err, camera.ErrClosed) {
				a.logger.Debug("frame read failed", "error", err)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(readRetry):
			}
			continue
		}

		seq++
		f := frame.New(img, seq, time.Now())
		a.raw.Publish(f)
		a.processFrame(f)
	}
}

// processFrame runs detection and the hazard debouncers for f, then draws
// and publishes the overlay.
func (a *App) processFrame(f frame.Frame) {
	a.loopMu.Lock()
	var res detection.Result
	if a.cache != nil {
		res = a.cache.ObserveFrame(f)
	}
	a.debouncer.Update(res, f.CapturedAt)

	snap := a.link.Snapshot()
	if a.proximity != nil {
		var near detection.Result
		if snap != nil {
			near = hazard.ProximityResult(*snap, a.cfg.Hazard.ProximityCM, a.cfg.Hazard.ProximityClass)
		}
		a.proximity.Update(near, f.CapturedAt)
	}

	win := a.debouncer.Window()
	if !win.AlertActive && a.proximity != nil {
		win = a.proximity.Window()
	}
	a.loopMu.Unlock()

	a.metrics.SetHazardActive(win.AlertActive)

	out := compositor.Compose(f.Image, compositor.Input{
		Result:          res,
		Telemetry:       snap,
		TelemetryStatus: a.link.Status(),
		HideTelemetry:   !a.cfg.Telemetry.Enabled,
		Alert:           win.AlertActive,
		AlertClass:      win.ActiveClass,
	})
	a.server.PublishFrame(frame.New(out, f.Seq, f.CapturedAt))
	a.metrics.FrameProcessed()
}

// telemetryEvent is pushed to status websocket clients.
type telemetryEvent struct {
	Status   string              `json:"status"`
	Snapshot *telemetry.Snapshot `json:"snapshot,omitempty"`
}

// broadcastTelemetry pushes the latest snapshot to websocket clients and
// the publisher until ctx is done.
func (a *App) broadcastTelemetry(ctx context.Context) {
	if !a.cfg.Telemetry.Enabled {
		return
	}
	t := time.NewTicker(telemetryTick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		snap := a.link.Snapshot()
		a.server.PublishEvent("telemetry", telemetryEvent{
			Status:   a.link.Status().String(),
			Snapshot: snap,
		})
		if snap == nil {
			continue
		}
		if err := a.publisher.PublishTelemetry(ctx, *snap); err != nil && ctx.Err() == nil {
			a.logger.Debug("telemetry publish failed", "error", err)
		}
	}
}
