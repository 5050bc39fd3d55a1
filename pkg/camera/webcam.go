//go:build !nocv

package camera

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"
)

// Webcam captures from a local device through OpenCV.
type Webcam struct {
	cap    *gocv.VideoCapture
	mat    gocv.Mat
	device int
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// OpenWebcam opens the configured device, or the first index that opens
// and yields a frame when cfg.Device is AutoDevice.
func OpenWebcam(cfg Config, logger *slog.Logger) (*Webcam, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "camera")

	for _, idx := range cfg.Candidates() {
		vc, err := gocv.OpenVideoCapture(idx)
		if err != nil {
			logger.Debug("camera open failed", "device", idx, "error", err)
			continue
		}
		if !vc.IsOpened() {
			vc.Close()
			continue
		}
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
		if cfg.FPS > 0 {
			vc.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))
		}

		mat := gocv.NewMat()
		if ok := vc.Read(&mat); !ok || mat.Empty() {
			mat.Close()
			vc.Close()
			logger.Debug("camera yielded no frame", "device", idx)
			continue
		}

		logger.Info("camera opened",
			"device", idx,
			"width", mat.Cols(),
			"height", mat.Rows(),
		)
		return &Webcam{cap: vc, mat: mat, device: idx, logger: logger}, nil
	}

	return nil, fmt.Errorf("%w (tried %v)", ErrNoCamera, cfg.Candidates())
}

// Device returns the opened capture index.
func (w *Webcam) Device() int {
	return w.device
}

// Read captures the next frame. The device paces the caller.
func (w *Webcam) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}

	if ok := w.cap.Read(&w.mat); !ok || w.mat.Empty() {
		return nil, ErrReadFailed
	}
	img, err := w.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}

// Close releases the device.
func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.mat.Close()
	return w.cap.Close()
}

// List returns the indexes below max that open and yield a frame.
func List(max int) []int {
	var available []int
	for i := 0; i < max; i++ {
		vc, err := gocv.OpenVideoCapture(i)
		if err != nil {
			continue
		}
		if vc.IsOpened() {
			mat := gocv.NewMat()
			if vc.Read(&mat) && !mat.Empty() {
				available = append(available, i)
			}
			mat.Close()
		}
		vc.Close()
	}
	return available
}

var _ Source = (*Webcam)(nil)
