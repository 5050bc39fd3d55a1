//go:build nocv

package camera

import (
	"context"
	"errors"
	"image"
	"log/slog"
)

// ErrUnsupported is returned when built without OpenCV.
var ErrUnsupported = errors.New("camera: webcam capture requires OpenCV (built with nocv)")

// Webcam is a stub for builds without OpenCV.
type Webcam struct{}

// OpenWebcam always fails without OpenCV.
func OpenWebcam(cfg Config, logger *slog.Logger) (*Webcam, error) {
	return nil, errors.Join(ErrNoCamera, ErrUnsupported)
}

// Device returns -1.
func (w *Webcam) Device() int { return AutoDevice }

// Read implements Source.
func (w *Webcam) Read(ctx context.Context) (image.Image, error) {
	return nil, ErrUnsupported
}

// Close implements Source.
func (w *Webcam) Close() error { return nil }

// List returns no devices without OpenCV.
func List(max int) []int { return nil }

var _ Source = (*Webcam)(nil)
