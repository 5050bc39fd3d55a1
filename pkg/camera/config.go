// Package camera captures frames from a local webcam and holds the
// runtime-tunable capture settings.
package camera

import (
	"context"
	"errors"
	"image"
)

// Sentinel errors.
var (
	// ErrNoCamera is returned when no capture device could be opened.
	ErrNoCamera = errors.New("camera: no camera available")

	// ErrReadFailed is returned when the device yields no frame.
	ErrReadFailed = errors.New("camera: read failed")

	// ErrClosed is returned by Read after Close.
	ErrClosed = errors.New("camera: closed")
)

// Source produces camera images.
type Source interface {
	// Read blocks until the next image is available.
	Read(ctx context.Context) (image.Image, error)

	// Close releases the device.
	Close() error
}

// AutoDevice probes device indexes instead of opening a fixed one.
const AutoDevice = -1

// Config holds capture parameters. These can be modified via the camera
// API at runtime.
type Config struct {
	// Device is the capture index, or AutoDevice.
	Device int `json:"device"`

	// MaxProbe bounds the indexes tried by AutoDevice and List.
	MaxProbe int `json:"max_probe"`

	Width       int `json:"width"`
	Height      int `json:"height"`
	FPS         int `json:"fps"`
	JPEGQuality int `json:"jpeg_quality"`
}

// DefaultConfig returns 640x480 at 15 fps with auto-detected device.
func DefaultConfig() Config {
	return Config{
		Device:      AutoDevice,
		MaxProbe:    5,
		Width:       640,
		Height:      480,
		FPS:         15,
		JPEGQuality: 80,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errs []string

	if c.Device < AutoDevice {
		errs = append(errs, "device must be -1 (auto) or a capture index")
	}
	if c.MaxProbe < 1 || c.MaxProbe > 16 {
		errs = append(errs, "max_probe must be between 1 and 16")
	}
	if c.Width < 160 || c.Width > 3840 {
		errs = append(errs, "width must be between 160 and 3840")
	}
	if c.Height < 120 || c.Height > 2160 {
		errs = append(errs, "height must be between 120 and 2160")
	}
	if c.FPS < 1 || c.FPS > 60 {
		errs = append(errs, "fps must be between 1 and 60")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, "jpeg_quality must be between 1 and 100")
	}

	return errs
}

// Candidates returns the device indexes to try, in order.
func (c *Config) Candidates() []int {
	if c.Device != AutoDevice {
		return []int{c.Device}
	}
	n := c.MaxProbe
	if n < 1 {
		n = 1
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
