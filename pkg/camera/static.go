package camera

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"
)

// Static is a Source that repeats one image at a fixed rate. It stands in
// for a camera in tests and when no device is present.
type Static struct {
	img      image.Image
	interval time.Duration

	mu     sync.Mutex
	last   time.Time
	closed bool
}

// NewStatic returns a source yielding img every interval.
func NewStatic(img image.Image, interval time.Duration) *Static {
	return &Static{img: img, interval: interval}
}

// Blank returns a black image of the given size.
func Blank(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
	return img
}

// Read waits out the interval and returns the image.
func (s *Static) Read(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	wait := s.interval - time.Since(s.last)
	s.mu.Unlock()

	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	s.last = time.Now()
	return s.img, nil
}

// Close stops the source.
func (s *Static) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

var _ Source = (*Static)(nil)
