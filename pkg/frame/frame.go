// Package frame holds the captured-image type shared by the camera, the
// detection cache, the compositor and the interaction machine.
package frame

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"sync"
	"time"
)

// ErrEmpty is returned when encoding a frame without an image.
var ErrEmpty = errors.New("frame: empty image")

// Frame is one captured image. The image is never mutated after capture;
// consumers that draw on it must copy first.
type Frame struct {
	Image      image.Image
	Seq        uint64
	CapturedAt time.Time

	enc *encodings
}

type encodings struct {
	mu  sync.Mutex
	byQ map[int][]byte
}

// New wraps img as a frame.
func New(img image.Image, seq uint64, at time.Time) Frame {
	return Frame{
		Image:      img,
		Seq:        seq,
		CapturedAt: at,
		enc:        &encodings{byQ: make(map[int][]byte)},
	}
}

// IsZero reports whether f carries no image.
func (f Frame) IsZero() bool {
	return f.Image == nil
}

// Size returns the image dimensions.
func (f Frame) Size() (int, int) {
	if f.Image == nil {
		return 0, 0
	}
	b := f.Image.Bounds()
	return b.Dx(), b.Dy()
}

// JPEG encodes the frame at the given quality. Results are memoised per
// quality so the detector, the vision call and the video feed share work.
func (f Frame) JPEG(quality int) ([]byte, error) {
	if f.Image == nil {
		return nil, ErrEmpty
	}
	if f.enc == nil {
		return EncodeJPEG(f.Image, quality)
	}

	f.enc.mu.Lock()
	defer f.enc.mu.Unlock()
	if b, ok := f.enc.byQ[quality]; ok {
		return b, nil
	}
	b, err := EncodeJPEG(f.Image, quality)
	if err != nil {
		return nil, err
	}
	f.enc.byQ[quality] = b
	return b, nil
}

// EncodeJPEG converts an image to JPEG bytes.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
