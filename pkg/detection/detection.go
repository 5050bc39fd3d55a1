// Package detection provides object detection for the hazard pipeline:
// result types, detector backends and the frame-strided detection cache.
package detection

import (
	"encoding/json"
	"time"
)

// Box is an axis-aligned bounding box. Coordinates are pixels unless
// Normalized is set, in which case they are fractions of the frame size.
type Box struct {
	XMin       float64 `json:"x_min"`
	YMin       float64 `json:"y_min"`
	XMax       float64 `json:"x_max"`
	YMax       float64 `json:"y_max"`
	Normalized bool    `json:"normalized,omitempty"`
}

// Width returns the box width.
func (b Box) Width() float64 {
	return b.XMax - b.XMin
}

// Height returns the box height.
func (b Box) Height() float64 {
	return b.YMax - b.YMin
}

// Pixels returns the box in pixel coordinates for a w×h frame.
func (b Box) Pixels(w, h int) Box {
	if !b.Normalized {
		return b
	}
	return Box{
		XMin: b.XMin * float64(w),
		YMin: b.YMin * float64(h),
		XMax: b.XMax * float64(w),
		YMax: b.YMax * float64(h),
	}
}

// FromCenter builds a pixel box from centre coordinates and size.
func FromCenter(cx, cy, w, h float64) Box {
	return Box{
		XMin: cx - w/2,
		YMin: cy - h/2,
		XMax: cx + w/2,
		YMax: cy + h/2,
	}
}

// Detection is one detected object.
type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Result is the immutable outcome of one detection call.
type Result struct {
	dets       []Detection
	capturedAt time.Time
}

// NewResult copies dets into a new Result.
func NewResult(dets []Detection, capturedAt time.Time) Result {
	var cp []Detection
	if len(dets) > 0 {
		cp = make([]Detection, len(dets))
		copy(cp, dets)
	}
	return Result{dets: cp, capturedAt: capturedAt}
}

// Detections returns a copy of the detections.
func (r Result) Detections() []Detection {
	if len(r.dets) == 0 {
		return nil
	}
	cp := make([]Detection, len(r.dets))
	copy(cp, r.dets)
	return cp
}

// Len returns the number of detections.
func (r Result) Len() int {
	return len(r.dets)
}

// CapturedAt returns the capture time of the frame the result belongs to.
func (r Result) CapturedAt() time.Time {
	return r.capturedAt
}

// IsEmpty reports whether the result has no detections.
func (r Result) IsEmpty() bool {
	return len(r.dets) == 0
}

// Has reports whether any detection has the given class.
func (r Result) Has(class string) bool {
	for _, d := range r.dets {
		if d.Class == class {
			return true
		}
	}
	return false
}

// Classes returns the detected class names in order, without duplicates.
func (r Result) Classes() []string {
	var out []string
	seen := make(map[string]bool)
	for _, d := range r.dets {
		if !seen[d.Class] {
			seen[d.Class] = true
			out = append(out, d.Class)
		}
	}
	return out
}

type resultJSON struct {
	Detections []Detection `json:"detections"`
	CapturedAt time.Time   `json:"captured_at"`
	Count      int         `json:"count"`
}

// MarshalJSON implements json.Marshaler.
func (r Result) MarshalJSON() ([]byte, error) {
	dets := r.dets
	if dets == nil {
		dets = []Detection{}
	}
	return json.Marshal(resultJSON{Detections: dets, CapturedAt: r.capturedAt, Count: len(dets)})
}
