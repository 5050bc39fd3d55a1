package detection

import "context"

// Detector is the interface for detection backends.
type Detector interface {
	// Detect finds objects in a JPEG image. Boxes are in pixel
	// coordinates of the submitted image unless marked Normalized.
	Detect(ctx context.Context, jpeg []byte) ([]Detection, error)

	// Close releases resources.
	Close() error
}

// FilterClasses keeps detections whose class is in classes.
func FilterClasses(dets []Detection, classes ...string) []Detection {
	want := make(map[string]bool, len(classes))
	for _, c := range classes {
		want[c] = true
	}
	var out []Detection
	for _, d := range dets {
		if want[d.Class] {
			out = append(out, d)
		}
	}
	return out
}

// MinConfidence keeps detections at or above threshold.
func MinConfidence(dets []Detection, threshold float64) []Detection {
	var out []Detection
	for _, d := range dets {
		if d.Confidence >= threshold {
			out = append(out, d)
		}
	}
	return out
}
