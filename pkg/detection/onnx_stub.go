//go:build nocv

package detection

import (
	"context"
	"errors"
	"log/slog"
)

// ErrONNXUnavailable is returned when built without OpenCV.
var ErrONNXUnavailable = errors.New("detection: local ONNX detector requires OpenCV (built with nocv)")

// ONNXConfig holds local YOLOv8 detector configuration.
type ONNXConfig struct {
	ModelPath        string
	Labels           []string
	ConfidenceThresh float32
	NMSThresh        float32
	InputWidth       int
	InputHeight      int
	Logger           *slog.Logger
}

// DefaultONNXConfig returns defaults for a road-damage YOLOv8n export.
func DefaultONNXConfig() ONNXConfig {
	return ONNXConfig{
		ModelPath:        "models/road_damage_yolov8n.onnx",
		Labels:           []string{"crack", "pothole"},
		ConfidenceThresh: 0.4,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// ONNX is a stub for builds without OpenCV.
type ONNX struct{}

// NewONNX always fails without OpenCV.
func NewONNX(cfg ONNXConfig) (*ONNX, error) {
	return nil, ErrONNXUnavailable
}

// Detect implements Detector.
func (d *ONNX) Detect(ctx context.Context, jpeg []byte) ([]Detection, error) {
	return nil, ErrONNXUnavailable
}

// Close implements Detector.
func (d *ONNX) Close() error {
	return nil
}
