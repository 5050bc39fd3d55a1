//go:build !nocv

package detection

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// ONNXConfig holds local YOLOv8 detector configuration.
type ONNXConfig struct {
	ModelPath        string
	Labels           []string // class names indexed by class id
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
		Logger:           slog.Default(),
	}
}

// ONNX runs a YOLOv8 model locally with OpenCV DNN. It needs no network
// and serves as a fallback when no hosted API key is configured.
type ONNX struct {
	net       gocv.Net
	cfg       ONNXConfig
	mu        sync.Mutex
	inputSize image.Point
	logger    *slog.Logger
}

var _ Detector = (*ONNX)(nil)

// NewONNX loads the model at cfg.ModelPath.
func NewONNX(cfg ONNXConfig) (*ONNX, error) {
	if cfg.ModelPath == "" {
		return nil, ErrNoModel
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("detection: model file: %w", err)
	}
	if len(cfg.Labels) == 0 {
		return nil, fmt.Errorf("detection: labels required for %s", cfg.ModelPath)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("detection: failed to load model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &ONNX{
		net:       net,
		cfg:       cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
		logger:    cfg.Logger.With("component", "detection.onnx"),
	}, nil
}

// Detect implements Detector. Inference is CPU bound and not interruptible;
// ctx is only checked before starting.
func (d *ONNX) Detect(ctx context.Context, jpeg []byte) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("detection: decode image: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, ErrEmptyImage
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	dets := d.parseOutput(output, float32(img.Cols()), float32(img.Rows()))
	d.logger.Debug("detect complete", "count", len(dets))
	return dets, nil
}

// parseOutput decodes a [1, 4+classes, anchors] YOLOv8 tensor.
func (d *ONNX) parseOutput(output gocv.Mat, imgW, imgH float32) []Detection {
	// 3-D mats report -1 rows and cols; flatten to [4+classes, anchors].
	if sz := output.Size(); len(sz) == 3 {
		flat := output.Reshape(1, sz[1])
		defer flat.Close()
		output = flat
	}
	anchors := output.Cols()
	rows := output.Rows()
	if rows < 4+len(d.cfg.Labels) {
		d.logger.Warn("unexpected output shape", "rows", rows, "labels", len(d.cfg.Labels))
		return nil
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil
	}

	var boxes []image.Rectangle
	var scores []float32
	var classIDs []int

	sx := imgW / float32(d.cfg.InputWidth)
	sy := imgH / float32(d.cfg.InputHeight)

	for i := 0; i < anchors; i++ {
		best := float32(0)
		bestID := 0
		for c := 4; c < 4+len(d.cfg.Labels); c++ {
			if s := data[c*anchors+i]; s > best {
				best = s
				bestID = c - 4
			}
		}
		if best < d.cfg.ConfidenceThresh {
			continue
		}

		cx := data[0*anchors+i]
		cy := data[1*anchors+i]
		w := data[2*anchors+i]
		h := data[3*anchors+i]

		boxes = append(boxes, image.Rect(
			int((cx-w/2)*sx), int((cy-h/2)*sy),
			int((cx+w/2)*sx), int((cy+h/2)*sy),
		))
		scores = append(scores, best)
		classIDs = append(classIDs, bestID)
	}

	if len(boxes) == 0 {
		return nil
	}

	indices := gocv.NMSBoxes(boxes, scores, d.cfg.ConfidenceThresh, d.cfg.NMSThresh)
	dets := make([]Detection, 0, len(indices))
	for _, idx := range indices {
		b := boxes[idx]
		dets = append(dets, Detection{
			Class:      d.cfg.Labels[classIDs[idx]],
			Confidence: float64(scores[idx]),
			Box: Box{
				XMin: float64(b.Min.X),
				YMin: float64(b.Min.Y),
				XMax: float64(b.Max.X),
				YMax: float64(b.Max.Y),
			},
		})
	}
	return dets
}

// Close releases the network.
func (d *ONNX) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
