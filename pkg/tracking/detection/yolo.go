package detection

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/teslashibe/go-occupancy/internal/log"
	"gocv.io/x/gocv"
)

// YOLODetector uses YOLOv8 for person detection
type YOLODetector struct {
	net       gocv.Net
	config    YOLOConfig
	mu        sync.Mutex
	inputSize image.Point
}

// YOLOConfig holds YOLO detector configuration
type YOLOConfig struct {
	ModelPath        string
	ConfidenceThresh float32
	NMSThresh        float32
	InputWidth       int
	InputHeight      int
	PersonClassID    int // COCO "person"
}

// DefaultYOLOConfig returns production defaults for YOLOv8n
func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.4,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
		PersonClassID:    0,
	}
}

// NewYOLO creates a new YOLO person detector
func NewYOLO(cfg YOLOConfig) (*YOLODetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLODetector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Detect finds people in the frame
func (d *YOLODetector) Detect(frame gocv.Mat) ([]Candidate, error) {
	if frame.Empty() || frame.Rows() == 0 || frame.Cols() == 0 {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	blob := gocv.BlobFromImage(frame, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	output := d.net.Forward("")
	defer output.Close()

	// Output shape: [1, 84, 8400] - 84 = 4 bbox + 80 classes
	data, err := output.DataPtrFloat32()
	if err != nil {
		log.Warn("yolo output unreadable", "error", err)
		return nil, nil
	}

	sx := float32(frame.Cols()) / float32(d.config.InputWidth)
	sy := float32(frame.Rows()) / float32(d.config.InputHeight)
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	raw := decodeYOLOv8(data, output.Size(), d.config.PersonClassID, d.config.ConfidenceThresh, sx, sy, bounds)
	if len(raw) == 0 {
		return nil, nil
	}

	boxes := make([]image.Rectangle, len(raw))
	scores := make([]float32, len(raw))
	for i, c := range raw {
		boxes[i] = c.Box
		scores[i] = float32(c.Confidence)
	}

	indices := gocv.NMSBoxes(boxes, scores, d.config.ConfidenceThresh, d.config.NMSThresh)

	candidates := make([]Candidate, 0, len(indices))
	for _, idx := range indices {
		candidates = append(candidates, raw[idx])
	}

	log.Debug("yolo detection", "candidates", len(candidates))
	return candidates, nil
}

// decodeYOLOv8 reads person boxes out of a [1, 4+classes, anchors] tensor.
// A box is kept when the person score is the best class score and clears
// the threshold. sx and sy scale model input pixels to frame pixels and
// boxes are clamped to bounds.
func decodeYOLOv8(data []float32, shape []int, personClass int, thresh, sx, sy float32, bounds image.Rectangle) []Candidate {
	if len(shape) < 3 {
		return nil
	}
	attrs, anchors := shape[1], shape[2]
	if attrs < 5 || len(data) < attrs*anchors {
		return nil
	}

	var out []Candidate
	for i := 0; i < anchors; i++ {
		best, bestClass := float32(0), -1
		for c := 4; c < attrs; c++ {
			if s := data[c*anchors+i]; s > best {
				best, bestClass = s, c-4
			}
		}
		if bestClass != personClass || best < thresh {
			continue
		}

		cx := data[0*anchors+i]
		cy := data[1*anchors+i]
		w := data[2*anchors+i]
		h := data[3*anchors+i]

		box, ok := clampBox(
			int((cx-w/2)*sx), int((cy-h/2)*sy),
			int((cx+w/2)*sx), int((cy+h/2)*sy),
			bounds,
		)
		if !ok {
			continue
		}

		out = append(out, Candidate{
			ClassID:    personClass,
			Confidence: float64(best),
			Box:        box,
		})
	}
	return out
}

// Close releases the detector resources
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
