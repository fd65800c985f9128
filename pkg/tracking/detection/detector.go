// Package detection provides person detection using pretrained networks
package detection

import (
	"errors"
	"image"

	"gocv.io/x/gocv"
)

// ErrModelNotFound is returned when a model file is missing at startup
var ErrModelNotFound = errors.New("model file not found")

// Candidate is a single detection kept after filtering
type Candidate struct {
	ClassID    int             // Network class ID
	Confidence float64         // Detection confidence (0-1)
	Box        image.Rectangle // Bounding box in frame pixels
}

// Center returns the center point of the candidate box
func (c Candidate) Center() image.Point {
	return image.Pt((c.Box.Min.X+c.Box.Max.X)/2, (c.Box.Min.Y+c.Box.Max.Y)/2)
}

// Area returns the area of the bounding box in pixels
func (c Candidate) Area() int {
	return c.Box.Dx() * c.Box.Dy()
}

// Detector is the interface for person detection backends
type Detector interface {
	// Detect finds people in the frame. An empty frame yields no candidates.
	Detect(frame gocv.Mat) ([]Candidate, error)

	// Close releases resources
	Close() error
}

// Backend names a detector implementation
type Backend string

const (
	BackendSSD  Backend = "ssd"
	BackendYOLO Backend = "yolo"
)

// Config holds detector configuration
type Config struct {
	Backend       Backend // ssd or yolo
	PrototxtPath  string  // Caffe network definition (ssd)
	ModelPath     string  // Caffe weights (ssd) or ONNX model (yolo)
	MinConfidence float64 // Minimum confidence (default 0.4)
	PersonClassID int     // Class ID for "person" (15 for MobileNet-SSD VOC)
	ScaleFactor   float64 // Blob scale factor
	Mean          float64 // Blob mean subtracted from every channel
}

// DefaultConfig returns production defaults for MobileNet-SSD
func DefaultConfig() Config {
	return Config{
		Backend:       BackendSSD,
		PrototxtPath:  "models/mobilenet_ssd/MobileNetSSD_deploy.prototxt",
		ModelPath:     "models/mobilenet_ssd/MobileNetSSD_deploy.caffemodel",
		MinConfidence: 0.4,
		PersonClassID: 15,
		ScaleFactor:   0.007843,
		Mean:          127.5,
	}
}

// New creates the detector selected by cfg.Backend.
// A model that cannot be loaded is reported as an error.
func New(cfg Config) (Detector, error) {
	switch cfg.Backend {
	case BackendYOLO:
		ycfg := DefaultYOLOConfig()
		if cfg.ModelPath != "" {
			ycfg.ModelPath = cfg.ModelPath
		}
		if cfg.MinConfidence > 0 {
			ycfg.ConfidenceThresh = float32(cfg.MinConfidence)
		}
		d, err := NewYOLO(ycfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		d, err := NewSSD(cfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

// ssdRecordSize is the number of values per MobileNet-SSD output record:
// [batchId, classId, confidence, left, top, right, bottom]
const ssdRecordSize = 7

// ParseSSD decodes a flattened 1x1xNx7 SSD output into candidates.
// Only records with confidence >= minConfidence and class == classID are
// kept. Coordinates are normalized and scaled to cols x rows, then
// clamped to the frame; records that end up empty are dropped.
func ParseSSD(data []float32, cols, rows int, minConfidence float64, classID int) []Candidate {
	var candidates []Candidate

	for i := 0; i+ssdRecordSize <= len(data); i += ssdRecordSize {
		confidence := float64(data[i+2])
		if confidence < minConfidence {
			continue
		}
		if int(data[i+1]) != classID {
			continue
		}

		box, ok := clampBox(
			int(data[i+3]*float32(cols)), int(data[i+4]*float32(rows)),
			int(data[i+5]*float32(cols)), int(data[i+6]*float32(rows)),
			image.Rect(0, 0, cols, rows),
		)
		if !ok {
			continue
		}

		candidates = append(candidates, Candidate{
			ClassID:    classID,
			Confidence: confidence,
			Box:        box,
		})
	}

	return candidates
}

// clampBox intersects the box with bounds. Inverted, empty and
// out-of-frame boxes report false; trackers reject them.
func clampBox(left, top, right, bottom int, bounds image.Rectangle) (image.Rectangle, bool) {
	if right <= left || bottom <= top {
		return image.Rectangle{}, false
	}
	box := image.Rect(left, top, right, bottom).Intersect(bounds)
	return box, !box.Empty()
}

// IoU returns the intersection over union of two boxes
func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	interArea := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}
