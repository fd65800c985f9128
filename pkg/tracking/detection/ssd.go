package detection

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/teslashibe/go-occupancy/internal/log"
	"gocv.io/x/gocv"
)

// SSDDetector runs a MobileNet-SSD Caffe network and keeps person boxes
type SSDDetector struct {
	net    gocv.Net
	config Config
	mu     sync.Mutex // Protects inference
}

// NewSSD loads the Caffe model described by cfg
func NewSSD(cfg Config) (*SSDDetector, error) {
	for _, path := range []string{cfg.PrototxtPath, cfg.ModelPath} {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
	}

	net := gocv.ReadNetFromCaffe(cfg.PrototxtPath, cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load SSD model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &SSDDetector{
		net:    net,
		config: cfg,
	}, nil
}

// Detect runs a forward pass and returns person candidates in frame pixels
func (d *SSDDetector) Detect(frame gocv.Mat) ([]Candidate, error) {
	if frame.Empty() || frame.Rows() == 0 || frame.Cols() == 0 {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cols, rows := frame.Cols(), frame.Rows()

	blob := gocv.BlobFromImage(frame, d.config.ScaleFactor, image.Pt(cols, rows),
		gocv.NewScalar(d.config.Mean, d.config.Mean, d.config.Mean, 0), false, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	output := d.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		log.Warn("ssd output unreadable", "error", err)
		return nil, nil
	}

	candidates := ParseSSD(data, cols, rows, d.config.MinConfidence, d.config.PersonClassID)
	log.Debug("ssd detection", "candidates", len(candidates))

	return candidates, nil
}

// Close releases the network
func (d *SSDDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
