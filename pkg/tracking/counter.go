// Package tracking counts people crossing a line in a video stream.
// A detector runs every DetectionInterval frames and per-person visual
// trackers follow the detections in between.
package tracking

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/teslashibe/go-occupancy/internal/log"
	"github.com/teslashibe/go-occupancy/pkg/tracking/detection"
	"gocv.io/x/gocv"
)

var (
	// ErrInvalidFrame is returned for empty, zero-sized or non-BGR frames
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrNoDetector is returned when a Counter is built without a detector
	ErrNoDetector = errors.New("no detector")
)

// Status describes what the counter did with a frame
type Status string

const (
	StatusWaiting   Status = "Waiting"
	StatusDetecting Status = "Detecting"
	StatusTracking  Status = "Tracking"
)

// Result is the outcome of one processed frame
type Result struct {
	FrameNumber       uint64        `json:"frame_number"`
	Status            Status        `json:"status"`
	Events            []Event       `json:"events"`
	Entities          []EntityInfo  `json:"entities"`
	DetectionDuration time.Duration `json:"detection_duration"` // zero on tracking frames
}

// Snapshot is a consistent view of the counter between frames
type Snapshot struct {
	FrameNumber uint64       `json:"frame_number"` // next frame to process
	Status      Status       `json:"status"`       // status of the last frame
	Entities    []EntityInfo `json:"entities"`
	Config      Config       `json:"config"`
}

// Counter turns frames into entry and exit events
type Counter struct {
	frameMu sync.Mutex // Serialises ProcessFrame

	mu          sync.Mutex // Protects the fields below
	config      Config
	detector    detection.Detector
	newTracker  TrackerFactory
	entities    []*Entity
	frameNumber uint64
	lastStatus  Status
}

// NewCounter creates a counter. factory may be nil to use OpenCV trackers.
// The detector is owned by the caller.
func NewCounter(cfg Config, detector detection.Detector, factory TrackerFactory) (*Counter, error) {
	if detector == nil {
		return nil, ErrNoDetector
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		factory = NewTracker
	}

	return &Counter{
		config:     cfg,
		detector:   detector,
		newTracker: factory,
		lastStatus: StatusWaiting,
	}, nil
}

// ProcessFrame runs detection or tracking on frame, classifies every
// entity against the boundary and draws the enabled annotations in place.
// Calls are serialised. The detector runs without holding the state lock,
// so Snapshot and Config stay responsive during a forward pass.
func (c *Counter) ProcessFrame(frame *gocv.Mat) (Result, error) {
	if !validFrame(frame) {
		return Result{}, ErrInvalidFrame
	}

	c.frameMu.Lock()
	defer c.frameMu.Unlock()

	c.mu.Lock()
	detecting := c.frameNumber%uint64(c.config.DetectionInterval) == 0
	frameNumber := c.frameNumber
	c.mu.Unlock()

	var (
		candidates []detection.Candidate
		elapsed    time.Duration
	)
	if detecting {
		start := time.Now()
		candidates = c.runDetector(*frame, frameNumber)
		elapsed = time.Since(start)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// A Reset or Reconfigure during detection leaves frameNumber at zero,
	// which is itself a detection frame, so the candidates still apply.
	cfg := c.config
	frameSize := image.Pt(frame.Cols(), frame.Rows())
	result := Result{
		FrameNumber: c.frameNumber,
		Status:      StatusWaiting,
	}

	if detecting {
		result.Status = StatusDetecting
		result.DetectionDuration = elapsed
		c.replaceEntities(*frame, cfg, candidates)
	} else {
		if len(c.entities) > 0 {
			result.Status = StatusTracking
		}
		c.track(*frame, cfg)
	}

	boundary := cfg.Boundary()
	for _, e := range c.entities {
		next, ev, ok := Transition(e.State(), boundary.IsInside(e.Centroid(), frameSize))
		e.SetState(next)
		if ok {
			result.Events = append(result.Events, ev)
			log.Info("person crossed", "frame", c.frameNumber, "event", ev.String())
		}
	}

	result.Entities = c.infoLocked()

	if cfg.DrawFlags != DrawNone {
		annotate(frame, cfg, c.frameNumber, result.Status, result.Entities)
	}

	c.lastStatus = result.Status
	c.frameNumber++

	return result, nil
}

// runDetector calls the detector; a failure counts as an empty round
func (c *Counter) runDetector(frame gocv.Mat, frameNumber uint64) []detection.Candidate {
	candidates, err := c.detector.Detect(frame)
	if err != nil {
		log.Warn("detection failed", "frame", frameNumber, "error", err)
		return nil
	}
	return candidates
}

// replaceEntities swaps the entity set for one entity per candidate
func (c *Counter) replaceEntities(frame gocv.Mat, cfg Config, candidates []detection.Candidate) {
	next := make([]*Entity, 0, len(candidates))
	for _, cand := range candidates {
		t, err := c.newTracker(cfg.TrackerKind)
		if err != nil {
			log.Warn("tracker unavailable", "kind", cfg.TrackerKind, "error", err)
			t = nil
		}
		e := NewEntity(frame, cand.Box, t)
		if !e.Found() {
			log.Debug("tracker init failed", "frame", c.frameNumber, "box", cand.Box)
		}
		next = append(next, e)
	}

	if cfg.InheritStateIoU > 0 {
		inheritStates(c.entities, next, cfg.InheritStateIoU)
	}

	closeEntities(c.entities)
	c.entities = next

	log.Debug("detection round", "frame", c.frameNumber, "entities", len(next))
}

// track updates every entity and optionally drops the lost ones
func (c *Counter) track(frame gocv.Mat, cfg Config) {
	for _, e := range c.entities {
		e.Update(frame)
	}

	if !cfg.DropLostEntities {
		return
	}

	kept := c.entities[:0]
	for _, e := range c.entities {
		if e.Found() {
			kept = append(kept, e)
			continue
		}
		if err := e.Close(); err != nil {
			log.Warn("tracker close failed", "error", err)
		}
	}
	for i := len(kept); i < len(c.entities); i++ {
		c.entities[i] = nil
	}
	c.entities = kept
}

// inheritStates copies the state of the best-overlapping previous entity
// onto each new one. Matching is greedy and one-to-one.
func inheritStates(prev, next []*Entity, minIoU float64) {
	used := make([]bool, len(prev))
	for _, n := range next {
		best, bestIoU := -1, minIoU
		for i, p := range prev {
			if used[i] {
				continue
			}
			if iou := detection.IoU(p.Box(), n.Box()); iou >= bestIoU {
				best, bestIoU = i, iou
			}
		}
		if best >= 0 {
			used[best] = true
			n.SetState(prev[best].State())
		}
	}
}

// Reset forgets all entities and restarts frame numbering, so the next
// frame is a detection frame.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Counter) resetLocked() {
	closeEntities(c.entities)
	c.entities = nil
	c.frameNumber = 0
	c.lastStatus = StatusWaiting
}

// Reconfigure applies cfg from the next frame. Changing the detection
// interval or the tracker kind resets the counter.
func (c *Counter) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cfg.DetectionInterval != c.config.DetectionInterval || cfg.TrackerKind != c.config.TrackerKind {
		log.Info("tracking reset by reconfigure",
			"interval", cfg.DetectionInterval, "tracker", cfg.TrackerKind)
		c.resetLocked()
	}
	c.config = cfg
	return nil
}

// Config returns the active configuration
func (c *Counter) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// Snapshot returns the current entities and frame position
func (c *Counter) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		FrameNumber: c.frameNumber,
		Status:      c.lastStatus,
		Entities:    c.infoLocked(),
		Config:      c.config,
	}
}

// Close releases every tracker. The detector is not closed.
func (c *Counter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := closeEntities(c.entities)
	c.entities = nil
	return err
}

func (c *Counter) infoLocked() []EntityInfo {
	infos := make([]EntityInfo, len(c.entities))
	for i, e := range c.entities {
		infos[i] = e.Info()
	}
	return infos
}

func closeEntities(entities []*Entity) error {
	var errs []error
	for _, e := range entities {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close trackers: %w", errors.Join(errs...))
	}
	return nil
}

func validFrame(frame *gocv.Mat) bool {
	if frame == nil || frame.Empty() {
		return false
	}
	return frame.Rows() > 0 && frame.Cols() > 0 && frame.Channels() == 3
}
