package tracking

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

// Tracker follows a single object between frames
type Tracker interface {
	// Init starts tracking box in frame. It reports false on failure.
	Init(frame gocv.Mat, box image.Rectangle) bool

	// Update locates the object in the next frame
	Update(frame gocv.Mat) (image.Rectangle, bool)

	// Close releases native resources
	Close() error
}

// TrackerKind selects a tracker implementation
type TrackerKind string

const (
	TrackerKCF  TrackerKind = "kcf"
	TrackerCSRT TrackerKind = "csrt"
	TrackerMIL  TrackerKind = "mil"
)

// TrackerFactory builds a fresh tracker of the given kind
type TrackerFactory func(kind TrackerKind) (Tracker, error)

// NewTracker is the default TrackerFactory backed by OpenCV.
// KCF is fast; CSRT is slower and more accurate; MIL ships with core OpenCV.
func NewTracker(kind TrackerKind) (Tracker, error) {
	switch kind {
	case TrackerKCF, "":
		return contrib.NewTrackerKCF(), nil
	case TrackerCSRT:
		return contrib.NewTrackerCSRT(), nil
	case TrackerMIL:
		return gocv.NewTrackerMIL(), nil
	default:
		return nil, fmt.Errorf("unknown tracker kind %q", kind)
	}
}
