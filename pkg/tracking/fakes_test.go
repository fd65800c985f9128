package tracking

import (
	"errors"
	"image"
	"testing"

	"github.com/teslashibe/go-occupancy/pkg/tracking/detection"
	"gocv.io/x/gocv"
)

// fakeDetector returns one scripted round per Detect call, then nothing
type fakeDetector struct {
	rounds [][]detection.Candidate
	calls  int
	err    error
}

func (d *fakeDetector) Detect(frame gocv.Mat) ([]detection.Candidate, error) {
	defer func() { d.calls++ }()
	if d.err != nil {
		return nil, d.err
	}
	if d.calls < len(d.rounds) {
		return d.rounds[d.calls], nil
	}
	return nil, nil
}

func (d *fakeDetector) Close() error { return nil }

// scriptedTracker replays boxes; a zero box means "lost"
type scriptedTracker struct {
	initOK bool
	boxes  []image.Rectangle
	next   int
	inits  int
	closed bool
}

func (s *scriptedTracker) Init(frame gocv.Mat, box image.Rectangle) bool {
	s.inits++
	return s.initOK
}

func (s *scriptedTracker) Update(frame gocv.Mat) (image.Rectangle, bool) {
	if s.next >= len(s.boxes) {
		return image.Rectangle{}, false
	}
	b := s.boxes[s.next]
	s.next++
	if b.Empty() {
		return image.Rectangle{}, false
	}
	return b, true
}

func (s *scriptedTracker) Close() error {
	s.closed = true
	return nil
}

// trackerQueue hands out prepared trackers in order, or fresh static ones
type trackerQueue struct {
	queue   []*scriptedTracker
	created []*scriptedTracker
	err     error
}

func (q *trackerQueue) factory(kind TrackerKind) (Tracker, error) {
	if q.err != nil {
		return nil, q.err
	}
	var t *scriptedTracker
	if len(q.queue) > 0 {
		t, q.queue = q.queue[0], q.queue[1:]
	} else {
		t = &scriptedTracker{initOK: true}
	}
	q.created = append(q.created, t)
	return t, nil
}

var errFakeDetector = errors.New("detector exploded")

// boxAt returns a 20x20 box centered on (x, y)
func boxAt(x, y int) image.Rectangle {
	return image.Rect(x-10, y-10, x+10, y+10)
}

func candidateAt(x, y int) detection.Candidate {
	return detection.Candidate{ClassID: 15, Confidence: 0.9, Box: boxAt(x, y)}
}

// newFrame returns a black BGR frame of cols x rows
func newFrame(t *testing.T, cols, rows int) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	return m
}

// quietConfig disables drawing so tests only exercise the counting logic
func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.DrawFlags = DrawNone
	return cfg
}
