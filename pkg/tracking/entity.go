package tracking

import (
	"image"

	"gocv.io/x/gocv"
)

// Entity is one detected person followed by its own tracker until the
// next detection round replaces it.
type Entity struct {
	tracker Tracker
	box     image.Rectangle
	state   State
	found   bool
	live    bool // tracker initialised and not closed
}

// NewEntity starts tracking box in frame. A nil tracker or a failed Init
// leaves the entity at its detection box with Found() == false.
func NewEntity(frame gocv.Mat, box image.Rectangle, t Tracker) *Entity {
	e := &Entity{
		tracker: t,
		box:     box,
		state:   StateUnknown,
	}
	if t != nil && t.Init(frame, box) {
		e.found = true
		e.live = true
	}
	return e
}

// Update advances the tracker. On loss the last box is kept.
func (e *Entity) Update(frame gocv.Mat) bool {
	if !e.live {
		e.found = false
		return false
	}

	box, ok := e.tracker.Update(frame)
	e.found = ok
	if ok {
		e.box = box
	}
	return ok
}

// Box returns the current bounding box
func (e *Entity) Box() image.Rectangle {
	return e.box
}

// Centroid returns the midpoint of the bounding box
func (e *Entity) Centroid() image.Point {
	return image.Pt((e.box.Min.X+e.box.Max.X)/2, (e.box.Min.Y+e.box.Max.Y)/2)
}

// State returns the boundary classification
func (e *Entity) State() State {
	return e.state
}

// SetState stores the boundary classification
func (e *Entity) SetState(s State) {
	e.state = s
}

// Found reports whether the last tracker update located the object
func (e *Entity) Found() bool {
	return e.found
}

// Close releases the tracker. Safe to call more than once.
func (e *Entity) Close() error {
	e.live = false
	if e.tracker == nil {
		return nil
	}
	err := e.tracker.Close()
	e.tracker = nil
	return err
}

// Info returns a copy of the entity's observable fields
func (e *Entity) Info() EntityInfo {
	return EntityInfo{
		Box:      e.box,
		Centroid: e.Centroid(),
		State:    e.state,
		Found:    e.found,
	}
}

// EntityInfo is a read-only view of an Entity
type EntityInfo struct {
	Box      image.Rectangle `json:"box"`
	Centroid image.Point     `json:"centroid"`
	State    State           `json:"state"`
	Found    bool            `json:"found"`
}
