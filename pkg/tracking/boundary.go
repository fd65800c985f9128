package tracking

import (
	"fmt"
	"image"
	"strings"
)

// DefaultMargin is the dead band on each side of the center line,
// as a fraction of the frame dimension along the entry axis.
const DefaultMargin = 0.1

// Direction is the side of the frame that counts as "inside"
type Direction int

const (
	DirectionUp Direction = iota
	DirectionDown
	DirectionLeft
	DirectionRight
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	case DirectionLeft:
		return "left"
	case DirectionRight:
		return "right"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection parses "up", "down", "left" or "right" (case-insensitive)
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return DirectionUp, nil
	case "down":
		return DirectionDown, nil
	case "left":
		return DirectionLeft, nil
	case "right":
		return DirectionRight, nil
	default:
		return 0, fmt.Errorf("unknown entry direction %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Direction) UnmarshalText(b []byte) error {
	parsed, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// State classifies an entity relative to the boundary
type State int

const (
	StateUnknown State = iota
	StateOutside
	StateInside
)

func (s State) String() string {
	switch s {
	case StateOutside:
		return "Outside"
	case StateInside:
		return "Inside"
	default:
		return "Unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event is a boundary crossing
type Event int

const (
	PersonEntered Event = iota + 1
	PersonExited
)

func (e Event) String() string {
	switch e {
	case PersonEntered:
		return "entered"
	case PersonExited:
		return "exited"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler
func (e Event) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// Boundary decides which side of the center line a point is on
type Boundary struct {
	Direction Direction
	Margin    float64 // Fraction of the frame dimension, 0.1 by default

	// LegacyRightAxis compares x against the vertical center for
	// DirectionRight, reproducing counts from older deployments.
	LegacyRightAxis bool
}

// IsInside reports whether centroid lies beyond the margin on the inside
// of the line for dir, using DefaultMargin.
func IsInside(centroid, frameSize image.Point, dir Direction) bool {
	return Boundary{Direction: dir, Margin: DefaultMargin}.IsInside(centroid, frameSize)
}

// IsInside reports whether centroid is inside. frameSize is (cols, rows).
// Points within the margin band count as outside.
func (b Boundary) IsInside(centroid, frameSize image.Point) bool {
	cols, rows := frameSize.X, frameSize.Y
	cx, cy := float64(cols/2), float64(rows/2)
	x, y := float64(centroid.X), float64(centroid.Y)

	switch b.Direction {
	case DirectionUp:
		return y < cy-b.Margin*float64(rows)
	case DirectionDown:
		return y > cy+b.Margin*float64(rows)
	case DirectionLeft:
		return x < cx-b.Margin*float64(cols)
	case DirectionRight:
		if b.LegacyRightAxis {
			return x > cy+b.Margin*float64(cols)
		}
		return x > cx+b.Margin*float64(cols)
	default:
		return false
	}
}

// Line returns the endpoints of the drawn threshold: horizontal through the
// middle row for Up/Down, vertical through the middle column for Left/Right.
func (b Boundary) Line(frameSize image.Point) (image.Point, image.Point) {
	cols, rows := frameSize.X, frameSize.Y
	if b.Direction == DirectionUp || b.Direction == DirectionDown {
		return image.Pt(0, rows/2), image.Pt(cols, rows/2)
	}
	return image.Pt(cols/2, 0), image.Pt(cols/2, rows)
}

// Transition returns the next state for an entity previously in prev.
// ok is true only for Outside->Inside (PersonEntered) and
// Inside->Outside (PersonExited). Leaving Unknown never emits.
func Transition(prev State, inside bool) (State, Event, bool) {
	if inside {
		if prev == StateOutside {
			return StateInside, PersonEntered, true
		}
		return StateInside, 0, false
	}
	if prev == StateInside {
		return StateOutside, PersonExited, true
	}
	return StateOutside, 0, false
}
