package tracking

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// DrawFlags selects which annotations are drawn on processed frames.
// Flags can be OR'd together.
type DrawFlags uint8

const (
	DrawBoundingBoxes DrawFlags = 1 << iota
	DrawCentroids
	DrawThresholds
	ShowStates
	ShowFrameNumber
	ShowFrameStatus

	DrawNone DrawFlags = 0
	DrawAll            = DrawBoundingBoxes | DrawCentroids | DrawThresholds |
		ShowStates | ShowFrameNumber | ShowFrameStatus
)

// Has reports whether every bit of flag is set
func (f DrawFlags) Has(flag DrawFlags) bool {
	return f&flag == flag
}

// Config holds all tunable parameters for the counter
type Config struct {
	EntryDirection Direction `json:"entry_direction" validate:"min=0,max=3"`
	DrawFlags      DrawFlags `json:"draw_flags" validate:"max=63"`

	// Detection cadence: the detector runs on every frame whose number is a
	// multiple of DetectionInterval, trackers run on the others.
	DetectionInterval int         `json:"detection_interval" validate:"min=1"`
	TrackerKind       TrackerKind `json:"tracker_kind" validate:"oneof=kcf csrt mil"`

	// Boundary
	HysteresisMargin float64 `json:"hysteresis_margin" validate:"gte=0,lt=0.5"`
	LegacyRightAxis  bool    `json:"legacy_right_axis"`

	// Drop entities whose tracker lost them instead of keeping the last box
	DropLostEntities bool `json:"drop_lost_entities"`

	// When > 0, a new entity takes the state of the previous entity it
	// overlaps best with IoU >= this value. 0 disables carry-over.
	InheritStateIoU float64 `json:"inherit_state_iou" validate:"gte=0,lte=1"`
}

// DefaultConfig returns the production configuration
func DefaultConfig() Config {
	return Config{
		EntryDirection:    DirectionUp,
		DrawFlags:         DrawAll,
		DetectionInterval: 30,
		TrackerKind:       TrackerKCF,
		HysteresisMargin:  DefaultMargin,
	}
}

var validate = validator.New()

// Validate checks field ranges
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid tracking config: %w", err)
	}
	return nil
}

// Boundary returns the boundary policy described by c
func (c Config) Boundary() Boundary {
	return Boundary{
		Direction:       c.EntryDirection,
		Margin:          c.HysteresisMargin,
		LegacyRightAxis: c.LegacyRightAxis,
	}
}
