// Package pipeline wires a frame source, the people counter, the occupancy
// ledger, metrics and the dashboard into one application.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/teslashibe/go-occupancy/internal/config"
	"github.com/teslashibe/go-occupancy/pkg/tracking"
	"github.com/teslashibe/go-occupancy/pkg/tracking/detection"
	"github.com/teslashibe/go-occupancy/pkg/video"
)

// Config holds all configuration for the application.
// Flag parsing is done in cmd/occupancy; this struct is data only.
type Config struct {
	Video     video.Config
	Detection detection.Config
	Tracking  tracking.Config

	// MaxCapacity raises an alert when occupancy reaches it. 0 disables.
	MaxCapacity int

	// DBPath is the SQLite file for sessions and crossings. Empty keeps
	// them in memory.
	DBPath string

	// WebhookURL receives capacity alerts as JSON when set.
	WebhookURL string

	// Dashboard. An empty WebPort disables it.
	WebPort   string
	StaticDir string
	Title     string

	// Publish status to the dashboard every StatusEvery frames
	StatusEvery int
}

// DefaultConfig returns defaults for a local camera and the SSD detector.
func DefaultConfig() Config {
	return Config{
		Video:       video.DefaultConfig(),
		Detection:   detection.DefaultConfig(),
		Tracking:    tracking.DefaultConfig(),
		DBPath:      config.DefaultDBPath,
		WebPort:     config.DefaultWebPort,
		Title:       "Occupancy",
		StatusEvery: 10,
	}
}

// LoadEnvConfig applies OCCUPANCY_* environment overrides.
// Call it before flag parsing so flags win.
func (c *Config) LoadEnvConfig() {
	c.Video.Kind = video.Kind(config.String("OCCUPANCY_SOURCE", string(c.Video.Kind)))
	c.Video.Path = config.String("OCCUPANCY_VIDEO_PATH", c.Video.Path)
	c.Video.Camera = config.Int("OCCUPANCY_CAMERA", c.Video.Camera)
	c.Video.CameraFPS = config.Int("OCCUPANCY_CAMERA_FPS", c.Video.CameraFPS)
	c.Video.URL = config.String("OCCUPANCY_FEED_URL", c.Video.URL)
	c.Video.JPEGQuality = config.Int("OCCUPANCY_JPEG_QUALITY", c.Video.JPEGQuality)

	c.Detection.Backend = detection.Backend(config.String("OCCUPANCY_DETECTOR", string(c.Detection.Backend)))
	c.Detection.PrototxtPath = config.String("OCCUPANCY_PROTOTXT", c.Detection.PrototxtPath)
	c.Detection.ModelPath = config.String("OCCUPANCY_MODEL", c.Detection.ModelPath)
	c.Detection.MinConfidence = config.Float("OCCUPANCY_MIN_CONFIDENCE", c.Detection.MinConfidence)

	if v := config.String("OCCUPANCY_DIRECTION", ""); v != "" {
		if d, err := tracking.ParseDirection(v); err == nil {
			c.Tracking.EntryDirection = d
		}
	}
	c.Tracking.DetectionInterval = config.Int("OCCUPANCY_DETECTION_INTERVAL", c.Tracking.DetectionInterval)
	c.Tracking.TrackerKind = tracking.TrackerKind(config.String("OCCUPANCY_TRACKER", string(c.Tracking.TrackerKind)))
	c.Tracking.HysteresisMargin = config.Float("OCCUPANCY_MARGIN", c.Tracking.HysteresisMargin)
	c.Tracking.DropLostEntities = config.Bool("OCCUPANCY_DROP_LOST", c.Tracking.DropLostEntities)
	c.Tracking.InheritStateIoU = config.Float("OCCUPANCY_INHERIT_IOU", c.Tracking.InheritStateIoU)

	c.MaxCapacity = config.Int("OCCUPANCY_MAX_CAPACITY", c.MaxCapacity)
	c.DBPath = config.String("OCCUPANCY_DB", c.DBPath)
	c.WebhookURL = config.String("OCCUPANCY_WEBHOOK_URL", c.WebhookURL)
	c.WebPort = config.String("OCCUPANCY_WEB_PORT", c.WebPort)
	c.StaticDir = config.String("OCCUPANCY_STATIC_DIR", c.StaticDir)
	c.Title = config.String("OCCUPANCY_TITLE", c.Title)
}

// Validate checks that the configuration can be started.
func (c *Config) Validate() error {
	if errs := c.Video.Validate(); len(errs) > 0 {
		return &ConfigError{Field: "Video", Message: "video: " + strings.Join(errs, "; ")}
	}
	switch c.Detection.Backend {
	case detection.BackendSSD, detection.BackendYOLO:
	default:
		return &ConfigError{Field: "Detection.Backend", Message: fmt.Sprintf("unknown detector %q (want ssd or yolo)", c.Detection.Backend)}
	}
	if err := c.Tracking.Validate(); err != nil {
		return &ConfigError{Field: "Tracking", Message: err.Error()}
	}
	if c.MaxCapacity < 0 {
		return &ConfigError{Field: "MaxCapacity", Message: "max capacity must be >= 0"}
	}
	if c.WebhookURL != "" && !strings.HasPrefix(c.WebhookURL, "http://") && !strings.HasPrefix(c.WebhookURL, "https://") {
		return &ConfigError{Field: "WebhookURL", Message: "webhook url must start with http:// or https://"}
	}
	if c.StatusEvery < 1 {
		return &ConfigError{Field: "StatusEvery", Message: "status interval must be >= 1"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
