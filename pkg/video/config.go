// Package video provides frame sources for the counter: video files,
// local cameras and remote JPEG feeds over websocket.
package video

import (
	"context"
	"fmt"
	"strings"

	"gocv.io/x/gocv"
)

// Kind selects a frame source
type Kind string

const (
	KindFile      Kind = "file"
	KindCamera    Kind = "camera"
	KindWebSocket Kind = "websocket"
)

// DefaultCameraFPS is the capture rate for live cameras
const DefaultCameraFPS = 24

// Config describes where frames come from.
// It can be loaded from flags or env and validated before opening.
type Config struct {
	Kind Kind `json:"kind"`

	// File
	Path string `json:"path"`

	// Camera
	Camera    int `json:"camera"`     // Device index
	CameraFPS int `json:"camera_fps"` // Capture rate

	// WebSocket
	URL string `json:"url"` // ws:// or wss:// endpoint sending binary JPEG frames

	// Dashboard stream
	JPEGQuality int `json:"jpeg_quality"` // 1-100
}

// DefaultConfig reads the first local camera at 24 FPS
func DefaultConfig() Config {
	return Config{
		Kind:        KindCamera,
		Camera:      0,
		CameraFPS:   DefaultCameraFPS,
		JPEGQuality: 80,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	switch c.Kind {
	case KindFile:
		if c.Path == "" {
			errors = append(errors, "path is required for file sources")
		}
	case KindCamera:
		if c.Camera < 0 {
			errors = append(errors, "camera index must be >= 0")
		}
		if c.CameraFPS < 1 || c.CameraFPS > 120 {
			errors = append(errors, "camera_fps must be between 1 and 120")
		}
	case KindWebSocket:
		if !strings.HasPrefix(c.URL, "ws://") && !strings.HasPrefix(c.URL, "wss://") {
			errors = append(errors, "url must start with ws:// or wss://")
		}
	default:
		errors = append(errors, "kind must be file, camera, or websocket")
	}

	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errors = append(errors, "jpeg_quality must be between 1 and 100")
	}

	return errors
}

// Source produces BGR frames until the stream ends or ctx is cancelled
type Source interface {
	// Run calls fn for every frame. The Mat is reused after fn returns.
	// A non-nil error from fn stops the source and is returned.
	Run(ctx context.Context, fn func(frame *gocv.Mat) error) error

	// Pause drops frames until Resume is called
	Pause()
	Resume()
	Paused() bool

	Close() error
}

// Open validates cfg and opens the matching source
func Open(ctx context.Context, cfg Config) (Source, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid video config: %s", strings.Join(errs, "; "))
	}

	switch cfg.Kind {
	case KindFile:
		s, err := OpenFile(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindCamera:
		s, err := OpenCamera(cfg.Camera, cfg.CameraFPS)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := DialWebSocket(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
