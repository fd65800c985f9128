package video

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-occupancy/internal/log"
	"gocv.io/x/gocv"
)

var (
	// ErrClosed is returned when running a source that has been closed
	ErrClosed = errors.New("video source closed")

	// ErrCameraLost is returned when a camera fails too many reads in a row
	ErrCameraLost = errors.New("camera stopped delivering frames")
)

// DefaultMaxReadFailures is how many consecutive failed reads a camera
// may have before the source gives up
const DefaultMaxReadFailures = 50

// frameReader is the part of gocv.VideoCapture a source reads from
type frameReader interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// CaptureSource reads frames from a video file or local camera with
// OpenCV and paces them at the stream's frame rate.
type CaptureSource struct {
	name    string
	capture frameReader
	fps     float64

	// maxReadFailures > 0 marks a live camera: failed reads are retried
	// until this many happen in a row. Files end on the first one.
	maxReadFailures int

	mu     sync.Mutex // Protects capture
	closed bool
	paused atomic.Bool
}

// OpenFile opens a video file. Frames are paced at the file's FPS,
// falling back to DefaultCameraFPS if the container does not report one.
func OpenFile(path string) (*CaptureSource, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open video %s: not readable", path)
	}

	fps := vc.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		fps = DefaultCameraFPS
	}

	log.Info("video file opened", "path", path, "fps", fps)
	return &CaptureSource{name: path, capture: vc, fps: fps}, nil
}

// OpenCamera opens a local camera by index and captures at fps
func OpenCamera(index, fps int) (*CaptureSource, error) {
	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open camera %d: not available", index)
	}
	if fps <= 0 {
		fps = DefaultCameraFPS
	}
	vc.Set(gocv.VideoCaptureFPS, float64(fps))

	log.Info("camera opened", "index", index, "fps", fps)
	return &CaptureSource{
		name:            fmt.Sprintf("camera:%d", index),
		capture:         vc,
		fps:             float64(fps),
		maxReadFailures: DefaultMaxReadFailures,
	}, nil
}

// FPS returns the pacing rate
func (s *CaptureSource) FPS() float64 {
	return s.fps
}

// Run reads frames until end of stream, ctx cancellation or an fn error.
// End of a file returns nil; a camera that keeps failing returns
// ErrCameraLost.
func (s *CaptureSource) Run(ctx context.Context, fn func(frame *gocv.Mat) error) error {
	frame := gocv.NewMat()
	defer frame.Close()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / s.fps))
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if s.paused.Load() {
			continue
		}

		ok, err := s.read(&frame)
		if err != nil {
			return err
		}
		if !ok {
			if s.maxReadFailures <= 0 {
				log.Info("end of stream", "source", s.name)
				return nil
			}
			failures++
			if failures == 1 {
				log.Warn("camera read failed, retrying", "source", s.name)
			}
			if failures >= s.maxReadFailures {
				return fmt.Errorf("%s: %w after %d reads", s.name, ErrCameraLost, failures)
			}
			continue
		}
		if failures > 0 {
			log.Info("camera recovered", "source", s.name, "failed_reads", failures)
			failures = 0
		}

		if err := fn(&frame); err != nil {
			return err
		}
	}
}

func (s *CaptureSource) read(frame *gocv.Mat) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if !s.capture.Read(frame) || frame.Empty() {
		return false, nil
	}
	return true, nil
}

// Pause stops delivering frames; the capture keeps its position
func (s *CaptureSource) Pause() {
	s.paused.Store(true)
}

// Resume continues delivering frames
func (s *CaptureSource) Resume() {
	s.paused.Store(false)
}

// Paused reports whether the source is paused
func (s *CaptureSource) Paused() bool {
	return s.paused.Load()
}

// Close releases the capture device
func (s *CaptureSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.capture.Close()
}
