package video

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-occupancy/internal/log"
	"gocv.io/x/gocv"
)

// WebSocketSource receives JPEG frames as binary websocket messages,
// e.g. from a network camera bridge or another occupancy instance.
type WebSocketSource struct {
	url  string
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
	paused atomic.Bool
}

// DialWebSocket connects to a JPEG frame feed
func DialWebSocket(ctx context.Context, url string) (*WebSocketSource, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("frame feed connect failed: %w", err)
	}

	log.Info("frame feed connected", "url", url)
	return &WebSocketSource{url: url, conn: conn}, nil
}

// Run decodes every binary message as an image and passes it to fn.
// Text messages and undecodable payloads are skipped. A normal close
// from the remote end returns nil.
func (s *WebSocketSource) Run(ctx context.Context, fn func(frame *gocv.Mat) error) error {
	done := make(chan struct{})
	defer close(done)

	// Unblock ReadMessage on cancellation
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-done:
		}
	}()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info("frame feed closed", "url", s.url)
				return nil
			}
			if s.isClosed() {
				return ErrClosed
			}
			return fmt.Errorf("frame feed read: %w", err)
		}

		if msgType != websocket.BinaryMessage || s.paused.Load() {
			continue
		}

		if err := s.handle(data, fn); err != nil {
			return err
		}
	}
}

func (s *WebSocketSource) handle(data []byte, fn func(frame *gocv.Mat) error) error {
	frame, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		log.Warn("frame decode failed", "bytes", len(data), "error", err)
		return nil
	}
	defer frame.Close()

	if frame.Empty() {
		log.Warn("frame decode produced empty image", "bytes", len(data))
		return nil
	}
	return fn(&frame)
}

// Pause drops incoming frames until Resume
func (s *WebSocketSource) Pause() {
	s.paused.Store(true)
}

// Resume continues delivering frames
func (s *WebSocketSource) Resume() {
	s.paused.Store(false)
}

// Paused reports whether the source is paused
func (s *WebSocketSource) Paused() bool {
	return s.paused.Load()
}

func (s *WebSocketSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close sends a close frame and closes the connection
func (s *WebSocketSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil &&
		!errors.Is(err, websocket.ErrCloseSent) {
		log.Debug("close frame not sent", "error", err)
	}
	return s.conn.Close()
}
