package video

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gocv.io/x/gocv"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Kind != KindCamera {
		t.Errorf("Expected camera source, got %q", cfg.Kind)
	}
	if cfg.CameraFPS != 24 {
		t.Errorf("Expected CameraFPS=24, got %d", cfg.CameraFPS)
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("default config should be valid: %v", errs)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"file without path", Config{Kind: KindFile, JPEGQuality: 80}, "path"},
		{"negative camera", Config{Kind: KindCamera, Camera: -1, CameraFPS: 24, JPEGQuality: 80}, "camera index"},
		{"camera fps too high", Config{Kind: KindCamera, CameraFPS: 500, JPEGQuality: 80}, "camera_fps"},
		{"http url", Config{Kind: KindWebSocket, URL: "http://cam", JPEGQuality: 80}, "url"},
		{"unknown kind", Config{Kind: "rtsp", JPEGQuality: 80}, "kind"},
		{"bad quality", Config{Kind: KindFile, Path: "a.mp4", JPEGQuality: 0}, "jpeg_quality"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			errs := tc.cfg.Validate()
			if len(errs) == 0 {
				t.Fatal("expected validation errors")
			}
			if !strings.Contains(strings.Join(errs, ";"), tc.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tc.wantErr, errs)
			}
		})
	}

	ok := Config{Kind: KindWebSocket, URL: "wss://cam.local/frames", JPEGQuality: 50}
	if errs := ok.Validate(); len(errs) != 0 {
		t.Errorf("valid websocket config rejected: %v", errs)
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	_, err := Open(context.Background(), Config{Kind: KindFile, JPEGQuality: 80})
	if err == nil || !strings.Contains(err.Error(), "invalid video config") {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestOpenFile_Missing(t *testing.T) {
	src, err := OpenFile("/nonexistent/clip.mp4")
	if err == nil {
		src.Close()
		t.Fatal("expected error for missing file")
	}
}

// scriptedReader plays back read outcomes, then fails forever
type scriptedReader struct {
	script []bool
	reads  int
	closed bool
}

func (r *scriptedReader) Read(m *gocv.Mat) bool {
	i := r.reads
	r.reads++
	if i >= len(r.script) || !r.script[i] {
		return false
	}
	frame := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer frame.Close()
	frame.CopyTo(m)
	return true
}

func (r *scriptedReader) Close() error {
	r.closed = true
	return nil
}

var errStop = errors.New("stop")

func TestCaptureSource_CameraRetriesFailedReads(t *testing.T) {
	reader := &scriptedReader{script: []bool{false, false, true, false, true}}
	src := &CaptureSource{name: "camera:test", capture: reader, fps: 1000, maxReadFailures: 5}

	frames := 0
	err := src.Run(context.Background(), func(frame *gocv.Mat) error {
		frames++
		if frames == 2 {
			return errStop
		}
		return nil
	})
	if !errors.Is(err, errStop) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if frames != 2 || reader.reads != 5 {
		t.Errorf("got %d frames over %d reads, want 2 over 5", frames, reader.reads)
	}
}

func TestCaptureSource_CameraLost(t *testing.T) {
	reader := &scriptedReader{}
	src := &CaptureSource{name: "camera:test", capture: reader, fps: 1000, maxReadFailures: 3}

	err := src.Run(context.Background(), func(frame *gocv.Mat) error {
		t.Error("no frame expected")
		return nil
	})
	if !errors.Is(err, ErrCameraLost) {
		t.Fatalf("expected ErrCameraLost, got %v", err)
	}
	if reader.reads != 3 {
		t.Errorf("expected 3 reads, got %d", reader.reads)
	}
}

func TestCaptureSource_FileEndsOnFailedRead(t *testing.T) {
	reader := &scriptedReader{script: []bool{true}}
	src := &CaptureSource{name: "clip.mp4", capture: reader, fps: 1000}

	frames := 0
	err := src.Run(context.Background(), func(frame *gocv.Mat) error {
		frames++
		return nil
	})
	if err != nil {
		t.Fatalf("end of file should return nil, got %v", err)
	}
	if frames != 1 {
		t.Errorf("expected 1 frame, got %d", frames)
	}

	if err := src.Close(); err != nil || !reader.closed {
		t.Errorf("Close: err=%v closed=%v", err, reader.closed)
	}
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	m := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer m.Close()
	data, err := EncodeJPEG(m, 80)
	if err != nil {
		t.Fatalf("EncodeJPEG: %v", err)
	}
	return data
}

func TestEncodeJPEG_Empty(t *testing.T) {
	m := gocv.NewMat()
	defer m.Close()
	if _, err := EncodeJPEG(m, 80); err == nil {
		t.Error("expected error for empty frame")
	}
}

// frameServer sends the given messages then closes normally
func frameServer(t *testing.T, messages [][]byte, kinds []int) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for i, msg := range messages {
			if err := conn.WriteMessage(kinds[i], msg); err != nil {
				return
			}
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
			time.Now().Add(time.Second))
		// Wait for the client's close reply
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketSource_Run(t *testing.T) {
	jpeg := testJPEG(t)
	srv := frameServer(t,
		[][]byte{jpeg, []byte("hello"), []byte("not an image"), jpeg},
		[]int{websocket.BinaryMessage, websocket.TextMessage, websocket.BinaryMessage, websocket.BinaryMessage},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	src, err := DialWebSocket(ctx, wsURL(srv))
	if err != nil {
		t.Fatalf("DialWebSocket: %v", err)
	}
	defer src.Close()

	var frames int
	err = src.Run(ctx, func(frame *gocv.Mat) error {
		frames++
		if frame.Cols() != 64 || frame.Rows() != 48 || frame.Channels() != 3 {
			t.Errorf("unexpected frame %dx%dx%d", frame.Cols(), frame.Rows(), frame.Channels())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if frames != 2 {
		t.Errorf("expected 2 decoded frames, got %d", frames)
	}
}

func TestWebSocketSource_CallbackError(t *testing.T) {
	jpeg := testJPEG(t)
	srv := frameServer(t, [][]byte{jpeg, jpeg}, []int{websocket.BinaryMessage, websocket.BinaryMessage})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	src, err := DialWebSocket(ctx, wsURL(srv))
	if err != nil {
		t.Fatalf("DialWebSocket: %v", err)
	}
	defer src.Close()

	stop := errors.New("stop")
	if err := src.Run(ctx, func(*gocv.Mat) error { return stop }); !errors.Is(err, stop) {
		t.Errorf("expected callback error, got %v", err)
	}
}

func TestWebSocketSource_Paused(t *testing.T) {
	jpeg := testJPEG(t)
	srv := frameServer(t, [][]byte{jpeg, jpeg}, []int{websocket.BinaryMessage, websocket.BinaryMessage})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	src, err := DialWebSocket(ctx, wsURL(srv))
	if err != nil {
		t.Fatalf("DialWebSocket: %v", err)
	}
	defer src.Close()

	src.Pause()
	if !src.Paused() {
		t.Fatal("Paused should report true")
	}

	var frames int
	if err := src.Run(ctx, func(*gocv.Mat) error { frames++; return nil }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if frames != 0 {
		t.Errorf("paused source delivered %d frames", frames)
	}
}

func TestDialWebSocket_Refused(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := DialWebSocket(ctx, "ws://127.0.0.1:1/frames"); err == nil {
		t.Error("expected dial error")
	}
}
