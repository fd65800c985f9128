package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teslashibe/go-occupancy/pkg/occupancy"
	"github.com/teslashibe/go-occupancy/pkg/tracking"
	"github.com/teslashibe/go-occupancy/pkg/tracking/detection"
	"gocv.io/x/gocv"
)

// fakeSource plays frames of the given sizes; a zero size is an empty Mat
type fakeSource struct {
	sizes  []image.Point
	paused atomic.Bool
	closed atomic.Bool
	err    error
}

func framesOf(n, cols, rows int) *fakeSource {
	s := &fakeSource{}
	for range n {
		s.sizes = append(s.sizes, image.Pt(cols, rows))
	}
	return s
}

func (s *fakeSource) Run(ctx context.Context, fn func(frame *gocv.Mat) error) error {
	for _, size := range s.sizes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.paused.Load() {
			continue
		}
		frame := gocv.NewMat()
		if size != (image.Point{}) {
			frame.Close()
			frame = gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV8UC3)
		}
		err := fn(&frame)
		frame.Close()
		if err != nil {
			return err
		}
	}
	return s.err
}

func (s *fakeSource) Pause()       { s.paused.Store(true) }
func (s *fakeSource) Resume()      { s.paused.Store(false) }
func (s *fakeSource) Paused() bool { return s.paused.Load() }
func (s *fakeSource) Close() error { s.closed.Store(true); return nil }

// fakeDetector finds the scripted candidates on its first call only
type fakeDetector struct {
	first  []detection.Candidate
	calls  int
	closed bool
}

func (d *fakeDetector) Detect(gocv.Mat) ([]detection.Candidate, error) {
	defer func() { d.calls++ }()
	if d.calls == 0 {
		return d.first, nil
	}
	return nil, nil
}

func (d *fakeDetector) Close() error { d.closed = true; return nil }

// pathTracker walks through boxes and then stays on the last one
type pathTracker struct {
	boxes []image.Rectangle
	next  int
}

func (p *pathTracker) Init(gocv.Mat, image.Rectangle) bool { return true }

func (p *pathTracker) Update(gocv.Mat) (image.Rectangle, bool) {
	b := p.boxes[min(p.next, len(p.boxes)-1)]
	p.next++
	return b, true
}

func (p *pathTracker) Close() error { return nil }

func boxAt(x, y int) image.Rectangle {
	return image.Rect(x-10, y-10, x+10, y+10)
}

// walkerFactory hands every entity a tracker moving down through the center
func walkerFactory(tracking.TrackerKind) (tracking.Tracker, error) {
	return &pathTracker{boxes: []image.Rectangle{boxAt(100, 90), boxAt(100, 130)}}, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DBPath = ""
	cfg.WebPort = ""
	cfg.Tracking.EntryDirection = tracking.DirectionDown
	cfg.Tracking.DrawFlags = tracking.DrawNone
	return cfg
}

func newTestApp(t *testing.T, cfg Config, src *fakeSource, opts ...Option) (*App, *fakeDetector) {
	t.Helper()
	det := &fakeDetector{first: []detection.Candidate{{ClassID: 15, Confidence: 0.9, Box: boxAt(100, 50)}}}
	opts = append([]Option{
		WithDetector(det),
		WithSource(src),
		WithTrackerFactory(walkerFactory),
	}, opts...)

	a, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background()))
	t.Cleanup(a.Shutdown)
	return a, det
}

func scrapeMetrics(t *testing.T, a *App) string {
	t.Helper()
	rec := httptest.NewRecorder()
	a.Metrics().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRun_CountsCrossing(t *testing.T) {
	store := occupancy.NewMemoryStore()
	cfg := testConfig()
	cfg.MaxCapacity = 1
	a, det := newTestApp(t, cfg, framesOf(5, 200, 200), WithStore(store))

	require.NoError(t, a.Run(context.Background()))

	assert.Equal(t, 1, det.calls, "interval 30 detects once in 5 frames")
	assert.Equal(t, 1, a.Ledger().Occupancy())
	assert.Equal(t, uint64(5), a.Metrics().FramesProcessed.Load())

	events, err := store.Events(context.Background(), a.Ledger().Session().ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, tracking.PersonEntered, events[0].Kind)

	text := scrapeMetrics(t, a)
	assert.Contains(t, text, "occupancy_current 1")
	assert.Contains(t, text, "occupancy_capacity_alerts_total 1")
	assert.Contains(t, text, `occupancy_crossings_total{event="entered"} 1`)
}

// alertSink records the alerts POSTed to a webhook
func alertSink(t *testing.T) (*httptest.Server, func() []occupancy.Alert) {
	t.Helper()
	var (
		mu     sync.Mutex
		alerts []occupancy.Alert
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var a occupancy.Alert
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		alerts = append(alerts, a)
		mu.Unlock()
	}))
	t.Cleanup(srv.Close)
	return srv, func() []occupancy.Alert {
		mu.Lock()
		defer mu.Unlock()
		return append([]occupancy.Alert(nil), alerts...)
	}
}

func testContact(first string, role occupancy.Role) occupancy.Contact {
	return occupancy.Contact{
		FirstName:   first,
		LastName:    "Lee",
		Email:       first + "@example.com",
		Phone:       "555-0100",
		Role:        role,
		PreferEmail: true,
	}
}

func TestRun_CapacityAlertAddressesContacts(t *testing.T) {
	ctx := context.Background()
	srv, received := alertSink(t)
	store := occupancy.NewMemoryStore()
	_, err := store.AddContact(ctx, testContact("ann", occupancy.RoleEmployee))
	require.NoError(t, err)
	_, err = store.AddContact(ctx, testContact("bob", occupancy.RoleCustomer))
	require.NoError(t, err)

	cfg := testConfig()
	cfg.MaxCapacity = 1
	cfg.WebhookURL = srv.URL
	a, _ := newTestApp(t, cfg, framesOf(5, 200, 200), WithStore(store))

	require.NoError(t, a.Run(ctx))

	alerts := received()
	require.Len(t, alerts, 1)
	assert.Equal(t, "Automatic Capacity Alert", alerts[0].Subject)
	assert.Equal(t, occupancy.AudienceEveryone, alerts[0].Audience)
	assert.Len(t, alerts[0].Recipients, 2)
}

func TestNotify(t *testing.T) {
	ctx := context.Background()
	srv, received := alertSink(t)
	cfg := testConfig()
	cfg.WebhookURL = srv.URL
	a, _ := newTestApp(t, cfg, framesOf(1, 200, 200))

	ann, err := a.AddContact(ctx, testContact("ann", occupancy.RoleEmployee))
	require.NoError(t, err)
	_, err = a.AddContact(ctx, testContact("bob", occupancy.RoleCustomer))
	require.NoError(t, err)

	require.NoError(t, a.Notify(ctx, occupancy.Notice{
		Audience: occupancy.AudienceEmployees,
		Subject:  "Staff meeting",
		Message:  "Ten minutes",
	}))
	alerts := received()
	require.Len(t, alerts, 1)
	assert.Equal(t, "Staff meeting", alerts[0].Subject)
	assert.Equal(t, []occupancy.Recipient{{Name: "ann Lee", Email: "ann@example.com"}}, alerts[0].Recipients)

	assert.Error(t, a.Notify(ctx, occupancy.Notice{Audience: occupancy.AudienceEveryone}))

	require.NoError(t, a.RemoveContact(ctx, ann.ID))
	contacts, err := a.Contacts(ctx)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "bob", contacts[0].FirstName)
}

func TestRun_InvalidFramesSkipped(t *testing.T) {
	src := &fakeSource{sizes: []image.Point{{}, {X: 200, Y: 200}, {}}}
	a, _ := newTestApp(t, testConfig(), src)

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, uint64(2), a.Metrics().InvalidFrames.Load())
	assert.Equal(t, uint64(1), a.Metrics().FramesProcessed.Load())
	assert.Equal(t, uint64(1), a.Status().Counter.FrameNumber)
}

func TestRun_SourceError(t *testing.T) {
	src := framesOf(1, 200, 200)
	src.err = errors.New("camera unplugged")
	a, _ := newTestApp(t, testConfig(), src)

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "camera unplugged")
}

func TestRun_Cancelled(t *testing.T) {
	a, _ := newTestApp(t, testConfig(), framesOf(3, 200, 200))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, a.Run(ctx))
	assert.Zero(t, a.Metrics().FramesProcessed.Load())
}

func TestRun_RequiresInit(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	assert.Error(t, a.Run(context.Background()))
}

func TestInit_MissingModel(t *testing.T) {
	cfg := testConfig()
	cfg.Detection.PrototxtPath = "/nonexistent/deploy.prototxt"
	cfg.Detection.ModelPath = "/nonexistent/deploy.caffemodel"
	src := framesOf(1, 200, 200)

	a, err := New(cfg, WithSource(src))
	require.NoError(t, err)
	assert.Error(t, a.Init(context.Background()))
	assert.True(t, src.closed.Load(), "failed Init releases what was built")
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MaxCapacity = -1
	_, err := New(cfg)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "MaxCapacity", ce.Field)
}

func TestController(t *testing.T) {
	ctx := context.Background()
	src := framesOf(3, 200, 200)
	a, _ := newTestApp(t, testConfig(), src)
	require.NoError(t, a.Run(ctx))

	first := a.Status()
	assert.Equal(t, 1, first.Occupancy)
	assert.Equal(t, tracking.StatusTracking, first.Counter.Status)

	require.NoError(t, a.SetMaxCapacity(ctx, 12))
	assert.Equal(t, 12, a.Status().MaxCapacity)

	report, err := a.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, report.SessionID)
	assert.Equal(t, 12, report.MaxCapacity)

	a.PauseSource()
	assert.True(t, a.Status().Paused)
	a.ResumeSource()
	assert.False(t, a.Status().Paused)

	settings := a.Settings()
	settings.EntryDirection = tracking.DirectionLeft
	require.NoError(t, a.UpdateSettings(settings))
	assert.Equal(t, tracking.DirectionLeft, a.Settings().EntryDirection)

	settings.DetectionInterval = 0
	assert.Error(t, a.UpdateSettings(settings))

	require.NoError(t, a.Reset(ctx))
	after := a.Status()
	assert.Zero(t, after.Occupancy)
	assert.NotEqual(t, first.SessionID, after.SessionID)
	assert.Empty(t, after.Counter.Entities)
	assert.Zero(t, after.Counter.FrameNumber)
	assert.Equal(t, 12, after.MaxCapacity, "reset keeps the capacity")
}

func TestDashboardWiring(t *testing.T) {
	cfg := testConfig()
	cfg.WebPort = "0"
	a, _ := newTestApp(t, cfg, framesOf(3, 200, 200))
	require.NotNil(t, a.webServer)

	require.NoError(t, a.source.Run(context.Background(), func(frame *gocv.Mat) error {
		return a.processFrame(context.Background(), frame)
	}))

	resp, err := a.webServer.App().Test(httptest.NewRequest(http.MethodGet, "/api/status", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st struct {
		Occupancy int `json:"occupancy"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, 1, st.Occupancy)

	resp, err = a.webServer.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "occupancy_frames_processed_total 3")
}
