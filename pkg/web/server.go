// Package web serves the live occupancy dashboard: a JSON API for status,
// settings and analytics, and websocket feeds for status, crossings and the
// annotated camera stream.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-occupancy/internal/log"
	"github.com/teslashibe/go-occupancy/pkg/analytics"
	"github.com/teslashibe/go-occupancy/pkg/hub"
	"github.com/teslashibe/go-occupancy/pkg/occupancy"
	"github.com/teslashibe/go-occupancy/pkg/tracking"
)

// Status is what the dashboard shows at a glance
type Status struct {
	SessionID   string            `json:"session_id"`
	Occupancy   int               `json:"occupancy"`
	MaxCapacity int               `json:"max_capacity"`
	Paused      bool              `json:"paused"`
	Counter     tracking.Snapshot `json:"counter"`
}

// Controller is the application surface the dashboard drives
type Controller interface {
	Status() Status
	Settings() tracking.Config
	UpdateSettings(cfg tracking.Config) error
	SetMaxCapacity(ctx context.Context, n int) error
	Reset(ctx context.Context) error
	PauseSource()
	ResumeSource()
	Report(ctx context.Context) (analytics.Report, error)

	Contacts(ctx context.Context) ([]occupancy.Contact, error)
	AddContact(ctx context.Context, c occupancy.Contact) (occupancy.Contact, error)
	RemoveContact(ctx context.Context, id int64) error
	Notify(ctx context.Context, n occupancy.Notice) error
}

// Options configures a Server
type Options struct {
	Port       string
	Title      string       // shown on the analytics chart
	StaticDir  string       // optional dashboard assets
	Metrics    http.Handler // mounted on /metrics when set
	OnClients  func(n int)  // total websocket clients across feeds
	Controller Controller
}

// Server is the web dashboard server
type Server struct {
	app      *fiber.App
	opts     Options
	validate *validator.Validate

	statusHub *hub.Hub
	eventsHub *hub.Hub
	cameraHub *hub.Hub
}

// NewServer creates the dashboard server and its routes
func NewServer(opts Options) (*Server, error) {
	if opts.Controller == nil {
		return nil, errors.New("web: controller is required")
	}
	if opts.Title == "" {
		opts.Title = "Occupancy"
	}

	s := &Server{
		opts:      opts,
		validate:  validator.New(),
		statusHub: hub.New("status"),
		eventsHub: hub.New("events"),
		cameraHub: hub.New("camera"),
	}
	for _, h := range s.hubs() {
		h.OnCount(func(int) { s.reportClients() })
	}

	app := fiber.New(fiber.Config{
		AppName:               "Occupancy Dashboard",
		DisableStartupMessage: true,
		StrictRouting:         true,
		ErrorHandler:          errorHandler,
	})

	app.Use(cors.New())
	app.Use(requestLogger())

	if opts.StaticDir != "" {
		app.Static("/", opts.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/settings", s.handleGetSettings)
	api.Put("/settings", s.handleUpdateSettings)
	api.Put("/capacity", s.handleSetCapacity)
	api.Post("/reset", s.handleReset)
	api.Post("/source/pause", s.handlePause)
	api.Post("/source/resume", s.handleResume)
	api.Get("/analytics", s.handleAnalytics)
	api.Get("/analytics/csv", s.handleAnalyticsCSV)
	api.Get("/analytics/chart", s.handleAnalyticsChart)
	api.Get("/analytics/simulate", s.handleSimulate)
	api.Get("/contacts", s.handleListContacts)
	api.Post("/contacts", s.handleAddContact)
	api.Delete("/contacts/:id", s.handleRemoveContact)
	api.Post("/notices", s.handleNotify)

	if opts.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/events", websocket.New(s.handleEventsWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s, nil
}

func (s *Server) hubs() []*hub.Hub {
	return []*hub.Hub{s.statusHub, s.eventsHub, s.cameraHub}
}

func (s *Server) reportClients() {
	if s.opts.OnClients == nil {
		return
	}
	n := 0
	for _, h := range s.hubs() {
		n += h.ClientCount()
	}
	s.opts.OnClients(n)
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on the configured port until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.opts.Port)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hubs and serves on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	for _, h := range s.hubs() {
		go h.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()
	log.Info("web dashboard listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// PublishStatus pushes the current status to /ws/status clients
func (s *Server) PublishStatus(st Status) {
	if err := s.statusHub.BroadcastEnvelope("status", st); err != nil {
		log.Warn("encode status", "error", err)
	}
}

// PublishChange pushes a ledger change to /ws/events clients
func (s *Server) PublishChange(c occupancy.Change) {
	if err := s.eventsHub.BroadcastEnvelope("change", c); err != nil {
		log.Warn("encode change", "error", err)
	}
}

// PublishFrame sends an annotated JPEG to /ws/camera clients
func (s *Server) PublishFrame(jpeg []byte) {
	s.cameraHub.BroadcastBinary(jpeg)
}

// CameraClients reports how many clients watch the camera feed
func (s *Server) CameraClients() int {
	return s.cameraHub.ClientCount()
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		log.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		attrs := []any{
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case status >= 500:
			log.Error("http request", attrs...)
		case status >= 400:
			log.Warn("http request", attrs...)
		default:
			log.Debug("http request", attrs...)
		}
		return err
	}
}
