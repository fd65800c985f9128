package web

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-occupancy/internal/log"
	"github.com/teslashibe/go-occupancy/pkg/analytics"
	"github.com/teslashibe/go-occupancy/pkg/hub"
	"github.com/teslashibe/go-occupancy/pkg/occupancy"
)

const requestTimeout = 10 * time.Second

// CapacityRequest is the body of PUT /api/capacity
type CapacityRequest struct {
	MaxCapacity *int `json:"max_capacity" validate:"required,gte=0"`
}

func (s *Server) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), requestTimeout)
}

// handleStatus returns occupancy and counter state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.opts.Controller.Status())
}

func (s *Server) handleGetSettings(c *fiber.Ctx) error {
	return c.JSON(s.opts.Controller.Settings())
}

// handleUpdateSettings applies a partial settings document on top of the
// current configuration
func (s *Server) handleUpdateSettings(c *fiber.Ctx) error {
	cfg := s.opts.Controller.Settings()
	if err := c.BodyParser(&cfg); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid settings body: "+err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := s.opts.Controller.UpdateSettings(cfg); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	log.Info("settings updated",
		"entry_direction", cfg.EntryDirection.String(),
		"draw_flags", uint8(cfg.DrawFlags),
		"detection_interval", cfg.DetectionInterval,
		"tracker", string(cfg.TrackerKind))
	s.PublishStatus(s.opts.Controller.Status())
	return c.JSON(s.opts.Controller.Settings())
}

func (s *Server) handleSetCapacity(c *fiber.Ctx) error {
	var req CapacityRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid capacity body: "+err.Error())
	}
	if err := s.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()
	if err := s.opts.Controller.SetMaxCapacity(ctx, *req.MaxCapacity); err != nil {
		return err
	}
	return c.JSON(s.opts.Controller.Status())
}

func (s *Server) handleReset(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	if err := s.opts.Controller.Reset(ctx); err != nil {
		return err
	}
	st := s.opts.Controller.Status()
	s.PublishStatus(st)
	return c.JSON(st)
}

func (s *Server) handlePause(c *fiber.Ctx) error {
	s.opts.Controller.PauseSource()
	st := s.opts.Controller.Status()
	s.PublishStatus(st)
	return c.JSON(st)
}

func (s *Server) handleResume(c *fiber.Ctx) error {
	s.opts.Controller.ResumeSource()
	st := s.opts.Controller.Status()
	s.PublishStatus(st)
	return c.JSON(st)
}

func (s *Server) report(c *fiber.Ctx) (analytics.Report, error) {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	return s.opts.Controller.Report(ctx)
}

func (s *Server) handleAnalytics(c *fiber.Ctx) error {
	r, err := s.report(c)
	if err != nil {
		return err
	}
	return c.JSON(r)
}

func (s *Server) handleAnalyticsCSV(c *fiber.Ctx) error {
	r, err := s.report(c)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="occupancy-`+r.Start.Format("20060102-150405")+`.csv"`)
	return analytics.WriteCSV(c, r.Hourly)
}

func (s *Server) handleAnalyticsChart(c *fiber.Ctx) error {
	r, err := s.report(c)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return analytics.RenderChart(c, s.opts.Title, r.Hourly)
}

// SimulateQuery selects the size and format of a simulated report
type SimulateQuery struct {
	Days   int    `query:"days" validate:"gte=1,lte=31"`
	Hours  int    `query:"hours" validate:"gte=1,lte=24"`
	Format string `query:"format" validate:"oneof=json csv chart"`
	Seed   uint64 `query:"seed"`
}

// handleSimulate previews long-term analytics on generated traffic
func (s *Server) handleSimulate(c *fiber.Ctx) error {
	q := SimulateQuery{Days: 7, Hours: 12, Format: "json"}
	if err := c.QueryParser(&q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := s.validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if q.Seed == 0 {
		q.Seed = uint64(time.Now().UnixNano())
	}

	start := time.Now().Truncate(24 * time.Hour).Add(8 * time.Hour)
	buckets := analytics.Simulate(rand.New(rand.NewPCG(q.Seed, q.Seed)), start, q.Days, q.Hours)

	switch q.Format {
	case "csv":
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		return analytics.WriteCSV(c, buckets)
	case "chart":
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return analytics.RenderChart(c, s.opts.Title+" (simulated)", buckets)
	default:
		return c.JSON(buckets)
	}
}

func (s *Server) handleListContacts(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	contacts, err := s.opts.Controller.Contacts(ctx)
	if err != nil {
		return err
	}
	return c.JSON(contacts)
}

func (s *Server) handleAddContact(c *fiber.Ctx) error {
	var contact occupancy.Contact
	if err := c.BodyParser(&contact); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid contact body: "+err.Error())
	}
	contact.ID = 0

	ctx, cancel := s.requestContext(c)
	defer cancel()
	added, err := s.opts.Controller.AddContact(ctx, contact)
	if errors.Is(err, occupancy.ErrInvalidContact) {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err != nil {
		return err
	}
	log.Info("contact added", "id", added.ID, "role", string(added.Role))
	return c.Status(fiber.StatusCreated).JSON(added)
}

func (s *Server) handleRemoveContact(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid contact id")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()
	err = s.opts.Controller.RemoveContact(ctx, int64(id))
	if errors.Is(err, occupancy.ErrContactNotFound) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}
	log.Info("contact removed", "id", id)
	return c.SendStatus(fiber.StatusNoContent)
}

// handleNotify sends a manual notice to part of the contact directory
func (s *Server) handleNotify(c *fiber.Ctx) error {
	var n occupancy.Notice
	if err := c.BodyParser(&n); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid notice body: "+err.Error())
	}
	if err := n.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()
	if err := s.opts.Controller.Notify(ctx, n); err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) statusEnvelope() []hub.Message {
	msg, err := hub.NewEnvelope("status", s.opts.Controller.Status())
	if err != nil {
		log.Warn("encode status", "error", err)
		return nil
	}
	return []hub.Message{msg}
}

// handleStatusWS streams status updates, starting with the current one
func (s *Server) handleStatusWS(c *websocket.Conn) {
	if client := hub.NewClient(s.statusHub, c, s.statusEnvelope()...); client != nil {
		client.Run()
	}
}

// handleEventsWS streams ledger changes, starting with the current status
func (s *Server) handleEventsWS(c *websocket.Conn) {
	if client := hub.NewClient(s.eventsHub, c, s.statusEnvelope()...); client != nil {
		client.Run()
	}
}

// handleCameraWS streams annotated JPEG frames
func (s *Server) handleCameraWS(c *websocket.Conn) {
	if client := hub.NewClient(s.cameraHub, c); client != nil {
		client.Run()
	}
}
