package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-occupancy/internal/log"
	"github.com/teslashibe/go-occupancy/pkg/metrics"
	"github.com/teslashibe/go-occupancy/pkg/occupancy"
	"github.com/teslashibe/go-occupancy/pkg/tracking"
	"github.com/teslashibe/go-occupancy/pkg/tracking/detection"
	"github.com/teslashibe/go-occupancy/pkg/video"
	"github.com/teslashibe/go-occupancy/pkg/web"
	"gocv.io/x/gocv"
)

// App is the occupancy application orchestrator.
// It manages all components and their lifecycle.
type App struct {
	config Config

	// Counting
	detector   detection.Detector
	newTracker tracking.TrackerFactory
	counter    *tracking.Counter
	source     video.Source

	// Bookkeeping
	store    occupancy.Store
	ledger   *occupancy.Ledger
	notifier occupancy.ContactAlerter
	metrics  *metrics.Metrics
	now      func() time.Time

	// Web dashboard
	webServer *web.Server
}

// Option overrides a component built by Init
type Option func(*App)

// WithDetector uses d instead of loading the configured model
func WithDetector(d detection.Detector) Option {
	return func(a *App) { a.detector = d }
}

// WithSource uses s instead of opening the configured video source
func WithSource(s video.Source) Option {
	return func(a *App) { a.source = s }
}

// WithTrackerFactory replaces the OpenCV tracker factory
func WithTrackerFactory(f tracking.TrackerFactory) Option {
	return func(a *App) { a.newTracker = f }
}

// WithStore uses s instead of the configured database
func WithStore(s occupancy.Store) Option {
	return func(a *App) { a.store = s }
}

// WithClock sets the ledger clock
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// New validates cfg and creates the application.
func New(cfg Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		config:  cfg,
		metrics: metrics.New(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Init builds every component. A detector model that cannot be loaded is
// an error. Call this after New and before Run.
func (a *App) Init(ctx context.Context) error {
	if err := a.init(ctx); err != nil {
		a.Shutdown()
		return err
	}
	return nil
}

func (a *App) init(ctx context.Context) error {
	if a.detector == nil {
		d, err := detection.New(a.config.Detection)
		if err != nil {
			return fmt.Errorf("detector: %w", err)
		}
		a.detector = d
	}
	log.Info("detector ready", "backend", string(a.config.Detection.Backend))

	counter, err := tracking.NewCounter(a.config.Tracking, a.detector, a.newTracker)
	if err != nil {
		return fmt.Errorf("counter: %w", err)
	}
	a.counter = counter

	if a.store == nil {
		if a.config.DBPath != "" {
			s, err := occupancy.NewSQLiteStore(a.config.DBPath)
			if err != nil {
				return fmt.Errorf("store: %w", err)
			}
			a.store = s
			log.Info("persisting sessions", "db", a.config.DBPath)
		} else {
			a.store = occupancy.NewMemoryStore()
		}
	}

	ledger, err := occupancy.NewLedger(ctx, occupancy.Options{
		Store:       a.store,
		Alerter:     a.alerter(),
		MaxCapacity: a.config.MaxCapacity,
		Now:         a.now,
	})
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	a.ledger = ledger
	a.metrics.ObserveOccupancy(0, a.config.MaxCapacity)

	if a.config.WebPort != "" {
		srv, err := web.NewServer(web.Options{
			Port:       a.config.WebPort,
			Title:      a.config.Title,
			StaticDir:  a.config.StaticDir,
			Metrics:    a.metrics.Handler(),
			OnClients:  a.metrics.SetDashboardClients,
			Controller: a,
		})
		if err != nil {
			return fmt.Errorf("web: %w", err)
		}
		a.webServer = srv
	}

	a.ledger.OnChange(func(c occupancy.Change) {
		a.metrics.ObserveOccupancy(c.Occupancy, c.MaxCapacity)
		if a.webServer != nil {
			a.webServer.PublishChange(c)
		}
	})

	if a.source == nil {
		src, err := video.Open(ctx, a.config.Video)
		if err != nil {
			return fmt.Errorf("video: %w", err)
		}
		a.source = src
	}
	log.Info("video source open", "kind", string(a.config.Video.Kind))

	return nil
}

// alerter addresses capacity alerts to the contact directory and delivers
// them to the log and the optional webhook
func (a *App) alerter() occupancy.Alerter {
	delivery := occupancy.MultiAlerter{occupancy.LogAlerter{}}
	if a.config.WebhookURL != "" {
		delivery = append(delivery, occupancy.WebhookAlerter{URL: a.config.WebhookURL})
	}
	a.notifier = occupancy.ContactAlerter{Contacts: a.store, Next: delivery}

	return occupancy.MultiAlerter{
		a.notifier,
		occupancy.AlerterFunc(func(context.Context, occupancy.Alert) error {
			a.metrics.AlertSent()
			return nil
		}),
	}
}

// Run pumps frames through the counter until the source ends or ctx is
// cancelled. When a file finishes the dashboard stays up until ctx ends.
func (a *App) Run(ctx context.Context) error {
	if a.counter == nil || a.source == nil {
		return errors.New("pipeline: Init must be called before Run")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	webDone := make(chan struct{})
	if a.webServer != nil {
		go func() {
			defer close(webDone)
			if err := a.webServer.Run(ctx); err != nil {
				log.Error("web dashboard stopped", "error", err)
			}
		}()
	} else {
		close(webDone)
	}

	log.Info("counting started",
		"entry_direction", a.config.Tracking.EntryDirection.String(),
		"detection_interval", a.config.Tracking.DetectionInterval,
		"max_capacity", a.config.MaxCapacity)

	err := a.source.Run(ctx, func(frame *gocv.Mat) error {
		return a.processFrame(ctx, frame)
	})
	if err == nil && ctx.Err() == nil {
		log.Info("video source finished",
			"frames", a.metrics.FramesProcessed.Load(),
			"occupancy", a.ledger.Occupancy())
		if a.webServer != nil {
			<-ctx.Done()
		}
	}

	cancel()
	<-webDone

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("video source: %w", err)
	}
	return nil
}

// processFrame counts one frame and fans the result out
func (a *App) processFrame(ctx context.Context, frame *gocv.Mat) error {
	start := time.Now()
	res, err := a.counter.ProcessFrame(frame)
	if errors.Is(err, tracking.ErrInvalidFrame) {
		a.metrics.InvalidFrames.Add(1)
		log.Debug("skipping invalid frame")
		return nil
	}
	if err != nil {
		return err
	}
	a.metrics.ObserveFrame(res, time.Since(start))

	if len(res.Events) > 0 {
		if err := a.ledger.Apply(ctx, res.Events); err != nil {
			log.Warn("ledger update failed", "frame", res.FrameNumber, "error", err)
		}
	}

	if a.webServer == nil {
		return nil
	}
	if a.webServer.CameraClients() > 0 {
		jpeg, err := video.EncodeJPEG(*frame, a.config.Video.JPEGQuality)
		if err != nil {
			log.Debug("frame encode failed", "frame", res.FrameNumber, "error", err)
		} else {
			a.webServer.PublishFrame(jpeg)
		}
	}
	if len(res.Events) > 0 || res.FrameNumber%uint64(a.config.StatusEvery) == 0 {
		a.webServer.PublishStatus(a.Status())
	}
	return nil
}

// Metrics returns the application metrics
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Ledger returns the occupancy ledger. Nil before Init.
func (a *App) Ledger() *occupancy.Ledger {
	return a.ledger
}

// Shutdown releases every component. It is safe after a failed Init.
func (a *App) Shutdown() {
	var errs []error
	if a.source != nil {
		errs = append(errs, a.source.Close())
	}
	if a.counter != nil {
		errs = append(errs, a.counter.Close())
	}
	if a.detector != nil {
		errs = append(errs, a.detector.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn("shutdown", "error", err)
	}
	log.Info("shutdown complete")
}
