// occupancy counts people entering and leaving a space from a camera or
// video file and serves a live dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-occupancy/internal/config"
	"github.com/teslashibe/go-occupancy/internal/log"
	"github.com/teslashibe/go-occupancy/pkg/pipeline"
	"github.com/teslashibe/go-occupancy/pkg/tracking"
	"github.com/teslashibe/go-occupancy/pkg/tracking/detection"
	"github.com/teslashibe/go-occupancy/pkg/video"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Init("info")
		log.Error("load .env", "error", err)
		os.Exit(1)
	}

	cfg, logOpts := parseFlags()
	log.InitWithOptions(logOpts)

	app, err := pipeline.New(cfg)
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	if err := app.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
		os.Exit(1)
	}
}

// parseFlags layers command line flags over environment defaults.
func parseFlags() (pipeline.Config, log.Options) {
	cfg := pipeline.DefaultConfig()
	cfg.LoadEnvConfig()

	logOpts := log.Options{
		Level: config.String("OCCUPANCY_LOG_LEVEL", "info"),
		File:  config.String("OCCUPANCY_LOG_FILE", ""),
	}

	videoPath := flag.String("video", cfg.Video.Path, "Video file to count (default: camera)")
	camera := flag.Int("camera", cfg.Video.Camera, "Camera device index")
	cameraFPS := flag.Int("camera-fps", cfg.Video.CameraFPS, "Camera capture rate")
	feed := flag.String("feed", cfg.Video.URL, "ws:// URL of a remote JPEG frame feed")

	detector := flag.String("detector", string(cfg.Detection.Backend), "Detector backend: ssd or yolo")
	model := flag.String("model", cfg.Detection.ModelPath, "Detector weights (caffemodel or onnx)")
	prototxt := flag.String("prototxt", cfg.Detection.PrototxtPath, "SSD network definition")
	confidence := flag.Float64("confidence", cfg.Detection.MinConfidence, "Minimum detection confidence")

	direction := flag.String("direction", cfg.Tracking.EntryDirection.String(), "Entry direction: up, down, left or right")
	interval := flag.Int("interval", cfg.Tracking.DetectionInterval, "Run the detector every N frames")
	tracker := flag.String("tracker", string(cfg.Tracking.TrackerKind), "Tracker: kcf, csrt or mil")
	noDraw := flag.Bool("no-draw", false, "Disable frame annotations")

	capacity := flag.Int("max-capacity", cfg.MaxCapacity, "Alert when this many people are inside (0 = off)")
	db := flag.String("db", cfg.DBPath, "SQLite database file (empty = in memory)")
	webhook := flag.String("webhook", cfg.WebhookURL, "URL to POST capacity alerts to")
	port := flag.String("port", cfg.WebPort, "Dashboard port (empty = no dashboard)")

	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	switch {
	case *feed != "":
		cfg.Video.Kind, cfg.Video.URL = video.KindWebSocket, *feed
	case *videoPath != "":
		cfg.Video.Kind, cfg.Video.Path = video.KindFile, *videoPath
	}
	cfg.Video.Camera, cfg.Video.CameraFPS = *camera, *cameraFPS

	cfg.Detection.Backend = detection.Backend(*detector)
	cfg.Detection.ModelPath, cfg.Detection.PrototxtPath = *model, *prototxt
	cfg.Detection.MinConfidence = *confidence
	if cfg.Detection.Backend == detection.BackendYOLO && cfg.Detection.ModelPath == config.DefaultCaffeModel {
		cfg.Detection.ModelPath = config.DefaultYOLOModel
	}

	d, err := tracking.ParseDirection(*direction)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -direction: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}
	cfg.Tracking.EntryDirection = d
	cfg.Tracking.DetectionInterval = *interval
	cfg.Tracking.TrackerKind = tracking.TrackerKind(*tracker)
	if *noDraw {
		cfg.Tracking.DrawFlags = tracking.DrawNone
	}

	cfg.MaxCapacity, cfg.DBPath, cfg.WebhookURL, cfg.WebPort = *capacity, *db, *webhook, *port

	if *debug {
		logOpts.Level = "debug"
	}
	return cfg, logOpts
}
