// Video test - measure source frame rate and detector latency
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-occupancy/internal/config"
	"github.com/teslashibe/go-occupancy/pkg/tracking/detection"
	"github.com/teslashibe/go-occupancy/pkg/video"
	"gocv.io/x/gocv"
)

func main() {
	path := flag.String("video", "", "Video file (default: camera)")
	camera := flag.Int("camera", 0, "Camera device index")
	feed := flag.String("feed", "", "ws:// URL of a remote JPEG frame feed")
	detect := flag.Bool("detect", false, "Run the person detector on every frame")
	model := flag.String("model", config.DefaultCaffeModel, "SSD weights")
	prototxt := flag.String("prototxt", config.DefaultPrototxt, "SSD network definition")
	flag.Parse()

	cfg := video.DefaultConfig()
	cfg.Camera = *camera
	switch {
	case *feed != "":
		cfg.Kind, cfg.URL = video.KindWebSocket, *feed
	case *path != "":
		cfg.Kind, cfg.Path = video.KindFile, *path
	}

	fmt.Println("📹 Video FPS Test")
	fmt.Println("=================")
	fmt.Printf("Source: %s\n\n", cfg.Kind)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src, err := video.Open(ctx, cfg)
	if err != nil {
		fmt.Printf("❌ Open failed: %v\n", err)
		os.Exit(1)
	}
	defer src.Close()

	var det detection.Detector
	if *detect {
		dcfg := detection.DefaultConfig()
		dcfg.ModelPath, dcfg.PrototxtPath = *model, *prototxt
		det, err = detection.New(dcfg)
		if err != nil {
			fmt.Printf("❌ Detector: %v\n", err)
			os.Exit(1)
		}
		defer det.Close()
	}

	fmt.Println("🎬 Measuring frame rate (Ctrl+C to stop)...")

	frameCount, people := 0, 0
	var detectTotal time.Duration
	startTime := time.Now()
	lastReport := time.Now()

	err = src.Run(ctx, func(frame *gocv.Mat) error {
		frameCount++

		if det != nil {
			t0 := time.Now()
			candidates, err := det.Detect(*frame)
			detectTotal += time.Since(t0)
			if err == nil {
				people = len(candidates)
			}
		}

		if frameCount == 1 {
			if data, err := video.EncodeJPEG(*frame, cfg.JPEGQuality); err == nil {
				os.WriteFile("test_frame.jpg", data, 0644)
				fmt.Printf("💾 First frame saved: test_frame.jpg (%dx%d, %d bytes)\n",
					frame.Cols(), frame.Rows(), len(data))
			}
		}

		if time.Since(lastReport) >= time.Second {
			elapsed := time.Since(startTime).Seconds()
			fmt.Printf("\r📷 Frames: %d | FPS: %.2f", frameCount, float64(frameCount)/elapsed)
			if det != nil {
				fmt.Printf(" | Detect: %v avg | People: %d",
					(detectTotal / time.Duration(frameCount)).Round(time.Millisecond), people)
			}
			fmt.Print("    ")
			lastReport = time.Now()
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		fmt.Printf("\n❌ Source stopped: %v\n", err)
	}

	elapsed := time.Since(startTime).Seconds()
	fmt.Printf("\n\n📊 Final: %d frames in %.1fs = %.2f fps\n",
		frameCount, elapsed, float64(frameCount)/elapsed)
}
