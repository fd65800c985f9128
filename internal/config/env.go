// Package config provides configuration helpers for go-occupancy commands.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Default model locations for the MobileNet-SSD person detector.
const (
	DefaultPrototxt   = "models/mobilenet_ssd/MobileNetSSD_deploy.prototxt"
	DefaultCaffeModel = "models/mobilenet_ssd/MobileNetSSD_deploy.caffemodel"
	DefaultYOLOModel  = "models/yolov8n.onnx"
	DefaultWebPort    = "8080"
	DefaultDBPath     = "occupancy.db"
)

// LoadDotEnv loads variables from the given .env files (".env" when none are
// given). A missing file is not an error; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// String returns the env var value or the provided default if not set.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns the env var parsed as an int, or def if unset or invalid.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// Float returns the env var parsed as a float64, or def if unset or invalid.
func Float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}

// Bool returns the env var parsed as a bool, or def if unset or invalid.
func Bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}
