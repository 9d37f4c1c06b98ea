// Package config handles loading, defaulting, and validation of the
// precision-lens TOML configuration file. Every section maps to a typed
// struct so the rest of the codebase gets strong typing without manual key
// lookups.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Server   ServerConfig   `toml:"server"   json:"server"`
	Logging  LoggingConfig  `toml:"logging"  json:"logging"`
	Data     DataConfig     `toml:"data"     json:"data"`
	Gesture  GestureConfig  `toml:"gesture"  json:"gesture"`
	Camera   CameraConfig   `toml:"camera"   json:"camera"`
	Capture  CaptureConfig  `toml:"capture"  json:"capture"`
	Storage  StorageConfig  `toml:"storage"  json:"storage"`
	Analysis AnalysisConfig `toml:"analysis" json:"analysis"`
	Demo     DemoConfig     `toml:"demo"     json:"demo"`
}

type ServerConfig struct {
	Bind string `toml:"bind" json:"bind"`
}

type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
}

type DataConfig struct {
	Root string `toml:"root" json:"root"`
}

type GestureConfig struct {
	Policy        string `toml:"policy"          json:"policy"`
	DoubleClickMS int    `toml:"double_click_ms" json:"double_click_ms"`
}

type CameraConfig struct {
	Source           string   `toml:"source"             json:"source"`
	ImagePath        string   `toml:"image_path"         json:"image_path"`
	Width            int      `toml:"width"              json:"width"`
	Height           int      `toml:"height"             json:"height"`
	DefaultFacing    string   `toml:"default_facing"     json:"default_facing"`
	ZoomStep         float64  `toml:"zoom_step"          json:"zoom_step"`
	MinZoom          float64  `toml:"min_zoom"           json:"min_zoom"`
	MaxZoom          float64  `toml:"max_zoom"           json:"max_zoom"`
	AcquireTimeoutMS int      `toml:"acquire_timeout_ms" json:"acquire_timeout_ms"`
	Unavailable      []string `toml:"unavailable"        json:"unavailable"`
}

type CaptureConfig struct {
	Width       int    `toml:"width"        json:"width"`
	Height      int    `toml:"height"       json:"height"`
	JPEGQuality int    `toml:"jpeg_quality" json:"jpeg_quality"`
	StorageKey  string `toml:"storage_key"  json:"storage_key"`
}

type StorageConfig struct {
	Backend     string `toml:"backend"      json:"backend"`
	SQLitePath  string `toml:"sqlite_path"  json:"sqlite_path"`
	RedisAddr   string `toml:"redis_addr"   json:"redis_addr"`
	RedisDB     int    `toml:"redis_db"     json:"redis_db"`
	RedisPrefix string `toml:"redis_prefix" json:"redis_prefix"`
}

type AnalysisConfig struct {
	Bridge         string `toml:"bridge"          json:"bridge"`
	BridgeURL      string `toml:"bridge_url"      json:"bridge_url"`
	OllamaURL      string `toml:"ollama_url"      json:"ollama_url"`
	OllamaModel    string `toml:"ollama_model"    json:"ollama_model"`
	TimeoutSeconds int    `toml:"timeout_seconds" json:"timeout_seconds"`
	PreviewChars   int    `toml:"preview_chars"   json:"preview_chars"`
}

// DemoConfig drives the scripted input sequence used when no operator is
// pressing buttons.
type DemoConfig struct {
	Enabled         bool `toml:"enabled"          json:"enabled"`
	IntervalSeconds int  `toml:"interval_seconds" json:"interval_seconds"`
}

// Default returns a Config populated with sane defaults. Values here are
// used whenever the TOML file omits a field.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1:8080",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Data: DataConfig{
			Root: "/var/lib/precision-lens",
		},
		Gesture: GestureConfig{
			Policy:        "single",
			DoubleClickMS: 350,
		},
		Camera: CameraConfig{
			Source:           "synthetic",
			Width:            640,
			Height:           480,
			DefaultFacing:    "environment",
			ZoomStep:         0.2,
			MinZoom:          1.0,
			MaxZoom:          3.0,
			AcquireTimeoutMS: 10000,
		},
		Capture: CaptureConfig{
			Width:       240,
			Height:      282,
			JPEGQuality: 92,
			StorageKey:  "last_capture",
		},
		Storage: StorageConfig{
			Backend:     "sqlite",
			SQLitePath:  "/var/lib/precision-lens/plain.sqlite",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "lens:",
		},
		Analysis: AnalysisConfig{
			Bridge:         "none",
			OllamaURL:      "http://localhost:11434",
			OllamaModel:    "llava",
			TimeoutSeconds: 60,
			PreviewChars:   30,
		},
		Demo: DemoConfig{
			IntervalSeconds: 30,
		},
	}
}

// Load reads the TOML file at path, layers it on top of the defaults, and
// validates the result. An empty path yields the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, validate(cfg)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Window is the double-click window.
func (g GestureConfig) Window() time.Duration {
	return time.Duration(g.DoubleClickMS) * time.Millisecond
}

// Interval is the pause between scripted demo rounds.
func (d DemoConfig) Interval() time.Duration {
	return time.Duration(d.IntervalSeconds) * time.Second
}

// AcquireTimeout bounds one camera acquisition.
func (c CameraConfig) AcquireTimeout() time.Duration {
	return time.Duration(c.AcquireTimeoutMS) * time.Millisecond
}

// Timeout is how long a dispatched analysis may stay unanswered.
func (a AnalysisConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// SlogLevel maps the configured level name to a slog.Level.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func validate(cfg Config) error {
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level)
	}
	if cfg.Data.Root == "" {
		return errors.New("data.root must not be empty")
	}
	switch cfg.Gesture.Policy {
	case "single", "double":
	default:
		return fmt.Errorf("gesture.policy %q must be single or double", cfg.Gesture.Policy)
	}
	if cfg.Gesture.DoubleClickMS <= 0 {
		return errors.New("gesture.double_click_ms must be > 0")
	}
	switch cfg.Camera.Source {
	case "synthetic":
	case "image":
		if cfg.Camera.ImagePath == "" {
			return errors.New("camera.image_path is required when camera.source is image")
		}
	default:
		return fmt.Errorf("camera.source %q must be synthetic or image", cfg.Camera.Source)
	}
	if cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0 {
		return errors.New("camera.width and camera.height must be > 0")
	}
	if err := validFacing("camera.default_facing", cfg.Camera.DefaultFacing); err != nil {
		return err
	}
	for _, f := range cfg.Camera.Unavailable {
		if err := validFacing("camera.unavailable", f); err != nil {
			return err
		}
	}
	if cfg.Camera.MinZoom < 1 {
		return errors.New("camera.min_zoom must be >= 1")
	}
	if cfg.Camera.MaxZoom < cfg.Camera.MinZoom {
		return errors.New("camera.max_zoom must be >= camera.min_zoom")
	}
	if cfg.Camera.ZoomStep <= 0 {
		return errors.New("camera.zoom_step must be > 0")
	}
	if cfg.Camera.AcquireTimeoutMS <= 0 {
		return errors.New("camera.acquire_timeout_ms must be > 0")
	}
	if cfg.Capture.Width <= 0 || cfg.Capture.Height <= 0 {
		return errors.New("capture.width and capture.height must be > 0")
	}
	if cfg.Capture.JPEGQuality < 1 || cfg.Capture.JPEGQuality > 100 {
		return errors.New("capture.jpeg_quality must be between 1 and 100")
	}
	if cfg.Capture.StorageKey == "" {
		return errors.New("capture.storage_key must not be empty")
	}
	switch cfg.Storage.Backend {
	case "none", "memory":
	case "sqlite":
		if cfg.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path must not be empty")
		}
	case "redis":
		if cfg.Storage.RedisAddr == "" {
			return errors.New("storage.redis_addr must not be empty")
		}
	default:
		return fmt.Errorf("storage.backend %q must be none, memory, sqlite or redis", cfg.Storage.Backend)
	}
	switch cfg.Analysis.Bridge {
	case "none":
	case "websocket":
		if cfg.Analysis.BridgeURL == "" {
			return errors.New("analysis.bridge_url is required for the websocket bridge")
		}
	case "ollama":
		if cfg.Analysis.OllamaURL == "" || cfg.Analysis.OllamaModel == "" {
			return errors.New("analysis.ollama_url and analysis.ollama_model are required for the ollama bridge")
		}
	default:
		return fmt.Errorf("analysis.bridge %q must be none, websocket or ollama", cfg.Analysis.Bridge)
	}
	if cfg.Analysis.TimeoutSeconds < 0 {
		return errors.New("analysis.timeout_seconds must be >= 0")
	}
	if cfg.Analysis.PreviewChars < 1 {
		return errors.New("analysis.preview_chars must be >= 1")
	}
	if cfg.Demo.Enabled && cfg.Demo.IntervalSeconds <= 0 {
		return errors.New("demo.interval_seconds must be > 0 when demo is enabled")
	}
	return nil
}

func validFacing(field, v string) error {
	if v != "environment" && v != "user" {
		return fmt.Errorf("%s %q must be environment or user", field, v)
	}
	return nil
}
