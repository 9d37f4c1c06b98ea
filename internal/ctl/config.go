package ctl

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/large-farva/precision-lens/internal/config"
)

// Config fetches and displays the daemon's running configuration.
func Config(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var raw json.RawMessage
	if err := getJSON(baseURL, "/api/config", &raw); err != nil {
		return err
	}

	if jsonOutput {
		var v any
		_ = json.Unmarshal(raw, &v)
		return printJSON(v)
	}

	var cfg config.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(header("  DAEMON CONFIGURATION"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 50)))

	section := func(name string) {
		fmt.Printf("\n  %s\n", colorize(bold, "["+name+"]"))
	}
	field := func(key string, val any) {
		fmt.Printf("    %-20s %v\n", colorize(dim, key+":"), val)
	}

	section("server")
	field("bind", cfg.Server.Bind)

	section("logging")
	field("level", cfg.Logging.Level)

	section("data")
	field("root", cfg.Data.Root)

	section("gesture")
	field("policy", cfg.Gesture.Policy)
	field("double_click_ms", cfg.Gesture.DoubleClickMS)

	section("camera")
	field("source", cfg.Camera.Source)
	if cfg.Camera.Source == "image" {
		field("image_path", cfg.Camera.ImagePath)
	}
	field("size", fmt.Sprintf("%dx%d", cfg.Camera.Width, cfg.Camera.Height))
	field("default_facing", cfg.Camera.DefaultFacing)
	field("zoom", fmt.Sprintf("%.1f-%.1fx step %.1f", cfg.Camera.MinZoom, cfg.Camera.MaxZoom, cfg.Camera.ZoomStep))
	field("acquire_timeout_ms", cfg.Camera.AcquireTimeoutMS)
	if len(cfg.Camera.Unavailable) > 0 {
		field("unavailable", strings.Join(cfg.Camera.Unavailable, ", "))
	}

	section("capture")
	field("size", fmt.Sprintf("%dx%d", cfg.Capture.Width, cfg.Capture.Height))
	field("jpeg_quality", cfg.Capture.JPEGQuality)
	field("storage_key", cfg.Capture.StorageKey)

	section("storage")
	field("backend", cfg.Storage.Backend)
	switch cfg.Storage.Backend {
	case "sqlite":
		field("sqlite_path", cfg.Storage.SQLitePath)
	case "redis":
		field("redis_addr", cfg.Storage.RedisAddr)
		field("redis_db", cfg.Storage.RedisDB)
		field("redis_prefix", cfg.Storage.RedisPrefix)
	}

	section("analysis")
	field("bridge", cfg.Analysis.Bridge)
	switch cfg.Analysis.Bridge {
	case "websocket":
		field("bridge_url", cfg.Analysis.BridgeURL)
	case "ollama":
		field("ollama_url", cfg.Analysis.OllamaURL)
		field("ollama_model", cfg.Analysis.OllamaModel)
	}
	field("timeout_seconds", cfg.Analysis.TimeoutSeconds)
	field("preview_chars", cfg.Analysis.PreviewChars)

	section("demo")
	field("enabled", cfg.Demo.Enabled)
	field("interval_seconds", cfg.Demo.IntervalSeconds)

	fmt.Println()

	return nil
}
