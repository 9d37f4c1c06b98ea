package ctl

import (
	"fmt"
	"strings"
	"time"
)

// StatusResponse mirrors the JSON returned by GET /api/status.
type StatusResponse struct {
	Name          string `json:"name"`
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Camera        struct {
		Active bool    `json:"active"`
		Facing string  `json:"facing"`
		Zoom   float64 `json:"zoom"`
	} `json:"camera"`
	CaptureBusy bool   `json:"capture_busy"`
	Reviewing   bool   `json:"reviewing"`
	Gesture     string `json:"gesture"`
	Storage     string `json:"storage"`
	Bridge      string `json:"bridge"`
	WSClients   int    `json:"ws_clients"`
	DataRoot    string `json:"data_root"`
	Disk        *struct {
		AvailableBytes int64 `json:"available_bytes"`
	} `json:"disk,omitempty"`
}

// Status fetches the daemon status and prints a formatted summary.
func Status(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var s StatusResponse
	if err := getJSON(baseURL, "/api/status", &s); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(s)
	}

	uptime := formatDuration(time.Duration(s.UptimeSeconds) * time.Second)
	camera := colorize(dim, "off")
	if s.Camera.Active {
		camera = colorize(green, fmt.Sprintf("%s @ %.1fx", s.Camera.Facing, s.Camera.Zoom))
	}

	fmt.Println()
	fmt.Println(header("  PRECISION LENS STATUS"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 38)))
	fmt.Printf("  %-12s %s\n", colorize(dim, "Status:"), colorize(statusColor(s.Status), s.Status))
	fmt.Printf("  %-12s %s\n", colorize(dim, "Camera:"), camera)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Capturing:"), onOff(s.CaptureBusy))
	fmt.Printf("  %-12s %s\n", colorize(dim, "Reviewing:"), onOff(s.Reviewing))
	fmt.Printf("  %-12s %s\n", colorize(dim, "Gesture:"), s.Gesture)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Storage:"), s.Storage)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Bridge:"), s.Bridge)
	fmt.Printf("  %-12s %d\n", colorize(dim, "Watchers:"), s.WSClients)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Uptime:"), uptime)
	if s.Disk != nil {
		fmt.Printf("  %-12s %s (%s free)\n", colorize(dim, "Data:"), s.DataRoot, formatBytes(s.Disk.AvailableBytes))
	} else {
		fmt.Printf("  %-12s %s\n", colorize(dim, "Data:"), s.DataRoot)
	}
	fmt.Printf("  %-12s %s\n", colorize(dim, "Host:"), baseURL)
	fmt.Println()

	return nil
}
