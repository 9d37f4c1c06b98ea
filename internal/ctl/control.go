package ctl

import (
	"fmt"
	"strings"
)

// Control commands map one-to-one onto daemon routes. The label is printed
// on success.
var controls = map[string]struct {
	path  string
	label string
}{
	"press":       {"/api/input/press", "PRESSED"},
	"scroll-up":   {"/api/input/scroll_up", "ZOOM"},
	"scroll-down": {"/api/input/scroll_down", "ZOOM"},
	"long-press":  {"/api/input/long_press_start", "LONG PRESS"},
	"stop":        {"/api/camera/stop", "STOPPED"},
	"switch":      {"/api/camera/switch", "SWITCHED"},
	"zoom-in":     {"/api/camera/zoom-in", "ZOOM"},
	"zoom-out":    {"/api/camera/zoom-out", "ZOOM"},
	"capture":     {"/api/capture", "CAPTURE"},
	"review":      {"/api/review", "REVIEW"},
}

// IsControl reports whether name is a simple control command.
func IsControl(name string) bool {
	_, ok := controls[name]
	return ok
}

// Control sends the named control command.
func Control(baseURL, name string, jsonOutput bool) error {
	c, ok := controls[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	return sendControl(baseURL, c.path, nil, c.label, jsonOutput)
}

// StartOptions controls the start command.
type StartOptions struct {
	Facing string
	JSON   bool
}

// Start launches the camera, or stops it when already running.
func Start(baseURL string, opts StartOptions) error {
	return sendControl(baseURL, "/api/camera/start", facingBody(opts.Facing), "CAMERA", opts.JSON)
}

// Restart reopens the camera, starting it when it is off.
func Restart(baseURL string, opts StartOptions) error {
	return sendControl(baseURL, "/api/camera/restart", facingBody(opts.Facing), "RESTARTED", opts.JSON)
}

func facingBody(facing string) any {
	if facing == "" {
		return nil
	}
	return map[string]string{"facing": facing}
}

// Double sends two presses back to back, the hardware double-click.
func Double(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")
	if _, err := postCommand(baseURL, "/api/input/press", nil); err != nil {
		return err
	}
	return sendControl(baseURL, "/api/input/press", nil, "DOUBLE", jsonOutput)
}

func sendControl(baseURL, path string, body any, label string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	res, err := postCommand(baseURL, path, body)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(res)
	}
	printResult(label, res)
	return nil
}

func printResult(label string, res CommandResult) {
	fmt.Println()
	if res.OK {
		fmt.Printf("  %s  %s\n", colorize(green, padRight(label, 10)), res.Message)
	} else {
		fmt.Printf("  %s  %s\n", colorize(red, padRight("FAILED", 10)), res.Error)
	}
	if res.Status != "" {
		fmt.Printf("  %s  %s\n", colorize(dim, padRight("status", 10)), colorize(statusColor(res.Status), res.Status))
	}
	fmt.Println()
}
