package ctl

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/large-farva/precision-lens/internal/capture"
)

// LastCaptureOptions configures the last-capture command.
type LastCaptureOptions struct {
	Out  string // write the JPEG here
	JSON bool
}

// LastCapture shows the stored capture's metadata and optionally saves the
// image.
func LastCapture(baseURL string, opts LastCaptureOptions) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var resp struct {
		Image string       `json:"image"`
		Meta  capture.Meta `json:"meta"`
	}
	if err := getJSON(baseURL, "/api/last-capture", &resp); err != nil {
		return err
	}

	jpegBytes, err := capture.DecodeDataURL(resp.Image)
	if err != nil {
		return fmt.Errorf("stored image: %w", err)
	}
	if opts.Out != "" {
		if err := os.WriteFile(opts.Out, jpegBytes, 0o644); err != nil {
			return err
		}
	}

	if opts.JSON {
		return printJSON(map[string]any{
			"meta":  resp.Meta,
			"bytes": len(jpegBytes),
			"out":   opts.Out,
		})
	}

	fmt.Println()
	fmt.Println(header("  LAST CAPTURE"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 38)))
	if resp.Meta.ID != "" {
		fmt.Printf("  %-12s %s\n", colorize(dim, "ID:"), resp.Meta.ID)
		fmt.Printf("  %-12s %s\n", colorize(dim, "Taken:"), resp.Meta.CapturedAt.Local().Format(time.DateTime))
		fmt.Printf("  %-12s %s @ %.1fx\n", colorize(dim, "Camera:"), resp.Meta.Facing, resp.Meta.Zoom)
		fmt.Printf("  %-12s %dx%d\n", colorize(dim, "Size:"), resp.Meta.Width, resp.Meta.Height)
	}
	fmt.Printf("  %-12s %s\n", colorize(dim, "JPEG:"), formatBytes(int64(len(jpegBytes))))
	if opts.Out != "" {
		fmt.Printf("  %-12s %s\n", colorize(dim, "Saved:"), opts.Out)
	}
	fmt.Println()
	return nil
}
