// Lensctl is the command-line client for driving and monitoring a running
// lensd instance. It stands in for the hardware buttons over HTTP and
// streams live events from the daemon over WebSocket.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/large-farva/precision-lens/internal/ctl"
)

func main() {
	var (
		host    = pflag.StringP("host", "H", "http://127.0.0.1:8080", "Lens daemon URL (e.g. http://192.168.8.1:8080)")
		jsonOut = pflag.Bool("json", false, "Output raw JSON instead of formatted text")
		filter  = pflag.StringSlice("filter", nil, "Event types to show in watch (e.g. --filter status,analysis)")
	)

	// Stop parsing global flags at the first non-flag argument (the command
	// name), so subcommand-specific flags like --facing are not rejected.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	var err error
	switch {
	// ── Query commands ────────────────────────────────────────────
	case cmd == "status":
		err = ctl.Status(*host, *jsonOut)

	case cmd == "health":
		err = ctl.Health(*host, *jsonOut)

	case cmd == "version":
		err = ctl.VersionInfo(*host, *jsonOut)

	case cmd == "config":
		err = ctl.Config(*host, *jsonOut)

	case cmd == "last-capture":
		opts := ctl.LastCaptureOptions{JSON: *jsonOut}
		lcFlags := pflag.NewFlagSet("last-capture", pflag.ContinueOnError)
		lcFlags.StringVarP(&opts.Out, "out", "o", "", "Write the stored JPEG to this file")
		_ = lcFlags.Parse(subArgs)
		err = ctl.LastCapture(*host, opts)

	// ── Control commands ──────────────────────────────────────────
	case cmd == "start":
		opts := ctl.StartOptions{JSON: *jsonOut}
		startFlags := pflag.NewFlagSet("start", pflag.ContinueOnError)
		startFlags.StringVar(&opts.Facing, "facing", "", "Camera to open (environment or user)")
		_ = startFlags.Parse(subArgs)
		err = ctl.Start(*host, opts)

	case cmd == "restart":
		opts := ctl.StartOptions{JSON: *jsonOut}
		restartFlags := pflag.NewFlagSet("restart", pflag.ContinueOnError)
		restartFlags.StringVar(&opts.Facing, "facing", "", "Camera to open (environment or user)")
		_ = restartFlags.Parse(subArgs)
		err = ctl.Restart(*host, opts)

	case cmd == "double":
		err = ctl.Double(*host, *jsonOut)

	case ctl.IsControl(cmd):
		err = ctl.Control(*host, cmd, *jsonOut)

	case cmd == "result":
		opts := ctl.ResultOptions{JSON: *jsonOut}
		resFlags := pflag.NewFlagSet("result", pflag.ContinueOnError)
		resFlags.BoolVar(&opts.Raw, "raw", false, "Send the argument as a JSON value instead of a string")
		_ = resFlags.Parse(subArgs)
		opts.Text = strings.Join(resFlags.Args(), " ")
		err = ctl.Result(*host, opts)

	// ── Live streaming ────────────────────────────────────────────
	case cmd == "watch":
		opts := ctl.WatchOptions{Filter: *filter, JSON: *jsonOut}
		watchFlags := pflag.NewFlagSet("watch", pflag.ContinueOnError)
		watchFlags.BoolVar(&opts.Once, "once", false, "Exit when the connection drops instead of redialing")
		_ = watchFlags.Parse(subArgs)
		err = ctl.Watch(*host, opts)

	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Print(`
  lensctl - Precision Lens control CLI

  USAGE
    lensctl [flags] <command> [command-flags]

  COMMANDS (query)
    status          Show the status line, camera state, and uptime
    health          Check daemon, storage, and bridge health
    version         Show CLI and daemon version information
    config          Show the daemon's running configuration
    last-capture    Show the stored capture and optionally save it

  COMMANDS (buttons)
    press           One button press (captures once the window closes)
    double          Two presses in quick succession (toggles the camera)
    scroll-up       Scroll wheel up (zoom in)
    scroll-down     Scroll wheel down (zoom out)
    long-press      Long press (reserved by the host)

  COMMANDS (camera)
    start           Launch the camera, or stop it when running
    restart         Reopen the camera, optionally with another facing
    stop            Stop the camera
    switch          Flip between the rear and front camera
    zoom-in         Zoom in one step
    zoom-out        Zoom out one step
    capture         Take a picture now
    review          Show the stored capture and release the camera

  COMMANDS (analysis)
    result TEXT     Deliver an analysis answer as the bridge would

  COMMANDS (live)
    watch           Stream live events from the daemon (Ctrl-C to stop)

  GLOBAL FLAGS
    -H, --host URL      Daemon base URL (default: http://127.0.0.1:8080)
        --json          Output raw JSON instead of formatted text
        --filter TYPE   Event types to show in watch (comma-separated)

  COMMAND FLAGS
    start, restart:
        --facing MODE       environment or user

    last-capture:
    -o, --out FILE          Write the stored JPEG to FILE

    result:
        --raw               Send TEXT as a JSON value, not a string

    watch:
        --once              Exit when the connection drops

  EXAMPLES
    lensctl status
    lensctl --json status
    lensctl --host http://192.168.8.1:8080 watch
    lensctl start --facing user
    lensctl scroll-up
    lensctl press
    lensctl double
    lensctl last-capture --out shot.jpg
    lensctl result '{"title":"Mug","use":"Drinking","description":"A white mug"}'
    lensctl result --raw '{"title":"Mug"}'
    lensctl watch --filter status,analysis

`)
}
