package ctl

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// WatchOptions controls the watch command behavior.
type WatchOptions struct {
	Filter []string // event types to show (empty = all)
	JSON   bool     // output raw JSON per event
	Once   bool     // exit when the connection drops instead of redialing
}

// redialDelay is the pause between reconnect attempts after lensd goes away.
const redialDelay = 2 * time.Second

// Watch connects to the daemon's WebSocket endpoint and streams events to
// the terminal in a human-readable format until interrupted. A dropped
// connection is redialed so a daemon restart does not end the session.
func Watch(baseURL string, opts WatchOptions) error {
	wsURL, err := wsEndpoint(baseURL)
	if err != nil {
		return err
	}
	if len(opts.Filter) > 0 {
		// Filtered by the daemon and again locally.
		wsURL += "?types=" + url.QueryEscape(strings.Join(opts.Filter, ","))
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	keep := eventFilter(opts.Filter)
	first := true
	for {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			if first || opts.Once {
				return err
			}
			select {
			case <-sig:
				return nil
			case <-time.After(redialDelay):
				continue
			}
		}

		if !opts.JSON {
			printConnected(wsURL, opts.Filter, first)
		}
		first = false

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}
				if !keep(msg) {
					continue
				}
				if opts.JSON {
					fmt.Println(string(msg))
				} else {
					renderEvent(msg)
				}
			}
		}()

		select {
		case <-sig:
			if !opts.JSON {
				fmt.Println()
				fmt.Println(colorize(dim, "  disconnecting..."))
			}
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
				time.Now().Add(1*time.Second),
			)
			conn.Close()
			return nil
		case <-done:
			conn.Close()
			if opts.Once {
				return nil
			}
			if !opts.JSON {
				fmt.Println(colorize(yellow, "  connection lost, redialing..."))
			}
		}
	}
}

// wsEndpoint turns the daemon's base URL into its /ws address.
func wsEndpoint(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

// eventFilter returns a predicate over raw events. Messages that are not
// JSON objects always pass so nothing is hidden by accident.
func eventFilter(types []string) func([]byte) bool {
	if len(types) == 0 {
		return func([]byte) bool { return true }
	}
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[strings.TrimSpace(t)] = true
	}
	return func(msg []byte) bool {
		var ev struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &ev); err != nil {
			return true
		}
		return set[ev.Type]
	}
}

func printConnected(wsURL string, filter []string, first bool) {
	if first {
		fmt.Println()
	}
	fmt.Printf("  %s %s\n", colorize(green, "connected"), colorize(dim, wsURL))
	if first && len(filter) > 0 {
		fmt.Printf("  %s %s\n", colorize(dim, "filter:"), colorize(dim, strings.Join(filter, ", ")))
	}
	if first {
		fmt.Println(colorize(dim, "  "+strings.Repeat("─", 50)))
		fmt.Println()
	}
}

// renderEvent parses a JSON event and prints it in a human-friendly format.
// Falls back to raw JSON for unrecognized event types.
func renderEvent(raw []byte) {
	var ev map[string]any
	if err := json.Unmarshal(raw, &ev); err != nil {
		fmt.Printf("  %s\n", string(raw))
		return
	}

	evType, _ := ev["type"].(string)
	ts := formatEventTime(ev)

	switch evType {
	case "heartbeat":
		// Heartbeats are noisy, so they get one dimmed line.
		status, _ := ev["status"].(string)
		uptime, _ := ev["uptime_seconds"].(float64)
		camera := "camera off"
		if active, _ := ev["camera_active"].(bool); active {
			facing, _ := ev["facing"].(string)
			zoom, _ := ev["zoom"].(float64)
			camera = fmt.Sprintf("%s @ %.1fx", facing, zoom)
		}
		fmt.Printf("  %s %s  %s  %s  up %s\n",
			colorize(dim, ts),
			colorize(dim, "heartbeat"),
			colorize(statusColor(status), status),
			colorize(dim, camera),
			colorize(dim, formatDuration(time.Duration(uptime)*time.Second)),
		)

	case "status":
		to, _ := ev["to"].(string)
		fmt.Printf("  %s %s  %s\n",
			colorize(dim, ts),
			colorize(bold, "STATUS"),
			colorize(statusColor(to), to),
		)

	case "log":
		level, _ := ev["level"].(string)
		message, _ := ev["message"].(string)
		component, _ := ev["component"].(string)
		levelStr := formatLogLevel(level)
		src := ""
		if component != "" {
			src = colorize(dim, "["+component+"] ")
		}
		fmt.Printf("  %s %s  %s%s\n", colorize(dim, ts), levelStr, src, message)

	case "feedback":
		if on, _ := ev["on"].(bool); on {
			kind, _ := ev["kind"].(string)
			fmt.Printf("  %s %s\n", colorize(dim, ts), colorize(yellow, strings.ToUpper(kind)))
		}

	case "capture":
		id, _ := ev["id"].(string)
		size, _ := ev["bytes"].(float64)
		facing, _ := ev["facing"].(string)
		zoom, _ := ev["zoom"].(float64)
		fmt.Printf("  %s %s  %s  %s @ %.1fx  %s\n",
			colorize(dim, ts),
			colorize(blue, padRight("CAPTURE", 8)),
			id,
			facing,
			zoom,
			colorize(dim, formatBytes(int64(size))),
		)

	case "review":
		img, _ := ev["image"].(string)
		fmt.Printf("  %s %s  %s\n", colorize(dim, ts), colorize(blue, padRight("REVIEW", 8)), colorize(dim, fmt.Sprintf("%d chars", len(img))))

	case "analysis":
		title, _ := ev["title"].(string)
		text, _ := ev["text"].(string)
		fmt.Println()
		fmt.Printf("  %s %s\n", colorize(dim, ts), header("ANALYSIS"))
		if title != "" {
			use, _ := ev["use"].(string)
			desc, _ := ev["description"].(string)
			fmt.Printf("    %-14s %s\n", colorize(dim, "Title:"), colorize(bold, title))
			fmt.Printf("    %-14s %s\n", colorize(dim, "Use:"), use)
			fmt.Printf("    %-14s %s\n", colorize(dim, "Description:"), desc)
		} else {
			fmt.Printf("    %s\n", text)
		}
		fmt.Println()

	default:
		// Unknown event type, dumped as indented JSON so nothing is lost.
		pretty, err := json.MarshalIndent(ev, "  ", "  ")
		if err != nil {
			fmt.Printf("  %s\n", string(raw))
			return
		}
		fmt.Printf("  %s\n", string(pretty))
	}
}

// formatEventTime extracts and shortens the timestamp from an event.
func formatEventTime(ev map[string]any) string {
	tsRaw, ok := ev["ts"].(string)
	if !ok {
		return "        "
	}
	t, err := time.Parse(time.RFC3339Nano, tsRaw)
	if err != nil {
		return tsRaw
	}
	return t.Local().Format("15:04:05")
}

// formatLogLevel returns a colored, fixed-width log level label.
func formatLogLevel(level string) string {
	switch level {
	case "info":
		return colorize(green, "INFO ")
	case "warn":
		return colorize(yellow, "WARN ")
	case "error":
		return colorize(red, "ERROR")
	default:
		return padRight(level, 5)
	}
}
