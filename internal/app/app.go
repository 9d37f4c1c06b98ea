// Package app wires together the HTTP server, WebSocket hub, and the capture
// controller: camera session, capture pipeline, analysis dispatcher and
// gesture disambiguator. Every input, hardware or UI, is funnelled through
// one event loop so the components never see concurrent mutation.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/large-farva/precision-lens/internal/analysis"
	"github.com/large-farva/precision-lens/internal/camera"
	"github.com/large-farva/precision-lens/internal/capture"
	"github.com/large-farva/precision-lens/internal/config"
	"github.com/large-farva/precision-lens/internal/demo"
	"github.com/large-farva/precision-lens/internal/gesture"
	"github.com/large-farva/precision-lens/internal/status"
	"github.com/large-farva/precision-lens/internal/store"
	"github.com/large-farva/precision-lens/internal/telemetry"
	"github.com/large-farva/precision-lens/internal/ws"
)

// Options holds everything the App needs from the caller. Acquirer, Store
// and Bridge override what the config would build; leave them nil to use
// the config. NoStore and NoBridge force the capability to be absent.
type Options struct {
	Logger     *slog.Logger
	Cfg        config.Config
	Bind       string
	ConfigPath string

	Acquirer camera.Acquirer
	Store    store.Plain
	NoStore  bool
	Bridge   analysis.Bridge
	NoBridge bool
	Clock    gesture.Clock
}

// App is the top-level daemon process.
type App struct {
	log        *slog.Logger
	baseLog    *slog.Logger
	cfg        config.Config
	configPath string
	bind       string
	server     *http.Server
	startedAt  time.Time

	hub        *ws.Hub
	status     *status.Sink
	session    *camera.Session
	pipeline   *capture.Pipeline
	dispatcher *analysis.Dispatcher
	gestures   *gesture.Disambiguator
	store      store.Plain
	bridge     analysis.Bridge

	clock gesture.Clock
	inbox chan Command

	mu      sync.Mutex
	started bool
}

// New builds an App from opts, opening the storage backend and the analysis
// bridge named in the config. Call Run to start serving, or Start to run the
// event loop without a listener.
func New(ctx context.Context, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Cfg
	policy, err := gesture.ParsePolicy(cfg.Gesture.Policy)
	if err != nil {
		return nil, err
	}

	a := &App{
		log:        logger.With("component", "lensd"),
		baseLog:    logger,
		cfg:        cfg,
		configPath: opts.ConfigPath,
		bind:       opts.Bind,
		startedAt:  time.Now(),
		hub:        ws.NewHub(),
		status:     status.NewSink(),
		inbox:      make(chan Command, inboxSize),
	}

	switch {
	case opts.NoStore:
	case opts.Store != nil:
		a.store = opts.Store
	default:
		st, err := store.Open(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
		}
		a.store = st
	}

	switch {
	case opts.NoBridge:
	case opts.Bridge != nil:
		a.bridge = opts.Bridge
	default:
		a.bridge = buildBridge(cfg.Analysis, logger)
	}

	acq := opts.Acquirer
	if acq == nil {
		acq = buildAcquirer(cfg.Camera)
	}
	facing, _ := camera.ParseFacing(cfg.Camera.DefaultFacing)
	a.session = camera.NewSession(camera.Options{
		Acquirer: acq,
		Status:   a.status,
		Logger:   logger,
		Facing:   facing,
		Limits: camera.Limits{
			Min:  cfg.Camera.MinZoom,
			Max:  cfg.Camera.MaxZoom,
			Step: cfg.Camera.ZoomStep,
		},
		AcquireTimeout: cfg.Camera.AcquireTimeout(),
	})

	a.dispatcher = analysis.New(analysis.Options{
		Bridge:       a.bridge,
		Status:       a.status,
		Events:       a.hub,
		Logger:       logger,
		Timeout:      cfg.Analysis.Timeout(),
		PreviewChars: cfg.Analysis.PreviewChars,
	})
	// Answers from bridges that deliver their own go through the loop so
	// they keep arrival order with everything else.
	if sub, ok := a.bridge.(analysis.Subscriber); ok {
		sub.Subscribe(func(p analysis.Payload) {
			a.Post(Command{Type: CmdResult, Result: &p})
		})
	}

	a.pipeline = capture.New(capture.Options{
		Store:      a.store,
		Dispatcher: a.dispatcher,
		Status:     a.status,
		Events:     a.hub,
		Logger:     logger,
		Width:      cfg.Capture.Width,
		Height:     cfg.Capture.Height,
		Quality:    cfg.Capture.JPEGQuality,
		StorageKey: cfg.Capture.StorageKey,
	})

	clock := opts.Clock
	if clock == nil {
		clock = gesture.SystemClock{}
	}
	a.clock = clock
	a.gestures = gesture.New(policy, cfg.Gesture.Window(), clock, func(act gesture.Action) {
		a.Post(Command{Type: CmdGesture, Action: act})
	})

	a.status.Observe(func(c status.Change) {
		a.log.Info("status", "from", c.From, "to", c.To)
		a.hub.BroadcastJSON(telemetry.StatusChange{
			Event: telemetry.Stamp(telemetry.EventStatus),
			From:  c.From,
			To:    c.To,
		})
	})
	a.hub.OnConnect(func() []any {
		return []any{
			telemetry.StatusChange{Event: telemetry.Stamp(telemetry.EventStatus), To: a.status.Current()},
			a.heartbeat(),
		}
	})

	return a, nil
}

func buildAcquirer(cfg config.CameraConfig) camera.Acquirer {
	if cfg.Source == "image" {
		return &camera.StillAcquirer{Path: cfg.ImagePath}
	}
	var unavailable []camera.Facing
	for _, f := range cfg.Unavailable {
		unavailable = append(unavailable, camera.Facing(f))
	}
	return camera.NewSyntheticAcquirer(cfg.Width, cfg.Height, unavailable...)
}

func buildBridge(cfg config.AnalysisConfig, logger *slog.Logger) analysis.Bridge {
	switch cfg.Bridge {
	case "websocket":
		return analysis.NewWebSocketBridge(cfg.BridgeURL, logger)
	case "ollama":
		return analysis.NewOllamaBridge(cfg.OllamaURL, cfg.OllamaModel, cfg.Timeout(), logger)
	default:
		return nil
	}
}

// Status is the current status line.
func (a *App) Status() string { return a.status.Current() }

// Start launches the hub, the event loop and the heartbeat. It returns
// immediately; everything stops when ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	a.mu.Unlock()

	go a.hub.Run(ctx)
	go a.loop(ctx)
	go a.heartbeatLoop(ctx)
	a.logEvent(slog.LevelInfo, "controller started", "policy", a.gestures.Policy(), "storage", a.cfg.Storage.Backend, "bridge", a.cfg.Analysis.Bridge)

	if a.cfg.Demo.Enabled {
		r := demo.New(a.demoStep, a.hub, a.baseLog)
		r.Interval = a.cfg.Demo.Interval()
		go r.Run(ctx)
	}
}

// demoStep forwards one scripted step through the event loop like any
// other input.
func (a *App) demoStep(ctx context.Context, step demo.Step) (string, error) {
	res := a.Do(ctx, Command{Type: string(step)})
	if !res.OK {
		return res.Status, errors.New(res.Error)
	}
	return res.Status, nil
}

// Run starts the HTTP server and the controller. It blocks until the
// context is cancelled or the server returns an error.
func (a *App) Run(ctx context.Context) error {
	bind := a.bind
	if bind == "" && a.cfg.Server.Bind != "" {
		bind = a.cfg.Server.Bind
	}
	if bind == "" {
		bind = "127.0.0.1:8080"
	}

	a.server = &http.Server{
		Addr:              bind,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}
	a.log.Info("listening", "addr", "http://"+bind)

	a.Start(ctx)

	go func() {
		<-ctx.Done()
		a.log.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.server.Shutdown(shutdownCtx)
	}()

	return a.server.Serve(ln)
}

// Close waits for an in-flight capture, releases the camera and closes the
// storage backend and bridge.
func (a *App) Close() error {
	a.pipeline.Wait()
	a.session.Stop()
	if c, ok := a.bridge.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	if w, ok := a.bridge.(interface{ Wait() }); ok {
		w.Wait()
	}
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// heartbeatLoop sends a periodic heartbeat event so clients can detect
// connectivity and track the camera without polling.
func (a *App) heartbeatLoop(ctx context.Context) {
	t := time.NewTicker(heartbeatInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.hub.BroadcastJSON(a.heartbeat())
		}
	}
}

func (a *App) heartbeat() telemetry.Heartbeat {
	return telemetry.Heartbeat{
		Event:         telemetry.Stamp(telemetry.EventHeartbeat),
		Status:        a.status.Current(),
		CameraActive:  a.session.Active(),
		Facing:        string(a.session.Facing()),
		Zoom:          a.session.Zoom(),
		UptimeSeconds: int64(time.Since(a.startedAt).Seconds()),
	}
}

// logEvent writes a log line and mirrors it to websocket clients.
func (a *App) logEvent(level slog.Level, msg string, args ...any) {
	a.log.Log(context.Background(), level, msg, args...)
	text := msg
	for i := 0; i+1 < len(args); i += 2 {
		text += fmt.Sprintf(" %v=%v", args[i], args[i+1])
	}
	a.hub.BroadcastJSON(telemetry.LogLine{
		Event:     telemetry.Stamp(telemetry.EventLog),
		Component: "lensd",
		Level:     levelName(level),
		Message:   text,
	})
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warn"
	case l >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
