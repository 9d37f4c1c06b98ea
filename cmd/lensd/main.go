// Lensd is the capture controller daemon for Precision Lens.
//
// It loads configuration, opens the storage backend and analysis bridge,
// starts the HTTP/WebSocket server, and funnels every button and UI input
// through one event loop. Shutdown is handled gracefully on SIGINT or
// SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/large-farva/precision-lens/internal/app"
	"github.com/large-farva/precision-lens/internal/config"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "Path to config TOML (defaults apply when empty)")
		bind       = pflag.String("bind", "", "HTTP bind address (overrides server.bind)")
		demoMode   = pflag.Bool("demo", false, "Replay a scripted session on a loop")
	)
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "path", *configPath, "err", err)
		os.Exit(1)
	}
	if *demoMode {
		cfg.Demo.Enabled = true
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Logging.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, app.Options{
		Logger:     logger,
		Cfg:        cfg,
		Bind:       *bind,
		ConfigPath: *configPath,
	})
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}

	runErr := a.Run(ctx)
	if err := a.Close(); err != nil {
		logger.Warn("close", "err", err)
	}
	if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
		logger.Error("lensd failed", "err", runErr)
		os.Exit(1)
	}

	// Brief pause so in-flight log writes can flush before exit.
	time.Sleep(50 * time.Millisecond)
}
