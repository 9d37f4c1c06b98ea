package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/large-farva/precision-lens/internal/analysis"
	"github.com/large-farva/precision-lens/internal/camera"
	"github.com/large-farva/precision-lens/internal/capture"
)

// commandTimeout bounds how long an HTTP request waits for the loop. It
// covers a queued camera acquisition.
const commandTimeout = 30 * time.Second

// Handler returns the daemon's HTTP routes.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/api/version", a.handleVersion)
	mux.HandleFunc("/api/config", a.handleConfig)

	mux.HandleFunc("/api/input/{event}", a.handleInput)

	mux.HandleFunc("/api/camera/start", a.cameraStartHandler(CmdStart))
	mux.HandleFunc("/api/camera/restart", a.cameraStartHandler(CmdRestart))
	mux.HandleFunc("/api/camera/stop", a.commandHandler(CmdStop))
	mux.HandleFunc("/api/camera/switch", a.commandHandler(CmdSwitch))
	mux.HandleFunc("/api/camera/zoom-in", a.commandHandler(CmdZoomIn))
	mux.HandleFunc("/api/camera/zoom-out", a.commandHandler(CmdZoomOut))

	mux.HandleFunc("/api/capture", a.commandHandler(CmdCapture))
	mux.HandleFunc("/api/review", a.handleReview)
	mux.HandleFunc("/api/last-capture", a.handleLastCapture)
	mux.HandleFunc("/api/analysis/result", a.handleAnalysisResult)

	mux.Handle("/ws", a.hub.Handler())
	return mux
}

// ---------------------------------------------------------------------------
// Core handlers
// ---------------------------------------------------------------------------

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	// If the client asks for JSON, return component-level health checks.
	if r.Header.Get("Accept") == "application/json" {
		a.handleHealthDetailed(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"name":           "precision-lens",
		"status":         a.status.Current(),
		"uptime_seconds": int64(time.Since(a.startedAt).Seconds()),
		"camera": map[string]any{
			"active": a.session.Active(),
			"facing": a.session.Facing(),
			"zoom":   a.session.Zoom(),
		},
		"capture_busy":  a.pipeline.Busy(),
		"reviewing":     a.pipeline.Review() != "",
		"gesture":       a.gestures.Policy(),
		"storage":       a.storageName(),
		"bridge":        a.bridgeName(),
		"ws_clients":    a.hub.Clients(),
		"data_root":     a.cfg.Data.Root,
		"pending_press": a.gestures.Pending(),
	}

	if du := diskUsage(a.cfg.Data.Root); du != nil {
		resp["disk"] = du
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *App) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    Version,
		"go_version": GoVersion,
		"built_at":   BuiltAt,
		"runtime":    runtime.Version(),
	})
}

func (a *App) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.cfg)
}

func (a *App) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	checks := map[string]any{}
	allOK := true

	// Check data directory.
	tmpPath := filepath.Join(a.cfg.Data.Root, ".healthcheck")
	if err := os.WriteFile(tmpPath, []byte("ok"), 0o644); err != nil {
		checks["data_dir"] = map[string]any{"ok": false, "error": err.Error()}
		allOK = false
	} else {
		os.Remove(tmpPath)
		checks["data_dir"] = map[string]any{"ok": true, "path": a.cfg.Data.Root}
	}

	// Storage is optional; report it but only fail when it is wired and broken.
	if a.store == nil {
		checks["storage"] = map[string]any{"ok": true, "backend": "none"}
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		_, _, err := a.store.GetItem(ctx, a.pipeline.StorageKey())
		cancel()
		if err != nil {
			checks["storage"] = map[string]any{"ok": false, "backend": a.storageName(), "error": err.Error()}
			allOK = false
		} else {
			checks["storage"] = map[string]any{"ok": true, "backend": a.storageName()}
		}
	}

	bridge := map[string]any{"ok": true, "kind": a.bridgeName()}
	if p, ok := a.bridge.(interface{ IsAvailable(context.Context) bool }); ok {
		if !p.IsAvailable(r.Context()) {
			bridge["ok"] = false
			bridge["error"] = "bridge not reachable"
			allOK = false
		}
	}
	checks["bridge"] = bridge

	// Config file readable.
	if a.configPath != "" {
		if _, err := os.Stat(a.configPath); err != nil {
			checks["config_file"] = map[string]any{"ok": false, "error": err.Error()}
			allOK = false
		} else {
			checks["config_file"] = map[string]any{"ok": true, "path": a.configPath}
		}
	}

	code := http.StatusOK
	if !allOK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"healthy": allOK,
		"checks":  checks,
	})
}

// ---------------------------------------------------------------------------
// Input and camera controls
// ---------------------------------------------------------------------------

func (a *App) handleInput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	event := r.PathValue("event")
	switch event {
	case CmdPress, CmdScrollUp, CmdScrollDown, CmdLongPressStart:
	default:
		jsonError(w, "unknown input event "+event, http.StatusNotFound)
		return
	}
	a.runCommand(w, r, Command{Type: event})
}

// cameraStartHandler serves start and restart, which share the optional
// {"facing": "user"} body.
func (a *App) cameraStartHandler(cmdType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var body struct {
			Facing string `json:"facing"`
		}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
				http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
				return
			}
		}
		var facing camera.Facing
		if body.Facing != "" {
			f, err := camera.ParseFacing(body.Facing)
			if err != nil {
				jsonError(w, err.Error(), http.StatusBadRequest)
				return
			}
			facing = f
		}
		a.runCommand(w, r, Command{Type: cmdType, Facing: facing})
	}
}

// commandHandler serves a bodiless POST that maps to one loop command.
func (a *App) commandHandler(cmdType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		a.runCommand(w, r, Command{Type: cmdType})
	}
}

// ---------------------------------------------------------------------------
// Review and results
// ---------------------------------------------------------------------------

func (a *App) handleReview(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.runCommand(w, r, Command{Type: CmdReview})
	case http.MethodGet:
		img := a.pipeline.Review()
		if img == "" {
			jsonError(w, "nothing under review", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"image": img})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *App) handleLastCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	img, meta, err := a.pipeline.LastCapture(r.Context())
	switch {
	case errors.Is(err, capture.ErrStorageUnavailable):
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	case errors.Is(err, capture.ErrNoCapture):
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"image": img,
		"meta":  meta,
	})
}

func (a *App) handleAnalysisResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var p analysis.Payload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	a.runCommand(w, r, Command{Type: CmdResult, Result: &p})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// runCommand sends cmd through the event loop and writes its result.
func (a *App) runCommand(w http.ResponseWriter, r *http.Request, cmd Command) {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	writeCommandResult(w, a.Do(ctx, cmd))
}

func (a *App) storageName() string {
	switch {
	case a.store == nil:
		return "none"
	case a.cfg.Storage.Backend == "none":
		return "custom"
	default:
		return a.cfg.Storage.Backend
	}
}

func (a *App) bridgeName() string {
	switch {
	case a.bridge == nil:
		return "none"
	case a.cfg.Analysis.Bridge == "none":
		return "custom"
	default:
		return a.cfg.Analysis.Bridge
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]any{
		"ok":    false,
		"error": msg,
	})
}

// writeCommandResult writes a CommandResult as JSON.
func writeCommandResult(w http.ResponseWriter, result CommandResult) {
	code := result.code
	if code == 0 {
		code = http.StatusOK
		if !result.OK {
			code = http.StatusInternalServerError
		}
	}
	writeJSON(w, code, result)
}
