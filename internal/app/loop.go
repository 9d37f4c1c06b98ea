package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/large-farva/precision-lens/internal/analysis"
	"github.com/large-farva/precision-lens/internal/camera"
	"github.com/large-farva/precision-lens/internal/capture"
	"github.com/large-farva/precision-lens/internal/gesture"
)

const (
	inboxSize         = 64
	heartbeatInterval = 10 * time.Second
)

// Command types accepted by the event loop. The first four are the raw
// hardware events; the rest come from the UI or from inside the daemon.
const (
	CmdPress          = "press"
	CmdScrollUp       = "scroll_up"
	CmdScrollDown     = "scroll_down"
	CmdLongPressStart = "long_press_start"

	CmdStart   = "start"
	CmdRestart = "restart"
	CmdStop    = "stop"
	CmdSwitch  = "switch"
	CmdZoomIn  = "zoom_in"
	CmdZoomOut = "zoom_out"
	CmdCapture = "capture"
	CmdReview  = "review"
	CmdResult  = "result"
	CmdGesture = "gesture"
)

// Command is one unit of work for the event loop. Reply, when set, receives
// exactly one result; it must have room for it.
type Command struct {
	Type   string
	At     time.Time
	Facing camera.Facing
	Action gesture.Action
	Result *analysis.Payload
	Reply  chan<- CommandResult
}

// CommandResult is the response sent back through a Command's Reply channel.
type CommandResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Status  string `json:"status"`

	code int
}

// Post queues cmd without blocking. When the inbox is full the command is
// dropped, logged, and any waiting caller is told so.
func (a *App) Post(cmd Command) bool {
	if cmd.At.IsZero() {
		cmd.At = a.clock.Now()
	}
	select {
	case a.inbox <- cmd:
		return true
	default:
		a.log.Warn("inbox full, dropping event", "type", cmd.Type)
		if cmd.Reply != nil {
			cmd.Reply <- CommandResult{OK: false, Error: "controller busy", Status: a.status.Current(), code: http.StatusServiceUnavailable}
		}
		return false
	}
}

// Do posts cmd and waits for its result.
func (a *App) Do(ctx context.Context, cmd Command) CommandResult {
	reply := make(chan CommandResult, 1)
	cmd.Reply = reply
	a.Post(cmd)
	select {
	case res := <-reply:
		return res
	case <-ctx.Done():
		return CommandResult{OK: false, Error: ctx.Err().Error(), Status: a.status.Current(), code: http.StatusGatewayTimeout}
	}
}

// loop processes commands strictly in arrival order until ctx is cancelled.
func (a *App) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			a.gestures.Reset()
			return
		case cmd := <-a.inbox:
			res := a.handle(ctx, cmd)
			res.Status = a.status.Current()
			if cmd.Reply != nil {
				cmd.Reply <- res
			}
		}
	}
}

func (a *App) handle(ctx context.Context, cmd Command) CommandResult {
	switch cmd.Type {
	case CmdPress:
		a.gestures.Press(cmd.At)
		return ok("press registered")

	case CmdGesture:
		return a.onGesture(ctx, cmd.Action)

	case CmdScrollUp, CmdZoomIn:
		if !a.session.Active() {
			return ok("camera inactive, zoom ignored")
		}
		a.session.ZoomIn()
		return ok(fmt.Sprintf("zoom %.1fx", a.session.Zoom()))

	case CmdScrollDown, CmdZoomOut:
		if !a.session.Active() {
			return ok("camera inactive, zoom ignored")
		}
		a.session.ZoomOut()
		return ok(fmt.Sprintf("zoom %.1fx", a.session.Zoom()))

	case CmdLongPressStart:
		a.logEvent(slog.LevelInfo, "long press received, reserved by host")
		return ok("long press is reserved by the host")

	case CmdStart:
		facing := cmd.Facing
		if facing == "" {
			facing = a.session.Facing()
		}
		return a.toggleCamera(ctx, facing)

	case CmdRestart:
		facing := cmd.Facing
		if facing == "" {
			facing = a.session.Facing()
		}
		a.pipeline.ClearReview()
		if err := a.session.Restart(ctx, facing); err != nil {
			return fail(err)
		}
		return ok("camera restarted " + string(a.session.Facing()))

	case CmdStop:
		if a.session.Stop() {
			return ok("camera stopped")
		}
		return ok("camera already stopped")

	case CmdSwitch:
		if !a.session.Active() {
			return ok("camera inactive, facing unchanged")
		}
		a.pipeline.ClearReview()
		if err := a.session.SwitchFacing(ctx); err != nil {
			return fail(err)
		}
		return ok("facing " + string(a.session.Facing()))

	case CmdCapture:
		return a.capture(ctx)

	case CmdReview:
		if _, err := a.pipeline.ReviewLastCapture(ctx, a.session); err != nil {
			return fail(err)
		}
		return ok("reviewing last capture")

	case CmdResult:
		if cmd.Result == nil {
			return fail(errors.New("result command without payload"))
		}
		return ok(a.dispatcher.OnResult(*cmd.Result))

	default:
		return CommandResult{OK: false, Error: "unknown command: " + cmd.Type, code: http.StatusBadRequest}
	}
}

// onGesture routes a disambiguated button action: one press captures, a
// double press launches or stops the camera.
func (a *App) onGesture(ctx context.Context, act gesture.Action) CommandResult {
	a.log.Debug("gesture", "action", act)
	switch act {
	case gesture.Single:
		return a.capture(ctx)
	case gesture.Double:
		return a.toggleCamera(ctx, a.session.Facing())
	default:
		return CommandResult{OK: false, Error: "unknown gesture " + act.String(), code: http.StatusBadRequest}
	}
}

func (a *App) toggleCamera(ctx context.Context, facing camera.Facing) CommandResult {
	wasActive := a.session.Active()
	if !wasActive {
		a.pipeline.ClearReview()
	}
	if err := a.session.Start(ctx, facing); err != nil {
		return fail(err)
	}
	if wasActive {
		return ok("camera stopped")
	}
	return ok("camera started " + string(a.session.Facing()))
}

func (a *App) capture(ctx context.Context) CommandResult {
	if err := a.pipeline.Trigger(ctx, a.session); err != nil {
		if errors.Is(err, capture.ErrBusy) {
			a.logEvent(slog.LevelDebug, "capture ignored, previous still running")
		}
		return fail(err)
	}
	return ok("capture started")
}

func ok(msg string) CommandResult {
	return CommandResult{OK: true, Message: msg, code: http.StatusOK}
}

// fail maps domain errors to a result and an HTTP status.
func fail(err error) CommandResult {
	code := http.StatusInternalServerError
	var acqErr *camera.AcquireError
	switch {
	case errors.Is(err, capture.ErrCameraInactive), errors.Is(err, capture.ErrBusy):
		code = http.StatusConflict
	case errors.Is(err, capture.ErrNoCapture):
		code = http.StatusNotFound
	case errors.Is(err, capture.ErrStorageUnavailable), errors.Is(err, analysis.ErrBridgeUnavailable):
		code = http.StatusServiceUnavailable
	case errors.As(err, &acqErr), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusBadGateway
	}
	return CommandResult{OK: false, Error: err.Error(), code: code}
}
