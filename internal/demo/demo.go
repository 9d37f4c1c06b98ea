// Package demo drives the controller through a scripted session so the
// daemon, CLI, and any connected dashboard can be exercised end-to-end
// without a person at the buttons. Each round launches the camera, zooms,
// captures, flips the lens, captures again, reviews the shot and shuts the
// camera down.
package demo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/large-farva/precision-lens/internal/telemetry"
)

// Step names one scripted input. The names match the daemon's command
// types so the caller can forward them unchanged.
type Step string

const (
	StepStart   Step = "start"
	StepZoomIn  Step = "zoom_in"
	StepZoomOut Step = "zoom_out"
	StepSwitch  Step = "switch"
	StepCapture Step = "capture"
	StepReview  Step = "review"
	StepStop    Step = "stop"
)

// Script is one round of the demo, in order. Pause is slept after the step
// is sent.
var Script = []struct {
	Step  Step
	Pause time.Duration
}{
	{StepStart, 2 * time.Second},
	{StepZoomIn, 500 * time.Millisecond},
	{StepZoomIn, time.Second},
	{StepCapture, 3 * time.Second},
	{StepZoomOut, 500 * time.Millisecond},
	{StepSwitch, 2 * time.Second},
	{StepCapture, 3 * time.Second},
	{StepReview, 3 * time.Second},
	{StepStop, 0},
}

// SendFunc delivers one step to the controller and reports the status line
// that resulted.
type SendFunc func(ctx context.Context, step Step) (string, error)

// Broadcaster receives the demo's log lines.
type Broadcaster interface {
	BroadcastJSON(v any)
}

// Runner replays Script on a fixed interval.
type Runner struct {
	Send     SendFunc
	Events   Broadcaster
	Logger   *slog.Logger
	Interval time.Duration // time between rounds

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) bool
	round int
}

// New creates a demo runner with a sensible default interval.
func New(send SendFunc, events Broadcaster, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Send:     send,
		Events:   events,
		Logger:   logger.With("component", "demo"),
		Interval: 30 * time.Second,
		sleep:    sleepOrCancel,
	}
}

// Run fires one round immediately, then repeats on the configured interval
// until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	r.log(slog.LevelInfo, "demo mode active, replaying a scripted session")

	if !r.sleep(ctx, 2*time.Second) {
		return
	}
	r.RunRound(ctx)

	t := time.NewTicker(r.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.RunRound(ctx)
		}
	}
}

// RunRound plays Script once. A failed step is logged and the round carries
// on, the way a person would keep pressing buttons.
func (r *Runner) RunRound(ctx context.Context) {
	r.round++
	r.log(slog.LevelInfo, fmt.Sprintf("round %d starting", r.round))

	for _, s := range Script {
		if ctx.Err() != nil {
			return
		}
		st, err := r.Send(ctx, s.Step)
		if err != nil {
			r.log(slog.LevelWarn, fmt.Sprintf("%s: %v", s.Step, err))
		} else {
			r.Logger.Debug("step", "step", s.Step, "status", st)
		}
		if s.Pause > 0 && !r.sleep(ctx, s.Pause) {
			return
		}
	}

	r.log(slog.LevelInfo, fmt.Sprintf("round %d complete, next in %s", r.round, r.Interval.Truncate(time.Second)))
}

func (r *Runner) log(level slog.Level, msg string) {
	r.Logger.Log(context.Background(), level, msg)
	if r.Events == nil {
		return
	}
	name := "info"
	if level >= slog.LevelWarn {
		name = "warn"
	}
	r.Events.BroadcastJSON(telemetry.LogLine{
		Event:     telemetry.Stamp(telemetry.EventLog),
		Component: "demo",
		Level:     name,
		Message:   msg,
	})
}

func sleepOrCancel(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
