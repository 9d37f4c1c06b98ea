package camera

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/large-farva/precision-lens/internal/status"
)

// DefaultAcquireTimeout bounds a single acquisition attempt.
const DefaultAcquireTimeout = 10 * time.Second

// Options configures a Session.
type Options struct {
	Acquirer       Acquirer
	Status         status.Publisher
	Logger         *slog.Logger
	Facing         Facing
	Limits         Limits
	AcquireTimeout time.Duration
}

// Session is the camera state machine. Mutating methods must be called from
// one goroutine (the app event loop); the read accessors are safe anywhere.
type Session struct {
	acquirer       Acquirer
	status         status.Publisher
	log            *slog.Logger
	limits         Limits
	acquireTimeout time.Duration

	mu     sync.RWMutex
	facing Facing
	zoom   float64
	stream Stream
}

// NewSession builds an inactive session at minimum zoom.
func NewSession(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Limits == (Limits{}) {
		opts.Limits = DefaultLimits
	}
	if opts.Facing == "" {
		opts.Facing = Environment
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = DefaultAcquireTimeout
	}
	return &Session{
		acquirer:       opts.Acquirer,
		status:         opts.Status,
		log:            opts.Logger.With("component", "camera"),
		limits:         opts.Limits,
		acquireTimeout: opts.AcquireTimeout,
		facing:         opts.Facing,
		zoom:           opts.Limits.Min,
	}
}

// Active reports whether a stream is held.
func (s *Session) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stream != nil
}

// Facing returns the current (or last used) facing.
func (s *Session) Facing() Facing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.facing
}

// Zoom returns the digital zoom factor.
func (s *Session) Zoom() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zoom
}

// Limits returns the zoom bounds.
func (s *Session) Limits() Limits { return s.limits }

// Start acquires a stream for facing. Calling Start on an active session
// stops it instead; use Restart to switch streams without toggling.
func (s *Session) Start(ctx context.Context, facing Facing) error {
	if s.Active() {
		s.Stop()
		return nil
	}
	return s.acquire(ctx, facing)
}

// Restart stops any active stream and then acquires a new one for facing.
// The old stream is fully released before the new request is made.
func (s *Session) Restart(ctx context.Context, facing Facing) error {
	s.release()
	return s.acquire(ctx, facing)
}

// Stop releases the stream. It is a no-op when inactive and never touches
// facing or zoom. It reports whether a stream was actually stopped.
func (s *Session) Stop() bool {
	if !s.release() {
		return false
	}
	s.log.Info("camera stopped")
	s.publish("Camera stopped.")
	return true
}

// SwitchFacing restarts the session with the opposite facing. It does
// nothing when inactive.
func (s *Session) SwitchFacing(ctx context.Context) error {
	if !s.Active() {
		return nil
	}
	return s.Restart(ctx, s.Facing().Opposite())
}

// ZoomIn raises the zoom one step, clamped to the maximum.
func (s *Session) ZoomIn() {
	s.adjustZoom(s.limits.Step)
}

// ZoomOut lowers the zoom one step, clamped to the minimum.
func (s *Session) ZoomOut() {
	s.adjustZoom(-s.limits.Step)
}

// Snapshot grabs the current frame together with zoom and facing.
func (s *Session) Snapshot() (Snapshot, error) {
	s.mu.RLock()
	stream, zoom, facing := s.stream, s.zoom, s.facing
	s.mu.RUnlock()

	if stream == nil {
		return Snapshot{}, ErrNotActive
	}
	frame, err := stream.Frame()
	if err != nil {
		return Snapshot{}, fmt.Errorf("read frame: %w", err)
	}
	return Snapshot{
		Frame:  frame,
		Width:  stream.Width(),
		Height: stream.Height(),
		Zoom:   zoom,
		Facing: facing,
	}, nil
}

// Summary is the facing/zoom status line.
func (s *Session) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("Facing: %s / Zoom: %.1fx", s.facing, s.zoom)
}

func (s *Session) acquire(ctx context.Context, facing Facing) error {
	if s.acquirer == nil {
		err := &AcquireError{Reason: ReasonNotFound}
		s.publish(fmt.Sprintf("Camera Error: %s. Tap Start to try again.", err.Reason))
		return err
	}

	actx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	defer cancel()

	stream, err := s.acquirer.Acquire(actx, facing)
	if err != nil {
		reason := Reason(err)
		s.log.Warn("camera acquisition failed", "facing", facing, "reason", reason, "error", err)
		s.publish(fmt.Sprintf("Camera Error: %s. Tap Start to try again.", reason))
		return fmt.Errorf("start %s camera: %w", facing, err)
	}

	s.mu.Lock()
	s.stream = stream
	s.facing = facing
	s.mu.Unlock()

	s.log.Info("camera started", "facing", facing, "width", stream.Width(), "height", stream.Height())
	s.applyZoom()
	return nil
}

func (s *Session) release() bool {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	if stream == nil {
		return false
	}
	stream.Stop()
	return true
}

func (s *Session) adjustZoom(delta float64) {
	s.mu.Lock()
	if s.stream == nil {
		s.mu.Unlock()
		return
	}
	s.zoom = clampZoom(s.zoom+delta, s.limits)
	s.mu.Unlock()
	s.applyZoom()
}

// applyZoom re-publishes the zoom for the active stream. Preview scaling is
// the UI's job; the capture crop reads Zoom directly.
func (s *Session) applyZoom() {
	s.publish(s.Summary())
}

func (s *Session) publish(msg string) {
	if s.status != nil {
		s.status.Publish(msg)
	}
}

// clampZoom bounds z and snaps away float drift so repeated steps land on
// the same values in both directions.
func clampZoom(z float64, l Limits) float64 {
	z = math.Round(z*1e6) / 1e6
	return math.Max(l.Min, math.Min(l.Max, z))
}
