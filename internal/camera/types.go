// Package camera owns the single active video stream: its facing, digital
// zoom level and lifecycle. Media acquisition itself is an injected
// capability (Acquirer) so the session logic does not care whether frames
// come from hardware, a still image or a synthetic pattern.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// Facing is the camera orientation.
type Facing string

const (
	Environment Facing = "environment" // outward
	User        Facing = "user"        // inward
)

// Opposite returns the other facing.
func (f Facing) Opposite() Facing {
	if f == User {
		return Environment
	}
	return User
}

// ParseFacing validates a facing name. Empty means Environment.
func ParseFacing(s string) (Facing, error) {
	switch Facing(s) {
	case Environment, User:
		return Facing(s), nil
	case "":
		return Environment, nil
	default:
		return "", fmt.Errorf("unknown facing %q", s)
	}
}

// Stream is a live video source handed out by an Acquirer. Stop must release
// every underlying track and be safe to call more than once.
type Stream interface {
	Width() int
	Height() int
	Frame() (image.Image, error)
	Stop()
}

// Acquirer requests a stream for the given facing. Failures should be
// reported as *AcquireError so the reason reaches the status line.
type Acquirer interface {
	Acquire(ctx context.Context, facing Facing) (Stream, error)
}

// Acquisition failure reasons, named after the browser media errors the
// device UI already understands.
const (
	ReasonNotAllowed  = "NotAllowedError"
	ReasonNotFound    = "NotFoundError"
	ReasonNotReadable = "NotReadableError"
	ReasonAbort       = "AbortError"
	ReasonTimeout     = "TimeoutError"
	ReasonUnknown     = "UnknownError"
)

// AcquireError is a named acquisition failure.
type AcquireError struct {
	Reason string
	Err    error
}

func (e *AcquireError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("acquire camera: %s: %v", e.Reason, e.Err)
	}
	return "acquire camera: " + e.Reason
}

func (e *AcquireError) Unwrap() error { return e.Err }

// Reason extracts the failure name from an acquisition error.
func Reason(err error) string {
	var ae *AcquireError
	switch {
	case errors.As(err, &ae):
		return ae.Reason
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonAbort
	default:
		return ReasonUnknown
	}
}

var (
	// ErrNotActive is returned by operations that need a running stream.
	ErrNotActive = errors.New("camera not active")
	// ErrStreamStopped is returned by Frame after Stop.
	ErrStreamStopped = errors.New("stream stopped")
)

// Limits bounds the digital zoom.
type Limits struct {
	Min  float64
	Max  float64
	Step float64
}

// DefaultLimits is 1.0x–3.0x in 0.2 steps.
var DefaultLimits = Limits{Min: 1.0, Max: 3.0, Step: 0.2}

// Snapshot is one frame plus the session parameters it was taken under.
type Snapshot struct {
	Frame  image.Image
	Width  int
	Height int
	Zoom   float64
	Facing Facing
}
