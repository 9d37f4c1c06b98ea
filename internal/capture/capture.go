// Package capture turns the live camera frame into a stored, dispatched
// JPEG. A Pipeline runs at most one capture at a time; triggers that arrive
// while one is in flight are dropped rather than queued.
package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/large-farva/precision-lens/internal/camera"
	"github.com/large-farva/precision-lens/internal/status"
	"github.com/large-farva/precision-lens/internal/store"
	"github.com/large-farva/precision-lens/internal/telemetry"
)

// Status lines published by the pipeline.
const (
	StatusLaunchFirst    = "Launch camera first!"
	StatusCaptured       = "Captured. Storing and Sending to LLM..."
	StatusReviewing      = "Reviewing Last Captured Photo."
	StatusNoPhoto        = "No photo found in storage."
	StatusStorageMissing = "Storage API not available."
)

const (
	DefaultStorageKey    = "last_capture"
	DefaultWidth         = 240
	DefaultHeight        = 282
	DefaultQuality       = 92
	DefaultFeedbackFlash = 200 * time.Millisecond
)

var (
	// ErrCameraInactive is returned when a trigger arrives with no stream.
	ErrCameraInactive = errors.New("camera not active")
	// ErrBusy is returned when a capture is already in flight.
	ErrBusy = errors.New("capture in progress")
	// ErrStorageUnavailable is returned by review when no store is wired.
	ErrStorageUnavailable = errors.New("storage not available")
	// ErrNoCapture is returned by review when the slot is empty.
	ErrNoCapture = errors.New("no stored capture")
)

// Source is the camera as the pipeline sees it.
type Source interface {
	Active() bool
	Snapshot() (camera.Snapshot, error)
}

// Stopper releases the camera before a review takes over the display.
type Stopper interface {
	Stop() bool
}

// Dispatcher forwards an encoded image for analysis.
type Dispatcher interface {
	Dispatch(ctx context.Context, jpeg []byte) error
}

// Broadcaster receives UI events. *ws.Hub satisfies it.
type Broadcaster interface {
	BroadcastJSON(v any)
}

// Meta describes the stored capture. It is kept next to the image under
// MetaKey so clients can tell captures apart.
type Meta struct {
	ID         string    `json:"id"`
	Zoom       float64   `json:"zoom"`
	Facing     string    `json:"facing"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Bytes      int       `json:"bytes"`
	CapturedAt time.Time `json:"captured_at"`
}

// MetaKey is the storage key holding Meta for the image stored under key.
func MetaKey(key string) string { return key + ".meta" }

// Options configures a Pipeline. Store, Dispatcher and Events may be nil.
type Options struct {
	Store      store.Plain
	Dispatcher Dispatcher
	Status     status.Publisher
	Events     Broadcaster
	Logger     *slog.Logger

	Width         int
	Height        int
	Quality       int
	StorageKey    string
	FeedbackFlash time.Duration
}

// Pipeline is the busy-guarded capture → crop → store → dispatch sequence.
type Pipeline struct {
	opts Options
	log  *slog.Logger

	busy atomic.Bool
	wg   sync.WaitGroup

	mu     sync.RWMutex
	review string
}

// New builds a pipeline, filling unset options with defaults.
func New(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = DefaultWidth, DefaultHeight
	}
	if opts.Quality <= 0 {
		opts.Quality = DefaultQuality
	}
	if opts.StorageKey == "" {
		opts.StorageKey = DefaultStorageKey
	}
	if opts.FeedbackFlash <= 0 {
		opts.FeedbackFlash = DefaultFeedbackFlash
	}
	return &Pipeline{
		opts: opts,
		log:  opts.Logger.With("component", "capture"),
	}
}

// Busy reports whether a capture is in flight.
func (p *Pipeline) Busy() bool { return p.busy.Load() }

// StorageKey is the slot captures are written to.
func (p *Pipeline) StorageKey() string { return p.opts.StorageKey }

// Trigger starts a capture from src. The frame is read before Trigger
// returns; encoding, storing and dispatch continue in the background until
// Wait. ctx must outlive the background work.
func (p *Pipeline) Trigger(ctx context.Context, src Source) error {
	if src == nil || !src.Active() {
		p.publish(StatusLaunchFirst)
		return ErrCameraInactive
	}
	if !p.busy.CompareAndSwap(false, true) {
		p.log.Debug("capture ignored, another is in flight")
		return ErrBusy
	}

	snap, err := src.Snapshot()
	if err != nil {
		p.busy.Store(false)
		if errors.Is(err, camera.ErrNotActive) {
			p.publish(StatusLaunchFirst)
			return ErrCameraInactive
		}
		p.publish(fmt.Sprintf("Capture failed: %v", err))
		return fmt.Errorf("snapshot: %w", err)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.busy.Store(false)
		p.run(ctx, snap)
	}()
	return nil
}

// Wait blocks until any in-flight capture has finished.
func (p *Pipeline) Wait() { p.wg.Wait() }

func (p *Pipeline) run(ctx context.Context, snap camera.Snapshot) {
	p.flash()

	jpegBytes, err := render(snap.Frame, snap.Width, snap.Height, snap.Zoom, p.opts.Width, p.opts.Height, p.opts.Quality)
	if err != nil {
		p.log.Error("capture failed", "error", err)
		p.publish(fmt.Sprintf("Capture failed: %v", err))
		return
	}

	meta := Meta{
		ID:         uuid.NewString(),
		Zoom:       snap.Zoom,
		Facing:     string(snap.Facing),
		Width:      p.opts.Width,
		Height:     p.opts.Height,
		Bytes:      len(jpegBytes),
		CapturedAt: time.Now().UTC(),
	}
	p.log.Info("captured", "id", meta.ID, "bytes", meta.Bytes, "zoom", meta.Zoom, "facing", meta.Facing)
	p.publish(StatusCaptured)
	p.emit(telemetry.Capture{
		Event:  telemetry.Stamp(telemetry.EventCapture),
		ID:     meta.ID,
		Bytes:  meta.Bytes,
		Width:  meta.Width,
		Height: meta.Height,
		Zoom:   meta.Zoom,
		Facing: meta.Facing,
	})

	p.persist(ctx, jpegBytes, meta)

	if p.opts.Dispatcher == nil {
		p.log.Warn("no analysis dispatcher wired")
		return
	}
	if err := p.opts.Dispatcher.Dispatch(ctx, jpegBytes); err != nil {
		p.log.Warn("dispatch failed", "id", meta.ID, "error", err)
	}
}

// persist writes the capture into the single slot. Failures are logged and
// never stop the dispatch.
func (p *Pipeline) persist(ctx context.Context, jpegBytes []byte, meta Meta) {
	if p.opts.Store == nil {
		p.log.Warn("plain storage not available, capture not persisted", "id", meta.ID)
		return
	}
	if err := p.opts.Store.SetItem(ctx, p.opts.StorageKey, DataURL(jpegBytes)); err != nil {
		p.log.Error("store capture", "id", meta.ID, "error", err)
		return
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return
	}
	if err := p.opts.Store.SetItem(ctx, MetaKey(p.opts.StorageKey), string(b)); err != nil {
		p.log.Warn("store capture metadata", "id", meta.ID, "error", err)
	}
}

// flash emits the shutter feedback and its end. Delivery is best-effort.
func (p *Pipeline) flash() {
	if p.opts.Events == nil {
		return
	}
	p.emit(telemetry.Feedback{Event: telemetry.Stamp(telemetry.EventFeedback), Kind: "flash", On: true})
	time.AfterFunc(p.opts.FeedbackFlash, func() {
		p.emit(telemetry.Feedback{Event: telemetry.Stamp(telemetry.EventFeedback), Kind: "flash", On: false})
	})
}

func (p *Pipeline) emit(v any) {
	if p.opts.Events != nil {
		p.opts.Events.BroadcastJSON(v)
	}
}

func (p *Pipeline) publish(msg string) {
	if p.opts.Status != nil {
		p.opts.Status.Publish(msg)
	}
}
