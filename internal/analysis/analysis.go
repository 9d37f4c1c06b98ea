// Package analysis sends captured images to the LLM bridge and turns the
// asynchronous answer into a status line.
package analysis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/large-farva/precision-lens/internal/status"
	"github.com/large-farva/precision-lens/internal/telemetry"
)

// Instruction is sent with every image. The bridge's model is asked for a
// strict JSON object so the title can be read back.
const Instruction = "Analyze this image and provide a concise description, a potential use, and respond ONLY with valid JSON in this format: {\"title\":\"...\",\"use\":\"...\",\"description\":\"...\"}"

const (
	StatusUnavailable = "Plugin API not available for LLM."
	StatusComplete    = "Analysis Complete."
	StatusTimedOut    = "Analysis timed out."
	UnknownTitle      = "Unknown Object"

	DefaultPreviewChars = 30
)

// ErrBridgeUnavailable is returned by Dispatch when no bridge is wired.
var ErrBridgeUnavailable = errors.New("analysis bridge not available")

// Request is the outbound bridge message.
type Request struct {
	Message     string `json:"message"`
	UseLLM      bool   `json:"useLLM"`
	ImageBase64 string `json:"imageBase64"`
}

// Payload is an inbound bridge message. Data is either a JSON string
// (usually the model's raw text) or an object. Error is set instead when the
// bridge could not produce an answer.
type Payload struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// TextPayload wraps plain text the way a bridge would deliver it.
func TextPayload(s string) Payload {
	b, _ := json.Marshal(s)
	return Payload{Data: b}
}

// FailurePayload reports a bridge-side failure for the pending request.
func FailurePayload(err error) Payload {
	return Payload{Error: err.Error()}
}

// Bridge delivers requests to the LLM. Answers come back asynchronously
// through OnResult.
type Bridge interface {
	Send(ctx context.Context, req Request) error
}

// Subscriber is implemented by bridges that receive answers themselves and
// need a handler registered once at startup by the composition root.
type Subscriber interface {
	Subscribe(fn func(Payload))
}

// Broadcaster receives UI events. *ws.Hub satisfies it.
type Broadcaster interface {
	BroadcastJSON(v any)
}

// Options configures a Dispatcher. A nil Bridge means the capability is
// absent.
type Options struct {
	Bridge       Bridge
	Status       status.Publisher
	Events       Broadcaster
	Logger       *slog.Logger
	Timeout      time.Duration
	PreviewChars int
}

// Dispatcher is the single outbound/inbound analysis path.
type Dispatcher struct {
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	seq     uint64
	pending *time.Timer
}

// New builds a Dispatcher. Bridges that deliver their own answers are not
// subscribed here; the caller routes them to OnResult.
func New(opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PreviewChars <= 0 {
		opts.PreviewChars = DefaultPreviewChars
	}
	return &Dispatcher{
		opts: opts,
		log:  opts.Logger.With("component", "analysis"),
	}
}

// Available reports whether a bridge is wired.
func (d *Dispatcher) Available() bool { return d.opts.Bridge != nil }

// Dispatch sends jpeg with the analysis instruction. There is no retry.
func (d *Dispatcher) Dispatch(ctx context.Context, jpeg []byte) error {
	if d.opts.Bridge == nil {
		d.publish(StatusUnavailable)
		return ErrBridgeUnavailable
	}

	req := Request{
		Message:     Instruction,
		UseLLM:      true,
		ImageBase64: base64.StdEncoding.EncodeToString(jpeg),
	}
	// Armed before Send so an answer delivered during Send disarms it.
	d.arm()
	if err := d.opts.Bridge.Send(ctx, req); err != nil {
		d.disarm()
		d.log.Warn("bridge send failed", "error", err)
		d.publish(fmt.Sprintf("Analysis failed: %v", err))
		return fmt.Errorf("send to bridge: %w", err)
	}

	d.log.Info("image dispatched", "bytes", len(jpeg))
	return nil
}

// OnResult interprets a bridge answer, publishes it and returns the status
// line. It never fails.
func (d *Dispatcher) OnResult(p Payload) string {
	d.disarm()

	line, res, text := Interpret(p, d.opts.PreviewChars)
	d.log.Info("analysis result", "status", line)
	d.publish(line)

	ev := telemetry.Analysis{Event: telemetry.Stamp(telemetry.EventAnalysis), Text: text}
	if res != nil {
		ev.Title, ev.Use, ev.Description = res.Title, res.Use, res.Description
	}
	d.emit(ev)
	return line
}

// arm starts the watchdog for the request just sent. A newer dispatch
// replaces it.
func (d *Dispatcher) arm() {
	if d.opts.Timeout <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		d.pending.Stop()
	}
	d.seq++
	seq := d.seq
	d.pending = time.AfterFunc(d.opts.Timeout, func() {
		d.mu.Lock()
		fire := d.seq == seq && d.pending != nil
		d.pending = nil
		d.mu.Unlock()
		if fire {
			d.log.Warn("analysis timed out", "after", d.opts.Timeout)
			d.publish(StatusTimedOut)
		}
	})
}

func (d *Dispatcher) disarm() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
}

func (d *Dispatcher) publish(msg string) {
	if d.opts.Status != nil {
		d.opts.Status.Publish(msg)
	}
}

func (d *Dispatcher) emit(v any) {
	if d.opts.Events != nil {
		d.opts.Events.BroadcastJSON(v)
	}
}
