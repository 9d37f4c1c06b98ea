// Package telemetry defines the typed event structs that flow over the
// WebSocket connection between lensd and its clients. Every event shares
// the Event envelope so clients can switch on Type before decoding the rest.
package telemetry

import "time"

// EventType identifies the kind of WebSocket event.
type EventType string

const (
	EventHeartbeat EventType = "heartbeat"
	EventStatus    EventType = "status"
	EventLog       EventType = "log"
	EventFeedback  EventType = "feedback"
	EventCapture   EventType = "capture"
	EventReview    EventType = "review"
	EventAnalysis  EventType = "analysis"
)

// Event is the base envelope shared by every event type.
type Event struct {
	Type EventType `json:"type"`
	TS   string    `json:"ts"`
}

// NowTS returns the current UTC time as an RFC 3339 nano string, matching the
// timestamp format used across all events.
func NowTS() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Stamp builds an envelope of type t at the current time.
func Stamp(t EventType) Event {
	return Event{Type: t, TS: NowTS()}
}

// Heartbeat is sent periodically so clients can detect connectivity and
// follow the camera without polling.
type Heartbeat struct {
	Event
	Status        string  `json:"status"`
	CameraActive  bool    `json:"camera_active"`
	Facing        string  `json:"facing"`
	Zoom          float64 `json:"zoom"`
	UptimeSeconds int64   `json:"uptime_seconds"`
}

// StatusChange is emitted whenever the status line changes. Clients render
// To verbatim.
type StatusChange struct {
	Event
	From string `json:"from"`
	To   string `json:"to"`
}

// LogLine carries a human-readable log message at a severity level.
type LogLine struct {
	Event
	Component string `json:"component,omitempty"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// Feedback asks the UI to show capture feedback. Kind is "flash"; On goes
// true when the shutter fires and false once the effect should end.
type Feedback struct {
	Event
	Kind string `json:"kind"`
	On   bool   `json:"on"`
}

// Capture announces a freshly encoded image.
type Capture struct {
	Event
	ID     string  `json:"id"`
	Bytes  int     `json:"bytes"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Zoom   float64 `json:"zoom"`
	Facing string  `json:"facing"`
}

// Review carries the stored image the UI should show in place of the
// preview, as a data URL.
type Review struct {
	Event
	Image string `json:"image"`
}

// Analysis is a parsed bridge response. Text is set instead of the
// structured fields when the response was not the expected JSON.
type Analysis struct {
	Event
	Title       string `json:"title,omitempty"`
	Use         string `json:"use,omitempty"`
	Description string `json:"description,omitempty"`
	Text        string `json:"text,omitempty"`
}
