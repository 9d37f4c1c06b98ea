// Package status holds the single user-visible status line. Every component
// writes through a Sink; the UI observes it. Last writer wins.
package status

import "sync"

// Initial is the status shown before anything has happened.
const Initial = "Not Active"

// Change describes one status transition.
type Change struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Publisher is the write side of the sink. Components depend on this rather
// than on *Sink so tests can record what was published.
type Publisher interface {
	Publish(msg string)
}

// Sink stores the current status and fans changes out to observers.
// It is safe for concurrent use.
type Sink struct {
	mu        sync.RWMutex
	current   string
	observers []func(Change)
}

// NewSink returns a Sink holding the Initial status.
func NewSink() *Sink {
	return &Sink{current: Initial}
}

// Observe registers fn to be called after every change. Observers run on
// the publishing goroutine and must not block.
func (s *Sink) Observe(fn func(Change)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Publish replaces the current status. Publishing the value already held is
// a no-op so repeated clamped zooms do not spam observers.
func (s *Sink) Publish(msg string) {
	s.mu.Lock()
	old := s.current
	if old == msg {
		s.mu.Unlock()
		return
	}
	s.current = msg
	observers := make([]func(Change), len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	ch := Change{From: old, To: msg}
	for _, fn := range observers {
		fn(ch)
	}
}

// Current returns the most recently published status.
func (s *Sink) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Recorder is a Publisher that keeps every message. Useful in tests and for
// components that need an audit trail.
type Recorder struct {
	mu   sync.Mutex
	msgs []string
}

// Publish appends msg.
func (r *Recorder) Publish(msg string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

// Messages returns a copy of everything published so far.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// Last returns the most recent message, or "" if none.
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return ""
	}
	return r.msgs[len(r.msgs)-1]
}
