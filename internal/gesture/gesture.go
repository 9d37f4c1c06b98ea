// Package gesture turns raw PTT button presses into semantic actions.
//
// Two policies exist. PolicySingle treats every press as an immediate Single.
// PolicyDouble waits one window after a press: a second press inside the
// window yields Double, silence yields Single. Single therefore lags by the
// window length under PolicyDouble.
package gesture

import (
	"fmt"
	"sync"
	"time"
)

// Action is the classified gesture.
type Action int

const (
	Single Action = iota + 1
	Double
)

func (a Action) String() string {
	switch a {
	case Single:
		return "single"
	case Double:
		return "double"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Policy selects how presses are classified.
type Policy string

const (
	PolicySingle Policy = "single"
	PolicyDouble Policy = "double"
)

// ParsePolicy validates a policy name from config.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicySingle, PolicyDouble:
		return Policy(s), nil
	case "":
		return PolicySingle, nil
	default:
		return "", fmt.Errorf("unknown gesture policy %q", s)
	}
}

// DefaultWindow is the double-click window used when none is configured.
const DefaultWindow = 350 * time.Millisecond

// Disambiguator classifies presses. Press may be called from any goroutine;
// emit is never called while internal locks are held.
type Disambiguator struct {
	policy Policy
	window time.Duration
	clock  Clock
	emit   func(Action)

	mu    sync.Mutex
	last  time.Time
	armed bool
	timer Timer
	gen   uint64
}

// New builds a Disambiguator. A nil clock means the system clock and a
// non-positive window means DefaultWindow.
func New(policy Policy, window time.Duration, clock Clock, emit func(Action)) *Disambiguator {
	if clock == nil {
		clock = SystemClock{}
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if policy == "" {
		policy = PolicySingle
	}
	return &Disambiguator{
		policy: policy,
		window: window,
		clock:  clock,
		emit:   emit,
	}
}

// Policy returns the active policy.
func (d *Disambiguator) Policy() Policy { return d.policy }

// Window returns the double-click window.
func (d *Disambiguator) Window() time.Duration { return d.window }

// PressNow records a press at the clock's current time.
func (d *Disambiguator) PressNow() {
	d.Press(d.clock.Now())
}

// Press records one physical press at t.
func (d *Disambiguator) Press(t time.Time) {
	if d.policy != PolicyDouble {
		d.emit(Single)
		return
	}

	d.mu.Lock()
	if d.armed && t.Sub(d.last) < d.window {
		// Both presses are consumed so a third close press starts a new pair.
		d.disarmLocked()
		d.mu.Unlock()
		d.emit(Double)
		return
	}

	// A previous press whose timer has not fired yet (late timer delivery)
	// is resolved first so it is not lost.
	flushed := d.armed
	d.disarmLocked()

	d.last = t
	d.armed = true
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.window, func() { d.expire(gen) })
	d.mu.Unlock()

	if flushed {
		d.emit(Single)
	}
}

// Pending reports whether a press is waiting for its window to close.
func (d *Disambiguator) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

// Reset drops any pending press without emitting.
func (d *Disambiguator) Reset() {
	d.mu.Lock()
	d.disarmLocked()
	d.mu.Unlock()
}

func (d *Disambiguator) expire(gen uint64) {
	d.mu.Lock()
	if !d.armed || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.armed = false
	d.last = time.Time{}
	d.timer = nil
	d.gen++
	d.mu.Unlock()

	d.emit(Single)
}

func (d *Disambiguator) disarmLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.armed = false
	d.last = time.Time{}
	d.gen++
}
