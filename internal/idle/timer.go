// Package idle implements a restartable inactivity deadline.
package idle

import (
	"sync"
	"time"
)

// Timer calls fn once when no Arm call has happened for the armed
// duration.  Rearming supersedes the pending deadline.  A deadline that
// fires concurrently with Arm, Cancel or Stop is discarded by comparing
// generations, so fn never runs for a superseded arm.
type Timer struct {
	fn func()

	mu      sync.Mutex
	t       *time.Timer
	gen     uint64
	fired   bool
	stopped bool
}

// New returns a disarmed Timer.
func New(fn func()) *Timer {
	return &Timer{fn: fn}
}

// Arm cancels any pending deadline and schedules a new one d from now.
// A non-positive d leaves the timer disarmed.  Arm is a no-op once the
// timer has fired or been stopped.
func (t *Timer) Arm(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.stopped {
		return
	}
	t.cancelLocked()
	if d <= 0 {
		return
	}
	gen := t.gen
	t.t = time.AfterFunc(d, func() { t.fire(gen) })
}

// Cancel discards the pending deadline, if any.
func (t *Timer) Cancel() {
	t.mu.Lock()
	t.cancelLocked()
	t.mu.Unlock()
}

// Stop cancels the timer permanently.
func (t *Timer) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.cancelLocked()
	t.mu.Unlock()
}

// Fired reports whether fn has been invoked.
func (t *Timer) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

func (t *Timer) cancelLocked() {
	t.gen++
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.fired || t.stopped {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.t = nil
	t.mu.Unlock()
	t.fn()
}
