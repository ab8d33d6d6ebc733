// Package timer provides a resettable fire-once timer whose expiry is
// delivered onto an owner's event loop.
package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer arms, re-arms and stops a single countdown. fire runs through post,
// at most once per Arm, and never after Stop or a later Arm.
type Timer struct {
	clock clockwork.Clock
	d     time.Duration
	post  func(func())
	fire  func()

	mu      sync.Mutex
	gen     uint64
	pending clockwork.Timer
}

// New creates a stopped timer.
func New(clock clockwork.Clock, d time.Duration, post func(func()), fire func()) *Timer {
	return &Timer{
		clock: clock,
		d:     d,
		post:  post,
		fire:  fire,
	}
}

// Arm starts the countdown, restarting it if already running.
func (t *Timer) Arm() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending != nil {
		t.pending.Stop()
	}
	t.gen++
	gen := t.gen
	t.pending = t.clock.AfterFunc(t.d, func() {
		t.post(func() { t.expire(gen) })
	})
}

// Stop cancels the countdown. An expiry already queued on the loop is
// discarded.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	t.gen++
}

// Armed reports whether a countdown is running.
func (t *Timer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}

// Duration returns the countdown length.
func (t *Timer) Duration() time.Duration {
	return t.d
}

func (t *Timer) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.pending == nil {
		t.mu.Unlock()
		return
	}
	t.pending = nil
	t.mu.Unlock()

	t.fire()
}
