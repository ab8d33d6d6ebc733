// Package loop provides the cooperative event loop that serializes all
// session state mutations.
//
// Recognition callbacks, timer expiries and backend responses never touch
// session state directly: they Post a closure, and the loop runs closures
// one at a time in arrival order. Posting never blocks, so a closure running
// on the loop may itself post (for example when stopping an engine
// synchronously delivers a last event).
package loop

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned by Do when the loop is no longer running.
var ErrStopped = errors.New("event loop stopped")

// Loop is an unbounded FIFO mailbox drained by a single goroutine.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

// New creates a loop. Call Run to start draining it.
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post enqueues f. Closures posted after the loop stopped are discarded.
func (l *Loop) Post(f func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, f)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do posts f and waits until it has run.
func (l *Loop) Do(ctx context.Context, f func()) error {
	ran := make(chan struct{})
	l.Post(func() {
		f()
		close(ran)
	})

	select {
	case <-ran:
		return nil
	case <-l.done:
		select {
		case <-ran:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the mailbox until ctx is cancelled. Closures still queued at
// cancellation are dropped.
func (l *Loop) Run(ctx context.Context) {
	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
		close(l.done)
	}()

	for {
		for {
			f, ok := l.next()
			if !ok {
				break
			}
			f()
			if ctx.Err() != nil {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	f := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return f, true
}
