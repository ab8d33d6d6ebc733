// Package remote provides a recognition engine whose speech events are
// pushed by capture clients (a browser running its own recognizer over the
// WebSocket, or a gRPC ingress stream).
package remote

import (
	"context"
	"errors"
	"sync"

	"lecture-interpreter/internal/service/recognition"
)

// ErrNoCapture is returned by Start when no capture client is attached.
var ErrNoCapture = errors.New("remote engine: no capture client attached")

// Command instructs attached capture clients.
type Command struct {
	Action  string   `json:"action"` // start, stop
	Phrases []string `json:"phrases,omitempty"`
}

// Engine forwards pushed events to the adapter while started.
type Engine struct {
	mu       sync.Mutex
	cb       recognition.Callback
	clients  int
	phrases  []string
	commands func(Command)
}

// New creates a remote engine. commands, if non-nil, is called to tell
// capture clients to start or stop recognizing.
func New(commands func(Command)) *Engine {
	return &Engine{commands: commands}
}

func (e *Engine) Name() string { return "remote" }

// Attach registers a capture client and returns its detach function.
func (e *Engine) Attach() (detach func()) {
	e.mu.Lock()
	e.clients++
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			e.clients--
			e.mu.Unlock()
		})
	}
}

// Clients returns the number of attached capture clients.
func (e *Engine) Clients() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clients
}

// SetPhrases stores vocabulary forwarded with the next start command.
func (e *Engine) SetPhrases(phrases []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phrases = append([]string(nil), phrases...)
}

func (e *Engine) Start(ctx context.Context, cb recognition.Callback) error {
	e.mu.Lock()
	if e.clients == 0 {
		e.mu.Unlock()
		return ErrNoCapture
	}
	e.cb = cb
	cmd := Command{Action: "start", Phrases: e.phrases}
	e.mu.Unlock()

	e.send(cmd)
	cb.OnStarted()
	return nil
}

func (e *Engine) Stop() error {
	e.mu.Lock()
	cb := e.cb
	e.cb = nil
	e.mu.Unlock()

	if cb == nil {
		return nil
	}
	e.send(Command{Action: "stop"})
	cb.OnEnded()
	return nil
}

// Push delivers an event from a capture client. Events pushed while the
// engine is stopped are dropped and Push reports false.
func (e *Engine) Push(ev recognition.Event) bool {
	e.mu.Lock()
	cb := e.cb
	if ev.Kind == recognition.KindLifecycle && ev.Lifecycle == recognition.LifecycleEnded {
		e.cb = nil
	}
	e.mu.Unlock()

	if cb == nil {
		return false
	}

	switch ev.Kind {
	case recognition.KindPartial:
		cb.OnPartial(ev.Text)
	case recognition.KindFinal:
		cb.OnFinal(ev.Text)
	case recognition.KindLifecycle:
		switch ev.Lifecycle {
		case recognition.LifecycleStarted:
			// The engine already reported started when it was armed.
		case recognition.LifecycleEnded:
			cb.OnEnded()
		case recognition.LifecycleError:
			cb.OnError(ev.Code)
		}
	}
	return true
}

func (e *Engine) send(cmd Command) {
	if e.commands != nil {
		e.commands(cmd)
	}
}
