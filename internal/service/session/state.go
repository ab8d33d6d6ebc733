// Package session supervises a lecture: the listening lifecycle, the
// inactivity watchdog, the note buffer and the components that turn speech
// into translated sentences.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle state of the lecture session.
type State int

const (
	// StateIdle - No session has been started.
	StateIdle State = iota
	// StateListening - Recognition is armed and the watchdog is running.
	StateListening
	// StatePaused - Recognition is stopped; the session can resume.
	StatePaused
	// StateEnded - The session is over. A new Start begins a fresh session.
	StateEnded
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StatePaused:
		return "PAUSED"
	case StateEnded:
		return "ENDED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsActive returns true while a session is in progress (LISTENING or PAUSED).
func (s State) IsActive() bool {
	return s == StateListening || s == StatePaused
}

// ShouldRestartRecognition reports whether an unexpected recognition drop
// should re-arm the engine.
func ShouldRestartRecognition(s State) bool {
	return s == StateListening
}

// Errors for invalid state transitions.
var (
	ErrSessionActive = errors.New("session already in progress")
	ErrNotListening  = errors.New("session is not listening")
	ErrNotPaused     = errors.New("session is not paused")
	ErrNoSession     = errors.New("no session in progress")
)

// Lifecycle manages the session state machine.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	IDLE ──Start()──→ LISTENING ⇄ PAUSED
//	  ↑                   │          │
//	  │                   └─ End() ──┴──→ ENDED
//	  └───────────── Start() ────────────────┘
//
// Rules:
//   - IDLE, ENDED: Start begins a new session, everything else fails with ErrNoSession
//   - LISTENING: Pause or End
//   - PAUSED: Resume or End
type Lifecycle struct {
	mu    sync.RWMutex
	state State
}

// NewLifecycle creates a lifecycle in IDLE state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateIdle}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Start transitions IDLE or ENDED to LISTENING.
func (l *Lifecycle) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.IsActive() {
		return ErrSessionActive
	}
	l.state = StateListening
	return nil
}

// Pause transitions LISTENING to PAUSED.
func (l *Lifecycle) Pause() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateListening:
		l.state = StatePaused
		return nil
	case StatePaused:
		return ErrNotListening
	default:
		return ErrNoSession
	}
}

// Resume transitions PAUSED to LISTENING.
func (l *Lifecycle) Resume() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StatePaused:
		l.state = StateListening
		return nil
	case StateListening:
		return ErrNotPaused
	default:
		return ErrNoSession
	}
}

// End transitions LISTENING or PAUSED to ENDED and returns the state it
// left.
func (l *Lifecycle) End() (State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	from := l.state
	if !from.IsActive() {
		return from, ErrNoSession
	}
	l.state = StateEnded
	return from, nil
}
