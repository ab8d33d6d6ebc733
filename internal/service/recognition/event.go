// Package recognition normalizes a continuous speech engine into a stream of
// partial, final and lifecycle events and owns restart-on-drop behaviour.
package recognition

import (
	"errors"
	"fmt"
	"strings"
)

// Kind distinguishes speech-carrying events from lifecycle signals.
type Kind int

const (
	KindPartial Kind = iota
	KindFinal
	KindLifecycle
)

// Lifecycle is the engine state signal carried by KindLifecycle events.
type Lifecycle int

const (
	LifecycleStarted Lifecycle = iota
	LifecycleEnded
	LifecycleError
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleStarted:
		return "started"
	case LifecycleEnded:
		return "ended"
	case LifecycleError:
		return "error"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(l))
	}
}

// ErrorCode classifies engine errors.
type ErrorCode string

const (
	CodeNoSpeech             ErrorCode = "no-speech"
	CodeAborted              ErrorCode = "aborted"
	CodeAudioCapture         ErrorCode = "audio-capture"
	CodeNetwork              ErrorCode = "network"
	CodeNotAllowed           ErrorCode = "not-allowed"
	CodeServiceNotAllowed    ErrorCode = "service-not-allowed"
	CodeLanguageNotSupported ErrorCode = "language-not-supported"

	// CodeStartFailed is raised by the adapter, not an engine, once a start
	// retry has also failed.
	CodeStartFailed ErrorCode = "start-failed"
)

// Fatal reports whether the error ends the session. Fatal codes require an
// explicit restart by the user.
func (c ErrorCode) Fatal() bool {
	switch c {
	case CodeNotAllowed, CodeServiceNotAllowed, CodeAudioCapture, CodeLanguageNotSupported:
		return true
	}
	return false
}

// Silent reports whether the error is routine and not worth displaying.
func (c ErrorCode) Silent() bool {
	return c == CodeNoSpeech || c == CodeAborted
}

// Event is a single normalized recognition event. Events are immutable and
// consumed once.
type Event struct {
	Kind      Kind
	Text      string
	Lifecycle Lifecycle
	Code      ErrorCode
}

func Partial(text string) Event { return Event{Kind: KindPartial, Text: text} }

func Final(text string) Event { return Event{Kind: KindFinal, Text: text} }

func Started() Event { return Event{Kind: KindLifecycle, Lifecycle: LifecycleStarted} }

func Ended() Event { return Event{Kind: KindLifecycle, Lifecycle: LifecycleEnded} }

func Errored(code ErrorCode) Event {
	return Event{Kind: KindLifecycle, Lifecycle: LifecycleError, Code: code}
}

// IsSpeech reports whether the event carries recognized text.
func (e Event) IsSpeech() bool {
	return e.Kind == KindPartial || e.Kind == KindFinal
}

func (e Event) String() string {
	switch e.Kind {
	case KindPartial:
		return fmt.Sprintf("partial(%q)", e.Text)
	case KindFinal:
		return fmt.Sprintf("final(%q)", e.Text)
	case KindLifecycle:
		if e.Lifecycle == LifecycleError {
			return fmt.Sprintf("error(%s)", e.Code)
		}
		return e.Lifecycle.String()
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(e.Kind))
	}
}

// ErrUnknownEventType is returned by ParseEvent for unrecognized type names.
var ErrUnknownEventType = errors.New("unknown recognition event type")

// ParseEvent builds an event from its wire form, as sent by remote capture
// clients: type is one of partial, final, started, ended or error.
func ParseEvent(typ, text, code string) (Event, error) {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "partial", "interim":
		return Partial(text), nil
	case "final":
		return Final(text), nil
	case "started", "start":
		return Started(), nil
	case "ended", "end":
		return Ended(), nil
	case "error":
		if code == "" {
			code = string(CodeAborted)
		}
		return Errored(ErrorCode(code)), nil
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEventType, typ)
	}
}
