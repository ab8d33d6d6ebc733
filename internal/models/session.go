package models

// Status values shown by the session status indicator.
const (
	StatusListening = "listening"
	StatusPaused    = "paused"
	StatusStopped   = "stopped"
	StatusError     = "error"
)

// Note kinds.
const (
	NoteSummary       = "summary"
	NoteSummaryFailed = "summary_failed"
	NoteSessionClosed = "session_closed"
	NoteInfo          = "info"
)

// SessionStatus reports a lifecycle change or a displayable error.
type SessionStatus struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
	State     string `json:"state"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Topic     string `json:"topic,omitempty"`
	Mode      string `json:"mode,omitempty"`
}

// InactivityWarning is raised once per silence window before auto-end.
type InactivityWarning struct {
	EventType   string `json:"eventType"`
	SessionID   string `json:"sessionId"`
	Timestamp   int64  `json:"timestamp"`
	RemainingMs int64  `json:"remainingMs"`
}

// Note is an entry in the notes panel: a summary, a failure notice or the
// closing entry of a session.
type Note struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
	Kind      string `json:"kind"`
	Title     string `json:"title,omitempty"`
	Body      string `json:"body"`
}

// EventCaptureCommand tells remote capture clients to start or stop their
// recognizer.
const EventCaptureCommand = "lecture.capture.command"

// CaptureCommand is sent to capture clients over the WebSocket.
type CaptureCommand struct {
	EventType string   `json:"eventType"`
	Action    string   `json:"action"`
	Phrases   []string `json:"phrases,omitempty"`
}
