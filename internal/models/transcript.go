// Package models defines the events emitted to presentation sinks.
package models

// Event types carried in the eventType field and the Kafka eventType header.
const (
	EventTranscriptPartial = "lecture.transcript.partial"
	EventTranscriptFinal   = "lecture.transcript.final"
	EventTranslation       = "lecture.translation"
	EventSessionStatus     = "lecture.session.status"
	EventInactivityWarning = "lecture.session.warning"
	EventNote              = "lecture.note"
)

// TranscriptPartial is the in-progress sentence: committed text with the
// latest partial overlaid.
type TranscriptPartial struct {
	EventType  string `json:"eventType"`
	SessionID  string `json:"sessionId"`
	Timestamp  int64  `json:"timestamp"`
	SentenceID uint64 `json:"sentenceId"`
	Committed  string `json:"committed"`
	Pending    string `json:"pending"`
	Text       string `json:"text"`
}

// TranscriptFinal is a finalized sentence record.
type TranscriptFinal struct {
	EventType  string `json:"eventType"`
	SessionID  string `json:"sessionId"`
	Timestamp  int64  `json:"timestamp"`
	SentenceID uint64 `json:"sentenceId"`
	Text       string `json:"text"`
	CreatedAt  int64  `json:"createdAt"`
}

// Translation fills the translation field of a sentence's render slot.
type Translation struct {
	EventType  string `json:"eventType"`
	SessionID  string `json:"sessionId"`
	Timestamp  int64  `json:"timestamp"`
	SentenceID uint64 `json:"sentenceId"`
	Channel    string `json:"channel"`
	Text       string `json:"text"`
	Enhanced   bool   `json:"enhanced"`
	Degraded   bool   `json:"degraded,omitempty"`
}
