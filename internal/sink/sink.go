// Package sink defines the presentation boundary that rendered sentences,
// translations, status changes and notes are delivered to.
package sink

import "lecture-interpreter/internal/models"

// Sink consumes rendered session output. Implementations must not block the
// caller; they are invoked from the session loop.
type Sink interface {
	RenderPartial(ev models.TranscriptPartial)
	RenderFinal(ev models.TranscriptFinal)
	RenderTranslation(ev models.Translation)
	Status(ev models.SessionStatus)
	Warning(ev models.InactivityWarning)
	Note(ev models.Note)
}

// Fanout delivers every event to each of its sinks in order.
type Fanout []Sink

func (f Fanout) RenderPartial(ev models.TranscriptPartial) {
	for _, s := range f {
		s.RenderPartial(ev)
	}
}

func (f Fanout) RenderFinal(ev models.TranscriptFinal) {
	for _, s := range f {
		s.RenderFinal(ev)
	}
}

func (f Fanout) RenderTranslation(ev models.Translation) {
	for _, s := range f {
		s.RenderTranslation(ev)
	}
}

func (f Fanout) Status(ev models.SessionStatus) {
	for _, s := range f {
		s.Status(ev)
	}
}

func (f Fanout) Warning(ev models.InactivityWarning) {
	for _, s := range f {
		s.Warning(ev)
	}
}

func (f Fanout) Note(ev models.Note) {
	for _, s := range f {
		s.Note(ev)
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) RenderPartial(models.TranscriptPartial) {}
func (Discard) RenderFinal(models.TranscriptFinal)     {}
func (Discard) RenderTranslation(models.Translation)   {}
func (Discard) Status(models.SessionStatus)            {}
func (Discard) Warning(models.InactivityWarning)       {}
func (Discard) Note(models.Note)                       {}
