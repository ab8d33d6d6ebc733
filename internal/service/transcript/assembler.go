package transcript

import (
	"strings"

	"github.com/jonboulle/clockwork"

	"lecture-interpreter/internal/observability/metrics"
)

// Renderer displays the sentence in progress and finalized sentences.
type Renderer interface {
	RenderPartial(id uint64, committed, pending string)
	RenderFinal(rec Record)
}

// NoteAppender receives finalized text for the next summary.
type NoteAppender interface {
	Append(text string)
}

// Requester issues translations for sentences.
type Requester interface {
	// Interim is called for every partial of a full-power sentence.
	Interim(id uint64, pending string)
	// Final is called once per finalized sentence.
	Final(rec Record)
	// Discard is called for a sentence dropped without a record.
	Discard(id uint64)
}

// Assembler owns the single sentence buffer. It is not safe for concurrent
// use; the session calls it from its event loop.
type Assembler struct {
	ids      *Generator
	clock    clockwork.Clock
	render   Renderer
	notes    NoteAppender
	requests Requester
	metrics  *metrics.Metrics

	mode  Mode
	buf   *Buffer
	count int
}

// NewAssembler creates an assembler. ids may be shared across sessions.
func NewAssembler(ids *Generator, clock clockwork.Clock, render Renderer, notes NoteAppender, requests Requester) *Assembler {
	if ids == nil {
		ids = NewGenerator()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Assembler{
		ids:      ids,
		clock:    clock,
		render:   render,
		notes:    notes,
		requests: requests,
		metrics:  metrics.DefaultMetrics,
	}
}

// SetMode changes the mode for the next sentence. A sentence already in
// progress finishes under the mode it started with.
func (a *Assembler) SetMode(m Mode) {
	a.mode = m
}

func (a *Assembler) Mode() Mode {
	return a.mode
}

// Partial replaces the pending partial and renders the sentence.
func (a *Assembler) Partial(text string) {
	a.metrics.RecordPartialTranscript()

	buf := a.current()
	buf.Pending = text
	buf.State = SentenceAccumulating

	a.render.RenderPartial(buf.ID, buf.Committed, buf.Pending)
	if buf.Mode == ModeFullPower {
		a.requests.Interim(buf.ID, buf.Pending)
	}
}

// Final commits text, snapshots the sentence and starts a new one. A final
// that leaves the sentence blank produces no record; ok is false then.
func (a *Assembler) Final(text string) (rec Record, ok bool) {
	buf := a.current()
	buf.Committed = joinText(buf.Committed, text)
	buf.Pending = ""

	if strings.TrimSpace(buf.Committed) == "" {
		a.Discard()
		return Record{}, false
	}

	buf.State = SentenceFinalized
	rec = Record{
		ID:        buf.ID,
		Text:      buf.Committed,
		CreatedAt: a.clock.Now(),
		Mode:      buf.Mode,
	}
	a.buf = nil
	a.count++
	a.metrics.RecordSentenceFinalized()

	a.render.RenderFinal(rec)
	a.notes.Append(rec.Text)
	a.requests.Final(rec)
	return rec, true
}

// Current returns a copy of the sentence in progress.
func (a *Assembler) Current() (Buffer, bool) {
	if a.buf == nil {
		return Buffer{}, false
	}
	return *a.buf, true
}

// Discard drops the sentence in progress without finalizing it.
func (a *Assembler) Discard() {
	if a.buf == nil {
		return
	}
	a.requests.Discard(a.buf.ID)
	a.buf = nil
}

// Reset discards the sentence in progress and the per-session count.
func (a *Assembler) Reset() {
	a.buf = nil
	a.count = 0
}

// Sentences is the number of records finalized since the last Reset.
func (a *Assembler) Sentences() int {
	return a.count
}

func (a *Assembler) current() *Buffer {
	if a.buf == nil {
		a.buf = &Buffer{
			ID:    a.ids.Next(),
			Mode:  a.mode,
			State: SentenceEmpty,
		}
	}
	return a.buf
}
