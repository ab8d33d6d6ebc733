// Package summary turns flushed lecture notes into study summaries.
package summary

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"lecture-interpreter/internal/models"
	"lecture-interpreter/internal/observability"
	"lecture-interpreter/internal/observability/logging"
	"lecture-interpreter/internal/observability/metrics"
	"lecture-interpreter/internal/service/llm"
)

const (
	// DefaultTimeout bounds a single summarization request.
	DefaultTimeout = 60 * time.Second

	TitleSummary = "Lecture notes"

	MessageEmpty  = "No summary could be generated for this part of the lecture."
	MessageFailed = "Summary generation failed; the notes for this part of the lecture were not summarized."
)

// Summarizer produces a summary of lecture text for a course topic.
type Summarizer interface {
	Summarize(ctx context.Context, topic, text string) (string, error)
}

// Options configures a Trigger.
type Options struct {
	Summarizer Summarizer
	Clock      clockwork.Clock

	// Post schedules the outcome on the session loop.
	Post func(func())

	// Emit receives the resulting note on the session loop.
	Emit func(models.Note)

	Timeout time.Duration
	Metrics *metrics.Metrics
}

// Trigger issues one summarization per flushed note buffer. Requests are
// independent: several may be in flight and they complete in any order.
type Trigger struct {
	summarizer Summarizer
	clock      clockwork.Clock
	post       func(func())
	emit       func(models.Note)
	timeout    time.Duration
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

func NewTrigger(opts Options) *Trigger {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultMetrics
	}
	return &Trigger{
		summarizer: opts.Summarizer,
		clock:      opts.Clock,
		post:       opts.Post,
		emit:       opts.Emit,
		timeout:    opts.Timeout,
		metrics:    opts.Metrics,
		log:        logging.WithComponent("summary"),
	}
}

// Fire starts a summarization of text. Blank text issues nothing and Fire
// returns false.
func (t *Trigger) Fire(sessionID, topic, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()

		out, err := t.summarizer.Summarize(ctx, topic, text)
		note := t.note(sessionID, topic, out, err)
		t.post(func() { t.emit(note) })
	}()
	return true
}

func (t *Trigger) note(sessionID, topic, out string, err error) models.Note {
	note := models.Note{
		EventType: models.EventNote,
		SessionID: sessionID,
		Timestamp: t.clock.Now().UnixMilli(),
		Title:     TitleSummary,
	}

	switch {
	case errors.Is(err, llm.ErrEmptyResponse) || (err == nil && strings.TrimSpace(out) == ""):
		t.metrics.RecordSummary("empty")
		note.Kind = models.NoteSummaryFailed
		note.Body = MessageEmpty
	case err != nil:
		t.metrics.RecordSummary("error")
		t.log.Error().Err(err).Str("sessionId", sessionID).Str("topic", topic).Msg("Summarization failed")
		observability.CaptureError(err, map[string]string{"component": "summary", "sessionId": sessionID})
		note.Kind = models.NoteSummaryFailed
		note.Body = MessageFailed
	default:
		t.metrics.RecordSummary("success")
		note.Kind = models.NoteSummary
		note.Body = out
	}
	return note
}
