package translate

import (
	"context"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"lecture-interpreter/internal/observability/logging"
	"lecture-interpreter/internal/observability/metrics"
	"lecture-interpreter/internal/service/timer"
	"lecture-interpreter/internal/service/transcript"
)

// DefaultDebounce is the quiet window before partial text is translated.
const DefaultDebounce = 800 * time.Millisecond

// Renderer receives translations that passed the identity check.
type Renderer interface {
	RenderTranslation(sentenceID uint64, ch Channel, text string, enhanced, degraded bool)
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	Dispatcher Dispatcher
	Renderer   Renderer
	Clock      clockwork.Clock
	Post       func(func())
	Debounce   time.Duration
	Metrics    *metrics.Metrics
}

// slot tracks the translation field of the latest finalized sentence.
type slot struct {
	id        uint64
	fastDone  bool
	aiDone    bool
	fastShown bool
	enhanced  bool
}

// Scheduler decides when and what to translate and reconciles responses
// with the sentence occupying each render slot. Requests are never
// cancelled: a response whose sentence id no longer owns its slot is
// dropped when it arrives.
//
// There are two slots. The live slot (the sentence in progress) receives
// interim translations. The final slot belongs to the most recently
// finalized sentence; it receives the fast result first and may then be
// upgraded once by the AI result. A newer Final or the end of the session
// takes the final slot away, so responses for older sentences never render.
//
// All methods except the request goroutines run on the session loop.
type Scheduler struct {
	dispatcher Dispatcher
	render     Renderer
	post       func(func())
	metrics    *metrics.Metrics
	log        zerolog.Logger
	debounce   *timer.Timer

	ctx   context.Context
	topic string

	liveID          uint64
	livePending     string
	interimInFlight bool
	interimQueued   bool
	held            bool

	final *slot
}

// NewScheduler creates a scheduler. Call Reset before the first sentence.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultMetrics
	}
	s := &Scheduler{
		dispatcher: opts.Dispatcher,
		render:     opts.Renderer,
		post:       opts.Post,
		metrics:    opts.Metrics,
		log:        logging.WithComponent("scheduler"),
		ctx:        context.Background(),
	}
	s.debounce = timer.New(opts.Clock, opts.Debounce, opts.Post, s.fireInterim)
	return s
}

// Reset prepares for a new session. Responses for sentences of earlier
// sessions are dropped from now on.
func (s *Scheduler) Reset(ctx context.Context, topic string) {
	s.ClearLive()
	s.ctx = ctx
	s.topic = topic
	s.final = nil
	s.held = false
}

// ClearLive forgets the live sentence and cancels a pending interim
// request. In-flight interim responses are dropped on arrival.
func (s *Scheduler) ClearLive() {
	s.debounce.Stop()
	s.liveID = 0
	s.livePending = ""
	s.interimQueued = false
}

// Discard forgets the live sentence if id owns it. The assembler calls it
// for sentences that end without a record.
func (s *Scheduler) Discard(id uint64) {
	if id != 0 && id == s.liveID {
		s.ClearLive()
	}
}

// Interim records the latest partial of the live sentence and restarts the
// debounce window. Partials are ignored while capture is stopped.
func (s *Scheduler) Interim(id uint64, pending string) {
	if s.held {
		return
	}
	if id != s.liveID {
		s.liveID = id
		s.interimQueued = false
	}
	s.livePending = pending
	s.debounce.Arm()
}

// Final issues the fast and AI requests for a finalized sentence, which
// takes over the final slot from the previous one.
func (s *Scheduler) Final(rec transcript.Record) {
	s.debounce.Stop()
	if rec.ID == s.liveID {
		s.liveID = 0
		s.livePending = ""
		s.interimQueued = false
	}

	if s.final != nil {
		s.log.Debug().Uint64("sentenceId", s.final.id).Msg("Sentence superseded before its translations landed")
	}
	s.final = &slot{id: rec.ID}
	s.issue(Request{SentenceID: rec.ID, Channel: ChannelFast, Text: rec.Text, Topic: s.topic})
	s.issue(Request{SentenceID: rec.ID, Channel: ChannelAI, Text: rec.Text, Topic: s.topic})
}

// InterimPending reports whether an interim request is outstanding.
func (s *Scheduler) InterimPending() bool {
	return s.interimInFlight
}

// PendingSentences is 1 while the latest finalized sentence still awaits a
// response on at least one channel.
func (s *Scheduler) PendingSentences() int {
	if s.final == nil {
		return 0
	}
	return 1
}

// Resolve applies a response if its sentence still owns the slot. It
// reports whether anything was rendered.
func (s *Scheduler) Resolve(res Result) bool {
	if res.Channel == ChannelInterim {
		return s.resolveInterim(res)
	}

	sl := s.final
	if sl == nil || sl.id != res.SentenceID {
		s.stale(res)
		return false
	}

	applied := false
	switch res.Channel {
	case ChannelFast:
		sl.fastDone = true
		if !sl.enhanced {
			s.render.RenderTranslation(res.SentenceID, ChannelFast, res.Text, false, res.Degraded)
			sl.fastShown = true
			applied = true
		}
	case ChannelAI:
		sl.aiDone = true
		if !res.Failed {
			s.render.RenderTranslation(res.SentenceID, ChannelAI, res.Text, true, false)
			sl.enhanced = true
			applied = true
		}
	}

	if sl.fastDone && sl.aiDone {
		s.final = nil
	}
	return applied
}

func (s *Scheduler) resolveInterim(res Result) bool {
	s.interimInFlight = false
	defer func() {
		if s.interimQueued {
			s.interimQueued = false
			s.fireInterim()
		}
	}()

	if s.liveID == 0 || res.SentenceID != s.liveID {
		s.stale(res)
		return false
	}
	text := res.Text
	if text == "" {
		text = PlaceholderPending
	}
	s.render.RenderTranslation(res.SentenceID, ChannelInterim, text, false, res.Degraded)
	return true
}

func (s *Scheduler) fireInterim() {
	if s.held || s.liveID == 0 || strings.TrimSpace(s.livePending) == "" {
		return
	}
	if s.interimInFlight {
		s.interimQueued = true
		return
	}
	s.interimInFlight = true
	s.issue(Request{SentenceID: s.liveID, Channel: ChannelInterim, Text: s.livePending, Topic: s.topic})
}

func (s *Scheduler) issue(req Request) {
	s.metrics.RecordTranslationRequest(req.Channel.String())
	ctx := s.ctx
	go func() {
		res := s.dispatcher.Dispatch(ctx, req)
		s.post(func() { s.Resolve(res) })
	}()
}

func (s *Scheduler) stale(res Result) {
	s.metrics.RecordStaleTranslation(res.Channel.String())
	s.log.Debug().
		Uint64("sentenceId", res.SentenceID).
		Stringer("channel", res.Channel).
		Msg("Dropping superseded translation")
}

// Stop cancels pending interim work when capture pauses and ignores
// partials until Resume. The latest finalized sentence keeps its slot.
func (s *Scheduler) Stop() {
	s.ClearLive()
	s.held = true
}

// Resume accepts partials again after Stop.
func (s *Scheduler) Resume() {
	s.ClearLive()
	s.held = false
}

// End releases both slots when the session ends. Every response still in
// flight is dropped on arrival.
func (s *Scheduler) End() {
	s.ClearLive()
	s.final = nil
	s.held = true
}
