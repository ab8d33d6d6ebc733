package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"lecture-interpreter/internal/models"
	"lecture-interpreter/internal/observability/logging"
	"lecture-interpreter/internal/observability/metrics"
	"lecture-interpreter/internal/service/loop"
	"lecture-interpreter/internal/service/recognition"
	"lecture-interpreter/internal/service/summary"
	"lecture-interpreter/internal/service/transcript"
	"lecture-interpreter/internal/service/translate"
	"lecture-interpreter/internal/sink"
)

const (
	DefaultTopic        = "General Course"
	DefaultTermsTimeout = 15 * time.Second

	MessageTermsUnavailable = "Topic vocabulary unavailable; using standard recognition."
)

// TermsProvider supplies topic vocabulary used as recognition phrase hints.
type TermsProvider interface {
	TopicTerms(ctx context.Context, topic string) ([]string, error)
}

// Config holds session defaults and timings.
type Config struct {
	DefaultTopic      string
	DefaultMode       transcript.Mode
	InactivityTimeout time.Duration
	WarningLead       time.Duration
	InterimDebounce   time.Duration
	RetryDelay        time.Duration
	PhraseHints       bool
	TermsTimeout      time.Duration
	SummaryTimeout    time.Duration
}

// Options wires a Session to its collaborators.
type Options struct {
	Config     Config
	Engine     recognition.Engine
	Sink       sink.Sink
	Dispatcher translate.Dispatcher
	Summarizer summary.Summarizer
	Terms      TermsProvider // optional
	Clock      clockwork.Clock
	Metrics    *metrics.Metrics
}

// Snapshot is a point-in-time view of the session.
type Snapshot struct {
	SessionID           string `json:"sessionId,omitempty"`
	State               string `json:"state"`
	Topic               string `json:"topic,omitempty"`
	Mode                string `json:"mode"`
	ClassCount          int    `json:"classCount"`
	StartedAt           int64  `json:"startedAt,omitempty"`
	Sentences           int    `json:"sentences"`
	PendingTranslations int    `json:"pendingTranslations"`
	NoteBytes           int    `json:"noteBytes"`
	WatchdogArmed       bool   `json:"watchdogArmed"`
	WarningShown        bool   `json:"warningShown"`
	Recognizing         bool   `json:"recognizing"`
	LastError           string `json:"lastError,omitempty"`
}

// Session is the explicit context object for the lecture in progress. It
// owns the lifecycle, the watchdog and the note buffer, and drives the
// recognition adapter, the transcript assembler, the translation scheduler
// and the summary trigger. All of its state is confined to one event loop;
// the exported methods marshal onto it.
type Session struct {
	cfg     Config
	loop    *loop.Loop
	lc      *Lifecycle
	clock   clockwork.Clock
	sink    sink.Sink
	terms   TermsProvider
	hinter  bool
	metrics *metrics.Metrics

	adapter   *recognition.Adapter
	assembler *transcript.Assembler
	scheduler *translate.Scheduler
	trigger   *summary.Trigger
	watchdog  *Watchdog
	notes     NoteBuffer

	runCtx  context.Context
	log     zerolog.Logger
	baseLog zerolog.Logger

	id         string
	topic      string
	mode       transcript.Mode
	classCount int
	startedAt  time.Time
	lastError  string
}

// New creates an idle session. Call Run before using it.
func New(opts Options) *Session {
	cfg := opts.Config
	if cfg.DefaultTopic == "" {
		cfg.DefaultTopic = DefaultTopic
	}
	if cfg.TermsTimeout <= 0 {
		cfg.TermsTimeout = DefaultTermsTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultMetrics
	}
	if opts.Sink == nil {
		opts.Sink = sink.Discard{}
	}

	s := &Session{
		cfg:     cfg,
		loop:    loop.New(),
		lc:      NewLifecycle(),
		clock:   opts.Clock,
		sink:    opts.Sink,
		terms:   opts.Terms,
		metrics: opts.Metrics,
		runCtx:  context.Background(),
		log:     logging.WithComponent("session"),
		baseLog: logging.WithComponent("session"),
		mode:    cfg.DefaultMode,
	}
	_, s.hinter = opts.Engine.(recognition.PhraseHinter)

	p := &presenter{s: s}
	s.scheduler = translate.NewScheduler(translate.SchedulerOptions{
		Dispatcher: opts.Dispatcher,
		Renderer:   p,
		Clock:      opts.Clock,
		Post:       s.loop.Post,
		Debounce:   cfg.InterimDebounce,
		Metrics:    opts.Metrics,
	})
	s.assembler = transcript.NewAssembler(transcript.NewGenerator(), opts.Clock, p, &s.notes, s.scheduler)
	s.adapter = recognition.NewAdapter(recognition.Options{
		Engine:     opts.Engine,
		Clock:      opts.Clock,
		Post:       s.loop.Post,
		Deliver:    s.handle,
		Gate:       func() bool { return ShouldRestartRecognition(s.lc.State()) },
		RetryDelay: cfg.RetryDelay,
		Metrics:    opts.Metrics,
	})
	s.trigger = summary.NewTrigger(summary.Options{
		Summarizer: opts.Summarizer,
		Clock:      opts.Clock,
		Post:       s.loop.Post,
		Emit:       s.sink.Note,
		Timeout:    cfg.SummaryTimeout,
		Metrics:    opts.Metrics,
	})
	s.watchdog = NewWatchdog(opts.Clock, cfg.InactivityTimeout, cfg.WarningLead, s.loop.Post, s.onWarning, s.onInactive)
	return s
}

// Run drives the session loop until ctx is cancelled. Translation and
// recognition requests issued by the session inherit ctx.
func (s *Session) Run(ctx context.Context) {
	s.runCtx = ctx
	s.loop.Run(ctx)
	s.adapter.Stop()
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} {
	return s.loop.Done()
}

// State returns the lifecycle state. Safe from any goroutine.
func (s *Session) State() State {
	return s.lc.State()
}

// Start begins a new session. A blank topic falls back to the default
// topic and a blank mode keeps the current mode. Topic vocabulary is
// fetched before recognition is armed; failing to fetch it never blocks
// the start.
func (s *Session) Start(ctx context.Context, topic, mode string) (Snapshot, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = s.cfg.DefaultTopic
	}
	var m *transcript.Mode
	if mode != "" {
		parsed, err := transcript.ParseMode(mode)
		if err != nil {
			return Snapshot{}, err
		}
		m = &parsed
	}
	if s.lc.State().IsActive() {
		return Snapshot{}, ErrSessionActive
	}

	hintsErr := s.loadPhrases(ctx, topic)
	return s.do(ctx, func() error { return s.start(topic, m, hintsErr) })
}

// Pause stops recognition and summarizes the notes taken since the last
// summary.
func (s *Session) Pause(ctx context.Context) (Snapshot, error) {
	return s.do(ctx, s.pause)
}

// Resume re-arms recognition after a pause.
func (s *Session) Resume(ctx context.Context) (Snapshot, error) {
	return s.do(ctx, s.resume)
}

// End finishes the session.
func (s *Session) End(ctx context.Context) (Snapshot, error) {
	return s.do(ctx, func() error { return s.end("user", "") })
}

// SetMode switches the translation mode. A sentence already in progress
// finishes under the mode it started with.
func (s *Session) SetMode(ctx context.Context, mode string) (Snapshot, error) {
	m, err := transcript.ParseMode(mode)
	if err != nil {
		return Snapshot{}, err
	}
	return s.do(ctx, func() error {
		s.mode = m
		s.assembler.SetMode(m)
		if s.lc.State().IsActive() {
			s.emitStatus(s.statusValue(), "")
		}
		return nil
	})
}

// Snapshot returns the current session view.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	return s.do(ctx, func() error { return nil })
}

// Deliver injects a recognition event as if the adapter had produced it.
func (s *Session) Deliver(ev recognition.Event) {
	s.loop.Post(func() { s.handle(ev) })
}

// SendAudio forwards captured audio to the recognition engine. Audio is
// refused unless the session is listening.
func (s *Session) SendAudio(ctx context.Context, audio []byte) error {
	if s.lc.State() != StateListening {
		return ErrNotListening
	}
	return s.adapter.SendAudio(ctx, audio)
}

func (s *Session) do(ctx context.Context, f func() error) (Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)
	if doErr := s.loop.Do(ctx, func() {
		err = f()
		snap = s.snapshot()
	}); doErr != nil {
		return Snapshot{}, doErr
	}
	return snap, err
}

func (s *Session) loadPhrases(ctx context.Context, topic string) error {
	if !s.cfg.PhraseHints || s.terms == nil || !s.hinter {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TermsTimeout)
	defer cancel()

	terms, err := s.terms.TopicTerms(ctx, topic)
	if err != nil {
		s.adapter.SetPhrases(nil)
		s.baseLog.Warn().Err(err).Str("topic", topic).Msg("Topic vocabulary unavailable, using standard recognition")
		return err
	}
	s.adapter.SetPhrases(terms)
	s.baseLog.Info().Str("topic", topic).Int("terms", len(terms)).Msg("Loaded topic vocabulary")
	return nil
}

func (s *Session) start(topic string, mode *transcript.Mode, hintsErr error) error {
	from := s.lc.State()
	if err := s.lc.Start(); err != nil {
		return err
	}

	s.id = uuid.NewString()
	s.topic = topic
	if mode != nil {
		s.mode = *mode
	}
	s.classCount++
	s.startedAt = s.clock.Now()
	s.lastError = ""
	s.log = logging.WithSession(s.id, topic)

	s.notes.Flush()
	s.assembler.Reset()
	s.assembler.SetMode(s.mode)
	s.scheduler.Reset(s.runCtx, topic)
	s.adapter.Start(s.runCtx)
	s.watchdog.Arm()

	s.metrics.RecordSessionStarted()
	s.transition(from, StateListening)
	s.log.Info().Int("classCount", s.classCount).Stringer("mode", s.mode).Msg("Session started")

	s.emitStatus(models.StatusListening, "")
	if hintsErr != nil {
		s.emitNote(models.NoteInfo, "", MessageTermsUnavailable)
	}
	return nil
}

func (s *Session) pause() error {
	if err := s.lc.Pause(); err != nil {
		return err
	}
	s.adapter.Stop()
	s.flushNotes()
	s.watchdog.Disarm()
	s.scheduler.Stop()

	s.transition(StateListening, StatePaused)
	s.log.Info().Msg("Session paused")
	s.emitStatus(models.StatusPaused, "")
	return nil
}

func (s *Session) resume() error {
	if err := s.lc.Resume(); err != nil {
		return err
	}
	s.assembler.Discard()
	s.scheduler.Resume()
	s.lastError = ""
	s.adapter.Start(s.runCtx)
	s.watchdog.Arm()

	s.transition(StatePaused, StateListening)
	s.log.Info().Msg("Session resumed")
	s.emitStatus(models.StatusListening, "")
	return nil
}

// end finishes the session. A non-empty failure is shown as an error
// status instead of the stopped status.
func (s *Session) end(reason, failure string) error {
	from, err := s.lc.End()
	if err != nil {
		return err
	}
	s.flushNotes()
	s.adapter.Stop()
	s.watchdog.Disarm()
	s.scheduler.End()
	s.assembler.Discard()

	now := s.clock.Now()
	duration := now.Sub(s.startedAt)
	s.metrics.RecordSessionEnded(duration.Seconds())
	s.transition(from, StateEnded)
	s.log.Info().
		Str("reason", reason).
		Dur("duration", duration).
		Int("sentences", s.assembler.Sentences()).
		Msg("Session ended")

	s.emitNote(models.NoteSessionClosed, ClosingTitle(s.classCount, s.topic), ClosingBody(now, duration))
	if failure != "" {
		s.lastError = failure
		s.emitStatus(models.StatusError, failure)
	} else {
		s.emitStatus(models.StatusStopped, "")
	}
	return nil
}

func (s *Session) flushNotes() {
	text := s.notes.Flush()
	if s.trigger.Fire(s.id, s.topic, text) {
		s.log.Debug().Int("bytes", len(text)).Msg("Summarizing notes")
	}
}

// handle consumes a normalized recognition event on the loop. Late speech
// events may still arrive while paused and are assembled, without interim
// translation; nothing is processed once the session has ended.
func (s *Session) handle(ev recognition.Event) {
	state := s.lc.State()
	if !state.IsActive() {
		s.log.Debug().Stringer("event", ev).Stringer("state", state).Msg("Dropping recognition event")
		return
	}

	if ev.IsSpeech() {
		s.watchdog.Activity()
	}

	switch ev.Kind {
	case recognition.KindPartial:
		s.assembler.Partial(ev.Text)
	case recognition.KindFinal:
		s.assembler.Final(ev.Text)
	case recognition.KindLifecycle:
		s.handleLifecycle(ev)
	}
}

func (s *Session) handleLifecycle(ev recognition.Event) {
	switch ev.Lifecycle {
	case recognition.LifecycleStarted:
		if s.lastError != "" && s.lc.State() == StateListening {
			s.lastError = ""
			s.emitStatus(models.StatusListening, "")
		}
	case recognition.LifecycleEnded:
		s.log.Debug().Msg("Recognition run ended")
	case recognition.LifecycleError:
		code := ev.Code
		switch {
		case code.Fatal():
			s.log.Error().Str("code", string(code)).Msg("Fatal recognition error")
			_ = s.end("fatal:"+string(code), ErrorMessage(code))
		case code.Silent():
			s.log.Debug().Str("code", string(code)).Msg("Routine recognition error")
		default:
			s.log.Warn().Str("code", string(code)).Msg("Recognition error")
			s.lastError = ErrorMessage(code)
			s.emitStatus(models.StatusError, s.lastError)
		}
	}
}

func (s *Session) onWarning(remaining time.Duration) {
	s.metrics.RecordWatchdogWarning()
	s.log.Info().Dur("remaining", remaining).Msg("Inactivity warning")
	s.sink.Warning(models.InactivityWarning{
		EventType:   models.EventInactivityWarning,
		SessionID:   s.id,
		Timestamp:   s.now(),
		RemainingMs: remaining.Milliseconds(),
	})
}

func (s *Session) onInactive() {
	s.metrics.RecordWatchdogTimeout()
	_ = s.end("inactivity", "")
}

func (s *Session) transition(from, to State) {
	s.metrics.RecordTransition(from.String(), to.String())
}

func (s *Session) statusValue() string {
	switch s.lc.State() {
	case StateListening:
		return models.StatusListening
	case StatePaused:
		return models.StatusPaused
	default:
		return models.StatusStopped
	}
}

func (s *Session) emitStatus(status, message string) {
	s.sink.Status(models.SessionStatus{
		EventType: models.EventSessionStatus,
		SessionID: s.id,
		Timestamp: s.now(),
		State:     s.lc.State().String(),
		Status:    status,
		Message:   message,
		Topic:     s.topic,
		Mode:      s.mode.String(),
	})
}

func (s *Session) emitNote(kind, title, body string) {
	s.sink.Note(models.Note{
		EventType: models.EventNote,
		SessionID: s.id,
		Timestamp: s.now(),
		Kind:      kind,
		Title:     title,
		Body:      body,
	})
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:           s.id,
		State:               s.lc.State().String(),
		Topic:               s.topic,
		Mode:                s.mode.String(),
		ClassCount:          s.classCount,
		Sentences:           s.assembler.Sentences(),
		PendingTranslations: s.scheduler.PendingSentences(),
		NoteBytes:           s.notes.Len(),
		WatchdogArmed:       s.watchdog.Armed(),
		WarningShown:        s.watchdog.WarningShown(),
		Recognizing:         s.adapter.Running(),
		LastError:           s.lastError,
	}
	if !s.startedAt.IsZero() {
		snap.StartedAt = s.startedAt.UnixMilli()
	}
	return snap
}

func (s *Session) now() int64 {
	return s.clock.Now().UnixMilli()
}

// ClosingTitle is the title of the note that closes a session.
func ClosingTitle(classCount int, topic string) string {
	return fmt.Sprintf("Session #%d: %s", classCount, topic)
}

// ClosingBody records when the session ended and how long it ran.
func ClosingBody(end time.Time, duration time.Duration) string {
	secs := int(duration.Round(time.Second) / time.Second)
	return fmt.Sprintf("Ended: %s\nDuration: %dm %ds", end.Format("2006-01-02 15:04:05"), secs/60, secs%60)
}

// ErrorMessage is the displayable text for a recognition error.
func ErrorMessage(code recognition.ErrorCode) string {
	switch code {
	case recognition.CodeNotAllowed, recognition.CodeServiceNotAllowed:
		return "Microphone access was denied. Allow access and start a new session."
	case recognition.CodeAudioCapture:
		return "No microphone was found."
	case recognition.CodeLanguageNotSupported:
		return "The recognition language is not supported."
	case recognition.CodeNetwork:
		return "Network error during recognition."
	case recognition.CodeStartFailed:
		return "Speech recognition could not be started."
	default:
		return fmt.Sprintf("Recognition error: %s", code)
	}
}
