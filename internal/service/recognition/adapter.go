package recognition

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"lecture-interpreter/internal/observability/logging"
	"lecture-interpreter/internal/observability/metrics"
	"lecture-interpreter/internal/service/timer"
)

// DefaultRetryDelay is the pause before the single start retry.
const DefaultRetryDelay = 250 * time.Millisecond

// Options configures an Adapter.
type Options struct {
	Engine Engine
	Clock  clockwork.Clock

	// Post schedules a closure on the owner's event loop. Every engine
	// signal is marshalled through it.
	Post func(func())

	// Deliver receives normalized events on the owner's loop.
	Deliver func(Event)

	// Gate reports whether an unexpected drop should re-arm the engine.
	Gate func() bool

	RetryDelay time.Duration
	Metrics    *metrics.Metrics
}

// Adapter wraps an Engine: it retries a failed start once, restarts the
// engine when it drops while the gate allows it, and forwards normalized
// events. All methods except SendAudio and SetPhrases must be called on the
// owner's loop.
type Adapter struct {
	engine  Engine
	post    func(func())
	deliver func(Event)
	gate    func() bool
	metrics *metrics.Metrics
	log     zerolog.Logger

	retry *timer.Timer
	ctx   context.Context

	epoch   uint64
	running bool
	active  bool
	fatal   bool
}

// NewAdapter creates an adapter around opts.Engine.
func NewAdapter(opts Options) *Adapter {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultMetrics
	}
	if opts.Gate == nil {
		opts.Gate = func() bool { return true }
	}

	a := &Adapter{
		engine:  opts.Engine,
		post:    opts.Post,
		deliver: opts.Deliver,
		gate:    opts.Gate,
		metrics: opts.Metrics,
		log:     logging.WithEngine(opts.Engine.Name()),
		ctx:     context.Background(),
	}
	a.retry = timer.New(opts.Clock, opts.RetryDelay, opts.Post, a.retryStart)
	return a
}

// Start begins continuous capture.
func (a *Adapter) Start(ctx context.Context) {
	if a.running {
		return
	}
	a.ctx = ctx
	a.running = true
	a.fatal = false
	a.startEngine(false)
}

// Stop ends capture. Calling it more than once is a no-op.
func (a *Adapter) Stop() {
	if !a.running && !a.active {
		return
	}
	a.running = false
	a.retry.Stop()

	if !a.active {
		return
	}
	a.active = false
	if err := a.engine.Stop(); err != nil {
		a.log.Warn().Err(err).Msg("Engine stop failed")
	}
}

// Running reports whether capture has been requested and not stopped.
func (a *Adapter) Running() bool {
	return a.running
}

// ErrAudioUnsupported is returned by SendAudio when the engine produces
// its own transcripts and takes no audio.
var ErrAudioUnsupported = errors.New("recognition engine does not accept audio")

// SendAudio forwards audio to engines that take raw audio.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	r, ok := a.engine.(AudioReceiver)
	if !ok {
		return ErrAudioUnsupported
	}
	a.metrics.RecordAudioReceived(len(audio))
	return r.SendAudio(ctx, audio)
}

// SetPhrases passes topic vocabulary to engines that support it. It reports
// whether the engine accepted the hints.
func (a *Adapter) SetPhrases(phrases []string) bool {
	h, ok := a.engine.(PhraseHinter)
	if !ok {
		return false
	}
	h.SetPhrases(phrases)
	return true
}

func (a *Adapter) startEngine(retried bool) {
	a.epoch++
	cb := &engineCallback{a: a, epoch: a.epoch}

	err := a.engine.Start(a.ctx, cb)
	if err == nil {
		a.active = true
		return
	}

	a.metrics.RecordRecognitionError(a.engine.Name(), string(CodeStartFailed))
	if !retried {
		a.log.Warn().Err(err).Dur("retryIn", a.retry.Duration()).Msg("Engine start failed, retrying")
		a.retry.Arm()
		return
	}

	a.log.Error().Err(err).Msg("Engine start retry failed")
	a.deliver(Errored(CodeStartFailed))
}

func (a *Adapter) retryStart() {
	if !a.running || a.active {
		return
	}
	a.metrics.RecordRecognitionRestart("retry")
	a.startEngine(true)
}

func (a *Adapter) handle(epoch uint64, ev Event) {
	if epoch != a.epoch {
		a.log.Debug().Stringer("event", ev).Msg("Dropping event from previous engine run")
		return
	}

	if ev.Kind == KindLifecycle {
		switch ev.Lifecycle {
		case LifecycleError:
			a.metrics.RecordRecognitionError(a.engine.Name(), string(ev.Code))
			if ev.Code.Fatal() {
				a.fatal = true
			}
		case LifecycleEnded:
			a.active = false
		}
	}

	a.deliver(ev)

	if ev.Kind == KindLifecycle && ev.Lifecycle == LifecycleEnded {
		a.maybeRestart()
	}
}

func (a *Adapter) maybeRestart() {
	if !a.running || a.fatal || a.active || !a.gate() {
		return
	}
	a.log.Info().Msg("Engine dropped while listening, restarting")
	a.metrics.RecordRecognitionRestart("drop")
	a.startEngine(false)
}

// engineCallback tags engine signals with the run they belong to, so
// signals from a stopped run cannot trigger a restart of the current one.
type engineCallback struct {
	a     *Adapter
	epoch uint64
}

func (c *engineCallback) emit(ev Event) {
	c.a.post(func() { c.a.handle(c.epoch, ev) })
}

func (c *engineCallback) OnPartial(text string)  { c.emit(Partial(text)) }
func (c *engineCallback) OnFinal(text string)    { c.emit(Final(text)) }
func (c *engineCallback) OnStarted()             { c.emit(Started()) }
func (c *engineCallback) OnEnded()               { c.emit(Ended()) }
func (c *engineCallback) OnError(code ErrorCode) { c.emit(Errored(code)) }
