// Package mock provides a scripted recognition engine for running the
// service without cloud credentials or a capture client. It replays lecture
// utterances as progressive partials followed by one final each.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"lecture-interpreter/internal/service/recognition"
)

// SimulatedUtterance is one sentence with its progressive partials.
type SimulatedUtterance struct {
	Partials []string
	Final    string
}

// DefaultUtterances is a short thermodynamics lecture.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials: []string{"The first", "The first law of"},
		Final:    "The first law of thermodynamics.",
	},
	{
		Partials: []string{"Energy cannot", "Energy cannot be created", "Energy cannot be created or destroyed"},
		Final:    "Energy cannot be created or destroyed, only transformed.",
	},
	{
		Partials: []string{"Consider a", "Consider a closed system"},
		Final:    "Consider a closed system exchanging heat with its surroundings.",
	},
	{
		Final: "Entropy always increases.",
	},
	{
		Partials: []string{"This is", "This is why a Carnot", "This is why a Carnot engine"},
		Final:    "This is why a Carnot engine sets the upper bound on efficiency.",
	},
}

// Engine replays utterances, emitting one step (partial or final) every
// Pace. Playback loops over the script until stopped.
type Engine struct {
	clock      clockwork.Clock
	pace       time.Duration
	utterances []SimulatedUtterance

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	next    int // index of the next utterance to play
	phrases []string
}

// New creates a mock engine. A nil clock uses the real clock.
func New(clock clockwork.Clock, pace time.Duration, utterances []SimulatedUtterance) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if pace <= 0 {
		pace = 400 * time.Millisecond
	}
	if len(utterances) == 0 {
		utterances = DefaultUtterances
	}
	return &Engine{
		clock:      clock,
		pace:       pace,
		utterances: utterances,
	}
}

func (e *Engine) Name() string { return "mock" }

// SetPhrases records phrase hints; the mock only keeps them for inspection.
func (e *Engine) SetPhrases(phrases []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phrases = append([]string(nil), phrases...)
}

// Phrases returns the last phrase hints received.
func (e *Engine) Phrases() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.phrases...)
}

// Start begins playback.
func (e *Engine) Start(ctx context.Context, cb recognition.Callback) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stop != nil {
		return nil
	}
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.play(ctx, cb, e.stop, e.done, e.next)

	cb.OnStarted()
	return nil
}

// Stop ends playback and waits for the player to report OnEnded.
func (e *Engine) Stop() error {
	e.mu.Lock()
	stop, done := e.stop, e.done
	e.stop, e.done = nil, nil
	e.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

func (e *Engine) play(ctx context.Context, cb recognition.Callback, stop, done chan struct{}, start int) {
	defer close(done)
	defer cb.OnEnded()

	for i := start; ; i++ {
		utt := e.utterances[i%len(e.utterances)]
		steps := append(append([]string(nil), utt.Partials...), utt.Final)

		for j, text := range steps {
			t := e.clock.NewTimer(e.pace)
			select {
			case <-stop:
				t.Stop()
				return
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.Chan():
			}

			if j == len(steps)-1 {
				cb.OnFinal(text)
				e.mu.Lock()
				e.next = i + 1
				e.mu.Unlock()
			} else {
				cb.OnPartial(text)
			}
		}
	}
}
