package recognition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type fakeEngine struct {
	mu        sync.Mutex
	startErrs []error
	starts    int
	stops     int
	cb        Callback
	audio     [][]byte
	phrases   []string
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Start(ctx context.Context, cb Callback) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts++
	if len(e.startErrs) > 0 {
		err := e.startErrs[0]
		e.startErrs = e.startErrs[1:]
		if err != nil {
			return err
		}
	}
	e.cb = cb
	return nil
}

func (e *fakeEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops++
	return nil
}

func (e *fakeEngine) callback() Callback {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cb
}

func (e *fakeEngine) counts() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts, e.stops
}

// audioEngine also accepts audio and phrase hints.
type audioEngine struct {
	fakeEngine
}

func (e *audioEngine) SendAudio(ctx context.Context, audio []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.audio = append(e.audio, audio)
	return nil
}

func (e *audioEngine) SetPhrases(phrases []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phrases = phrases
}

type harness struct {
	q       chan func()
	clock   clockwork.FakeClock
	events  []Event
	gate    bool
	adapter *Adapter
}

func newHarness(engine Engine) *harness {
	h := &harness{
		q:     make(chan func(), 64),
		clock: clockwork.NewFakeClock(),
		gate:  true,
	}
	h.adapter = NewAdapter(Options{
		Engine:  engine,
		Clock:   h.clock,
		Post:    func(f func()) { h.q <- f },
		Deliver: func(ev Event) { h.events = append(h.events, ev) },
		Gate:    func() bool { return h.gate },
	})
	return h
}

// drain runs every closure already posted.
func (h *harness) drain() {
	for {
		select {
		case f := <-h.q:
			f()
		default:
			return
		}
	}
}

// waitPost runs the next closure posted from another goroutine.
func (h *harness) waitPost(t *testing.T) {
	t.Helper()
	select {
	case f := <-h.q:
		f()
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for posted closure")
	}
}

func (h *harness) expectNoPost(t *testing.T) {
	t.Helper()
	select {
	case <-h.q:
		t.Fatal("unexpected posted closure")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestAdapter_ForwardsEvents(t *testing.T) {
	engine := &fakeEngine{}
	h := newHarness(engine)

	h.adapter.Start(context.Background())
	cb := engine.callback()
	cb.OnStarted()
	cb.OnPartial("The first")
	cb.OnFinal("The first law.")
	h.drain()

	want := []Event{Started(), Partial("The first"), Final("The first law.")}
	if len(h.events) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), h.events)
	}
	for i := range want {
		if h.events[i] != want[i] {
			t.Errorf("event %d: expected %v, got %v", i, want[i], h.events[i])
		}
	}
}

func TestAdapter_RestartsOnUnexpectedEnd(t *testing.T) {
	engine := &fakeEngine{}
	h := newHarness(engine)

	h.adapter.Start(context.Background())
	engine.callback().OnEnded()
	h.drain()

	starts, _ := engine.counts()
	if starts != 2 {
		t.Errorf("expected engine restarted, got %d starts", starts)
	}
	if len(h.events) != 1 || h.events[0] != Ended() {
		t.Errorf("expected ended to be delivered, got %v", h.events)
	}
}

func TestAdapter_NoRestartWhenGateClosed(t *testing.T) {
	engine := &fakeEngine{}
	h := newHarness(engine)
	h.gate = false

	h.adapter.Start(context.Background())
	engine.callback().OnEnded()
	h.drain()

	if starts, _ := engine.counts(); starts != 1 {
		t.Errorf("expected no restart, got %d starts", starts)
	}
}

func TestAdapter_NoRestartAfterStop(t *testing.T) {
	engine := &fakeEngine{}
	h := newHarness(engine)

	h.adapter.Start(context.Background())
	cb := engine.callback()
	h.adapter.Stop()
	cb.OnEnded()
	h.drain()

	starts, stops := engine.counts()
	if starts != 1 {
		t.Errorf("expected no restart after stop, got %d starts", starts)
	}
	if stops != 1 {
		t.Errorf("expected 1 stop, got %d", stops)
	}
	if h.adapter.Running() {
		t.Error("expected adapter not running")
	}
}

func TestAdapter_StopIsIdempotent(t *testing.T) {
	engine := &fakeEngine{}
	h := newHarness(engine)

	h.adapter.Stop()
	h.adapter.Start(context.Background())
	h.adapter.Stop()
	h.adapter.Stop()

	if _, stops := engine.counts(); stops != 1 {
		t.Errorf("expected exactly 1 engine stop, got %d", stops)
	}
}

func TestAdapter_FatalErrorDisablesRestart(t *testing.T) {
	engine := &fakeEngine{}
	h := newHarness(engine)

	h.adapter.Start(context.Background())
	cb := engine.callback()
	cb.OnError(CodeNotAllowed)
	cb.OnEnded()
	h.drain()

	if starts, _ := engine.counts(); starts != 1 {
		t.Errorf("expected no restart after fatal error, got %d starts", starts)
	}
	if len(h.events) != 2 || h.events[0] != Errored(CodeNotAllowed) {
		t.Errorf("expected error then ended, got %v", h.events)
	}
}

func TestAdapter_NetworkErrorStillRestarts(t *testing.T) {
	engine := &fakeEngine{}
	h := newHarness(engine)

	h.adapter.Start(context.Background())
	cb := engine.callback()
	cb.OnError(CodeNetwork)
	cb.OnEnded()
	h.drain()

	if starts, _ := engine.counts(); starts != 2 {
		t.Errorf("expected restart after network error, got %d starts", starts)
	}
}

func TestAdapter_RetriesFailedStartOnce(t *testing.T) {
	engine := &fakeEngine{startErrs: []error{errors.New("busy")}}
	h := newHarness(engine)

	h.adapter.Start(context.Background())
	if starts, _ := engine.counts(); starts != 1 {
		t.Fatalf("expected 1 start attempt, got %d", starts)
	}

	h.clock.Advance(DefaultRetryDelay - time.Millisecond)
	h.expectNoPost(t)

	h.clock.Advance(time.Millisecond)
	h.waitPost(t)

	if starts, _ := engine.counts(); starts != 2 {
		t.Errorf("expected retry, got %d starts", starts)
	}
	if len(h.events) != 0 {
		t.Errorf("expected no error surfaced after successful retry, got %v", h.events)
	}
}

func TestAdapter_SurfacesStartFailedWhenRetryFails(t *testing.T) {
	engine := &fakeEngine{startErrs: []error{errors.New("busy"), errors.New("still busy")}}
	h := newHarness(engine)

	h.adapter.Start(context.Background())
	h.clock.Advance(DefaultRetryDelay)
	h.waitPost(t)

	if starts, _ := engine.counts(); starts != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", starts)
	}
	if len(h.events) != 1 || h.events[0] != Errored(CodeStartFailed) {
		t.Fatalf("expected start-failed, got %v", h.events)
	}
	if h.events[0].Code.Fatal() {
		t.Error("expected start-failed to be non-fatal")
	}
}

func TestAdapter_StopCancelsPendingRetry(t *testing.T) {
	engine := &fakeEngine{startErrs: []error{errors.New("busy")}}
	h := newHarness(engine)

	h.adapter.Start(context.Background())
	h.adapter.Stop()
	h.clock.Advance(time.Second)
	h.expectNoPost(t)

	if starts, _ := engine.counts(); starts != 1 {
		t.Errorf("expected no retry after stop, got %d starts", starts)
	}
}

func TestAdapter_DropsEventsFromPreviousRun(t *testing.T) {
	engine := &fakeEngine{}
	h := newHarness(engine)

	h.adapter.Start(context.Background())
	old := engine.callback()
	h.adapter.Stop()
	h.adapter.Start(context.Background())

	old.OnFinal("late words")
	old.OnEnded()
	h.drain()

	if len(h.events) != 0 {
		t.Errorf("expected events from the old run to be dropped, got %v", h.events)
	}
	if starts, _ := engine.counts(); starts != 2 {
		t.Errorf("expected no extra restart, got %d starts", starts)
	}
}

func TestAdapter_AudioAndPhrases(t *testing.T) {
	plain := newHarness(&fakeEngine{})
	if plain.adapter.SetPhrases([]string{"entropy"}) {
		t.Error("expected plain engine to reject phrase hints")
	}
	if err := plain.adapter.SendAudio(context.Background(), []byte{1}); !errors.Is(err, ErrAudioUnsupported) {
		t.Errorf("expected ErrAudioUnsupported, got %v", err)
	}

	engine := &audioEngine{}
	h := newHarness(engine)
	if !h.adapter.SetPhrases([]string{"entropy", "enthalpy"}) {
		t.Error("expected phrase hints to be accepted")
	}
	if err := h.adapter.SendAudio(context.Background(), []byte{1, 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(engine.phrases) != 2 || len(engine.audio) != 1 {
		t.Errorf("expected phrases and audio forwarded, got %v / %v", engine.phrases, engine.audio)
	}
}
