package translate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"lecture-interpreter/internal/service/transcript"
)

// fakeDispatcher records requests and answers "zh:<text>". When hold is
// set, interim requests block until released.
type fakeDispatcher struct {
	mu       sync.Mutex
	requests []Request
	hold     chan struct{}
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, req Request) Result {
	d.mu.Lock()
	d.requests = append(d.requests, req)
	hold := d.hold
	d.mu.Unlock()

	if hold != nil && req.Channel == ChannelInterim {
		<-hold
	}
	return Result{SentenceID: req.SentenceID, Channel: req.Channel, Text: "zh:" + req.Text}
}

func (d *fakeDispatcher) byChannel(ch Channel) []Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Request
	for _, r := range d.requests {
		if r.Channel == ch {
			out = append(out, r)
		}
	}
	return out
}

type renderedTranslation struct {
	id       uint64
	ch       Channel
	text     string
	enhanced bool
	degraded bool
}

type renderRecorder struct {
	out []renderedTranslation
}

func (r *renderRecorder) RenderTranslation(id uint64, ch Channel, text string, enhanced, degraded bool) {
	r.out = append(r.out, renderedTranslation{id, ch, text, enhanced, degraded})
}

type fixture struct {
	q     chan func()
	clock clockwork.FakeClock
	disp  *fakeDispatcher
	rend  *renderRecorder
	s     *Scheduler
}

func newFixture() *fixture {
	f := &fixture{
		q:     make(chan func(), 64),
		clock: clockwork.NewFakeClock(),
		disp:  &fakeDispatcher{},
		rend:  &renderRecorder{},
	}
	f.s = NewScheduler(SchedulerOptions{
		Dispatcher: f.disp,
		Renderer:   f.rend,
		Clock:      f.clock,
		Post:       func(fn func()) { f.q <- fn },
	})
	f.s.Reset(context.Background(), "Thermodynamics")
	return f
}

// run executes n posted closures, waiting for each.
func (f *fixture) run(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case fn := <-f.q:
			fn()
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for posted closure %d of %d", i+1, n)
		}
	}
}

func (f *fixture) expectIdle(t *testing.T) {
	t.Helper()
	select {
	case <-f.q:
		t.Fatal("unexpected posted closure")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestScheduler_FinalIssuesFastAndAI(t *testing.T) {
	f := newFixture()
	rec := transcript.Record{ID: 7, Text: "The first law of thermodynamics."}

	f.s.Final(rec)
	f.run(t, 2)

	fast, ai := f.disp.byChannel(ChannelFast), f.disp.byChannel(ChannelAI)
	if len(fast) != 1 || len(ai) != 1 {
		t.Fatalf("expected one fast and one AI request, got %d/%d", len(fast), len(ai))
	}
	if fast[0].SentenceID != 7 || ai[0].SentenceID != 7 {
		t.Errorf("expected requests for sentence 7, got %d/%d", fast[0].SentenceID, ai[0].SentenceID)
	}
	if ai[0].Topic != "Thermodynamics" {
		t.Errorf("expected topic on AI request, got %q", ai[0].Topic)
	}
	if f.s.PendingSentences() != 0 {
		t.Errorf("expected slot bookkeeping cleared, got %d", f.s.PendingSentences())
	}
}

func TestScheduler_FastThenAIEnhances(t *testing.T) {
	f := newFixture()
	f.s.final = &slot{id: 1}

	f.s.Resolve(Result{SentenceID: 1, Channel: ChannelFast, Text: "快"})
	f.s.Resolve(Result{SentenceID: 1, Channel: ChannelAI, Text: "精"})

	if len(f.rend.out) != 2 {
		t.Fatalf("expected 2 renders, got %v", f.rend.out)
	}
	if f.rend.out[0].ch != ChannelFast || f.rend.out[0].enhanced {
		t.Errorf("expected fast text first, got %+v", f.rend.out[0])
	}
	if f.rend.out[1].text != "精" || !f.rend.out[1].enhanced {
		t.Errorf("expected AI text marked enhanced, got %+v", f.rend.out[1])
	}
}

func TestScheduler_AIBeforeFastIsNotDowngraded(t *testing.T) {
	f := newFixture()
	f.s.final = &slot{id: 1}

	f.s.Resolve(Result{SentenceID: 1, Channel: ChannelAI, Text: "精"})
	applied := f.s.Resolve(Result{SentenceID: 1, Channel: ChannelFast, Text: "快"})

	if applied {
		t.Error("expected late fast result not to replace the enhanced text")
	}
	if len(f.rend.out) != 1 || !f.rend.out[0].enhanced {
		t.Errorf("expected only the enhanced render, got %v", f.rend.out)
	}
}

func TestScheduler_AIFailureLeavesFastText(t *testing.T) {
	f := newFixture()
	f.s.final = &slot{id: 1}

	f.s.Resolve(Result{SentenceID: 1, Channel: ChannelFast, Text: "快"})
	applied := f.s.Resolve(Result{SentenceID: 1, Channel: ChannelAI, Failed: true})

	if applied {
		t.Error("expected failed AI result not to render")
	}
	if len(f.rend.out) != 1 || f.rend.out[0].text != "快" {
		t.Errorf("expected fast text to stand, got %v", f.rend.out)
	}
	if f.s.PendingSentences() != 0 {
		t.Errorf("expected slot released after both channels, got %d", f.s.PendingSentences())
	}
}

func TestScheduler_FastFailureShowsPlaceholder(t *testing.T) {
	f := newFixture()
	f.s.final = &slot{id: 1}

	f.s.Resolve(Result{SentenceID: 1, Channel: ChannelFast, Text: PlaceholderError, Degraded: true})

	if len(f.rend.out) != 1 || f.rend.out[0].text != PlaceholderError || !f.rend.out[0].degraded {
		t.Errorf("expected degraded placeholder, got %v", f.rend.out)
	}
}

func TestScheduler_LateResponseNeverTouchesNewerSentence(t *testing.T) {
	f := newFixture()
	f.s.Final(transcript.Record{ID: 1, Text: "one"})
	f.s.Final(transcript.Record{ID: 2, Text: "two"})
	f.run(t, 4)

	for _, r := range f.rend.out {
		if r.id == 1 {
			t.Errorf("expected responses for superseded sentence 1 to be dropped, got %+v", r)
		}
	}
	last := f.rend.out[len(f.rend.out)-1]
	if last.id != 2 || last.text != "zh:two" {
		t.Errorf("expected sentence 2 to keep its own text, got %+v", last)
	}
	if f.s.PendingSentences() != 0 {
		t.Errorf("expected slot released, got %d", f.s.PendingSentences())
	}
}

func TestScheduler_SupersededSlotNotReclaimed(t *testing.T) {
	f := newFixture()
	f.s.final = &slot{id: 2}

	if f.s.Resolve(Result{SentenceID: 1, Channel: ChannelAI, Text: "一精"}) {
		t.Error("expected AI result for an older sentence to be dropped")
	}
	f.s.Resolve(Result{SentenceID: 2, Channel: ChannelFast, Text: "二"})
	if f.s.Resolve(Result{SentenceID: 1, Channel: ChannelFast, Text: "一"}) {
		t.Error("expected fast result for an older sentence to be dropped")
	}
	if len(f.rend.out) != 1 || f.rend.out[0].id != 2 {
		t.Errorf("expected only sentence 2 rendered, got %v", f.rend.out)
	}
}

func TestScheduler_EndDropsInFlightResponses(t *testing.T) {
	f := newFixture()
	f.s.Final(transcript.Record{ID: 1, Text: "The first law of thermodynamics."})
	f.s.End()
	f.run(t, 2)

	if len(f.rend.out) != 0 {
		t.Errorf("expected no renders after end, got %v", f.rend.out)
	}
	if f.s.PendingSentences() != 0 {
		t.Errorf("expected no pending sentences after end, got %d", f.s.PendingSentences())
	}
}

func TestScheduler_ResponsesFromPreviousSessionDropped(t *testing.T) {
	f := newFixture()
	f.s.final = &slot{id: 1}
	f.s.Reset(context.Background(), "Optics")

	if f.s.Resolve(Result{SentenceID: 1, Channel: ChannelFast, Text: "一"}) {
		t.Error("expected response for a previous session to be dropped")
	}
	if len(f.rend.out) != 0 {
		t.Errorf("expected no renders, got %v", f.rend.out)
	}
}

func TestScheduler_InterimDebounce(t *testing.T) {
	f := newFixture()

	// Ten partials within 200ms.
	for i := 0; i < 10; i++ {
		f.s.Interim(3, "The first law"[:3+i])
		f.clock.Advance(20 * time.Millisecond)
	}
	f.expectIdle(t)

	f.clock.Advance(DefaultDebounce)
	f.run(t, 1) // debounce expiry
	f.run(t, 1) // interim response

	interims := f.disp.byChannel(ChannelInterim)
	if len(interims) != 1 {
		t.Fatalf("expected exactly 1 interim request, got %d", len(interims))
	}
	if interims[0].Text != "The first law"[:12] {
		t.Errorf("expected request for the latest partial, got %q", interims[0].Text)
	}
	if len(f.rend.out) != 1 || f.rend.out[0].ch != ChannelInterim || f.rend.out[0].id != 3 {
		t.Errorf("expected interim render for sentence 3, got %v", f.rend.out)
	}
}

func TestScheduler_InterimNotIssuedInsideWindow(t *testing.T) {
	f := newFixture()

	f.s.Interim(3, "The first")
	f.clock.Advance(DefaultDebounce - time.Millisecond)
	f.s.Interim(3, "The first law")
	f.clock.Advance(DefaultDebounce - time.Millisecond)
	f.expectIdle(t)

	if n := len(f.disp.byChannel(ChannelInterim)); n != 0 {
		t.Errorf("expected no interim request yet, got %d", n)
	}
}

func TestScheduler_FinalCancelsPendingInterim(t *testing.T) {
	f := newFixture()

	f.s.Interim(3, "The first")
	f.s.Final(transcript.Record{ID: 3, Text: "The first law."})
	f.run(t, 2)

	f.clock.Advance(time.Second)
	f.expectIdle(t)
	if n := len(f.disp.byChannel(ChannelInterim)); n != 0 {
		t.Errorf("expected no interim after final, got %d", n)
	}
}

func TestScheduler_InterimForFinalizedSentenceDropped(t *testing.T) {
	f := newFixture()
	f.disp.hold = make(chan struct{})

	f.s.Interim(3, "The first")
	f.clock.Advance(DefaultDebounce)
	f.run(t, 1) // expiry issues the interim request, which blocks

	f.s.Final(transcript.Record{ID: 3, Text: "The first law."})
	f.s.Interim(4, "Energy")

	close(f.disp.hold)
	f.run(t, 3) // fast, ai, interim responses in any order

	for _, r := range f.rend.out {
		if r.ch == ChannelInterim {
			t.Errorf("expected stale interim to be dropped, got %+v", r)
		}
	}
}

func TestScheduler_AtMostOneInterimInFlight(t *testing.T) {
	f := newFixture()
	f.disp.hold = make(chan struct{})

	f.s.Interim(3, "The first")
	f.clock.Advance(DefaultDebounce)
	f.run(t, 1)
	if !f.s.InterimPending() {
		t.Fatal("expected an interim request in flight")
	}

	f.s.Interim(3, "The first law of")
	f.clock.Advance(DefaultDebounce)
	f.run(t, 1) // second expiry is queued, not issued

	if n := len(f.disp.byChannel(ChannelInterim)); n != 1 {
		t.Fatalf("expected 1 outstanding interim request, got %d", n)
	}

	// Release the first request; its resolution issues the queued one,
	// which no longer blocks on the closed hold channel.
	close(f.disp.hold)
	f.run(t, 1)
	f.run(t, 1)

	interims := f.disp.byChannel(ChannelInterim)
	if len(interims) != 2 {
		t.Fatalf("expected queued interim to be issued after the first resolved, got %d", len(interims))
	}
	if interims[1].Text != "The first law of" {
		t.Errorf("expected queued request for the latest partial, got %q", interims[1].Text)
	}
}

func TestScheduler_ClearLiveDropsInterim(t *testing.T) {
	f := newFixture()

	f.s.Interim(3, "The first")
	f.s.ClearLive()
	f.clock.Advance(time.Second)
	f.expectIdle(t)

	if f.s.Resolve(Result{SentenceID: 3, Channel: ChannelInterim, Text: "x"}) {
		t.Error("expected interim for a cleared live slot to be dropped")
	}
}

func TestScheduler_DiscardCancelsDebounce(t *testing.T) {
	f := newFixture()

	f.s.Interim(5, "um")
	f.s.Discard(4)
	f.s.Discard(5)
	f.clock.Advance(DefaultDebounce)
	f.expectIdle(t)

	if n := len(f.disp.byChannel(ChannelInterim)); n != 0 {
		t.Errorf("expected no interim for a discarded sentence, got %d", n)
	}
}

func TestScheduler_StopIgnoresLatePartials(t *testing.T) {
	f := newFixture()

	f.s.Stop()
	f.s.Interim(3, "late words")
	f.clock.Advance(DefaultDebounce)
	f.expectIdle(t)
	if n := len(f.disp.byChannel(ChannelInterim)); n != 0 {
		t.Fatalf("expected no interim while stopped, got %d", n)
	}

	f.s.Resume()
	f.s.Interim(4, "Energy")
	f.clock.Advance(DefaultDebounce)
	f.run(t, 1) // debounce expiry
	f.run(t, 1) // interim response
	if n := len(f.disp.byChannel(ChannelInterim)); n != 1 {
		t.Errorf("expected interim after resume, got %d", n)
	}
}

func TestScheduler_StopKeepsFinalSlot(t *testing.T) {
	f := newFixture()
	f.s.Final(transcript.Record{ID: 1, Text: "Energy is conserved."})
	f.s.Stop()
	f.run(t, 2)

	last := f.rend.out[len(f.rend.out)-1]
	if last.id != 1 || !last.enhanced {
		t.Errorf("expected the sentence finalized before pause to be translated, got %v", f.rend.out)
	}
}
