package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"lecture-interpreter/internal/models"
	"lecture-interpreter/internal/service/dictionary"
	"lecture-interpreter/internal/service/loop"
	"lecture-interpreter/internal/service/recognition"
	"lecture-interpreter/internal/service/session"
	"lecture-interpreter/internal/service/transcript"
)

type fakeController struct {
	mu    sync.Mutex
	err   error
	snap  session.Snapshot
	topic string
	mode  string
	audio [][]byte
	done  chan struct{}
	calls []string
}

func newFakeController() *fakeController {
	return &fakeController{
		snap: session.Snapshot{State: "IDLE", Mode: "economy"},
		done: make(chan struct{}),
	}
}

func (f *fakeController) record(name string) (session.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.snap, f.err
}

func (f *fakeController) Start(_ context.Context, topic, mode string) (session.Snapshot, error) {
	f.mu.Lock()
	f.topic, f.mode = topic, mode
	f.mu.Unlock()
	return f.record("start")
}

func (f *fakeController) Pause(context.Context) (session.Snapshot, error)  { return f.record("pause") }
func (f *fakeController) Resume(context.Context) (session.Snapshot, error) { return f.record("resume") }
func (f *fakeController) End(context.Context) (session.Snapshot, error)    { return f.record("end") }

func (f *fakeController) SetMode(_ context.Context, mode string) (session.Snapshot, error) {
	if _, err := transcript.ParseMode(mode); err != nil {
		return session.Snapshot{}, err
	}
	return f.record("mode")
}

func (f *fakeController) Snapshot(context.Context) (session.Snapshot, error) {
	return f.record("snapshot")
}

func (f *fakeController) SendAudio(_ context.Context, audio []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, audio)
	return nil
}

func (f *fakeController) Done() <-chan struct{} { return f.done }

func (f *fakeController) startArgs() (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.topic, f.mode
}

func (f *fakeController) audioFrames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.audio)
}

type fakeDictionary struct {
	entries map[string]*dictionary.Entry
	err     error
}

func (d *fakeDictionary) Lookup(_ context.Context, word string) (*dictionary.Entry, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.entries[word], nil
}

type fakeExplainer struct {
	mu                    sync.Mutex
	topic, word, sentence string
}

func (e *fakeExplainer) Explain(_ context.Context, topic, word, sentence string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.topic, e.word, e.sentence = topic, word, sentence
	return "an explanation", nil
}

func (e *fakeExplainer) input() (string, string, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.topic, e.word, e.sentence
}

type fakePusher struct {
	mu       sync.Mutex
	attached int
	events   []recognition.Event
}

func (p *fakePusher) Attach() func() {
	p.mu.Lock()
	p.attached++
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.attached--
		p.mu.Unlock()
	}
}

func (p *fakePusher) Push(ev recognition.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return true
}

func (p *fakePusher) snapshot() (int, []recognition.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attached, append([]recognition.Event(nil), p.events...)
}

func newTestRouter(t *testing.T, secret string, deps Deps) (*httptest.Server, *Hub) {
	t.Helper()
	if deps.Hub == nil {
		deps.Hub = NewHub()
	}
	ctx, cancel := context.WithCancel(context.Background())
	go deps.Hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(RouterConfig{JWTSecret: secret}, deps))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, deps.Hub
}

func doJSON(t *testing.T, method, url, body, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHealthEndpoints(t *testing.T) {
	ctrl := newFakeController()
	srv, _ := newTestRouter(t, "secret", Deps{Session: ctrl})

	if resp := doJSON(t, http.MethodGet, srv.URL+"/v1/liveness", "", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("expected liveness 200, got %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodGet, srv.URL+"/v1/readiness", "", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("expected readiness 200, got %d", resp.StatusCode)
	}

	close(ctrl.done)
	if resp := doJSON(t, http.MethodGet, srv.URL+"/v1/readiness", "", ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected readiness 503 after loop stop, got %d", resp.StatusCode)
	}
}

func TestStartPassesTopicAndMode(t *testing.T) {
	ctrl := newFakeController()
	ctrl.snap = session.Snapshot{SessionID: "s-1", State: "LISTENING", Topic: "Thermodynamics", Mode: "full_power"}
	srv, _ := newTestRouter(t, "", Deps{Session: ctrl})

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/session/start", `{"topic":"Thermodynamics","mode":"full_power"}`, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var snap session.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if snap.SessionID != "s-1" || snap.State != "LISTENING" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if topic, mode := ctrl.startArgs(); topic != "Thermodynamics" || mode != "full_power" {
		t.Errorf("expected topic and mode to be forwarded, got %q %q", topic, mode)
	}
}

func TestStartWithoutBody(t *testing.T) {
	ctrl := newFakeController()
	srv, _ := newTestRouter(t, "", Deps{Session: ctrl})

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/session/start", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for empty body, got %d", resp.StatusCode)
	}
	if topic, _ := ctrl.startArgs(); topic != "" {
		t.Errorf("expected empty topic, got %q", topic)
	}
}

func TestSessionErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"active", session.ErrSessionActive, http.StatusConflict},
		{"not listening", session.ErrNotListening, http.StatusConflict},
		{"not paused", session.ErrNotPaused, http.StatusConflict},
		{"no session", session.ErrNoSession, http.StatusConflict},
		{"unknown mode", transcript.ErrUnknownMode, http.StatusBadRequest},
		{"loop stopped", loop.ErrStopped, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFakeController()
			ctrl.err = tt.err
			srv, _ := newTestRouter(t, "", Deps{Session: ctrl})

			resp := doJSON(t, http.MethodPost, srv.URL+"/v1/session/pause", "", "")
			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body["error"] == "" {
				t.Errorf("expected error body, got %v (%v)", body, err)
			}
		})
	}
}

func TestCommandsRouteToController(t *testing.T) {
	ctrl := newFakeController()
	srv, _ := newTestRouter(t, "", Deps{Session: ctrl})

	for _, path := range []string{"pause", "resume", "end"} {
		if resp := doJSON(t, http.MethodPost, srv.URL+"/v1/session/"+path, "", ""); resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
	if resp := doJSON(t, http.MethodGet, srv.URL+"/v1/session", "", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("snapshot: expected 200, got %d", resp.StatusCode)
	}

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	want := []string{"pause", "resume", "end", "snapshot"}
	if len(ctrl.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, ctrl.calls)
	}
	for i := range want {
		if ctrl.calls[i] != want[i] {
			t.Errorf("expected call %d to be %q, got %q", i, want[i], ctrl.calls[i])
		}
	}
}

func TestSetMode(t *testing.T) {
	ctrl := newFakeController()
	srv, _ := newTestRouter(t, "", Deps{Session: ctrl})

	if resp := doJSON(t, http.MethodPut, srv.URL+"/v1/session/mode", `{"mode":"economy"}`, ""); resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodPut, srv.URL+"/v1/session/mode", `{"mode":"turbo"}`, ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown mode, got %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodPut, srv.URL+"/v1/session/mode", `not json`, ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid body, got %d", resp.StatusCode)
	}
}

func TestAuth(t *testing.T) {
	ctrl := newFakeController()
	srv, _ := newTestRouter(t, "secret", Deps{Session: ctrl})

	if resp := doJSON(t, http.MethodGet, srv.URL+"/v1/session", "", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodGet, srv.URL+"/v1/session", "", "garbage"); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 with invalid token, got %d", resp.StatusCode)
	}

	wrong, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "lecturer"}).SignedString([]byte("other"))
	if resp := doJSON(t, http.MethodGet, srv.URL+"/v1/session", "", wrong); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong key, got %d", resp.StatusCode)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "lecturer",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	if resp := doJSON(t, http.MethodGet, srv.URL+"/v1/session", "", token); resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with valid token, got %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodGet, srv.URL+"/v1/session?token="+token, "", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with query token, got %d", resp.StatusCode)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		got, ok := bearerToken(req)
		if got != tt.want || ok != tt.ok {
			t.Errorf("header %q: expected (%q, %v), got (%q, %v)", tt.header, tt.want, tt.ok, got, ok)
		}
	}
}

func TestDictionary(t *testing.T) {
	dict := &fakeDictionary{entries: map[string]*dictionary.Entry{
		"entropy": {Word: "entropy", PartOfSpeech: "noun", DefinitionEN: "A measure of disorder."},
	}}
	srv, _ := newTestRouter(t, "", Deps{Session: newFakeController(), Dictionary: dict})

	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/dictionary/Entropy.", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var entry dictionary.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		t.Fatalf("failed to decode entry: %v", err)
	}
	if entry.Word != "entropy" {
		t.Errorf("expected entropy, got %q", entry.Word)
	}

	if resp := doJSON(t, http.MethodGet, srv.URL+"/v1/dictionary/qwzx", "", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown word, got %d", resp.StatusCode)
	}

	failing, _ := newTestRouter(t, "", Deps{Session: newFakeController(), Dictionary: &fakeDictionary{err: errors.New("upstream down")}})
	if resp := doJSON(t, http.MethodGet, failing.URL+"/v1/dictionary/entropy", "", ""); resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502 on lookup failure, got %d", resp.StatusCode)
	}
}

func TestDictionaryNotConfigured(t *testing.T) {
	srv, _ := newTestRouter(t, "", Deps{Session: newFakeController()})
	if resp := doJSON(t, http.MethodGet, srv.URL+"/v1/dictionary/entropy", "", ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

func TestExplainUsesSessionTopic(t *testing.T) {
	ctrl := newFakeController()
	ctrl.snap.Topic = "Thermodynamics"
	exp := &fakeExplainer{}
	srv, _ := newTestRouter(t, "", Deps{Session: ctrl, Explainer: exp})

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/explain", `{"word":"enthalpy","sentence":"Enthalpy is conserved here."}`, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body explainResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Explanation != "an explanation" || body.Topic != "Thermodynamics" {
		t.Errorf("unexpected response %+v", body)
	}
	if topic, word, sentence := exp.input(); topic != "Thermodynamics" || word != "enthalpy" || sentence != "Enthalpy is conserved here." {
		t.Errorf("unexpected explainer input %q %q %q", topic, word, sentence)
	}

	if resp := doJSON(t, http.MethodPost, srv.URL+"/v1/explain", `{"word":"  "}`, ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for blank word, got %d", resp.StatusCode)
	}
}

func TestExplainDefaultsTopic(t *testing.T) {
	exp := &fakeExplainer{}
	srv, _ := newTestRouter(t, "", Deps{Session: newFakeController(), Explainer: exp})

	doJSON(t, http.MethodPost, srv.URL+"/v1/explain", `{"word":"entropy"}`, "")
	if topic, _, _ := exp.input(); topic != session.DefaultTopic {
		t.Errorf("expected default topic, got %q", topic)
	}
}

func TestSentryRecovery(t *testing.T) {
	h := withSentryRecovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestWebSocketReceivesBroadcast(t *testing.T) {
	srv, hub := newTestRouter(t, "", Deps{Session: newFakeController()})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/v1/session/ws"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// Registration races the dial, so keep publishing until one arrives.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				hub.Status(models.SessionStatus{SessionID: "s-1", Status: models.StatusListening})
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var status models.SessionStatus
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if status.SessionID != "s-1" || status.Status != models.StatusListening {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestWebSocketCaptureRole(t *testing.T) {
	ctrl := newFakeController()
	pusher := &fakePusher{}
	srv, _ := newTestRouter(t, "", Deps{Session: ctrl, Capture: pusher})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/v1/session/ws?role=capture"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	msgs := []string{
		`{"type":"partial","text":"The first"}`,
		`{"type":"final","text":"The first law."}`,
		`{"type":"bogus"}`,
		`{"type":"error","code":"network"}`,
	}
	for _, m := range msgs {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, bytes.Repeat([]byte{1}, 320)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	waitFor(t, func() bool {
		_, events := pusher.snapshot()
		return len(events) == 3 && ctrl.audioFrames() == 1
	})

	attached, events := pusher.snapshot()
	if attached != 1 {
		t.Errorf("expected one attached capture client, got %d", attached)
	}
	if events[0].Kind != recognition.KindPartial || events[1].Kind != recognition.KindFinal || events[1].Text != "The first law." {
		t.Errorf("unexpected events %v", events)
	}
	if events[2].Code != recognition.ErrorCode("network") {
		t.Errorf("expected network error, got %v", events[2])
	}

	conn.Close()
	waitFor(t, func() bool {
		attached, _ := pusher.snapshot()
		return attached == 0
	})
}

func TestWebSocketCaptureUnsupported(t *testing.T) {
	srv, _ := newTestRouter(t, "", Deps{Session: newFakeController()})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/v1/session/ws?role=capture"), nil)
	if err == nil {
		t.Fatal("expected dial to fail without a capture engine")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %v", resp)
	}
}
