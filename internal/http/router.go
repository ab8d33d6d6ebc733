package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"lecture-interpreter/internal/observability/logging"
	"lecture-interpreter/internal/service/dictionary"
	"lecture-interpreter/internal/service/loop"
	"lecture-interpreter/internal/service/recognition"
	"lecture-interpreter/internal/service/session"
	"lecture-interpreter/internal/service/transcript"
)

// SessionController is the lecture session as seen by the HTTP surface.
type SessionController interface {
	Start(ctx context.Context, topic, mode string) (session.Snapshot, error)
	Pause(ctx context.Context) (session.Snapshot, error)
	Resume(ctx context.Context) (session.Snapshot, error)
	End(ctx context.Context) (session.Snapshot, error)
	SetMode(ctx context.Context, mode string) (session.Snapshot, error)
	Snapshot(ctx context.Context) (session.Snapshot, error)
	SendAudio(ctx context.Context, audio []byte) error
	Done() <-chan struct{}
}

type Dictionary interface {
	Lookup(ctx context.Context, word string) (*dictionary.Entry, error)
}

type Explainer interface {
	Explain(ctx context.Context, topic, word, sentence string) (string, error)
}

// CapturePusher receives recognition events from a browser capture client.
type CapturePusher interface {
	Attach() (detach func())
	Push(ev recognition.Event) bool
}

type RouterConfig struct {
	JWTSecret string
}

// Deps are the collaborators served by the router. Dictionary, Explainer
// and Capture may be nil; their routes then answer 503.
type Deps struct {
	Session    SessionController
	Dictionary Dictionary
	Explainer  Explainer
	Capture    CapturePusher
	Hub        *Hub
}

type router struct {
	deps Deps
	log  zerolog.Logger
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(cfg RouterConfig, deps Deps) http.Handler {
	rt := &router{deps: deps, log: logging.WithComponent("http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(withSentryRecovery)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", rt.handleReadiness)

	r.Route("/v1", func(r chi.Router) {
		r.Use(withAuth(cfg.JWTSecret))

		r.Get("/session", rt.handleSnapshot)
		r.Post("/session/start", rt.handleStart)
		r.Post("/session/pause", rt.handleCommand(deps.Session.Pause))
		r.Post("/session/resume", rt.handleCommand(deps.Session.Resume))
		r.Post("/session/end", rt.handleCommand(deps.Session.End))
		r.Put("/session/mode", rt.handleMode)
		r.Get("/session/ws", rt.handleWS)

		r.Get("/dictionary/{word}", rt.handleDictionary)
		r.Post("/explain", rt.handleExplain)
	})

	return r
}

func (rt *router) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	select {
	case <-rt.deps.Session.Done():
		writeError(w, http.StatusServiceUnavailable, "session loop stopped")
	default:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}

func (rt *router) handleSnapshot(w http.ResponseWriter, req *http.Request) {
	snap, err := rt.deps.Session.Snapshot(req.Context())
	if err != nil {
		rt.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type startRequest struct {
	Topic string `json:"topic"`
	Mode  string `json:"mode"`
}

func (rt *router) handleStart(w http.ResponseWriter, req *http.Request) {
	var body startRequest
	if req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	snap, err := rt.deps.Session.Start(req.Context(), body.Topic, body.Mode)
	if err != nil {
		rt.writeSessionError(w, err)
		return
	}
	rt.log.Info().
		Str("sessionId", snap.SessionID).
		Str("subject", subjectFrom(req.Context())).
		Msg("Session started over HTTP")
	writeJSON(w, http.StatusOK, snap)
}

func (rt *router) handleCommand(cmd func(context.Context) (session.Snapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap, err := cmd(req.Context())
		if err != nil {
			rt.writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

type modeRequest struct {
	Mode string `json:"mode"`
}

func (rt *router) handleMode(w http.ResponseWriter, req *http.Request) {
	var body modeRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	snap, err := rt.deps.Session.SetMode(req.Context(), body.Mode)
	if err != nil {
		rt.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (rt *router) handleDictionary(w http.ResponseWriter, req *http.Request) {
	if rt.deps.Dictionary == nil {
		writeError(w, http.StatusServiceUnavailable, "dictionary not configured")
		return
	}
	word := dictionary.CleanWord(chi.URLParam(req, "word"))
	if word == "" {
		writeError(w, http.StatusBadRequest, "word is required")
		return
	}

	entry, err := rt.deps.Dictionary.Lookup(req.Context(), word)
	if err != nil {
		rt.log.Error().Err(err).Str("word", word).Msg("Dictionary lookup failed")
		writeError(w, http.StatusBadGateway, "dictionary lookup failed")
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "word not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type explainRequest struct {
	Word     string `json:"word"`
	Sentence string `json:"sentence"`
}

type explainResponse struct {
	Word        string `json:"word"`
	Topic       string `json:"topic"`
	Explanation string `json:"explanation"`
}

func (rt *router) handleExplain(w http.ResponseWriter, req *http.Request) {
	if rt.deps.Explainer == nil {
		writeError(w, http.StatusServiceUnavailable, "explainer not configured")
		return
	}
	var body explainRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	body.Word = strings.TrimSpace(body.Word)
	if body.Word == "" {
		writeError(w, http.StatusBadRequest, "word is required")
		return
	}

	snap, err := rt.deps.Session.Snapshot(req.Context())
	if err != nil {
		rt.writeSessionError(w, err)
		return
	}
	topic := snap.Topic
	if topic == "" {
		topic = session.DefaultTopic
	}

	text, err := rt.deps.Explainer.Explain(req.Context(), topic, body.Word, body.Sentence)
	if err != nil {
		rt.log.Error().Err(err).Str("word", body.Word).Msg("Explanation failed")
		writeError(w, http.StatusBadGateway, "explanation failed")
		return
	}
	writeJSON(w, http.StatusOK, explainResponse{Word: body.Word, Topic: topic, Explanation: text})
}

// writeSessionError maps session errors onto HTTP statuses.
func (rt *router) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionActive),
		errors.Is(err, session.ErrNotListening),
		errors.Is(err, session.ErrNotPaused),
		errors.Is(err, session.ErrNoSession):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, transcript.ErrUnknownMode):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, loop.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "session unavailable")
	default:
		rt.log.Error().Err(err).Msg("Session command failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, req)
	})
}
