// Package translate schedules and reconciles the fast and AI-enhanced
// translation channels for lecture sentences.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"lecture-interpreter/internal/observability/logging"
	"lecture-interpreter/internal/observability/metrics"
)

// Channel identifies which translation pass a request belongs to.
type Channel int

const (
	// ChannelFast is the low-latency pass for a finalized sentence.
	ChannelFast Channel = iota
	// ChannelAI is the slower, higher-quality pass for a finalized sentence.
	ChannelAI
	// ChannelInterim is the debounced fast pass over partial text.
	ChannelInterim
)

func (c Channel) String() string {
	switch c {
	case ChannelFast:
		return "fast"
	case ChannelAI:
		return "ai"
	case ChannelInterim:
		return "interim"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(c))
	}
}

// Displayed in place of a fast translation that could not be produced.
const (
	PlaceholderQuota   = "(translation quota exhausted)"
	PlaceholderError   = "(translation unavailable)"
	PlaceholderPending = "..."
)

// ErrRateLimited is returned by fast translators when the backend refuses
// the request for quota reasons.
var ErrRateLimited = errors.New("translation rate limited")

// Request asks for one translation.
type Request struct {
	SentenceID uint64
	Channel    Channel
	Text       string
	Topic      string
}

// Result is the outcome of a Request after failure handling. Degraded
// results carry a placeholder; Failed results carry no text at all.
type Result struct {
	SentenceID uint64
	Channel    Channel
	Text       string
	Degraded   bool
	Failed     bool
}

// FastTranslator is the low-latency translation backend.
type FastTranslator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// AITranslator is the chat-model translation backend.
type AITranslator interface {
	TranslateSentence(ctx context.Context, topic, text string) (string, error)
}

// Dispatcher performs a request and always returns a Result; backend errors
// are converted into degraded or failed results.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) Result
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	TargetLang string
	Timeout    time.Duration
}

// Service applies the per-channel failure policy around the backends.
type Service struct {
	fast    FastTranslator
	ai      AITranslator
	target  string
	timeout time.Duration
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewService creates a Service. ai may be nil, in which case every AI
// request fails and the fast text stands.
func NewService(fast FastTranslator, ai AITranslator, cfg ServiceConfig) *Service {
	if cfg.TargetLang == "" {
		cfg.TargetLang = "ZH"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Service{
		fast:    fast,
		ai:      ai,
		target:  cfg.TargetLang,
		timeout: cfg.Timeout,
		metrics: metrics.DefaultMetrics,
		log:     logging.WithComponent("translate"),
	}
}

// Dispatch runs req against the backend for its channel.
func (s *Service) Dispatch(ctx context.Context, req Request) Result {
	res := Result{SentenceID: req.SentenceID, Channel: req.Channel}
	if strings.TrimSpace(req.Text) == "" {
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	var (
		text string
		err  error
	)
	switch req.Channel {
	case ChannelAI:
		if s.ai == nil {
			err = errors.New("no AI translator configured")
		} else {
			text, err = s.ai.TranslateSentence(ctx, req.Topic, req.Text)
		}
	default:
		text, err = s.fast.Translate(ctx, req.Text, s.target)
	}
	latency := time.Since(start).Seconds()

	if err != nil {
		s.log.Warn().
			Err(err).
			Uint64("sentenceId", req.SentenceID).
			Stringer("channel", req.Channel).
			Msg("Translation failed")
	}

	switch {
	case req.Channel == ChannelAI && (err != nil || strings.TrimSpace(text) == ""):
		res.Failed = true
		s.metrics.RecordTranslationResult(req.Channel.String(), "failed", latency)
	case errors.Is(err, ErrRateLimited):
		res.Text, res.Degraded = PlaceholderQuota, true
		s.metrics.RecordTranslationResult(req.Channel.String(), "rate_limited", latency)
	case err != nil:
		res.Text, res.Degraded = PlaceholderError, true
		s.metrics.RecordTranslationResult(req.Channel.String(), "error", latency)
	case strings.TrimSpace(text) == "":
		res.Text, res.Degraded = PlaceholderPending, true
		s.metrics.RecordTranslationResult(req.Channel.String(), "empty", latency)
	default:
		res.Text = text
		s.metrics.RecordTranslationResult(req.Channel.String(), "ok", latency)
	}
	return res
}
