// Package google provides a Google Cloud Speech-to-Text recognition engine.
package google

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"lecture-interpreter/internal/observability/logging"
	"lecture-interpreter/internal/service/recognition"
)

// Google accepts at most 500 phrases of 100 characters per request.
const (
	maxPhrases      = 500
	maxPhraseLength = 100
)

var errNotStarted = errors.New("google engine: stream not started")

// Config holds Google STT configuration.
type Config struct {
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
	AudioEncoding  string
}

// DefaultConfig returns the default configuration for lecture audio.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-US",
		SampleRateHz:   16000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
	}
}

// Engine implements recognition.Engine on top of StreamingRecognize. Each
// Start opens a new stream; Google closes streams after a few minutes,
// which surfaces as OnEnded and is re-armed by the adapter.
type Engine struct {
	client *speech.Client
	cfg    Config
	log    zerolog.Logger

	mu      sync.Mutex
	stream  speechpb.Speech_StreamingRecognizeClient
	cancel  context.CancelFunc
	phrases []string
}

// New creates a new Google engine.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Engine{
		client: c,
		cfg:    cfg,
		log:    logging.WithEngine("google"),
	}, nil
}

func (e *Engine) Name() string { return "google" }

// SetPhrases biases the next stream toward the given vocabulary.
func (e *Engine) SetPhrases(phrases []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phrases = sanitizePhrases(phrases)
}

// Start opens a streaming recognition session and sends the initial config.
func (e *Engine) Start(ctx context.Context, cb recognition.Callback) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := e.client.StreamingRecognize(streamCtx)
	if err != nil {
		cancel()
		return err
	}

	if err := stream.Send(e.configRequest()); err != nil {
		cancel()
		return err
	}

	e.stream = stream
	e.cancel = cancel
	go e.listen(stream, cb)

	cb.OnStarted()
	return nil
}

// SendAudio sends audio bytes to Google Speech-to-Text.
func (e *Engine) SendAudio(ctx context.Context, audio []byte) error {
	e.mu.Lock()
	stream := e.stream
	e.mu.Unlock()

	if stream == nil {
		return errNotStarted
	}
	return stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Stop half-closes the stream; the listener reports OnEnded once Google
// has flushed its last results.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stream == nil {
		return nil
	}
	err := e.stream.CloseSend()
	e.stream = nil
	return err
}

// Close releases the underlying client.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()
	return e.client.Close()
}

func (e *Engine) configRequest() *speechpb.StreamingRecognizeRequest {
	rc := &speechpb.RecognitionConfig{
		Encoding:                   parseAudioEncoding(e.cfg.AudioEncoding),
		SampleRateHertz:            int32(e.cfg.SampleRateHz),
		LanguageCode:               e.cfg.LanguageCode,
		EnableAutomaticPunctuation: true,
	}
	if len(e.phrases) > 0 {
		rc.SpeechContexts = []*speechpb.SpeechContext{{Phrases: e.phrases}}
	}

	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:         rc,
				InterimResults: e.cfg.InterimResults,
			},
		},
	}
}

func (e *Engine) listen(stream speechpb.Speech_StreamingRecognizeClient, cb recognition.Callback) {
	defer cb.OnEnded()

	for {
		resp, err := stream.Recv()
		if err != nil {
			if code, ok := classify(err); ok {
				e.log.Warn().Err(err).Str("code", string(code)).Msg("Stream failed")
				cb.OnError(code)
			}
			return
		}

		if resp.Error != nil && codes.Code(resp.Error.Code) != codes.OK {
			err := status.ErrorProto(resp.Error)
			if code, ok := classify(err); ok {
				cb.OnError(code)
			}
			return
		}

		for _, r := range resp.Results {
			if len(r.Alternatives) == 0 {
				continue
			}
			alt := r.Alternatives[0]
			if r.IsFinal {
				cb.OnFinal(alt.Transcript)
			} else {
				cb.OnPartial(alt.Transcript)
			}
		}
	}
}

// classify maps a stream error to an engine error code. ok is false for
// normal stream ends (EOF, cancellation, Google's stream duration limit),
// which are reported as OnEnded only.
func classify(err error) (recognition.ErrorCode, bool) {
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return "", false
	}

	switch status.Code(err) {
	case codes.OK, codes.Canceled, codes.OutOfRange, codes.DeadlineExceeded:
		return "", false
	case codes.Unavailable, codes.ResourceExhausted:
		return recognition.CodeNetwork, true
	case codes.PermissionDenied, codes.Unauthenticated:
		return recognition.CodeNotAllowed, true
	case codes.InvalidArgument:
		return recognition.CodeLanguageNotSupported, true
	default:
		return recognition.CodeAborted, true
	}
}

func sanitizePhrases(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	seen := make(map[string]struct{}, len(phrases))
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" || len(p) > maxPhraseLength {
			continue
		}
		key := strings.ToLower(p)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
		if len(out) == maxPhrases {
			break
		}
	}
	return out
}

// parseAudioEncoding converts string encoding to Google's enum.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
