package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"lecture-interpreter/internal/service/recognition"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.LanguageCode)
	}
	if cfg.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.SampleRateHz)
	}
	if cfg.InterimResults != true {
		t.Errorf("expected default interim results true, got %v", cfg.InterimResults)
	}
	if cfg.AudioEncoding != "LINEAR16" {
		t.Errorf("expected default encoding 'LINEAR16', got %s", cfg.AudioEncoding)
	}
}

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"MULAW", speechpb.RecognitionConfig_MULAW},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"AMR", speechpb.RecognitionConfig_AMR},
		{"AMR_WB", speechpb.RecognitionConfig_AMR_WB},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS},
		{"SPEEX_WITH_HEADER_BYTE", speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE},
		{"WEBM_OPUS", speechpb.RecognitionConfig_WEBM_OPUS},
		{"UNKNOWN", speechpb.RecognitionConfig_LINEAR16}, // fallback
		{"", speechpb.RecognitionConfig_LINEAR16},        // fallback
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code recognition.ErrorCode
		ok   bool
	}{
		{"eof", io.EOF, "", false},
		{"wrapped cancel", fmt.Errorf("recv: %w", context.Canceled), "", false},
		{"stream limit", status.Error(codes.OutOfRange, "exceeded maximum allowed stream duration"), "", false},
		{"cancelled", status.Error(codes.Canceled, "cancelled"), "", false},
		{"unavailable", status.Error(codes.Unavailable, "connection reset"), recognition.CodeNetwork, true},
		{"denied", status.Error(codes.PermissionDenied, "no access"), recognition.CodeNotAllowed, true},
		{"unauthenticated", status.Error(codes.Unauthenticated, "bad creds"), recognition.CodeNotAllowed, true},
		{"bad language", status.Error(codes.InvalidArgument, "bad language"), recognition.CodeLanguageNotSupported, true},
		{"other", errors.New("boom"), recognition.CodeAborted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := classify(tt.err)
			if ok != tt.ok || code != tt.code {
				t.Errorf("classify(%v) = (%q, %v), want (%q, %v)", tt.err, code, ok, tt.code, tt.ok)
			}
		})
	}
}

func TestSanitizePhrases(t *testing.T) {
	long := strings.Repeat("x", maxPhraseLength+1)
	got := sanitizePhrases([]string{" entropy ", "Entropy", "", long, "Carnot cycle"})

	if len(got) != 2 {
		t.Fatalf("expected 2 phrases, got %v", got)
	}
	if got[0] != "entropy" || got[1] != "Carnot cycle" {
		t.Errorf("unexpected phrases %v", got)
	}

	many := make([]string, maxPhrases+10)
	for i := range many {
		many[i] = fmt.Sprintf("term %d", i)
	}
	if n := len(sanitizePhrases(many)); n != maxPhrases {
		t.Errorf("expected phrases capped at %d, got %d", maxPhrases, n)
	}
}

func TestConfigRequest_IncludesPhrases(t *testing.T) {
	e := &Engine{cfg: DefaultConfig()}
	e.SetPhrases([]string{"entropy", "enthalpy"})

	req := e.configRequest()
	sc := req.GetStreamingConfig()
	if sc == nil {
		t.Fatal("expected streaming config request")
	}
	if !sc.InterimResults {
		t.Error("expected interim results enabled")
	}
	rc := sc.Config
	if rc.SampleRateHertz != 16000 || rc.LanguageCode != "en-US" {
		t.Errorf("unexpected recognition config %v", rc)
	}
	if len(rc.SpeechContexts) != 1 || len(rc.SpeechContexts[0].Phrases) != 2 {
		t.Errorf("expected one speech context with 2 phrases, got %v", rc.SpeechContexts)
	}
}

func TestConfigRequest_NoPhrases(t *testing.T) {
	e := &Engine{cfg: DefaultConfig()}
	if rc := e.configRequest().GetStreamingConfig().Config; len(rc.SpeechContexts) != 0 {
		t.Errorf("expected no speech contexts, got %v", rc.SpeechContexts)
	}
}

func TestSendAudio_BeforeStart(t *testing.T) {
	e := &Engine{cfg: DefaultConfig()}
	if err := e.SendAudio(context.Background(), []byte{0}); !errors.Is(err, errNotStarted) {
		t.Errorf("expected errNotStarted, got %v", err)
	}
	if err := e.Stop(); err != nil {
		t.Errorf("expected stop before start to be a no-op, got %v", err)
	}
}
