// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration is the complete service configuration.
type Configuration struct {
	Service       ServiceConfig
	Recognition   RecognitionConfig
	Translation   TranslationConfig
	LLM           LLMConfig
	Dictionary    DictionaryConfig
	Session       SessionConfig
	Kafka         KafkaConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Principal   string
	HTTPPort    string
	GRPCPort    string
	MetricsPort string
}

// RecognitionConfig selects and tunes the speech engine.
type RecognitionConfig struct {
	Engine         string // remote, google, mock
	LanguageCode   string
	SampleRateHz   int
	AudioEncoding  string
	InterimResults bool
	RetryDelay     time.Duration
	PhraseHints    bool
}

// TranslationConfig configures the fast channel backend and the interim debounce.
type TranslationConfig struct {
	APIURL            string
	AuthKey           string
	TargetLang        string
	RequestsPerSecond float64
	Timeout           time.Duration
	InterimDebounce   time.Duration
}

// LLMConfig configures the chat backend used for AI translation and summaries.
type LLMConfig struct {
	APIURL  string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type DictionaryConfig struct {
	APIURL  string
	Timeout time.Duration
}

// SessionConfig holds lecture session defaults and watchdog timings.
type SessionConfig struct {
	DefaultTopic      string
	DefaultMode       string
	InactivityTimeout time.Duration
	WarningLead       time.Duration
}

// KafkaConfig configures the downstream event publisher.
type KafkaConfig struct {
	Enabled          bool
	Brokers          []string
	TopicTranscript  string
	TopicTranslation string
	TopicNotes       string
	Principal        string
}

type AuthConfig struct {
	JWTSecret string
}

type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	SentryDSN   string
	Environment string
}

// Load reads the configuration from environment variables, falling back to
// defaults for unset or unparsable values.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-lecture-interpreter")

	return &Configuration{
		Service: ServiceConfig{
			Principal:   principal,
			HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
		Recognition: RecognitionConfig{
			Engine:         envOrDefault("RECOGNITION_ENGINE", "remote"),
			LanguageCode:   envOrDefault("RECOGNITION_LANGUAGE_CODE", "en-US"),
			SampleRateHz:   envOrDefaultInt("RECOGNITION_SAMPLE_RATE_HZ", 16000),
			AudioEncoding:  envOrDefault("RECOGNITION_AUDIO_ENCODING", "LINEAR16"),
			InterimResults: envOrDefaultBool("RECOGNITION_INTERIM_RESULTS", true),
			RetryDelay:     envOrDefaultDuration("RECOGNITION_RETRY_DELAY", 250*time.Millisecond),
			PhraseHints:    envOrDefaultBool("RECOGNITION_PHRASE_HINTS", true),
		},
		Translation: TranslationConfig{
			APIURL:            envOrDefault("DEEPL_API_URL", "https://api-free.deepl.com/v2/translate"),
			AuthKey:           os.Getenv("DEEPL_AUTH_KEY"),
			TargetLang:        envOrDefault("TRANSLATION_TARGET_LANG", "ZH"),
			RequestsPerSecond: envOrDefaultFloat("TRANSLATION_REQUESTS_PER_SECOND", 5),
			Timeout:           envOrDefaultDuration("TRANSLATION_TIMEOUT", 10*time.Second),
			InterimDebounce:   envOrDefaultDuration("TRANSLATION_INTERIM_DEBOUNCE", 800*time.Millisecond),
		},
		LLM: LLMConfig{
			APIURL:  envOrDefault("LLM_API_URL", "https://api.deepseek.com/chat/completions"),
			APIKey:  os.Getenv("LLM_API_KEY"),
			Model:   envOrDefault("LLM_MODEL", "deepseek-chat"),
			Timeout: envOrDefaultDuration("LLM_TIMEOUT", 30*time.Second),
		},
		Dictionary: DictionaryConfig{
			APIURL:  envOrDefault("DICTIONARY_API_URL", "https://api.dictionaryapi.dev/api/v2/entries/en"),
			Timeout: envOrDefaultDuration("DICTIONARY_TIMEOUT", 10*time.Second),
		},
		Session: SessionConfig{
			DefaultTopic:      envOrDefault("SESSION_DEFAULT_TOPIC", "General Course"),
			DefaultMode:       envOrDefault("SESSION_DEFAULT_MODE", "economy"),
			InactivityTimeout: envOrDefaultDuration("SESSION_INACTIVITY_TIMEOUT", 60*time.Second),
			WarningLead:       envOrDefaultDuration("SESSION_WARNING_LEAD", 10*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:          envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:          splitList(os.Getenv("KAFKA_BROKERS")),
			TopicTranscript:  envOrDefault("KAFKA_TOPIC_TRANSCRIPT", "lecture.transcript"),
			TopicTranslation: envOrDefault("KAFKA_TOPIC_TRANSLATION", "lecture.translation"),
			TopicNotes:       envOrDefault("KAFKA_TOPIC_NOTES", "lecture.notes"),
			Principal:        envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			SentryDSN:   os.Getenv("SENTRY_DSN"),
			Environment: envOrDefault("ENVIRONMENT", "development"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
