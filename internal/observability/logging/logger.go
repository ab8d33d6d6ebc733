// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string // RFC3339, Unix, etc.
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global zerolog logger.
func Init(cfg Config) {
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.Kitchen,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// Logger returns the global logger.
func Logger() zerolog.Logger {
	return log.Logger
}

// WithSession returns a logger with lecture session context.
func WithSession(sessionID, topic string) zerolog.Logger {
	return log.With().
		Str("sessionId", sessionID).
		Str("topic", topic).
		Logger()
}

// WithSentence returns a logger with sentence context.
func WithSentence(sessionID string, sentenceID uint64) zerolog.Logger {
	return log.With().
		Str("sessionId", sessionID).
		Str("sentenceId", strconv.FormatUint(sentenceID, 10)).
		Logger()
}

// WithEngine returns a logger tagged with the recognition engine name.
func WithEngine(engine string) zerolog.Logger {
	return log.With().
		Str("component", "recognition").
		Str("engine", engine).
		Logger()
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}
