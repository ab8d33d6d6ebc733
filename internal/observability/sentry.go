package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
)

const sentryFlushTimeout = 2 * time.Second

// InitSentry configures error reporting. With an empty DSN reporting stays
// disabled and the returned flush is a no-op.
func InitSentry(dsn, environment string) (flush func()) {
	if dsn == "" {
		return func() {}
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		EnableTracing:    true,
		TracesSampleRate: 0.2,
		Environment:      environment,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Sentry init failed")
		return func() {}
	}
	log.Info().Str("environment", environment).Msg("Sentry initialized")
	return func() { sentry.Flush(sentryFlushTimeout) }
}

// CaptureError reports err with the given tags. It is safe to call when
// Sentry is not initialized.
func CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}
