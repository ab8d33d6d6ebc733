package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcapi "lecture-interpreter/internal/api/grpc"
	"lecture-interpreter/internal/config"
	"lecture-interpreter/internal/events"
	httpapi "lecture-interpreter/internal/http"
	"lecture-interpreter/internal/models"
	"lecture-interpreter/internal/observability"
	"lecture-interpreter/internal/observability/logging"
	"lecture-interpreter/internal/observability/metrics"
	"lecture-interpreter/internal/service/dictionary"
	"lecture-interpreter/internal/service/llm"
	"lecture-interpreter/internal/service/recognition"
	"lecture-interpreter/internal/service/recognition/google"
	"lecture-interpreter/internal/service/recognition/mock"
	"lecture-interpreter/internal/service/recognition/remote"
	"lecture-interpreter/internal/service/session"
	"lecture-interpreter/internal/service/transcript"
	"lecture-interpreter/internal/service/translate"
	"lecture-interpreter/internal/service/translate/deepl"
	"lecture-interpreter/internal/sink"
)

const shutdownTimeout = 10 * time.Second

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	Session   *session.Session
	Hub       *httpapi.Hub
	Publisher *events.Publisher

	engine  recognition.Engine
	capture *remote.Engine
	chat    *llm.Client
	dict    *dictionary.Client
	flush   func()
}

// New constructs the application from the provided configuration. Nothing
// listens until Run.
func New(ctx context.Context, cfg *config.Configuration) (*Application, error) {
	logging.Init(logging.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})

	logger := logging.Logger().With().
		Str("service", "lecture-interpreter").
		Str("component", "application").
		Logger()

	a := &Application{
		Cfg:    cfg,
		Logger: logger,
		flush:  observability.InitSentry(cfg.Observability.SentryDSN, cfg.Observability.Environment),
	}

	mode, err := transcript.ParseMode(cfg.Session.DefaultMode)
	if err != nil {
		return nil, fmt.Errorf("session default mode: %w", err)
	}

	a.Hub = httpapi.NewHub()
	if err := a.buildEngine(ctx); err != nil {
		return nil, err
	}

	fast := deepl.New(deepl.Config{
		APIURL:            cfg.Translation.APIURL,
		AuthKey:           cfg.Translation.AuthKey,
		RequestsPerSecond: cfg.Translation.RequestsPerSecond,
		Timeout:           cfg.Translation.Timeout,
	})
	a.chat = llm.New(llm.Config{
		APIURL:  cfg.LLM.APIURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	})
	a.dict = dictionary.New(dictionary.Config{
		APIURL:     cfg.Dictionary.APIURL,
		TargetLang: cfg.Translation.TargetLang,
		Timeout:    cfg.Dictionary.Timeout,
	}, fast)

	a.Publisher = events.New(&events.Config{
		Enabled:          cfg.Kafka.Enabled,
		Brokers:          cfg.Kafka.Brokers,
		TopicTranscript:  cfg.Kafka.TopicTranscript,
		TopicTranslation: cfg.Kafka.TopicTranslation,
		TopicNotes:       cfg.Kafka.TopicNotes,
		Principal:        cfg.Kafka.Principal,
	})

	dispatcher := translate.NewService(fast, a.chat, translate.ServiceConfig{
		TargetLang: cfg.Translation.TargetLang,
		Timeout:    cfg.Translation.Timeout,
	})
	a.Session = session.New(session.Options{
		Config: session.Config{
			DefaultTopic:      cfg.Session.DefaultTopic,
			DefaultMode:       mode,
			InactivityTimeout: cfg.Session.InactivityTimeout,
			WarningLead:       cfg.Session.WarningLead,
			InterimDebounce:   cfg.Translation.InterimDebounce,
			RetryDelay:        cfg.Recognition.RetryDelay,
			PhraseHints:       cfg.Recognition.PhraseHints,
		},
		Engine:     a.engine,
		Sink:       sink.Fanout{a.Hub, a.Publisher},
		Dispatcher: dispatcher,
		Summarizer: a.chat,
		Terms:      a.chat,
		Clock:      clockwork.NewRealClock(),
		Metrics:    metrics.DefaultMetrics,
	})

	a.Logger.Info().
		Str("engine", a.engine.Name()).
		Str("defaultMode", mode.String()).
		Bool("kafka", cfg.Kafka.Enabled).
		Msg("Lecture interpreter application created")
	return a, nil
}

func (a *Application) buildEngine(ctx context.Context) error {
	rc := a.Cfg.Recognition
	switch rc.Engine {
	case "remote":
		a.capture = remote.New(func(cmd remote.Command) {
			a.Hub.Command(models.CaptureCommand{
				EventType: models.EventCaptureCommand,
				Action:    cmd.Action,
				Phrases:   cmd.Phrases,
			})
		})
		a.engine = a.capture
	case "google":
		e, err := google.New(ctx, google.Config{
			LanguageCode:   rc.LanguageCode,
			SampleRateHz:   rc.SampleRateHz,
			InterimResults: rc.InterimResults,
			AudioEncoding:  rc.AudioEncoding,
		})
		if err != nil {
			return fmt.Errorf("google speech client: %w", err)
		}
		a.engine = e
	case "mock":
		a.engine = mock.New(nil, 0, nil)
	default:
		return fmt.Errorf("unknown recognition engine %q", rc.Engine)
	}
	return nil
}

// Run serves HTTP, gRPC and metrics until ctx is cancelled, then shuts
// every server down and closes the publisher.
func (a *Application) Run(ctx context.Context) error {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().Time("startupTime", a.StartupTime).Msg("Lecture interpreter starting")

	httpLis, err := net.Listen("tcp", ":"+a.Cfg.Service.HTTPPort)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	grpcLis, err := net.Listen("tcp", ":"+a.Cfg.Service.GRPCPort)
	if err != nil {
		httpLis.Close()
		return fmt.Errorf("grpc listen: %w", err)
	}

	deps := httpapi.Deps{
		Session:    a.Session,
		Dictionary: a.dict,
		Explainer:  a.chat,
		Hub:        a.Hub,
	}
	var pusher grpcapi.Pusher
	if a.capture != nil {
		deps.Capture = a.capture
		pusher = a.capture
	}
	httpServer := &http.Server{
		Handler:           httpapi.NewRouter(httpapi.RouterConfig{JWTSecret: a.Cfg.Auth.JWTSecret}, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(metrics.DefaultMetrics)),
	)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcapi.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	grpcapi.Register(grpcServer, pusher, a.Session)
	reflection.Register(grpcServer)

	metricsServer := observability.NewServer(":" + a.Cfg.Service.MetricsPort)
	metricsServer.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Session.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.Hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.Logger.Info().Str("addr", httpLis.Addr().String()).Msg("HTTP server started")
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.Logger.Info().Str("addr", grpcLis.Addr().String()).Msg("gRPC server started")
		if err := grpcServer.Serve(grpcLis); err != nil {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info().Msg("Shutting down servers")

		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			a.Logger.Warn().Msg("gRPC graceful stop timed out, closing open streams")
			grpcServer.Stop()
		}

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn().Err(err).Msg("Metrics shutdown incomplete")
		}
		return nil
	})

	err = g.Wait()
	a.Shutdown()
	return err
}

// Shutdown releases clients and flushes pending events.
func (a *Application) Shutdown() {
	a.Logger.Info().Msg("Lecture interpreter shutting down")

	if closer, ok := a.engine.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close recognition engine")
		}
	}
	if err := a.Publisher.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close publisher")
	}
	a.flush()
}
