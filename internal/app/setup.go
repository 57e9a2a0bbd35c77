package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/haven-app/haven/internal/api"
	"github.com/haven-app/haven/internal/cache"
	"github.com/haven-app/haven/internal/config"
	"github.com/haven-app/haven/internal/log"
	"github.com/haven-app/haven/internal/observability"
	"github.com/haven-app/haven/internal/provider"
	"github.com/haven-app/haven/internal/resilience"
	"github.com/haven-app/haven/internal/session"
	"github.com/haven-app/haven/internal/stream"
	"github.com/haven-app/haven/internal/voice"
)

// Setup builds the application from configuration. On failure,
// everything already initialized is released before returning.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	logger := provideLogger(cfg)
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(ctx); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing first so later components pick up the global provider.
	otelShutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.Observability.OTLPEndpoint,
		ServiceName: cfg.Observability.ServiceName,
		Environment: cfg.Observability.Environment,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	a.otelShutdown = otelShutdown

	a.Cache = cache.New(cache.Config{
		DefaultTTL:    cfg.Cache.DefaultTTL,
		SweepInterval: cfg.Cache.SweepInterval,
	}, logger)

	a.Sessions = session.New(session.Config{
		IdleTimeout:   cfg.Session.IdleTimeout,
		SweepInterval: cfg.Session.SweepInterval,
	}, logger)

	a.Orchestrator = resilience.NewOrchestrator(resilience.OrchestratorConfig{
		Retry: resilience.RetryConfig{
			MaxAttempts:  cfg.Resilience.RetryMaxAttempts,
			InitialDelay: cfg.Resilience.RetryInitialDelay,
			MaxDelay:     cfg.Resilience.RetryMaxDelay,
			Multiplier:   2.0,
			Jitter:       true,
		},
		Breaker: resilience.BreakerConfig{
			FailureThreshold: cfg.Resilience.BreakerFailureThreshold,
			SuccessThreshold: cfg.Resilience.BreakerSuccessThreshold,
			ResetTimeout:     cfg.Resilience.BreakerResetTimeout,
			CallTimeout:      cfg.Resilience.BreakerCallTimeout,
		},
		Gate: resilience.GateConfig{
			MaxConcurrent: cfg.Resilience.GateMaxConcurrent,
			PerMinute:     cfg.Resilience.GatePerMinute,
			QueueLimit:    cfg.Resilience.GateQueueLimit,
		},
	}, logger)

	if err := provideProviders(ctx, a); err != nil {
		return nil, err
	}

	a.Voice = voice.New(a.Cache, a.Orchestrator, a.Speech, logger)
	a.Streamer = stream.New(a.Sessions, a.Orchestrator, a.Generator, logger, 0)

	server, err := api.NewServer(api.ServerConfig{
		Logger:       logger,
		SessionStore: a.Sessions,
		Streamer:     a.Streamer,
		Voice:        a.Voice,
		Orchestrator: a.Orchestrator,
		CORSOrigins:  cfg.Server.CORSOrigins,
		TrustProxy:   cfg.Server.TrustProxy,
		RatePerMin:   cfg.Server.RatePerMinute,
		RateBurst:    cfg.Server.RateBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	a.Server = server

	return a, nil
}

func provideLogger(cfg *config.Config) log.Logger {
	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return log.New(log.Config{
		Level:     level,
		JSON:      cfg.Log.JSON,
		AddSource: cfg.Log.AddSource,
	})
}

// provideProviders wires the text and speech providers, real or
// simulated depending on configuration.
func provideProviders(ctx context.Context, a *App) error {
	if a.Config.AI.Simulate {
		a.Logger.Info("simulation mode, using local providers")
		a.Generator = &provider.SimulatedGenerator{Delay: 30 * time.Millisecond}
		a.Speech = &provider.SimulatedSpeech{}
		return nil
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return errors.New("initializing genkit with googleai plugin")
	}
	a.Generator = provider.NewGenkitGenerator(g, a.Config.AI.Model, a.Logger)

	speech, err := provider.NewGenaiSpeech(ctx, os.Getenv("GEMINI_API_KEY"), a.Config.AI.TTSModel, a.Logger)
	if err != nil {
		return fmt.Errorf("creating speech provider: %w", err)
	}
	a.Speech = speech

	a.Logger.Info("providers initialized",
		"model", a.Config.AI.Model,
		"tts_model", a.Config.AI.TTSModel,
	)
	return nil
}
