// Package app assembles the application: configuration, logging,
// tracing, the resilience stack, providers, and the HTTP server.
package app

import (
	"context"
	"errors"

	"github.com/haven-app/haven/internal/api"
	"github.com/haven-app/haven/internal/cache"
	"github.com/haven-app/haven/internal/config"
	"github.com/haven-app/haven/internal/log"
	"github.com/haven-app/haven/internal/provider"
	"github.com/haven-app/haven/internal/resilience"
	"github.com/haven-app/haven/internal/session"
	"github.com/haven-app/haven/internal/stream"
	"github.com/haven-app/haven/internal/voice"
)

// App is the application container. Build it with Setup and release it
// with Close.
type App struct {
	Config *config.Config
	Logger log.Logger

	Cache        *cache.Cache
	Sessions     *session.Store
	Orchestrator *resilience.Orchestrator
	Generator    provider.TextGenerator
	Speech       provider.SpeechSynthesizer
	Voice        *voice.Service
	Streamer     *stream.Streamer
	Server       *api.Server

	otelShutdown func(context.Context) error
}

// Close releases all resources in reverse creation order.
func (a *App) Close(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	var errs []error
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
