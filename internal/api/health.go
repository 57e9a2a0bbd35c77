package api

import (
	"net/http"

	"github.com/haven-app/haven/internal/log"
	"github.com/haven-app/haven/internal/resilience"
	"github.com/haven-app/haven/internal/stream"
	"github.com/haven-app/haven/internal/voice"
)

// health is the liveness probe.
func health(logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// readiness reports per-dependency breaker state. The service is
// degraded, not down, while a breaker is open, so readiness stays 200
// with the detail in the body.
func readiness(orch *resilience.Orchestrator, logger log.Logger) http.HandlerFunc {
	deps := []string{stream.Dependency, voice.Dependency}
	return func(w http.ResponseWriter, _ *http.Request) {
		states := make(map[string]string, len(deps))
		for _, dep := range deps {
			states[dep] = orch.Breaker(dep).State().String()
		}
		writeJSON(w, logger, http.StatusOK, map[string]any{
			"status":       "ok",
			"dependencies": states,
		})
	}
}
