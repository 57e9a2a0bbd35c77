// Package api exposes the conversation service over HTTP: session
// lifecycle, SSE streaming of companion replies, and voice synthesis.
package api

import (
	"errors"
	"net/http"

	"github.com/haven-app/haven/internal/log"
	"github.com/haven-app/haven/internal/resilience"
	"github.com/haven-app/haven/internal/session"
	"github.com/haven-app/haven/internal/stream"
	"github.com/haven-app/haven/internal/voice"
)

// ServerConfig contains everything needed to build the API server.
type ServerConfig struct {
	Logger       log.Logger
	SessionStore *session.Store           // Required
	Streamer     *stream.Streamer         // Required
	Voice        *voice.Service           // Required
	Orchestrator *resilience.Orchestrator // Required, for readiness
	CORSOrigins  []string
	TrustProxy   bool // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RatePerMin   int  // Per-IP request budget (0 = default 120)
	RateBurst    int  // Per-IP burst allowance (0 = default 20)
}

// Server is the JSON-and-SSE HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.SessionStore == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Streamer == nil {
		return nil, errors.New("streamer is required")
	}
	if cfg.Voice == nil {
		return nil, errors.New("voice service is required")
	}
	if cfg.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	sessions := &sessionHandler{store: cfg.SessionStore, logger: logger}
	streams := &streamHandler{
		store:    cfg.SessionStore,
		streamer: cfg.Streamer,
		sessions: sessions,
		logger:   logger,
	}
	voices := &voiceHandler{service: cfg.Voice, logger: logger}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/sessions", sessions.list)
	mux.HandleFunc("POST /api/v1/sessions", sessions.create)
	mux.HandleFunc("GET /api/v1/sessions/{id}", sessions.get)
	mux.HandleFunc("PATCH /api/v1/sessions/{id}/phase", sessions.updatePhase)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sessions.end)

	mux.HandleFunc("GET /api/v1/sessions/{id}/stream", streams.open)
	mux.HandleFunc("POST /api/v1/sessions/{id}/messages", streams.submit)

	mux.HandleFunc("POST /api/v1/voice", voices.synthesize)

	perMin := cfg.RatePerMin
	if perMin <= 0 {
		perMin = 120
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 20
	}
	rl := newRateLimiter(perMin, burst)

	// Middleware stack, outermost first:
	//   Recovery → RequestID → Logging → CORS → RateLimit → User → Routes
	// RequestID before Logging so request_id appears in log attributes.
	// CORS before RateLimit so preflight gets proper CORS headers.
	var handler http.Handler = mux
	handler = userMiddleware(logger)(handler)
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack; they carry no caller
	// identity and must never be rate limited.
	top := http.NewServeMux()
	top.HandleFunc("GET /healthz", health(logger))
	top.Handle("GET /readyz", readiness(cfg.Orchestrator, logger))
	top.Handle("/", handler)

	return &Server{mux: top}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
