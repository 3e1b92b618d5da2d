package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/mallhive/concierge/internal/backend"
	"github.com/mallhive/concierge/internal/corpus"
	"github.com/mallhive/concierge/internal/log"
	"github.com/mallhive/concierge/internal/relay"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger      log.Logger
	Relay       *relay.Relay    // Required
	Store       *corpus.Store   // Required: feeds the health probe
	Backend     *backend.Client // Optional: nil reports backend_configured=false
	Version     string          // Build version reported by /health
	CORSOrigins []string        // Allowed origins for CORS
	TrustProxy  bool            // Trust X-Real-IP/X-Forwarded-For headers (behind reverse proxy)
	RateBurst   int             // Rate limiter burst size per IP (0 = default 60)
}

// Server is the relay HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Relay == nil {
		return nil, errors.New("relay is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("corpus store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &completionsHandler{
		relay:  cfg.Relay,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/completions", ch.completions)

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in log attributes.
	// CORS must be before RateLimit so preflight OPTIONS gets proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Use a top-level mux to separate the health probe from the middleware stack
	hh := &healthHandler{
		store:   cfg.Store,
		backend: cfg.Backend,
		version: cfg.Version,
		logger:  logger,
	}
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", hh.health)
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
