// Package relay implements letsim-relay: a CORS-open HTTP proxy that forwards
// chat completion requests to OpenRouter or Poe and streams the upstream
// response back unmodified, and serves static files for everything else.
package relay

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bunnhack/letsim/config"
)

// ChatPath is the relayed chat completions endpoint.
const ChatPath = "/api/chat"

// maxPayload bounds the request body read from clients.
const maxPayload = 10 << 20

// Server is the relay HTTP handler.
type Server struct {
	cfg        config.RelayConfig
	logger     *slog.Logger
	client     *http.Client
	openRouter *upstream
	poe        *upstream
	limiter    *limiter
	static     http.Handler
	handler    http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithHTTPClient sets the client used for upstream requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) {
		s.client = c
	}
}

// New builds a relay for cfg. A nil logger discards logs.
func New(cfg config.RelayConfig, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.openRouter = newUpstream("openrouter", cfg.OpenRouterURL, cfg.OpenRouterKey, "OPENROUTER_API_KEY", cfg.Breaker, logger)
	s.poe = newUpstream("poe", cfg.PoeURL, cfg.PoeKey, "POE_API_KEY", cfg.Breaker, logger)
	if cfg.RateLimit.Enabled {
		s.limiter = newLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 3*time.Minute)
	}
	s.static = staticHandler(cfg.StaticDir)

	mux := http.NewServeMux()
	mux.Handle("POST "+ChatPath, s.rateLimit(http.HandlerFunc(s.handleChat)))
	mux.Handle("/", s.static)
	s.handler = s.logRequests(cors(mux))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func setCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

// cors adds the CORS headers to every response and answers preflight
// requests with 204.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORS(w.Header())
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer's Flush.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration", time.Since(start),
		)
	})
}
