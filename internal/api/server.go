// Package api provides the node's HTTP API: catalog queries and commands,
// account endpoints, the notification stream and Prometheus metrics.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/openbay/openbay-node/internal/catalog"
	"github.com/openbay/openbay-node/internal/metrics"
	"github.com/openbay/openbay-node/internal/ratelimit"
	"github.com/openbay/openbay-node/internal/service"
	"github.com/openbay/openbay-node/internal/sse"
)

// Options configures the HTTP surface.
type Options struct {
	// CORSOrigins lists allowed browser origins. Empty allows none.
	CORSOrigins []string
	// LoginRateLimit is the number of login attempts per minute per client.
	LoginRateLimit int
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	catalog      *catalog.Service
	auth         *service.AuthService
	sseManager   *sse.Manager
	metrics      *metrics.Metrics
	loginLimiter *ratelimit.KeyedRateLimiter
	router       *chi.Mux
	api          huma.API
	logger       *slog.Logger
	startedAt    time.Time
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(
	catalogService *catalog.Service,
	authService *service.AuthService,
	sseManager *sse.Manager,
	m *metrics.Metrics,
	logger *slog.Logger,
	opts Options,
) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.LoginRateLimit <= 0 {
		opts.LoginRateLimit = 10
	}

	s := &Server{
		catalog:      catalogService,
		auth:         authService,
		sseManager:   sseManager,
		metrics:      m,
		loginLimiter: ratelimit.PerMinute(opts.LoginRateLimit),
		router:       chi.NewRouter(),
		logger:       logger.With("component", "api"),
		startedAt:    time.Now(),
	}

	s.setupMiddleware(opts)

	humaConfig := huma.DefaultConfig("OpenBay Node API", "1.0.0")
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API exposes the huma API, for tests and OpenAPI export.
func (s *Server) API() huma.API {
	return s.api
}

// Close releases background resources held by the server.
func (s *Server) Close() {
	s.loginLimiter.Stop()
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware(opts Options) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.metrics.Middleware)

	if len(opts.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// Raw handlers: the event stream must not be buffered by huma, and the
	// metrics endpoint speaks the Prometheus text format.
	s.router.Handle("/metrics", s.metrics.Handler())
	s.router.Get("/api/v1/events", sse.NewHandler(s.sseManager, s.logger).ServeHTTP)

	s.registerHealthRoutes()
	s.registerResourceRoutes()
	s.registerAuthRoutes()
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
