package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/filterkit/internal/config"
	"github.com/fluxbase-eu/filterkit/internal/middleware"
	"github.com/fluxbase-eu/filterkit/internal/observability"
	"github.com/fluxbase-eu/filterkit/internal/ratelimit"
)

// Server represents the HTTP server
type Server struct {
	app     *fiber.App
	config  *config.Config
	catalog Catalog
	filters *FilterHandler
	metrics *observability.Metrics
	tracer  *observability.Tracer
	health  func(ctx context.Context) error
	limiter *ratelimit.Limiter
	closers []func()
}

// ServerOption configures optional collaborators
type ServerOption func(*Server)

// WithHealthCheck sets the probe /health reports on, usually the database ping.
func WithHealthCheck(check func(ctx context.Context) error) ServerOption {
	return func(s *Server) { s.health = check }
}

func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

func WithTracer(t *observability.Tracer) ServerOption {
	return func(s *Server) { s.tracer = t }
}

// WithRateLimiter limits /api/v1 requests per client IP
func WithRateLimiter(l *ratelimit.Limiter) ServerOption {
	return func(s *Server) { s.limiter = l }
}

// WithCloser registers cleanup run on Shutdown, after the listener stops.
func WithCloser(fn func()) ServerOption {
	return func(s *Server) { s.closers = append(s.closers, fn) }
}

// NewServer creates a new HTTP server serving catalog
func NewServer(cfg *config.Config, catalog Catalog, opts ...ServerOption) *Server {
	app := fiber.New(fiber.Config{
		ServerHeader:          "filterkit",
		AppName:               "filterkit",
		BodyLimit:             cfg.Server.BodyLimit,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: !cfg.Debug,
		ErrorHandler:          customErrorHandler,
	})

	s := &Server{
		app:     app,
		config:  cfg,
		catalog: catalog,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.filters = NewFilterHandler(catalog, s.metrics, cfg.Filters.Location(), cfg.Filters.PageSize, cfg.Filters.MaxPageSize)

	s.setupMiddlewares()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddlewares() {
	// Request ID middleware - must be first for tracing
	s.app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: uuid.NewString,
	}))

	if s.config.Tracing.Enabled && s.tracer != nil && s.tracer.IsEnabled() {
		log.Debug().Msg("Adding OpenTelemetry tracing middleware")
		s.app.Use(middleware.Tracing(middleware.TracingConfig{
			Enabled:   true,
			SkipPaths: []string{"/health", s.config.Metrics.Path},
		}))
	}

	s.app.Use(middleware.RequestLogger(middleware.RequestLoggerConfig{
		SkipPaths:            []string{"/health", s.config.Metrics.Path},
		SlowRequestThreshold: s.config.Database.SlowQuery,
	}))

	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: s.config.Debug,
	}))

	if s.metrics != nil {
		s.app.Use(s.metrics.MetricsMiddleware())
	}

	// The list view is read-only, so any origin may read it.
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,HEAD,OPTIONS",
	}))

	s.app.Use(middleware.ETag("/health", s.config.Metrics.Path))

	s.app.Use(compress.New(compress.Config{
		Level: compress.LevelDefault,
	}))
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)

	if s.metrics != nil && s.config.Metrics.Enabled {
		s.app.Get(s.config.Metrics.Path, s.metrics.Handler())
	}

	v1 := s.app.Group("/api/v1")
	if s.limiter != nil {
		v1.Use(ratelimit.Middleware(s.limiter, ratelimit.MiddlewareConfig{
			LimitReached: s.handleRateLimited,
			OnStoreError: func(*fiber.Ctx, error) {
				if s.metrics != nil {
					s.metrics.RecordRateLimit("store_error")
				}
			},
		}))
	}
	s.filters.RegisterRoutes(v1)
	v1.Post("/admin/schema/refresh", s.handleRefreshSchema)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbHealthy := true
	if s.health != nil {
		if err := s.health(ctx); err != nil {
			dbHealthy = false
			log.Error().Err(err).Msg("Database health check failed")
		}
	}

	definitions := 0
	if set, err := s.catalog.Definitions(ctx); err == nil {
		definitions = set.Len()
	}

	status := "ok"
	httpStatus := fiber.StatusOK
	if !dbHealthy {
		status = "degraded"
		httpStatus = fiber.StatusServiceUnavailable
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"services": fiber.Map{
			"database": dbHealthy,
		},
		"definitions": definitions,
		"timestamp":   time.Now().UTC(),
	})
}

func (s *Server) handleRateLimited(c *fiber.Ctx) error {
	if s.metrics != nil {
		s.metrics.RecordRateLimit("rejected")
	}
	return SendErrorWithCode(c, fiber.StatusTooManyRequests, "Rate limit exceeded", "RATE_LIMITED")
}

// refresher is implemented by catalogs that follow a live schema
type refresher interface {
	Refresh(ctx context.Context) error
}

// handleRefreshSchema re-inspects the schema on every instance and rebuilds
// the definitions here.
func (s *Server) handleRefreshSchema(c *fiber.Ctx) error {
	r, ok := s.catalog.(refresher)
	if !ok {
		return SendErrorWithCode(c, fiber.StatusConflict, "Definitions are static and cannot be refreshed", "STATIC_CATALOG")
	}

	log.Info().Str("request_id", middleware.RequestID(c)).Msg("Schema refresh requested")
	if err := r.Refresh(middleware.TraceContext(c)); err != nil {
		log.Error().Err(err).Msg("Schema refresh failed")
		return SendErrorWithCode(c, fiber.StatusInternalServerError, "Failed to refresh schema", "REFRESH_FAILED")
	}

	set, err := s.catalog.Definitions(middleware.TraceContext(c))
	if err != nil {
		log.Error().Err(err).Msg("Failed to rebuild definitions after schema refresh")
		return SendErrorWithCode(c, fiber.StatusInternalServerError, "Failed to rebuild definitions", "REFRESH_FAILED")
	}
	return c.JSON(fiber.Map{
		"message":     "Schema refreshed",
		"definitions": set.Names(),
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.app.Listen(s.config.Server.Address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")
	err := s.app.ShutdownWithContext(ctx)

	for _, fn := range s.closers {
		fn()
	}

	// Shutdown OpenTelemetry tracer (flush remaining spans)
	if s.tracer != nil {
		if terr := s.tracer.Shutdown(ctx); terr != nil {
			log.Warn().Err(terr).Msg("Failed to shutdown OpenTelemetry tracer")
		}
	}
	return err
}

// App returns the underlying Fiber app instance for testing
func (s *Server) App() *fiber.App {
	return s.app
}
