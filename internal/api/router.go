// Package api provides the HTTP API for TrafficSense.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/trafficsense/trafficsense/internal/api/handler"
	"github.com/trafficsense/trafficsense/internal/api/middleware"
	"github.com/trafficsense/trafficsense/internal/provider/resilience"
	"github.com/trafficsense/trafficsense/internal/segment"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	TrafficSource TrafficSource
	SegmentRepo   segment.Repository
	SpeedIngester SpeedIngester
	RoutePlanner  RoutePlanner

	DB       handler.Pinger
	Registry *resilience.Registry
	Poller   handler.PipelineStats
	Hub      handler.SubscriberCounter
}

// Handler interfaces re-exported so callers wire concrete services
// without importing the handler package.
type (
	TrafficSource = handler.TrafficSource
	SpeedIngester = handler.SpeedIngester
	RoutePlanner  = handler.RoutePlanner
)

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "trafficsense-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		DB:        cfg.DB,
		Registry:  cfg.Registry,
		Poller:    cfg.Poller,
		Hub:       cfg.Hub,
	})
	trafficHandler := handler.NewTrafficHandler(cfg.TrafficSource)
	segmentHandler := handler.NewSegmentHandler(cfg.SegmentRepo, cfg.SpeedIngester, cfg.Logger)
	routeHandler := handler.NewRouteHandler(cfg.RoutePlanner, cfg.Logger)

	// Create rate limit middleware for different endpoint categories
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		// Live traffic reads - standard rate limiting
		r.Group(func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/traffic", trafficHandler.Snapshot)
			r.Get("/accidents", trafficHandler.Accidents)
		})

		// Segment state and history - standard rate limiting
		r.Route("/segments", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", segmentHandler.List)
			r.Post("/", segmentHandler.Report)
			r.Get("/area", segmentHandler.ListInArea)
			r.Route("/{segmentId}", func(r chi.Router) {
				r.Get("/", segmentHandler.Get)
				r.Get("/history", segmentHandler.History)
				r.Delete("/", segmentHandler.Delete)
			})
		})

		// Route computation hits a paid upstream - strict rate limiting
		r.Group(func(r chi.Router) {
			r.Use(expensiveRateLimit)
			r.Get("/routes", routeHandler.Get)
			r.Post("/routes:compute", routeHandler.Compute)
		})
	})

	return r
}
