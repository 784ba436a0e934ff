// Package main provides the entrypoint for the TrafficSense API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/trafficsense/trafficsense/internal/api"
	"github.com/trafficsense/trafficsense/internal/api/middleware"
	"github.com/trafficsense/trafficsense/internal/database"
	"github.com/trafficsense/trafficsense/internal/hub"
	"github.com/trafficsense/trafficsense/internal/poller"
	"github.com/trafficsense/trafficsense/internal/provider/resilience"
	"github.com/trafficsense/trafficsense/internal/route"
	"github.com/trafficsense/trafficsense/internal/route/googlemaps"
	"github.com/trafficsense/trafficsense/internal/segment"
	"github.com/trafficsense/trafficsense/internal/telemetry"
	"github.com/trafficsense/trafficsense/internal/traffic"
	"github.com/trafficsense/trafficsense/internal/traffic/mappls"
	"github.com/trafficsense/trafficsense/internal/traffic/tomtom"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "trafficsense-api"

	// Local development convenience; a missing .env is fine.
	_ = godotenv.Load()

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting TrafficSense API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	pipelineMetrics, err := telemetry.NewPipelineMetrics(
		otel.Meter("github.com/trafficsense/trafficsense/internal/telemetry"))
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize pipeline metrics")
		os.Exit(1)
	}

	// Connect to database; a failed connection degrades to in-memory
	// storage so the pipeline keeps running on live data.
	var segmentRepo segment.Repository

	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Warn().Err(err).Msg("database unavailable, using in-memory segment store")
		segmentRepo = segment.NewInMemoryRepository()
	} else {
		defer pool.Close()
		if err := database.EnsureSchema(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("failed to ensure database schema")
		}
		segmentRepo = segment.NewPostgresRepository(pool)
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")
	}

	// Provider registry tracks circuit breaker health for /v1/ops/status.
	registry := resilience.NewRegistry()

	var trafficProviders []traffic.TrafficProvider
	var incidentProviders []traffic.IncidentProvider

	if key := os.Getenv("TOMTOM_API_KEY"); key != "" {
		client := tomtom.NewClient(tomtom.ClientConfig{
			APIKey:   key,
			Registry: registry,
			Logger:   log,
		})
		trafficProviders = append(trafficProviders, client)
		incidentProviders = append(incidentProviders, client)
		log.Info().Msg("tomtom provider initialized")
	}

	if key := os.Getenv("MAPPLS_API_KEY"); key != "" {
		client := mappls.NewClient(mappls.ClientConfig{
			APIKey:       key,
			ClientID:     os.Getenv("MAPPLS_CLIENT_ID"),
			ClientSecret: os.Getenv("MAPPLS_CLIENT_SECRET"),
			Registry:     registry,
			Logger:       log,
		})
		trafficProviders = append(trafficProviders, client)
		incidentProviders = append(incidentProviders, client)
		log.Info().Msg("mappls provider initialized")
	}

	if len(trafficProviders) == 0 {
		log.Warn().Msg("no traffic providers configured, traffic data will be empty")
	}

	trafficService := traffic.NewService(traffic.ServiceConfig{
		TrafficProviders:  trafficProviders,
		IncidentProviders: incidentProviders,
		Logger:            log,
	})

	aggregator := segment.NewAggregator(segment.AggregatorConfig{
		Repository: segmentRepo,
		Logger:     log,
	})

	var routeService *route.Service
	if key := os.Getenv("GOOGLE_MAPS_API_KEY"); key != "" {
		directions := googlemaps.NewClient(googlemaps.ClientConfig{
			APIKey:   key,
			Region:   "in",
			Registry: registry,
			Logger:   log,
		})
		routeService = route.NewService(route.ServiceConfig{
			Provider:  directions,
			Incidents: trafficService,
			Logger:    log,
		})
		log.Info().Msg("route service initialized")
	} else {
		log.Warn().Msg("GOOGLE_MAPS_API_KEY not set, route computation disabled")
	}

	// Background pipeline: poll providers, fold into segment state,
	// broadcast to subscribers.
	pipelineCtx, stopPipeline := context.WithCancel(ctx)
	defer stopPipeline()

	trafficPoller := poller.New(poller.Config{
		Source:     trafficService,
		Aggregator: aggregator,
		Observer:   pipelineMetrics,
		Logger:     log,
	})
	go trafficPoller.Run(pipelineCtx)

	var transports []hub.Transport
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		nt, err := hub.NewNATSTransport(hub.NATSTransportConfig{
			URL:    natsURL,
			Logger: log,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to connect NATS transport")
		} else {
			defer nt.Close()
			transports = append(transports, nt)
			log.Info().Str("url", natsURL).Msg("NATS transport initialized")
		}
	}
	if projectID := os.Getenv("PUBSUB_PROJECT_ID"); projectID != "" {
		pt, err := hub.NewPubSubTransport(ctx, hub.PubSubTransportConfig{
			ProjectID: projectID,
			Topic:     os.Getenv("PUBSUB_TOPIC"),
			Logger:    log,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to create Pub/Sub transport")
		} else {
			defer pt.Close()
			transports = append(transports, pt)
			log.Info().Str("project", projectID).Msg("Pub/Sub transport initialized")
		}
	}

	hubCfg := hub.Config{
		Traffic:    trafficService,
		Segments:   segmentRepo,
		Transports: transports,
		Metrics:    pipelineMetrics,
		Logger:     log,
	}
	if routeService != nil {
		hubCfg.Routes = routeService
	}
	broadcastHub := hub.New(hubCfg)
	go broadcastHub.Run(pipelineCtx)

	// Create router with configuration
	routerCfg := api.RouterConfig{
		Version:       Version,
		BuildTime:     BuildTime,
		Logger:        log,
		ServiceName:   serviceName,
		Metrics:       metrics,
		TrafficSource: trafficService,
		SegmentRepo:   segmentRepo,
		SpeedIngester: aggregator,
		Registry:      registry,
		Poller:        trafficPoller,
		Hub:           broadcastHub,
	}
	if pool != nil {
		routerCfg.DB = pool
	}
	if routeService != nil {
		routerCfg.RoutePlanner = routeService
	}
	router := api.NewRouter(routerCfg)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Stop the pipeline before draining HTTP connections.
	stopPipeline()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
