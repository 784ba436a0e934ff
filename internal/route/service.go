package route

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/trafficsense/trafficsense/internal/traffic"
)

// ServiceConfig holds configuration for the route service.
type ServiceConfig struct {
	// Provider is the directions provider.
	Provider Provider

	// Incidents supplies the incidents correlated against routes.
	// Optional; without it routes carry zero incident counts.
	Incidents IncidentSource

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long to cache computed routes (default: 2 minutes).
	// Short because traffic durations go stale quickly.
	CacheTTL time.Duration

	// StaleIfErrorTTL allows serving stale routes on provider errors
	// (default: 10 minutes).
	StaleIfErrorTTL time.Duration
}

// Service computes traffic-aware routes with caching.
type Service struct {
	provider        Provider
	incidents       IncidentSource
	logger          zerolog.Logger
	cacheTTL        time.Duration
	staleIfErrorTTL time.Duration

	mu    sync.RWMutex
	cache map[string]*cachedResult
}

type cachedResult struct {
	result    *Result
	fetchedAt time.Time
	expiresAt time.Time
}

// NewService creates a new route service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 2 * time.Minute
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 10 * time.Minute
	}

	return &Service{
		provider:        cfg.Provider,
		incidents:       cfg.Incidents,
		logger:          cfg.Logger,
		cacheTTL:        cacheTTL,
		staleIfErrorTTL: staleIfErrorTTL,
		cache:           make(map[string]*cachedResult),
	}
}

// Plan computes route alternatives between the requested places,
// annotated with incidents lying along each alternative. Uses cached
// results if available and not expired.
func (s *Service) Plan(ctx context.Context, req Request) (*Result, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	cacheKey := cacheKey(req)

	s.mu.RLock()
	if cached, ok := s.cache[cacheKey]; ok && time.Now().Before(cached.expiresAt) {
		s.mu.RUnlock()
		s.logger.Debug().
			Str("cache_key", cacheKey).
			Msg("cache hit for route")
		return cached.result, nil
	}
	s.mu.RUnlock()

	return s.computeRoute(ctx, req, cacheKey)
}

// computeRoute fetches directions, correlates incidents, and updates
// the cache.
func (s *Service) computeRoute(ctx context.Context, req Request, cacheKey string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check cache (prevents thundering herd)
	if cached, ok := s.cache[cacheKey]; ok && time.Now().Before(cached.expiresAt) {
		return cached.result, nil
	}

	s.logger.Debug().
		Str("origin", req.Origin).
		Str("destination", req.Destination).
		Str("provider", s.provider.Name()).
		Msg("computing route")

	options, err := s.provider.Directions(ctx, req.Origin, req.Destination)
	if err != nil {
		s.logger.Error().Err(err).
			Str("origin", req.Origin).
			Str("destination", req.Destination).
			Msg("failed to compute route")

		// Stale-if-error: a recently expired route beats no route.
		if cached, ok := s.cache[cacheKey]; ok {
			if time.Now().Before(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
				s.logger.Warn().
					Time("fetched_at", cached.fetchedAt).
					Str("cache_key", cacheKey).
					Msg("serving stale route due to provider error")
				return cached.result, nil
			}
		}

		return nil, err
	}

	incidents := s.resolveIncidents(ctx)

	total := 0
	for i := range options {
		options[i].AccidentsInWay = AccidentsOnRoute(options[i].Points(), incidents)
		total += options[i].AccidentsInWay
	}

	result := &Result{
		Routes:              options,
		Origin:              req.Origin,
		Destination:         req.Destination,
		AccidentCount:       len(incidents),
		TotalAccidentsInWay: total,
		ComputedAt:          time.Now(),
	}

	now := time.Now()
	s.cache[cacheKey] = &cachedResult{
		result:    result,
		fetchedAt: now,
		expiresAt: now.Add(s.cacheTTL),
	}

	s.logger.Debug().
		Str("cache_key", cacheKey).
		Int("route_count", len(options)).
		Int("accidents_in_way", total).
		Msg("computed route")

	return result, nil
}

// resolveIncidents fetches live incidents. The source never errors;
// provider outages surface as an empty set, so route computation
// always succeeds.
func (s *Service) resolveIncidents(ctx context.Context) []traffic.Incident {
	if s.incidents == nil {
		return nil
	}
	return s.incidents.ResolveIncidents(ctx)
}

// cacheKey builds the cache key from the normalized places,
// case-folded so "MP Nagar" and "mp nagar" share an entry.
func cacheKey(req Request) string {
	return strings.ToLower(req.Origin) + "|" + strings.ToLower(req.Destination)
}
