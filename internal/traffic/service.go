package traffic

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the traffic service.
type ServiceConfig struct {
	// TrafficProviders are tried in slice order until one yields data.
	TrafficProviders []TrafficProvider

	// IncidentProviders are tried in slice order until one yields data.
	IncidentProviders []IncidentProvider

	// Logger for service operations.
	Logger zerolog.Logger

	// CallTimeout bounds each individual provider call (default: 10s).
	CallTimeout time.Duration
}

// Service resolves traffic and incident data across a prioritized chain
// of providers. Resolution never fails: a provider error or empty result
// moves on to the next provider, and an exhausted chain yields an empty
// slice. The last non-empty snapshot is retained so read paths can keep
// serving known-good data through a total provider outage.
type Service struct {
	trafficProviders  []TrafficProvider
	incidentProviders []IncidentProvider
	logger            zerolog.Logger
	callTimeout       time.Duration

	mu       sync.RWMutex
	lastGood Snapshot
}

// NewService creates a new traffic service.
func NewService(cfg ServiceConfig) *Service {
	callTimeout := cfg.CallTimeout
	if callTimeout == 0 {
		callTimeout = 10 * time.Second
	}

	return &Service{
		trafficProviders:  cfg.TrafficProviders,
		incidentProviders: cfg.IncidentProviders,
		logger:            cfg.Logger,
		callTimeout:       callTimeout,
	}
}

// ResolveTraffic returns traffic samples from the first provider in the
// chain that yields a non-empty result. An exhausted chain returns an
// empty slice, never an error.
func (s *Service) ResolveTraffic(ctx context.Context) []Sample {
	for _, p := range s.trafficProviders {
		samples := s.fetchTraffic(ctx, p)
		if len(samples) > 0 {
			return samples
		}
		s.logger.Warn().
			Str("provider", p.Name()).
			Msg("no traffic data from provider, trying next in chain")
	}
	return []Sample{}
}

// ResolveIncidents returns incidents from the first provider in the
// chain that yields a non-empty result, or an empty slice.
func (s *Service) ResolveIncidents(ctx context.Context) []Incident {
	for _, p := range s.incidentProviders {
		incidents := s.fetchIncidents(ctx, p)
		if len(incidents) > 0 {
			return incidents
		}
		s.logger.Warn().
			Str("provider", p.Name()).
			Msg("no incident data from provider, trying next in chain")
	}
	return []Incident{}
}

// Snapshot resolves both traffic and incidents and returns them as one
// view. Sides that came back empty are filled from the last known-good
// snapshot; sides that came back non-empty replace it. Returns ErrNoData
// only when resolution produced nothing and no known-good data exists.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := Snapshot{
		Traffic:   s.ResolveTraffic(ctx),
		Accidents: s.ResolveIncidents(ctx),
		FetchedAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(snap.Traffic) > 0 {
		s.lastGood.Traffic = snap.Traffic
		s.lastGood.FetchedAt = snap.FetchedAt
	} else if len(s.lastGood.Traffic) > 0 {
		s.logger.Warn().
			Time("fetched_at", s.lastGood.FetchedAt).
			Msg("serving last known-good traffic data, all providers empty")
		snap.Traffic = s.lastGood.Traffic
	}

	if len(snap.Accidents) > 0 {
		s.lastGood.Accidents = snap.Accidents
	} else if len(s.lastGood.Accidents) > 0 {
		snap.Accidents = s.lastGood.Accidents
	}

	if len(snap.Traffic) == 0 && len(snap.Accidents) == 0 {
		return nil, ErrNoData
	}

	return &snap, nil
}

// LastKnownGood returns the retained snapshot without touching any provider.
func (s *Service) LastKnownGood() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastGood
}

func (s *Service) fetchTraffic(ctx context.Context, p TrafficProvider) []Sample {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	samples, err := p.FetchTraffic(callCtx)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("provider", p.Name()).
			Msg("traffic fetch failed")
		return nil
	}
	return samples
}

func (s *Service) fetchIncidents(ctx context.Context, p IncidentProvider) []Incident {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	incidents, err := p.FetchIncidents(callCtx)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("provider", p.Name()).
			Msg("incident fetch failed")
		return nil
	}
	return incidents
}
