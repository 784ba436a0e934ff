// Package traffic provides the canonical traffic and incident shapes, the
// provider contracts, and the priority-ordered fallback across providers.
package traffic

import (
	"context"
	"errors"
	"time"

	"github.com/trafficsense/trafficsense/internal/congestion"
)

// Sentinel errors for provider operations.
var (
	// ErrProviderUnavailable indicates a network failure or an open circuit breaker.
	ErrProviderUnavailable = errors.New("traffic provider unavailable")
	// ErrRateLimited indicates the provider's API quota has been exceeded.
	ErrRateLimited = errors.New("traffic provider rate limit exceeded")
	// ErrBadResponse indicates the provider returned an unparseable payload.
	ErrBadResponse = errors.New("traffic provider returned a malformed response")
	// ErrNoData indicates every provider came back empty and no
	// known-good snapshot is retained.
	ErrNoData = errors.New("no traffic data available")
)

// Severity classifies an incident's impact.
type Severity string

const (
	SeverityLow     Severity = "low"
	SeverityMedium  Severity = "medium"
	SeverityHigh    Severity = "high"
	SeverityUnknown Severity = "unknown"
)

// Coordinate is a geographic point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Sample is one normalized traffic observation for a road segment.
// Samples are ephemeral input to the segment aggregator and are not
// persisted on their own.
type Sample struct {
	// SegmentID is the provider's native segment id, empty when the
	// provider has none (the aggregator then derives one from the
	// coordinates).
	SegmentID string `json:"segmentId,omitempty"`

	Location      string           `json:"location"`
	Coordinates   Coordinate       `json:"coordinates"`
	CurrentSpeed  float64          `json:"currentSpeed"`
	FreeFlowSpeed float64          `json:"freeFlowSpeed,omitempty"`
	Congestion    congestion.Level `json:"congestionLevel"`
	VehicleCount  int              `json:"vehiclesCount"`
	Source        string           `json:"source"`
	ObservedAt    time.Time        `json:"timestamp"`
}

// Incident is one normalized incident/accident report. Incidents are
// sourced per poll and are not deduplicated across providers.
type Incident struct {
	Location    string     `json:"location"`
	Description string     `json:"description"`
	Severity    Severity   `json:"severity"`
	Coordinates Coordinate `json:"coordinates"`
	Count       int        `json:"accidentCount"`
	ObservedAt  time.Time  `json:"timestamp"`
}

// Snapshot is a point-in-time traffic and incident view, the payload of
// the trafficUpdate broadcast channel.
type Snapshot struct {
	Traffic   []Sample   `json:"traffic"`
	Accidents []Incident `json:"accidents"`
	FetchedAt time.Time  `json:"-"`
}

// TrafficProvider fetches normalized traffic samples from one external source.
type TrafficProvider interface {
	// FetchTraffic retrieves the current traffic samples for the
	// monitored area. Individual malformed entries are dropped, not
	// surfaced as errors.
	FetchTraffic(ctx context.Context) ([]Sample, error)
	// Name returns the provider identifier for logging and health tracking.
	Name() string
}

// IncidentProvider fetches normalized incident reports from one external source.
type IncidentProvider interface {
	FetchIncidents(ctx context.Context) ([]Incident, error)
	Name() string
}

// Error provides detailed error information from a traffic provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Provider-specific error code
	Message  string // Human-readable error message
	Err      error  // Underlying sentinel error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}
