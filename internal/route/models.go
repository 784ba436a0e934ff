// Package route computes driving routes with live traffic and
// correlates them with reported incidents along the way.
package route

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/trafficsense/trafficsense/internal/congestion"
	"github.com/trafficsense/trafficsense/internal/traffic"
)

// Sentinel errors for route operations.
var (
	// ErrInvalidRequest indicates the origin or destination is missing or blank.
	ErrInvalidRequest = errors.New("origin and destination must be non-empty")
	// ErrNoRouteFound indicates no drivable route exists between the given places.
	ErrNoRouteFound = errors.New("no route found between the given places")
	// ErrProviderUnavailable indicates the directions provider is down or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("directions provider unavailable")
	// ErrRateLimited indicates the directions API quota has been exceeded.
	ErrRateLimited = errors.New("directions rate limit exceeded")
)

// Provider defines the interface for directions providers.
type Provider interface {
	// Directions retrieves driving route alternatives between two
	// places, with live traffic durations.
	Directions(ctx context.Context, origin, destination string) ([]Option, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// IncidentSource supplies the incidents correlated against route
// geometry. Satisfied by traffic.Service.
type IncidentSource interface {
	ResolveIncidents(ctx context.Context) []traffic.Incident
}

// Request asks for routes between two named places.
type Request struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

// Normalize trims the request fields and validates them.
func (r *Request) Normalize() error {
	r.Origin = strings.TrimSpace(r.Origin)
	r.Destination = strings.TrimSpace(r.Destination)

	if r.Origin == "" || r.Destination == "" {
		return ErrInvalidRequest
	}
	return nil
}

// TextValue is a human-readable quantity paired with its raw value
// (meters for distances, seconds for durations).
type TextValue struct {
	Text  string `json:"text"`
	Value int    `json:"value"`
}

// Step is one turn-by-turn instruction of a route leg.
type Step struct {
	Instruction string             `json:"instruction"`
	Distance    TextValue          `json:"distance"`
	Duration    TextValue          `json:"duration"`
	TravelMode  string             `json:"travel_mode"`
	EndLocation traffic.Coordinate `json:"end_location"`
}

// Option is one route alternative between the requested places.
type Option struct {
	Distance          TextValue            `json:"distance"`
	Duration          TextValue            `json:"duration"`
	DurationInTraffic TextValue            `json:"duration_in_traffic"`
	StartAddress      string               `json:"start_address"`
	EndAddress        string               `json:"end_address"`
	Summary           string               `json:"summary"`
	Warnings          []string             `json:"warnings"`
	Steps             []Step               `json:"steps"`
	Geometry          []traffic.Coordinate `json:"geometry,omitempty"`
	Congestion        congestion.Level     `json:"congestionLevel"`
	Character         string               `json:"routeCharacter"`
	AccidentsInWay    int                  `json:"accidentsInWay"`
}

// Points returns the coordinates used for incident proximity checks:
// the step end locations plus the decoded geometry.
func (o *Option) Points() []traffic.Coordinate {
	points := make([]traffic.Coordinate, 0, len(o.Steps)+len(o.Geometry))
	for _, s := range o.Steps {
		points = append(points, s.EndLocation)
	}
	return append(points, o.Geometry...)
}

// Result is the full answer for one route request.
type Result struct {
	Routes              []Option  `json:"data"`
	Origin              string    `json:"origin"`
	Destination         string    `json:"destination"`
	AccidentCount       int       `json:"accidentCount"`
	TotalAccidentsInWay int       `json:"totalAccidentsInWay"`
	ComputedAt          time.Time `json:"timestamp"`
}

// CharacterFor describes how a congestion level feels to a driver.
func CharacterFor(level congestion.Level) string {
	switch level {
	case congestion.LevelHigh:
		return "unpredictable"
	case congestion.LevelMedium:
		return "normal"
	default:
		return "smooth"
	}
}

// Error represents a route computation error with provider context.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Code)
}

// Unwrap returns the underlying sentinel error.
func (e *Error) Unwrap() error {
	return e.Err
}
